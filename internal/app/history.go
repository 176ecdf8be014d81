package app

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/medipoint/clinicpulse/internal/config"
	"github.com/medipoint/clinicpulse/internal/history"
	"github.com/medipoint/clinicpulse/internal/output"
)

var (
	historyFlagLimit int
	historyFlagKind  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent pass summaries and trends",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyFlagLimit, "limit", 10, "Number of runs to show")
	historyCmd.Flags().StringVar(&historyFlagKind, "kind", history.KindTags, "Run kind: tags or streaks")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupOutput(cfg)

	db, err := history.Open(config.DBPath())
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer db.Close()

	runs, err := db.LatestRuns(historyFlagKind, historyFlagLimit)
	if err != nil {
		return err
	}

	if flagJSON {
		deltas, err := db.CompareLastTwo(historyFlagKind)
		if err != nil {
			return err
		}
		return renderJSON(map[string]any{"runs": runs, "deltas": deltas})
	}

	fmt.Println(output.Section(fmt.Sprintf("Recent %s runs", historyFlagKind)))
	if len(runs) == 0 {
		fmt.Println(" ", output.StyleMuted.Render("no runs recorded yet"))
		return nil
	}

	t := output.NewTable("When", "Processed", "Failed", "New", "Resolved", "Avg score", "Alerts +/-")
	for _, r := range runs {
		t.AddRow(
			r.StartedAt.Local().Format(time.DateTime),
			strconv.Itoa(r.Processed),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.NewTags),
			strconv.Itoa(r.ResolvedTags),
			fmt.Sprintf("%.1f", r.AverageScore),
			fmt.Sprintf("%d/%d", r.AlertsCreated, r.AlertsResolved),
		)
	}
	t.Print()

	deltas, err := db.CompareLastTwo(historyFlagKind)
	if err != nil {
		return err
	}
	if len(deltas) > 0 {
		fmt.Println(output.Section("Change since previous run"))
		dt := output.NewTable("Metric", "Previous", "Current", "Delta")
		for _, d := range deltas {
			higherIsBetter := d.Name == "average_score" || d.Name == "resolved_tags"
			dt.AddRow(
				d.Name,
				fmt.Sprintf("%.1f", d.Previous),
				fmt.Sprintf("%.1f", d.Current),
				output.Delta(d.Delta, higherIsBetter),
			)
		}
		dt.Print()
	}
	return nil
}
