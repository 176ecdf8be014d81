package app

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/medipoint/clinicpulse/internal/config"
	"github.com/medipoint/clinicpulse/internal/engine"
	"github.com/medipoint/clinicpulse/internal/history"
	"github.com/medipoint/clinicpulse/internal/metrics"
	"github.com/medipoint/clinicpulse/internal/output"
	"github.com/medipoint/clinicpulse/internal/store"
	"github.com/medipoint/clinicpulse/internal/streaks"
)

var (
	streaksFlagDryRun bool
	streaksFlagPeriod string
)

var streaksCmd = &cobra.Command{
	Use:   "streaks",
	Short: "Run the streak-tracking pass",
	Long: `Check every clinic's streak conditions for the current period,
incrementing or resetting counters and granting one-time rewards at
thresholds. Run daily streaks from a daily cron and weekly streaks from
a weekly one with --period.`,
	RunE: runStreaksCmd,
}

func init() {
	streaksCmd.Flags().BoolVar(&streaksFlagDryRun, "dry-run", false, "Compute streak transitions without persisting")
	streaksCmd.Flags().StringVar(&streaksFlagPeriod, "period", "", "Limit to one period: daily or weekly (default: all)")
	rootCmd.AddCommand(streaksCmd)
}

func runStreaksCmd(cmd *cobra.Command, args []string) error {
	if streaksFlagPeriod != "" &&
		streaksFlagPeriod != streaks.PeriodDaily &&
		streaksFlagPeriod != streaks.PeriodWeekly {
		return fmt.Errorf("invalid period %q: want daily or weekly", streaksFlagPeriod)
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupOutput(cfg)
	logger := newLogger()

	ctx, cancel := signalContext()
	defer cancel()

	st, err := store.OpenRedis(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer st.Close()

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return fmt.Errorf("configuring event publisher: %w", err)
	}
	defer publisher.Close()

	eng := engine.New(st, metrics.NewStoreProvider(st.Client()), publisher, logger)

	summary, err := eng.RunStreaks(ctx, engine.StreakOptions{
		Options: engine.Options{
			BatchSize:   cfg.Batch.Size,
			Concurrency: cfg.Batch.Concurrency,
			BatchDelay:  cfg.Batch.Delay(),
			WindowDays:  cfg.Batch.WindowDays,
			DryRun:      streaksFlagDryRun,
		},
		Period: streaksFlagPeriod,
	})
	if err != nil {
		return err
	}

	if !streaksFlagDryRun {
		if db, err := history.Open(config.DBPath()); err == nil {
			if _, err := db.RecordStreakRun(summary); err != nil {
				logger.Warn("recording streak history failed", "error", err)
			}
			_ = db.Close()
		} else {
			logger.Warn("opening run history failed", "error", err)
		}
	}

	if flagJSON {
		return renderJSON(summary)
	}
	renderStreakSummary(summary)
	return nil
}

func renderStreakSummary(s *engine.StreakSummary) {
	title := "Streak pass summary"
	if s.DryRun {
		title = "Streak pass summary (dry run, nothing persisted)"
	}
	fmt.Println(output.Section(title))

	t := output.NewTable("Metric", "Value")
	t.AddRow("Processed", strconv.Itoa(s.TotalProcessed))
	t.AddRow("Succeeded", strconv.Itoa(s.Succeeded))
	t.AddRow("Failed", strconv.Itoa(s.Failed))
	t.AddRow("Hits", strconv.Itoa(s.Hits))
	t.AddRow("Misses", strconv.Itoa(s.Misses))
	t.AddRow("Skipped (same period)", strconv.Itoa(s.Skipped))
	t.AddRow("Rewards granted", strconv.Itoa(len(s.Rewards)))
	t.AddRow("Duration", fmt.Sprintf("%dms", s.DurationMs))
	t.Print()

	if len(s.Rewards) > 0 {
		fmt.Println(output.Section("Rewards"))
		rt := output.NewTable("Clinic", "Streak", "Count", "Badge", "Points")
		for _, r := range s.Rewards {
			rt.AddRow(r.ClinicSlug, r.StreakType, strconv.Itoa(r.Count), r.Badge, strconv.Itoa(r.Points))
		}
		rt.Print()
	}

	if len(s.Errors) > 0 {
		fmt.Println(output.Section("Errors"))
		for _, e := range s.Errors {
			fmt.Println(" ", output.StyleError.Render(e))
		}
	}
}
