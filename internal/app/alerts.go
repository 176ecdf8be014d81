package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/medipoint/clinicpulse/internal/clinic"
	"github.com/medipoint/clinicpulse/internal/config"
	"github.com/medipoint/clinicpulse/internal/output"
	"github.com/medipoint/clinicpulse/internal/store"
)

var alertsFlagResolved bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List active or resolved alerts from the global index",
	RunE:  runAlerts,
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsFlagResolved, "resolved", false, "Show resolved alerts instead of active ones")
	rootCmd.AddCommand(alertsCmd)
}

func runAlerts(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupOutput(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	st, err := store.OpenRedis(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer st.Close()

	var alerts []clinic.Alert
	if alertsFlagResolved {
		alerts, err = st.ResolvedAlerts(ctx)
	} else {
		alerts, err = st.ActiveAlerts(ctx)
	}
	if err != nil {
		return err
	}

	if flagJSON {
		return renderJSON(alerts)
	}

	title := fmt.Sprintf("Active alerts (%d)", len(alerts))
	if alertsFlagResolved {
		title = fmt.Sprintf("Resolved alerts (%d)", len(alerts))
	}
	fmt.Println(output.Section(title))

	if len(alerts) == 0 {
		fmt.Println(" ", output.StyleMuted.Render("none"))
		return nil
	}

	t := output.NewTable("Severity", "Clinic", "Type", "Created", "Title")
	for _, a := range alerts {
		t.AddRow(
			output.SeverityStyle(a.Severity).Render(a.Severity),
			a.ClinicSlug,
			a.Type,
			a.CreatedAt.Format(time.DateOnly),
			a.Title,
		)
	}
	t.Print()
	return nil
}
