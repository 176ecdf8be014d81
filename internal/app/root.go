// Package app contains the Cobra command tree for clinicpulse.
package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/medipoint/clinicpulse/internal/config"
	"github.com/medipoint/clinicpulse/internal/events"
	"github.com/medipoint/clinicpulse/internal/output"
)

var appVersion = "dev"

// SetVersion sets the application version (called from main with ldflags value).
func SetVersion(v string) {
	appVersion = v
	rootCmd.Version = v
}

var (
	flagNoColor bool
	flagJSON    bool
	flagVerbose bool
	flagConfig  string
)

var rootCmd = &cobra.Command{
	Use:   "clinicpulse",
	Short: "Signal and alert lifecycle engine for the clinic directory",
	Long: `clinicpulse evaluates every clinic listing against a declarative rule
table, computes tags, suggestions and 0-100 scores, drives the alert
lifecycle (create-once / auto-resolve), and tracks engagement streaks
with one-time rewards.

It is the batch worker behind the marketing-ops dashboard: run it from
cron, or manually with 'run --dry-run' to preview decisions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("clinicpulse", appVersion)
		fmt.Println()
		fmt.Println("Use a subcommand:")
		fmt.Println("  run       Evaluate rules, update tags/scores and alert lifecycle")
		fmt.Println("  streaks   Run the streak-tracking pass")
		fmt.Println("  alerts    List active or resolved alerts from the global index")
		fmt.Println("  history   Show recent pass summaries and trends")
		fmt.Println("  watch     Re-run the pass on an interval in the foreground")
		return nil
	},
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: ~/.config/clinicpulse/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable verbose output")
}

// setupOutput applies color preferences from flags and config.
func setupOutput(cfg *config.Config) {
	if flagNoColor || !cfg.Output.Color {
		output.SetNoColor(true)
		return
	}
	output.AutoDetect()
}

// newLogger builds the process logger. Verbose mode enables debug lines.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newPublisher builds the event publisher: Kafka when brokers are
// configured, otherwise a no-op.
func newPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	if cfg.KafkaBrokers == "" {
		return events.NopPublisher{}, nil
	}
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
}
