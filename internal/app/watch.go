package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/medipoint/clinicpulse/internal/config"
	"github.com/medipoint/clinicpulse/internal/engine"
	"github.com/medipoint/clinicpulse/internal/history"
	"github.com/medipoint/clinicpulse/internal/metrics"
	"github.com/medipoint/clinicpulse/internal/store"
)

var watchFlagInterval string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run the pass on an interval in the foreground",
	Long: `Run the tag/score/alert pass immediately and then again at every
interval until interrupted. Intended for local operation; production
deployments drive 'run' from cron instead.

Examples:
  clinicpulse watch                  # re-run every hour (ctrl-c to stop)
  clinicpulse watch --interval 15m   # re-run every 15 minutes`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchFlagInterval, "interval", "", "Interval between passes as a duration string (default: 1h)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupOutput(cfg)
	logger := newLogger()

	interval := config.DefaultWatchInterval
	if watchFlagInterval != "" {
		interval, err = time.ParseDuration(watchFlagInterval)
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", watchFlagInterval, err)
		}
		if interval < time.Minute {
			return fmt.Errorf("interval must be at least 1m, got %s", interval)
		}
	}

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
	opts := engine.Options{
		BatchSize:   cfg.Batch.Size,
		Concurrency: cfg.Batch.Concurrency,
		BatchDelay:  cfg.Batch.Delay(),
		WindowDays:  cfg.Batch.WindowDays,
	}

	fmt.Printf("clinicpulse watching... (pass every %s)\n", interval)

	pass := func() {
		summary, _, err := eng.Run(ctx, opts)
		if err != nil {
			logger.Error("pass failed", "error", err)
			return
		}
		if db, err := history.Open(config.DBPath()); err == nil {
			if _, err := db.RecordRun(summary); err != nil {
				logger.Warn("recording run history failed", "error", err)
			}
			_ = db.Close()
		}
		renderSummary(summary)
	}

	pass()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nstopping")
			return nil
		case <-ticker.C:
			pass()
		}
	}
}
