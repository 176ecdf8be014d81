package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/medipoint/clinicpulse/internal/config"
	"github.com/medipoint/clinicpulse/internal/engine"
	"github.com/medipoint/clinicpulse/internal/history"
	"github.com/medipoint/clinicpulse/internal/metrics"
	"github.com/medipoint/clinicpulse/internal/output"
	"github.com/medipoint/clinicpulse/internal/store"
)

var (
	runFlagDryRun      bool
	runFlagBatchSize   int
	runFlagConcurrency int
	runFlagClinics     []string
	runFlagTier        string
	runFlagStatus      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate rules, update tags/scores and alert lifecycle",
	Long: `Run one full pass over the target clinics: fetch metrics, evaluate the
tag-rule table, reconcile tags, recompute scores, and apply alert
lifecycle transitions. Results are persisted unless --dry-run is given;
a dry run computes and reports identical decisions without writing.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runFlagDryRun, "dry-run", false, "Compute decisions without persisting")
	runCmd.Flags().IntVar(&runFlagBatchSize, "batch-size", 0, "Clinics per batch (default from config)")
	runCmd.Flags().IntVar(&runFlagConcurrency, "concurrency", 0, "Concurrent clinics within a batch (default from config)")
	runCmd.Flags().StringSliceVar(&runFlagClinics, "clinic", nil, "Limit to specific clinic slugs (can be repeated)")
	runCmd.Flags().StringVar(&runFlagTier, "tier", "", "Limit to a subscription tier (free, premium)")
	runCmd.Flags().StringVar(&runFlagStatus, "status", "", "Limit to a listing status (active, suspended, closed)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
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

	opts := engine.Options{
		Filter: store.Filter{
			Status: runFlagStatus,
			Tier:   runFlagTier,
			Slugs:  runFlagClinics,
		},
		BatchSize:   pick(runFlagBatchSize, cfg.Batch.Size),
		Concurrency: pick(runFlagConcurrency, cfg.Batch.Concurrency),
		BatchDelay:  cfg.Batch.Delay(),
		WindowDays:  cfg.Batch.WindowDays,
		DryRun:      runFlagDryRun,
	}

	summary, results, err := eng.Run(ctx, opts)
	if err != nil {
		return err
	}

	if !runFlagDryRun {
		if db, err := history.Open(config.DBPath()); err == nil {
			if _, err := db.RecordRun(summary); err != nil {
				logger.Warn("recording run history failed", "error", err)
			}
			_ = db.Close()
		} else {
			logger.Warn("opening run history failed", "error", err)
		}
	}

	if flagJSON {
		return renderJSON(map[string]any{"summary": summary, "clinics": results})
	}
	renderSummary(summary)
	if runFlagDryRun || flagVerbose {
		renderClinicResults(results)
	}
	return nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, so a pass
// stops cleanly between batches.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func pick(flag, fallback int) int {
	if flag > 0 {
		return flag
	}
	return fallback
}

func renderJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderSummary(s *engine.Summary) {
	title := "Pass summary"
	if s.DryRun {
		title = "Pass summary (dry run, nothing persisted)"
	}
	fmt.Println(output.Section(title))

	t := output.NewTable("Metric", "Value")
	t.AddRow("Processed", strconv.Itoa(s.TotalProcessed))
	t.AddRow("Succeeded", strconv.Itoa(s.Succeeded))
	t.AddRow("Failed", strconv.Itoa(s.Failed))
	t.AddRow("New tags", strconv.Itoa(s.NewTags))
	t.AddRow("Resolved tags", strconv.Itoa(s.ResolvedTags))
	t.AddRow("Critical issues", strconv.Itoa(s.CriticalIssues))
	t.AddRow("Average score", fmt.Sprintf("%.1f", s.AverageScore))
	t.AddRow("Alerts created", strconv.Itoa(s.AlertsCreated))
	t.AddRow("Alerts resolved", strconv.Itoa(s.AlertsResolved))
	t.AddRow("Duration", fmt.Sprintf("%dms", s.DurationMs))
	t.Print()

	if len(s.TagDistribution) > 0 {
		fmt.Println(output.Section("Tag distribution"))
		tags := make([]string, 0, len(s.TagDistribution))
		for tag := range s.TagDistribution {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		dt := output.NewTable("Tag", "Clinics")
		for _, tag := range tags {
			dt.AddRow(tag, strconv.Itoa(s.TagDistribution[tag]))
		}
		dt.Print()
	}

	if len(s.Errors) > 0 {
		fmt.Println(output.Section("Errors"))
		for _, e := range s.Errors {
			fmt.Println(" ", output.StyleError.Render(e))
		}
	}
}

func renderClinicResults(results []engine.ClinicResult) {
	if len(results) == 0 {
		return
	}
	fmt.Println(output.Section("Per-clinic decisions"))
	t := output.NewTable("Clinic", "Score", "Added", "Resolved", "Alert transitions")
	for _, r := range results {
		var transitions []string
		for _, tr := range r.Transitions {
			transitions = append(transitions, fmt.Sprintf("%s:%s", tr.Action, tr.Type))
		}
		t.AddRow(
			r.Slug,
			strconv.Itoa(r.Scores.Severity),
			strings.Join(r.Added, ","),
			strings.Join(r.Resolved, ","),
			strings.Join(transitions, " "),
		)
	}
	t.Print()
}
