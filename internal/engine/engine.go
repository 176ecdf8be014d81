// Package engine is the batch orchestrator: it walks the target clinics in
// bounded batches, runs rule evaluation, scoring, tag reconciliation and
// alert transitions per clinic, and persists the results. A single clinic's
// failure never aborts the pass; only failing to list the targets does.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medipoint/clinicpulse/internal/alerts"
	"github.com/medipoint/clinicpulse/internal/clinic"
	"github.com/medipoint/clinicpulse/internal/events"
	"github.com/medipoint/clinicpulse/internal/metrics"
	"github.com/medipoint/clinicpulse/internal/rules"
	"github.com/medipoint/clinicpulse/internal/scoring"
	"github.com/medipoint/clinicpulse/internal/store"
	"github.com/medipoint/clinicpulse/internal/streaks"
)

// Options configures one pass.
type Options struct {
	Filter      store.Filter
	BatchSize   int
	Concurrency int
	BatchDelay  time.Duration
	WindowDays  int
	DryRun      bool
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 25
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 10
	}
	if o.WindowDays <= 0 {
		o.WindowDays = 90
	}
}

// Summary is the result of one tag/score/alert pass.
type Summary struct {
	TotalProcessed  int            `json:"total_processed"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	NewTags         int            `json:"new_tags"`
	ResolvedTags    int            `json:"resolved_tags"`
	CriticalIssues  int            `json:"critical_issues"`
	AverageScore    float64        `json:"average_score"`
	TagDistribution map[string]int `json:"tag_distribution"`
	AlertsCreated   int            `json:"alerts_created"`
	AlertsResolved  int            `json:"alerts_resolved"`
	DryRun          bool           `json:"dry_run"`
	DurationMs      int64          `json:"duration_ms"`
	Errors          []string       `json:"errors,omitempty"`
}

// ClinicResult is the per-clinic outcome, reported for dry runs and verbose
// output.
type ClinicResult struct {
	Slug        string              `json:"slug"`
	Added       []string            `json:"added,omitempty"`
	Resolved    []string            `json:"resolved,omitempty"`
	Scores      clinic.Scores       `json:"scores"`
	Transitions []alerts.Transition `json:"transitions,omitempty"`
}

// Engine wires the per-clinic pipeline together.
type Engine struct {
	store     store.Store
	provider  metrics.Provider
	evaluator *rules.Evaluator
	alertMgr  *alerts.Manager
	tracker   *streaks.Tracker
	publisher events.Publisher
	logger    *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates an engine over the given collaborators. The metrics provider
// is wrapped with zero-value degradation; pass failures from the provider
// never fail a clinic.
func New(s store.Store, provider metrics.Provider, publisher events.Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	degraded := metrics.NewDegrade(provider, logger)
	return &Engine{
		store:     s,
		provider:  degraded,
		evaluator: rules.NewEvaluator(logger),
		alertMgr:  alerts.NewManager(s, logger),
		tracker:   streaks.NewTracker(s, degraded, logger),
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one full pass over the clinics matching opts.Filter.
// Failing to list the targets is batch-fatal and returned as an error;
// everything else lands in the summary.
func (e *Engine) Run(ctx context.Context, opts Options) (*Summary, []ClinicResult, error) {
	opts.applyDefaults()
	start := e.now()

	targets, err := e.store.ListClinics(ctx, opts.Filter)
	if err != nil {
		return nil, nil, fmt.Errorf("listing target clinics: %w", err)
	}

	summary := &Summary{
		TagDistribution: make(map[string]int),
		DryRun:          opts.DryRun,
	}
	var results []ClinicResult
	var mu sync.Mutex
	var scoreSum int

	e.logger.Info("pass starting",
		"targets", len(targets),
		"batch_size", opts.BatchSize,
		"concurrency", opts.Concurrency,
		"dry_run", opts.DryRun,
	)

	for batchStart := 0; batchStart < len(targets); batchStart += opts.BatchSize {
		end := batchStart + opts.BatchSize
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[batchStart:end]

		// The pass may be aborted between batches; clinics already written
		// stay committed and the next scheduled pass converges.
		if batchStart > 0 {
			select {
			case <-ctx.Done():
				e.logger.Warn("pass aborted between batches", "processed", summary.TotalProcessed)
				return e.finish(summary, start), results, nil
			case <-time.After(opts.BatchDelay):
			}
		}

		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for _, target := range batch {
			slug := target.Slug
			g.Go(func() error {
				res, err := e.processClinic(ctx, slug, opts)

				mu.Lock()
				defer mu.Unlock()
				summary.TotalProcessed++
				if err != nil {
					summary.Failed++
					summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", slug, err))
					e.logger.Warn("clinic failed", "clinic", slug, "error", err)
					return nil
				}
				summary.Succeeded++
				summary.NewTags += len(res.diff.Added)
				summary.ResolvedTags += len(res.diff.Resolved)
				summary.AlertsCreated += res.alertsCreated
				summary.AlertsResolved += res.alertsResolved
				scoreSum += res.scores.Severity
				for tagID := range res.matched {
					summary.TagDistribution[tagID]++
					if rules.SeverityOf(tagID) == clinic.SeverityCritical {
						summary.CriticalIssues++
					}
				}
				results = append(results, ClinicResult{
					Slug:        slug,
					Added:       res.diff.Added,
					Resolved:    res.diff.Resolved,
					Scores:      res.scores,
					Transitions: res.plan,
				})
				return nil
			})
		}
		_ = g.Wait()
	}

	if summary.Succeeded > 0 {
		summary.AverageScore = float64(scoreSum) / float64(summary.Succeeded)
	}
	return e.finish(summary, start), results, nil
}

func (e *Engine) finish(summary *Summary, start time.Time) *Summary {
	summary.DurationMs = e.now().Sub(start).Milliseconds()
	e.logger.Info("pass finished",
		"processed", summary.TotalProcessed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"new_tags", summary.NewTags,
		"resolved_tags", summary.ResolvedTags,
		"alerts_created", summary.AlertsCreated,
		"alerts_resolved", summary.AlertsResolved,
		"duration_ms", summary.DurationMs,
	)
	return summary
}

// clinicOutcome carries one clinic's computed decisions back to the
// aggregation step.
type clinicOutcome struct {
	diff           rules.Diff
	matched        map[string]bool
	scores         clinic.Scores
	plan           []alerts.Transition
	alertsCreated  int
	alertsResolved int
}

// processClinic runs the required per-clinic order: read current state,
// evaluate rules, reconcile and plan transitions, then write. Dry runs stop
// before the write but compute identical decisions.
func (e *Engine) processClinic(ctx context.Context, slug string, opts Options) (*clinicOutcome, error) {
	now := e.now()

	c, err := e.store.GetClinic(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("reading clinic: %w", err)
	}

	m, err := e.provider.Snapshot(ctx, slug, opts.WindowDays)
	if err != nil {
		// Degrade never errors; a custom provider might.
		return nil, fmt.Errorf("fetching metrics: %w", err)
	}

	eval := e.evaluator.Evaluate(c, m, now)
	diff := rules.Reconcile(c.Tags, eval.Matched)
	scores := scoring.Compute(c, m, eval.Matched)
	scores.UpdatedAt = now
	plan := e.alertMgr.Plan(c, now)

	out := &clinicOutcome{
		diff:    diff,
		matched: eval.Matched,
		scores:  scores,
		plan:    plan,
	}

	if opts.DryRun {
		for _, t := range plan {
			switch t.Action {
			case alerts.ActionCreate:
				out.alertsCreated++
			case alerts.ActionResolve:
				out.alertsResolved++
			}
		}
		return out, nil
	}

	created, resolved, err := e.alertMgr.Apply(ctx, c, plan, now)
	if err != nil {
		return nil, err
	}
	out.alertsCreated = len(created)
	out.alertsResolved = len(resolved)

	if err := e.store.UpdateClinicFields(ctx, slug, map[string]any{
		store.FieldTags:        eval.MatchedList(),
		store.FieldSuggestions: eval.Suggestions,
		store.FieldAlerts:      c.Alerts,
		store.FieldScores:      scores,
	}); err != nil {
		return nil, fmt.Errorf("writing clinic: %w", err)
	}

	// Event publishing is best effort: the messaging subsystem retries
	// from the alert index, so a publish failure is logged, not fatal.
	for _, a := range created {
		if err := e.publisher.Publish(ctx, events.NewAlertEvent(events.KindAlertCreated, a)); err != nil {
			e.logger.Warn("publish failed", "kind", events.KindAlertCreated, "clinic", slug, "error", err)
		}
	}
	for _, a := range resolved {
		if err := e.publisher.Publish(ctx, events.NewAlertEvent(events.KindAlertResolved, a)); err != nil {
			e.logger.Warn("publish failed", "kind", events.KindAlertResolved, "clinic", slug, "error", err)
		}
	}

	return out, nil
}
