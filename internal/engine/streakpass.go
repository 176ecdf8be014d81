package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medipoint/clinicpulse/internal/events"
	"github.com/medipoint/clinicpulse/internal/streaks"
)

// StreakOptions configures a streak pass.
type StreakOptions struct {
	Options

	// Period limits the pass to streak definitions of one period
	// ("daily" or "weekly"); empty runs all of them.
	Period string
}

// StreakSummary is the result of one streak pass.
type StreakSummary struct {
	TotalProcessed int                   `json:"total_processed"`
	Succeeded      int                   `json:"succeeded"`
	Failed         int                   `json:"failed"`
	Hits           int                   `json:"hits"`
	Misses         int                   `json:"misses"`
	Skipped        int                   `json:"skipped"`
	Rewards        []streaks.RewardEvent `json:"rewards,omitempty"`
	DryRun         bool                  `json:"dry_run"`
	DurationMs     int64                 `json:"duration_ms"`
	Errors         []string              `json:"errors,omitempty"`
}

// RunStreaks executes the streak-tracking pass. It runs independently of the
// tag/score/alert pass, over the same target set, with the same batching and
// failure-isolation rules.
func (e *Engine) RunStreaks(ctx context.Context, opts StreakOptions) (*StreakSummary, error) {
	opts.applyDefaults()
	start := e.now()

	targets, err := e.store.ListClinics(ctx, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("listing target clinics: %w", err)
	}

	summary := &StreakSummary{DryRun: opts.DryRun}
	var mu sync.Mutex

	e.logger.Info("streak pass starting",
		"targets", len(targets),
		"period", opts.Period,
		"dry_run", opts.DryRun,
	)

	for batchStart := 0; batchStart < len(targets); batchStart += opts.BatchSize {
		end := batchStart + opts.BatchSize
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[batchStart:end]

		if batchStart > 0 {
			select {
			case <-ctx.Done():
				e.logger.Warn("streak pass aborted between batches", "processed", summary.TotalProcessed)
				summary.DurationMs = e.now().Sub(start).Milliseconds()
				return summary, nil
			case <-time.After(opts.BatchDelay):
			}
		}

		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for _, target := range batch {
			c := target
			g.Go(func() error {
				now := e.now()
				results, err := e.tracker.Process(ctx, c, opts.WindowDays, opts.Period, opts.DryRun, now)

				mu.Lock()
				defer mu.Unlock()
				summary.TotalProcessed++
				if err != nil {
					summary.Failed++
					summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", c.Slug, err))
					e.logger.Warn("streak check failed", "clinic", c.Slug, "error", err)
					return nil
				}
				summary.Succeeded++
				for _, r := range results {
					switch {
					case r.Skipped:
						summary.Skipped++
					case r.Hit:
						summary.Hits++
					default:
						summary.Misses++
					}
					summary.Rewards = append(summary.Rewards, r.Rewards...)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	if !opts.DryRun {
		for _, r := range summary.Rewards {
			if err := e.publisher.Publish(ctx, events.NewRewardEvent(r)); err != nil {
				e.logger.Warn("publish failed", "kind", events.KindStreakReward, "clinic", r.ClinicSlug, "error", err)
			}
		}
	}

	summary.DurationMs = e.now().Sub(start).Milliseconds()
	e.logger.Info("streak pass finished",
		"processed", summary.TotalProcessed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"hits", summary.Hits,
		"misses", summary.Misses,
		"skipped", summary.Skipped,
		"rewards", len(summary.Rewards),
		"duration_ms", summary.DurationMs,
	)
	return summary, nil
}
