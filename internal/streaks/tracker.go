package streaks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/medipoint/clinicpulse/internal/clinic"
	"github.com/medipoint/clinicpulse/internal/metrics"
	"github.com/medipoint/clinicpulse/internal/store"
)

// RewardEvent is emitted the first time a clinic's streak reaches a reward
// threshold.
type RewardEvent struct {
	ClinicSlug string    `json:"clinic_slug"`
	StreakType string    `json:"streak_type"`
	Count      int       `json:"count"`
	Badge      string    `json:"badge"`
	Points     int       `json:"points"`
	EarnedAt   time.Time `json:"earned_at"`
}

// Result describes what one streak check did for one clinic.
type Result struct {
	StreakType string
	Hit        bool
	Skipped    bool // already checked this period
	Count      int
	Rewards    []RewardEvent
}

// Tracker runs streak checks. Counter bumps go through the store's atomic
// increment and badge grants through atomic array-union, so overlapping
// scheduler invocations cannot double-count or double-grant.
type Tracker struct {
	defs     []Definition
	store    store.Store
	provider metrics.Provider
	logger   *slog.Logger
}

// NewTracker creates a tracker over the built-in streak definitions.
func NewTracker(s store.Store, provider metrics.Provider, logger *slog.Logger) *Tracker {
	return NewTrackerWithDefs(Definitions, s, provider, logger)
}

// NewTrackerWithDefs creates a tracker over a custom definition table (tests).
func NewTrackerWithDefs(defs []Definition, s store.Store, provider metrics.Provider, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{defs: defs, store: s, provider: provider, logger: logger}
}

// Process runs every streak definition matching periodFilter ("" = all)
// against the clinic. The clinic's Streaks slice is updated in place; when
// dryRun is false the changes are persisted.
func (t *Tracker) Process(ctx context.Context, c *clinic.Clinic, windowDays int, periodFilter string, dryRun bool, now time.Time) ([]Result, error) {
	m, err := t.provider.Snapshot(ctx, c.Slug, windowDays)
	if err != nil {
		// Providers are wrapped with metrics.Degrade in production; a raw
		// provider error still must not abort the clinic.
		t.logger.Warn("metrics unavailable for streak check", "clinic", c.Slug, "error", err)
		m = clinic.Metrics{WindowDays: windowDays}
	}

	var results []Result
	dirty := false
	for i := range t.defs {
		def := &t.defs[i]
		if periodFilter != "" && def.Period != periodFilter {
			continue
		}
		res, changed, err := t.processOne(ctx, c, def, m, dryRun, now)
		if err != nil {
			return results, err
		}
		dirty = dirty || changed
		results = append(results, res)
	}

	if dirty && !dryRun {
		if err := t.store.UpdateClinicFields(ctx, c.Slug, map[string]any{
			store.FieldStreaks: c.Streaks,
		}); err != nil {
			return results, fmt.Errorf("persisting streaks for %s: %w", c.Slug, err)
		}
	}
	return results, nil
}

// processOne applies the shared transition function for one streak type.
func (t *Tracker) processOne(ctx context.Context, c *clinic.Clinic, def *Definition, m clinic.Metrics, dryRun bool, now time.Time) (Result, bool, error) {
	st := c.StreakOf(def.Type)
	if st == nil {
		c.Streaks = append(c.Streaks, clinic.Streak{Type: def.Type})
		st = &c.Streaks[len(c.Streaks)-1]
	}

	// One transition per period: a repeated pass inside the same period is
	// a no-op, which keeps overlapping scheduler invocations idempotent.
	if !st.LastUpdated.IsZero() && samePeriod(def.Period, st.LastUpdated, now) {
		return Result{StreakType: def.Type, Skipped: true, Count: st.Count}, false, nil
	}

	hit := def.Check(c, m, st.LastUpdated, now)
	res := Result{StreakType: def.Type, Hit: hit}

	if hit {
		rewards, err := t.applyHit(ctx, c, def, st, dryRun, now)
		if err != nil {
			return res, false, err
		}
		res.Rewards = rewards
	} else {
		if err := t.applyMiss(ctx, c, def, st, dryRun, now); err != nil {
			return res, false, err
		}
	}
	res.Count = st.Count
	return res, true, nil
}

func (t *Tracker) applyHit(ctx context.Context, c *clinic.Clinic, def *Definition, st *clinic.Streak, dryRun bool, now time.Time) ([]RewardEvent, error) {
	newCount := st.Count + 1
	if newCount > def.MaxCount {
		newCount = def.MaxCount
	}

	if !dryRun {
		if newCount > st.Count {
			n, err := t.store.AtomicIncrement(ctx, c.Slug, store.StreakCountField(def.Type), 1)
			if err != nil {
				return nil, fmt.Errorf("incrementing streak %s/%s: %w", c.Slug, def.Type, err)
			}
			// A concurrent pass may have bumped the counter first; the
			// store value wins.
			newCount = int(n)
			if newCount > def.MaxCount {
				newCount = def.MaxCount
			}
		}
		if _, err := t.store.AtomicIncrement(ctx, c.Slug, store.StreakTotalField(def.Type), 1); err != nil {
			return nil, fmt.Errorf("incrementing streak total %s/%s: %w", c.Slug, def.Type, err)
		}
	}

	if st.Count == 0 || st.StartedAt == nil {
		ts := now
		st.StartedAt = &ts
	}
	st.Count = newCount
	st.Active = true
	st.TotalEarned++
	if st.Count > st.BestCount {
		st.BestCount = st.Count
	}
	st.LastUpdated = now

	var rewards []RewardEvent
	if reward, ok := def.Rewards[st.Count]; ok {
		key := BadgeKey(def.Type, st.Count)
		if !c.HasBadge(key) {
			if !dryRun {
				if err := t.store.AtomicArrayUnion(ctx, c.Slug, store.FieldBadges, key); err != nil {
					return nil, fmt.Errorf("granting badge %s to %s: %w", key, c.Slug, err)
				}
			}
			c.Badges = append(c.Badges, key)
			rewards = append(rewards, RewardEvent{
				ClinicSlug: c.Slug,
				StreakType: def.Type,
				Count:      st.Count,
				Badge:      reward.Badge,
				Points:     reward.Points,
				EarnedAt:   now,
			})
		}
	}
	return rewards, nil
}

func (t *Tracker) applyMiss(ctx context.Context, c *clinic.Clinic, def *Definition, st *clinic.Streak, dryRun bool, now time.Time) error {
	if def.ResetOnMiss && st.Count > 0 {
		if !dryRun {
			// Reset by decrementing the observed count so a concurrent
			// increment is not silently erased.
			if _, err := t.store.AtomicIncrement(ctx, c.Slug, store.StreakCountField(def.Type), -int64(st.Count)); err != nil {
				return fmt.Errorf("resetting streak %s/%s: %w", c.Slug, def.Type, err)
			}
		}
		st.Count = 0
		st.StartedAt = nil
	}
	st.Active = false
	st.LastUpdated = now
	return nil
}

// samePeriod reports whether two instants fall in the same check period.
func samePeriod(period string, a, b time.Time) bool {
	au, bu := a.UTC(), b.UTC()
	switch period {
	case PeriodWeekly:
		ay, aw := au.ISOWeek()
		by, bw := bu.ISOWeek()
		return ay == by && aw == bw
	default:
		return au.Year() == bu.Year() && au.YearDay() == bu.YearDay()
	}
}
