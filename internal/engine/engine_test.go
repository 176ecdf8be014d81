package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medipoint/clinicpulse/internal/clinic"
	"github.com/medipoint/clinicpulse/internal/events"
	"github.com/medipoint/clinicpulse/internal/metrics"
	"github.com/medipoint/clinicpulse/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// capturePublisher records published envelopes.
type capturePublisher struct {
	mu        sync.Mutex
	envelopes []events.Envelope
}

func (p *capturePublisher) Publish(ctx context.Context, e events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envelopes = append(p.envelopes, e)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.envelopes {
		out = append(out, e.Kind)
	}
	return out
}

var passTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(st store.Store, provider metrics.Provider, pub events.Publisher) *Engine {
	e := New(st, provider, pub, testLogger())
	e.now = func() time.Time { return passTime }
	return e
}

// healthy is a clinic matching no tag rules given healthyMetrics.
func healthy(slug string) *clinic.Clinic {
	return &clinic.Clinic{
		Slug:             slug,
		Name:             "Clinic " + slug,
		Status:           clinic.StatusActive,
		Tier:             clinic.TierPremium,
		Indexed:          true,
		Phone:            strPtr("+31 20 123 4567"),
		Description:      strPtr("A full-service clinic in the city center with modern equipment."),
		Services:         []string{"checkup"},
		PhotoCount:       5,
		Keywords:         []string{"clinic", "city"},
		MetaTitle:        strPtr("Clinic"),
		MetaDescription:  strPtr("Book now."),
		VerifiedAt:       timePtr(passTime.AddDate(0, -2, 0)),
		ProfileUpdatedAt: timePtr(passTime.AddDate(0, 0, -10)),
		CreatedAt:        passTime.AddDate(-1, 0, 0),
	}
}

func healthyMetrics() clinic.Metrics {
	return clinic.Metrics{
		WindowDays:  90,
		Clicks:      120,
		Calls:       15,
		Impressions: 2000,
		PrevClicks:  100,
		Indexed:     true,
	}
}

func TestRun_HealthyClinic(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.PutClinic(ctx, healthy("a")))
	provider := &metrics.Static{Snapshots: map[string]clinic.Metrics{"a": healthyMetrics()}}
	eng := newTestEngine(st, provider, nil)

	summary, results, err := eng.Run(ctx, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.TotalProcessed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.NewTags)
	assert.Equal(t, 0, summary.CriticalIssues)
	assert.InDelta(t, 100.0, summary.AverageScore, 0.001)
	require.Len(t, results, 1)
	assert.Equal(t, 100, results[0].Scores.Severity)

	got, err := st.GetClinic(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got.Tags)
	assert.Equal(t, 100, got.Scores.Severity)
	assert.True(t, got.Scores.UpdatedAt.Equal(passTime))
}

func TestRun_TagsScoresAndAlerts(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	c := healthy("a")
	c.Phone = nil     // missing-phone tag
	c.Indexed = false // premium_not_indexed alert trigger
	require.NoError(t, st.PutClinic(ctx, c))

	m := healthyMetrics()
	m.Indexed = false // premium-not-indexed tag
	provider := &metrics.Static{Snapshots: map[string]clinic.Metrics{"a": m}}
	pub := &capturePublisher{}
	eng := newTestEngine(st, provider, pub)

	summary, _, err := eng.Run(ctx, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.NewTags)
	assert.Equal(t, 1, summary.AlertsCreated)
	assert.Equal(t, map[string]int{"missing-phone": 1, "premium-not-indexed": 1}, summary.TagDistribution)
	// -15 twice.
	assert.InDelta(t, 70.0, summary.AverageScore, 0.001)

	got, err := st.GetClinic(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"premium-not-indexed", "missing-phone"}, got.Tags, "rule table order")
	require.Len(t, got.Suggestions, 2)
	require.Len(t, got.Alerts, 1)
	assert.Equal(t, "premium_not_indexed", got.Alerts[0].Type)
	assert.False(t, got.Alerts[0].Resolved())

	assert.Equal(t, []string{events.KindAlertCreated}, pub.kinds())
}

func TestRun_SecondPassIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := healthy("a")
	c.Phone = nil
	require.NoError(t, st.PutClinic(ctx, c))
	provider := &metrics.Static{Snapshots: map[string]clinic.Metrics{"a": healthyMetrics()}}
	eng := newTestEngine(st, provider, nil)

	first, _, err := eng.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewTags)

	second, _, err := eng.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewTags, "same inputs, no new tags")
	assert.Equal(t, 0, second.ResolvedTags)
	assert.Equal(t, 0, second.AlertsCreated)
}

func TestRun_TagResolvesWhenConditionClears(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := healthy("a")
	c.Phone = nil
	require.NoError(t, st.PutClinic(ctx, c))
	provider := &metrics.Static{Snapshots: map[string]clinic.Metrics{"a": healthyMetrics()}}
	eng := newTestEngine(st, provider, nil)

	_, _, err := eng.Run(ctx, Options{})
	require.NoError(t, err)

	// The profile team fills in the phone number between passes.
	stored, err := st.GetClinic(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, []string{"missing-phone"}, stored.Tags)
	fixed := healthy("a")
	fixed.Tags = stored.Tags
	require.NoError(t, st.PutClinic(ctx, fixed))

	summary, _, err := eng.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ResolvedTags)

	got, err := st.GetClinic(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got.Tags)
}

func TestRun_DryRunComputesSameDecisionsWithoutWriting(t *testing.T) {
	ctx := context.Background()

	build := func() (*passFixture, error) {
		st := store.NewMemoryStore()
		c := healthy("a")
		c.Phone = nil
		c.Indexed = false
		if err := st.PutClinic(ctx, c); err != nil {
			return nil, err
		}
		m := healthyMetrics()
		m.Indexed = false
		provider := &metrics.Static{Snapshots: map[string]clinic.Metrics{"a": m}}
		return &passFixture{st: st, eng: newTestEngine(st, provider, nil)}, nil
	}

	dry, err := build()
	require.NoError(t, err)
	live, err := build()
	require.NoError(t, err)

	drySummary, dryResults, err := dry.eng.Run(ctx, Options{DryRun: true})
	require.NoError(t, err)
	liveSummary, liveResults, err := live.eng.Run(ctx, Options{})
	require.NoError(t, err)

	assert.Equal(t, liveSummary.NewTags, drySummary.NewTags)
	assert.Equal(t, liveSummary.ResolvedTags, drySummary.ResolvedTags)
	assert.Equal(t, liveSummary.AlertsCreated, drySummary.AlertsCreated)
	assert.Equal(t, liveSummary.TagDistribution, drySummary.TagDistribution)
	assert.InDelta(t, liveSummary.AverageScore, drySummary.AverageScore, 0.001)
	assert.True(t, drySummary.DryRun)
	assert.False(t, liveSummary.DryRun)

	require.Len(t, dryResults, 1)
	require.Len(t, liveResults, 1)
	assert.Equal(t, liveResults[0].Added, dryResults[0].Added)
	assert.Equal(t, liveResults[0].Scores.Severity, dryResults[0].Scores.Severity)

	// Nothing persisted on the dry side.
	got, err := dry.st.GetClinic(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got.Tags)
	assert.Empty(t, got.Alerts)
	active, err := dry.st.ActiveAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

// passFixture pairs an engine with its backing store for comparisons.
type passFixture struct {
	st  *store.MemoryStore
	eng *Engine
}

func TestRun_OneFailingClinicDoesNotAbortThePass(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.PutClinic(ctx, healthy("a")))
	require.NoError(t, st.PutClinic(ctx, healthy("b")))
	require.NoError(t, st.PutClinic(ctx, healthy("c")))

	failing := &failingStore{MemoryStore: st, failSlug: "b"}
	provider := &metrics.Static{Snapshots: map[string]clinic.Metrics{
		"a": healthyMetrics(), "b": healthyMetrics(), "c": healthyMetrics(),
	}}
	eng := newTestEngine(failing, provider, nil)

	summary, _, err := eng.Run(ctx, Options{Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "b:")
}

// failingStore fails GetClinic for one slug.
type failingStore struct {
	*store.MemoryStore
	failSlug string
}

func (s *failingStore) GetClinic(ctx context.Context, slug string) (*clinic.Clinic, error) {
	if slug == s.failSlug {
		return nil, assert.AnError
	}
	return s.MemoryStore.GetClinic(ctx, slug)
}

func TestRun_ProviderOutageDegradesToZeroMetrics(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.PutClinic(ctx, healthy("a")))
	provider := &metrics.Static{Err: assert.AnError}
	eng := newTestEngine(st, provider, nil)

	summary, _, err := eng.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded, "provider outage degrades, not fails")

	// Zero metrics make the year-old premium clinic a ghost and unindexed.
	got, err := st.GetClinic(ctx, "a")
	require.NoError(t, err)
	assert.Contains(t, got.Tags, "ghost-clinic")
	assert.Contains(t, got.Tags, "premium-not-indexed")
}

func TestRun_FilterLimitsTargets(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.PutClinic(ctx, healthy("a")))
	b := healthy("b")
	b.Tier = clinic.TierFree
	require.NoError(t, st.PutClinic(ctx, b))
	provider := &metrics.Static{Snapshots: map[string]clinic.Metrics{
		"a": healthyMetrics(), "b": healthyMetrics(),
	}}
	eng := newTestEngine(st, provider, nil)

	summary, results, err := eng.Run(ctx, Options{Filter: store.Filter{Tier: clinic.TierPremium}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalProcessed)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Slug)
}

func TestRunStreaks_PassAndRewards(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := healthy("a")
	// Three prior weekly hits put the engagement streak one short of the
	// first reward.
	c.Streaks = []clinic.Streak{{
		Type:        "weekly-engagement",
		Count:       3,
		Active:      true,
		BestCount:   3,
		TotalEarned: 3,
		LastUpdated: passTime.AddDate(0, 0, -7),
	}}
	require.NoError(t, st.PutClinic(ctx, c))
	provider := &metrics.Static{Snapshots: map[string]clinic.Metrics{"a": healthyMetrics()}}
	pub := &capturePublisher{}
	eng := newTestEngine(st, provider, pub)

	summary, err := eng.RunStreaks(ctx, StreakOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalProcessed)
	assert.Equal(t, 1, summary.Succeeded)
	require.Len(t, summary.Rewards, 1)
	assert.Equal(t, "engagement-bronze", summary.Rewards[0].Badge)
	assert.Equal(t, 4, summary.Rewards[0].Count)

	assert.Equal(t, []string{events.KindStreakReward}, pub.kinds())

	got, err := st.GetClinic(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 4, got.StreakOf("weekly-engagement").Count)
	assert.Contains(t, got.Badges, "weekly-engagement:4")
}

func TestRunStreaks_DryRunPublishesNothing(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := healthy("a")
	c.Streaks = []clinic.Streak{{
		Type:        "weekly-engagement",
		Count:       3,
		Active:      true,
		BestCount:   3,
		TotalEarned: 3,
		LastUpdated: passTime.AddDate(0, 0, -7),
	}}
	require.NoError(t, st.PutClinic(ctx, c))
	provider := &metrics.Static{Snapshots: map[string]clinic.Metrics{"a": healthyMetrics()}}
	pub := &capturePublisher{}
	eng := newTestEngine(st, provider, pub)

	summary, err := eng.RunStreaks(ctx, StreakOptions{Options: Options{DryRun: true}})
	require.NoError(t, err)
	require.Len(t, summary.Rewards, 1, "dry run still reports the reward it would grant")
	assert.Empty(t, pub.kinds())

	got, err := st.GetClinic(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, got.StreakOf("weekly-engagement").Count)
	assert.Empty(t, got.Badges)
}

func TestRunStreaks_PeriodFilter(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := healthy("a")
	require.NoError(t, st.PutClinic(ctx, c))
	provider := &metrics.Static{Snapshots: map[string]clinic.Metrics{"a": healthyMetrics()}}
	eng := newTestEngine(st, provider, nil)

	summary, err := eng.RunStreaks(ctx, StreakOptions{Period: "daily"})
	require.NoError(t, err)
	// Only fresh-profile is daily; profile updated 10 days ago counts as fresh.
	assert.Equal(t, 1, summary.Hits+summary.Misses+summary.Skipped)
}
