package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medipoint/clinicpulse/internal/clinic"
)

func seed(t *testing.T, s *MemoryStore, clinics ...*clinic.Clinic) {
	t.Helper()
	for _, c := range clinics {
		require.NoError(t, s.PutClinic(context.Background(), c))
	}
}

func TestMemoryStore_GetPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetClinic(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	seed(t, s, &clinic.Clinic{Slug: "a", Name: "A Clinic", Status: clinic.StatusActive})

	got, err := s.GetClinic(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A Clinic", got.Name)

	// Mutating the returned copy must not touch the stored document.
	got.Name = "mutated"
	again, err := s.GetClinic(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A Clinic", again.Name)
}

func TestMemoryStore_ListFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s,
		&clinic.Clinic{Slug: "a", Status: clinic.StatusActive, Tier: clinic.TierPremium},
		&clinic.Clinic{Slug: "b", Status: clinic.StatusActive, Tier: clinic.TierFree},
		&clinic.Clinic{Slug: "c", Status: clinic.StatusSuspended, Tier: clinic.TierPremium},
	)

	all, err := s.ListClinics(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Slug, "ordered by slug")

	active, err := s.ListClinics(ctx, Filter{Status: clinic.StatusActive})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	premiumActive, err := s.ListClinics(ctx, Filter{Status: clinic.StatusActive, Tier: clinic.TierPremium})
	require.NoError(t, err)
	require.Len(t, premiumActive, 1)
	assert.Equal(t, "a", premiumActive[0].Slug)

	bySlug, err := s.ListClinics(ctx, Filter{Slugs: []string{"b", "c"}})
	require.NoError(t, err)
	assert.Len(t, bySlug, 2)
}

func TestMemoryStore_UpdateClinicFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, &clinic.Clinic{
		Slug: "a",
		Name: "A Clinic",
		Tags: []string{"old-tag"},
	})

	err := s.UpdateClinicFields(ctx, "a", map[string]any{
		FieldTags:   []string{"missing-phone"},
		FieldScores: clinic.Scores{SEO: 40, Severity: 85, Engagement: 10},
	})
	require.NoError(t, err)

	got, err := s.GetClinic(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"missing-phone"}, got.Tags)
	assert.Equal(t, 85, got.Scores.Severity)
	assert.Equal(t, "A Clinic", got.Name, "profile fields untouched")

	// Overwriting with an empty slice clears the field.
	require.NoError(t, s.UpdateClinicFields(ctx, "a", map[string]any{FieldTags: []string{}}))
	got, err = s.GetClinic(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got.Tags)
}

func TestMemoryStore_UpdateUnknownField(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, &clinic.Clinic{Slug: "a"})

	err := s.UpdateClinicFields(ctx, "a", map[string]any{"name": "hijack"})
	assert.Error(t, err, "profile fields are not writable through the engine")

	err = s.UpdateClinicFields(ctx, "missing", map[string]any{FieldTags: []string{}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_BatchWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s,
		&clinic.Clinic{Slug: "a"},
		&clinic.Clinic{Slug: "b"},
	)

	err := s.BatchWrite(ctx, []Update{
		{Slug: "a", Fields: map[string]any{FieldTags: []string{"x"}}},
		{Slug: "b", Fields: map[string]any{FieldTags: []string{"y"}}},
	})
	require.NoError(t, err)

	a, _ := s.GetClinic(ctx, "a")
	b, _ := s.GetClinic(ctx, "b")
	assert.Equal(t, []string{"x"}, a.Tags)
	assert.Equal(t, []string{"y"}, b.Tags)
}

func TestMemoryStore_AtomicIncrement(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, &clinic.Clinic{Slug: "a", Streaks: []clinic.Streak{{Type: "weekly-engagement"}}})

	field := StreakCountField("weekly-engagement")
	n, err := s.AtomicIncrement(ctx, "a", field, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.AtomicIncrement(ctx, "a", field, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.AtomicIncrement(ctx, "a", field, -2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// The counter overlays the stored streak document on read.
	_, err = s.AtomicIncrement(ctx, "a", field, 5)
	require.NoError(t, err)
	got, err := s.GetClinic(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 5, got.StreakOf("weekly-engagement").Count)
}

func TestMemoryStore_AtomicArrayUnion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, &clinic.Clinic{Slug: "a"})

	require.NoError(t, s.AtomicArrayUnion(ctx, "a", FieldBadges, "b-one"))
	require.NoError(t, s.AtomicArrayUnion(ctx, "a", FieldBadges, "b-one", "a-two"))

	got, err := s.GetClinic(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a-two", "b-one"}, got.Badges, "deduplicated and sorted")
}

func TestMemoryStore_AlertIndex(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	older := clinic.Alert{ID: "a1", Type: "premium_not_indexed", ClinicSlug: "a", CreatedAt: now.Add(-time.Hour)}
	newer := clinic.Alert{ID: "a2", Type: "verification_expired", ClinicSlug: "b", CreatedAt: now}
	require.NoError(t, s.IndexActiveAlert(ctx, older))
	require.NoError(t, s.IndexActiveAlert(ctx, newer))

	active, err := s.ActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a2", active[0].ID, "newest first")

	ts := now.Add(time.Hour)
	older.ResolvedAt = &ts
	require.NoError(t, s.MoveAlertToResolved(ctx, older))

	active, err = s.ActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a2", active[0].ID)

	resolved, err := s.ResolvedAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "a1", resolved[0].ID)
}

func TestFilter_Matches(t *testing.T) {
	c := &clinic.Clinic{Slug: "a", Status: clinic.StatusActive, Tier: clinic.TierPremium}

	assert.True(t, Filter{}.Matches(c))
	assert.True(t, Filter{Status: clinic.StatusActive}.Matches(c))
	assert.False(t, Filter{Status: clinic.StatusClosed}.Matches(c))
	assert.True(t, Filter{Tier: clinic.TierPremium}.Matches(c))
	assert.False(t, Filter{Tier: clinic.TierFree}.Matches(c))
	assert.True(t, Filter{Slugs: []string{"a", "b"}}.Matches(c))
	assert.False(t, Filter{Slugs: []string{"b"}}.Matches(c))
}
