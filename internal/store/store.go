// Package store provides access to the clinic document store. The engine
// talks to the Store interface only; implementations exist for Redis (the
// managed store) and in-memory (tests, local dry runs).
package store

import (
	"context"
	"errors"

	"github.com/medipoint/clinicpulse/internal/clinic"
)

// ErrNotFound is returned when a clinic does not exist in the store.
var ErrNotFound = errors.New("clinic not found")

// Derived-field names accepted by UpdateClinicFields and BatchWrite.
const (
	FieldTags        = "tags"
	FieldSuggestions = "suggestions"
	FieldAlerts      = "alerts"
	FieldStreaks     = "streaks"
	FieldScores      = "scores"
	FieldBadges      = "badges"
)

// Filter narrows ListClinics results. Zero values match everything.
type Filter struct {
	Status string
	Tier   string
	Slugs  []string
}

// Matches reports whether the clinic passes the filter.
func (f Filter) Matches(c *clinic.Clinic) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Tier != "" && c.Tier != f.Tier {
		return false
	}
	if len(f.Slugs) > 0 {
		found := false
		for _, s := range f.Slugs {
			if s == c.Slug {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Update is one entry in a BatchWrite: a partial-field overwrite for a clinic.
type Update struct {
	Slug   string
	Fields map[string]any
}

// Store is the document-store contract the engine depends on. Writes of
// derived fields are full-field overwrites (idempotent given the same
// inputs); streak counters and badge sets go through the atomic primitives
// so overlapping passes cannot lose increments.
type Store interface {
	GetClinic(ctx context.Context, slug string) (*clinic.Clinic, error)
	ListClinics(ctx context.Context, f Filter) ([]*clinic.Clinic, error)
	PutClinic(ctx context.Context, c *clinic.Clinic) error
	UpdateClinicFields(ctx context.Context, slug string, fields map[string]any) error
	BatchWrite(ctx context.Context, updates []Update) error

	// AtomicIncrement adds delta to a numeric per-clinic field and returns
	// the new value. Safe under concurrent passes.
	AtomicIncrement(ctx context.Context, slug, field string, delta int64) (int64, error)

	// AtomicArrayUnion adds values to a per-clinic set field, ignoring
	// values already present. Safe under concurrent passes.
	AtomicArrayUnion(ctx context.Context, slug, field string, values ...string) error

	// Global alert index: a derived projection keyed by alert ID. Entries
	// are upserted per-key so concurrent clinics never clobber each other.
	IndexActiveAlert(ctx context.Context, a clinic.Alert) error
	MoveAlertToResolved(ctx context.Context, a clinic.Alert) error
	ActiveAlerts(ctx context.Context) ([]clinic.Alert, error)
	ResolvedAlerts(ctx context.Context) ([]clinic.Alert, error)

	Close() error
}

// StreakCountField returns the hash field holding the atomic counter for a
// streak type.
func StreakCountField(streakType string) string {
	return "streak:" + streakType + ":count"
}

// StreakTotalField returns the hash field holding the atomic lifetime-earned
// counter for a streak type.
func StreakTotalField(streakType string) string {
	return "streak:" + streakType + ":total"
}
