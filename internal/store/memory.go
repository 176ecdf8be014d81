package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/medipoint/clinicpulse/internal/clinic"
)

// MemoryStore is an in-memory Store with the same semantics as the Redis
// implementation. Used by tests.
type MemoryStore struct {
	mu       sync.Mutex
	clinics  map[string]*clinic.Clinic
	counters map[string]map[string]int64 // slug -> field -> value
	sets     map[string]map[string]map[string]bool
	active   map[string]clinic.Alert
	resolved map[string]clinic.Alert
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clinics:  make(map[string]*clinic.Clinic),
		counters: make(map[string]map[string]int64),
		sets:     make(map[string]map[string]map[string]bool),
		active:   make(map[string]clinic.Alert),
		resolved: make(map[string]clinic.Alert),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// deepCopy round-trips through JSON so callers never share state with the
// store, matching the isolation a remote store gives.
func deepCopy(c *clinic.Clinic) *clinic.Clinic {
	b, _ := json.Marshal(c)
	var out clinic.Clinic
	_ = json.Unmarshal(b, &out)
	return &out
}

// GetClinic returns a copy of the stored clinic with counter and badge-set
// overlays applied.
func (s *MemoryStore) GetClinic(ctx context.Context, slug string) (*clinic.Clinic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(slug)
}

func (s *MemoryStore) getLocked(slug string) (*clinic.Clinic, error) {
	stored, ok := s.clinics[slug]
	if !ok {
		return nil, ErrNotFound
	}
	c := deepCopy(stored)

	for i := range c.Streaks {
		if v, ok := s.counters[slug][StreakCountField(c.Streaks[i].Type)]; ok {
			c.Streaks[i].Count = int(v)
		}
		if v, ok := s.counters[slug][StreakTotalField(c.Streaks[i].Type)]; ok {
			c.Streaks[i].TotalEarned = int(v)
		}
	}

	var badges []string
	for b := range s.sets[slug][FieldBadges] {
		badges = append(badges, b)
	}
	sort.Strings(badges)
	c.Badges = badges
	return c, nil
}

// ListClinics returns copies of all clinics passing the filter, ordered by slug.
func (s *MemoryStore) ListClinics(ctx context.Context, f Filter) ([]*clinic.Clinic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slugs := make([]string, 0, len(s.clinics))
	for slug := range s.clinics {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	var out []*clinic.Clinic
	for _, slug := range slugs {
		c, err := s.getLocked(slug)
		if err != nil {
			return nil, err
		}
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// PutClinic stores the full clinic document.
func (s *MemoryStore) PutClinic(ctx context.Context, c *clinic.Clinic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clinics[c.Slug] = deepCopy(c)
	for _, st := range c.Streaks {
		s.setCounterLocked(c.Slug, StreakCountField(st.Type), int64(st.Count))
		s.setCounterLocked(c.Slug, StreakTotalField(st.Type), int64(st.TotalEarned))
	}
	for _, b := range c.Badges {
		s.addToSetLocked(c.Slug, FieldBadges, b)
	}
	return nil
}

func (s *MemoryStore) setCounterLocked(slug, field string, v int64) {
	if s.counters[slug] == nil {
		s.counters[slug] = make(map[string]int64)
	}
	s.counters[slug][field] = v
}

func (s *MemoryStore) addToSetLocked(slug, field, value string) {
	if s.sets[slug] == nil {
		s.sets[slug] = make(map[string]map[string]bool)
	}
	if s.sets[slug][field] == nil {
		s.sets[slug][field] = make(map[string]bool)
	}
	s.sets[slug][field][value] = true
}

// UpdateClinicFields overwrites the named derived fields on the stored clinic.
func (s *MemoryStore) UpdateClinicFields(ctx context.Context, slug string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(slug, fields)
}

func (s *MemoryStore) updateLocked(slug string, fields map[string]any) error {
	stored, ok := s.clinics[slug]
	if !ok {
		return fmt.Errorf("updating clinic %s: %w", slug, ErrNotFound)
	}
	for name, v := range fields {
		// Round-trip through JSON so the stored value is decoupled from the
		// caller's, mirroring the wire behavior of the Redis implementation.
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding clinic %s field %s: %w", slug, name, err)
		}
		switch name {
		case FieldTags:
			stored.Tags = nil
			err = json.Unmarshal(b, &stored.Tags)
		case FieldSuggestions:
			stored.Suggestions = nil
			err = json.Unmarshal(b, &stored.Suggestions)
		case FieldAlerts:
			stored.Alerts = nil
			err = json.Unmarshal(b, &stored.Alerts)
		case FieldStreaks:
			stored.Streaks = nil
			err = json.Unmarshal(b, &stored.Streaks)
		case FieldScores:
			err = json.Unmarshal(b, &stored.Scores)
		default:
			return fmt.Errorf("updating clinic %s: unknown field %s", slug, name)
		}
		if err != nil {
			return fmt.Errorf("decoding clinic %s field %s: %w", slug, name, err)
		}
	}
	return nil
}

// BatchWrite applies several partial-field updates.
func (s *MemoryStore) BatchWrite(ctx context.Context, updates []Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		if err := s.updateLocked(u.Slug, u.Fields); err != nil {
			return err
		}
	}
	return nil
}

// AtomicIncrement adds delta to a numeric per-clinic field.
func (s *MemoryStore) AtomicIncrement(ctx context.Context, slug, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[slug] == nil {
		s.counters[slug] = make(map[string]int64)
	}
	s.counters[slug][field] += delta
	return s.counters[slug][field], nil
}

// AtomicArrayUnion adds values to a per-clinic set field.
func (s *MemoryStore) AtomicArrayUnion(ctx context.Context, slug, field string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range values {
		s.addToSetLocked(slug, field, v)
	}
	return nil
}

// IndexActiveAlert upserts the alert into the active index.
func (s *MemoryStore) IndexActiveAlert(ctx context.Context, a clinic.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[a.ID] = a
	return nil
}

// MoveAlertToResolved moves the alert from the active to the resolved index.
func (s *MemoryStore) MoveAlertToResolved(ctx context.Context, a clinic.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, a.ID)
	s.resolved[a.ID] = a
	return nil
}

// ActiveAlerts returns all alerts in the active index, newest first.
func (s *MemoryStore) ActiveAlerts(ctx context.Context) ([]clinic.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedAlerts(s.active), nil
}

// ResolvedAlerts returns all alerts in the resolved index, newest first.
func (s *MemoryStore) ResolvedAlerts(ctx context.Context) ([]clinic.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedAlerts(s.resolved), nil
}

func sortedAlerts(m map[string]clinic.Alert) []clinic.Alert {
	alerts := make([]clinic.Alert, 0, len(m))
	for _, a := range m {
		alerts = append(alerts, a)
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].ID < alerts[j].ID
		}
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	return alerts
}
