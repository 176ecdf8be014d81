package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/medipoint/clinicpulse/internal/clinic"
)

// Key layout:
//
//	clinics                  set of clinic slugs
//	clinic:<slug>            hash: profile + one JSON value per derived field,
//	                         plus numeric streak counter fields
//	clinic:<slug>:badges     set of earned badge keys
//	alerts:active            hash: alert ID -> alert JSON
//	alerts:resolved          hash: alert ID -> alert JSON
const (
	clinicsKey        = "clinics"
	activeAlertsKey   = "alerts:active"
	resolvedAlertsKey = "alerts:resolved"
	profileField      = "profile"
)

// RedisStore implements Store on a Redis-backed document store. Each clinic
// is a hash with one JSON-encoded value per top-level field, so partial
// updates touch only the named fields and never the rest of the document.
type RedisStore struct {
	client *redis.Client
}

// OpenRedis connects to Redis at addr and verifies the connection.
func OpenRedis(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStore wraps an existing client (used by tests with miniature
// servers and by callers that manage the connection themselves).
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the underlying connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Client exposes the underlying connection for collaborators that share it
// (the metrics provider reads ingestion-owned keys on the same server).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func clinicKey(slug string) string { return "clinic:" + slug }

func setKey(slug, field string) string { return "clinic:" + slug + ":" + field }

// profileOf returns a copy of c with derived fields stripped, for storage
// under the profile hash field.
func profileOf(c *clinic.Clinic) clinic.Clinic {
	p := *c
	p.Tags = nil
	p.Suggestions = nil
	p.Alerts = nil
	p.Streaks = nil
	p.Badges = nil
	p.Scores = clinic.Scores{}
	return p
}

// GetClinic loads and reassembles a clinic from its hash, counter fields and
// badge set.
func (s *RedisStore) GetClinic(ctx context.Context, slug string) (*clinic.Clinic, error) {
	raw, err := s.client.HGetAll(ctx, clinicKey(slug)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading clinic %s: %w", slug, err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}

	var c clinic.Clinic
	if doc, ok := raw[profileField]; ok {
		if err := json.Unmarshal([]byte(doc), &c); err != nil {
			return nil, fmt.Errorf("decoding clinic %s profile: %w", slug, err)
		}
	}
	c.Slug = slug

	if err := decodeField(raw, FieldTags, &c.Tags); err != nil {
		return nil, fmt.Errorf("decoding clinic %s tags: %w", slug, err)
	}
	if err := decodeField(raw, FieldSuggestions, &c.Suggestions); err != nil {
		return nil, fmt.Errorf("decoding clinic %s suggestions: %w", slug, err)
	}
	if err := decodeField(raw, FieldAlerts, &c.Alerts); err != nil {
		return nil, fmt.Errorf("decoding clinic %s alerts: %w", slug, err)
	}
	if err := decodeField(raw, FieldStreaks, &c.Streaks); err != nil {
		return nil, fmt.Errorf("decoding clinic %s streaks: %w", slug, err)
	}
	if err := decodeField(raw, FieldScores, &c.Scores); err != nil {
		return nil, fmt.Errorf("decoding clinic %s scores: %w", slug, err)
	}

	// The numeric counter fields are the source of truth for streak counts:
	// overlay them onto the decoded streak records.
	for i := range c.Streaks {
		if v, ok := raw[StreakCountField(c.Streaks[i].Type)]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				c.Streaks[i].Count = n
			}
		}
		if v, ok := raw[StreakTotalField(c.Streaks[i].Type)]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				c.Streaks[i].TotalEarned = n
			}
		}
	}

	badges, err := s.client.SMembers(ctx, setKey(slug, FieldBadges)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading clinic %s badges: %w", slug, err)
	}
	sort.Strings(badges)
	c.Badges = badges

	return &c, nil
}

func decodeField(raw map[string]string, field string, dst any) error {
	v, ok := raw[field]
	if !ok || v == "" {
		return nil
	}
	return json.Unmarshal([]byte(v), dst)
}

// ListClinics returns all clinics passing the filter, ordered by slug.
func (s *RedisStore) ListClinics(ctx context.Context, f Filter) ([]*clinic.Clinic, error) {
	slugs, err := s.client.SMembers(ctx, clinicsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing clinics: %w", err)
	}
	sort.Strings(slugs)

	var out []*clinic.Clinic
	for _, slug := range slugs {
		c, err := s.GetClinic(ctx, slug)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// PutClinic writes the full clinic document, registering the slug.
func (s *RedisStore) PutClinic(ctx context.Context, c *clinic.Clinic) error {
	fields, err := encodeClinic(c)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, clinicsKey, c.Slug)
	pipe.HSet(ctx, clinicKey(c.Slug), fields)
	if len(c.Badges) > 0 {
		members := make([]any, len(c.Badges))
		for i, b := range c.Badges {
			members[i] = b
		}
		pipe.SAdd(ctx, setKey(c.Slug, FieldBadges), members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing clinic %s: %w", c.Slug, err)
	}
	return nil
}

func encodeClinic(c *clinic.Clinic) (map[string]any, error) {
	fields := map[string]any{}

	profile := profileOf(c)
	doc, err := json.Marshal(&profile)
	if err != nil {
		return nil, fmt.Errorf("encoding clinic %s profile: %w", c.Slug, err)
	}
	fields[profileField] = string(doc)

	derived := map[string]any{
		FieldTags:        c.Tags,
		FieldSuggestions: c.Suggestions,
		FieldAlerts:      c.Alerts,
		FieldStreaks:     c.Streaks,
		FieldScores:      c.Scores,
	}
	for name, v := range derived {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding clinic %s %s: %w", c.Slug, name, err)
		}
		fields[name] = string(b)
	}

	for _, st := range c.Streaks {
		fields[StreakCountField(st.Type)] = st.Count
		fields[StreakTotalField(st.Type)] = st.TotalEarned
	}
	return fields, nil
}

// UpdateClinicFields overwrites the named fields, leaving all others intact.
func (s *RedisStore) UpdateClinicFields(ctx context.Context, slug string, fields map[string]any) error {
	encoded, err := encodeFields(slug, fields)
	if err != nil {
		return err
	}
	if len(encoded) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, clinicKey(slug), encoded).Err(); err != nil {
		return fmt.Errorf("updating clinic %s: %w", slug, err)
	}
	return nil
}

func encodeFields(slug string, fields map[string]any) (map[string]any, error) {
	encoded := make(map[string]any, len(fields))
	for name, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding clinic %s field %s: %w", slug, name, err)
		}
		encoded[name] = string(b)
	}
	return encoded, nil
}

// BatchWrite applies several partial-field updates in one pipeline.
func (s *RedisStore) BatchWrite(ctx context.Context, updates []Update) error {
	if len(updates) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, u := range updates {
		encoded, err := encodeFields(u.Slug, u.Fields)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, clinicKey(u.Slug), encoded)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch write (%d updates): %w", len(updates), err)
	}
	return nil
}

// AtomicIncrement adds delta to a numeric hash field via HINCRBY.
func (s *RedisStore) AtomicIncrement(ctx context.Context, slug, field string, delta int64) (int64, error) {
	n, err := s.client.HIncrBy(ctx, clinicKey(slug), field, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing %s.%s: %w", slug, field, err)
	}
	return n, nil
}

// AtomicArrayUnion adds values to a per-clinic set via SADD.
func (s *RedisStore) AtomicArrayUnion(ctx context.Context, slug, field string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	members := make([]any, len(values))
	for i, v := range values {
		members[i] = v
	}
	if err := s.client.SAdd(ctx, setKey(slug, field), members...).Err(); err != nil {
		return fmt.Errorf("union into %s.%s: %w", slug, field, err)
	}
	return nil
}

// IndexActiveAlert upserts the alert into the active index under its ID.
// HSET is create-if-absent-else-merge per key, so two clinics indexing their
// first alerts concurrently cannot race.
func (s *RedisStore) IndexActiveAlert(ctx context.Context, a clinic.Alert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding alert %s: %w", a.ID, err)
	}
	if err := s.client.HSet(ctx, activeAlertsKey, a.ID, string(b)).Err(); err != nil {
		return fmt.Errorf("indexing alert %s: %w", a.ID, err)
	}
	return nil
}

// MoveAlertToResolved removes the alert from the active index and upserts it
// into the resolved index in one pipeline.
func (s *RedisStore) MoveAlertToResolved(ctx context.Context, a clinic.Alert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding alert %s: %w", a.ID, err)
	}
	pipe := s.client.Pipeline()
	pipe.HDel(ctx, activeAlertsKey, a.ID)
	pipe.HSet(ctx, resolvedAlertsKey, a.ID, string(b))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("resolving alert %s in index: %w", a.ID, err)
	}
	return nil
}

// ActiveAlerts returns all alerts in the active index, newest first.
func (s *RedisStore) ActiveAlerts(ctx context.Context) ([]clinic.Alert, error) {
	return s.indexAlerts(ctx, activeAlertsKey)
}

// ResolvedAlerts returns all alerts in the resolved index, newest first.
func (s *RedisStore) ResolvedAlerts(ctx context.Context) ([]clinic.Alert, error) {
	return s.indexAlerts(ctx, resolvedAlertsKey)
}

func (s *RedisStore) indexAlerts(ctx context.Context, key string) ([]clinic.Alert, error) {
	raw, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading alert index %s: %w", key, err)
	}
	alerts := make([]clinic.Alert, 0, len(raw))
	for id, v := range raw {
		var a clinic.Alert
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, fmt.Errorf("decoding indexed alert %s: %w", id, err)
		}
		alerts = append(alerts, a)
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return strings.Compare(alerts[i].ID, alerts[j].ID) < 0
		}
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	return alerts, nil
}
