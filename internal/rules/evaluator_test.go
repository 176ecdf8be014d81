package rules

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/medipoint/clinicpulse/internal/clinic"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEvaluate_HealthyClinic(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e := NewEvaluator(testLogger())

	res := e.Evaluate(healthyClinic(now), healthyMetrics(), now)
	if len(res.Matched) != 0 {
		t.Errorf("expected no matches for healthy clinic, got %v", res.MatchedList())
	}
	if len(res.Suggestions) != 0 {
		t.Errorf("expected no suggestions, got %d", len(res.Suggestions))
	}
}

func TestEvaluate_EmptyClinic(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e := NewEvaluator(testLogger())

	c := &clinic.Clinic{
		Slug:      "bare",
		Name:      "Bare Clinic",
		Status:    clinic.StatusActive,
		Tier:      clinic.TierFree,
		CreatedAt: now.AddDate(0, -6, 0),
	}
	res := e.Evaluate(c, clinic.Metrics{WindowDays: 90}, now)

	want := []string{
		"ghost-clinic",
		"missing-phone",
		"unverified-listing",
		"missing-description",
		"no-services-listed",
		"incomplete-seo",
		"missing-photos",
		"no-keywords",
	}
	got := res.MatchedList()
	if len(got) != len(want) {
		t.Fatalf("matched = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("matched[%d] = %s, want %s (table order)", i, got[i], want[i])
		}
	}
}

func TestEvaluate_SuggestionPerMatch(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e := NewEvaluator(testLogger())

	c := healthyClinic(now)
	c.Phone = nil
	c.PhotoCount = 0

	res := e.Evaluate(c, healthyMetrics(), now)
	if len(res.Suggestions) != len(res.Matched) {
		t.Fatalf("suggestions = %d, matched = %d, want 1:1", len(res.Suggestions), len(res.Matched))
	}

	seen := make(map[string]bool)
	for _, s := range res.Suggestions {
		if !res.Matched[s.TagID] {
			t.Errorf("suggestion for unmatched tag %s", s.TagID)
		}
		if s.ID == "" {
			t.Error("suggestion missing ID")
		}
		if seen[s.ID] {
			t.Errorf("duplicate suggestion ID %s", s.ID)
		}
		seen[s.ID] = true
		if s.Message == "" || s.Action == "" {
			t.Errorf("suggestion %s missing message or action", s.TagID)
		}
		if !s.CreatedAt.Equal(now) {
			t.Errorf("suggestion CreatedAt = %v, want %v", s.CreatedAt, now)
		}
	}

	// missing-phone is high severity -> warning type.
	for _, s := range res.Suggestions {
		if s.TagID == "missing-phone" && s.Type != "warning" {
			t.Errorf("missing-phone suggestion type = %s, want warning", s.Type)
		}
		if s.TagID == "missing-photos" && s.Type != "tip" {
			t.Errorf("missing-photos suggestion type = %s, want tip", s.Type)
		}
	}
}

func TestEvaluate_PanickingRuleIsSkipped(t *testing.T) {
	now := time.Now()
	table := []Rule{
		{
			ID:       "exploding",
			Severity: clinic.SeverityHigh,
			Message:  func(c *clinic.Clinic, m clinic.Metrics) string { return "boom" },
			Match: func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool {
				panic("bad predicate")
			},
		},
		{
			ID:       "always",
			Severity: clinic.SeverityLow,
			Message:  func(c *clinic.Clinic, m clinic.Metrics) string { return "always on" },
			Match: func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool {
				return true
			},
		},
	}
	e := NewEvaluatorWithTable(table, testLogger())

	res := e.Evaluate(healthyClinic(now), healthyMetrics(), now)
	if res.Matched["exploding"] {
		t.Error("panicking rule must not match")
	}
	if !res.Matched["always"] {
		t.Error("rules after a panicking rule must still run")
	}
}
