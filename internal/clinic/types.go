// Package clinic defines the entity model shared by the signal engine:
// the clinic record, its derived tag/suggestion/alert/streak/score fields,
// and the point-in-time metrics snapshot rules evaluate against.
package clinic

import "time"

// Severity levels for tag rules and alerts, ordered from least to most severe.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Subscription tiers.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// Listing statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusClosed    = "closed"
)

// Clinic is a directory listing. Profile fields are owned by the wider
// application; the engine reads them and writes only the derived fields
// (Tags, Suggestions, Alerts, Streaks, Badges, Scores).
//
// Optional profile fields are pointers so rule predicates can distinguish
// "absent" from "empty".
type Clinic struct {
	Slug   string `json:"slug"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Tier   string `json:"tier"`

	Phone            *string    `json:"phone,omitempty"`
	Description      *string    `json:"description,omitempty"`
	Services         []string   `json:"services,omitempty"`
	PhotoCount       int        `json:"photo_count"`
	Keywords         []string   `json:"keywords,omitempty"`
	Indexed          bool       `json:"indexed"`
	MetaTitle        *string    `json:"meta_title,omitempty"`
	MetaDescription  *string    `json:"meta_description,omitempty"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	ProfileUpdatedAt *time.Time `json:"profile_updated_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`

	Tags        []string     `json:"tags,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	Alerts      []Alert      `json:"alerts,omitempty"`
	Streaks     []Streak     `json:"streaks,omitempty"`
	Badges      []string     `json:"badges,omitempty"`
	Scores      Scores       `json:"scores"`
}

// Suggestion is an actionable recommendation derived 1:1 from a matched tag
// rule. It is regenerated on every pass; TagID links it back to the rule.
type Suggestion struct {
	ID           string    `json:"id"`
	TagID        string    `json:"tag_id"`
	Type         string    `json:"type"` // "critical", "warning", "tip"
	Message      string    `json:"message"`
	Action       string    `json:"action"`
	RelatedField string    `json:"related_field,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Alert is a lifecycle-tracked incident record. At most one alert per
// (clinic, Type) may have a nil ResolvedAt at any time. Resolved alerts are
// kept, never deleted.
type Alert struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Severity   string         `json:"severity"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	ClinicSlug string         `json:"clinic_slug"`
	Data       map[string]any `json:"data,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// Resolved reports whether the alert has been resolved.
func (a *Alert) Resolved() bool { return a.ResolvedAt != nil }

// Streak tracks consecutive periods in which a check condition held.
// BestCount is monotonic non-decreasing. TotalEarned counts every period the
// condition held, across resets.
type Streak struct {
	Type        string     `json:"type"`
	Count       int        `json:"count"`
	Active      bool       `json:"active"`
	LastUpdated time.Time  `json:"last_updated"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	BestCount   int        `json:"best_count"`
	TotalEarned int        `json:"total_earned"`
}

// Scores holds the derived 0-100 scores, recomputed in full on every pass.
type Scores struct {
	SEO        int       `json:"seo"`
	Severity   int       `json:"severity"`
	Engagement int       `json:"engagement"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Metrics is a point-in-time snapshot from the metrics provider covering the
// trailing window. A zero value is a valid "no data" snapshot; the engine
// degrades to it when the provider is unavailable.
type Metrics struct {
	WindowDays  int  `json:"window_days"`
	Clicks      int  `json:"clicks"`
	Calls       int  `json:"calls"`
	Impressions int  `json:"impressions"`
	PrevClicks  int  `json:"prev_clicks"` // clicks in the window before this one
	Indexed     bool `json:"indexed"`
}

// CTR returns the click-through rate, or 0 when there are no impressions.
func (m Metrics) CTR() float64 {
	if m.Impressions == 0 {
		return 0
	}
	return float64(m.Clicks) / float64(m.Impressions)
}

// ActiveAlert returns the clinic's unresolved alert of the given type, or nil.
func (c *Clinic) ActiveAlert(alertType string) *Alert {
	for i := range c.Alerts {
		if c.Alerts[i].Type == alertType && !c.Alerts[i].Resolved() {
			return &c.Alerts[i]
		}
	}
	return nil
}

// StreakOf returns the clinic's streak of the given type, or nil.
func (c *Clinic) StreakOf(streakType string) *Streak {
	for i := range c.Streaks {
		if c.Streaks[i].Type == streakType {
			return &c.Streaks[i]
		}
	}
	return nil
}

// HasTag reports whether the clinic currently carries the given tag.
func (c *Clinic) HasTag(tagID string) bool {
	for _, t := range c.Tags {
		if t == tagID {
			return true
		}
	}
	return false
}

// HasBadge reports whether the badge key has already been earned.
func (c *Clinic) HasBadge(key string) bool {
	for _, b := range c.Badges {
		if b == key {
			return true
		}
	}
	return false
}

// AgeDays returns the number of whole days since the clinic was onboarded,
// relative to now.
func (c *Clinic) AgeDays(now time.Time) int {
	if c.CreatedAt.IsZero() {
		return 0
	}
	return int(now.Sub(c.CreatedAt).Hours() / 24)
}
