// Package rules holds the declarative tag-rule table and the evaluator that
// runs it. Rules are value objects evaluated uniformly in table order; adding
// a rule means adding a table entry, never touching the evaluator.
package rules

import (
	"fmt"
	"time"

	"github.com/medipoint/clinicpulse/internal/clinic"
)

// Rule is one entry in the tag-rule table. Match must be a pure function of
// its inputs with no side effects.
type Rule struct {
	ID           string
	Name         string
	Severity     string
	Category     string // "profile", "seo", "engagement"
	Action       string
	RelatedField string
	Message      func(c *clinic.Clinic, m clinic.Metrics) string
	Match        func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool
}

const (
	staleContentDays     = 180
	ghostWindowDays      = 90
	minDescriptionLen    = 40
	minPhotos            = 3
	lowEngagementMinImpr = 200
	lowEngagementCTR     = 0.01
	trafficDropRatio     = 0.5
	trafficDropMinPrev   = 20
)

// Table is the engine's rule configuration surface, evaluated in order.
// Suggestion display order follows this table.
var Table = []Rule{
	{
		ID:           "ghost-clinic",
		Name:         "Ghost clinic",
		Severity:     clinic.SeverityCritical,
		Category:     "engagement",
		Action:       "review_listing",
		RelatedField: "metrics",
		Message: func(c *clinic.Clinic, m clinic.Metrics) string {
			return fmt.Sprintf("%s is active but received no clicks or calls in the last %d days. The listing may be invisible or abandoned.", c.Name, m.WindowDays)
		},
		Match: func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool {
			return c.Status == clinic.StatusActive &&
				m.Clicks == 0 && m.Calls == 0 &&
				c.AgeDays(now) >= ghostWindowDays
		},
	},
	{
		ID:           "premium-not-indexed",
		Name:         "Premium listing not indexed",
		Severity:     clinic.SeverityHigh,
		Category:     "seo",
		Action:       "request_indexing",
		RelatedField: "indexed",
		Message: func(c *clinic.Clinic, m clinic.Metrics) string {
			return fmt.Sprintf("%s pays for premium placement but is not indexed by search engines.", c.Name)
		},
		Match: func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool {
			return c.Tier == clinic.TierPremium && !m.Indexed
		},
	},
	{
		ID:           "missing-phone",
		Name:         "Missing phone number",
		Severity:     clinic.SeverityHigh,
		Category:     "profile",
		Action:       "add_phone",
		RelatedField: "phone",
		Message: func(c *clinic.Clinic, m clinic.Metrics) string {
			return "No phone number on file. Patients cannot call directly from the listing."
		},
		Match: func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool {
			return c.Phone == nil || *c.Phone == ""
		},
	},
	{
		ID:           "unverified-listing",
		Name:         "Listing never verified",
		Severity:     clinic.SeverityHigh,
		Category:     "profile",
		Action:       "verify_listing",
		RelatedField: "verified_at",
		Message: func(c *clinic.Clinic, m clinic.Metrics) string {
			return fmt.Sprintf("%s has never completed verification. Unverified listings rank lower and show a warning badge.", c.Name)
		},
		Match: func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool {
			return c.VerifiedAt == nil
		},
	},
	{
		ID:           "missing-description",
		Name:         "Missing or thin description",
		Severity:     clinic.SeverityMedium,
		Category:     "profile",
		Action:       "write_description",
		RelatedField: "description",
		Message: func(c *clinic.Clinic, m clinic.Metrics) string {
			return fmt.Sprintf("The description is missing or under %d characters. Longer descriptions convert better and index better.", minDescriptionLen)
		},
		Match: func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool {
			return c.Description == nil || len(*c.Description) < minDescriptionLen
		},
	},
	{
		ID:           "no-services-listed",
		Name:         "No services listed",
		Severity:     clinic.SeverityMedium,
		Category:     "profile",
		Action:       "add_services",
		RelatedField: "services",
		Message: func(c *clinic.Clinic, m clinic.Metrics) string {
			return "No services are listed. Service entries drive category search placement."
		},
		Match: func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool {
			return len(c.Services) == 0
		},
	},
	{
		ID:           "incomplete-seo",
		Name:         "Incomplete SEO metadata",
		Severity:     clinic.SeverityMedium,
		Category:     "seo",
		Action:       "complete_metadata",
		RelatedField: "meta_title",
		Message: func(c *clinic.Clinic, m clinic.Metrics) string {
			return "Meta title or meta description is missing, hurting search snippets."
		},
		Match: func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool {
			return c.MetaTitle == nil || *c.MetaTitle == "" ||
				c.MetaDescription == nil || *c.MetaDescription == ""
		},
	},
	{
		ID:           "low-engagement",
		Name:         "Low click-through rate",
		Severity:     clinic.SeverityMedium,
		Category:     "engagement",
		Action:       "improve_listing",
		RelatedField: "metrics",
		Message: func(c *clinic.Clinic, m clinic.Metrics) string {
			return fmt.Sprintf("%d impressions but a %.1f%% click-through rate. The listing is seen but not chosen.", m.Impressions, m.CTR()*100)
		},
		Match: func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool {
			return m.Impressions >= lowEngagementMinImpr && m.CTR() < lowEngagementCTR
		},
	},
	{
		ID:           "declining-traffic",
		Name:         "Declining traffic",
		Severity:     clinic.SeverityMedium,
		Category:     "engagement",
		Action:       "review_campaigns",
		RelatedField: "metrics",
		Message: func(c *clinic.Clinic, m clinic.Metrics) string {
			return fmt.Sprintf("Clicks dropped from %d to %d versus the previous window.", m.PrevClicks, m.Clicks)
		},
		Match: func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool {
			return m.PrevClicks >= trafficDropMinPrev &&
				float64(m.Clicks) < float64(m.PrevClicks)*trafficDropRatio
		},
	},
	{
		ID:           "missing-photos",
		Name:         "Too few photos",
		Severity:     clinic.SeverityLow,
		Category:     "profile",
		Action:       "upload_photos",
		RelatedField: "photo_count",
		Message: func(c *clinic.Clinic, m clinic.Metrics) string {
			return fmt.Sprintf("Only %d photo(s) uploaded. Listings with %d+ photos get measurably more clicks.", c.PhotoCount, minPhotos)
		},
		Match: func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool {
			return c.PhotoCount < minPhotos
		},
	},
	{
		ID:           "no-keywords",
		Name:         "No tracked keywords",
		Severity:     clinic.SeverityLow,
		Category:     "seo",
		Action:       "add_keywords",
		RelatedField: "keywords",
		Message: func(c *clinic.Clinic, m clinic.Metrics) string {
			return "No keywords are tracked for this listing yet."
		},
		Match: func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool {
			return len(c.Keywords) == 0
		},
	},
	{
		ID:           "stale-content",
		Name:         "Stale profile content",
		Severity:     clinic.SeverityLow,
		Category:     "profile",
		Action:       "refresh_profile",
		RelatedField: "profile_updated_at",
		Message: func(c *clinic.Clinic, m clinic.Metrics) string {
			return fmt.Sprintf("The profile has not been updated in over %d days.", staleContentDays)
		},
		Match: func(c *clinic.Clinic, m clinic.Metrics, now time.Time) bool {
			return c.ProfileUpdatedAt != nil &&
				now.Sub(*c.ProfileUpdatedAt) > staleContentDays*24*time.Hour
		},
	},
}

// SeverityOf returns the severity of a rule by tag ID, or "" if unknown.
func SeverityOf(tagID string) string {
	for i := range Table {
		if Table[i].ID == tagID {
			return Table[i].Severity
		}
	}
	return ""
}

// suggestionType maps a rule severity to the suggestion display type.
func suggestionType(severity string) string {
	switch severity {
	case clinic.SeverityCritical:
		return "critical"
	case clinic.SeverityHigh, clinic.SeverityMedium:
		return "warning"
	default:
		return "tip"
	}
}
