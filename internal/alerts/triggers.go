// Package alerts owns the alert lifecycle: a trigger table of boolean
// conditions over the clinic, and a manager that walks each (clinic, trigger)
// pair through NONE -> ACTIVE -> RESOLVED. Triggers reuse the same predicate
// mechanism as tag rules but feed a separate consumer: tags reconcile away
// silently, alerts are incident records that resolve but never disappear.
package alerts

import (
	"fmt"
	"time"

	"github.com/medipoint/clinicpulse/internal/clinic"
)

// Trigger maps a condition over the clinic to a persistent alert type.
// Condition must be pure; triggers are independent of one another.
type Trigger struct {
	Type      string
	Severity  string
	Condition func(c *clinic.Clinic, now time.Time) bool
	Title     func(c *clinic.Clinic) string
	Message   func(c *clinic.Clinic) string
}

const verificationMaxAge = 365 * 24 * time.Hour

// Triggers is the built-in trigger table. Ghost clinics intentionally have
// no trigger: that signal stays a tag only.
var Triggers = []Trigger{
	{
		Type:     "premium_not_indexed",
		Severity: clinic.SeverityHigh,
		Condition: func(c *clinic.Clinic, now time.Time) bool {
			return c.Tier == clinic.TierPremium && !c.Indexed
		},
		Title: func(c *clinic.Clinic) string {
			return fmt.Sprintf("Premium listing %s is not indexed", c.Name)
		},
		Message: func(c *clinic.Clinic) string {
			return fmt.Sprintf("%s pays for premium placement but search engines have not indexed the listing. Indexing issues on paid accounts need manual follow-up.", c.Name)
		},
	},
	{
		Type:     "verification_expired",
		Severity: clinic.SeverityMedium,
		Condition: func(c *clinic.Clinic, now time.Time) bool {
			return c.VerifiedAt != nil && now.Sub(*c.VerifiedAt) > verificationMaxAge
		},
		Title: func(c *clinic.Clinic) string {
			return fmt.Sprintf("Verification expired for %s", c.Name)
		},
		Message: func(c *clinic.Clinic) string {
			return fmt.Sprintf("%s was last verified over a year ago and needs re-verification.", c.Name)
		},
	},
	{
		Type:     "profile_incomplete_premium",
		Severity: clinic.SeverityMedium,
		Condition: func(c *clinic.Clinic, now time.Time) bool {
			if c.Tier != clinic.TierPremium {
				return false
			}
			return c.Description == nil || *c.Description == "" || len(c.Services) == 0
		},
		Title: func(c *clinic.Clinic) string {
			return fmt.Sprintf("Premium profile %s is incomplete", c.Name)
		},
		Message: func(c *clinic.Clinic) string {
			return fmt.Sprintf("%s is on the premium tier with an incomplete profile (missing description or services). Premium accounts expect onboarding help.", c.Name)
		},
	},
}
