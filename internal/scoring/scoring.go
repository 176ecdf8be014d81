// Package scoring computes the derived 0-100 clinic scores. Every function
// here is pure and total: scores are recomputed in full from current tags
// and metrics each pass, never incrementally patched.
package scoring

import (
	"math"

	"github.com/medipoint/clinicpulse/internal/clinic"
	"github.com/medipoint/clinicpulse/internal/rules"
)

// Penalty per matched rule, by severity.
const (
	penaltyCritical = 25
	penaltyHigh     = 15
	penaltyMedium   = 10
	penaltyLow      = 5
)

// SeverityScore starts at 100 and subtracts a fixed penalty per matched rule
// by severity (critical -25, high -15, medium -10, low -5), floored at 0.
func SeverityScore(matched map[string]bool) int {
	score := 100
	for tagID := range matched {
		switch rules.SeverityOf(tagID) {
		case clinic.SeverityCritical:
			score -= penaltyCritical
		case clinic.SeverityHigh:
			score -= penaltyHigh
		case clinic.SeverityMedium:
			score -= penaltyMedium
		case clinic.SeverityLow:
			score -= penaltyLow
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

// SEOScore is a weighted sum of clamped component sub-scores:
//
//   - metadata completeness: 0-30
//   - indexing:              0-25
//   - keyword diversity:     0-25
//   - click-through:         0-20
func SEOScore(c *clinic.Clinic, m clinic.Metrics) int {
	score := 0.0

	// Metadata completeness: 10 for meta title, 10 for meta description,
	// 10 for a real profile description.
	if c.MetaTitle != nil && *c.MetaTitle != "" {
		score += 10
	}
	if c.MetaDescription != nil && *c.MetaDescription != "" {
		score += 10
	}
	if c.Description != nil && len(*c.Description) >= 40 {
		score += 10
	}

	// Indexing: all or nothing.
	if m.Indexed {
		score += 25
	}

	// Keyword diversity: 5 points per tracked keyword, capped.
	score += clamp(float64(len(c.Keywords))*5, 0, 25)

	// Click-through: full band at 5% CTR.
	score += clamp(m.CTR()/0.05*20, 0, 20)

	return int(math.Round(clamp(score, 0, 100)))
}

// EngagementScore blends click, call and impression volume over the window
// into a 0-100 score. Calls weigh heaviest: a call is the strongest intent
// signal the directory sees.
//
//   - calls:       0-45 (full band at 20 calls)
//   - clicks:      0-35 (full band at 100 clicks)
//   - impressions: 0-20 (full band at 1000 impressions)
func EngagementScore(m clinic.Metrics) int {
	score := clamp(float64(m.Calls)/20*45, 0, 45) +
		clamp(float64(m.Clicks)/100*35, 0, 35) +
		clamp(float64(m.Impressions)/1000*20, 0, 20)
	return int(math.Round(clamp(score, 0, 100)))
}

// Compute recomputes all score flavors for a clinic from the matched rule
// set and metrics snapshot.
func Compute(c *clinic.Clinic, m clinic.Metrics, matched map[string]bool) clinic.Scores {
	return clinic.Scores{
		SEO:        SEOScore(c, m),
		Severity:   SeverityScore(matched),
		Engagement: EngagementScore(m),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
