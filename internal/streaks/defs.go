// Package streaks tracks consecutive-period conditions per clinic and hands
// out one-time rewards at configured thresholds. Reset-on-miss and
// persist-on-miss streaks share a single transition function; the behavior
// difference is a flag on the definition, not a separate code path.
package streaks

import (
	"strconv"
	"time"

	"github.com/medipoint/clinicpulse/internal/clinic"
)

// Periods a streak can be checked on.
const (
	PeriodDaily  = "daily"
	PeriodWeekly = "weekly"
)

// Reward is a one-time badge grant at a streak threshold.
type Reward struct {
	Badge  string
	Points int
}

// Definition configures one streak type.
type Definition struct {
	Type     string
	Period   string
	MaxCount int

	// ResetOnMiss controls the miss transition: true zeroes the count,
	// false only deactivates it. Persist-on-miss suits conditions with
	// flaky upstream signals (indexing) where a dip should not erase
	// long-run progress.
	ResetOnMiss bool

	Rewards map[int]Reward

	// Check evaluates the streak condition for the period ending at now.
	// lastUpdated is the previous check time (zero on first check).
	Check func(c *clinic.Clinic, m clinic.Metrics, lastUpdated, now time.Time) bool
}

const freshProfileMaxAge = 30 * 24 * time.Hour

// Definitions is the built-in streak table.
var Definitions = []Definition{
	{
		Type:        "weekly-engagement",
		Period:      PeriodWeekly,
		MaxCount:    52,
		ResetOnMiss: true,
		Rewards: map[int]Reward{
			4:  {Badge: "engagement-bronze", Points: 50},
			12: {Badge: "engagement-silver", Points: 150},
			26: {Badge: "engagement-gold", Points: 400},
		},
		Check: func(c *clinic.Clinic, m clinic.Metrics, lastUpdated, now time.Time) bool {
			return m.Clicks > 0 || m.Calls > 0
		},
	},
	{
		Type:        "indexed-uptime",
		Period:      PeriodWeekly,
		MaxCount:    104,
		ResetOnMiss: false,
		Rewards: map[int]Reward{
			8:  {Badge: "index-steady", Points: 100},
			52: {Badge: "index-anchor", Points: 500},
		},
		Check: func(c *clinic.Clinic, m clinic.Metrics, lastUpdated, now time.Time) bool {
			return c.Indexed
		},
	},
	{
		Type:        "fresh-profile",
		Period:      PeriodDaily,
		MaxCount:    365,
		ResetOnMiss: true,
		Rewards: map[int]Reward{
			30: {Badge: "profile-curator", Points: 100},
			90: {Badge: "profile-editor", Points: 250},
		},
		Check: func(c *clinic.Clinic, m clinic.Metrics, lastUpdated, now time.Time) bool {
			return c.ProfileUpdatedAt != nil && now.Sub(*c.ProfileUpdatedAt) <= freshProfileMaxAge
		},
	},
}

// BadgeKey is the stable identifier recorded in the clinic's badge set for a
// (streak type, count) reward. Checking it before granting makes rewards
// exactly-once per clinic.
func BadgeKey(streakType string, count int) string {
	return streakType + ":" + strconv.Itoa(count)
}
