// Package events publishes engine outcomes (alert lifecycle changes, streak
// rewards) for the downstream messaging subsystem. Delivery itself (email,
// SMS) lives outside this codebase; the engine only hands off events at
// this boundary.
package events

import (
	"time"

	"github.com/medipoint/clinicpulse/internal/clinic"
	"github.com/medipoint/clinicpulse/internal/streaks"
)

// Event kinds.
const (
	KindAlertCreated  = "alert.created"
	KindAlertResolved = "alert.resolved"
	KindStreakReward  = "streak.reward"
)

// Envelope is the wire format for every published event. Exactly one of
// Alert or Reward is set, according to Kind.
type Envelope struct {
	Kind       string               `json:"kind"`
	ClinicSlug string               `json:"clinic_slug"`
	EventTS    int64                `json:"event_ts"`
	Alert      *clinic.Alert        `json:"alert,omitempty"`
	Reward     *streaks.RewardEvent `json:"reward,omitempty"`
}

// NewAlertEvent wraps an alert lifecycle change.
func NewAlertEvent(kind string, a clinic.Alert) Envelope {
	return Envelope{
		Kind:       kind,
		ClinicSlug: a.ClinicSlug,
		EventTS:    time.Now().Unix(),
		Alert:      &a,
	}
}

// NewRewardEvent wraps a streak reward grant.
func NewRewardEvent(r streaks.RewardEvent) Envelope {
	return Envelope{
		Kind:       KindStreakReward,
		ClinicSlug: r.ClinicSlug,
		EventTS:    time.Now().Unix(),
		Reward:     &r,
	}
}
