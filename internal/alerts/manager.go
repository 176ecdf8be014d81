package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medipoint/clinicpulse/internal/clinic"
	"github.com/medipoint/clinicpulse/internal/store"
)

// Action is a planned lifecycle transition.
type Action string

const (
	ActionCreate  Action = "create"
	ActionResolve Action = "resolve"
)

// Transition is one planned state change for a (clinic, trigger) pair.
// For resolves, AlertID names the currently active alert instance.
type Transition struct {
	Action   Action `json:"action"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	AlertID  string `json:"alert_id,omitempty"`
}

// Manager plans and applies alert lifecycle transitions. Planning is pure so
// dry runs report the exact decisions a live run would make; Apply performs
// the persistence side effects.
type Manager struct {
	triggers []Trigger
	store    store.Store
	logger   *slog.Logger
}

// NewManager creates a manager over the built-in trigger table.
func NewManager(s store.Store, logger *slog.Logger) *Manager {
	return NewManagerWithTriggers(Triggers, s, logger)
}

// NewManagerWithTriggers creates a manager over a custom trigger table (tests).
func NewManagerWithTriggers(triggers []Trigger, s store.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{triggers: triggers, store: s, logger: logger}
}

// Plan evaluates every trigger against the clinic and returns the
// transitions a live run would apply:
//
//	condition true,  no active alert  -> create
//	condition false, active alert     -> resolve
//	otherwise                         -> no-op
//
// A trigger whose condition panics is logged and skipped; the remaining
// triggers still run.
func (m *Manager) Plan(c *clinic.Clinic, now time.Time) []Transition {
	var plan []Transition
	for i := range m.triggers {
		trig := &m.triggers[i]

		matched, err := safeCondition(trig, c, now)
		if err != nil {
			m.logger.Warn("trigger condition failed, skipping",
				"trigger", trig.Type,
				"clinic", c.Slug,
				"error", err,
			)
			continue
		}

		active := c.ActiveAlert(trig.Type)
		switch {
		case matched && active == nil:
			plan = append(plan, Transition{
				Action:   ActionCreate,
				Type:     trig.Type,
				Severity: trig.Severity,
				Title:    trig.Title(c),
				Message:  trig.Message(c),
			})
		case !matched && active != nil:
			plan = append(plan, Transition{
				Action:  ActionResolve,
				Type:    trig.Type,
				AlertID: active.ID,
			})
		}
	}
	return plan
}

// Apply executes the planned transitions: it mutates the clinic's alert list
// in place and mirrors each change into the global alert index. It returns
// the created and resolved alerts so the caller can persist the list and
// publish events.
func (m *Manager) Apply(ctx context.Context, c *clinic.Clinic, plan []Transition, now time.Time) (created, resolved []clinic.Alert, err error) {
	for _, t := range plan {
		switch t.Action {
		case ActionCreate:
			// Guard again at apply time: the invariant is at most one
			// unresolved alert per (clinic, type).
			if c.ActiveAlert(t.Type) != nil {
				continue
			}
			a := clinic.Alert{
				ID:         uuid.NewString(),
				Type:       t.Type,
				Severity:   t.Severity,
				Title:      t.Title,
				Message:    t.Message,
				ClinicSlug: c.Slug,
				CreatedAt:  now,
			}
			c.Alerts = append(c.Alerts, a)
			if err := m.store.IndexActiveAlert(ctx, a); err != nil {
				return created, resolved, fmt.Errorf("indexing alert %s/%s: %w", c.Slug, t.Type, err)
			}
			created = append(created, a)

		case ActionResolve:
			a := c.ActiveAlert(t.Type)
			if a == nil {
				continue
			}
			ts := now
			a.ResolvedAt = &ts
			if err := m.store.MoveAlertToResolved(ctx, *a); err != nil {
				return created, resolved, fmt.Errorf("resolving alert %s/%s: %w", c.Slug, t.Type, err)
			}
			resolved = append(resolved, *a)
		}
	}
	return created, resolved, nil
}

func safeCondition(trig *Trigger, c *clinic.Clinic, now time.Time) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trigger %s panicked: %v", trig.Type, r)
		}
	}()
	return trig.Condition(c, now), nil
}
