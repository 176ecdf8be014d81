package rules

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medipoint/clinicpulse/internal/clinic"
)

// Result is the outcome of evaluating the rule table against one clinic.
// Matched is a set of tag IDs; Suggestions preserves table order for stable
// display.
type Result struct {
	Matched     map[string]bool
	Suggestions []clinic.Suggestion
}

// MatchedList returns the matched tag IDs in table order.
func (r Result) MatchedList() []string {
	out := make([]string, 0, len(r.Matched))
	for i := range Table {
		if r.Matched[Table[i].ID] {
			out = append(out, Table[i].ID)
		}
	}
	return out
}

// Evaluator runs a rule table against clinics. The zero value is not usable;
// construct with NewEvaluator.
type Evaluator struct {
	table  []Rule
	logger *slog.Logger
}

// NewEvaluator creates an evaluator over the built-in rule table.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	return NewEvaluatorWithTable(Table, logger)
}

// NewEvaluatorWithTable creates an evaluator over a custom table (tests).
func NewEvaluatorWithTable(table []Rule, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{table: table, logger: logger}
}

// Evaluate runs every rule in table order against the clinic and metrics
// snapshot. A rule that panics is logged and skipped; the remaining rules
// still run. Each matched rule yields exactly one suggestion.
func (e *Evaluator) Evaluate(c *clinic.Clinic, m clinic.Metrics, now time.Time) Result {
	res := Result{Matched: make(map[string]bool)}

	for i := range e.table {
		rule := &e.table[i]
		matched, err := e.safeMatch(rule, c, m, now)
		if err != nil {
			e.logger.Warn("rule evaluation failed, skipping",
				"rule", rule.ID,
				"clinic", c.Slug,
				"error", err,
			)
			continue
		}
		if !matched {
			continue
		}

		res.Matched[rule.ID] = true
		res.Suggestions = append(res.Suggestions, clinic.Suggestion{
			ID:           uuid.NewString(),
			TagID:        rule.ID,
			Type:         suggestionType(rule.Severity),
			Message:      rule.Message(c, m),
			Action:       rule.Action,
			RelatedField: rule.RelatedField,
			CreatedAt:    now,
		})
	}
	return res
}

// safeMatch runs one predicate, converting a panic into an error so a broken
// rule cannot take down the pass.
func (e *Evaluator) safeMatch(rule *Rule, c *clinic.Clinic, m clinic.Metrics, now time.Time) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule %s panicked: %v", rule.ID, r)
		}
	}()
	return rule.Match(c, m, now), nil
}
