package rules

import "sort"

// Diff is the result of reconciling a clinic's stored tags against the
// freshly matched rule set. It is the sole input deciding which alert
// transitions to attempt and which summary counters to bump.
type Diff struct {
	Added    []string
	Resolved []string
}

// Reconcile computes the set difference between the previously persisted
// tags and the currently matched tag IDs. Equality is exact by tag ID.
// Both output slices are sorted for deterministic summaries.
func Reconcile(previous []string, matched map[string]bool) Diff {
	prev := make(map[string]bool, len(previous))
	for _, t := range previous {
		prev[t] = true
	}

	var d Diff
	for id := range matched {
		if !prev[id] {
			d.Added = append(d.Added, id)
		}
	}
	for _, t := range previous {
		if !matched[t] {
			d.Resolved = append(d.Resolved, t)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Resolved)
	return d
}
