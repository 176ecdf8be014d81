package history

import (
	"database/sql"
	"time"

	"github.com/medipoint/clinicpulse/internal/engine"
)

// Run kinds.
const (
	KindTags    = "tags"
	KindStreaks = "streaks"
)

// Run is one recorded pass summary.
type Run struct {
	ID             int64     `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	Kind           string    `json:"kind"`
	DryRun         bool      `json:"dry_run"`
	Processed      int       `json:"processed"`
	Succeeded      int       `json:"succeeded"`
	Failed         int       `json:"failed"`
	NewTags        int       `json:"new_tags"`
	ResolvedTags   int       `json:"resolved_tags"`
	CriticalIssues int       `json:"critical_issues"`
	AverageScore   float64   `json:"average_score"`
	AlertsCreated  int       `json:"alerts_created"`
	AlertsResolved int       `json:"alerts_resolved"`
	DurationMs     int64     `json:"duration_ms"`
}

// Delta is the change in one metric between two runs.
type Delta struct {
	Name     string  `json:"name"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
	Delta    float64 `json:"delta"`
}

// RecordRun stores a tag-pass summary with its tag distribution and errors,
// returning the run ID.
func (db *DB) RecordRun(s *engine.Summary) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO runs
		(started_at, kind, dry_run, processed, succeeded, failed, new_tags,
		 resolved_tags, critical_issues, average_score, alerts_created,
		 alerts_resolved, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), KindTags, s.DryRun,
		s.TotalProcessed, s.Succeeded, s.Failed, s.NewTags, s.ResolvedTags,
		s.CriticalIssues, s.AverageScore, s.AlertsCreated, s.AlertsResolved,
		s.DurationMs,
	)
	if err != nil {
		return 0, err
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	for tagID, count := range s.TagDistribution {
		if _, err := db.conn.Exec(
			"INSERT INTO run_tags (run_id, tag_id, count) VALUES (?, ?, ?)",
			runID, tagID, count,
		); err != nil {
			return 0, err
		}
	}
	for _, detail := range s.Errors {
		if _, err := db.conn.Exec(
			"INSERT INTO run_errors (run_id, detail) VALUES (?, ?)",
			runID, detail,
		); err != nil {
			return 0, err
		}
	}
	return runID, nil
}

// RecordStreakRun stores a streak-pass summary, returning the run ID. Streak
// runs reuse the runs table with streak hits mapped onto the tag counters.
func (db *DB) RecordStreakRun(s *engine.StreakSummary) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO runs
		(started_at, kind, dry_run, processed, succeeded, failed, new_tags,
		 resolved_tags, critical_issues, average_score, alerts_created,
		 alerts_resolved, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, ?)`,
		time.Now().UTC().Format(time.RFC3339), KindStreaks, s.DryRun,
		s.TotalProcessed, s.Succeeded, s.Failed, s.Hits, s.Misses,
		s.DurationMs,
	)
	if err != nil {
		return 0, err
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, detail := range s.Errors {
		if _, err := db.conn.Exec(
			"INSERT INTO run_errors (run_id, detail) VALUES (?, ?)",
			runID, detail,
		); err != nil {
			return 0, err
		}
	}
	return runID, nil
}

// LatestRuns returns up to n most recent runs of the given kind, newest first.
func (db *DB) LatestRuns(kind string, n int) ([]Run, error) {
	rows, err := db.conn.Query(
		`SELECT id, started_at, kind, dry_run, processed, succeeded, failed,
		        new_tags, resolved_tags, critical_issues, average_score,
		        alerts_created, alerts_resolved, duration_ms
		 FROM runs WHERE kind = ? ORDER BY id DESC LIMIT ?`,
		kind, n,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func scanRun(rows *sql.Rows) (*Run, error) {
	var r Run
	var startedAt string
	err := rows.Scan(&r.ID, &startedAt, &r.Kind, &r.DryRun, &r.Processed,
		&r.Succeeded, &r.Failed, &r.NewTags, &r.ResolvedTags,
		&r.CriticalIssues, &r.AverageScore, &r.AlertsCreated,
		&r.AlertsResolved, &r.DurationMs)
	if err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	return &r, nil
}

// TagDistribution returns the per-tag counts recorded for a run.
func (db *DB) TagDistribution(runID int64) (map[string]int, error) {
	rows, err := db.conn.Query(
		"SELECT tag_id, count FROM run_tags WHERE run_id = ?", runID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	dist := make(map[string]int)
	for rows.Next() {
		var tagID string
		var count int
		if err := rows.Scan(&tagID, &count); err != nil {
			return nil, err
		}
		dist[tagID] = count
	}
	return dist, rows.Err()
}

// RunErrors returns the error details recorded for a run.
func (db *DB) RunErrors(runID int64) ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT detail FROM run_errors WHERE run_id = ?", runID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var detail string
		if err := rows.Scan(&detail); err != nil {
			return nil, err
		}
		out = append(out, detail)
	}
	return out, rows.Err()
}

// CompareLastTwo returns metric deltas between the two most recent runs of a
// kind, or nil when fewer than two exist.
func (db *DB) CompareLastTwo(kind string) ([]Delta, error) {
	runs, err := db.LatestRuns(kind, 2)
	if err != nil {
		return nil, err
	}
	if len(runs) < 2 {
		return nil, nil
	}
	curr, prev := runs[0], runs[1]

	pairs := []struct {
		name       string
		prev, curr float64
	}{
		{"processed", float64(prev.Processed), float64(curr.Processed)},
		{"failed", float64(prev.Failed), float64(curr.Failed)},
		{"new_tags", float64(prev.NewTags), float64(curr.NewTags)},
		{"resolved_tags", float64(prev.ResolvedTags), float64(curr.ResolvedTags)},
		{"critical_issues", float64(prev.CriticalIssues), float64(curr.CriticalIssues)},
		{"average_score", prev.AverageScore, curr.AverageScore},
		{"alerts_created", float64(prev.AlertsCreated), float64(curr.AlertsCreated)},
		{"alerts_resolved", float64(prev.AlertsResolved), float64(curr.AlertsResolved)},
	}

	deltas := make([]Delta, 0, len(pairs))
	for _, p := range pairs {
		deltas = append(deltas, Delta{
			Name:     p.name,
			Previous: p.prev,
			Current:  p.curr,
			Delta:    p.curr - p.prev,
		})
	}
	return deltas, nil
}
