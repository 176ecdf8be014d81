package history

import "fmt"

// currentSchemaVersion is the latest schema version.
const currentSchemaVersion = 1

// Migrate runs forward migrations to bring the database schema up to date.
func (db *DB) Migrate() error {
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	version := 0
	row := db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&version); err != nil {
		// No rows means version 0 (fresh database).
		version = 0
	}

	if version < 1 {
		if err := db.migrateV1(); err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
	}
	return nil
}

// migrateV1 creates all initial tables and indexes.
func (db *DB) migrateV1() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at      TEXT NOT NULL,
			kind            TEXT NOT NULL,
			dry_run         BOOLEAN NOT NULL,
			processed       INTEGER NOT NULL,
			succeeded       INTEGER NOT NULL,
			failed          INTEGER NOT NULL,
			new_tags        INTEGER NOT NULL,
			resolved_tags   INTEGER NOT NULL,
			critical_issues INTEGER NOT NULL,
			average_score   REAL NOT NULL,
			alerts_created  INTEGER NOT NULL,
			alerts_resolved INTEGER NOT NULL,
			duration_ms     INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS run_tags (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id   INTEGER NOT NULL REFERENCES runs(id),
			tag_id   TEXT NOT NULL,
			count    INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS run_errors (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id   INTEGER NOT NULL REFERENCES runs(id),
			detail   TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_run_tags_run ON run_tags(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_run_errors_run ON run_errors(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind)`,
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt[:40], err)
		}
	}

	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
		return err
	}
	return tx.Commit()
}
