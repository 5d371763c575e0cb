package store

import (
	"database/sql"
	"fmt"
	"time"
)

// schemaVersion is bumped whenever a migration step is added.
const schemaVersion = "2"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	// Seed metadata (meta table now exists)
	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	// Schema evolution: subject lookup index for stats and explorer queries.
	if err := s.migrateSubjectIndex(); err != nil {
		return fmt.Errorf("migrating subject index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS records (
			id          TEXT PRIMARY KEY CHECK (id <> ''),
			imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// subject is nullable so databases populated by other tools can carry
		// broken rows; the cursor reports them as malformed records.
		`CREATE TABLE IF NOT EXISTS record_subjects (
			record_id TEXT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
			subject   TEXT,
			UNIQUE (record_id, subject)
		)`,

		`CREATE TABLE IF NOT EXISTS cooccurrence_runs (
			id           TEXT PRIMARY KEY,
			created_at   DATETIME NOT NULL,
			options_json TEXT NOT NULL,
			summary_json TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS run_subjects (
			run_id  TEXT NOT NULL REFERENCES cooccurrence_runs(id) ON DELETE CASCADE,
			subject TEXT NOT NULL,
			count   INTEGER NOT NULL,
			PRIMARY KEY (run_id, subject)
		)`,

		`CREATE TABLE IF NOT EXISTS run_relationships (
			run_id      TEXT NOT NULL REFERENCES cooccurrence_runs(id) ON DELETE CASCADE,
			subject_a   TEXT NOT NULL,
			subject_b   TEXT NOT NULL,
			cooc_count  INTEGER NOT NULL,
			p_a_given_b REAL NOT NULL,
			p_b_given_a REAL NOT NULL,
			verdict     TEXT NOT NULL CHECK (verdict IN ('A_BROADER', 'B_BROADER', 'NO_DIRECTION')),
			strength    REAL NOT NULL,
			PRIMARY KEY (run_id, subject_a, subject_b),
			CHECK (subject_a < subject_b)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_created ON cooccurrence_runs(created_at)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning bootstrap transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w\nSQL: %s", err, truncate(stmt, 120))
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

func (s *SQLiteStore) getMetaValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// seedMeta initializes the meta table with defaults if not already set.
func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": "1",
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range defaults {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v,
		)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

// migrateSubjectIndex adds the subject index used by CountSubjects and Stats.
func (s *SQLiteStore) migrateSubjectIndex() error {
	done, err := s.isMetaFlagEnabled("subject_index_v1")
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_record_subjects_subject ON record_subjects(subject)`); err != nil {
		return fmt.Errorf("creating subject index: %w", err)
	}
	if _, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion); err != nil {
		return fmt.Errorf("bumping schema version: %w", err)
	}
	return s.setMetaFlag("subject_index_v1")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
