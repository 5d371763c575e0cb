// Package store provides the SQLite storage layer for subjectgraph.
//
// A single SQLite database file holds:
// - Imported records and their subject assignments
// - Saved co-occurrence runs (options, summary, subjects and relationships)
// - Schema metadata
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.subjectgraph/subjectgraph.db"

// DefaultBatchSize is the default batch size for bulk operations.
const DefaultBatchSize = 500

// DefaultRunRetention is how many saved runs are kept; older ones are pruned
// when a new run is saved.
const DefaultRunRetention = 5

// ErrNoRuns is returned when no co-occurrence run has been saved yet.
var ErrNoRuns = errors.New("no saved co-occurrence runs")

// Run describes a saved computation.
type Run struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Options   cooccur.Options `json:"options"`
	Summary   cooccur.Summary `json:"summary"`
}

// StoreStats holds observability statistics about the store.
type StoreStats struct {
	RecordCount     int64 `json:"record_count"`
	SubjectCount    int64 `json:"subject_count"`
	AssignmentCount int64 `json:"assignment_count"`
	RunCount        int64 `json:"run_count"`
	DBSizeBytes     int64 `json:"db_size_bytes"`
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath       string
	BatchSize    int
	RunRetention int
}

// Store defines the core storage interface.
type Store interface {
	// Records
	AddRecord(ctx context.Context, rec cooccur.Record) error
	AddRecordBatch(ctx context.Context, recs []cooccur.Record) (int, error)
	CountRecords(ctx context.Context) (int64, error)
	CountSubjects(ctx context.Context) (int64, error)
	Records(pageSize int) *RecordCursor

	// Runs
	SaveRun(ctx context.Context, rs *cooccur.ResultSet, opts cooccur.Options) (*Run, error)
	LoadRun(ctx context.Context, id string) (*Run, *cooccur.ResultSet, error)
	LatestRun(ctx context.Context) (*Run, *cooccur.ResultSet, error)
	ListRuns(ctx context.Context) ([]*Run, error)

	// Observability
	Stats(ctx context.Context) (*StoreStats, error)

	// Maintenance
	Vacuum(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db           *sql.DB
	dbPath       string
	batchSize    int
	runRetention int
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.RunRetention <= 0 {
		cfg.RunRetention = DefaultRunRetention
	}

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A :memory: database is private to its connection.
	if cfg.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:           db,
		dbPath:       cfg.DBPath,
		batchSize:    cfg.BatchSize,
		runRetention: cfg.RunRetention,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Stats returns row counts and, for file databases, the on-disk size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM records", &stats.RecordCount},
		{"SELECT COUNT(DISTINCT subject) FROM record_subjects WHERE subject IS NOT NULL", &stats.SubjectCount},
		{"SELECT COUNT(*) FROM record_subjects", &stats.AssignmentCount},
		{"SELECT COUNT(*) FROM cooccurrence_runs", &stats.RunCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("querying stats (%s): %w", q.query, err)
		}
	}

	if s.dbPath != ":memory:" {
		var pageCount, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.DBSizeBytes = pageCount * pageSize
	}

	return stats, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database. Manual only, never auto-vacuum.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
