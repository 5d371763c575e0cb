package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
)

// SaveRun persists a result set together with the options that produced it
// and prunes runs beyond the retention limit.
func (s *SQLiteStore) SaveRun(ctx context.Context, rs *cooccur.ResultSet, opts cooccur.Options) (*Run, error) {
	if rs == nil {
		return nil, fmt.Errorf("result set cannot be nil")
	}
	run := &Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Options:   opts,
		Summary:   rs.Summary,
	}

	optionsJSON, err := json.Marshal(run.Options)
	if err != nil {
		return nil, fmt.Errorf("encoding run options: %w", err)
	}
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return nil, fmt.Errorf("encoding run summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cooccurrence_runs (id, created_at, options_json, summary_json) VALUES (?, ?, ?, ?)`,
		run.ID, run.CreatedAt, string(optionsJSON), string(summaryJSON),
	); err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}

	subjStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_subjects (run_id, subject, count) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare run subjects: %w", err)
	}
	defer subjStmt.Close()
	for _, sc := range rs.Subjects {
		if _, err := subjStmt.ExecContext(ctx, run.ID, sc.Subject, sc.Count); err != nil {
			return nil, fmt.Errorf("inserting run subject %q: %w", sc.Subject, err)
		}
	}

	relStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_relationships
		 (run_id, subject_a, subject_b, cooc_count, p_a_given_b, p_b_given_a, verdict, strength)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare run relationships: %w", err)
	}
	defer relStmt.Close()
	for _, r := range rs.Records {
		if _, err := relStmt.ExecContext(ctx, run.ID,
			r.SubjectA, r.SubjectB, r.CooccurrenceCount, r.PAGivenB, r.PBGivenA, string(r.Verdict), r.Strength,
		); err != nil {
			return nil, fmt.Errorf("inserting relationship (%q, %q): %w", r.SubjectA, r.SubjectB, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cooccurrence_runs WHERE id NOT IN (
		   SELECT id FROM cooccurrence_runs ORDER BY created_at DESC, rowid DESC LIMIT ?
		 )`, s.runRetention,
	); err != nil {
		return nil, fmt.Errorf("pruning runs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save run: %w", err)
	}
	return run, nil
}

// ListRuns returns saved runs, newest first, without their relationships.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, options_json, summary_json
		 FROM cooccurrence_runs
		 ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun loads the most recently saved run. It returns ErrNoRuns when
// nothing has been saved.
func (s *SQLiteStore) LatestRun(ctx context.Context) (*Run, *cooccur.ResultSet, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM cooccurrence_runs ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNoRuns
	}
	if err != nil {
		return nil, nil, fmt.Errorf("finding latest run: %w", err)
	}
	return s.LoadRun(ctx, id)
}

// LoadRun rebuilds the result set of a saved run in canonical order.
func (s *SQLiteStore) LoadRun(ctx context.Context, id string) (*Run, *cooccur.ResultSet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, options_json, summary_json FROM cooccurrence_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("run %q not found", id)
	}
	if err != nil {
		return nil, nil, err
	}

	rs := &cooccur.ResultSet{Summary: run.Summary}

	subjRows, err := s.db.QueryContext(ctx,
		`SELECT subject, count FROM run_subjects WHERE run_id = ?`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("loading run subjects: %w", err)
	}
	defer subjRows.Close()
	for subjRows.Next() {
		var sc cooccur.SubjectCount
		if err := subjRows.Scan(&sc.Subject, &sc.Count); err != nil {
			return nil, nil, fmt.Errorf("scanning run subject: %w", err)
		}
		rs.Subjects = append(rs.Subjects, sc)
	}
	if err := subjRows.Err(); err != nil {
		return nil, nil, err
	}

	relRows, err := s.db.QueryContext(ctx,
		`SELECT subject_a, subject_b, cooc_count, p_a_given_b, p_b_given_a, verdict, strength
		 FROM run_relationships WHERE run_id = ?`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("loading run relationships: %w", err)
	}
	defer relRows.Close()
	for relRows.Next() {
		var r cooccur.CooccurrenceRecord
		var verdict string
		if err := relRows.Scan(&r.SubjectA, &r.SubjectB, &r.CooccurrenceCount, &r.PAGivenB, &r.PBGivenA, &verdict, &r.Strength); err != nil {
			return nil, nil, fmt.Errorf("scanning run relationship: %w", err)
		}
		r.Verdict = cooccur.Verdict(verdict)
		rs.Records = append(rs.Records, r)
	}
	if err := relRows.Err(); err != nil {
		return nil, nil, err
	}

	if rs.Subjects == nil {
		rs.Subjects = []cooccur.SubjectCount{}
	}
	if rs.Records == nil {
		rs.Records = []cooccur.CooccurrenceRecord{}
	}
	cooccur.SortSubjects(rs.Subjects)
	cooccur.SortRecords(rs.Records)
	return run, rs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var optionsJSON, summaryJSON string
	if err := row.Scan(&run.ID, &run.CreatedAt, &optionsJSON, &summaryJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	if err := json.Unmarshal([]byte(optionsJSON), &run.Options); err != nil {
		return nil, fmt.Errorf("decoding options of run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(summaryJSON), &run.Summary); err != nil {
		return nil, fmt.Errorf("decoding summary of run %s: %w", run.ID, err)
	}
	return &run, nil
}
