package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
)

// DefaultPageSize is the number of records a cursor reads per query.
const DefaultPageSize = 1000

// AddRecord inserts rec, replacing the subjects of an existing record with
// the same identifier.
func (s *SQLiteStore) AddRecord(ctx context.Context, rec cooccur.Record) error {
	_, err := s.AddRecordBatch(ctx, []cooccur.Record{rec})
	return err
}

// AddRecordBatch writes recs in chunks of the configured batch size, one
// transaction per chunk. It returns the number of records written; on error
// every chunk before the failing one is committed.
func (s *SQLiteStore) AddRecordBatch(ctx context.Context, recs []cooccur.Record) (int, error) {
	written := 0
	for i := 0; i < len(recs); i += s.batchSize {
		end := i + s.batchSize
		if end > len(recs) {
			end = len(recs)
		}
		if err := s.insertBatch(ctx, recs[i:end]); err != nil {
			return written, fmt.Errorf("batch insert chunk %d-%d: %w", i, end, err)
		}
		written = end
	}
	return written, nil
}

func (s *SQLiteStore) insertBatch(ctx context.Context, recs []cooccur.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, imported_at) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET imported_at = excluded.imported_at`)
	if err != nil {
		return fmt.Errorf("preparing record statement: %w", err)
	}
	defer upsert.Close()

	reset, err := tx.PrepareContext(ctx, `DELETE FROM record_subjects WHERE record_id = ?`)
	if err != nil {
		return fmt.Errorf("preparing clear statement: %w", err)
	}
	defer reset.Close()

	assign, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO record_subjects (record_id, subject) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing subject statement: %w", err)
	}
	defer assign.Close()

	now := time.Now().UTC()
	for _, rec := range recs {
		id := strings.TrimSpace(rec.ID)
		if id == "" {
			return fmt.Errorf("record id cannot be empty")
		}
		if _, err := upsert.ExecContext(ctx, id, now); err != nil {
			return fmt.Errorf("inserting record %q: %w", id, err)
		}
		if _, err := reset.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("clearing subjects of %q: %w", id, err)
		}
		for _, subject := range rec.Subjects {
			if _, err := assign.ExecContext(ctx, id, strings.TrimSpace(subject)); err != nil {
				return fmt.Errorf("assigning subject to %q: %w", id, err)
			}
		}
	}
	return tx.Commit()
}

// CountRecords returns the number of stored records.
func (s *SQLiteStore) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// CountSubjects returns the number of distinct non-blank subjects.
func (s *SQLiteStore) CountSubjects(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT subject) FROM record_subjects WHERE subject IS NOT NULL AND TRIM(subject) <> ''`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting subjects: %w", err)
	}
	return n, nil
}

// Records returns a cursor over every stored record in identifier order.
// Each page is a separate query, so no rows stay open between calls to Next.
func (s *SQLiteStore) Records(pageSize int) *RecordCursor {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &RecordCursor{db: s.db, pageSize: pageSize}
}

// RecordCursor streams stored records page by page. It implements
// cooccur.RecordIterator.
type RecordCursor struct {
	db       *sql.DB
	pageSize int

	lastID string
	page   []cursorEntry
	pos    int
	done   bool
}

type cursorEntry struct {
	rec    cooccur.Record
	reason string // non-empty marks a malformed record
}

// Next returns the next record, a *cooccur.MalformedRecordError for a stored
// record with a missing subject, or io.EOF once every record was returned.
func (c *RecordCursor) Next(ctx context.Context) (cooccur.Record, error) {
	for c.pos >= len(c.page) {
		if c.done {
			return cooccur.Record{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return cooccur.Record{}, err
		}
		if err := c.fetch(ctx); err != nil {
			return cooccur.Record{}, err
		}
	}

	e := c.page[c.pos]
	c.pos++
	if e.reason != "" {
		return cooccur.Record{}, &cooccur.MalformedRecordError{ID: e.rec.ID, Reason: e.reason}
	}
	return e.rec, nil
}

func (c *RecordCursor) fetch(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx,
		`SELECT r.id, rs.record_id, rs.subject
		 FROM records r
		 LEFT JOIN record_subjects rs ON rs.record_id = r.id
		 WHERE r.id IN (SELECT id FROM records WHERE id > ? ORDER BY id LIMIT ?)
		 ORDER BY r.id, rs.subject`,
		c.lastID, c.pageSize,
	)
	if err != nil {
		return fmt.Errorf("reading records after %q: %w", c.lastID, err)
	}
	defer rows.Close()

	c.page = c.page[:0]
	c.pos = 0
	records := 0
	for rows.Next() {
		var id string
		var joined, subject sql.NullString
		if err := rows.Scan(&id, &joined, &subject); err != nil {
			return fmt.Errorf("scanning record row: %w", err)
		}

		if len(c.page) == 0 || c.page[len(c.page)-1].rec.ID != id {
			c.page = append(c.page, cursorEntry{rec: cooccur.Record{ID: id}})
			records++
		}
		e := &c.page[len(c.page)-1]
		if !joined.Valid {
			continue // record without subjects
		}
		if !subject.Valid || strings.TrimSpace(subject.String) == "" {
			e.reason = "missing subject value"
			continue
		}
		e.rec.Subjects = append(e.rec.Subjects, subject.String)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating record rows: %w", err)
	}

	if records < c.pageSize {
		c.done = true
	}
	if records > 0 {
		c.lastID = c.page[len(c.page)-1].rec.ID
	}
	return nil
}
