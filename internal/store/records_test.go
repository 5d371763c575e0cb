package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
)

func drainCursor(t *testing.T, c *RecordCursor) ([]cooccur.Record, []string) {
	t.Helper()
	ctx := context.Background()
	var out []cooccur.Record
	var malformed []string
	for {
		rec, err := c.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, malformed
		}
		var bad *cooccur.MalformedRecordError
		if errors.As(err, &bad) {
			malformed = append(malformed, bad.ID)
			continue
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, rec)
	}
}

func TestAddRecord_ReplacesSubjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddRecord(ctx, cooccur.Record{ID: "r1", Subjects: []string{"Physics", "Optics", "Physics"}}); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	if err := s.AddRecord(ctx, cooccur.Record{ID: "r1", Subjects: []string{"Chemistry"}}); err != nil {
		t.Fatalf("AddRecord again: %v", err)
	}

	recs, _ := drainCursor(t, s.Records(10))
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if len(recs[0].Subjects) != 1 || recs[0].Subjects[0] != "Chemistry" {
		t.Fatalf("expected subjects to be replaced, got %v", recs[0].Subjects)
	}
}

func TestAddRecord_EmptyID(t *testing.T) {
	s := newTestStore(t)
	if err := s.AddRecord(context.Background(), cooccur.Record{ID: "  ", Subjects: []string{"x"}}); err == nil {
		t.Fatal("expected error for empty record id")
	}
}

func TestAddRecordBatch_Chunks(t *testing.T) {
	s, err := NewStore(StoreConfig{DBPath: ":memory:", BatchSize: 7})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	recs := make([]cooccur.Record, 30)
	for i := range recs {
		recs[i] = cooccur.Record{ID: fmt.Sprintf("rec-%03d", i), Subjects: []string{"shared", fmt.Sprintf("s%d", i%4)}}
	}
	n, err := s.AddRecordBatch(ctx, recs)
	if err != nil {
		t.Fatalf("AddRecordBatch: %v", err)
	}
	if n != 30 {
		t.Fatalf("expected 30 written, got %d", n)
	}

	subjects, err := s.CountSubjects(ctx)
	if err != nil {
		t.Fatalf("CountSubjects: %v", err)
	}
	if subjects != 5 {
		t.Fatalf("expected 5 distinct subjects, got %d", subjects)
	}

	// A bad record in the third chunk leaves the first two committed.
	recs[20].ID = ""
	fresh, _ := NewStore(StoreConfig{DBPath: ":memory:", BatchSize: 7})
	defer fresh.Close()
	n, err = fresh.AddRecordBatch(ctx, recs)
	if err == nil {
		t.Fatal("expected error for empty id")
	}
	if n != 14 {
		t.Fatalf("expected 14 committed before failure, got %d", n)
	}
}

func TestRecords_PaginatesInIDOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var recs []cooccur.Record
	for i := 24; i >= 0; i-- {
		recs = append(recs, cooccur.Record{ID: fmt.Sprintf("id-%02d", i), Subjects: []string{"b", "a"}})
	}
	recs = append(recs, cooccur.Record{ID: "id-99"})
	if _, err := s.AddRecordBatch(ctx, recs); err != nil {
		t.Fatalf("AddRecordBatch: %v", err)
	}

	// Page size 4 forces many page boundaries, including one on the last record.
	got, malformed := drainCursor(t, s.Records(4))
	if len(malformed) != 0 {
		t.Fatalf("unexpected malformed records: %v", malformed)
	}
	if len(got) != 26 {
		t.Fatalf("expected 26 records, got %d", len(got))
	}
	for i := 0; i < 25; i++ {
		want := fmt.Sprintf("id-%02d", i)
		if got[i].ID != want {
			t.Fatalf("record %d = %q, want %q", i, got[i].ID, want)
		}
		if len(got[i].Subjects) != 2 || got[i].Subjects[0] != "a" || got[i].Subjects[1] != "b" {
			t.Fatalf("record %s subjects = %v", got[i].ID, got[i].Subjects)
		}
	}
	if got[25].ID != "id-99" || len(got[25].Subjects) != 0 {
		t.Fatalf("expected subject-less record last, got %+v", got[25])
	}

	// Exhausted cursors keep returning EOF.
	c := s.Records(4)
	drainCursor(t, c)
	if _, err := c.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestRecords_NullSubjectIsMalformed(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if _, err := s.AddRecordBatch(ctx, []cooccur.Record{
		{ID: "good", Subjects: []string{"x", "y"}},
		{ID: "null", Subjects: []string{"x"}},
		{ID: "blank", Subjects: []string{"x"}},
	}); err != nil {
		t.Fatalf("AddRecordBatch: %v", err)
	}
	if _, err := s.db.Exec(`INSERT INTO record_subjects (record_id, subject) VALUES ('null', NULL)`); err != nil {
		t.Fatalf("insert null subject: %v", err)
	}
	if _, err := s.db.Exec(`INSERT INTO record_subjects (record_id, subject) VALUES ('blank', '   ')`); err != nil {
		t.Fatalf("insert blank subject: %v", err)
	}

	got, malformed := drainCursor(t, s.Records(2))
	if len(got) != 1 || got[0].ID != "good" {
		t.Fatalf("expected only the good record, got %+v", got)
	}
	if len(malformed) != 2 || malformed[0] != "blank" || malformed[1] != "null" {
		t.Fatalf("expected blank and null to be malformed, got %v", malformed)
	}
}

func TestRecords_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Records(10).Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRecords_FeedsComputation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recs := []cooccur.Record{
		{ID: "s1", Subjects: []string{"Medicine"}},
		{ID: "s2", Subjects: []string{"Medicine", "Nephrology"}},
		{ID: "s3", Subjects: []string{"Medicine", "Nephrology"}},
		{ID: "s4", Subjects: []string{"Medicine", "Nephrology"}},
	}
	if _, err := s.AddRecordBatch(ctx, recs); err != nil {
		t.Fatalf("AddRecordBatch: %v", err)
	}

	rs, err := cooccur.Compute(ctx, s.Records(3), cooccur.DefaultOptions())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if rs.Summary.TotalRecordsScanned != 4 || len(rs.Records) != 1 {
		t.Fatalf("unexpected result: %+v", rs.Summary)
	}
	if rs.Records[0].PBGivenA != 0.75 {
		t.Fatalf("P(Nephrology|Medicine) = %v, want 0.75", rs.Records[0].PBGivenA)
	}
}
