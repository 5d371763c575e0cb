// Package cooccur computes asymmetric co-occurrence statistics between the
// subject tags of a record corpus and infers broader/narrower relationships
// from them.
//
// The computation is a single pass over a RecordIterator that fills a
// subject frequency table and a pairwise co-occurrence tally, followed by
// conditional probability evaluation, significance filtering, directional
// classification and a deterministic result set.
package cooccur

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Record is one tagged record from the record store.
type Record struct {
	ID       string
	Subjects []string
}

// RecordIterator yields records once, in any order. Next returns io.EOF when
// the input is exhausted and a *MalformedRecordError for a record that should
// be skipped. Any other error aborts the run.
type RecordIterator interface {
	Next(ctx context.Context) (Record, error)
}

// MalformedRecordError marks a single bad record. It never aborts a run.
type MalformedRecordError struct {
	ID     string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("malformed record: %s", e.Reason)
	}
	return fmt.Sprintf("malformed record %q: %s", e.ID, e.Reason)
}

// SliceIterator is a RecordIterator over an in-memory slice.
type SliceIterator struct {
	records []Record
	pos     int
}

// NewSliceIterator returns an iterator over records.
func NewSliceIterator(records []Record) *SliceIterator {
	return &SliceIterator{records: records}
}

// Next implements RecordIterator.
func (it *SliceIterator) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if it.pos >= len(it.records) {
		return Record{}, io.EOF
	}
	r := it.records[it.pos]
	it.pos++
	return r, nil
}

// normalizeSubjects trims and deduplicates a record's subjects, preserving
// first-seen order. A blank subject makes the record malformed.
func normalizeSubjects(r Record) ([]string, error) {
	if strings.TrimSpace(r.ID) == "" {
		return nil, &MalformedRecordError{Reason: "missing record identifier"}
	}
	if len(r.Subjects) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(r.Subjects))
	out := make([]string, 0, len(r.Subjects))
	for _, s := range r.Subjects {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, &MalformedRecordError{ID: r.ID, Reason: "blank subject"}
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}
