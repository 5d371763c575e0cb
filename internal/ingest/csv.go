package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
)

// CSVImporter handles .csv and .tsv files.
type CSVImporter struct{}

// CanHandle returns true for CSV/TSV file extensions.
func (c *CSVImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".csv" || ext == ".tsv"
}

// Open reads the header row, which must name an "id" column and a
// "subjects" column (case-insensitive). Subjects within a cell are separated
// by ';' or '|'.
func (c *CSVImporter) Open(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(f)

	// Auto-detect TSV
	if strings.ToLower(filepath.Ext(path)) == ".tsv" {
		reader.Comma = '\t'
	}

	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	headers, err := reader.Read()
	if err == io.EOF {
		return &csvSource{f: f, reader: reader, done: true}, nil
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing CSV header in %s: %w", path, err)
	}

	src := &csvSource{f: f, reader: reader, idCol: -1, subjectsCol: -1}
	for i, h := range headers {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "id":
			src.idCol = i
		case "subjects":
			src.subjectsCol = i
		}
	}
	if src.idCol < 0 || src.subjectsCol < 0 {
		f.Close()
		return nil, fmt.Errorf("CSV %s must have \"id\" and \"subjects\" columns", path)
	}
	return src, nil
}

type csvSource struct {
	f           *os.File
	reader      *csv.Reader
	idCol       int
	subjectsCol int
	done        bool
}

func (s *csvSource) Next(ctx context.Context) (cooccur.Record, error) {
	if s.done {
		return cooccur.Record{}, io.EOF
	}
	row, err := s.reader.Read()
	if err == io.EOF {
		s.done = true
		return cooccur.Record{}, io.EOF
	}
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return cooccur.Record{}, &cooccur.MalformedRecordError{Reason: fmt.Sprintf("line %d: %v", perr.Line, perr.Err)}
		}
		return cooccur.Record{}, fmt.Errorf("reading CSV: %w", err)
	}
	line, _ := s.reader.FieldPos(0)
	where := fmt.Sprintf("row at line %d", line)

	if s.idCol >= len(row) || strings.TrimSpace(row[s.idCol]) == "" {
		return cooccur.Record{}, &cooccur.MalformedRecordError{Reason: where + ": missing id"}
	}
	rec := cooccur.Record{ID: strings.TrimSpace(row[s.idCol])}
	if s.subjectsCol < len(row) {
		rec.Subjects = splitSubjects(row[s.subjectsCol])
	}
	return rec, nil
}

func (s *csvSource) Close() error { return s.f.Close() }
