package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
)

// maxLineBytes bounds a single JSON Lines record.
const maxLineBytes = 16 * 1024 * 1024

// JSONLImporter handles .jsonl and .ndjson files, one record object per line.
type JSONLImporter struct{}

// CanHandle returns true for JSON Lines file extensions.
func (j *JSONLImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".jsonl" || ext == ".ndjson"
}

// Open returns a line-by-line source. A line that is not valid JSON is a
// malformed record rather than a fatal error.
func (j *JSONLImporter) Open(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &jsonlSource{f: f, scanner: scanner}, nil
}

type jsonlSource struct {
	f       *os.File
	scanner *bufio.Scanner
	line    int
}

func (s *jsonlSource) Next(ctx context.Context) (cooccur.Record, error) {
	for s.scanner.Scan() {
		s.line++
		raw := bytes.TrimSpace(s.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v interface{}
		where := fmt.Sprintf("line %d", s.line)
		if err := dec.Decode(&v); err != nil {
			return cooccur.Record{}, &cooccur.MalformedRecordError{Reason: where + ": " + err.Error()}
		}
		if dec.More() {
			return cooccur.Record{}, &cooccur.MalformedRecordError{Reason: where + ": trailing data after record"}
		}
		return toRecord(v, where)
	}
	if err := s.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return cooccur.Record{}, fmt.Errorf("line %d exceeds %d bytes: %w", s.line+1, maxLineBytes, err)
		}
		return cooccur.Record{}, fmt.Errorf("reading line %d: %w", s.line+1, err)
	}
	return cooccur.Record{}, io.EOF
}

func (s *jsonlSource) Close() error { return s.f.Close() }
