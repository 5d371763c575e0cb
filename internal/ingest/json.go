package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
)

// JSONImporter handles .json files holding an array of record objects.
type JSONImporter struct{}

// CanHandle returns true for JSON file extensions.
func (j *JSONImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".json"
}

// Open reads the opening bracket of the array and returns a source that
// decodes one element per call. An empty file yields no records.
func (j *JSONImporter) Open(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bufio.NewReader(f))
	dec.UseNumber()

	tok, err := dec.Token()
	if err == io.EOF {
		return &jsonSource{f: f, dec: dec, done: true}, nil
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		f.Close()
		return nil, fmt.Errorf("invalid JSON in %s: expected an array of records", path)
	}
	return &jsonSource{f: f, dec: dec}, nil
}

type jsonSource struct {
	f     *os.File
	dec   *json.Decoder
	index int
	done  bool
}

func (s *jsonSource) Next(ctx context.Context) (cooccur.Record, error) {
	if s.done || !s.dec.More() {
		if !s.done {
			s.done = true
			if _, err := s.dec.Token(); err != nil {
				return cooccur.Record{}, fmt.Errorf("closing record array: %w", err)
			}
		}
		return cooccur.Record{}, io.EOF
	}

	var v interface{}
	if err := s.dec.Decode(&v); err != nil {
		// The decoder cannot resynchronize after a syntax error.
		s.done = true
		return cooccur.Record{}, fmt.Errorf("decoding element %d: %w", s.index, err)
	}
	where := fmt.Sprintf("element %d", s.index)
	s.index++
	return toRecord(v, where)
}

func (s *jsonSource) Close() error { return s.f.Close() }
