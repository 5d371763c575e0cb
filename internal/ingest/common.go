package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
)

// Source streams records from an opened file.
type Source interface {
	cooccur.RecordIterator
	io.Closer
}

// Importer handles a specific file format.
type Importer interface {
	// CanHandle returns true if this importer supports the given file path.
	CanHandle(path string) bool

	// Open returns a streaming source over the file's records.
	Open(path string) (Source, error)
}

// Importers lists every supported format in lookup order.
func Importers() []Importer {
	return []Importer{&JSONLImporter{}, &JSONImporter{}, &CSVImporter{}, &YAMLImporter{}}
}

// Open picks the importer for path and opens it.
func Open(path string) (Source, error) {
	for _, imp := range Importers() {
		if imp.CanHandle(path) {
			return imp.Open(path)
		}
	}
	return nil, fmt.Errorf("unsupported record format: %s (want .jsonl, .json, .csv, .tsv, .yaml or .yml)", filepath.Base(path))
}

// Supported reports whether any importer handles path.
func Supported(path string) bool {
	for _, imp := range Importers() {
		if imp.CanHandle(path) {
			return true
		}
	}
	return false
}

// ImportResult summarizes an import operation.
type ImportResult struct {
	FilesScanned    int
	FilesImported   int
	FilesSkipped    int
	RecordsRead     int
	RecordsImported int
	RecordsSkipped  int
	Errors          []ImportError
}

// Add merges another ImportResult into this one.
func (r *ImportResult) Add(other *ImportResult) {
	r.FilesScanned += other.FilesScanned
	r.FilesImported += other.FilesImported
	r.FilesSkipped += other.FilesSkipped
	r.RecordsRead += other.RecordsRead
	r.RecordsImported += other.RecordsImported
	r.RecordsSkipped += other.RecordsSkipped
	r.Errors = append(r.Errors, other.Errors...)
}

// ImportError records a non-fatal error during import.
type ImportError struct {
	File    string
	Record  string
	Message string
}

// ImportOptions configures an import operation.
type ImportOptions struct {
	Recursive  bool
	DryRun     bool
	BatchSize  int // records per store transaction, default DefaultBatchSize
	ProgressFn func(current, total int, file string)
}

// DefaultBatchSize is the number of records buffered before a store write.
const DefaultBatchSize = 500

// maxReportedErrors caps ImportResult.Errors per file.
const maxReportedErrors = 100

// toRecord interprets one decoded JSON or YAML object. where locates the
// object in its file for error messages.
func toRecord(v interface{}, where string) (cooccur.Record, error) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return cooccur.Record{}, &cooccur.MalformedRecordError{Reason: where + ": record is not an object"}
	}

	id, ok := scalarID(obj["id"])
	if !ok || strings.TrimSpace(id) == "" {
		return cooccur.Record{}, &cooccur.MalformedRecordError{Reason: where + ": missing or invalid id"}
	}

	rec := cooccur.Record{ID: id}
	switch subjects := obj["subjects"].(type) {
	case nil:
	case []interface{}:
		rec.Subjects = make([]string, 0, len(subjects))
		for i, s := range subjects {
			str, ok := s.(string)
			if !ok {
				return cooccur.Record{}, &cooccur.MalformedRecordError{
					ID:     id,
					Reason: fmt.Sprintf("%s: subject %d is %T, not a string", where, i, s),
				}
			}
			rec.Subjects = append(rec.Subjects, str)
		}
	default:
		return cooccur.Record{}, &cooccur.MalformedRecordError{
			ID:     id,
			Reason: fmt.Sprintf("%s: subjects is %T, not a list", where, subjects),
		}
	}
	return rec, nil
}

func scalarID(v interface{}) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, true
	case json.Number:
		return id.String(), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case uint64:
		return strconv.FormatUint(id, 10), true
	default:
		return "", false
	}
}

// splitSubjects splits a delimited subjects cell on ';' or '|'. Empty
// segments are dropped.
func splitSubjects(cell string) []string {
	parts := strings.FieldsFunc(cell, func(r rune) bool { return r == ';' || r == '|' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
