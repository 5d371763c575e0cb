package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
)

// YAMLImporter handles .yaml and .yml files.
type YAMLImporter struct{}

// CanHandle returns true for YAML file extensions.
func (y *YAMLImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Open returns a source over a YAML file. Each document is either a list of
// record mappings or a single record mapping; multi-document files (separated
// by ---) are read one document at a time.
func (y *YAMLImporter) Open(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &yamlSource{f: f, dec: yaml.NewDecoder(bufio.NewReader(f))}, nil
}

type yamlSource struct {
	f       *os.File
	dec     *yaml.Decoder
	docNum  int
	pending []*yaml.Node
	done    bool
}

func (s *yamlSource) Next(ctx context.Context) (cooccur.Record, error) {
	for len(s.pending) == 0 {
		if s.done {
			return cooccur.Record{}, io.EOF
		}
		var doc yaml.Node
		if err := s.dec.Decode(&doc); err != nil {
			s.done = true
			if errors.Is(err, io.EOF) {
				return cooccur.Record{}, io.EOF
			}
			return cooccur.Record{}, fmt.Errorf("invalid YAML (document %d): %w", s.docNum+1, err)
		}
		s.docNum++
		if len(doc.Content) == 0 {
			continue
		}

		root := doc.Content[0]
		switch root.Kind {
		case yaml.SequenceNode:
			s.pending = root.Content
		case yaml.MappingNode:
			s.pending = []*yaml.Node{root}
		default:
			if root.Tag == "!!null" {
				continue
			}
			return cooccur.Record{}, &cooccur.MalformedRecordError{
				Reason: fmt.Sprintf("document %d: expected a list of records", s.docNum),
			}
		}
	}

	node := s.pending[0]
	s.pending = s.pending[1:]
	where := fmt.Sprintf("document %d line %d", s.docNum, node.Line)

	var v interface{}
	if err := node.Decode(&v); err != nil {
		return cooccur.Record{}, &cooccur.MalformedRecordError{Reason: where + ": " + err.Error()}
	}
	return toRecord(v, where)
}

func (s *yamlSource) Close() error { return s.f.Close() }
