// Package export writes and reads computed result sets: the precomputed data
// file served by `subjectgraph serve`, and the grouped hierarchy YAML.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
)

// WriteJSON writes rs as indented JSON. Identical result sets produce
// byte-identical output.
func WriteJSON(w io.Writer, rs *cooccur.ResultSet) error {
	if rs == nil {
		return fmt.Errorf("nil result set")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rs); err != nil {
		return fmt.Errorf("encoding result set: %w", err)
	}
	return nil
}

// ReadJSON decodes a result set written by WriteJSON and checks that it is
// well formed: known verdicts, canonical pair order, probabilities in [0,1].
func ReadJSON(r io.Reader) (*cooccur.ResultSet, error) {
	var rs cooccur.ResultSet
	if err := json.NewDecoder(r).Decode(&rs); err != nil {
		return nil, fmt.Errorf("decoding result set: %w", err)
	}
	for i, rec := range rs.Records {
		if !rec.Verdict.Valid() {
			return nil, fmt.Errorf("relationship %d: unknown verdict %q", i, rec.Verdict)
		}
		if rec.SubjectA >= rec.SubjectB {
			return nil, fmt.Errorf("relationship %d: subjects %q and %q are not in canonical order", i, rec.SubjectA, rec.SubjectB)
		}
		if rec.PAGivenB < 0 || rec.PAGivenB > 1 || rec.PBGivenA < 0 || rec.PBGivenA > 1 {
			return nil, fmt.Errorf("relationship %d: probability out of range", i)
		}
	}
	if rs.Subjects == nil {
		rs.Subjects = []cooccur.SubjectCount{}
	}
	if rs.Records == nil {
		rs.Records = []cooccur.CooccurrenceRecord{}
	}
	if rs.Summary.CountsByVerdict == nil {
		rs.Summary.CountsByVerdict = make(map[cooccur.Verdict]int, len(cooccur.Verdicts))
	}
	return &rs, nil
}

// SaveFile writes rs to path atomically: the data goes to a temporary file
// in the same directory, which is then renamed over path.
func SaveFile(path string, rs *cooccur.ResultSet) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := WriteJSON(tmp, rs); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// LoadFile reads a result set saved by SaveFile.
func LoadFile(path string) (*cooccur.ResultSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening data file: %w", err)
	}
	defer f.Close()
	rs, err := ReadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}
