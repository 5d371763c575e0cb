package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEngine_ImportFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := NewEngine(s, nil)

	path := writeFile(t, "records.jsonl", `{"id": "r1", "subjects": ["Medicine", "Nephrology"]}
{"id": "r2", "subjects": ["Medicine"]}
{"id": "r3", "subjects": [1, 2]}
`)
	result, err := e.ImportFile(ctx, path, ImportOptions{})
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}

	if result.FilesImported != 1 {
		t.Errorf("Expected 1 file imported, got %d", result.FilesImported)
	}
	if result.RecordsRead != 3 || result.RecordsImported != 2 || result.RecordsSkipped != 1 {
		t.Errorf("unexpected counts: %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].Record != "r3" {
		t.Errorf("expected one error for r3, got %+v", result.Errors)
	}

	n, err := s.CountRecords(ctx)
	if err != nil {
		t.Fatalf("CountRecords: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 stored records, got %d", n)
	}
}

func TestEngine_ReimportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := NewEngine(s, nil)

	path := writeFile(t, "records.csv", "id,subjects\nr1,A;B\nr2,B\n")
	for i := 0; i < 2; i++ {
		if _, err := e.ImportFile(ctx, path, ImportOptions{}); err != nil {
			t.Fatalf("import %d: %v", i, err)
		}
	}
	n, _ := s.CountRecords(ctx)
	if n != 2 {
		t.Fatalf("expected 2 records after re-import, got %d", n)
	}
}

func TestEngine_DryRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := NewEngine(s, nil)

	path := writeFile(t, "records.yaml", "- id: a\n  subjects: [x, y]\n- id: b\n  subjects: [x]\n")
	result, err := e.ImportFile(ctx, path, ImportOptions{DryRun: true})
	if err != nil {
		t.Fatalf("DryRun import failed: %v", err)
	}
	if result.RecordsImported != 2 {
		t.Errorf("Dry run should report 2 records, got %d", result.RecordsImported)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.RecordCount != 0 {
		t.Errorf("Expected 0 records in store after dry run, got %d", stats.RecordCount)
	}
}

func TestEngine_SmallBatches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := NewEngine(s, nil)

	var b strings.Builder
	for i := 0; i < 23; i++ {
		fmt.Fprintf(&b, "{\"id\": \"r%02d\", \"subjects\": [\"s%d\", \"shared\"]}\n", i, i%3)
	}
	path := writeFile(t, "many.jsonl", b.String())

	result, err := e.ImportFile(ctx, path, ImportOptions{BatchSize: 5})
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if result.RecordsImported != 23 {
		t.Fatalf("expected 23 imported, got %d", result.RecordsImported)
	}
	n, _ := s.CountRecords(ctx)
	if n != 23 {
		t.Fatalf("expected 23 stored, got %d", n)
	}
}

func TestEngine_ImportDir(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := NewEngine(s, nil)

	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "a.jsonl"), []byte(`{"id": "a", "subjects": ["x"]}`+"\n"), 0o600)
	os.WriteFile(filepath.Join(dir, "readme.md"), []byte("# ignored"), 0o600)
	os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"not": "an array"}`), 0o600)
	os.WriteFile(filepath.Join(sub, "b.csv"), []byte("id,subjects\nb,y\n"), 0o600)

	var progress []string
	result, err := e.ImportFile(ctx, dir, ImportOptions{
		ProgressFn: func(current, total int, file string) { progress = append(progress, filepath.Base(file)) },
	})
	if err != nil {
		t.Fatalf("ImportFile(dir): %v", err)
	}
	if result.FilesImported != 1 || result.FilesSkipped != 1 {
		t.Fatalf("non-recursive: unexpected result %+v", result)
	}
	if len(progress) != 2 {
		t.Fatalf("expected progress for 2 files, got %v", progress)
	}

	result, err = e.ImportFile(ctx, dir, ImportOptions{Recursive: true})
	if err != nil {
		t.Fatalf("ImportFile(dir, recursive): %v", err)
	}
	if result.FilesImported != 2 {
		t.Fatalf("recursive: expected 2 files imported, got %+v", result)
	}
	n, _ := s.CountRecords(ctx)
	if n != 2 {
		t.Fatalf("expected 2 stored records, got %d", n)
	}
}

func TestEngine_SymlinkedDirectoryRejected(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(newTestStore(t), nil)

	target := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if _, err := e.ImportFile(ctx, link, ImportOptions{Recursive: true}); err == nil {
		t.Fatal("expected symlinked directory to be rejected")
	}
}

func TestEngine_ReadFailureKeepsEarlierRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := NewEngine(s, nil)

	path := writeFile(t, "cut.json", `[{"id": "a", "subjects": ["x"]}, {"id": "b", "subjects": ["y"]}, {"id": "c", "subj`)
	result, err := e.ImportFile(ctx, path, ImportOptions{})
	if err == nil {
		t.Fatal("expected error for truncated file")
	}
	if result == nil || result.RecordsImported != 2 {
		t.Fatalf("expected records before the failure to be stored, got %+v", result)
	}
}

func TestFormatImportResult(t *testing.T) {
	out := FormatImportResult(&ImportResult{
		FilesScanned: 2, FilesImported: 1, FilesSkipped: 1,
		RecordsRead: 10, RecordsImported: 9, RecordsSkipped: 1,
		Errors: []ImportError{{File: "/tmp/a.jsonl", Record: "r3", Message: "line 3: subject 0 is float64, not a string"}},
	})
	for _, want := range []string{"2 scanned", "9 imported", "1 malformed", "a.jsonl [r3]"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
