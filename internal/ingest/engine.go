package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
	"github.com/hurttlocker/subjectgraph/internal/store"
)

// Engine loads record files into the store.
type Engine struct {
	store  store.Store
	logger *zap.Logger
}

// NewEngine returns an Engine writing to s. A nil logger disables logging.
func NewEngine(s store.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: s, logger: logger}
}

// ImportFile imports a single file, or every supported file in a directory
// (descending into subdirectories when opts.Recursive is set). Symlinked
// directories are rejected.
func (e *Engine) ImportFile(ctx context.Context, path string, opts ImportOptions) (*ImportResult, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", path, err)
		}
		if target.IsDir() {
			return nil, fmt.Errorf("refusing to import symlinked directory %s", path)
		}
		info = target
	}

	if !info.IsDir() {
		return e.importOne(ctx, path, opts)
	}

	files, err := collectFiles(path, opts.Recursive)
	if err != nil {
		return nil, err
	}
	total := &ImportResult{}
	for i, file := range files {
		if opts.ProgressFn != nil {
			opts.ProgressFn(i+1, len(files), file)
		}
		res, err := e.importOne(ctx, file, opts)
		if err != nil {
			if ctx.Err() != nil {
				return total, err
			}
			total.FilesScanned++
			total.FilesSkipped++
			total.Errors = append(total.Errors, ImportError{File: file, Message: err.Error()})
			continue
		}
		total.Add(res)
	}
	return total, nil
}

func collectFiles(dir string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink == 0 && Supported(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func (e *Engine) importOne(ctx context.Context, path string, opts ImportOptions) (*ImportResult, error) {
	src, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	res := &ImportResult{FilesScanned: 1}
	batch := make([]cooccur.Record, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if !opts.DryRun {
			n, err := e.store.AddRecordBatch(ctx, batch)
			res.RecordsImported += n
			if err != nil {
				return err
			}
		} else {
			res.RecordsImported += len(batch)
		}
		batch = batch[:0]
		return nil
	}

	for {
		if res.RecordsRead%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		rec, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		var bad *cooccur.MalformedRecordError
		if errors.As(err, &bad) {
			res.RecordsRead++
			res.RecordsSkipped++
			if len(res.Errors) < maxReportedErrors {
				res.Errors = append(res.Errors, ImportError{File: path, Record: bad.ID, Message: bad.Reason})
			}
			continue
		}
		if err != nil {
			if ferr := flush(); ferr != nil {
				e.logger.Warn("flushing partial batch failed", zap.String("file", path), zap.Error(ferr))
			}
			return res, fmt.Errorf("reading %s after %d records: %w", path, res.RecordsRead, err)
		}

		res.RecordsRead++
		batch = append(batch, rec)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return res, fmt.Errorf("storing records from %s: %w", path, err)
			}
		}
	}
	if err := flush(); err != nil {
		return res, fmt.Errorf("storing records from %s: %w", path, err)
	}

	res.FilesImported = 1
	e.logger.Info("imported record file",
		zap.String("file", path),
		zap.Int("records_read", res.RecordsRead),
		zap.Int("records_imported", res.RecordsImported),
		zap.Int("records_skipped", res.RecordsSkipped),
		zap.Bool("dry_run", opts.DryRun),
	)
	return res, nil
}

// FormatImportResult renders a human-readable import summary.
func FormatImportResult(r *ImportResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Import complete:\n")
	fmt.Fprintf(&b, "  Files:   %d scanned, %d imported, %d skipped\n", r.FilesScanned, r.FilesImported, r.FilesSkipped)
	fmt.Fprintf(&b, "  Records: %d read, %d imported, %d malformed\n", r.RecordsRead, r.RecordsImported, r.RecordsSkipped)
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "  Errors:  %d\n", len(r.Errors))
		for i, e := range r.Errors {
			if i == 10 {
				fmt.Fprintf(&b, "    ... and %d more\n", len(r.Errors)-10)
				break
			}
			if e.Record != "" {
				fmt.Fprintf(&b, "    %s [%s]: %s\n", filepath.Base(e.File), e.Record, e.Message)
			} else {
				fmt.Fprintf(&b, "    %s: %s\n", filepath.Base(e.File), e.Message)
			}
		}
	}
	return b.String()
}
