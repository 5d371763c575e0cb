package cooccur

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// cancelCheckEvery is how often the scan polls ctx between records.
	cancelCheckEvery = 1024
	// scanBatchSize is the number of records handed to a worker at once.
	scanBatchSize = 256
)

// Engine runs the full computation with a fixed, validated set of options.
type Engine struct {
	opts       Options
	classifier Classifier
	logger     *zap.Logger
}

// NewEngine validates opts and returns an Engine. A nil logger is replaced
// by a no-op logger.
func NewEngine(opts Options, logger *zap.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		opts:       opts,
		classifier: NewClassifier(opts),
		logger:     logger,
	}, nil
}

// Options returns the engine's options.
func (e *Engine) Options() Options { return e.opts }

// Compute is a convenience wrapper around NewEngine and Run.
func Compute(ctx context.Context, it RecordIterator, opts Options) (*ResultSet, error) {
	e, err := NewEngine(opts, nil)
	if err != nil {
		return nil, &RunError{Stage: StageValidate, Err: err}
	}
	return e.Run(ctx, it)
}

// Run consumes it once and returns the classified result set. A read failure
// is returned as a *RunError naming the number of records processed, unless
// AllowPartial is set.
func (e *Engine) Run(ctx context.Context, it RecordIterator) (*ResultSet, error) {
	start := time.Now()

	tally, stats, err := e.scan(ctx, it)
	partial := false
	if err != nil {
		if !e.opts.AllowPartial || ctx.Err() != nil {
			return nil, &RunError{Stage: StageScan, Processed: stats.processed, Err: err}
		}
		partial = true
		e.logger.Warn("record scan failed, continuing with partial tally",
			zap.Int("processed", stats.processed),
			zap.Error(err),
		)
	}
	scanned := time.Now()
	e.logger.Debug("scan complete",
		zap.Int("records", tally.TotalRecords),
		zap.Int("skipped", stats.skipped),
		zap.Int("subjects", len(tally.Frequencies)),
		zap.Int("pairs", len(tally.Pairs)),
		zap.Int("workers", e.opts.workers()),
		zap.Duration("elapsed", scanned.Sub(start)),
	)

	conds, err := Conditionals(tally, e.opts.MinCooccurrence)
	if err != nil {
		return nil, &RunError{Stage: StageProbability, Processed: tally.TotalRecords, Err: err}
	}

	b := newResultBuilder(len(tally.Pairs), len(conds))
	for _, c := range conds {
		cl, err := e.classifier.ClassifyConditional(c)
		if err != nil {
			var inv *InvariantError
			if errors.As(err, &inv) && inv.Pair == (Pair{}) {
				inv.Pair = c.Pair
			}
			return nil, &RunError{Stage: StageClassify, Processed: tally.TotalRecords, Err: err}
		}
		if cl.Significant {
			b.add(c, cl)
		}
	}
	rs := b.build(tally, stats.skipped, partial)

	e.logger.Info("co-occurrence computation complete",
		zap.Int("records_scanned", rs.Summary.TotalRecordsScanned),
		zap.Int("records_skipped", rs.Summary.RecordsSkipped),
		zap.Int("pairs_considered", rs.Summary.TotalPairsConsidered),
		zap.Int("pairs_retained", rs.Summary.TotalPairsRetained),
		zap.Bool("partial", partial),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rs, nil
}

type scanStats struct {
	processed int
	skipped   int
}

// scan fills a tally from it. On failure the returned tally holds every
// record counted in stats.processed.
func (e *Engine) scan(ctx context.Context, it RecordIterator) (*Tally, scanStats, error) {
	if e.opts.workers() == 1 {
		t := NewTally()
		stats, err := drain(ctx, it, func(subjects []string) error {
			t.Add(subjects)
			return nil
		}, e.logger)
		return t, stats, err
	}
	return e.scanParallel(ctx, it)
}

// scanParallel reads it on one goroutine and fans batches out to workers,
// each with a private tally. Partial tallies are merged by per-key sum.
func (e *Engine) scanParallel(ctx context.Context, it RecordIterator) (*Tally, scanStats, error) {
	n := e.opts.workers()
	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan [][]string, n)

	partials := make([]*Tally, n)
	for i := range partials {
		t := NewTally()
		partials[i] = t
		g.Go(func() error {
			for batch := range batches {
				for _, subjects := range batch {
					t.Add(subjects)
				}
			}
			return nil
		})
	}

	var stats scanStats
	var scanErr error
	g.Go(func() error {
		defer close(batches)
		batch := make([][]string, 0, scanBatchSize)
		send := func() error {
			if len(batch) == 0 {
				return nil
			}
			select {
			case batches <- batch:
				batch = make([][]string, 0, scanBatchSize)
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		stats, scanErr = drain(gctx, it, func(subjects []string) error {
			batch = append(batch, subjects)
			if len(batch) < scanBatchSize {
				return nil
			}
			return send()
		}, e.logger)
		if err := send(); err != nil && scanErr == nil {
			scanErr = err
		}
		return nil
	})

	if err := g.Wait(); err != nil && scanErr == nil {
		scanErr = err
	}

	total := NewTally()
	for _, t := range partials {
		total.Merge(t)
	}
	return total, stats, scanErr
}

// drain pulls every record from it, normalizes it and hands its subjects to
// emit. Malformed records are counted and skipped.
func drain(ctx context.Context, it RecordIterator, emit func([]string) error, logger *zap.Logger) (scanStats, error) {
	var stats scanStats
	for {
		if stats.processed%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}

		rec, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err == nil {
			var subjects []string
			subjects, err = normalizeSubjects(rec)
			if err == nil {
				if err := emit(subjects); err != nil {
					return stats, err
				}
				stats.processed++
				continue
			}
		}

		var bad *MalformedRecordError
		if errors.As(err, &bad) {
			stats.skipped++
			logger.Debug("skipping malformed record", zap.String("record_id", bad.ID), zap.String("reason", bad.Reason))
			continue
		}
		return stats, err
	}
}
