package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hurttlocker/subjectgraph/internal/config"
	"github.com/hurttlocker/subjectgraph/internal/cooccur"
	"github.com/hurttlocker/subjectgraph/internal/export"
	"github.com/hurttlocker/subjectgraph/internal/ingest"
	"github.com/hurttlocker/subjectgraph/internal/logging"
	"github.com/hurttlocker/subjectgraph/internal/metrics"
	"github.com/hurttlocker/subjectgraph/internal/store"
)

type computeFlags struct {
	input        string
	out          string
	save         bool
	allowPartial bool
	metricsFile  string
	overrides    config.ResolveOptions
}

func parseComputeFlags(args []string) (computeFlags, error) {
	var f computeFlags
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--input"); ok {
			f.input = v
		} else if v, ok := flagValue(args, &i, "--out"); ok {
			f.out = v
		} else if v, ok := flagValue(args, &i, "--min-cooc"); ok {
			f.overrides.CLIMinCooccurrence = v
		} else if v, ok := flagValue(args, &i, "--min-prob"); ok {
			f.overrides.CLIMinProbability = v
		} else if v, ok := flagValue(args, &i, "--min-asym"); ok {
			f.overrides.CLIMinAsymmetry = v
		} else if v, ok := flagValue(args, &i, "--workers"); ok {
			f.overrides.CLIWorkers = v
		} else if v, ok := flagValue(args, &i, "--metrics-file"); ok {
			f.metricsFile = v
		} else if args[i] == "--save" {
			f.save = true
		} else if args[i] == "--allow-partial" {
			f.allowPartial = true
		} else if strings.HasPrefix(args[i], "-") {
			return f, fmt.Errorf("unknown flag: %s", args[i])
		} else {
			return f, fmt.Errorf("unexpected argument: %s", args[i])
		}
	}
	return f, nil
}

func runCompute(args []string) error {
	flags, err := parseComputeFlags(args)
	if err != nil {
		return err
	}

	cfg, err := resolveConfig(flags.overrides)
	if err != nil {
		return err
	}
	opts, err := cfg.ComputeOptions()
	if err != nil {
		return err
	}
	opts.AllowPartial = flags.allowPartial

	logger := logging.Must(globalVerbose)
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	// The store is needed to read records unless --input is given, and to
	// save the run.
	var s store.Store
	if flags.input == "" || flags.save {
		if s, err = openStore(cfg); err != nil {
			return err
		}
		defer s.Close()
	}

	var it cooccur.RecordIterator
	if flags.input != "" {
		src, err := ingest.Open(flags.input)
		if err != nil {
			return err
		}
		defer src.Close()
		it = src
	} else {
		pageSize, err := cfg.PageSizeValue()
		if err != nil {
			return err
		}
		it = s.Records(pageSize)
	}

	engine, err := cooccur.NewEngine(opts, logger)
	if err != nil {
		return err
	}
	collector := metrics.NewCollector("subjectgraph")

	start := time.Now()
	rs, err := engine.Run(ctx, it)
	if err != nil {
		return err
	}
	collector.ObserveRun(rs.Summary, time.Since(start))

	toStdout := flags.out == "-"
	if toStdout {
		if err := export.WriteJSON(os.Stdout, rs); err != nil {
			return err
		}
	} else if flags.out != "" {
		if err := export.SaveFile(flags.out, rs); err != nil {
			return err
		}
		logger.Info("result set written", zap.String("path", flags.out))
	}

	var run *store.Run
	if flags.save {
		if run, err = s.SaveRun(ctx, rs, opts); err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
	}

	if flags.metricsFile != "" {
		if err := prometheus.WriteToTextfile(flags.metricsFile, collector.Registry()); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	// Keep stdout clean when it carries the JSON document.
	report := io.Writer(os.Stdout)
	if toStdout {
		report = os.Stderr
	}
	fmt.Fprint(report, formatSummary(rs.Summary, len(rs.Subjects)))
	if run != nil {
		fmt.Fprintf(report, "  Saved run: %s\n", run.ID)
	}
	if flags.out != "" && !toStdout {
		fmt.Fprintf(report, "  Written:   %s\n", flags.out)
	}
	return nil
}

func formatSummary(s cooccur.Summary, subjects int) string {
	var b strings.Builder
	if s.Partial {
		fmt.Fprintf(&b, "Computation complete (PARTIAL: record source failed mid-scan):\n")
	} else {
		fmt.Fprintf(&b, "Computation complete:\n")
	}
	fmt.Fprintf(&b, "  Records:   %d scanned, %d skipped\n", s.TotalRecordsScanned, s.RecordsSkipped)
	fmt.Fprintf(&b, "  Subjects:  %d\n", subjects)
	fmt.Fprintf(&b, "  Pairs:     %d considered, %d retained\n", s.TotalPairsConsidered, s.TotalPairsRetained)
	parts := make([]string, 0, len(cooccur.Verdicts))
	for _, v := range cooccur.Verdicts {
		parts = append(parts, fmt.Sprintf("%d %s", s.CountsByVerdict[v], v))
	}
	fmt.Fprintf(&b, "  Verdicts:  %s\n", strings.Join(parts, ", "))
	return b.String()
}
