package main

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hurttlocker/subjectgraph/internal/config"
	"github.com/hurttlocker/subjectgraph/internal/explorer"
	"github.com/hurttlocker/subjectgraph/internal/logging"
	sgmcp "github.com/hurttlocker/subjectgraph/internal/mcp"
	"github.com/hurttlocker/subjectgraph/internal/metrics"
	"github.com/hurttlocker/subjectgraph/internal/server"
)

type serveFlags struct {
	runID   string
	origins []string
	cli     config.ResolveOptions
}

func parseServeFlags(args []string, allowAddr bool) (serveFlags, error) {
	var f serveFlags
	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--data"); ok {
			f.cli.CLIDataPath = v
		} else if v, ok := flagValue(args, &i, "--run"); ok {
			f.runID = v
		} else if allowAddr && strings.HasPrefix(args[i], "--addr") {
			v, ok := flagValue(args, &i, "--addr")
			if !ok {
				return f, fmt.Errorf("--addr requires a value")
			}
			f.cli.CLIAddr = v
		} else if allowAddr && strings.HasPrefix(args[i], "--cors-origin") {
			v, ok := flagValue(args, &i, "--cors-origin")
			if !ok {
				return f, fmt.Errorf("--cors-origin requires a value")
			}
			f.origins = append(f.origins, v)
		} else if strings.HasPrefix(args[i], "-") {
			return f, fmt.Errorf("unknown flag: %s", args[i])
		} else {
			return f, fmt.Errorf("unexpected argument: %s", args[i])
		}
	}
	return f, nil
}

func runServe(args []string) error {
	flags, err := parseServeFlags(args, true)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(flags.cli)
	if err != nil {
		return err
	}

	logger := logging.Must(globalVerbose)
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	rs, source, err := loadResultSet(ctx, cfg, cfg.DataPath.Value, flags.runID)
	if err != nil {
		return err
	}
	snap := explorer.NewSnapshot(rs)
	stats := snap.Stats()
	logger.Info("loaded co-occurrence data",
		zap.String("source", source),
		zap.Int("concepts", stats.TotalConcepts),
		zap.Int("relationships", stats.TotalRelationships),
	)
	fmt.Fprintf(os.Stderr, "Serving %d concepts, %d relationships from %s on http://%s\n",
		stats.TotalConcepts, stats.TotalRelationships, source, cfg.Addr.Value)

	return server.Serve(ctx, server.ServerConfig{
		Snapshot:       snap,
		Addr:           cfg.Addr.Value,
		Logger:         logger,
		Metrics:        metrics.NewCollector("subjectgraph"),
		AllowedOrigins: flags.origins,
	})
}

func runMCP(args []string) error {
	flags, err := parseServeFlags(args, false)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(flags.cli)
	if err != nil {
		return err
	}

	logger := logging.Must(globalVerbose)
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	rs, source, err := loadResultSet(ctx, cfg, cfg.DataPath.Value, flags.runID)
	if err != nil {
		return err
	}
	logger.Info("starting MCP server on stdio", zap.String("source", source))

	srv := sgmcp.NewServer(sgmcp.ServerConfig{Snapshot: explorer.NewSnapshot(rs), Version: version})
	return sgmcp.ServeStdio(ctx, srv, os.Stdin, os.Stdout)
}
