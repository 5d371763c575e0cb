package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hurttlocker/subjectgraph/internal/config"
	"github.com/hurttlocker/subjectgraph/internal/cooccur"
	"github.com/hurttlocker/subjectgraph/internal/explorer"
	"github.com/hurttlocker/subjectgraph/internal/export"
)

// loadResultSet reads the result set from dataPath when set, otherwise the
// saved run runID (latest when empty) from the store.
func loadResultSet(ctx context.Context, cfg config.ResolvedConfig, dataPath, runID string) (*cooccur.ResultSet, string, error) {
	if dataPath != "" {
		rs, err := export.LoadFile(dataPath)
		if err != nil {
			return nil, "", err
		}
		return rs, dataPath, nil
	}

	s, err := openStore(cfg)
	if err != nil {
		return nil, "", err
	}
	defer s.Close()

	if runID != "" {
		run, rs, err := s.LoadRun(ctx, runID)
		if err != nil {
			return nil, "", err
		}
		return rs, "run " + run.ID, nil
	}
	run, rs, err := s.LatestRun(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("%w (run 'subjectgraph compute --save' or pass --data)", err)
	}
	return rs, "run " + run.ID, nil
}

func runExport(args []string) error {
	format := "json"
	var out, runID, dataPath string
	q := explorer.DefaultExportQuery()

	for i := 0; i < len(args); i++ {
		if v, ok := flagValue(args, &i, "--format"); ok {
			format = strings.ToLower(strings.TrimSpace(v))
		} else if v, ok := flagValue(args, &i, "--out"); ok {
			out = v
		} else if v, ok := flagValue(args, &i, "--run"); ok {
			runID = v
		} else if v, ok := flagValue(args, &i, "--data"); ok {
			dataPath = v
		} else if v, ok := flagValue(args, &i, "--min-p"); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid --min-p: %q", v)
			}
			q.MinP = f
		} else if v, ok := flagValue(args, &i, "--min-asym"); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid --min-asym: %q", v)
			}
			q.MinAsymmetry = f
		} else if v, ok := flagValue(args, &i, "--min-cooc"); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid --min-cooc: %q", v)
			}
			q.MinCooc = n
		} else if v, ok := flagValue(args, &i, "--min-count"); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid --min-count: %q", v)
			}
			q.MinNarrowerCount = n
		} else if strings.HasPrefix(args[i], "-") {
			return fmt.Errorf("unknown flag: %s", args[i])
		} else {
			return fmt.Errorf("unexpected argument: %s", args[i])
		}
	}
	if format != "json" && format != "yaml" {
		return fmt.Errorf("invalid --format %q (want json or yaml)", format)
	}

	cfg, err := resolveConfig(config.ResolveOptions{})
	if err != nil {
		return err
	}
	rs, _, err := loadResultSet(context.Background(), cfg, dataPath, runID)
	if err != nil {
		return err
	}

	if format == "json" {
		if out != "" {
			return export.SaveFile(out, rs)
		}
		return export.WriteJSON(os.Stdout, rs)
	}

	hier, err := explorer.NewSnapshot(rs).HierarchyGroups(q)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := export.WriteHierarchyYAML(&buf, hier); err != nil {
		return err
	}
	if out == "" {
		_, err := os.Stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	return nil
}
