package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// DefaultPageSize is the number of records read per store query.
const DefaultPageSize = 1000

// DefaultAddr is the listen address of `subjectgraph serve`.
const DefaultAddr = "127.0.0.1:8750"

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries CLI flag values. Empty strings mean "not set".
type ResolveOptions struct {
	ConfigPath string
	CLIDBPath  string

	CLIMinCooccurrence string
	CLIMinProbability  string
	CLIMinAsymmetry    string
	CLIWorkers         string

	CLIAddr     string
	CLIDataPath string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath ResolvedValue `json:"db_path"`

	MinCooccurrence    ResolvedValue `json:"min_cooccurrence"`
	MinProbability     ResolvedValue `json:"min_probability"`
	MinAsymmetryRatio  ResolvedValue `json:"min_asymmetry_ratio"`
	NearEqualTolerance ResolvedValue `json:"near_equal_tolerance"`
	Workers            ResolvedValue `json:"workers"`
	PageSize           ResolvedValue `json:"page_size"`

	Addr     ResolvedValue `json:"addr"`
	DataPath ResolvedValue `json:"data_path"`
}

type fileConfig struct {
	DBPath  string `yaml:"db_path"`
	Compute struct {
		MinCooccurrence    *int     `yaml:"min_cooccurrence"`
		MinProbability     *float64 `yaml:"min_probability"`
		MinAsymmetryRatio  *float64 `yaml:"min_asymmetry_ratio"`
		NearEqualTolerance *float64 `yaml:"near_equal_tolerance"`
		Workers            *int     `yaml:"workers"`
		PageSize           *int     `yaml:"page_size"`
	} `yaml:"compute"`
	Serve struct {
		Addr     string `yaml:"addr"`
		DataPath string `yaml:"data_path"`
	} `yaml:"serve"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".subjectgraph", "config.yaml")
}

func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".subjectgraph", "subjectgraph.db")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}
	defaults := cooccur.DefaultOptions()
	setDefault(&out.DBPath, DefaultDBPath())
	setDefault(&out.MinCooccurrence, strconv.Itoa(defaults.MinCooccurrence))
	setDefault(&out.MinProbability, formatFloat(defaults.MinProbability))
	setDefault(&out.MinAsymmetryRatio, formatFloat(defaults.MinAsymmetryRatio))
	setDefault(&out.NearEqualTolerance, formatFloat(defaults.NearEqualTolerance))
	setDefault(&out.Workers, strconv.Itoa(defaults.Workers))
	setDefault(&out.PageSize, strconv.Itoa(DefaultPageSize))
	setDefault(&out.Addr, DefaultAddr)

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		applyInt(&out.MinCooccurrence, cfg.Compute.MinCooccurrence, path)
		applyFloat(&out.MinProbability, cfg.Compute.MinProbability, path)
		applyFloat(&out.MinAsymmetryRatio, cfg.Compute.MinAsymmetryRatio, path)
		applyFloat(&out.NearEqualTolerance, cfg.Compute.NearEqualTolerance, path)
		applyInt(&out.Workers, cfg.Compute.Workers, path)
		applyInt(&out.PageSize, cfg.Compute.PageSize, path)
		apply(&out.Addr, cfg.Serve.Addr, SourceConfig, path)
		apply(&out.DataPath, cfg.Serve.DataPath, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "SUBJECTGRAPH_DB")
	applyEnv(&out.MinCooccurrence, "SUBJECTGRAPH_MIN_COOC")
	applyEnv(&out.MinProbability, "SUBJECTGRAPH_MIN_PROB")
	applyEnv(&out.MinAsymmetryRatio, "SUBJECTGRAPH_MIN_ASYM")
	applyEnv(&out.Workers, "SUBJECTGRAPH_WORKERS")
	applyEnv(&out.Addr, "SUBJECTGRAPH_ADDR")
	applyEnv(&out.DataPath, "PRECOMPUTED_DATA")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.MinCooccurrence, opts.CLIMinCooccurrence, SourceCLI, "--min-cooc")
	apply(&out.MinProbability, opts.CLIMinProbability, SourceCLI, "--min-prob")
	apply(&out.MinAsymmetryRatio, opts.CLIMinAsymmetry, SourceCLI, "--min-asym")
	apply(&out.Workers, opts.CLIWorkers, SourceCLI, "--workers")
	apply(&out.Addr, opts.CLIAddr, SourceCLI, "--addr")
	apply(&out.DataPath, opts.CLIDataPath, SourceCLI, "--data")

	out.DBPath.Value = expandUserPath(out.DBPath.Value)
	out.DataPath.Value = expandUserPath(out.DataPath.Value)

	return out, nil
}

// ComputeOptions converts the resolved thresholds into engine options and
// validates them. A value that does not parse names its source.
func (r ResolvedConfig) ComputeOptions() (cooccur.Options, error) {
	var opts cooccur.Options
	var err error
	if opts.MinCooccurrence, err = parseInt(r.MinCooccurrence); err != nil {
		return opts, err
	}
	if opts.MinProbability, err = parseFloat(r.MinProbability); err != nil {
		return opts, err
	}
	if opts.MinAsymmetryRatio, err = parseFloat(r.MinAsymmetryRatio); err != nil {
		return opts, err
	}
	if opts.NearEqualTolerance, err = parseFloat(r.NearEqualTolerance); err != nil {
		return opts, err
	}
	if opts.Workers, err = parseInt(r.Workers); err != nil {
		return opts, err
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// PageSizeValue returns the store page size, falling back to the default for
// non-positive values.
func (r ResolvedConfig) PageSizeValue() (int, error) {
	n, err := parseInt(r.PageSize)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return DefaultPageSize, nil
	}
	return n, nil
}

func setDefault(dst *ResolvedValue, v string) {
	*dst = ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyInt(dst *ResolvedValue, v *int, from string) {
	if v != nil {
		apply(dst, strconv.Itoa(*v), SourceConfig, from)
	}
}

func applyFloat(dst *ResolvedValue, v *float64, from string) {
	if v != nil {
		apply(dst, formatFloat(*v), SourceConfig, from)
	}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func parseInt(v ResolvedValue) (int, error) {
	n, err := strconv.Atoi(v.Value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q from %s: %w", v.Value, describe(v), err)
	}
	return n, nil
}

func parseFloat(v ResolvedValue) (float64, error) {
	f, err := strconv.ParseFloat(v.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q from %s: %w", v.Value, describe(v), err)
	}
	return f, nil
}

func describe(v ResolvedValue) string {
	if v.From != "" {
		return v.From
	}
	return string(v.Source)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
