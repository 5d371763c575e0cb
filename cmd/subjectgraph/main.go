package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/hurttlocker/subjectgraph/internal/config"
	"github.com/hurttlocker/subjectgraph/internal/ingest"
	"github.com/hurttlocker/subjectgraph/internal/logging"
	"github.com/hurttlocker/subjectgraph/internal/store"
)

const version = "0.1.0-dev"

// Global flags, accepted before the command name.
var (
	globalDBPath     string
	globalConfigPath string
	globalVerbose    bool
)

func main() {
	args := parseGlobalFlags(os.Args[1:])
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch args[0] {
	case "import":
		err = runImport(args[1:])
	case "compute":
		err = runCompute(args[1:])
	case "export":
		err = runExport(args[1:])
	case "serve":
		err = runServe(args[1:])
	case "mcp":
		err = runMCP(args[1:])
	case "stats":
		err = runStats(args[1:])
	case "runs":
		err = runRuns(args[1:])
	case "version", "--version", "-v":
		fmt.Printf("subjectgraph %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseGlobalFlags extracts --db, --config and --verbose from args and
// returns the remaining arguments.
func parseGlobalFlags(args []string) []string {
	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--db" && i+1 < len(args):
			i++
			globalDBPath = args[i]
		case strings.HasPrefix(args[i], "--db="):
			globalDBPath = strings.TrimPrefix(args[i], "--db=")
		case args[i] == "--config" && i+1 < len(args):
			i++
			globalConfigPath = args[i]
		case strings.HasPrefix(args[i], "--config="):
			globalConfigPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--verbose":
			globalVerbose = true
		default:
			filtered = append(filtered, args[i])
		}
	}
	return filtered
}

// resolveConfig layers the global flags and any command-level overrides in
// opts over the config file, environment and built-in defaults.
func resolveConfig(opts config.ResolveOptions) (config.ResolvedConfig, error) {
	opts.ConfigPath = globalConfigPath
	opts.CLIDBPath = globalDBPath
	cfg, err := config.ResolveConfig(opts)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func openStore(cfg config.ResolvedConfig) (store.Store, error) {
	s, err := store.NewStore(store.StoreConfig{DBPath: cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// flagValue matches "--name value" and "--name=value" at args[*i], advancing
// *i past a separate value.
func flagValue(args []string, i *int, name string) (string, bool) {
	arg := args[*i]
	if arg == name && *i+1 < len(args) {
		*i++
		return args[*i], true
	}
	if strings.HasPrefix(arg, name+"=") {
		return strings.TrimPrefix(arg, name+"="), true
	}
	return "", false
}

func runImport(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: subjectgraph import <path> [--recursive] [--dry-run]")
	}

	var paths []string
	opts := ingest.ImportOptions{}

	for _, arg := range args {
		switch {
		case arg == "--recursive" || arg == "-r":
			opts.Recursive = true
		case arg == "--dry-run" || arg == "-n":
			opts.DryRun = true
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			paths = append(paths, arg)
		}
	}

	if len(paths) == 0 {
		return fmt.Errorf("no path specified")
	}

	cfg, err := resolveConfig(config.ResolveOptions{})
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	logger := logging.Must(globalVerbose)
	defer logger.Sync()

	engine := ingest.NewEngine(s, logger)
	ctx, stop := signalContext()
	defer stop()

	if opts.DryRun {
		fmt.Println("Dry run mode: no changes will be written")
		fmt.Println()
	}

	totalResult := &ingest.ImportResult{}

	for _, path := range paths {
		fmt.Printf("Importing %s...\n", path)

		opts.ProgressFn = func(current, total int, file string) {
			fmt.Printf("  [%d/%d] %s\n", current, total, file)
		}

		result, err := engine.ImportFile(ctx, path, opts)
		if result != nil {
			totalResult.Add(result)
		}
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "  Error: %v\n", err)
		}
	}

	fmt.Println()
	fmt.Print(ingest.FormatImportResult(totalResult))
	return nil
}

func runStats(args []string) error {
	jsonOut := false
	for _, arg := range args {
		switch arg {
		case "--json":
			jsonOut = true
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	cfg, err := resolveConfig(config.ResolveOptions{})
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("Store: %s\n", cfg.DBPath.Value)
	fmt.Printf("  Records:     %d\n", stats.RecordCount)
	fmt.Printf("  Subjects:    %d\n", stats.SubjectCount)
	fmt.Printf("  Assignments: %d\n", stats.AssignmentCount)
	fmt.Printf("  Saved runs:  %d\n", stats.RunCount)
	fmt.Printf("  Size:        %s\n", formatBytes(stats.DBSizeBytes))
	return nil
}

func runRuns(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := resolveConfig(config.ResolveOptions{})
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ListRuns(context.Background())
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No saved runs. Use 'subjectgraph compute --save' to create one.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tRECORDS\tRETAINED\tPARTIAL")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%v\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Summary.TotalRecordsScanned, r.Summary.TotalPairsRetained, r.Summary.Partial)
	}
	return tw.Flush()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func printUsage() {
	fmt.Printf(`subjectgraph %s: Empirical broader/narrower subject relationships from co-occurrence

Usage:
  subjectgraph [--db path] [--config path] [--verbose] <command> [arguments]

Commands:
  import <path>       Load subject-tagged records (.jsonl, .json, .csv, .tsv, .yaml)
  compute             Count co-occurrences and classify subject pairs
  export              Write a saved run as JSON or a hierarchy as YAML
  serve               Start the web explorer over a computed run
  mcp                 Serve explorer tools over MCP (stdio)
  stats               Show record store statistics
  runs                List saved computation runs
  version             Print version

Import Flags:
  -r, --recursive     Recursively import from directories
  -n, --dry-run       Show what would be imported without writing

Compute Flags:
  --input <file>      Read records from a file instead of the store
  --out <file>        Write the result set as JSON ("-" for stdout)
  --save              Save the result set as a run in the store
  --min-cooc <n>      Minimum co-occurrence count (default 3)
  --min-prob <f>      Minimum conditional probability (default 0.1)
  --min-asym <f>      Minimum asymmetry ratio (default 1.5)
  --workers <n>       Parallel scan workers (default 1)
  --allow-partial     Keep the partial tally if the record source fails
  --metrics-file <f>  Write run metrics in Prometheus text format

Export Flags:
  --format json|yaml  Output format (default json)
  --run <id>          Saved run to export (default latest)
  --data <file>       Read a result set file instead of the store
  --out <file>        Output file (default stdout)

Serve Flags:
  --addr <host:port>  Listen address (default %s)
  --data <file>       Serve a result set file instead of the latest run
  --run <id>          Serve a specific saved run
  --cors-origin <o>   Allowed CORS origin, repeatable (default any)

Flags:
  -h, --help          Show this help message
  -v, --version       Print version
`, version, config.DefaultAddr)
}
