package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shingmt/prp-disasm/internal/cache"
	"github.com/shingmt/prp-disasm/internal/config"
	"github.com/shingmt/prp-disasm/internal/engine/radare"
	"github.com/shingmt/prp-disasm/internal/heuristics"
	"github.com/shingmt/prp-disasm/internal/output"
	"github.com/shingmt/prp-disasm/internal/sample"
	"github.com/shingmt/prp-disasm/internal/types"
	"github.com/shingmt/prp-disasm/internal/worker"
)

var (
	flagFailOnSignal   float64
	flagCI             bool
	flagVerbose        bool
	flagSkipExtraction bool
	flagDisasm         int
	flagCallGraph      bool
	flagCached         bool
	flagCachePath      string
	flagMaxEngines     int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <path>...",
	Short: "Analyze binary samples or directories of samples",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().Float64Var(&flagFailOnSignal, "fail-on-signal", 0, "Exit with code 1 if any signal scores at or above this threshold")
	analyzeCmd.Flags().BoolVar(&flagCI, "ci", false, "CI mode: equivalent to --fail-on-signal 0.8 --no-color")
	analyzeCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Show signal evidence and disassembly listings")
	analyzeCmd.Flags().BoolVar(&flagSkipExtraction, "skip-extraction", false, "Produce reports without derived signals")
	analyzeCmd.Flags().IntVar(&flagDisasm, "disasm", 0, "Include a cleaned listing of up to N instructions per sample")
	analyzeCmd.Flags().BoolVar(&flagCallGraph, "callgraph", false, "Include the global call graph in each report")
	analyzeCmd.Flags().BoolVar(&flagCached, "cached", false, "Skip samples whose hash was already fully analyzed")
	analyzeCmd.Flags().StringVar(&flagCachePath, "cache-path", "", "Path to cache file for --cached (default: ~/.prp-disasm/cache.json)")
	analyzeCmd.Flags().IntVar(&flagMaxEngines, "max-engines", 0, "Bound concurrent engine subprocesses (default: workers)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := loadAnalyzeConfig(cmd, args[0])
	applyCIDefaults()

	timeout, err := resolveTimeout()
	if err != nil {
		return err
	}

	samples, err := collectSamples(args, cfg.Ignore)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stderr, "No executable samples found.")
		return nil
	}

	store := openCache()
	if store != nil {
		samples = filterCached(store, samples)
		if len(samples) == 0 {
			fmt.Fprintln(os.Stderr, "All samples already analyzed; nothing to do.")
			return nil
		}
	}

	if _, lookErr := exec.LookPath(driverEngineName()); radare.IsNotFound(lookErr) {
		fmt.Fprintf(os.Stderr, "warning: engine %q not found; reports will be FAILED with reason engine-unavailable\n", driverEngineName())
	}

	driver, err := buildDriver(timeout)
	if err != nil {
		return err
	}

	ctx, cancel := contextWithInterrupt()
	defer cancel()

	pool := worker.NewPool(driver, flagWorkers)

	var sp *output.Spinner
	if flagFormat == "terminal" && !flagNoColor {
		sp = output.NewSpinner(os.Stderr)
		sp.Start(len(samples), "analyzing...")
		pool.OnResult = func(r *types.AnalysisReport) {
			sp.Advance(r.SampleName, r.Status.String())
		}
	}

	start := time.Now()
	reports := pool.RunAll(ctx, samples)
	if sp != nil {
		sp.Stop()
	}

	if store != nil {
		for _, r := range reports {
			store.Set(r.SampleHash, r.Status.String())
		}
		if err := store.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: saving cache: %v\n", err)
		}
	}

	result := &output.Result{
		Target:   strings.Join(args, ", "),
		Engine:   driverEngineName(),
		Reports:  reports,
		Duration: time.Since(start),
	}
	if err := writeOutput(result); err != nil {
		return err
	}

	return checkFailOnSignal(reports)
}

func loadAnalyzeConfig(cmd *cobra.Command, targetPath string) config.Config {
	cfg, err := config.Load(targetPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if !cmd.Flags().Changed("format") && cfg.Format != "" {
		flagFormat = cfg.Format
	}
	if !cmd.Flags().Changed("engine") && cfg.Engine != "" {
		flagEngine = cfg.Engine
	}
	if !cmd.Flags().Changed("timeout") && cfg.Timeout != "" {
		flagTimeout = cfg.Timeout
	}
	if !cmd.Flags().Changed("max-size") && cfg.MaxSampleSize > 0 {
		flagMaxSize = cfg.MaxSampleSize
	}
	if !cmd.Flags().Changed("workers") && cfg.Workers > 0 {
		flagWorkers = cfg.Workers
	}
	if !cmd.Flags().Changed("rules") && cfg.Rules != "" {
		flagRules = cfg.Rules
	}
	if !cmd.Flags().Changed("fail-on-signal") && cfg.FailOnSignal > 0 {
		flagFailOnSignal = cfg.FailOnSignal
	}
	if !cmd.Flags().Changed("disable-heuristic") && len(cfg.DisabledHeuristics) > 0 {
		flagDisableHeurs = cfg.DisabledHeuristics
	}
	if !cmd.Flags().Changed("disasm") && cfg.IncludeDisasm {
		flagDisasm = 256
	}
	if !cmd.Flags().Changed("callgraph") && cfg.IncludeCallGraph {
		flagCallGraph = true
	}
	return cfg
}

func applyCIDefaults() {
	if flagCI {
		if flagFailOnSignal == 0 {
			flagFailOnSignal = 0.8
		}
		flagNoColor = true
	}
	if os.Getenv("NO_COLOR") != "" {
		flagNoColor = true
	}
}

func resolveTimeout() (time.Duration, error) {
	if flagTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(flagTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid --timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--timeout must be positive")
	}
	return d, nil
}

// collectSamples resolves each argument: files are ingested directly,
// directories are walked for executable content.
func collectSamples(paths []string, ignore []string) ([]*sample.Sample, error) {
	disc := &sample.Discovery{IgnorePatterns: ignore}

	var samples []*sample.Sample
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.IsDir() {
			s, err := sample.FromFile(path)
			if err != nil {
				return nil, err
			}
			samples = append(samples, s)
			continue
		}
		found, err := disc.Discover(path)
		if err != nil {
			return nil, fmt.Errorf("discovering samples under %s: %w", path, err)
		}
		for _, p := range found {
			s, err := sample.FromFile(p)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", p, err)
				continue
			}
			samples = append(samples, s)
		}
	}
	return samples, nil
}

func openCache() *cache.Store {
	if !flagCached {
		return nil
	}
	path := flagCachePath
	if path == "" {
		path = cache.DefaultPath()
	}
	store := cache.New(path)
	if err := store.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: loading cache: %v\n", err)
	}
	return store
}

// filterCached drops samples whose content hash already has a COMPLETE
// entry. Partial and failed outcomes are retried.
func filterCached(store *cache.Store, samples []*sample.Sample) []*sample.Sample {
	var kept []*sample.Sample
	for _, s := range samples {
		if e, ok := store.Get(s.Hash); ok && e.Status == types.StatusComplete.String() {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

func buildExtractor() (*heuristics.Extractor, error) {
	rules, err := heuristics.LoadBuiltin()
	if err != nil {
		return nil, err
	}
	if flagRules != "" {
		raws, err := heuristics.LoadFromDir(flagRules)
		if err != nil {
			return nil, fmt.Errorf("loading custom rules from %s: %w", flagRules, err)
		}
		custom, errs := heuristics.CompileAll(raws)
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "warning: %v\n", e)
		}
		rules = append(rules, custom...)
	}
	extractor := heuristics.NewExtractor(rules)
	if len(flagDisableHeurs) > 0 {
		disabled := make(map[string]bool)
		for _, id := range flagDisableHeurs {
			disabled[strings.TrimSpace(id)] = true
		}
		// Filter the assembled set, not just the rules, so built-in
		// heuristic IDs can be disabled too.
		extractor = extractor.Without(disabled)
	}
	return extractor, nil
}

func buildDriver(timeout time.Duration) (*worker.Driver, error) {
	eng := radare.New(&radare.Config{
		Binary:             flagEngine,
		IncludeDisasm:      flagDisasm > 0,
		DisasmInstructions: flagDisasm,
		IncludeCallGraph:   flagCallGraph,
	})

	var extractor *heuristics.Extractor
	if !flagSkipExtraction {
		var err error
		extractor, err = buildExtractor()
		if err != nil {
			return nil, err
		}
	}

	maxEngines := flagMaxEngines
	if maxEngines == 0 {
		maxEngines = flagWorkers
	}

	return worker.NewDriver(eng, extractor, worker.Config{
		EngineTimeout:        timeout,
		MaxSampleSize:        flagMaxSize,
		SkipExtraction:       flagSkipExtraction,
		MaxConcurrentEngines: maxEngines,
	})
}

func driverEngineName() string {
	if flagEngine != "" {
		return flagEngine
	}
	return radare.DefaultBinary
}

func contextWithInterrupt() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func writeOutput(result *output.Result) error {
	output.ToolVersion = Version

	formatter, ok := output.ByName(strings.ToLower(flagFormat))
	if !ok {
		return fmt.Errorf("unknown format %q", flagFormat)
	}
	if tf, isTerminal := formatter.(*output.TerminalFormatter); isTerminal {
		tf.NoColor = flagNoColor
		tf.Verbose = flagVerbose
	}

	w := os.Stdout
	if flagOutput != "" {
		f, err := os.Create(flagOutput)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	return formatter.Format(w, result)
}

func checkFailOnSignal(reports []*types.AnalysisReport) error {
	if flagFailOnSignal <= 0 {
		return nil
	}
	for _, r := range reports {
		for _, sig := range r.Signals {
			if sig.Score >= flagFailOnSignal {
				os.Exit(1)
			}
		}
	}
	return nil
}
