package prpdisasm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// analyzeConfig holds the resolved configuration for an analysis.
type analyzeConfig struct {
	enginePath           string
	engineTimeout        time.Duration
	maxSampleSize        int64
	skipExtraction       bool
	maxConcurrentEngines int
	workers              int
	includeDisasm        bool
	disasmInstructions   int
	includeCallGraph     bool
	customRulesDir       string
	disabledHeuristics   []string
	ignorePatterns       []string
	registry             prometheus.Registerer
}

// Option configures an analysis operation.
type Option func(*analyzeConfig)

// WithEnginePath sets the path to the radare2 executable.
func WithEnginePath(path string) Option {
	return func(c *analyzeConfig) {
		c.enginePath = path
	}
}

// WithEngineTimeout bounds each engine invocation.
func WithEngineTimeout(d time.Duration) Option {
	return func(c *analyzeConfig) {
		c.engineTimeout = d
	}
}

// WithMaxSampleSize rejects samples larger than n bytes before any engine
// subprocess is spawned.
func WithMaxSampleSize(n int64) Option {
	return func(c *analyzeConfig) {
		c.maxSampleSize = n
	}
}

// WithSkipExtraction leaves reports without derived signals.
func WithSkipExtraction() Option {
	return func(c *analyzeConfig) {
		c.skipExtraction = true
	}
}

// WithMaxConcurrentEngines bounds engine subprocesses across an analysis
// (default: unbounded).
func WithMaxConcurrentEngines(n int) Option {
	return func(c *analyzeConfig) {
		c.maxConcurrentEngines = n
	}
}

// WithWorkers sets the number of samples analyzed in parallel by
// AnalyzeDir (default: NumCPU).
func WithWorkers(n int) Option {
	return func(c *analyzeConfig) {
		c.workers = n
	}
}

// WithDisassembly adds a cleaned instruction listing of up to n
// instructions to each report. n <= 0 uses the engine default.
func WithDisassembly(n int) Option {
	return func(c *analyzeConfig) {
		c.includeDisasm = true
		c.disasmInstructions = n
	}
}

// WithCallGraph adds the global call graph to each report.
func WithCallGraph() Option {
	return func(c *analyzeConfig) {
		c.includeCallGraph = true
	}
}

// WithCustomHeuristics loads additional import rules from a directory.
func WithCustomHeuristics(dir string) Option {
	return func(c *analyzeConfig) {
		c.customRulesDir = dir
	}
}

// WithDisabledHeuristics excludes specific heuristic IDs from extraction.
func WithDisabledHeuristics(ids ...string) Option {
	return func(c *analyzeConfig) {
		c.disabledHeuristics = append(c.disabledHeuristics, ids...)
	}
}

// WithIgnorePatterns sets file patterns to skip during directory
// discovery.
func WithIgnorePatterns(patterns []string) Option {
	return func(c *analyzeConfig) {
		c.ignorePatterns = patterns
	}
}

// WithMetrics registers Prometheus collectors on reg and attaches them to
// the driver. Pass prometheus.DefaultRegisterer to use the default
// registry.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *analyzeConfig) {
		c.registry = reg
	}
}
