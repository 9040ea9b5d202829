// Package prpdisasm provides a public API for static analysis of binary
// samples with an external disassembly engine.
//
// This is the library entry point. For the CLI tool, see cmd/prp-disasm/.
package prpdisasm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shingmt/prp-disasm/internal/engine/radare"
	"github.com/shingmt/prp-disasm/internal/heuristics"
	"github.com/shingmt/prp-disasm/internal/metrics"
	"github.com/shingmt/prp-disasm/internal/sample"
	"github.com/shingmt/prp-disasm/internal/types"
	"github.com/shingmt/prp-disasm/internal/worker"
)

// Re-export core types from internal/types so consumers don't need to
// import internal packages.
type (
	Status         = types.Status
	Reason         = types.Reason
	Function       = types.Function
	Symbol         = types.Symbol
	Signal         = types.Signal
	CallGraphNode  = types.CallGraphNode
	AnalysisReport = types.AnalysisReport
)

const (
	StatusComplete       = types.StatusComplete
	StatusPartialTimeout = types.StatusPartialTimeout
	StatusPartialError   = types.StatusPartialError
	StatusFailed         = types.StatusFailed
)

const (
	ReasonSampleTooLarge  = types.ReasonSampleTooLarge
	ReasonEngineUnavail   = types.ReasonEngineUnavail
	ReasonTimedOut        = types.ReasonTimedOut
	ReasonEngineCrashed   = types.ReasonEngineCrashed
	ReasonMalformedOutput = types.ReasonMalformedOutput
)

// HeuristicInfo provides summary metadata about one heuristic.
type HeuristicInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// HeuristicDetail provides full information about a rule-backed heuristic,
// including the API names it matches.
type HeuristicDetail struct {
	ID          string   `json:"id"`
	Signal      string   `json:"signal"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	Score       float64  `json:"score,omitempty"`
	MinMatches  int      `json:"min_matches,omitempty"`
	APIs        []string `json:"apis,omitempty"`
}

// AnalyzeFile analyzes a sample from disk. The returned report is always
// non-nil on a nil error; analysis failures surface as its Status and
// Reason, not as errors.
func AnalyzeFile(ctx context.Context, path string, opts ...Option) (*AnalysisReport, error) {
	s, err := sample.FromFile(path)
	if err != nil {
		return nil, err
	}
	cfg := applyOpts(opts)
	d, err := buildDriver(cfg)
	if err != nil {
		return nil, err
	}
	return d.Run(ctx, s)
}

// AnalyzeBytes analyzes an in-memory sample. name is a declared-filename
// hint and may be empty.
func AnalyzeBytes(ctx context.Context, data []byte, name string, opts ...Option) (*AnalysisReport, error) {
	cfg := applyOpts(opts)
	d, err := buildDriver(cfg)
	if err != nil {
		return nil, err
	}
	return d.Run(ctx, sample.FromBytes(data, name))
}

// AnalyzeDir discovers executable files under root and analyzes them in
// parallel. Reports come back in discovery order.
func AnalyzeDir(ctx context.Context, root string, opts ...Option) ([]*AnalysisReport, error) {
	cfg := applyOpts(opts)
	disc := &sample.Discovery{IgnorePatterns: cfg.ignorePatterns}
	paths, err := disc.Discover(root)
	if err != nil {
		return nil, fmt.Errorf("discovering samples under %s: %w", root, err)
	}

	samples := make([]*sample.Sample, 0, len(paths))
	for _, p := range paths {
		s, err := sample.FromFile(p)
		if err != nil {
			continue
		}
		samples = append(samples, s)
	}

	d, err := buildDriver(cfg)
	if err != nil {
		return nil, err
	}
	pool := worker.NewPool(d, cfg.workers)
	return pool.RunAll(ctx, samples), nil
}

// ListHeuristics returns all heuristics the extractor would run, built-in
// and rule-backed.
func ListHeuristics(opts ...Option) ([]HeuristicInfo, error) {
	cfg := applyOpts(opts)
	extractor, err := buildExtractor(cfg)
	if err != nil {
		return nil, err
	}
	hs := extractor.Heuristics()
	infos := make([]HeuristicInfo, len(hs))
	for i, h := range hs {
		infos[i] = HeuristicInfo{ID: h.ID(), Description: h.Description()}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// ExplainHeuristic returns detailed information about one heuristic.
func ExplainHeuristic(id string, opts ...Option) (*HeuristicDetail, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	cfg := applyOpts(opts)
	extractor, err := buildExtractor(cfg)
	if err != nil {
		return nil, err
	}

	for _, h := range extractor.Heuristics() {
		if h.ID() != id {
			continue
		}
		detail := &HeuristicDetail{ID: h.ID(), Description: h.Description()}
		if ig, ok := h.(*heuristics.ImportGroup); ok {
			detail.Signal = ig.Rule.Signal
			detail.Category = ig.Rule.Category
			detail.Score = ig.Rule.Score
			detail.MinMatches = ig.Rule.MinMatches
			detail.APIs = ig.Rule.APIs
		}
		return detail, nil
	}
	return nil, fmt.Errorf("heuristic %q not found", id)
}

// ExtractorVersion is the version of the heuristic set recorded on
// reports.
func ExtractorVersion() string {
	return heuristics.Version
}

// --- internal helpers ---

func applyOpts(opts []Option) *analyzeConfig {
	cfg := &analyzeConfig{}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// buildExtractor loads built-in (and optionally custom) rules, compiles
// them, and applies the disabled set.
func buildExtractor(cfg *analyzeConfig) (*heuristics.Extractor, error) {
	rules, err := heuristics.LoadBuiltin()
	if err != nil {
		return nil, err
	}

	if cfg.customRulesDir != "" {
		raws, err := heuristics.LoadFromDir(cfg.customRulesDir)
		if err != nil {
			return nil, fmt.Errorf("loading custom rules from %s: %w", cfg.customRulesDir, err)
		}
		custom, compileErrs := heuristics.CompileAll(raws)
		for _, e := range compileErrs {
			fmt.Fprintf(os.Stderr, "prp-disasm: warning: %v\n", e)
		}
		rules = append(rules, custom...)
	}

	extractor := heuristics.NewExtractor(rules)
	if len(cfg.disabledHeuristics) > 0 {
		disabled := make(map[string]bool, len(cfg.disabledHeuristics))
		for _, id := range cfg.disabledHeuristics {
			disabled[strings.TrimSpace(id)] = true
		}
		// Filter the assembled set, not just the rules, so built-in
		// heuristic IDs can be disabled too.
		extractor = extractor.Without(disabled)
	}
	return extractor, nil
}

// buildDriver creates a fully wired driver around the configured engine.
func buildDriver(cfg *analyzeConfig) (*worker.Driver, error) {
	eng := radare.New(&radare.Config{
		Binary:             cfg.enginePath,
		IncludeDisasm:      cfg.includeDisasm,
		DisasmInstructions: cfg.disasmInstructions,
		IncludeCallGraph:   cfg.includeCallGraph,
	})

	var extractor *heuristics.Extractor
	if !cfg.skipExtraction {
		var err error
		extractor, err = buildExtractor(cfg)
		if err != nil {
			return nil, err
		}
	}

	d, err := worker.NewDriver(eng, extractor, worker.Config{
		EngineTimeout:        cfg.engineTimeout,
		MaxSampleSize:        cfg.maxSampleSize,
		SkipExtraction:       cfg.skipExtraction,
		MaxConcurrentEngines: cfg.maxConcurrentEngines,
	})
	if err != nil {
		return nil, err
	}
	if cfg.registry != nil {
		d.SetMetrics(metrics.New(cfg.registry))
	}
	return d, nil
}
