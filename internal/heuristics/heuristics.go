// Package heuristics derives higher-level signals from a normalized
// analysis report: packer indicators, suspicious import usage, and
// control-flow shape. The heuristic set is fixed per Version; each
// heuristic is independent, and one lacking its inputs is skipped rather
// than failing the extraction.
package heuristics

import (
	"sort"

	"github.com/shingmt/prp-disasm/internal/types"
)

// Version identifies the heuristic set. It is recorded on every report so
// consumers can detect when the set changes.
const Version = "1"

// Heuristic computes one signal from a report. Evaluate returns false when
// the signal is absent, either because the condition does not hold or
// because the report lacks the fields the heuristic depends on.
type Heuristic interface {
	ID() string
	Description() string
	Evaluate(r *types.AnalysisReport) (types.Signal, bool)
}

// Extractor runs a fixed set of heuristics over reports.
type Extractor struct {
	heuristics []Heuristic
}

// NewExtractor builds an extractor from the built-in heuristics plus one
// import heuristic per compiled rule.
func NewExtractor(rules []*CompiledRule) *Extractor {
	hs := []Heuristic{
		&PackedEntropy{},
		&NoFunctions{},
		&SparseCode{},
		&Stripped{},
	}
	for _, r := range rules {
		hs = append(hs, &ImportGroup{Rule: r})
	}
	return &Extractor{heuristics: hs}
}

// Heuristics returns the extractor's heuristic set in evaluation order.
func (e *Extractor) Heuristics() []Heuristic {
	return e.heuristics
}

// Without returns an extractor with the named heuristics removed. IDs are
// matched against the full set, built-in and rule-backed alike.
func (e *Extractor) Without(disabled map[string]bool) *Extractor {
	if len(disabled) == 0 {
		return e
	}
	kept := make([]Heuristic, 0, len(e.heuristics))
	for _, h := range e.heuristics {
		if disabled[h.ID()] {
			continue
		}
		kept = append(kept, h)
	}
	return &Extractor{heuristics: kept}
}

// Extract evaluates every heuristic against the report. It is a pure
// function of the report: the report is not mutated and repeated calls
// yield identical signal sequences.
func (e *Extractor) Extract(r *types.AnalysisReport) []types.Signal {
	var signals []types.Signal
	for _, h := range e.heuristics {
		sig, ok := h.Evaluate(r)
		if !ok {
			continue
		}
		signals = append(signals, sig)
	}
	return postProcess(signals)
}

// postProcess deduplicates signals by name (highest score wins) and orders
// them by score descending, then name.
func postProcess(signals []types.Signal) []types.Signal {
	best := make(map[string]types.Signal, len(signals))
	for _, s := range signals {
		if existing, ok := best[s.Name]; !ok || s.Score > existing.Score {
			best[s.Name] = s
		}
	}
	result := make([]types.Signal, 0, len(best))
	for _, s := range best {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].Name < result[j].Name
	})
	if len(result) == 0 {
		return nil
	}
	return result
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
