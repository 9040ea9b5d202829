package heuristics

import (
	"fmt"
	"strings"

	"github.com/shingmt/prp-disasm/internal/types"
)

// packedThreshold is the entropy above which a sample is flagged as
// likely packed or encrypted.
const packedThreshold = 7.5

// PackedEntropy flags samples whose byte entropy suggests packing. The
// score is the entropy normalized to 0..1 (entropy/10).
type PackedEntropy struct{}

func (*PackedEntropy) ID() string { return "packed" }

func (*PackedEntropy) Description() string {
	return fmt.Sprintf("Sample entropy above %.1f bits/byte, typical of packed or encrypted payloads.", packedThreshold)
}

func (*PackedEntropy) Evaluate(r *types.AnalysisReport) (types.Signal, bool) {
	if r.Entropy == types.EntropyUnknown {
		return types.Signal{}, false
	}
	if r.Entropy <= packedThreshold {
		return types.Signal{}, false
	}
	return types.Signal{
		Name:     "packed",
		Score:    clamp01(r.Entropy / 10),
		Evidence: []string{fmt.Sprintf("entropy=%.2f", r.Entropy)},
	}, true
}

// NoFunctions flags binaries where analysis recovered no functions at
// all, a common trait of packed stubs. Skipped when the function section
// was never produced (nil, as opposed to known-empty).
type NoFunctions struct{}

func (*NoFunctions) ID() string { return "no-functions" }

func (*NoFunctions) Description() string {
	return "Analysis recovered no functions, suggesting an obfuscated or non-native payload."
}

func (*NoFunctions) Evaluate(r *types.AnalysisReport) (types.Signal, bool) {
	if r.Functions == nil {
		return types.Signal{}, false
	}
	if len(r.Functions) > 0 {
		return types.Signal{}, false
	}
	return types.Signal{Name: "no-functions", Score: 0.6}, true
}

// SparseCode flags samples whose recovered code covers a tiny fraction of
// the file, another packer trait.
type SparseCode struct{}

func (*SparseCode) ID() string { return "sparse-code" }

func (*SparseCode) Description() string {
	return "Recovered code covers under 2% of the file; most of the sample is opaque data."
}

func (*SparseCode) Evaluate(r *types.AnalysisReport) (types.Signal, bool) {
	if len(r.Functions) == 0 || r.SampleSize <= 0 {
		return types.Signal{}, false
	}
	var code uint64
	for _, fn := range r.Functions {
		code += fn.Size
	}
	ratio := float64(code) / float64(r.SampleSize)
	if ratio >= 0.02 {
		return types.Signal{}, false
	}
	return types.Signal{
		Name:     "sparse-code",
		Score:    clamp01(0.7 - ratio*10),
		Evidence: []string{fmt.Sprintf("code_ratio=%.4f", ratio)},
	}, true
}

// Stripped flags binaries where nearly all recovered functions lack
// resolved names.
type Stripped struct{}

func (*Stripped) ID() string { return "stripped" }

func (*Stripped) Description() string {
	return "Over 80% of recovered functions have no symbol name."
}

func (*Stripped) Evaluate(r *types.AnalysisReport) (types.Signal, bool) {
	if len(r.Functions) < 3 {
		return types.Signal{}, false
	}
	unnamed := 0
	for _, fn := range r.Functions {
		if fn.Name == "" || strings.HasPrefix(fn.Name, "fcn.") {
			unnamed++
		}
	}
	ratio := float64(unnamed) / float64(len(r.Functions))
	if ratio <= 0.8 {
		return types.Signal{}, false
	}
	return types.Signal{
		Name:     "stripped",
		Score:    clamp01(ratio),
		Evidence: []string{fmt.Sprintf("unnamed=%d/%d", unnamed, len(r.Functions))},
	}, true
}

// ImportGroup flags reports whose imports match a compiled suspicious-API
// rule. One independent heuristic instance exists per rule.
type ImportGroup struct {
	Rule *CompiledRule
}

func (h *ImportGroup) ID() string          { return h.Rule.ID }
func (h *ImportGroup) Description() string { return h.Rule.Description }

func (h *ImportGroup) Evaluate(r *types.AnalysisReport) (types.Signal, bool) {
	if r.Imports == nil {
		return types.Signal{}, false
	}
	var matched []string
	for _, imp := range r.Imports {
		if h.Rule.APISet[strings.ToLower(imp.Name)] {
			matched = append(matched, imp.Name)
		}
	}
	if len(matched) < h.Rule.MinMatches {
		return types.Signal{}, false
	}
	return types.Signal{
		Name:     h.Rule.Signal,
		Score:    clamp01(h.Rule.Score),
		Evidence: matched,
	}, true
}
