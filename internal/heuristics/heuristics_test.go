package heuristics_test

import (
	"testing"

	"github.com/shingmt/prp-disasm/internal/heuristics"
	"github.com/shingmt/prp-disasm/internal/heuristics/builtin"
	"github.com/shingmt/prp-disasm/internal/types"
	"github.com/stretchr/testify/require"
)

func builtinExtractor(t *testing.T) *heuristics.Extractor {
	t.Helper()
	raws, err := heuristics.LoadFromFS(builtin.FS())
	require.NoError(t, err)
	compiled, errs := heuristics.CompileAll(raws)
	require.Empty(t, errs)
	require.NotEmpty(t, compiled)
	return heuristics.NewExtractor(compiled)
}

func TestPackedSignalAboveThreshold(t *testing.T) {
	e := builtinExtractor(t)
	report := &types.AnalysisReport{Entropy: 7.9}

	signals := e.Extract(report)
	var packed *types.Signal
	for i := range signals {
		if signals[i].Name == "packed" {
			packed = &signals[i]
		}
	}
	require.NotNil(t, packed)
	require.InDelta(t, 0.79, packed.Score, 1e-9)
}

func TestNoPackedSignalBelowThreshold(t *testing.T) {
	e := builtinExtractor(t)
	report := &types.AnalysisReport{Entropy: 3.2}

	for _, s := range e.Extract(report) {
		require.NotEqual(t, "packed", s.Name)
	}
}

func TestPackedSkippedOnSentinelEntropy(t *testing.T) {
	e := builtinExtractor(t)
	report := &types.AnalysisReport{Entropy: types.EntropyUnknown}

	// Missing entropy means the heuristic is absent, not an error, and it
	// must not block the other heuristics.
	report.Imports = []types.Symbol{
		{Name: "CreateRemoteThread"},
		{Name: "WriteProcessMemory"},
	}
	signals := e.Extract(report)
	names := signalNames(signals)
	require.NotContains(t, names, "packed")
	require.Contains(t, names, "process-injection")
}

func TestImportGroupEvidence(t *testing.T) {
	e := builtinExtractor(t)
	report := &types.AnalysisReport{
		Entropy: types.EntropyUnknown,
		Imports: []types.Symbol{
			{Name: "VirtualAllocEx", Type: "FUNC"},
			{Name: "writeprocessmemory", Type: "FUNC"}, // matching is case-insensitive
			{Name: "printf", Type: "FUNC"},
		},
	}
	signals := e.Extract(report)
	sig, ok := findSignal(signals, "process-injection")
	require.True(t, ok)
	require.InDelta(t, 0.9, sig.Score, 1e-9)
	require.ElementsMatch(t, []string{"VirtualAllocEx", "writeprocessmemory"}, sig.Evidence)
}

func TestImportGroupMinMatches(t *testing.T) {
	e := builtinExtractor(t)
	report := &types.AnalysisReport{
		Entropy: types.EntropyUnknown,
		Imports: []types.Symbol{{Name: "VirtualAllocEx"}},
	}
	// One injection API alone is below the rule's min_matches of two.
	_, ok := findSignal(e.Extract(report), "process-injection")
	require.False(t, ok)
}

func TestNoFunctionsRequiresKnownEmpty(t *testing.T) {
	e := builtinExtractor(t)

	// nil Functions: the engine never produced the section, so the
	// heuristic has nothing to say.
	_, ok := findSignal(e.Extract(&types.AnalysisReport{Entropy: types.EntropyUnknown}), "no-functions")
	require.False(t, ok)

	report := &types.AnalysisReport{
		Entropy:   types.EntropyUnknown,
		Functions: []types.Function{},
	}
	sig, ok := findSignal(e.Extract(report), "no-functions")
	require.True(t, ok)
	require.InDelta(t, 0.6, sig.Score, 1e-9)
}

func TestStrippedSignal(t *testing.T) {
	e := builtinExtractor(t)
	report := &types.AnalysisReport{
		Entropy: types.EntropyUnknown,
		Functions: []types.Function{
			{Address: 1, Name: ""},
			{Address: 2, Name: "fcn.00400010"},
			{Address: 3, Name: ""},
			{Address: 4, Name: ""},
			{Address: 5, Name: ""},
			{Address: 6, Name: "main"},
		},
	}
	sig, ok := findSignal(e.Extract(report), "stripped")
	require.True(t, ok)
	require.InDelta(t, 5.0/6.0, sig.Score, 1e-9)
}

func TestStrippedBelowRatio(t *testing.T) {
	e := builtinExtractor(t)
	report := &types.AnalysisReport{
		Entropy: types.EntropyUnknown,
		Functions: []types.Function{
			{Address: 1, Name: "main"},
			{Address: 2, Name: "init"},
			{Address: 3, Name: ""},
		},
	}
	_, ok := findSignal(e.Extract(report), "stripped")
	require.False(t, ok)
}

func TestSparseCode(t *testing.T) {
	e := builtinExtractor(t)
	report := &types.AnalysisReport{
		Entropy:    types.EntropyUnknown,
		SampleSize: 1 << 20,
		Functions:  []types.Function{{Address: 0x1000, Size: 64, Name: "main"}},
	}
	sig, ok := findSignal(e.Extract(report), "sparse-code")
	require.True(t, ok)
	require.Greater(t, sig.Score, 0.0)
}

func TestExtractIdempotent(t *testing.T) {
	e := builtinExtractor(t)
	report := &types.AnalysisReport{
		Entropy:    7.9,
		SampleSize: 4096,
		Imports: []types.Symbol{
			{Name: "IsDebuggerPresent"},
			{Name: "LoadLibraryA"},
			{Name: "GetProcAddress"},
		},
		Functions: []types.Function{{Address: 1, Size: 32, Name: "main"}},
	}
	first := e.Extract(report)
	second := e.Extract(report)
	require.Equal(t, first, second)
	require.NotEmpty(t, first)

	// Ordered by score descending, then name.
	for i := 1; i < len(first); i++ {
		if first[i-1].Score == first[i].Score {
			require.Less(t, first[i-1].Name, first[i].Name)
		} else {
			require.Greater(t, first[i-1].Score, first[i].Score)
		}
	}
}

func TestCompileValidation(t *testing.T) {
	_, err := heuristics.Compile(heuristics.RawRule{ID: "", APIs: []string{"x"}, Score: 0.5})
	require.Error(t, err)

	_, err = heuristics.Compile(heuristics.RawRule{ID: "r", Score: 0.5})
	require.Error(t, err)

	_, err = heuristics.Compile(heuristics.RawRule{ID: "r", APIs: []string{"x"}, Score: 1.5})
	require.Error(t, err)

	c, err := heuristics.Compile(heuristics.RawRule{ID: "r", APIs: []string{"X"}, Score: 0.5})
	require.NoError(t, err)
	require.Equal(t, "r", c.Signal, "signal defaults to rule ID")
	require.Equal(t, 1, c.MinMatches)
	require.True(t, c.APISet["x"])
}

func TestWithoutRemovesRuleBacked(t *testing.T) {
	e := builtinExtractor(t).Without(map[string]bool{"process-injection": true})
	report := &types.AnalysisReport{
		Entropy: types.EntropyUnknown,
		Imports: []types.Symbol{
			{Name: "VirtualAllocEx"},
			{Name: "WriteProcessMemory"},
		},
	}
	_, ok := findSignal(e.Extract(report), "process-injection")
	require.False(t, ok)
}

func TestWithoutRemovesBuiltins(t *testing.T) {
	e := builtinExtractor(t).Without(map[string]bool{"packed": true, "stripped": true})

	for _, h := range e.Heuristics() {
		require.NotEqual(t, "packed", h.ID())
		require.NotEqual(t, "stripped", h.ID())
	}

	// A report that would trip both disabled heuristics stays quiet.
	report := &types.AnalysisReport{
		Entropy: 7.9,
		Functions: []types.Function{
			{Address: 1}, {Address: 2}, {Address: 3}, {Address: 4},
		},
	}
	names := signalNames(e.Extract(report))
	require.NotContains(t, names, "packed")
	require.NotContains(t, names, "stripped")
}

func TestWithoutEmptySetIsIdentity(t *testing.T) {
	e := builtinExtractor(t)
	require.Same(t, e, e.Without(nil))
}

func findSignal(signals []types.Signal, name string) (types.Signal, bool) {
	for _, s := range signals {
		if s.Name == name {
			return s, true
		}
	}
	return types.Signal{}, false
}

func signalNames(signals []types.Signal) []string {
	names := make([]string, 0, len(signals))
	for _, s := range signals {
		names = append(names, s.Name)
	}
	return names
}
