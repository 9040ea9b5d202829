// Package engine defines the boundary to the external disassembly engine:
// the Engine interface, the opaque raw output it produces, and the error
// taxonomy adapters report against.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/shingmt/prp-disasm/internal/sample"
)

// Section names under which adapters key their raw output. The normalizer
// treats every section as optional.
const (
	SectionInfo      = "info"
	SectionFunctions = "functions"
	SectionStrings   = "strings"
	SectionImports   = "imports"
	SectionExports   = "exports"
	SectionEntropy   = "entropy"
	SectionCallGraph = "callgraph"
	SectionDisasm    = "disasm"
)

// RawOutput is engine-specific structured data keyed by section. It is
// created and consumed within a single analysis and never retained.
type RawOutput map[string]json.RawMessage

// Engine drives an external analysis tool against a sample.
type Engine interface {
	Name() string
	// Analyze runs the engine against the sample, bounded by timeout.
	// Implementations must terminate any subprocess they spawn on every
	// exit path, including timeout and caller cancellation.
	Analyze(ctx context.Context, s *sample.Sample, timeout time.Duration) (RawOutput, error)
}

var (
	// ErrEngineUnavailable means the engine binary could not be launched.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrTimedOut means the engine exceeded the configured timeout.
	ErrTimedOut = errors.New("engine timed out")
	// ErrEngineCrashed means the engine exited non-zero or emitted
	// unparsable output.
	ErrEngineCrashed = errors.New("engine crashed")
)

// ShannonEntropy returns the byte-level Shannon entropy of data in bits
// (0..8). Empty input has zero entropy.
func ShannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	total := float64(len(data))
	var entropy float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
