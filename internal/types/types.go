// Package types defines shared data structures (AnalysisReport, Signal,
// Status) used across engine, normalize, heuristics, and worker packages
// to prevent import cycles.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the outcome of a sample analysis.
type Status int

const (
	StatusComplete Status = iota
	StatusPartialTimeout
	StatusPartialError
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "COMPLETE"
	case StatusPartialTimeout:
		return "PARTIAL_TIMEOUT"
	case StatusPartialError:
		return "PARTIAL_ERROR"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus converts a string to a Status.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "COMPLETE":
		return StatusComplete, nil
	case "PARTIAL_TIMEOUT":
		return StatusPartialTimeout, nil
	case "PARTIAL_ERROR":
		return StatusPartialError, nil
	case "FAILED":
		return StatusFailed, nil
	default:
		return StatusFailed, fmt.Errorf("unknown status: %q", s)
	}
}

// Downgrade returns the worse of the two statuses. A report's status only
// moves toward FAILED, never back toward COMPLETE.
func (s Status) Downgrade(to Status) Status {
	if to > s {
		return to
	}
	return s
}

// MarshalJSON serializes Status as its string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses the string form of Status.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Reason classifies why an analysis did not complete.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonSampleTooLarge  Reason = "sample-too-large"
	ReasonEngineUnavail   Reason = "engine-unavailable"
	ReasonTimedOut        Reason = "timed-out"
	ReasonEngineCrashed   Reason = "engine-crashed"
	ReasonMalformedOutput Reason = "malformed-output"
)

// EngineFailure reports whether the reason describes the engine
// invocation itself, as opposed to gating (sample-too-large) or
// post-processing (malformed-output) outcomes.
func (r Reason) EngineFailure() bool {
	switch r {
	case ReasonEngineUnavail, ReasonTimedOut, ReasonEngineCrashed:
		return true
	}
	return false
}

// EntropyUnknown is the sentinel recorded when the engine produced no
// entropy value for a sample.
const EntropyUnknown float64 = -1

// Function is a discovered function in the analyzed binary.
type Function struct {
	Address uint64 `json:"address"`
	Size    uint64 `json:"size"`
	// Name is empty when the engine could not resolve a symbol.
	Name string `json:"name,omitempty"`
}

// Symbol is an imported or exported symbol.
type Symbol struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// CallGraphNode is one function in the global call graph, with the names
// of the functions it calls.
type CallGraphNode struct {
	Name  string   `json:"name"`
	Calls []string `json:"calls,omitempty"`
}

// Signal is a derived heuristic observation attached to a report.
type Signal struct {
	Name     string   `json:"name"`
	Score    float64  `json:"score"`
	Evidence []string `json:"evidence,omitempty"`
}

// AnalysisReport is the stable output entity of the worker. Its sample
// identity fields are set once by the driver and never mutated afterward.
type AnalysisReport struct {
	SampleHash string `json:"sample_hash"`
	SampleName string `json:"sample_name,omitempty"`
	SampleSize int64  `json:"sample_size"`

	Format    string     `json:"format"`
	Functions []Function `json:"functions"`
	Strings   []string   `json:"strings"`
	Imports   []Symbol   `json:"imports"`
	Exports   []Symbol   `json:"exports"`
	// Entropy is EntropyUnknown (-1) when the engine reported none.
	Entropy float64 `json:"entropy"`
	// Disassembly is the cleaned instruction listing, present only when
	// the engine was asked to produce one.
	Disassembly []string `json:"disassembly,omitempty"`
	// CallGraph is the global call graph, present only when the engine
	// was asked to produce one.
	CallGraph []CallGraphNode `json:"call_graph,omitempty"`

	Status  Status   `json:"status"`
	Reason  Reason   `json:"reason,omitempty"`
	Signals []Signal `json:"signals,omitempty"`

	Engine           string        `json:"engine,omitempty"`
	ExtractorVersion string        `json:"extractor_version,omitempty"`
	Duration         time.Duration `json:"-"`
}

// MarshalJSON implements custom JSON marshaling so Duration serializes as
// milliseconds.
func (r AnalysisReport) MarshalJSON() ([]byte, error) {
	type Alias AnalysisReport
	return json.Marshal(struct {
		Alias
		DurationMS int64 `json:"duration_ms"`
	}{
		Alias:      Alias(r),
		DurationMS: r.Duration.Milliseconds(),
	})
}

// SignalByName returns the named signal, or false when absent.
func (r *AnalysisReport) SignalByName(name string) (Signal, bool) {
	for _, s := range r.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return Signal{}, false
}
