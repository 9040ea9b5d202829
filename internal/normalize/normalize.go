// Package normalize transforms raw engine output into the stable
// AnalysisReport schema. It is pure and deterministic: no I/O, and the
// same raw input always yields the same report.
//
// Engine versions vary, so every section and field is optional: absent
// function names stay empty, absent entropy becomes the EntropyUnknown
// sentinel, absent sections become empty sets. Normalization fails only
// when a present section cannot be parsed as its expected shape at all.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/shingmt/prp-disasm/internal/engine"
	"github.com/shingmt/prp-disasm/internal/types"
)

// MalformedOutputError reports a raw section that does not match the
// expected shape.
type MalformedOutputError struct {
	Section string
	Err     error
}

func (e *MalformedOutputError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("malformed engine output: %v", e.Err)
	}
	return fmt.Sprintf("malformed engine output: section %q: %v", e.Section, e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// rawInfo mirrors the subset of the engine's file-info document we consume.
type rawInfo struct {
	Bin struct {
		BinType string `json:"bintype"`
		Arch    string `json:"arch"`
		Bits    int    `json:"bits"`
	} `json:"bin"`
}

type rawFunction struct {
	Name   string `json:"name"`
	Offset uint64 `json:"offset"`
	Size   uint64 `json:"size"`
}

type rawString struct {
	String string `json:"string"`
}

type rawSymbol struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// rawGraphNode mirrors one node of the engine's call-graph document,
// where "imports" lists the callees.
type rawGraphNode struct {
	Name    string   `json:"name"`
	Imports []string `json:"imports"`
}

// Normalize converts raw engine output into an AnalysisReport with
// Status Complete. Sample identity and engine metadata are attached by
// the caller, not here.
func Normalize(raw engine.RawOutput) (*types.AnalysisReport, error) {
	if raw == nil {
		return nil, &MalformedOutputError{Err: fmt.Errorf("no output")}
	}

	report := &types.AnalysisReport{
		Format:  "unknown",
		Entropy: types.EntropyUnknown,
		Status:  types.StatusComplete,
	}

	if doc, ok := raw[engine.SectionInfo]; ok {
		var info rawInfo
		if err := json.Unmarshal(doc, &info); err != nil {
			return nil, &MalformedOutputError{Section: engine.SectionInfo, Err: err}
		}
		report.Format = formatLabel(info)
	}

	if doc, ok := raw[engine.SectionFunctions]; ok {
		var fns []rawFunction
		if err := json.Unmarshal(doc, &fns); err != nil {
			return nil, &MalformedOutputError{Section: engine.SectionFunctions, Err: err}
		}
		report.Functions = make([]types.Function, 0, len(fns))
		for _, fn := range fns {
			report.Functions = append(report.Functions, types.Function{
				Address: fn.Offset,
				Size:    fn.Size,
				Name:    fn.Name,
			})
		}
		sort.Slice(report.Functions, func(i, j int) bool {
			return report.Functions[i].Address < report.Functions[j].Address
		})
	}

	if doc, ok := raw[engine.SectionStrings]; ok {
		strs, err := normalizeStrings(doc)
		if err != nil {
			return nil, err
		}
		report.Strings = strs
	}

	var err error
	if report.Imports, err = normalizeSymbols(raw, engine.SectionImports); err != nil {
		return nil, err
	}
	if report.Exports, err = normalizeSymbols(raw, engine.SectionExports); err != nil {
		return nil, err
	}

	if doc, ok := raw[engine.SectionCallGraph]; ok {
		graph, err := normalizeCallGraph(doc)
		if err != nil {
			return nil, err
		}
		report.CallGraph = graph
	}

	if doc, ok := raw[engine.SectionEntropy]; ok {
		var entropy *float64
		if err := json.Unmarshal(doc, &entropy); err != nil {
			return nil, &MalformedOutputError{Section: engine.SectionEntropy, Err: err}
		}
		if entropy != nil {
			report.Entropy = *entropy
		}
	}

	return report, nil
}

func normalizeStrings(doc json.RawMessage) ([]string, error) {
	var entries []rawString
	if err := json.Unmarshal(doc, &entries); err != nil {
		return nil, &MalformedOutputError{Section: engine.SectionStrings, Err: err}
	}
	seen := make(map[string]bool, len(entries))
	strs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.String == "" || seen[e.String] {
			continue
		}
		seen[e.String] = true
		strs = append(strs, e.String)
	}
	sort.Strings(strs)
	return strs, nil
}

func normalizeSymbols(raw engine.RawOutput, section string) ([]types.Symbol, error) {
	doc, ok := raw[section]
	if !ok {
		return nil, nil
	}
	var entries []rawSymbol
	if err := json.Unmarshal(doc, &entries); err != nil {
		return nil, &MalformedOutputError{Section: section, Err: err}
	}
	seen := make(map[string]bool, len(entries))
	symbols := make([]types.Symbol, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" || seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		symbols = append(symbols, types.Symbol{Name: e.Name, Type: e.Type})
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i].Name < symbols[j].Name })
	return symbols, nil
}

func normalizeCallGraph(doc json.RawMessage) ([]types.CallGraphNode, error) {
	var nodes []rawGraphNode
	if err := json.Unmarshal(doc, &nodes); err != nil {
		return nil, &MalformedOutputError{Section: engine.SectionCallGraph, Err: err}
	}
	graph := make([]types.CallGraphNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Name == "" {
			continue
		}
		graph = append(graph, types.CallGraphNode{Name: n.Name, Calls: n.Imports})
	}
	sort.Slice(graph, func(i, j int) bool { return graph[i].Name < graph[j].Name })
	return graph, nil
}

func formatLabel(info rawInfo) string {
	label := info.Bin.BinType
	if label == "" {
		return "unknown"
	}
	if info.Bin.Arch != "" {
		label += "-" + info.Bin.Arch
	}
	if info.Bin.Bits > 0 {
		label += "-" + strconv.Itoa(info.Bin.Bits)
	}
	return label
}
