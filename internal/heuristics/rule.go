package heuristics

import (
	"fmt"
	"strings"
)

// RawRule is the YAML representation of a suspicious-import heuristic.
type RawRule struct {
	ID          string   `yaml:"id"`
	Signal      string   `yaml:"signal"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category"`
	Score       float64  `yaml:"score"`
	MinMatches  int      `yaml:"min_matches"`
	APIs        []string `yaml:"apis"`
}

// CompiledRule is a rule ready for evaluation.
type CompiledRule struct {
	ID          string
	Signal      string
	Description string
	Category    string
	Score       float64
	MinMatches  int
	APIs        []string
	APISet      map[string]bool
}

// Compile validates a raw rule and prepares its lowercase API set.
func Compile(raw RawRule) (*CompiledRule, error) {
	if raw.ID == "" {
		return nil, fmt.Errorf("rule missing ID")
	}
	if len(raw.APIs) == 0 {
		return nil, fmt.Errorf("rule %s: no APIs defined", raw.ID)
	}
	if raw.Score <= 0 || raw.Score > 1 {
		return nil, fmt.Errorf("rule %s: score must be in (0,1], got %g", raw.ID, raw.Score)
	}

	compiled := &CompiledRule{
		ID:          raw.ID,
		Signal:      raw.Signal,
		Description: raw.Description,
		Category:    raw.Category,
		Score:       raw.Score,
		MinMatches:  raw.MinMatches,
		APIs:        raw.APIs,
		APISet:      make(map[string]bool, len(raw.APIs)),
	}
	if compiled.Signal == "" {
		compiled.Signal = compiled.ID
	}
	if compiled.MinMatches <= 0 {
		compiled.MinMatches = 1
	}
	for _, api := range raw.APIs {
		compiled.APISet[strings.ToLower(api)] = true
	}
	return compiled, nil
}

// CompileAll compiles every rule, collecting per-rule errors instead of
// aborting on the first bad one.
func CompileAll(raws []RawRule) ([]*CompiledRule, []error) {
	var compiled []*CompiledRule
	var errs []error
	for _, raw := range raws {
		c, err := Compile(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		compiled = append(compiled, c)
	}
	return compiled, errs
}
