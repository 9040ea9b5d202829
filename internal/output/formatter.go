// Package output formats analysis reports for terminal (ANSI), JSON,
// SARIF, and Markdown output.
package output

import (
	"io"
	"time"

	"github.com/shingmt/prp-disasm/internal/types"
)

// Result is a batch of analysis reports plus run metadata, the unit all
// formatters consume.
type Result struct {
	Target   string
	Engine   string
	Reports  []*types.AnalysisReport
	Duration time.Duration
}

// Formatter is the interface for outputting analysis results.
type Formatter interface {
	Format(w io.Writer, result *Result) error
}

// ByName returns the formatter for a format name, or false for an unknown
// name.
func ByName(name string) (Formatter, bool) {
	switch name {
	case "", "terminal":
		return &TerminalFormatter{}, true
	case "json":
		return &JSONFormatter{}, true
	case "markdown", "md":
		return &MarkdownFormatter{}, true
	case "sarif":
		return &SARIFFormatter{}, true
	default:
		return nil, false
	}
}
