package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter outputs reports as a JSON document.
type JSONFormatter struct{}

type jsonResult struct {
	Target     string `json:"target,omitempty"`
	Engine     string `json:"engine,omitempty"`
	Reports    any    `json:"reports"`
	DurationMS int64  `json:"duration_ms"`
}

func (f *JSONFormatter) Format(w io.Writer, result *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonResult{
		Target:     result.Target,
		Engine:     result.Engine,
		Reports:    result.Reports,
		DurationMS: result.Duration.Milliseconds(),
	})
}
