package output

import (
	"encoding/json"
	"io"
)

// ToolVersion is the prp-disasm version reported in SARIF and Markdown
// output.
var ToolVersion = "dev"

// SARIFFormatter outputs signals in SARIF 2.1.0 format for GitHub Code
// Scanning. Each heuristic signal becomes one result against the sample
// artifact.
type SARIFFormatter struct{}

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool       sarifTool      `json:"tool"`
	Results    []sarifResult  `json:"results"`
	Properties map[string]any `json:"properties,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID     string          `json:"ruleId"`
	RuleIndex  int             `json:"ruleIndex"`
	Level      string          `json:"level"`
	Message    sarifMessage    `json:"message"`
	Locations  []sarifLocation `json:"locations"`
	Properties map[string]any  `json:"properties,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

func (f *SARIFFormatter) Format(w io.Writer, result *Result) error {
	// Collect unique signal names in order
	ruleIndex := map[string]int{}
	var rules []sarifRule
	for _, report := range result.Reports {
		for _, sig := range report.Signals {
			if _, ok := ruleIndex[sig.Name]; !ok {
				ruleIndex[sig.Name] = len(rules)
				rules = append(rules, sarifRule{
					ID:               sig.Name,
					Name:             sig.Name,
					ShortDescription: sarifMessage{Text: sig.Name},
					DefaultConfig:    sarifDefaultConfig{Level: scoreToLevel(sig.Score)},
				})
			}
		}
	}

	var results []sarifResult
	for _, report := range result.Reports {
		uri := report.SampleName
		if uri == "" {
			uri = report.SampleHash
		}
		for _, sig := range report.Signals {
			r := sarifResult{
				RuleID:    sig.Name,
				RuleIndex: ruleIndex[sig.Name],
				Level:     scoreToLevel(sig.Score),
				Message:   sarifMessage{Text: signalMessage(sig.Name, sig.Evidence)},
				Locations: []sarifLocation{
					{
						PhysicalLocation: sarifPhysicalLocation{
							ArtifactLocation: sarifArtifactLocation{URI: uri},
						},
					},
				},
				Properties: map[string]any{
					"score":       sig.Score,
					"sample_hash": report.SampleHash,
					"status":      report.Status.String(),
				},
			}
			results = append(results, r)
		}
	}

	log := sarifLog{
		Schema:  "https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:           "prp-disasm",
						Version:        ToolVersion,
						InformationURI: "https://github.com/shingmt/prp-disasm",
						Rules:          rules,
					},
				},
				Results:    results,
				Properties: map[string]any{"duration_ms": result.Duration.Milliseconds()},
			},
		},
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(log)
}

func signalMessage(name string, evidence []string) string {
	if len(evidence) == 0 {
		return name
	}
	msg := name + ": " + evidence[0]
	for _, e := range evidence[1:] {
		if len(msg)+len(e)+2 > 200 {
			break
		}
		msg += ", " + e
	}
	return msg
}

func scoreToLevel(score float64) string {
	switch {
	case score >= 0.8:
		return "error"
	case score >= 0.5:
		return "warning"
	default:
		return "note"
	}
}
