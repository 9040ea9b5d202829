package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/shingmt/prp-disasm/internal/types"
)

// MarkdownFormatter outputs reports as GitHub-flavored markdown, designed
// for GitHub Actions Job Summaries and PR comments.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) Format(w io.Writer, result *Result) error {
	flagged := 0
	for _, r := range result.Reports {
		if len(r.Signals) > 0 || r.Status != types.StatusComplete {
			flagged++
		}
	}
	if flagged == 0 {
		f.printClean(w, result)
		return nil
	}

	f.printSummary(w, result, flagged)
	for _, report := range result.Reports {
		f.printReport(w, report)
	}
	f.printFooter(w, result)
	return nil
}

func (f *MarkdownFormatter) printClean(w io.Writer, result *Result) {
	fmt.Fprintf(w, "### :white_check_mark: prp-disasm — No signals raised\n\n")
	fmt.Fprintf(w, "> %d samples analyzed · %.2fs\n",
		len(result.Reports), result.Duration.Seconds())
}

func (f *MarkdownFormatter) printSummary(w io.Writer, result *Result, flagged int) {
	fmt.Fprintf(w, "### :rotating_light: prp-disasm — %d of %d samples flagged\n\n",
		flagged, len(result.Reports))

	if result.Target != "" {
		fmt.Fprintf(w, "> **Target:** `%s` · engine %s · %.2fs\n\n",
			result.Target, result.Engine, result.Duration.Seconds())
	}

	top := topSignals(result.Reports, 5)
	if len(top) > 0 {
		var badges []string
		for _, name := range top {
			badges = append(badges, fmt.Sprintf("`%s`", name))
		}
		fmt.Fprintf(w, "**Top signals:** %s\n\n", strings.Join(badges, " · "))
	}
}

func (f *MarkdownFormatter) printReport(w io.Writer, report *types.AnalysisReport) {
	name := report.SampleName
	if name == "" {
		name = shortHash(report.SampleHash)
	}

	open := ""
	if maxScore(report) >= 0.8 || report.Status == types.StatusFailed {
		open = " open"
	}
	fmt.Fprintf(w, "<details%s>\n", open)
	fmt.Fprintf(w, "<summary>%s <strong>%s</strong> — %s (%d signals)</summary>\n\n",
		statusEmoji(report.Status), escapeMarkdown(name), report.Status, len(report.Signals))

	fmt.Fprintf(w, "| | |\n|---|---|\n")
	fmt.Fprintf(w, "| sha256 | `%s` |\n", report.SampleHash)
	fmt.Fprintf(w, "| format | %s |\n", report.Format)
	fmt.Fprintf(w, "| functions | %d |\n", len(report.Functions))
	if report.Entropy != types.EntropyUnknown {
		fmt.Fprintf(w, "| entropy | %.3f |\n", report.Entropy)
	}
	if report.Reason != types.ReasonNone {
		fmt.Fprintf(w, "| reason | `%s` |\n", string(report.Reason))
	}
	fmt.Fprintf(w, "\n")

	if len(report.Signals) > 0 {
		fmt.Fprintf(w, "| Signal | Score | Evidence |\n")
		fmt.Fprintf(w, "|--------|-------|----------|\n")
		for _, sig := range report.Signals {
			evidence := truncateMarkdown(strings.Join(sig.Evidence, ", "), 60)
			fmt.Fprintf(w, "| `%s` | %.2f | %s |\n",
				sig.Name, sig.Score, escapeMarkdown(evidence))
		}
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "</details>\n\n")
}

func (f *MarkdownFormatter) printFooter(w io.Writer, result *Result) {
	fmt.Fprintf(w, "---\n")
	fmt.Fprintf(w, "*Analyzed by [prp-disasm](https://github.com/shingmt/prp-disasm) %s*\n", ToolVersion)
}

func maxScore(report *types.AnalysisReport) float64 {
	var m float64
	for _, s := range report.Signals {
		if s.Score > m {
			m = s.Score
		}
	}
	return m
}

func statusEmoji(st types.Status) string {
	switch st {
	case types.StatusComplete:
		return ":green_circle:"
	case types.StatusPartialTimeout, types.StatusPartialError:
		return ":yellow_circle:"
	case types.StatusFailed:
		return ":red_circle:"
	default:
		return ":black_circle:"
	}
}

func truncateMarkdown(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\t", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
