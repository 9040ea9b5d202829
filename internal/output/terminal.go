package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shingmt/prp-disasm/internal/types"
)

// ANSI color codes
const (
	reset     = "\033[0m"
	bold      = "\033[1m"
	dim       = "\033[2m"
	underline = "\033[4m"
	red       = "\033[31m"
	green     = "\033[32m"
	yellow    = "\033[33m"
	blue      = "\033[34m"
	cyan      = "\033[36m"
)

const (
	barWidth     = 30
	lineWidth    = 72
	signalWidth  = 24
	previewWidth = 60
)

// TerminalFormatter renders reports in a triage-optimized layout: one
// section per sample, signal bars sorted by score, failures up front.
type TerminalFormatter struct {
	NoColor bool
	Verbose bool
}

func (f *TerminalFormatter) color(code, text string) string {
	if f.NoColor {
		return text
	}
	return code + text + reset
}

func (f *TerminalFormatter) Format(w io.Writer, result *Result) error {
	f.printHeader(w, result)

	for _, report := range result.Reports {
		f.printReport(w, report)
	}

	f.printFooter(w, result)
	return nil
}

func (f *TerminalFormatter) separator() string {
	return strings.Repeat("─", lineWidth)
}

func (f *TerminalFormatter) sectionHeader(title string) string {
	prefix := "── " + title + " "
	displayLen := utf8.RuneCountInString(prefix)
	remaining := max(lineWidth-displayLen, 0)
	return prefix + strings.Repeat("─", remaining)
}

func (f *TerminalFormatter) printHeader(w io.Writer, result *Result) {
	sep := f.separator()
	fmt.Fprintf(w, "\n%s\n", f.color(dim, sep))
	fmt.Fprintf(w, "  %s\n", f.color(bold, "PRP-DISASM ANALYSIS"))

	parts := []string{}
	if result.Target != "" {
		parts = append(parts, fmt.Sprintf("Target: %s", result.Target))
	}
	parts = append(parts, fmt.Sprintf("%d samples", len(result.Reports)))
	if result.Engine != "" {
		parts = append(parts, fmt.Sprintf("engine: %s", result.Engine))
	}
	if result.Duration > 0 {
		parts = append(parts, fmt.Sprintf("%.2fs", result.Duration.Seconds()))
	}
	fmt.Fprintf(w, "  %s\n", strings.Join(parts, "  ·  "))
	fmt.Fprintf(w, "%s\n", f.color(dim, sep))
}

func (f *TerminalFormatter) printReport(w io.Writer, report *types.AnalysisReport) {
	name := report.SampleName
	if name == "" {
		name = shortHash(report.SampleHash)
	}
	header := f.sectionHeader(name)
	fmt.Fprintf(w, "\n%s\n", f.color(bold, header))

	fmt.Fprintf(w, "\n  %s %s\n", f.statusIcon(report.Status),
		f.color(f.statusColor(report.Status), report.Status.String()))
	if report.Reason != types.ReasonNone {
		fmt.Fprintf(w, "  %s %s\n", f.color(dim, "reason"), string(report.Reason))
	}

	fmt.Fprintf(w, "  %s %s\n", f.color(dim, "sha256"), shortHash(report.SampleHash))
	fmt.Fprintf(w, "  %s %s  %s %d  %s %d  %s %d\n",
		f.color(dim, "format"), report.Format,
		f.color(dim, "functions"), len(report.Functions),
		f.color(dim, "imports"), len(report.Imports),
		f.color(dim, "strings"), len(report.Strings))
	if report.Entropy != types.EntropyUnknown {
		fmt.Fprintf(w, "  %s %.3f\n", f.color(dim, "entropy"), report.Entropy)
	}

	if len(report.Signals) > 0 {
		fmt.Fprintln(w)
		for _, sig := range report.Signals {
			f.printSignal(w, sig)
		}
	}

	if f.Verbose && len(report.CallGraph) > 0 {
		fmt.Fprintf(w, "\n  %s\n", f.color(bold+underline, "call graph"))
		for _, node := range report.CallGraph {
			line := node.Name
			if len(node.Calls) > 0 {
				line += " → " + strings.Join(node.Calls, ", ")
			}
			fmt.Fprintf(w, "    %s\n", f.color(dim, truncate(line, previewWidth)))
		}
	}

	if f.Verbose && len(report.Disassembly) > 0 {
		fmt.Fprintf(w, "\n  %s\n", f.color(bold+underline, "listing"))
		for _, line := range report.Disassembly {
			fmt.Fprintf(w, "    %s\n", f.color(dim, truncate(line, previewWidth)))
		}
	}
}

func (f *TerminalFormatter) printSignal(w io.Writer, sig types.Signal) {
	label := fmt.Sprintf("  %-*s", signalWidth, truncate(sig.Name, signalWidth))
	bar := f.renderBar(sig.Score)
	fmt.Fprintf(w, "%s %s %.2f\n", f.color(bold, label), bar, sig.Score)
	if f.Verbose && len(sig.Evidence) > 0 {
		preview := truncate(strings.Join(sig.Evidence, ", "), previewWidth)
		fmt.Fprintf(w, "    %s %s\n", f.color(dim, "│"), f.color(dim, preview))
	}
}

func (f *TerminalFormatter) printFooter(w io.Writer, result *Result) {
	counts := map[types.Status]int{}
	var signals int
	for _, r := range result.Reports {
		counts[r.Status]++
		signals += len(r.Signals)
	}

	sep := f.separator()
	fmt.Fprintf(w, "\n%s\n", f.color(dim, sep))

	parts := []string{fmt.Sprintf("%d samples", len(result.Reports))}
	order := []types.Status{
		types.StatusComplete,
		types.StatusPartialTimeout,
		types.StatusPartialError,
		types.StatusFailed,
	}
	for _, st := range order {
		if counts[st] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[st], strings.ToLower(st.String())))
		}
	}
	parts = append(parts, fmt.Sprintf("%d signals", signals))
	if result.Duration > 0 {
		parts = append(parts, fmt.Sprintf("%.2fs", result.Duration.Seconds()))
	}

	fmt.Fprintf(w, "  %s\n", strings.Join(parts, " · "))
	fmt.Fprintf(w, "%s\n", f.color(dim, sep))
}

func (f *TerminalFormatter) statusIcon(st types.Status) string {
	switch st {
	case types.StatusComplete:
		return f.color(green, "✔")
	case types.StatusPartialTimeout, types.StatusPartialError:
		return f.color(yellow, "▲")
	case types.StatusFailed:
		return f.color(red+bold, "✖")
	default:
		return "?"
	}
}

func (f *TerminalFormatter) statusColor(st types.Status) string {
	switch st {
	case types.StatusComplete:
		return green
	case types.StatusPartialTimeout, types.StatusPartialError:
		return yellow
	case types.StatusFailed:
		return red + bold
	default:
		return ""
	}
}

func (f *TerminalFormatter) scoreColor(score float64) string {
	switch {
	case score >= 0.8:
		return red + bold
	case score >= 0.5:
		return yellow
	default:
		return blue
	}
}

func (f *TerminalFormatter) renderBar(score float64) string {
	filled := int(score * barWidth)
	if filled == 0 && score > 0 {
		filled = 1
	}
	if filled >= barWidth {
		filled = barWidth - 1
	}
	empty := barWidth - filled

	filledStr := strings.Repeat("█", filled)
	emptyStr := strings.Repeat("░", empty)
	return f.color(f.scoreColor(score), filledStr) + f.color(dim, emptyStr)
}

func shortHash(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\t", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// topSignals returns up to limit signal names across reports, ordered by
// occurrence count descending then name.
func topSignals(reports []*types.AnalysisReport, limit int) []string {
	counts := map[string]int{}
	for _, r := range reports {
		for _, s := range r.Signals {
			counts[s.Name]++
		}
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > limit {
		names = names[:limit]
	}
	return names
}
