package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shingmt/prp-disasm/internal/heuristics"
)

var explainCmd = &cobra.Command{
	Use:   "explain <heuristic-id>",
	Short: "Show detailed information about a heuristic",
	Args:  cobra.ExactArgs(1),
	RunE:  runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)
}

type explainInfo struct {
	ID          string   `json:"id"`
	Signal      string   `json:"signal,omitempty"`
	Category    string   `json:"category,omitempty"`
	Score       float64  `json:"score,omitempty"`
	MinMatches  int      `json:"min_matches,omitempty"`
	Description string   `json:"description"`
	APIs        []string `json:"apis,omitempty"`
}

func runExplain(cmd *cobra.Command, args []string) error {
	id := strings.ToLower(strings.TrimSpace(args[0]))

	extractor, err := buildExtractor()
	if err != nil {
		return err
	}

	var found heuristics.Heuristic
	for _, h := range extractor.Heuristics() {
		if h.ID() == id {
			found = h
			break
		}
	}
	if found == nil {
		return fmt.Errorf("heuristic %q not found", id)
	}

	info := explainInfo{ID: found.ID(), Description: found.Description()}
	if ig, ok := found.(*heuristics.ImportGroup); ok {
		info.Signal = ig.Rule.Signal
		info.Category = ig.Rule.Category
		info.Score = ig.Rule.Score
		info.MinMatches = ig.Rule.MinMatches
		info.APIs = ig.Rule.APIs
	}

	w := cmd.OutOrStdout()

	if strings.ToLower(flagFormat) == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	color := func(code, text string) string {
		if flagNoColor {
			return text
		}
		return code + text + "\033[0m"
	}

	bold := "\033[1m"
	dim := "\033[2m"

	fmt.Fprintf(w, "\n%s %s\n", color(dim, "Heuristic:"), color(bold, info.ID))
	if info.Signal != "" && info.Signal != info.ID {
		fmt.Fprintf(w, "%s %s\n", color(dim, "Signal:"), info.Signal)
	}
	if info.Category != "" {
		fmt.Fprintf(w, "%s %s\n", color(dim, "Category:"), info.Category)
	}
	if info.Score > 0 {
		fmt.Fprintf(w, "%s %.2f\n", color(dim, "Score:"), info.Score)
	}
	if info.MinMatches > 1 {
		fmt.Fprintf(w, "%s %d\n", color(dim, "Min matches:"), info.MinMatches)
	}

	fmt.Fprintf(w, "\n%s\n%s\n", color(bold, "Description:"), info.Description)

	if len(info.APIs) > 0 {
		fmt.Fprintf(w, "\n%s\n", color(bold, "APIs:"))
		for _, api := range info.APIs {
			fmt.Fprintf(w, "  %s\n", color(dim, api))
		}
	}

	fmt.Fprintln(w)
	return nil
}
