package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shingmt/prp-disasm/internal/heuristics"
)

var flagCategory string

var listHeuristicsCmd = &cobra.Command{
	Use:   "heuristics",
	Short: "List all heuristics the extractor runs",
	RunE:  runListHeuristics,
}

func init() {
	listHeuristicsCmd.Flags().StringVar(&flagCategory, "category", "", "Filter rule-backed heuristics by category")
	rootCmd.AddCommand(listHeuristicsCmd)
}

type heuristicInfo struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description"`
}

func runListHeuristics(cmd *cobra.Command, args []string) error {
	extractor, err := buildExtractor()
	if err != nil {
		return err
	}

	var infos []heuristicInfo
	for _, h := range extractor.Heuristics() {
		info := heuristicInfo{ID: h.ID(), Kind: "builtin", Description: h.Description()}
		if ig, ok := h.(*heuristics.ImportGroup); ok {
			info.Kind = "imports"
			info.Category = ig.Rule.Category
		}
		if flagCategory != "" && info.Category != flagCategory {
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	w := cmd.OutOrStdout()

	if strings.ToLower(flagFormat) == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tKIND\tCATEGORY\tDESCRIPTION\n")
	fmt.Fprintf(tw, "--\t----\t--------\t-----------\n")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.ID, info.Kind, info.Category, info.Description)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d heuristics loaded (set v%s)\n", len(infos), heuristics.Version)

	return nil
}
