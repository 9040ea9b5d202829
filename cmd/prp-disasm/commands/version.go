package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shingmt/prp-disasm/internal/heuristics"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("prp-disasm %s (commit: %s, heuristics: v%s)\n", Version, Commit, heuristics.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
