package commands

import (
	"github.com/spf13/cobra"
)

var (
	flagFormat       string
	flagOutput       string
	flagWorkers      int
	flagEngine       string
	flagTimeout      string
	flagMaxSize      int64
	flagRules        string
	flagNoColor      bool
	flagDisableHeurs []string
)

var rootCmd = &cobra.Command{
	Use:   "prp-disasm",
	Short: "Static analysis worker for binary samples",
	Long:  `prp-disasm drives radare2 against binary samples and produces normalized analysis reports with derived heuristic signals (packing, suspicious imports, stripped symbols). Every sample yields a report, even when the engine fails.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "terminal", "Output format (terminal, json, sarif, markdown)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "", "Output file path (default: stdout)")
	rootCmd.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "Number of samples analyzed in parallel (default: NumCPU)")
	rootCmd.PersistentFlags().StringVar(&flagEngine, "engine", "", "Path to the radare2 executable (default: radare2 on PATH)")
	rootCmd.PersistentFlags().StringVar(&flagTimeout, "timeout", "", "Per-sample engine timeout, e.g. 90s (default: 2m)")
	rootCmd.PersistentFlags().Int64Var(&flagMaxSize, "max-size", 0, "Reject samples larger than this many bytes (default: no limit)")
	rootCmd.PersistentFlags().StringVar(&flagRules, "rules", "", "Additional heuristic rules directory")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringSliceVar(&flagDisableHeurs, "disable-heuristic", nil, "Heuristic IDs to disable (comma-separated, repeatable)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
