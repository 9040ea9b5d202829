package main

import (
	"os"

	"github.com/shingmt/prp-disasm/cmd/prp-disasm/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(2)
	}
}
