package main

import (
	"fmt"
	"os"

	"github.com/PhotonicGluon/Excalibur/cmd/excalibur/commands"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = ""
)

func main() {
	commands.Version = version
	commands.Commit = commit

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
