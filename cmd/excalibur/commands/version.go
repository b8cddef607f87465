package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		if Commit != "" {
			fmt.Printf("excalibur %s (commit: %s)\n", Version, Commit)
			return
		}
		fmt.Printf("excalibur %s\n", Version)
	},
}
