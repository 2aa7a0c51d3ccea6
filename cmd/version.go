package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set at release build time via -ldflags "-X ...cmd.version=...".
var version = "devel"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the vcmatch build version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("%s version: %s\n", app, version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
