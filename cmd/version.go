package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build information, injected via ldflags.
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "inkwell %s\n", Version)
		fmt.Fprintf(out, "  build time: %s\n", BuildTime)
		fmt.Fprintf(out, "  commit:     %s\n", GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
