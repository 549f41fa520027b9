package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the dataroom command. Without a subcommand it serves.
func newRootCmd() *cobra.Command {
	serve := newServeCmd()

	cmd := &cobra.Command{
		Use:           "dataroom",
		Short:         "Data room backend importing files from Google Drive",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          serve.RunE,
	}

	cmd.AddCommand(serve, newSweepCmd())
	return cmd
}
