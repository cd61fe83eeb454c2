// Package main provides the entry point for the docetl CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/linxule/docetl/cmd/docetl/commands"
	"github.com/linxule/docetl/pkg/version"
)

func main() {
	version.Init()

	rootCmd := &cobra.Command{
		Use:   "docetl",
		Short: "docetl - LLM-powered document ETL operations",
		Long: `docetl runs LLM-powered operations over document datasets.

Commands:
  run       Execute an operation over a dataset
  check     Validate an operation config file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "docetl %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
