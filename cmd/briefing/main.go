// Package main implements the briefing CLI: run pipelines, test single
// steps, serve the HTTP and MCP surfaces, and move pipelines between
// installations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set by goreleaser at build time.
var version = "dev"

// globalFlags are shared by every command.
type globalFlags struct {
	ConfigDir string
	UserID    string
	Corpus    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "briefing",
		Short: "Run briefing report pipelines",
		Long: `briefing executes report pipelines: it selects articles, asks a model for a
structured report, reconciles citations, renders and converts the result,
and delivers it.

Configuration is read from briefing.yml in --config-dir and BRIEFING_*
environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigDir, "config-dir", ".", "directory holding briefing.yml")
	pf.StringVar(&flags.UserID, "user", os.Getenv("BRIEFING_USER"), "user id the command acts for")
	pf.StringVar(&flags.Corpus, "corpus", "", "YAML fixture of sources and articles to load before running")

	root.AddCommand(
		newRunCmd(flags),
		newTestStepCmd(flags),
		newServeCmd(flags),
		newMCPCmd(flags),
		newExportCmd(flags),
		newImportCmd(flags),
		newStatusCmd(flags),
		newSeedCmd(flags),
		newInitCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func requireUser(flags *globalFlags) error {
	if flags.UserID == "" {
		return fmt.Errorf("--user (or BRIEFING_USER) is required")
	}
	return nil
}
