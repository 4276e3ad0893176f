// Package cmd defines and implements the CLI commands for the release-crawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release-crawler",
		Short: "A multi-instance crawler for upcoming movie releases.",
		Long: `release-crawler walks the IMDb release calendar, extracts upcoming titles
with their cast, and keeps a Postgres catalog up to date. Coordination
between instances happens entirely through a durable task queue in the same
database, so any number of crawlers can run the same cycle concurrently.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (optional; CRAWLER_* environment variables always apply)")

	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
