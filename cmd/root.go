// Package cmd implements the knowbase CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

// configPath holds the --config flag value shared by subcommands.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "knowbase",
	Short: "knowbase - personal knowledge base QA service",
	Long: `knowbase answers questions over your uploaded documents.

Documents are split, embedded, and indexed in PostgreSQL + pgvector.
The chat agent searches the index via a retrieval tool and cites its
sources. Run "knowbase serve" to start the HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ./config.yaml)")
}
