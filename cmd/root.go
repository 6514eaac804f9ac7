package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "code-indexer",
	Short: "Local semantic and full-text code search",
	Long: `Code Indexer maintains two synchronized on-disk indexes over a
codebase: a vector similarity index for semantic search and a
full-text index for keyword and regex search. Indexing is
incremental, git-aware, and resumable after interruption.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".code-indexer.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
