package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := newPipeline(false)
		if err != nil {
			return err
		}
		defer p.Close()

		stats, err := p.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("Files indexed:  %d\n", stats.FileCount)
		fmt.Printf("Vectors:        %d\n", stats.VectorCount)
		fmt.Printf("Artifact size:  %d bytes\n", stats.FileSizeBytes)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
