package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsbattig/code-indexer-sub031/internal/pipeline"
	"github.com/jsbattig/code-indexer-sub031/internal/progress"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume an interrupted indexing session",
	Long:  `Picks up where a previous interrupted run left off, using the on-disk ledger.`,
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	p, _, err := newPipeline(false)
	if err != nil {
		return err
	}
	defer p.Close()

	stopSignals := handleInterrupts(p)
	defer stopSignals()

	start := time.Now()
	reporter := progress.NewReporter()
	started := false
	resumed, err := p.Resume(context.Background(), func(ev pipeline.ProgressEvent) {
		if !started {
			reporter.Start(ev.Total)
			started = true
		}
		reporter.Update(ev)
	})
	if started {
		reporter.Finish()
	}
	if err != nil {
		return err
	}
	if !resumed {
		fmt.Println("No resumable session found.")
		return nil
	}

	return printRunSummary(p, start)
}
