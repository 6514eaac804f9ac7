package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsbattig/code-indexer-sub031/internal/ledger"
	"github.com/jsbattig/code-indexer-sub031/internal/pipeline"
	"github.com/jsbattig/code-indexer-sub031/internal/progress"
)

var indexCmd = &cobra.Command{
	Use:   "index [paths...]",
	Short: "Index the codebase into the vector and full-text stores",
	Long: `Walks the given paths (the whole project when none are given),
skips files whose git blob hash is unchanged, and indexes the rest.
Interrupt with Ctrl-C to stop gracefully; the session can be resumed
with 'code-indexer resume'.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().Bool("force", false, "re-index every file, ignoring change detection")
	indexCmd.Flags().Bool("temporal", false, "treat the collection as temporal (bypass git change detection)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	temporal, _ := cmd.Flags().GetBool("temporal")

	p, _, err := newPipeline(temporal)
	if err != nil {
		return err
	}
	defer p.Close()

	stopSignals := handleInterrupts(p)
	defer stopSignals()

	start := time.Now()
	reporter := progress.NewReporter()
	started := false
	err = p.Index(context.Background(), args, force, func(ev pipeline.ProgressEvent) {
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

	return printRunSummary(p, start)
}

// handleInterrupts feeds SIGINT/SIGTERM into the pipeline's two-stage
// shutdown and returns a cleanup function.
func handleInterrupts(p *pipeline.Pipeline) func() {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigs {
			i := p.Interrupter()
			if i.Signal() {
				fmt.Fprintln(os.Stderr, "\nForcing shutdown.")
				return
			}
			fmt.Fprintf(os.Stderr, "\nFinishing current files, then stopping. Press Ctrl-C again within %s to force.\n", i.Grace())
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(sigs)
		p.Interrupter().Stop()
	}
}

func printRunSummary(p *pipeline.Pipeline, start time.Time) error {
	led, err := ledger.Load(p.CollectionDir())
	if err != nil {
		return err
	}
	processed, failed, chunks, total := led.Progress()
	fmt.Printf("Indexed %d of %d files (%d chunks) in %s\n", processed, total, chunks, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		fmt.Printf("%d files failed:\n", failed)
		for _, f := range led.FailedFiles() {
			fmt.Printf("  %s\n", f)
		}
	}
	if led.CanResume() {
		remaining := len(led.RemainingFiles())
		fmt.Printf("Interrupted with %d files remaining. Run 'code-indexer resume' to continue.\n", remaining)
	}
	return nil
}
