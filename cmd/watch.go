package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jsbattig/code-indexer-sub031/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the project and re-index changed files",
	Long: `Monitors the filesystem and incrementally re-indexes files as they
change. Rapid bursts of writes are debounced into one index pass.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("debounce", watcher.DefaultDebounce, "delay before indexing a burst of changes")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	debounce, _ := cmd.Flags().GetDuration("debounce")

	p, cfg, err := newPipeline(false)
	if err != nil {
		return err
	}
	defer p.Close()

	root, err := os.Getwd()
	if err != nil {
		return err
	}

	// Catch up on anything changed while the watcher was down.
	if err := p.Index(context.Background(), nil, false, nil); err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	skip := []string{filepath.Base(cfg.IndexDir), ".git"}
	w := watcher.New(root, skip, debounce, func(ctx context.Context, paths []string) error {
		return p.Index(ctx, paths, false, nil)
	})
	w.ErrHandler = func(err error) {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("Watching %s (Ctrl-C to stop)\n", root)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	fmt.Fprintln(os.Stderr, "\nStopping watcher.")
	w.Stop()
	return nil
}
