package progress

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/jsbattig/code-indexer-sub031/internal/pipeline"
)

// Reporter provides progress feedback during an indexing run.
type Reporter interface {
	Start(total int)
	Update(ev pipeline.ProgressEvent)
	Finish()
}

// NewReporter returns a TerminalReporter if running in an interactive
// terminal, or a CIReporter if the CI environment variable is set.
func NewReporter() Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &CIReporter{}
	}
	return &TerminalReporter{}
}

// TerminalReporter displays a progress bar in the terminal.
type TerminalReporter struct {
	bar *progressbar.ProgressBar
}

func (r *TerminalReporter) Start(total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Indexing"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *TerminalReporter) Update(ev pipeline.ProgressEvent) {
	if r.bar == nil {
		return
	}
	current := ""
	if len(ev.ConcurrentFiles) > 0 {
		current = ev.ConcurrentFiles[0].Filename
	}
	r.bar.Describe(fmt.Sprintf("%.1f files/s, %d threads %s", ev.FilesPerSecond, ev.ActiveThreads, current))
	_ = r.bar.Set(ev.Current)
}

func (r *TerminalReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// CIReporter prints line-by-line progress suitable for CI logs.
type CIReporter struct {
	total int
}

func (r *CIReporter) Start(total int) {
	r.total = total
	fmt.Fprintf(os.Stderr, "Indexing %d files\n", total)
}

func (r *CIReporter) Update(ev pipeline.ProgressEvent) {
	fmt.Fprintf(os.Stderr, "[%d/%d] %.1f files/s, %d active threads\n",
		ev.Current, r.total, ev.FilesPerSecond, ev.ActiveThreads)
}

func (r *CIReporter) Finish() {
	fmt.Fprintln(os.Stderr, "Indexing complete")
}
