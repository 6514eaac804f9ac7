// Package watcher monitors a directory tree and re-indexes changed
// files through the pipeline. Filesystem events are debounced so a
// burst of writes triggers one incremental index pass.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches rapid event bursts into one index pass.
const DefaultDebounce = 500 * time.Millisecond

// ErrAlreadyRunning is returned by Start when the watcher is running.
var ErrAlreadyRunning = errors.New("watcher already running")

// IndexFunc re-indexes the given paths incrementally.
type IndexFunc func(ctx context.Context, paths []string) error

// state is the watcher lifecycle. Checking and transitioning happen
// under one lock so two Start calls can never both believe they won.
type state int

const (
	stateIdle state = iota
	stateRunning
)

// Watcher debounces filesystem events under rootDir and hands batches
// of changed paths to an IndexFunc.
type Watcher struct {
	rootDir  string
	skipDirs []string
	debounce time.Duration
	index    IndexFunc

	mu     sync.Mutex
	st     state
	cancel context.CancelFunc
	done   chan struct{}

	// ErrHandler receives asynchronous index failures; nil means drop.
	ErrHandler func(error)
}

// New creates a Watcher over rootDir. skipDirs are directory names
// (like the collection dir) excluded from watching. A zero debounce
// uses DefaultDebounce.
func New(rootDir string, skipDirs []string, debounce time.Duration, index IndexFunc) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		rootDir:  rootDir,
		skipDirs: skipDirs,
		debounce: debounce,
		index:    index,
	}
}

// Start begins watching in a background goroutine. At most one run may
// be active; a second Start returns ErrAlreadyRunning.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.st == stateRunning {
		return ErrAlreadyRunning
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.addRecursive(fsw, w.rootDir); err != nil {
		fsw.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.st = stateRunning
	w.cancel = cancel
	w.done = done

	go func() {
		defer close(done)
		defer fsw.Close()
		w.loop(runCtx, fsw)

		w.mu.Lock()
		w.st = stateIdle
		w.cancel = nil
		w.done = nil
		w.mu.Unlock()
	}()
	return nil
}

// Stop cancels a running watch and waits for it to finish. Stopping an
// idle watcher is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a watch loop is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st == stateRunning
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	pending := make(map[string]bool)
	var timer *time.Timer
	var fire <-chan time.Time

	flush := func() {
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]bool)
		fire = nil
		if len(paths) == 0 {
			return
		}
		if err := w.index(ctx, paths); err != nil && w.ErrHandler != nil {
			w.ErrHandler(err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			// New directories join the watch set.
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.addRecursive(fsw, ev.Name)
					continue
				}
			}
			pending[ev.Name] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			flush()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if w.ErrHandler != nil {
				w.ErrHandler(err)
			}
		}
	}
}

// relevant filters events down to content changes in watched files.
// Removes and renames count: the index pass purges paths that no longer
// exist on disk.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
		!ev.Op.Has(fsnotify.Rename) && !ev.Op.Has(fsnotify.Remove) {
		return false
	}
	return !w.skipped(ev.Name)
}

func (w *Watcher) skipped(path string) bool {
	rel, err := filepath.Rel(w.rootDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, skip := range w.skipDirs {
			if seg == skip {
				return true
			}
		}
	}
	return false
}

// addRecursive watches dir and every subdirectory not in skipDirs.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipped(path) && path != dir {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
