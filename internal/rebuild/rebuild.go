// Package rebuild implements the atomic rebuild-and-swap primitive shared
// by both index backends: materialize a new artifact at a temp path, then
// rename it over the live one, so readers never observe a partially
// written index. It also cleans up orphaned temp artifacts left behind by
// crashed rebuilds.
package rebuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TmpSuffix marks in-progress rebuild artifacts.
const TmpSuffix = ".tmp"

// DefaultStaleAfter is how old a temp artifact must be before startup
// cleanup removes it as an orphan.
const DefaultStaleAfter = time.Hour

// ErrRebuildInProgress is returned when a rebuild is already running for
// the same collection path.
var ErrRebuildInProgress = errors.New("rebuild already in progress for this collection")

// BuildFunc materializes a complete new artifact at tmpPath. The artifact
// may be a file or a directory; it must be fully written when BuildFunc
// returns.
type BuildFunc func(ctx context.Context, tmpPath string) error

// Rebuilder coordinates atomic rebuilds across collections. Readers never
// interact with it: they open whatever artifact currently exists at the
// target path.
type Rebuilder struct {
	registry   *lockRegistry
	staleAfter time.Duration
}

// New creates a Rebuilder. staleAfter values of zero or below fall back
// to DefaultStaleAfter.
func New(staleAfter time.Duration) *Rebuilder {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Rebuilder{
		registry:   newLockRegistry(),
		staleAfter: staleAfter,
	}
}

// RebuildWithLock rebuilds the artifact at targetPath: it takes the
// collection's rebuild lock, removes stale orphan temp artifacts in the
// target's directory, invokes build at targetPath+".tmp", and atomically
// renames the result over targetPath.
//
// If build fails, the temp artifact is intentionally left in place: the
// next run's orphan cleanup removes it once stale, and until then it is
// available for inspection. The live artifact is untouched either way.
//
// Swapping a directory artifact takes two renames, so there is a brief
// window in which targetPath does not exist. Holders of an already open
// handle are unaffected; a reader opening the artifact fresh during the
// window sees a not-exist error and should retry.
func (r *Rebuilder) RebuildWithLock(ctx context.Context, targetPath string, build BuildFunc) error {
	lock := r.registry.lockFor(targetPath)
	if !lock.tryAcquire() {
		return fmt.Errorf("%w: %s", ErrRebuildInProgress, targetPath)
	}
	defer lock.release()

	tmpPath := targetPath + TmpSuffix

	if err := r.CleanOrphans(filepath.Dir(targetPath)); err != nil {
		return fmt.Errorf("rebuild: orphan cleanup: %w", err)
	}

	// A fresh temp path from a previous failed build of this same
	// collection would survive cleanup; clear it now that we hold the lock.
	if err := os.RemoveAll(tmpPath); err != nil {
		return fmt.Errorf("rebuild: clearing %s: %w", tmpPath, err)
	}

	if err := build(ctx, tmpPath); err != nil {
		return fmt.Errorf("rebuild: building %s: %w", targetPath, err)
	}

	if err := syncArtifact(tmpPath); err != nil {
		return fmt.Errorf("rebuild: syncing %s: %w", tmpPath, err)
	}

	// Rename cannot replace a non-empty directory, so displace the old
	// artifact first when the target is a directory.
	if info, err := os.Stat(targetPath); err == nil && info.IsDir() {
		old := targetPath + ".old"
		if err := os.RemoveAll(old); err != nil {
			return fmt.Errorf("rebuild: clearing %s: %w", old, err)
		}
		if err := os.Rename(targetPath, old); err != nil {
			return fmt.Errorf("rebuild: displacing %s: %w", targetPath, err)
		}
		if err := os.Rename(tmpPath, targetPath); err != nil {
			// Restore the previous artifact so readers keep working.
			_ = os.Rename(old, targetPath)
			return fmt.Errorf("rebuild: swapping %s: %w", targetPath, err)
		}
		_ = os.RemoveAll(old)
		return nil
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		return fmt.Errorf("rebuild: swapping %s: %w", targetPath, err)
	}
	return nil
}

// CleanOrphans removes *.tmp entries in dir older than the staleness
// threshold. Fresh temp paths are preserved: they may belong to an active
// concurrent rebuild or a just-failed one still worth inspecting.
func (r *Rebuilder) CleanOrphans(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	now := time.Now()
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), TmpSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < r.staleAfter {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("removing orphan %s: %w", e.Name(), err)
		}
	}
	return nil
}

// syncArtifact flushes a file artifact to stable storage. Directory
// artifacts are synced per file by their builders; here a best-effort
// directory sync covers the rename metadata.
func syncArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if d, err := os.Open(path); err == nil {
			_ = d.Sync()
			_ = d.Close()
		}
		return nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
