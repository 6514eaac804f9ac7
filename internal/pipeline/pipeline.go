// Package pipeline composes the indexing engine: it walks candidate
// files, skips unchanged ones via git blob hashes, fans file processing
// out over a bounded worker pool, dispatches embedding calls through the
// rate limiter, records per-file progress in the resumable ledger, and
// keeps the vector and full-text indexes synchronized through atomic
// background rebuilds.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jsbattig/code-indexer-sub031/internal/chunker"
	"github.com/jsbattig/code-indexer-sub031/internal/config"
	"github.com/jsbattig/code-indexer-sub031/internal/embedder"
	"github.com/jsbattig/code-indexer-sub031/internal/gitresolver"
	"github.com/jsbattig/code-indexer-sub031/internal/ledger"
	"github.com/jsbattig/code-indexer-sub031/internal/ratelimit"
	"github.com/jsbattig/code-indexer-sub031/internal/rebuild"
	"github.com/jsbattig/code-indexer-sub031/internal/textstore"
	"github.com/jsbattig/code-indexer-sub031/internal/tracker"
	"github.com/jsbattig/code-indexer-sub031/internal/vectorstore"
	"github.com/jsbattig/code-indexer-sub031/internal/walker"
)

// ProgressEvent is one point-in-time view of an indexing run.
type ProgressEvent struct {
	Current         int
	Total           int
	FilesPerSecond  float64
	ActiveThreads   int
	ConcurrentFiles []tracker.Slot
}

// ProgressFunc receives progress events during Index and Resume.
type ProgressFunc func(ProgressEvent)

// Pipeline is the indexing and dual-retrieval engine for one collection.
type Pipeline struct {
	cfg           *config.Config
	rootDir       string
	collectionDir string
	kind          gitresolver.CollectionKind

	emb        embedder.Embedder
	chunk      chunker.Chunker
	resolver   *gitresolver.Resolver
	dispatcher *ratelimit.Dispatcher
	tracker    *tracker.Tracker
	rebuilder  *rebuild.Rebuilder
	vectors    *vectorstore.Store
	text       *textstore.Store
	catalog    *Catalog
	interrupt  *Interrupter

	// Vectors embedded since the last index rebuild, staged until the
	// next rebuild folds them into the artifact.
	stageMu        sync.Mutex
	stagedIDs      []uint64
	stagedVectors  [][]float32
	rebuildMu      sync.Mutex
	textDirty      atomic.Bool
	handleMu       sync.Mutex
	cachedHandle   *vectorstore.Handle
	cachedModTime  time.Time
	forceCancelled atomic.Bool
}

// Options tweaks pipeline construction beyond what config carries.
type Options struct {
	// Kind marks the collection as normal (git-aware change detection)
	// or temporal (synthetic records, git bypassed entirely).
	Kind gitresolver.CollectionKind

	// Chunker overrides the default line-window chunker.
	Chunker chunker.Chunker
}

// New builds a Pipeline over rootDir using the given embedder. The
// collection directory (cfg.IndexDir, resolved against rootDir) is
// created if needed and orphaned temp artifacts from prior crashes are
// cleaned up.
func New(cfg *config.Config, rootDir string, emb embedder.Embedder, opts Options) (*Pipeline, error) {
	collectionDir := cfg.IndexDir
	if !filepath.IsAbs(collectionDir) {
		collectionDir = filepath.Join(rootDir, collectionDir)
	}
	if err := os.MkdirAll(collectionDir, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: creating collection dir: %w", err)
	}

	rb := rebuild.New(cfg.Indexing.TmpStaleAfter)
	if err := rb.CleanOrphans(collectionDir); err != nil {
		return nil, err
	}

	text, err := textstore.NewStore(collectionDir, rb)
	if err != nil {
		return nil, err
	}

	cat, err := LoadCatalog(collectionDir)
	if err != nil {
		text.Close()
		return nil, err
	}

	ch := opts.Chunker
	if ch == nil {
		ch = chunker.NewLineWindow()
	}
	kind := opts.Kind
	if kind == "" {
		kind = gitresolver.CollectionKindNormal
	}

	p := &Pipeline{
		cfg:           cfg,
		rootDir:       rootDir,
		collectionDir: collectionDir,
		kind:          kind,
		emb:           emb,
		chunk:         ch,
		resolver:      gitresolver.New(cfg.Indexing.GitBatchSize),
		dispatcher:    ratelimit.NewDispatcher(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.TokensPerMinute),
		tracker:       tracker.New(cfg.Indexing.MaxSlots),
		rebuilder:     rb,
		vectors:       vectorstore.NewStore(collectionDir, rb),
		text:          text,
		catalog:       cat,
	}
	p.interrupt = NewInterrupter(cfg.Indexing.InterruptGrace, cfg.Indexing.InterruptLimit, func() {
		p.forceCancelled.Store(true)
	})
	return p, nil
}

// Interrupter exposes the two-stage shutdown handler so the outer layer
// can feed it OS signals.
func (p *Pipeline) Interrupter() *Interrupter { return p.interrupt }

// CollectionDir returns the directory holding this collection's
// artifacts.
func (p *Pipeline) CollectionDir() string { return p.collectionDir }

// Close releases the full-text index handle.
func (p *Pipeline) Close() error { return p.text.Close() }

// Index walks the given paths (files or directories, resolved against
// the pipeline root), skips unchanged files unless force is set, and
// indexes the rest. Previously indexed files that no longer exist on
// disk are purged from the catalog and the full-text index; their
// vectors drop out at the next rebuild. Progress events stream through
// onProgress if non-nil. Per-file failures are recorded in the ledger
// and never abort the run.
func (p *Pipeline) Index(ctx context.Context, paths []string, force bool, onProgress ProgressFunc) error {
	files, removed, err := p.discoverFiles(paths)
	if err != nil {
		return err
	}
	if err := p.purgeRemoved(removed); err != nil {
		return err
	}

	changed := p.selectChanged(ctx, files, force)

	led := ledger.New(p.collectionDir)
	gitContext := ""
	if p.kind == gitresolver.CollectionKindNormal {
		gitContext = gitresolver.HeadCommit(ctx, p.rootDir)
	}
	if err := led.Start(string(p.cfg.Provider), p.cfg.EmbeddingModel, gitContext); err != nil {
		return err
	}
	pending := make([]string, len(changed))
	for i, fi := range changed {
		pending[i] = fi.RelPath
	}
	if err := led.SetPendingFiles(pending); err != nil {
		return err
	}

	return p.run(ctx, led, changed, onProgress)
}

// Resume continues a previous interrupted run from the ledger. It
// returns false when no resumable session exists.
func (p *Pipeline) Resume(ctx context.Context, onProgress ProgressFunc) (bool, error) {
	led, err := ledger.Load(p.collectionDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !led.CanResume() {
		return false, nil
	}

	remaining := led.RemainingFiles()
	files := make([]walker.FileInfo, 0, len(remaining))
	for _, rel := range remaining {
		fi, err := p.statFile(rel)
		if err != nil {
			// The file disappeared between runs; let the worker path
			// record the failure so the ledger cursor still advances.
			fi = walker.FileInfo{Path: filepath.Join(p.rootDir, rel), RelPath: rel}
		}
		files = append(files, fi)
	}

	if err := p.run(ctx, led, files, onProgress); err != nil {
		return true, err
	}
	return true, nil
}

// run drives the worker pool over files and finalizes the indexes.
func (p *Pipeline) run(ctx context.Context, led *ledger.Ledger, files []walker.FileInfo, onProgress ProgressFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopForce := p.watchForce(ctx, cancel)
	defer stopForce()

	var blobHashes map[string]string
	if p.kind == gitresolver.CollectionKindNormal {
		rels := make([]string, len(files))
		for i, fi := range files {
			rels[i] = fi.RelPath
		}
		blobHashes = p.resolver.ResolveBlobHashes(ctx, p.rootDir, rels)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workerCount())

	// Long runs rebuild both artifacts periodically so concurrent
	// searches see fresh data before the final rebuild.
	if interval := p.cfg.Indexing.RebuildInterval; interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		go func() {
			for {
				select {
				case <-gctx.Done():
					return
				case <-ticker.C:
					// Best effort, retried at finalize.
					_ = p.RebuildVectors(gctx)
					_ = p.maybeRebuildText(gctx)
				}
			}
		}()
	}

	start := time.Now()
	var done atomic.Int64
	total := len(files)

	for _, fi := range files {
		if p.interrupt.Interrupted() || gctx.Err() != nil {
			break
		}
		fi := fi
		g.Go(func() error {
			slotID, err := p.tracker.Acquire(gctx, fi.RelPath, fi.Size)
			if err != nil {
				return nil // cancelled while waiting for a slot
			}
			defer p.tracker.Release(slotID)

			if err := p.processFile(gctx, led, fi, blobHashes[fi.RelPath]); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				if mErr := led.MarkFailed(fi.RelPath, err.Error()); mErr != nil {
					return mErr // cannot write ledger: structural, abort
				}
			}
			p.tracker.Update(slotID, tracker.StatusComplete)

			n := int(done.Add(1))
			if onProgress != nil {
				elapsed := time.Since(start).Seconds()
				fps := 0.0
				if elapsed > 0 {
					fps = float64(n) / elapsed
				}
				onProgress(ProgressEvent{
					Current:         n,
					Total:           total,
					FilesPerSecond:  fps,
					ActiveThreads:   p.tracker.Active(),
					ConcurrentFiles: p.tracker.Snapshot(),
				})
			}
			return nil
		})
	}

	runErr := g.Wait()

	if err := p.finalize(context.WithoutCancel(ctx), led); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}
	if p.forceCancelled.Load() {
		return context.Canceled
	}
	if p.interrupt.Interrupted() {
		// Ledger stays InProgress so the session is resumable.
		return nil
	}
	if len(led.RemainingFiles()) == 0 {
		return led.Complete()
	}
	return nil
}

// processFile chunks, embeds, and indexes one file. Any returned error
// marks the file failed in the ledger; the pipeline continues.
func (p *Pipeline) processFile(ctx context.Context, led *ledger.Ledger, fi walker.FileInfo, blobHash string) error {
	content, err := os.ReadFile(fi.Path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	chunks := p.chunk.Chunk(fi.RelPath, content)
	if len(chunks) == 0 {
		return led.MarkCompleted(fi.RelPath, 0)
	}

	texts := make([]string, len(chunks))
	estimated := 0
	for i, c := range chunks {
		texts[i] = c.Text
		estimated += chunker.EstimateTokens(c.Text)
	}

	if _, err := p.dispatcher.Acquire(ctx, estimated); err != nil {
		return err
	}
	vecs, usage, err := p.emb.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	actual := usage.TotalTokens
	if actual == 0 {
		actual = estimated
	}
	p.dispatcher.Consume(actual)

	if len(vecs) != len(chunks) {
		return fmt.Errorf("provider returned %d embeddings for %d chunks", len(vecs), len(chunks))
	}
	dim := p.emb.Dimensions()
	for i, v := range vecs {
		if len(v) != dim {
			return fmt.Errorf("embedding %d has dimension %d, index expects %d", i, len(v), dim)
		}
	}

	firstID := p.catalog.AllocateIDs(len(chunks))
	ids := make([]uint64, len(chunks))
	chunkRecords := make(map[uint64]ChunkRecord, len(chunks))

	if err := p.text.DeleteByFilePath(fi.RelPath); err != nil {
		return err
	}
	for i, c := range chunks {
		id := firstID + uint64(i)
		ids[i] = id
		docID := uuid.New().String()
		chunkRecords[id] = ChunkRecord{
			FilePath:     fi.RelPath,
			Language:     fi.Language,
			SemanticType: c.SemanticType,
			DocID:        docID,
		}
		if err := p.text.AddDocument(textstore.Document{
			ID:       docID,
			FilePath: fi.RelPath,
			Language: fi.Language,
			Content:  c.Text,
		}); err != nil {
			return err
		}
	}
	if err := p.text.Commit(); err != nil {
		return err
	}
	p.textDirty.Store(true)

	p.catalog.RecordFile(fi.RelPath, FileRecord{
		BlobHash:    blobHash,
		ContentHash: fi.ContentHash,
		ChunkCount:  len(chunks),
		VectorIDs:   ids,
	}, chunkRecords)
	if err := p.catalog.Persist(); err != nil {
		return err
	}

	p.stageMu.Lock()
	p.stagedIDs = append(p.stagedIDs, ids...)
	p.stagedVectors = append(p.stagedVectors, vecs...)
	p.stageMu.Unlock()

	return led.MarkCompleted(fi.RelPath, len(chunks))
}

// finalize commits the text index and rebuilds both artifacts. Called
// even after interruption so every completed file's vectors survive the
// shutdown.
func (p *Pipeline) finalize(ctx context.Context, led *ledger.Ledger) error {
	if err := p.text.Commit(); err != nil {
		return err
	}
	if err := p.RebuildVectors(ctx); err != nil {
		return err
	}
	if err := p.maybeRebuildText(ctx); err != nil {
		return err
	}
	return p.catalog.Persist()
}

// RebuildVectors rebuilds the vector index artifact: the previous
// artifact's still-live vectors plus everything staged since the last
// rebuild. Searches keep reading the old artifact until the swap.
func (p *Pipeline) RebuildVectors(ctx context.Context) error {
	p.rebuildMu.Lock()
	defer p.rebuildMu.Unlock()

	p.stageMu.Lock()
	ids := p.stagedIDs
	vecs := p.stagedVectors
	p.stagedIDs = nil
	p.stagedVectors = nil
	p.stageMu.Unlock()

	allIDs := make([]uint64, 0, len(ids))
	allVecs := make([][]float32, 0, len(vecs))

	if handle, err := p.vectors.Load(0); err == nil {
		oldIDs, oldVecs := handle.Export()
		for i, id := range oldIDs {
			if p.catalog.HasChunk(id) {
				allIDs = append(allIDs, id)
				allVecs = append(allVecs, oldVecs[i])
			}
		}
	}
	allIDs = append(allIDs, ids...)
	allVecs = append(allVecs, vecs...)

	if len(allIDs) == 0 {
		return nil
	}

	err := p.vectors.Build(ctx, allVecs, allIDs, vectorstore.BuildParams{
		Dim:    p.emb.Dimensions(),
		Metric: vectorstore.Metric(p.cfg.Metric),
	})
	if err != nil {
		// Put the staged batch back so the next rebuild retries it.
		p.stageMu.Lock()
		p.stagedIDs = append(ids, p.stagedIDs...)
		p.stagedVectors = append(vecs, p.stagedVectors...)
		p.stageMu.Unlock()
		return err
	}

	p.handleMu.Lock()
	p.cachedHandle = nil
	p.handleMu.Unlock()
	return nil
}

// RebuildText rebuilds the full-text artifact from every live document,
// behind the same atomic-swap primitive as the vector index.
func (p *Pipeline) RebuildText(ctx context.Context) error {
	docs, err := p.text.AllDocuments()
	if err != nil {
		return err
	}
	return p.text.RebuildFromDocumentsBackground(ctx, docs)
}

// maybeRebuildText rebuilds the full-text artifact when documents were
// added or purged since the last rebuild, and is a no-op otherwise.
func (p *Pipeline) maybeRebuildText(ctx context.Context) error {
	if !p.textDirty.Swap(false) {
		return nil
	}
	if err := p.RebuildText(ctx); err != nil {
		p.textDirty.Store(true)
		return err
	}
	return nil
}

// watchForce cancels the run context when the interrupter escalates to
// a forced termination.
func (p *Pipeline) watchForce(ctx context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if p.forceCancelled.Load() {
					cancel()
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (p *Pipeline) workerCount() int {
	if p.cfg.Indexing.Threads > 0 {
		return p.cfg.Indexing.Threads
	}
	return 1
}

// discoverFiles expands paths (files or directories) into candidate
// FileInfos relative to the pipeline root. The second result lists
// cataloged paths that no longer exist on disk: an explicit path that
// vanished (watcher batches race with deletes) and, for directory
// walks, any previously indexed file under the directory that is gone.
func (p *Pipeline) discoverFiles(paths []string) ([]walker.FileInfo, []string, error) {
	if len(paths) == 0 {
		paths = []string{p.rootDir}
	}

	seen := make(map[string]bool)
	var files []walker.FileInfo
	var removed []string
	for _, path := range paths {
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.rootDir, path)
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				if rel, rerr := filepath.Rel(p.rootDir, path); rerr == nil {
					removed = append(removed, filepath.ToSlash(rel))
				}
				continue
			}
			return nil, nil, fmt.Errorf("pipeline: stat %s: %w", path, err)
		}
		if info.IsDir() {
			walked, err := walker.Walk(walker.Config{
				RootDir:     path,
				Include:     p.cfg.Include,
				Exclude:     p.cfg.Exclude,
				MaxFileSize: p.cfg.Indexing.MaxFileSize,
			})
			if err != nil {
				return nil, nil, err
			}
			for _, fi := range walked {
				// Never index the collection's own artifacts.
				if strings.HasPrefix(fi.Path, p.collectionDir+string(os.PathSeparator)) {
					continue
				}
				if rel, err := filepath.Rel(p.rootDir, fi.Path); err == nil {
					fi.RelPath = filepath.ToSlash(rel)
				}
				if !seen[fi.RelPath] {
					seen[fi.RelPath] = true
					files = append(files, fi)
				}
			}
			removed = append(removed, p.removedUnder(path, seen)...)
			continue
		}
		rel, err := filepath.Rel(p.rootDir, path)
		if err != nil {
			return nil, nil, fmt.Errorf("pipeline: %s is outside the collection root: %w", path, err)
		}
		fi, err := p.statFile(filepath.ToSlash(rel))
		if err != nil {
			return nil, nil, err
		}
		if !seen[fi.RelPath] {
			seen[fi.RelPath] = true
			files = append(files, fi)
		}
	}
	return files, removed, nil
}

// removedUnder reports cataloged paths under dir that are gone from
// disk. A path missing from the walk is not enough on its own: exclude
// rules can hide a file that is still present, so each candidate is
// confirmed with a stat.
func (p *Pipeline) removedUnder(dir string, seen map[string]bool) []string {
	relDir, err := filepath.Rel(p.rootDir, dir)
	if err != nil {
		return nil
	}
	prefix := filepath.ToSlash(relDir) + "/"
	if relDir == "." {
		prefix = ""
	}
	var removed []string
	for _, rel := range p.catalog.Paths() {
		if seen[rel] || !strings.HasPrefix(rel, prefix) {
			continue
		}
		if _, err := os.Stat(filepath.Join(p.rootDir, filepath.FromSlash(rel))); os.IsNotExist(err) {
			removed = append(removed, rel)
		}
	}
	return removed
}

// purgeRemoved drops deleted files from the catalog and the full-text
// index. Their vectors disappear at the next rebuild, which no longer
// finds their chunk ids in the catalog.
func (p *Pipeline) purgeRemoved(removed []string) error {
	if len(removed) == 0 {
		return nil
	}
	for _, rel := range removed {
		if err := p.text.DeleteByFilePath(rel); err != nil {
			return err
		}
		p.catalog.RemoveFile(rel)
	}
	p.textDirty.Store(true)
	return p.catalog.Persist()
}

// statFile builds a FileInfo for one known relative path.
func (p *Pipeline) statFile(rel string) (walker.FileInfo, error) {
	abs := filepath.Join(p.rootDir, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		return walker.FileInfo{}, fmt.Errorf("pipeline: stat %s: %w", abs, err)
	}
	hash, err := walker.HashFile(abs)
	if err != nil {
		return walker.FileInfo{}, err
	}
	return walker.FileInfo{
		Path:        abs,
		RelPath:     rel,
		Size:        info.Size(),
		Language:    walker.DetectLanguage(filepath.Base(abs)),
		ContentHash: hash,
	}, nil
}

// selectChanged filters files down to those whose content differs from
// the catalog baseline. A differing git blob hash marks a file changed
// outright; matching blob hashes prove nothing about the working tree
// (an uncommitted edit keeps its HEAD blob), so the walker's content
// hash always gets the final word. Temporal collections and force runs
// index everything.
func (p *Pipeline) selectChanged(ctx context.Context, files []walker.FileInfo, force bool) []walker.FileInfo {
	if force || p.kind == gitresolver.CollectionKindTemporal {
		return files
	}

	rels := make([]string, len(files))
	for i, fi := range files {
		rels[i] = fi.RelPath
	}
	blobHashes := p.resolver.ResolveBlobHashes(ctx, p.rootDir, rels)

	changed := files[:0:0]
	for _, fi := range files {
		rec, ok := p.catalog.File(fi.RelPath)
		if !ok {
			changed = append(changed, fi)
			continue
		}
		if blob := blobHashes[fi.RelPath]; blob != "" && rec.BlobHash != "" && blob != rec.BlobHash {
			changed = append(changed, fi)
			continue
		}
		if fi.ContentHash != rec.ContentHash {
			changed = append(changed, fi)
		}
	}
	return changed
}
