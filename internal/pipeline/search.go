package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jsbattig/code-indexer-sub031/internal/predicate"
	"github.com/jsbattig/code-indexer-sub031/internal/textstore"
	"github.com/jsbattig/code-indexer-sub031/internal/vectorstore"
)

// VectorResult is one vector search hit joined with its chunk metadata.
type VectorResult struct {
	ID           uint64
	Distance     float32
	FilePath     string
	Language     string
	SemanticType string
	DocID        string
}

// IndexStats summarizes one collection's indexes.
type IndexStats struct {
	VectorCount   int
	FileCount     int
	FileSizeBytes int64
}

// overfetch multiplies k when a filter is active, so enough candidates
// survive filtering to fill the result set.
const overfetch = 10

// SearchVector returns the k nearest chunks to queryVector, nearest
// first. A non-nil filter is applied to each hit's chunk metadata.
// Searches read whatever artifact is live and never wait on a rebuild.
func (p *Pipeline) SearchVector(queryVector []float32, k, ef int, filter predicate.Predicate) ([]VectorResult, error) {
	handle, err := p.loadHandle()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	fetch := k
	if filter != nil {
		fetch = k * overfetch
		if fetch > handle.Count() {
			fetch = handle.Count()
		}
	}
	if ef < fetch {
		ef = fetch
	}

	ids, dists, err := handle.Query(queryVector, fetch, ef)
	if err != nil {
		return nil, err
	}

	results := make([]VectorResult, 0, k)
	for i, id := range ids {
		rec, ok := p.catalog.Chunk(id)
		if !ok {
			continue // dropped since the artifact was built
		}
		if filter != nil && !filter.Matches(predicate.Record{
			FilePath:     rec.FilePath,
			Language:     rec.Language,
			SemanticType: rec.SemanticType,
		}) {
			continue
		}
		results = append(results, VectorResult{
			ID:           id,
			Distance:     dists[i],
			FilePath:     rec.FilePath,
			Language:     rec.Language,
			SemanticType: rec.SemanticType,
			DocID:        rec.DocID,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// SearchText runs a full-text query against the live index snapshot.
func (p *Pipeline) SearchText(query string, opts textstore.SearchOptions) ([]textstore.SearchResult, error) {
	return p.text.Search(query, opts)
}

// Stats reports vector count, indexed file count, and total artifact
// size on disk.
func (p *Pipeline) Stats() (*IndexStats, error) {
	stats := &IndexStats{FileCount: p.catalog.FileCount()}

	vs, err := p.vectors.Stats()
	if err == nil {
		stats.VectorCount = vs.VectorCount
		stats.FileSizeBytes += vs.FileSize
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	_, textSize, err := p.text.Stats()
	if err != nil {
		return nil, err
	}
	stats.FileSizeBytes += textSize

	return stats, nil
}

// loadHandle returns a query handle for the live vector artifact,
// reloading only when the artifact changed since the last load.
func (p *Pipeline) loadHandle() (*vectorstore.Handle, error) {
	indexPath := filepath.Join(p.collectionDir, vectorstore.IndexFileName)
	info, err := os.Stat(indexPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: no vector index: %w", err)
	}

	p.handleMu.Lock()
	defer p.handleMu.Unlock()
	if p.cachedHandle != nil && info.ModTime().Equal(p.cachedModTime) {
		return p.cachedHandle, nil
	}

	handle, err := p.vectors.Load(0)
	if err != nil {
		return nil, err
	}
	p.cachedHandle = handle
	p.cachedModTime = info.ModTime()
	return handle, nil
}
