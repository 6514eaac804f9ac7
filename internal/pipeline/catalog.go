package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CatalogFileName is the per-collection catalog file.
const CatalogFileName = "catalog.json"

// FileRecord is the catalog entry for one indexed file.
type FileRecord struct {
	BlobHash    string   `json:"blob_hash,omitempty"`
	ContentHash string   `json:"content_hash,omitempty"`
	ChunkCount  int      `json:"chunk_count"`
	VectorIDs   []uint64 `json:"vector_ids"`
}

// ChunkRecord maps a vector id back to the chunk it embeds.
type ChunkRecord struct {
	FilePath     string `json:"file_path"`
	Language     string `json:"language,omitempty"`
	SemanticType string `json:"semantic_type,omitempty"`
	DocID        string `json:"doc_id"`
}

type catalogState struct {
	NextID uint64                 `json:"next_id"`
	Files  map[string]FileRecord  `json:"files"`
	Chunks map[uint64]ChunkRecord `json:"chunks"`
}

// Catalog tracks which files are indexed, under which blob/content hash,
// and which vector ids belong to them. It is the pipeline's change
// detection baseline and the join table between vector ids and chunk
// metadata. Persisted atomically next to the index artifacts.
type Catalog struct {
	mu   sync.Mutex
	path string
	st   catalogState
}

// LoadCatalog reads the catalog in dir, returning an empty catalog when
// none exists yet.
func LoadCatalog(dir string) (*Catalog, error) {
	c := &Catalog{
		path: filepath.Join(dir, CatalogFileName),
		st: catalogState{
			Files:  make(map[string]FileRecord),
			Chunks: make(map[uint64]ChunkRecord),
		},
	}
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", c.path, err)
	}
	if err := json.Unmarshal(data, &c.st); err != nil {
		return nil, fmt.Errorf("catalog: corrupt catalog %s: %w", c.path, err)
	}
	if c.st.Files == nil {
		c.st.Files = make(map[string]FileRecord)
	}
	if c.st.Chunks == nil {
		c.st.Chunks = make(map[uint64]ChunkRecord)
	}
	return c, nil
}

// Persist writes the catalog atomically via a temp file and rename.
func (c *Catalog) Persist() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.MarshalIndent(&c.st, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: marshalling: %w", err)
	}
	tmp := c.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("catalog: creating %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("catalog: writing %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("catalog: syncing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("catalog: closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("catalog: replacing %s: %w", c.path, err)
	}
	return nil
}

// AllocateIDs reserves n consecutive vector ids and returns the first.
func (c *Catalog) AllocateIDs(n int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := c.st.NextID
	c.st.NextID += uint64(n)
	return start
}

// File returns the record for path, if present.
func (c *Catalog) File(path string) (FileRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.st.Files[path]
	return rec, ok
}

// Chunk returns the record for a vector id, if present.
func (c *Catalog) Chunk(id uint64) (ChunkRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.st.Chunks[id]
	return rec, ok
}

// HasChunk reports whether id still belongs to a live chunk. Rebuilds
// use this to drop vectors whose file was re-indexed or removed.
func (c *Catalog) HasChunk(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.st.Chunks[id]
	return ok
}

// RecordFile replaces the record for path and registers its chunks,
// removing any previous chunk records for the same path first. It
// returns the vector ids that became stale.
func (c *Catalog) RecordFile(path string, rec FileRecord, chunks map[uint64]ChunkRecord) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	stale := c.removeLocked(path)
	c.st.Files[path] = rec
	for id, ch := range chunks {
		c.st.Chunks[id] = ch
	}
	return stale
}

// RemoveFile drops the record for path and returns its vector ids.
func (c *Catalog) RemoveFile(path string) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(path)
}

func (c *Catalog) removeLocked(path string) []uint64 {
	rec, ok := c.st.Files[path]
	if !ok {
		return nil
	}
	delete(c.st.Files, path)
	for _, id := range rec.VectorIDs {
		delete(c.st.Chunks, id)
	}
	return rec.VectorIDs
}

// FileCount returns the number of indexed files.
func (c *Catalog) FileCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.st.Files)
}

// Paths returns every indexed file path.
func (c *Catalog) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := make([]string, 0, len(c.st.Files))
	for p := range c.st.Files {
		paths = append(paths, p)
	}
	return paths
}
