// Package vectorstore implements the vector similarity index backend: a
// flat persisted index with euclidean and inner-product metrics, built
// and swapped atomically through the shared rebuilder so concurrent
// queries never observe a partial artifact.
package vectorstore

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/jsbattig/code-indexer-sub031/internal/rebuild"
)

// Metric selects the distance function.
type Metric string

const (
	MetricEuclidean    Metric = "euclidean"
	MetricInnerProduct Metric = "inner_product"
)

// IndexFileName is the artifact file name inside a collection directory.
const IndexFileName = "vectors.idx"

// MetaFileName is the metadata sidecar recording dimension and metric.
const MetaFileName = "vectors.meta.json"

// Meta is the persisted metadata sidecar.
type Meta struct {
	VectorDim      int    `json:"vector_dim"`
	DistanceMetric Metric `json:"distance_metric"`
}

// Stats describes a persisted index.
type Stats struct {
	VectorCount int
	FileSize    int64
}

// BuildParams configures a Build call.
type BuildParams struct {
	Dim    int
	Metric Metric
}

// Store manages the vector index artifact for one collection directory.
type Store struct {
	dir       string
	rebuilder *rebuild.Rebuilder
}

// NewStore creates a Store over the given collection directory. All
// rebuilds go through the shared rebuilder so at most one build per
// collection is in flight.
func NewStore(dir string, rb *rebuild.Rebuilder) *Store {
	return &Store{dir: dir, rebuilder: rb}
}

func (s *Store) indexPath() string { return s.dir + string(os.PathSeparator) + IndexFileName }
func (s *Store) metaPath() string  { return s.dir + string(os.PathSeparator) + MetaFileName }

// Build writes a complete new index containing the given vectors and ids,
// replacing any live artifact atomically. Every vector must match
// params.Dim; a mismatch rejects the whole build.
func (s *Store) Build(ctx context.Context, vectors [][]float32, ids []uint64, params BuildParams) error {
	if len(vectors) != len(ids) {
		return fmt.Errorf("vectorstore: %d vectors but %d ids", len(vectors), len(ids))
	}
	if params.Dim <= 0 {
		return fmt.Errorf("vectorstore: invalid dimension %d", params.Dim)
	}
	if _, err := metricCode(params.Metric); err != nil {
		return err
	}
	for i, v := range vectors {
		if len(v) != params.Dim {
			return fmt.Errorf("vectorstore: vector %d has dimension %d, index expects %d", i, len(v), params.Dim)
		}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("vectorstore: creating %s: %w", s.dir, err)
	}

	return s.rebuilder.RebuildWithLock(ctx, s.indexPath(), func(ctx context.Context, tmpPath string) error {
		if err := writeIndexFile(tmpPath, params.Metric, params.Dim, ids, vectors); err != nil {
			return err
		}
		// The sidecar is written only once the new index is materialized,
		// so a failed build leaves it describing the live artifact.
		return s.writeMeta(params)
	})
}

func (s *Store) writeMeta(params BuildParams) error {
	data, err := json.MarshalIndent(Meta{VectorDim: params.Dim, DistanceMetric: params.Metric}, "", "  ")
	if err != nil {
		return fmt.Errorf("vectorstore: marshalling metadata: %w", err)
	}
	tmp := s.metaPath() + rebuild.TmpSuffix
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("vectorstore: writing metadata: %w", err)
	}
	if err := os.Rename(tmp, s.metaPath()); err != nil {
		return fmt.Errorf("vectorstore: replacing metadata: %w", err)
	}
	return nil
}

// LoadMeta reads the metadata sidecar.
func (s *Store) LoadMeta() (*Meta, error) {
	data, err := os.ReadFile(s.metaPath())
	if err != nil {
		return nil, fmt.Errorf("vectorstore: reading metadata: %w", err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("vectorstore: corrupt metadata %s: %w", s.metaPath(), err)
	}
	return &m, nil
}

// Load opens the current index artifact into an immutable query handle.
// maxElements bounds how many vectors the caller is willing to hold in
// memory; zero means unbounded. A handle keeps serving the artifact it
// was loaded from even while a rebuild swaps in a new one.
func (s *Store) Load(maxElements int) (*Handle, error) {
	metric, dim, ids, vectors, err := readIndexFile(s.indexPath(), maxElements)
	if err != nil {
		return nil, err
	}
	return &Handle{metric: metric, dim: dim, ids: ids, vectors: vectors}, nil
}

// Stats returns the vector count and file size of the persisted index.
func (s *Store) Stats() (*Stats, error) {
	info, err := os.Stat(s.indexPath())
	if err != nil {
		return nil, fmt.Errorf("vectorstore: stat %s: %w", s.indexPath(), err)
	}
	_, _, ids, _, err := readIndexFile(s.indexPath(), 0)
	if err != nil {
		return nil, err
	}
	return &Stats{VectorCount: len(ids), FileSize: info.Size()}, nil
}

// Handle is an immutable, query-only view of a loaded index.
type Handle struct {
	metric  Metric
	dim     int
	ids     []uint64
	vectors [][]float32
}

// Dim returns the index dimension.
func (h *Handle) Dim() int { return h.dim }

// Count returns the number of vectors in the handle.
func (h *Handle) Count() int { return len(h.ids) }

// Export returns copies of the handle's ids and vectors. Callers that
// rebuild the index incrementally start from this and append or drop
// entries without touching the handle's own state.
func (h *Handle) Export() ([]uint64, [][]float32) {
	ids := make([]uint64, len(h.ids))
	copy(ids, h.ids)
	vectors := make([][]float32, len(h.vectors))
	for i, v := range h.vectors {
		vectors[i] = make([]float32, len(v))
		copy(vectors[i], v)
	}
	return ids, vectors
}

// Query returns the ids and distances of the k nearest vectors, ordered
// nearest-first. ef widens the candidate pool and is clamped to at least
// k; it trades latency for recall among near-ties and never changes which
// result an exact match returns.
func (h *Handle) Query(vector []float32, k, ef int) ([]uint64, []float32, error) {
	if len(vector) != h.dim {
		return nil, nil, fmt.Errorf("vectorstore: query vector has dimension %d, index expects %d", len(vector), h.dim)
	}
	if k <= 0 {
		return nil, nil, nil
	}
	if ef < k {
		ef = k
	}

	// Keep the ef worst-of-the-best candidates in a max-heap, then sort
	// the survivors and return the top k.
	cand := &candidateHeap{}
	heap.Init(cand)
	for i, v := range h.vectors {
		d := distance(h.metric, vector, v)
		if cand.Len() < ef {
			heap.Push(cand, candidate{id: h.ids[i], dist: d})
		} else if d < (*cand)[0].dist {
			(*cand)[0] = candidate{id: h.ids[i], dist: d}
			heap.Fix(cand, 0)
		}
	}

	out := make([]candidate, cand.Len())
	copy(out, *cand)
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	if len(out) > k {
		out = out[:k]
	}

	ids := make([]uint64, len(out))
	dists := make([]float32, len(out))
	for i, c := range out {
		ids[i] = c.id
		dists[i] = c.dist
	}
	return ids, dists, nil
}

// distance computes the configured distance. Euclidean is squared L2
// (non-negative, same ordering as true L2); inner product follows the
// 1-dot convention so an identical normalized vector scores near zero.
func distance(metric Metric, a, b []float32) float32 {
	switch metric {
	case MetricInnerProduct:
		var dot float32
		for i := range a {
			dot += a[i] * b[i]
		}
		return 1 - dot
	default:
		var sum float32
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return sum
	}
}

type candidate struct {
	id   uint64
	dist float32
}

// candidateHeap is a max-heap on distance, so the worst kept candidate is
// always at the root.
type candidateHeap []candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
