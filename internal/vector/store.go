// Package vector implements the chunk-level semantic index: word-window
// chunking, embedding through an embed.Embedder, and nearest-neighbour
// search over a swappable VectorStore backend.
package vector

import (
	"bufio"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// Backend names.
const (
	BackendFlat = "flat"
	BackendHNSW = "hnsw"
)

// Hit is one nearest-neighbour match. Key is the chunk row.
type Hit struct {
	Key   uint64
	Score float64
}

// VectorStore is a cosine-similarity store keyed by chunk row. Vectors are
// normalized on insert; scores are cosine similarities.
type VectorStore interface {
	Add(key uint64, vec []float32) error
	Search(query []float32, k int) []Hit
	Len() int
	Dimensions() int
	Backend() string
}

// graphStore is implemented by backends whose structure is persisted as-is
// rather than rebuilt from the stored embeddings.
type graphStore interface {
	SaveGraph(path string) error
	LoadGraph(path string) error
}

// ErrDimensionMismatch reports a vector of the wrong length.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// NewStore creates an empty store for the named backend.
func NewStore(backend string, dims int) (VectorStore, error) {
	switch backend {
	case BackendFlat, "":
		return NewFlatStore(dims), nil
	case BackendHNSW:
		return NewHNSWStore(dims), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q (want flat or hnsw)", backend)
	}
}

// ============================================================================
// Flat
// ============================================================================

// FlatStore scores every vector. Results are exact.
type FlatStore struct {
	dims    int
	keys    []uint64
	vectors [][]float32
}

// NewFlatStore creates an empty exact store.
func NewFlatStore(dims int) *FlatStore {
	return &FlatStore{dims: dims}
}

// Add appends a vector.
func (s *FlatStore) Add(key uint64, vec []float32) error {
	if len(vec) != s.dims {
		return ErrDimensionMismatch{Expected: s.dims, Got: len(vec)}
	}
	s.keys = append(s.keys, key)
	s.vectors = append(s.vectors, normalize(vec))
	return nil
}

// Search returns the k most similar vectors, score descending then key ascending.
func (s *FlatStore) Search(query []float32, k int) []Hit {
	if len(query) != s.dims || len(s.vectors) == 0 || k <= 0 {
		return nil
	}
	q := normalize(query)
	hits := make([]Hit, len(s.vectors))
	for i, v := range s.vectors {
		hits[i] = Hit{Key: s.keys[i], Score: dot(q, v)}
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Len returns the number of vectors.
func (s *FlatStore) Len() int { return len(s.vectors) }

// Dimensions returns the vector length.
func (s *FlatStore) Dimensions() int { return s.dims }

// Backend returns "flat".
func (s *FlatStore) Backend() string { return BackendFlat }

// ============================================================================
// HNSW
// ============================================================================

// hnswSeed fixes level generation so the same insertions build the same graph.
const hnswSeed = 42

// HNSWStore is an approximate store on coder/hnsw.
type HNSWStore struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int
}

// NewHNSWStore creates an empty cosine graph.
func NewHNSWStore(dims int) *HNSWStore {
	return &HNSWStore{graph: newGraph(), dims: dims}
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 64
	g.Ml = 0.25
	g.Rng = rand.New(rand.NewSource(hnswSeed))
	return g
}

// Add inserts a vector.
func (s *HNSWStore) Add(key uint64, vec []float32) error {
	if len(vec) != s.dims {
		return ErrDimensionMismatch{Expected: s.dims, Got: len(vec)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.Add(hnsw.MakeNode(key, normalize(vec)))
	return nil
}

// Search returns up to k approximate neighbours, score descending then key ascending.
func (s *HNSWStore) Search(query []float32, k int) []Hit {
	if len(query) != s.dims || k <= 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph.Len() == 0 {
		return nil
	}

	q := normalize(query)
	nodes := s.graph.Search(q, k)
	hits := make([]Hit, 0, len(nodes))
	for _, n := range nodes {
		hits = append(hits, Hit{Key: n.Key, Score: 1 - float64(s.graph.Distance(q, n.Value))})
	}
	sortHits(hits)
	return hits
}

// Len returns the number of graph nodes.
func (s *HNSWStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Len()
}

// Dimensions returns the vector length.
func (s *HNSWStore) Dimensions() int { return s.dims }

// Backend returns "hnsw".
func (s *HNSWStore) Backend() string { return BackendHNSW }

// SaveGraph exports the graph to path (temp file + rename).
func (s *HNSWStore) SaveGraph(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create graph file: %w", err)
	}
	w := bufio.NewWriter(file)
	if err := s.graph.Export(w); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close graph file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename graph file: %w", err)
	}
	return nil
}

// LoadGraph replaces the graph with the one exported at path.
func (s *HNSWStore) LoadGraph(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open graph file: %w", err)
	}
	defer file.Close()

	g := newGraph()
	// Import needs an io.ByteReader.
	if err := g.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	s.mu.Lock()
	s.graph = g
	s.mu.Unlock()
	return nil
}

var (
	_ VectorStore = (*FlatStore)(nil)
	_ VectorStore = (*HNSWStore)(nil)
	_ graphStore  = (*HNSWStore)(nil)
)

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Key < hits[j].Key
	})
}

// normalize returns a unit-length copy of v. A zero vector is copied as is.
func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range out {
		out[i] *= inv
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
