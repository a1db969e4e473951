package vector

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// Snapshot files inside a snapshot directory.
const (
	SnapshotFile = "vector.gob"
	GraphFile    = "vector.hnsw"
)

// SnapshotVersion is bumped whenever the persisted layout changes.
const SnapshotVersion = 1

// snapshot holds the chunks with their embeddings in row order. Row i is
// the store key of chunk i. The flat store is rebuilt from the embeddings;
// the HNSW graph is exported next to it.
type snapshot struct {
	Version      int
	BuiltAt      time.Time
	Dimensions   int
	Model        string
	Backend      string
	Chunks       []store.Chunk
	Cases        []store.CaseID
	Fingerprints []uint64
}

// Save writes the snapshot files into dir.
func (idx *Index) Save(dir string) error {
	cases := make([]store.CaseID, 0, len(idx.fingerprints))
	for id := range idx.fingerprints {
		cases = append(cases, id)
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i] < cases[j] })
	fps := make([]uint64, len(cases))
	for i, id := range cases {
		fps[i] = idx.fingerprints[id]
	}

	snap := snapshot{
		Version:      SnapshotVersion,
		BuiltAt:      idx.builtAt,
		Dimensions:   idx.dims,
		Model:        idx.model,
		Backend:      idx.store.Backend(),
		Chunks:       idx.chunks,
		Cases:        cases,
		Fingerprints: fps,
	}
	path := filepath.Join(dir, SnapshotFile)
	if err := store.WriteGob(path, &snap); err != nil {
		return cserrors.PersistenceError(cserrors.ErrCodeSnapshotSave, "failed to save vector snapshot", err).
			WithDetail("path", path)
	}

	if gs, ok := idx.store.(graphStore); ok {
		graphPath := filepath.Join(dir, GraphFile)
		if err := gs.SaveGraph(graphPath); err != nil {
			return cserrors.PersistenceError(cserrors.ErrCodeSnapshotSave, "failed to save vector graph", err).
				WithDetail("path", graphPath)
		}
	}
	return nil
}

// Load reads a snapshot written by Save.
func Load(dir string) (*Index, error) {
	path := filepath.Join(dir, SnapshotFile)
	var snap snapshot
	if err := store.ReadGob(path, &snap); err != nil {
		return nil, cserrors.PersistenceError(cserrors.ErrCodeSnapshotLoad, "failed to load vector snapshot", err).
			WithDetail("path", path)
	}
	corrupt := func(msg string) error {
		return cserrors.PersistenceError(cserrors.ErrCodeCorruptSnapshot, msg, nil).WithDetail("path", path)
	}
	if snap.Version != SnapshotVersion {
		return nil, corrupt(fmt.Sprintf("vector snapshot version %d, want %d", snap.Version, SnapshotVersion))
	}
	if len(snap.Cases) != len(snap.Fingerprints) {
		return nil, corrupt("vector snapshot case mapping is inconsistent")
	}

	idx := &Index{
		builtAt:      snap.BuiltAt,
		dims:         snap.Dimensions,
		model:        snap.Model,
		chunks:       snap.Chunks,
		caseChunks:   make(map[store.CaseID][]int, len(snap.Cases)),
		fingerprints: make(map[store.CaseID]uint64, len(snap.Cases)),
	}
	for i, id := range snap.Cases {
		idx.fingerprints[id] = snap.Fingerprints[i]
	}
	embedded := 0
	for row := range idx.chunks {
		c := &idx.chunks[row]
		if _, ok := idx.fingerprints[c.CaseID]; !ok {
			return nil, corrupt(fmt.Sprintf("chunk %s belongs to no indexed case", c.ID()))
		}
		if c.Embedded {
			if len(c.Embedding) != snap.Dimensions {
				return nil, corrupt(fmt.Sprintf("chunk %s has %d dimensions, want %d", c.ID(), len(c.Embedding), snap.Dimensions))
			}
			embedded++
		}
		idx.caseChunks[c.CaseID] = append(idx.caseChunks[c.CaseID], row)
	}

	if snap.Backend == BackendHNSW {
		graphPath := filepath.Join(dir, GraphFile)
		hs := NewHNSWStore(snap.Dimensions)
		if err := hs.LoadGraph(graphPath); err != nil {
			code := cserrors.ErrCodeSnapshotLoad
			if !stderrors.Is(err, os.ErrNotExist) {
				code = cserrors.ErrCodeCorruptSnapshot
			}
			return nil, cserrors.PersistenceError(code, "failed to load vector graph", err).
				WithDetail("path", graphPath)
		}
		if hs.Len() != embedded {
			return nil, corrupt(fmt.Sprintf("vector graph has %d nodes, want %d", hs.Len(), embedded))
		}
		idx.store = hs
		return idx, nil
	}

	vs, err := idx.buildStore(snap.Backend)
	if err != nil {
		return nil, cserrors.PersistenceError(cserrors.ErrCodeCorruptSnapshot, "failed to rebuild vector store", err).
			WithDetail("path", path)
	}
	idx.store = vs
	return idx, nil
}
