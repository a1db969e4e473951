package lexical

import (
	"fmt"
	"time"

	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// SnapshotVersion is bumped whenever the persisted layout changes.
const SnapshotVersion = 1

// snapshot is the persisted form: tokenized corpora and the row mapping.
// BM25 scorers are rebuilt on load.
type snapshot struct {
	Version      int
	BuiltAt      time.Time
	Params       Params
	Rows         []store.CaseID
	Fingerprints []uint64
	Meta         []store.CaseRecord
	Fields       map[string][][]string
}

// Save writes the index to path atomically.
func (idx *Index) Save(path string) error {
	snap := snapshot{
		Version:      SnapshotVersion,
		BuiltAt:      idx.builtAt,
		Params:       idx.params,
		Rows:         idx.rows,
		Fingerprints: idx.fingerprints,
		Meta:         idx.meta,
		Fields:       idx.docs,
	}
	if err := store.WriteGob(path, &snap); err != nil {
		return cserrors.PersistenceError(cserrors.ErrCodeSnapshotSave, "failed to save lexical snapshot", err).
			WithDetail("path", path)
	}
	return nil
}

// Load reads a snapshot written by Save and rebuilds the scorers.
func Load(path string) (*Index, error) {
	var snap snapshot
	if err := store.ReadGob(path, &snap); err != nil {
		return nil, cserrors.PersistenceError(cserrors.ErrCodeSnapshotLoad, "failed to load lexical snapshot", err).
			WithDetail("path", path)
	}
	if snap.Version != SnapshotVersion {
		return nil, cserrors.PersistenceError(cserrors.ErrCodeCorruptSnapshot,
			fmt.Sprintf("lexical snapshot version %d, want %d", snap.Version, SnapshotVersion), nil).
			WithDetail("path", path)
	}
	if len(snap.Fingerprints) != len(snap.Rows) || len(snap.Meta) != len(snap.Rows) {
		return nil, cserrors.PersistenceError(cserrors.ErrCodeCorruptSnapshot, "lexical snapshot row mapping is inconsistent", nil).
			WithDetail("path", path)
	}
	for name, docs := range snap.Fields {
		if len(docs) != len(snap.Rows) {
			return nil, cserrors.PersistenceError(cserrors.ErrCodeCorruptSnapshot,
				fmt.Sprintf("lexical field %q has %d rows, want %d", name, len(docs), len(snap.Rows)), nil).
				WithDetail("path", path)
		}
	}

	idx := &Index{
		params:       snap.Params,
		builtAt:      snap.BuiltAt,
		rows:         snap.Rows,
		rowOf:        make(map[store.CaseID]int, len(snap.Rows)),
		fingerprints: snap.Fingerprints,
		meta:         snap.Meta,
		docs:         snap.Fields,
	}
	if idx.docs == nil {
		idx.docs = make(map[string][][]string)
	}
	for row, id := range idx.rows {
		idx.rowOf[id] = row
	}
	idx.buildScorers()
	return idx, nil
}
