package facet

import (
	"fmt"
	"sort"
	"time"

	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// SnapshotFile is the facet snapshot name inside a snapshot directory.
const SnapshotFile = "facet.gob"

// SnapshotVersion is bumped whenever the persisted layout changes.
const SnapshotVersion = 1

type snapshotTerm struct {
	Type        Type
	Canonical   string
	Display     string
	Cases       []store.CaseID
	Counts      []int
	BoostFactor float64
}

type snapshot struct {
	Version int
	BuiltAt time.Time
	Terms   []snapshotTerm
	Numbers []caseNumber
}

// Save writes the term mappings and boost factors to path.
func (idx *Index) Save(path string) error {
	snap := snapshot{Version: SnapshotVersion, BuiltAt: idx.builtAt, Numbers: idx.numbers}
	for _, t := range AllTypes {
		for _, term := range idx.Terms(t) {
			counts := make([]int, len(term.Cases))
			for i, id := range term.Cases {
				counts[i] = term.Occurrences[id]
			}
			snap.Terms = append(snap.Terms, snapshotTerm{
				Type:        t,
				Canonical:   term.Canonical,
				Display:     term.Display,
				Cases:       term.Cases,
				Counts:      counts,
				BoostFactor: term.BoostFactor,
			})
		}
	}
	if err := store.WriteGob(path, &snap); err != nil {
		return cserrors.PersistenceError(cserrors.ErrCodeSnapshotSave, "failed to save facet snapshot", err).
			WithDetail("path", path)
	}
	return nil
}

// Load reads a snapshot written by Save.
func Load(path string) (*Index, error) {
	var snap snapshot
	if err := store.ReadGob(path, &snap); err != nil {
		return nil, cserrors.PersistenceError(cserrors.ErrCodeSnapshotLoad, "failed to load facet snapshot", err).
			WithDetail("path", path)
	}
	if snap.Version != SnapshotVersion {
		return nil, cserrors.PersistenceError(cserrors.ErrCodeCorruptSnapshot,
			fmt.Sprintf("facet snapshot version %d, want %d", snap.Version, SnapshotVersion), nil).
			WithDetail("path", path)
	}

	b := newBuilder()
	b.numbers = snap.Numbers
	for _, st := range snap.Terms {
		if len(st.Counts) != len(st.Cases) {
			return nil, cserrors.PersistenceError(cserrors.ErrCodeCorruptSnapshot,
				fmt.Sprintf("facet term %s:%s has inconsistent counts", st.Type, st.Canonical), nil).
				WithDetail("path", path)
		}
		if _, ok := b.terms[st.Type]; !ok {
			return nil, cserrors.PersistenceError(cserrors.ErrCodeCorruptSnapshot,
				fmt.Sprintf("unknown facet type %q", st.Type), nil).WithDetail("path", path)
		}
		for i, id := range st.Cases {
			b.add(st.Type, st.Canonical, st.Display, id, st.Counts[i])
		}
	}
	sort.Slice(b.numbers, func(i, j int) bool { return b.numbers[i].CaseID < b.numbers[j].CaseID })

	idx := b.finish()
	idx.builtAt = snap.BuiltAt
	return idx, nil
}
