package store

import (
	"context"
	"sort"
)

// CaseSource supplies case records to the index builder.
// Implementations return records ordered by CaseID.
type CaseSource interface {
	ListCases(ctx context.Context) ([]CaseRecord, error)
}

// SliceSource serves a fixed set of records, mainly for tests and imports.
type SliceSource []CaseRecord

// ListCases returns a copy of the records sorted by CaseID.
func (s SliceSource) ListCases(ctx context.Context) ([]CaseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]CaseRecord, len(s))
	copy(out, s)
	sort.Slice(out, func(i, j int) bool { return out[i].CaseID < out[j].CaseID })
	return out, nil
}
