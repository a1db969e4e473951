package lexical

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
	"github.com/Aman-CERP/casesearch/internal/query"
	"github.com/Aman-CERP/casesearch/internal/store"
)

func corpus() []store.CaseRecord {
	return []store.CaseRecord{
		{
			CaseID: 1, CaseNumber: "Crl. Misc. 12/2025", CaseTitle: "Muhammad Ahmed vs The State",
			Court: "Lahore High Court", Status: "Pending", Parties: []string{"Muhammad Ahmed", "The State"},
			InstitutionDate: "2025-01-10", FullText: "Bail sought in a case under section 302 PPC.",
		},
		{
			CaseID: 2, CaseNumber: "2/2025", CaseTitle: "Bashir Khan vs Federation of Pakistan",
			Court: "Islamabad High Court", Status: "Decided", Parties: []string{"Bashir Khan", "Federation of Pakistan"},
			InstitutionDate: "2025-02-01", FullText: "Writ petition regarding pension.",
		},
		{
			CaseID: 3, CaseNumber: "Civil Appeal 45/2019", CaseTitle: "Ayesha Bibi vs Tariq Mehmood",
			Court: "Supreme Court of Pakistan", Status: "Decided", Parties: []string{"Ayesha Bibi", "Tariq Mehmood"},
			InstitutionDate: "2019-06-15", FullText: "Appeal against decree in an inheritance dispute.",
		},
		{
			CaseID: 4, CaseNumber: "W.P. 900/2021", CaseTitle: "Zahid Iqbal vs Province of Punjab",
			Court: "Lahore High Court", Status: "Pending", Parties: []string{"Zahid Iqbal", "Province of Punjab"},
			InstitutionDate: "2021-09-09", FullText: "Constitutional petition on service matter.",
		},
	}
}

func buildIndex(t *testing.T, records []store.CaseRecord) *Index {
	t.Helper()
	idx, _, err := Build(context.Background(), records, nil, DefaultParams())
	require.NoError(t, err)
	return idx
}

func ids(results []Result) []store.CaseID {
	out := make([]store.CaseID, len(results))
	for i, r := range results {
		out[i] = r.CaseID
	}
	return out
}

// =============================================================================
// Field registry
// =============================================================================

func TestField_ExtractFallsBackInOrder(t *testing.T) {
	tests := []struct {
		name  string
		field string
		rec   store.CaseRecord
		want  string
	}{
		{"number present", FieldCaseNumber, store.CaseRecord{CaseNumber: "2/2025"}, "2/2025"},
		{"number from title", FieldCaseNumber, store.CaseRecord{CaseTitle: "Petition 7/2020 Ali vs State"}, "7/2020"},
		{"title from parties", FieldTitle, store.CaseRecord{Parties: []string{"Ali", "State"}}, "Ali vs State"},
		{"parties from title", FieldParties, store.CaseRecord{CaseTitle: "Ali vs State"}, "ali state"},
		{"keywords from title", FieldKeywords, store.CaseRecord{CaseTitle: "Bail petition of Ali"}, "petition bail"},
		{"nothing", FieldCourt, store.CaseRecord{}, ""},
	}
	registry := make(map[string]Field)
	for _, f := range DefaultFields() {
		registry[f.Name] = f
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			assert.Equal(t, tt.want, registry[tt.field].Extract(&rec))
		})
	}
}

func TestKeywords_IncludeCitationsAndSubjects(t *testing.T) {
	rec := store.CaseRecord{Subjects: []string{"murder"}, FullText: "Bail under Section 302 PPC"}
	f := DefaultFields()[5]
	require.Equal(t, FieldKeywords, f.Name)

	got := f.Extract(&rec)
	assert.Contains(t, got, "murder")
	assert.Contains(t, got, "bail")
	assert.Contains(t, got, "ppc:302")
}

// =============================================================================
// Search
// =============================================================================

func TestSearch_ExactCaseNumberRanksFirst(t *testing.T) {
	// Given a corpus where one case number is exactly "2/2025"
	idx := buildIndex(t, corpus())

	// When searching for it
	results := idx.Search(query.Normalize("2/2025"), SearchOptions{Limit: 10})

	// Then that case ranks first with the exact multiplier
	require.NotEmpty(t, results)
	assert.Equal(t, store.CaseID(2), results[0].CaseID)
	assert.Equal(t, MultExactNumber, results[0].Multiplier)
	for _, r := range results[1:] {
		assert.Less(t, r.Multiplier, MultPartialNumber, "12/2025 must not match 2/2025 as a phrase")
	}
}

func TestSearch_CitationMatchesKeywordField(t *testing.T) {
	idx := buildIndex(t, corpus())

	results := idx.Search(query.Normalize("PPC 302"), SearchOptions{Limit: 10})

	require.NotEmpty(t, results)
	assert.Equal(t, store.CaseID(1), results[0].CaseID)
	assert.Greater(t, results[0].FieldScores[FieldKeywords], 0.0)
}

func TestSearch_TitleMultiplier(t *testing.T) {
	idx := buildIndex(t, corpus())

	results := idx.Search(query.Normalize("Ayesha Bibi vs Tariq Mehmood"), SearchOptions{Limit: 10})

	require.NotEmpty(t, results)
	assert.Equal(t, store.CaseID(3), results[0].CaseID)
	assert.Equal(t, MultExactTitle, results[0].Multiplier)
}

func TestSearch_EmptyTokensReturnsNothing(t *testing.T) {
	idx := buildIndex(t, corpus())
	assert.Empty(t, idx.Search(query.Normalize("?!"), SearchOptions{Limit: 10}))
}

func TestSearch_Filters(t *testing.T) {
	idx := buildIndex(t, corpus())
	q := query.Normalize("high court")

	tests := []struct {
		name string
		opts SearchOptions
		want []store.CaseID
	}{
		{"court substring", SearchOptions{Filters: store.Filters{Court: "islamabad"}}, []store.CaseID{2}},
		{"status", SearchOptions{Filters: store.Filters{Status: "pending"}}, []store.CaseID{1, 4}},
		{"year", SearchOptions{Filters: store.Filters{Year: 2021}}, []store.CaseID{4}},
		{"allowed set", SearchOptions{Allowed: map[store.CaseID]bool{1: true}}, []store.CaseID{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, ids(idx.Search(q, tt.opts)))
		})
	}
}

func TestSearch_LimitAndOrdering(t *testing.T) {
	idx := buildIndex(t, corpus())

	all := idx.Search(query.Normalize("court"), SearchOptions{})
	limited := idx.Search(query.Normalize("court"), SearchOptions{Limit: 2})

	require.Len(t, all, 4)
	require.Len(t, limited, 2)
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		assert.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.CaseID < cur.CaseID))
	}
}

func TestSearch_SingleDocumentCorpusStillScores(t *testing.T) {
	idx := buildIndex(t, corpus()[:1])
	results := idx.Search(query.Normalize("Ahmed"), SearchOptions{Limit: 5})
	require.Len(t, results, 1)
	assert.Greater(t, results[0].Score, 0.0)
}

// =============================================================================
// Build
// =============================================================================

func TestBuild_IncrementalReusesUnchangedCases(t *testing.T) {
	// Given an index over the corpus
	records := corpus()
	first := buildIndex(t, records)

	// When one case changes and one is added
	records[1].CaseTitle = "Bashir Khan vs Province of Sindh"
	records = append(records, store.CaseRecord{CaseID: 5, CaseNumber: "9/2024", CaseTitle: "New vs Case"})
	second, stats, err := Build(context.Background(), records, first, DefaultParams())
	require.NoError(t, err)

	// Then only the changed and new cases are tokenized
	assert.Equal(t, 5, stats.Cases)
	assert.Equal(t, 2, stats.Tokenized)
	assert.Equal(t, 3, stats.Reused)
	assert.Contains(t, second.Tokens(2, FieldTitle), "sindh")
}

func TestBuild_Idempotent(t *testing.T) {
	a := buildIndex(t, corpus())
	reversed := corpus()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	b := buildIndex(t, reversed)

	assert.Equal(t, a.CaseIDs(), b.CaseIDs())
	assert.Equal(t, a.docs, b.docs)
}

func TestBuild_EmptyCorpus(t *testing.T) {
	idx := buildIndex(t, nil)
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Search(query.Normalize("bail"), SearchOptions{Limit: 5}))
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Build(ctx, corpus(), nil, DefaultParams())
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Snapshot
// =============================================================================

func TestSnapshot_RoundTripReproducesRankings(t *testing.T) {
	// Given a saved index
	idx := buildIndex(t, corpus())
	path := filepath.Join(t.TempDir(), "lexical.gob")
	require.NoError(t, idx.Save(path))

	// When loaded
	loaded, err := Load(path)
	require.NoError(t, err)

	// Then rankings are identical
	for _, raw := range []string{"2/2025", "PPC 302", "high court pending", "inheritance appeal"} {
		q := query.Normalize(raw)
		assert.Equal(t, idx.Search(q, SearchOptions{Limit: 10}), loaded.Search(q, SearchOptions{Limit: 10}), raw)
	}
	assert.Equal(t, idx.Params(), loaded.Params())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.gob"))
	require.Error(t, err)
	assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeSnapshotLoad))
}
