package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/casesearch/internal/facet"
	"github.com/Aman-CERP/casesearch/internal/ranking"
	"github.com/Aman-CERP/casesearch/internal/search"
	"github.com/Aman-CERP/casesearch/internal/snippet"
)

func TestWriter_StatusLines(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"success", func(w *Writer) { w.Successf("indexed %d cases", 3) }, "✓ indexed 3 cases\n"},
		{"warning", func(w *Writer) { w.Warningf("embedder offline") }, "! embedder offline\n"},
		{"error", func(w *Writer) { w.Errorf("build failed: %s", "disk full") }, "✗ build failed: disk full\n"},
		{"indented", func(w *Writer) { w.Status("", "detail") }, "   detail\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.write(New(buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, New(buf).JSON(map[string]int{"cases": 3}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 3, got["cases"])
}

// ============================================================================
// Search results
// ============================================================================

func TestWriter_SearchResults(t *testing.T) {
	// Given a debug page with snippets, facets and a next page
	resp := &search.Response{
		Results: []search.Result{
			{CaseID: 3, CaseNumber: "12/2024", CaseTitle: "State vs Bashir", Court: "Supreme Court",
				Status: "Decided", InstitutionDate: "2024-02-20", FinalScore: 0.9123, Rank: 1,
				Snippets: []snippet.Snippet{{Text: "conviction under section **302** ppc"}},
				Scores:   &ranking.Candidate{KeywordScore: 0.8, BaseScore: 0.8, TotalBoost: 0.1}},
			{CaseID: 8, FinalScore: 0.2, Rank: 2},
		},
		Pagination: search.Pagination{Total: 7, Offset: 0, Limit: 2, HasNext: true},
		QueryInfo:  search.QueryInfo{Citations: []string{"ppc:302"}, Warnings: []string{"limit capped at 100"}},
		Facets: map[string][]facet.Value{
			"status": {{Value: "Decided", Count: 5}, {Value: "Pending", Count: 2}},
			"judge":  nil,
			"year": {{Value: "2024", Count: 2}, {Value: "2023", Count: 1}, {Value: "2022", Count: 1},
				{Value: "2021", Count: 1}, {Value: "2020", Count: 1}, {Value: "2019", Count: 1}},
		},
		Metadata: search.Metadata{Mode: "hybrid", LatencyMS: 4,
			Debug: &search.Debug{Fallbacks: []string{search.FallbackNoVectorIndex}}},
	}

	// When printing
	buf := &bytes.Buffer{}
	New(buf).SearchResults("ppc 302", resp)

	// Then every section is present
	out := buf.String()
	assert.Contains(t, out, `1-2 of 7 cases for "ppc 302" (hybrid, 4ms)`)
	assert.Contains(t, out, "Citations: ppc:302")
	assert.Contains(t, out, "Note: limit capped at 100")
	assert.Contains(t, out, "  1. State vs Bashir  [0.912]")
	assert.Contains(t, out, "12/2024 · Supreme Court · Decided · 2024-02-20 · id 3")
	assert.Contains(t, out, `"conviction under section **302** ppc"`)
	assert.Contains(t, out, "keyword 0.800 · vector 0.000 · base 0.800 · boost 0.100")
	assert.Contains(t, out, "  2. Case 8  [0.200]")
	assert.Contains(t, out, "status:   Decided (5), Pending (2)")
	assert.Contains(t, out, "+1 more")
	assert.NotContains(t, out, "judge:")
	assert.Contains(t, out, "Fallbacks: "+search.FallbackNoVectorIndex)
	assert.Contains(t, out, "More results: --offset 2")
}

func TestWriter_SearchResultsEmpty(t *testing.T) {
	tests := []struct {
		name string
		resp *search.Response
		want string
	}{
		{name: "nil response", resp: nil, want: "No cases found for \"bail\".\n"},
		{name: "no matches", resp: &search.Response{}, want: "No cases found for \"bail\".\n"},
		{name: "past the end", resp: &search.Response{Pagination: search.Pagination{Total: 4, Offset: 20}},
			want: "No cases at offset 20 for \"bail\" (4 total).\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			New(buf).SearchResults("bail", tt.resp)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_Suggestions(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Suggestions("12", []facet.Suggestion{
		{Value: "12/2024", Type: facet.SuggestCase, AdditionalInfo: "State vs Bashir (Supreme Court)"},
		{Value: "PPC 120", Type: facet.SuggestSection},
	})
	w.Suggestions("zz", nil)

	out := buf.String()
	assert.Contains(t, out, "case       12/2024  State vs Bashir (Supreme Court)\n")
	assert.Contains(t, out, "section    PPC 120\n")
	assert.Contains(t, out, "No suggestions for \"zz\".\n")
}
