package snippet

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/casesearch/internal/config"
	"github.com/Aman-CERP/casesearch/internal/facet"
	"github.com/Aman-CERP/casesearch/internal/query"
	"github.com/Aman-CERP/casesearch/internal/store"
)

type chunkMap map[store.CaseID][]store.Chunk

func (m chunkMap) Chunks(id store.CaseID) []store.Chunk { return m[id] }

func testRecord() store.CaseRecord {
	return store.CaseRecord{
		CaseID:       1,
		CaseNumber:   "Crl. Misc. 2/2025",
		CaseTitle:    "Ahmed vs State",
		Court:        "Lahore High Court",
		Status:       "Pending",
		Bench:        []string{"Justice Ali Khan"},
		DisposalDate: "2025-03-04",
		FullText:     "Bail sought under section 497 CrPC.",
	}
}

func testChunks() chunkMap {
	return chunkMap{
		1: {
			{CaseID: 1, Index: 0, Text: "The petitioner seeks post-arrest bail in a case registered under section 497 CrPC. Counsel submits that the accused has been behind bars for six months without trial."},
			{CaseID: 1, Index: 1, Text: "The learned trial court dismissed the earlier bail application on merits and the prosecution opposed the plea before this court. Hearing adjourned."},
		},
		2: {
			{CaseID: 2, Index: 0, Text: "Suit for declaration regarding agricultural land mutation entered in the revenue record without notice to the plaintiff, who seeks bail of the record."},
		},
	}
}

func allChunks(m chunkMap) []store.Chunk {
	var out []store.Chunk
	for _, id := range []store.CaseID{1, 2} {
		out = append(out, m[id]...)
	}
	return out
}

func newTextIndex(t *testing.T, chunks []store.Chunk) *TextIndex {
	t.Helper()
	idx, err := NewTextIndex(context.Background(), chunks)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func lexicalOnly() Options {
	o := DefaultOptions()
	o.Synthesis = false
	return o
}

// ============================================================================
// TextIndex
// ============================================================================

func TestTextIndex_FindLocatesTermsInCase(t *testing.T) {
	// Given chunks of two cases that both mention bail
	chunks := testChunks()
	idx := newTextIndex(t, allChunks(chunks))
	require.Equal(t, 3, idx.Len())

	// When searching case 1
	spans, err := idx.Find(context.Background(), 1, "bail application", 10)
	require.NoError(t, err)

	// Then only case 1 spans are returned and they point at the terms
	require.NotEmpty(t, spans)
	terms := make(map[string]bool)
	for _, sp := range spans {
		c, ok := idx.Chunk(1, sp.ChunkIndex)
		require.True(t, ok)
		word := c.Text[sp.Start:sp.End]
		assert.True(t, strings.EqualFold(word, sp.Term), "span %q for term %q", word, sp.Term)
		terms[sp.Term] = true
	}
	assert.True(t, terms["bail"])
	assert.True(t, terms["application"])
}

func TestTextIndex_FindNoMatch(t *testing.T) {
	idx := newTextIndex(t, allChunks(testChunks()))

	spans, err := idx.Find(context.Background(), 2, "habeas", 10)
	require.NoError(t, err)
	assert.Empty(t, spans)

	spans, err = idx.Find(context.Background(), 1, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestTextIndex_Closed(t *testing.T) {
	idx, err := NewTextIndex(context.Background(), allChunks(testChunks()))
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err = idx.Find(context.Background(), 1, "bail", 10)
	assert.Error(t, err)
}

// ============================================================================
// Generate
// ============================================================================

func TestGenerate_LexicalSpansWithHighlights(t *testing.T) {
	// Given a text index and no other sources
	g := NewGenerator(lexicalOnly(), newTextIndex(t, allChunks(testChunks())), nil, nil)
	rec := testRecord()

	// When generating with highlighting
	snippets := g.Generate(context.Background(), &rec, query.Normalize("bail application"), true)

	// Then each chunk match yields one lexical snippet with marked terms
	require.Len(t, snippets, 2)
	for _, s := range snippets {
		assert.Equal(t, TypeLexical, s.Type)
		require.NotEmpty(t, s.Highlights)
		for _, h := range s.Highlights {
			word := strings.ToLower(s.Plain[h.Start:h.End])
			assert.Contains(t, []string{"bail", "application"}, word)
		}
		assert.Contains(t, s.Text, "**bail**")
		assert.LessOrEqual(t, len(s.Plain), DefaultMaxLength)
	}
}

func TestGenerate_NoHighlight(t *testing.T) {
	g := NewGenerator(lexicalOnly(), newTextIndex(t, allChunks(testChunks())), nil, nil)
	rec := testRecord()

	snippets := g.Generate(context.Background(), &rec, query.Normalize("bail"), false)

	require.NotEmpty(t, snippets)
	for _, s := range snippets {
		assert.Equal(t, s.Plain, s.Text)
		assert.NotContains(t, s.Text, "**")
	}
}

func TestGenerate_WindowInLongText(t *testing.T) {
	// Given a long chunk with a single match in the middle
	filler := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	text := filler + "the disputed mutation was sanctioned " + filler
	chunks := []store.Chunk{{CaseID: 5, Index: 0, Text: text}}
	g := NewGenerator(lexicalOnly(), newTextIndex(t, chunks), nil, nil)
	rec := store.CaseRecord{CaseID: 5, CaseTitle: "Rashid vs Province"}

	// When generating
	snippets := g.Generate(context.Background(), &rec, query.Normalize("mutation"), true)

	// Then the snippet is a bounded window around the match on word boundaries
	require.NotEmpty(t, snippets)
	s := snippets[0]
	assert.Equal(t, TypeLexical, s.Type)
	assert.LessOrEqual(t, len(s.Plain), DefaultMaxLength)
	assert.GreaterOrEqual(t, len(s.Plain), DefaultMinLength)
	assert.Contains(t, s.Plain, "mutation")
	assert.False(t, strings.HasPrefix(s.Plain, " "))
	assert.True(t, strings.HasPrefix(text[strings.Index(text, s.Plain):], s.Plain))
	first := strings.Fields(s.Plain)[0]
	assert.Contains(t, []string{"lorem", "ipsum", "dolor", "sit", "amet"}, first)
}

func TestGenerate_CitationChunk(t *testing.T) {
	chunks := chunkMap{1: {{CaseID: 1, Index: 0, Text: "Accused booked u/s 302 PPC for the murder of his neighbour."}}}
	g := NewGenerator(lexicalOnly(), nil, chunks, nil)
	rec := testRecord()

	snippets := g.Generate(context.Background(), &rec, query.Normalize("302 PPC"), false)

	require.Len(t, snippets, 1)
	assert.Equal(t, TypeCitation, snippets[0].Type)
	assert.Equal(t, "ppc:302", snippets[0].MatchedTerm)
}

func TestGenerate_Synthesis(t *testing.T) {
	// Given chunks and the facet index of the case
	rec := testRecord()
	terms, _, err := facet.Build(context.Background(), []store.CaseRecord{rec})
	require.NoError(t, err)
	chunks := testChunks()
	g := NewGenerator(DefaultOptions(), nil, chunks, terms)

	// When generating
	snippets := g.Generate(context.Background(), &rec, query.Normalize("bail"), false)

	// Then the top snippet summarizes the case
	require.NotEmpty(t, snippets)
	s := snippets[0]
	assert.Equal(t, TypeSynthesized, s.Type)
	assert.True(t, strings.HasPrefix(s.Plain, "Ahmed vs State, Crl. Misc. 2/2025 (Lahore High Court, Pending, 4 Mar 2025)."))
	assert.Contains(t, s.Plain, "Sections: CRPC 497.")
	assert.LessOrEqual(t, len(s.Plain), DefaultMaxLength+3)
}

func TestGenerate_MetadataFallback(t *testing.T) {
	g := NewGenerator(DefaultOptions(), nil, nil, nil)
	rec := testRecord()

	snippets := g.Generate(context.Background(), &rec, query.Normalize("Ahmed bail"), true)

	require.Len(t, snippets, 1)
	assert.Equal(t, TypeTitle, snippets[0].Type)
	assert.Equal(t, "case_title", snippets[0].Field)
	assert.Equal(t, "**Ahmed** vs State", snippets[0].Text)
}

func TestGenerate_TitleWhenNothingMatches(t *testing.T) {
	g := NewGenerator(DefaultOptions(), nil, nil, nil)
	rec := testRecord()

	snippets := g.Generate(context.Background(), &rec, query.Normalize("zebra"), true)

	require.Len(t, snippets, 1)
	assert.Equal(t, TypeTitle, snippets[0].Type)
	assert.Equal(t, "Ahmed vs State", snippets[0].Text)
	assert.Empty(t, snippets[0].Highlights)
}

func TestGenerate_CapsPerResult(t *testing.T) {
	opts := lexicalOnly()
	opts.MaxPerResult = 1
	g := NewGenerator(opts, newTextIndex(t, allChunks(testChunks())), testChunks(), nil)
	rec := testRecord()

	snippets := g.Generate(context.Background(), &rec, query.Normalize("bail application"), false)

	assert.Len(t, snippets, 1)
}

// ============================================================================
// Helpers
// ============================================================================

func TestOptionsFromConfig(t *testing.T) {
	o := OptionsFromConfig(config.SnippetConfig{MaxLength: 80, NoSynthesis: true})

	assert.Equal(t, 80, o.MaxLength)
	assert.Equal(t, 80, o.MinLength)
	assert.Equal(t, DefaultContextWords, o.ContextWords)
	assert.Equal(t, DefaultMaxPerResult, o.MaxPerResult)
	assert.False(t, o.Synthesis)
}

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"bail under section 497 CrPC", []string{"bail", "section", "497", "crpc"}},
		{"State vs Ahmed", []string{"state", "ahmed"}},
		{"of in at", nil},
		{"302 PPC and 302 PPC", []string{"302", "ppc"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, QueryTerms(query.Normalize(tt.raw)))
		})
	}
	assert.Nil(t, QueryTerms(nil))
}

func TestMarkTerms(t *testing.T) {
	text := "Bail granted; bailable offence, BAIL."

	hl := markTerms(text, []string{"bail"})

	require.Len(t, hl, 2)
	assert.Equal(t, "Bail", text[hl[0].Start:hl[0].End])
	assert.Equal(t, "BAIL", text[hl[1].Start:hl[1].End])
	assert.Equal(t, "**Bail** granted; bailable offence, **BAIL**.", applyHighlights(text, hl))
}

func TestMergeHighlights(t *testing.T) {
	got := mergeHighlights([]Highlight{{10, 14}, {0, 4}, {12, 20}, {3, 5}})

	assert.Equal(t, []Highlight{{0, 5}, {10, 20}}, got)
}

func TestTruncateAtSentence(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		min  int
		want string
	}{
		{"short", "Fits.", 20, 5, "Fits."},
		{"sentence end", "First sentence here. Second one is long", 30, 5, "First sentence here."},
		{"word boundary", "alpha beta gamma delta epsilon", 20, 5, "alpha beta gamma..."},
		{"hard cut", "abcdefghijklmnopqrstuvwxyz", 10, 5, "abcdefghij..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateAtSentence(tt.text, tt.max, tt.min))
		})
	}
}

func TestRelevance(t *testing.T) {
	assert.InDelta(t, 0.8*0.9, relevance(TypeLexical, "bail", 100), 1e-9)
	assert.InDelta(t, 1.0, relevance(TypeLexical, "application", 200), 1e-9)
	assert.InDelta(t, 0.95*0.9, relevance(TypeSynthesized, "", 400), 1e-9)
	assert.InDelta(t, 0.5*0.8*0.7, relevance(TypeBench, "ali", 20), 1e-9)
}

func TestMeaningfulContent(t *testing.T) {
	text := "ORDER SHEET\nof the court below\nThe petitioner has approached this court seeking bail after arrest, and counsel for the petitioner submits that no recovery was effected. Adjourned."

	got := meaningfulContent(text)

	assert.True(t, strings.HasPrefix(got, "The petitioner has approached"))
	assert.True(t, strings.HasSuffix(got, "effected."))
}

func TestDedupe(t *testing.T) {
	in := []Snippet{
		{Plain: "Bail granted to the accused on merits", Relevance: 0.5},
		{Plain: "bail granted to the accused on merits.", Relevance: 0.9},
		{Plain: "Land mutation set aside", Relevance: 0.7},
	}

	out := dedupe(in)

	require.Len(t, out, 2)
	assert.Equal(t, 0.9, out[0].Relevance)
	assert.Equal(t, 0.7, out[1].Relevance)
}
