// Package snippet extracts highlighted text excerpts for ranked cases.
//
// Each case gets up to MaxPerResult snippets drawn from, in order of
// preference, a rule-based synthesis of its metadata and best chunk,
// literal query-term matches located by the text index, chunks citing the
// queried statutes, and finally its title, number or bench.
package snippet

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Aman-CERP/casesearch/internal/config"
	"github.com/Aman-CERP/casesearch/internal/facet"
	"github.com/Aman-CERP/casesearch/internal/query"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// Defaults.
const (
	DefaultMaxLength    = 300
	DefaultMinLength    = 100
	DefaultContextWords = 20
	DefaultMaxPerResult = 3
)

// approxWordBytes converts a context window in words to bytes.
const approxWordBytes = 5

// dedupeSimilarity is the word overlap at which two snippets are duplicates.
const dedupeSimilarity = 0.8

// Type says where a snippet came from.
type Type string

// Snippet types.
const (
	TypeSynthesized Type = "synthesized"
	TypeLexical     Type = "lexical"
	TypeCitation    Type = "citation"
	TypeTitle       Type = "metadata_title"
	TypeSemantic    Type = "semantic"
	TypeNumber      Type = "metadata_number"
	TypeBench       Type = "metadata_bench"
)

var typeRelevance = map[Type]float64{
	TypeLexical:     1.0,
	TypeSynthesized: 0.95,
	TypeCitation:    0.9,
	TypeTitle:       0.8,
	TypeSemantic:    0.7,
	TypeNumber:      0.6,
	TypeBench:       0.5,
}

// Highlight is a matched span as [Start, End) byte offsets into Snippet.Plain.
type Highlight struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Snippet is one excerpt of a case.
type Snippet struct {
	// Text carries **term** markers when highlighting is on.
	Text        string      `json:"text"`
	Plain       string      `json:"original_text"`
	Type        Type        `json:"snippet_type"`
	MatchedTerm string      `json:"matched_term,omitempty"`
	Highlights  []Highlight `json:"highlights,omitempty"`
	Relevance   float64     `json:"relevance_score"`
	ChunkIndex  int         `json:"chunk_index"`
	// Field names the metadata field of metadata snippets.
	Field string `json:"metadata_field,omitempty"`
}

// Options configure snippet extraction.
type Options struct {
	MaxLength    int
	MinLength    int
	ContextWords int
	MaxPerResult int
	Synthesis    bool
}

// DefaultOptions returns the production snippet settings.
func DefaultOptions() Options {
	return Options{
		MaxLength:    DefaultMaxLength,
		MinLength:    DefaultMinLength,
		ContextWords: DefaultContextWords,
		MaxPerResult: DefaultMaxPerResult,
		Synthesis:    true,
	}
}

// OptionsFromConfig fills unset values with defaults.
func OptionsFromConfig(cfg config.SnippetConfig) Options {
	o := DefaultOptions()
	if cfg.MaxLength > 0 {
		o.MaxLength = cfg.MaxLength
	}
	if cfg.MinLength > 0 {
		o.MinLength = cfg.MinLength
	}
	if cfg.ContextWords > 0 {
		o.ContextWords = cfg.ContextWords
	}
	if cfg.MaxPerResult > 0 {
		o.MaxPerResult = cfg.MaxPerResult
	}
	o.Synthesis = !cfg.NoSynthesis
	if o.MinLength > o.MaxLength {
		o.MinLength = o.MaxLength
	}
	return o
}

// Chunks supplies the chunks of a case in index order.
type Chunks interface {
	Chunks(id store.CaseID) []store.Chunk
}

// Generator builds snippets. Its sources may be nil; a Generator with no
// sources still produces metadata snippets.
type Generator struct {
	opts   Options
	text   *TextIndex
	chunks Chunks
	terms  *facet.Index
}

// NewGenerator creates a generator over the given sources.
func NewGenerator(opts Options, text *TextIndex, chunks Chunks, terms *facet.Index) *Generator {
	return &Generator{opts: opts, text: text, chunks: chunks, terms: terms}
}

// Generate returns up to MaxPerResult snippets for rec, most relevant first.
// It never fails: a failing source is skipped and metadata is the last resort.
func (g *Generator) Generate(ctx context.Context, rec *store.CaseRecord, q *query.NormalizedQuery, highlight bool) []Snippet {
	terms := QueryTerms(q)
	var chunks []store.Chunk
	if g.chunks != nil {
		chunks = g.chunks.Chunks(rec.CaseID)
	}

	var out []Snippet
	if g.opts.Synthesis {
		if s, ok := g.synthesize(rec, chunks, terms); ok {
			out = append(out, s)
		}
	}
	out = append(out, g.lexical(ctx, rec.CaseID, terms)...)
	if len(out) < g.opts.MaxPerResult && q != nil {
		out = append(out, g.citations(chunks, q)...)
	}
	if len(out) < g.opts.MaxPerResult && len(chunks) > 0 {
		if s, ok := g.fromChunk(chunks[0], TypeSemantic, ""); ok {
			out = append(out, s)
		}
	}
	if len(out) < g.opts.MaxPerResult {
		out = append(out, metadata(rec, terms, false)...)
	}
	if len(out) == 0 {
		out = metadata(rec, terms, true)
	}

	out = dedupe(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	if len(out) > g.opts.MaxPerResult {
		out = out[:g.opts.MaxPerResult]
	}
	for i := range out {
		if len(out[i].Highlights) == 0 {
			out[i].Highlights = markTerms(out[i].Plain, terms)
		}
		out[i].Text = out[i].Plain
		if highlight {
			out[i].Text = applyHighlights(out[i].Plain, out[i].Highlights)
		}
	}
	return out
}

// lexical cuts a context window around each located match.
func (g *Generator) lexical(ctx context.Context, id store.CaseID, terms []string) []Snippet {
	if g.text == nil || len(terms) == 0 {
		return nil
	}
	spans, err := g.text.Find(ctx, id, strings.Join(terms, " "), g.opts.MaxPerResult*2)
	if err != nil {
		slog.Debug("snippet_lexical_failed", slog.Int64("case_id", int64(id)), slog.String("error", err.Error()))
		return nil
	}

	var out []Snippet
	covered := make(map[int][][2]int)
	for _, sp := range spans {
		if len(out) >= g.opts.MaxPerResult {
			break
		}
		if within(covered[sp.ChunkIndex], sp.Start, sp.End) {
			continue
		}
		c, ok := g.text.Chunk(id, sp.ChunkIndex)
		if !ok {
			continue
		}
		start, end := g.window(c.Text, sp.Start, sp.End)
		text := c.Text[start:end]
		if len(text) < min(g.opts.MinLength, len(strings.TrimSpace(c.Text))) {
			continue
		}
		covered[sp.ChunkIndex] = append(covered[sp.ChunkIndex], [2]int{start, end})

		var hl []Highlight
		for _, other := range spans {
			if other.ChunkIndex == sp.ChunkIndex && other.Start >= start && other.End <= end {
				hl = append(hl, Highlight{Start: other.Start - start, End: other.End - start})
			}
		}
		out = append(out, Snippet{
			Plain:       text,
			Type:        TypeLexical,
			MatchedTerm: sp.Term,
			Highlights:  mergeHighlights(hl),
			Relevance:   relevance(TypeLexical, sp.Term, len(text)),
			ChunkIndex:  sp.ChunkIndex,
		})
	}
	return out
}

// window returns the byte range of a context window around [start,end),
// trimmed to whole words and at most MaxLength bytes.
func (g *Generator) window(text string, start, end int) (int, int) {
	ctxBytes := g.opts.ContextWords * approxWordBytes
	if room := g.opts.MaxLength - (end - start); room < 2*ctxBytes {
		ctxBytes = max(0, room/2)
	}
	ws := max(0, start-ctxBytes)
	we := min(len(text), end+ctxBytes)

	// Start and end on word boundaries without cutting into the match.
	for ws > 0 && ws < start && !isBoundary(text, ws) {
		ws++
	}
	for we < len(text) && we > end && !isBoundary(text, we) {
		we--
	}
	for ws < start && unicode.IsSpace(rune(text[ws])) {
		ws++
	}
	for we > end && unicode.IsSpace(rune(text[we-1])) {
		we--
	}
	return ws, we
}

// isBoundary reports whether byte offset i starts or ends a word. Offsets
// inside a multi-byte rune are never boundaries.
func isBoundary(text string, i int) bool {
	if i == 0 || i == len(text) {
		return true
	}
	if !utf8.RuneStart(text[i]) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	p, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r) || !isWordRune(p)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func within(ranges [][2]int, start, end int) bool {
	for _, r := range ranges {
		if start >= r[0] && end <= r[1] {
			return true
		}
	}
	return false
}

// citations returns chunks that cite one of the queried citations.
func (g *Generator) citations(chunks []store.Chunk, q *query.NormalizedQuery) []Snippet {
	if len(q.Citations) == 0 {
		return nil
	}
	var out []Snippet
	for _, c := range chunks {
		if len(out) >= g.opts.MaxPerResult {
			break
		}
		found := query.CitationCounts(c.Text)
		for _, want := range q.Citations {
			if found[want.Canonical] == 0 {
				continue
			}
			if s, ok := g.fromChunk(c, TypeCitation, want.Canonical); ok {
				out = append(out, s)
			}
			break
		}
	}
	return out
}

// fromChunk turns a chunk into a snippet of its most meaningful sentence.
func (g *Generator) fromChunk(c store.Chunk, typ Type, term string) (Snippet, bool) {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		return Snippet{}, false
	}
	text = truncateAtSentence(meaningfulContent(text), g.opts.MaxLength, g.opts.MinLength)
	return Snippet{
		Plain:       text,
		Type:        typ,
		MatchedTerm: term,
		Relevance:   relevance(typ, term, len(text)),
		ChunkIndex:  c.Index,
	}, true
}

// synthesize summarizes the case from its metadata, tagged statute sections
// and the best sentence of the first chunk that mentions a query term.
func (g *Generator) synthesize(rec *store.CaseRecord, chunks []store.Chunk, terms []string) (Snippet, bool) {
	if strings.TrimSpace(rec.CaseTitle) == "" {
		return Snippet{}, false
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(rec.CaseTitle))
	if rec.CaseNumber != "" {
		fmt.Fprintf(&b, ", %s", strings.TrimSpace(rec.CaseNumber))
	}
	var meta []string
	if rec.Court != "" {
		meta = append(meta, strings.TrimSpace(rec.Court))
	}
	if rec.Status != "" {
		meta = append(meta, strings.TrimSpace(rec.Status))
	}
	if t, ok := rec.BestDate(); ok {
		meta = append(meta, t.Format("2 Jan 2006"))
	}
	if len(meta) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(meta, ", "))
	}
	b.WriteString(".")

	if g.terms != nil {
		var sections []string
		for _, key := range g.terms.CaseTerms(rec.CaseID, facet.TypeSection) {
			if c, ok := query.ParseCanonical(key); ok {
				sections = append(sections, facet.CitationDisplay(c))
			}
		}
		if len(sections) > 0 {
			fmt.Fprintf(&b, " Sections: %s.", strings.Join(sections, ", "))
		}
	}

	matched := ""
	for _, c := range chunks {
		cleaned := query.CleanText(c.Text)
		for _, term := range terms {
			if query.CountTerm(cleaned, term) > 0 {
				matched = term
				break
			}
		}
		if matched != "" {
			b.WriteString(" ")
			b.WriteString(meaningfulContent(strings.TrimSpace(c.Text)))
			break
		}
	}
	if matched == "" && len(terms) > 0 {
		return Snippet{}, false
	}

	text := truncateAtSentence(b.String(), g.opts.MaxLength, g.opts.MinLength)
	return Snippet{
		Plain:       text,
		Type:        TypeSynthesized,
		MatchedTerm: matched,
		Relevance:   relevance(TypeSynthesized, matched, len(text)),
	}, true
}

// metadata returns title, number and bench snippets that contain a query
// term. With force set, the title is returned even without a match.
func metadata(rec *store.CaseRecord, terms []string, force bool) []Snippet {
	fields := []struct {
		typ   Type
		name  string
		value string
	}{
		{TypeTitle, "case_title", rec.CaseTitle},
		{TypeNumber, "case_number", rec.CaseNumber},
		{TypeBench, "bench", strings.Join(rec.Bench, ", ")},
	}

	var out []Snippet
	for _, f := range fields {
		value := strings.TrimSpace(f.value)
		if value == "" {
			continue
		}
		cleaned := query.CleanText(value)
		best := ""
		for _, term := range terms {
			if query.CountTerm(cleaned, term) > 0 && len(term) > len(best) {
				best = term
			}
		}
		if best == "" {
			continue
		}
		out = append(out, Snippet{
			Plain:       value,
			Type:        f.typ,
			MatchedTerm: best,
			Relevance:   relevance(f.typ, best, len(value)),
			Field:       f.name,
		})
	}
	if len(out) == 0 && force {
		for _, f := range fields {
			if value := strings.TrimSpace(f.value); value != "" {
				return []Snippet{{
					Plain:     value,
					Type:      f.typ,
					Relevance: relevance(f.typ, "", len(value)),
					Field:     f.name,
				}}
			}
		}
	}
	return out
}

// relevance scales the type's base score by snippet length and by how
// specific the matched term is.
func relevance(typ Type, term string, length int) float64 {
	base, ok := typeRelevance[typ]
	if !ok {
		base = 0.5
	}

	lengthFactor := 0.9
	switch {
	case length < 150:
		lengthFactor = 0.8
	case length < 300:
		lengthFactor = 1.0
	}

	termFactor := 0.7
	switch {
	case typ == TypeSynthesized || len(term) > 5:
		termFactor = 1.0
	case len(term) > 3:
		termFactor = 0.9
	}
	return min(1, base*lengthFactor*termFactor)
}

// dedupe drops snippets whose words largely repeat a more relevant one.
func dedupe(in []Snippet) []Snippet {
	sorted := make([]Snippet, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Relevance > sorted[j].Relevance })

	var out []Snippet
	var seen []map[string]bool
	for _, s := range sorted {
		words := wordSet(s.Plain)
		dup := false
		for _, w := range seen {
			if overlap(words, w) >= dedupeSimilarity {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		out = append(out, s)
		seen = append(seen, words)
	}
	return out
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(query.CleanText(s)) {
		set[w] = true
	}
	return set
}

// overlap is the share of the smaller set found in the larger one.
func overlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return float64(n) / float64(len(a))
}
