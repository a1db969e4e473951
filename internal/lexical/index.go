// Package lexical implements the per-field BM25 index over case metadata.
//
// Each field in the registry (case number, title, parties, court, status,
// derived keywords) is tokenized with the query tokenizer, so index-time
// and query-time tokens align. A query is scored per field, weighted and
// summed per case, and the leading candidates get exact-match multipliers
// against the raw case number and title.
package lexical

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/Aman-CERP/casesearch/internal/config"
	"github.com/Aman-CERP/casesearch/internal/query"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// Case number and title match multipliers.
const (
	MultExactNumber      = 10.0
	MultPartialNumber    = 5.0
	MultNormalizedNumber = 4.0
	MultNumberOverlap    = 2.0

	MultExactTitle      = 8.0
	MultPartialTitle    = 3.0
	MultNormalizedTitle = 2.5
)

// Params are the scoring parameters persisted with a snapshot.
type Params struct {
	K1           float64
	B            float64
	RerankFactor int
	FieldWeights map[string]float64
}

// DefaultParams returns k1=1.5, b=0.75 and the default field weights.
func DefaultParams() Params {
	return ParamsFromConfig(config.NewConfig().Lexical)
}

// ParamsFromConfig copies the lexical section of the config.
func ParamsFromConfig(cfg config.LexicalConfig) Params {
	weights := config.DefaultFieldWeights()
	for k, v := range cfg.FieldWeights {
		weights[k] = v
	}
	p := Params{K1: cfg.K1, B: cfg.B, RerankFactor: cfg.RerankFactor, FieldWeights: weights}
	if p.K1 <= 0 {
		p.K1 = 1.5
	}
	if p.B < 0 || p.B > 1 {
		p.B = 0.75
	}
	if p.RerankFactor <= 0 {
		p.RerankFactor = 3
	}
	return p
}

// Result is one scored case.
type Result struct {
	CaseID      store.CaseID       `json:"case_id"`
	Score       float64            `json:"score"`
	FieldScores map[string]float64 `json:"field_scores"`
	// Multiplier is the exact-match multiplier applied, 1 when none.
	Multiplier float64 `json:"multiplier"`
}

// SearchOptions bound and narrow a lexical search.
type SearchOptions struct {
	// Limit is k; zero or negative returns every match.
	Limit   int
	Filters store.Filters
	// Allowed, when non-nil, restricts results to these cases.
	Allowed map[store.CaseID]bool
}

// BuildStats reports what a build did.
type BuildStats struct {
	Cases     int
	Tokenized int
	Reused    int
}

// Index is an immutable lexical index. It is safe for concurrent searches.
type Index struct {
	params       Params
	builtAt      time.Time
	rows         []store.CaseID
	rowOf        map[store.CaseID]int
	fingerprints []uint64
	meta         []store.CaseRecord
	docs         map[string][][]string
	scorers      map[string]*fieldScorer
}

// Build tokenizes records into a new index. Cases whose fingerprint is
// unchanged since prev reuse prev's tokens. Records are indexed in case id
// order, so an unchanged corpus always produces the same index.
func Build(ctx context.Context, records []store.CaseRecord, prev *Index, params Params) (*Index, BuildStats, error) {
	sorted := make([]store.CaseRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CaseID < sorted[j].CaseID })

	fields := DefaultFields()
	idx := &Index{
		params:       params,
		builtAt:      time.Now().UTC(),
		rows:         make([]store.CaseID, 0, len(sorted)),
		rowOf:        make(map[store.CaseID]int, len(sorted)),
		fingerprints: make([]uint64, 0, len(sorted)),
		meta:         make([]store.CaseRecord, 0, len(sorted)),
		docs:         make(map[string][][]string, len(fields)),
	}
	stats := BuildStats{}

	for i := range sorted {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}
		rec := &sorted[i]
		if _, dup := idx.rowOf[rec.CaseID]; dup {
			continue
		}
		fp := rec.Fingerprint()
		row := len(idx.rows)
		idx.rows = append(idx.rows, rec.CaseID)
		idx.rowOf[rec.CaseID] = row
		idx.fingerprints = append(idx.fingerprints, fp)
		idx.meta = append(idx.meta, metadataOnly(rec))

		if prevRow, ok := prev.reusableRow(rec.CaseID, fp); ok {
			for _, f := range fields {
				idx.docs[f.Name] = append(idx.docs[f.Name], prev.docs[f.Name][prevRow])
			}
			stats.Reused++
			continue
		}
		for _, f := range fields {
			idx.docs[f.Name] = append(idx.docs[f.Name], query.Tokenize(f.Extract(rec)))
		}
		stats.Tokenized++
	}
	stats.Cases = len(idx.rows)

	idx.buildScorers()
	return idx, stats, nil
}

func (idx *Index) reusableRow(id store.CaseID, fp uint64) (int, bool) {
	if idx == nil {
		return 0, false
	}
	row, ok := idx.rowOf[id]
	if !ok || idx.fingerprints[row] != fp {
		return 0, false
	}
	return row, true
}

func (idx *Index) buildScorers() {
	idx.scorers = make(map[string]*fieldScorer, len(idx.docs))
	for _, name := range FieldNames() {
		docs := idx.docs[name]
		if len(docs) < len(idx.rows) {
			padded := make([][]string, len(idx.rows))
			copy(padded, docs)
			docs = padded
			idx.docs[name] = docs
		}
		idx.scorers[name] = newFieldScorer(docs, idx.params.K1, idx.params.B)
	}
}

// metadataOnly drops the full text, which the lexical index never scores.
func metadataOnly(r *store.CaseRecord) store.CaseRecord {
	m := *r
	m.FullText = ""
	return m
}

// Len returns the number of indexed cases.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.rows)
}

// Params returns the scoring parameters.
func (idx *Index) Params() Params { return idx.params }

// BuiltAt returns when the index was built.
func (idx *Index) BuiltAt() time.Time { return idx.builtAt }

// CaseIDs returns the indexed case ids in row order.
func (idx *Index) CaseIDs() []store.CaseID {
	out := make([]store.CaseID, len(idx.rows))
	copy(out, idx.rows)
	return out
}

// Record returns the indexed metadata of a case (without full text).
func (idx *Index) Record(id store.CaseID) (store.CaseRecord, bool) {
	if idx == nil {
		return store.CaseRecord{}, false
	}
	row, ok := idx.rowOf[id]
	if !ok {
		return store.CaseRecord{}, false
	}
	return idx.meta[row], true
}

// Fingerprint returns the fingerprint a case was indexed with.
func (idx *Index) Fingerprint(id store.CaseID) (uint64, bool) {
	if idx == nil {
		return 0, false
	}
	row, ok := idx.rowOf[id]
	if !ok {
		return 0, false
	}
	return idx.fingerprints[row], true
}

// Tokens returns the indexed tokens of one field for a case.
func (idx *Index) Tokens(id store.CaseID, field string) []string {
	row, ok := idx.rowOf[id]
	if !ok {
		return nil
	}
	docs := idx.docs[field]
	if row >= len(docs) {
		return nil
	}
	return docs[row]
}

// Search scores the query against every field and returns matches sorted by
// score descending, case id ascending. A query without tokens matches nothing.
func (idx *Index) Search(q *query.NormalizedQuery, opts SearchOptions) []Result {
	if idx == nil || q == nil || len(q.Tokens) == 0 || len(idx.rows) == 0 {
		return nil
	}

	allow := idx.allowFunc(opts)

	fieldAcc := make(map[string]map[int]float64, len(idx.scorers))
	total := make(map[int]float64)
	for _, name := range FieldNames() {
		weight := idx.params.FieldWeights[name]
		if weight == 0 {
			continue
		}
		acc := make(map[int]float64)
		idx.scorers[name].score(q.Tokens, weight, allow, acc)
		fieldAcc[name] = acc
		for row, s := range acc {
			total[row] += s
		}
	}

	results := make([]Result, 0, len(total))
	for row, score := range total {
		if score <= 0 {
			continue
		}
		fs := make(map[string]float64)
		for name, acc := range fieldAcc {
			if s, ok := acc[row]; ok && s != 0 {
				fs[name] = s
			}
		}
		results = append(results, Result{CaseID: idx.rows[row], Score: score, FieldScores: fs, Multiplier: 1})
	}
	sortResults(results)

	rerank := len(results)
	if opts.Limit > 0 {
		rerank = min(rerank, idx.params.RerankFactor*opts.Limit)
	}
	for i := 0; i < rerank; i++ {
		meta := &idx.meta[idx.rowOf[results[i].CaseID]]
		m := matchMultiplier(q, meta)
		results[i].Multiplier = m
		results[i].Score *= m
	}
	sortResults(results)

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results
}

func (idx *Index) allowFunc(opts SearchOptions) func(row int) bool {
	metaFilter := !opts.Filters.IsZero()
	if !metaFilter && opts.Allowed == nil {
		return nil
	}
	allowed := make([]bool, len(idx.rows))
	for row, id := range idx.rows {
		if opts.Allowed != nil && !opts.Allowed[id] {
			continue
		}
		if metaFilter && !opts.Filters.MatchesRecord(&idx.meta[row]) {
			continue
		}
		allowed[row] = true
	}
	return func(row int) bool { return allowed[row] }
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CaseID < results[j].CaseID
	})
}

// matchMultiplier is the larger of the case number and title multipliers.
func matchMultiplier(q *query.NormalizedQuery, r *store.CaseRecord) float64 {
	return max(caseNumberMultiplier(q, r.CaseNumber), titleMultiplier(q, r.CaseTitle))
}

func caseNumberMultiplier(q *query.NormalizedQuery, number string) float64 {
	num := strings.ToLower(strings.TrimSpace(number))
	if num == "" {
		return 1
	}
	normNum := query.NormalizeCaseNumber(number)

	candidates := []string{q.Original}
	for _, id := range q.ExactIdentifiers {
		candidates = append(candidates, id.Value)
	}

	best := 1.0
	for _, c := range candidates {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		m := 1.0
		switch {
		case c == num:
			m = MultExactNumber
		case len(c) >= 3 && (containsPhrase(num, c) || containsPhrase(c, num)):
			m = MultPartialNumber
		case normNum != "" && query.NormalizeCaseNumber(c) == normNum:
			m = MultNormalizedNumber
		}
		best = max(best, m)
	}
	if best == 1 && numberTokenOverlap(q, number) {
		best = MultNumberOverlap
	}
	return best
}

// numberTokenOverlap reports a shared token containing a digit.
func numberTokenOverlap(q *query.NormalizedQuery, number string) bool {
	have := make(map[string]bool)
	for _, tok := range query.Tokenize(number) {
		if strings.IndexFunc(tok, unicode.IsDigit) >= 0 {
			have[tok] = true
		}
	}
	for _, tok := range q.Tokens {
		if have[tok] {
			return true
		}
	}
	return false
}

func titleMultiplier(q *query.NormalizedQuery, title string) float64 {
	raw := strings.ToLower(strings.TrimSpace(q.Original))
	t := strings.ToLower(strings.TrimSpace(title))
	if raw == "" || t == "" {
		return 1
	}
	if raw == t {
		return MultExactTitle
	}
	if len(raw) >= 3 && containsPhrase(t, raw) {
		return MultPartialTitle
	}
	cq := q.Cleaned()
	if len(cq) >= 3 && containsPhrase(query.CleanText(title), cq) {
		return MultNormalizedTitle
	}
	return 1
}

// containsPhrase reports whether needle occurs in s on word boundaries, so
// "2/2025" does not match inside "12/2025".
func containsPhrase(s, needle string) bool {
	if needle == "" {
		return false
	}
	for start := 0; ; {
		i := strings.Index(s[start:], needle)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(needle)
		if (i == 0 || !isWordByte(s[i-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		start = i + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= 0x80
}
