// Package facet maps canonical terms (courts, judges, statute sections,
// report citations, subjects, parties) to the cases that mention them. It
// serves filter resolution, facet counts, typeahead suggestions and the
// per-case term occurrences the ranking engine boosts on.
package facet

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Aman-CERP/casesearch/internal/query"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// Type is a facet dimension.
type Type string

// Facet types.
const (
	TypeCourt    Type = "court"
	TypeStatus   Type = "status"
	TypeYear     Type = "year"
	TypeCaseType Type = "case_type"
	TypeJudge    Type = "judge"
	TypeSection  Type = "section"
	TypeCitation Type = "citation"
	TypeSubject  Type = "subject"
	TypeParty    Type = "party"
	TypeAdvocate Type = "advocate"

	// TypeLegalTerm counts key legal terms in the case text for ranking boosts.
	TypeLegalTerm Type = "legal_term"
)

// AllTypes lists every facet type in build order.
var AllTypes = []Type{
	TypeCourt, TypeStatus, TypeYear, TypeCaseType, TypeJudge,
	TypeSection, TypeCitation, TypeSubject, TypeParty, TypeAdvocate, TypeLegalTerm,
}

// Term is one canonical term and the cases it occurs in.
type Term struct {
	Type        Type
	Canonical   string
	Display     string
	Cases       []store.CaseID
	Occurrences map[store.CaseID]int
	Total       int
	BoostFactor float64
}

// CaseCount returns the number of cases carrying the term.
func (t *Term) CaseCount() int { return len(t.Cases) }

// boostFactor grows with case coverage and saturates at 2.
func boostFactor(caseCount int) float64 {
	return min(2.0, 1+float64(caseCount)/100)
}

// Match is a case found by a term lookup.
type Match struct {
	CaseID store.CaseID `json:"case_id"`
	Score  float64      `json:"score"`
}

type caseNumber struct {
	CaseID store.CaseID
	Number string
	Title  string
	Court  string
}

// BuildStats reports what a build did.
type BuildStats struct {
	Cases int
	Terms int
}

// Index is immutable after Build or Load and safe for concurrent use.
type Index struct {
	builtAt   time.Time
	terms     map[Type]map[string]*Term
	caseTerms map[store.CaseID]map[Type][]string
	numbers   []caseNumber
}

// Build aggregates facet terms from records.
func Build(ctx context.Context, records []store.CaseRecord) (*Index, BuildStats, error) {
	sorted := make([]store.CaseRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CaseID < sorted[j].CaseID })

	b := newBuilder()
	seen := make(map[store.CaseID]bool, len(sorted))
	for i := range sorted {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, BuildStats{}, err
			}
		}
		rec := &sorted[i]
		if seen[rec.CaseID] {
			continue
		}
		seen[rec.CaseID] = true
		b.addRecord(rec)
	}

	idx := b.finish()
	idx.builtAt = time.Now().UTC()
	return idx, BuildStats{Cases: len(idx.numbers), Terms: idx.TermCount()}, nil
}

type builder struct {
	terms   map[Type]map[string]*Term
	numbers []caseNumber
}

func newBuilder() *builder {
	b := &builder{terms: make(map[Type]map[string]*Term, len(AllTypes))}
	for _, t := range AllTypes {
		b.terms[t] = make(map[string]*Term)
	}
	return b
}

func (b *builder) add(t Type, canonical, display string, id store.CaseID, n int) {
	if canonical == "" || n <= 0 {
		return
	}
	term, ok := b.terms[t][canonical]
	if !ok {
		term = &Term{Type: t, Canonical: canonical, Display: display, Occurrences: make(map[store.CaseID]int)}
		b.terms[t][canonical] = term
	}
	if _, had := term.Occurrences[id]; !had {
		term.Cases = append(term.Cases, id)
	}
	term.Occurrences[id] += n
	term.Total += n
}

func (b *builder) addRecord(rec *store.CaseRecord) {
	id := rec.CaseID
	b.numbers = append(b.numbers, caseNumber{CaseID: id, Number: rec.CaseNumber, Title: rec.CaseTitle, Court: rec.Court})

	b.add(TypeCourt, CanonicalValue(rec.Court), strings.TrimSpace(rec.Court), id, 1)
	b.add(TypeStatus, CanonicalValue(rec.Status), strings.TrimSpace(rec.Status), id, 1)
	if y := rec.Year(); y > 0 {
		b.add(TypeYear, strconv.Itoa(y), strconv.Itoa(y), id, 1)
	}
	if ct := rec.CaseType(); ct != "" {
		b.add(TypeCaseType, ct, ct, id, 1)
	}
	for _, name := range rec.Bench {
		b.add(TypeJudge, CanonicalName(name), strings.TrimSpace(name), id, 1)
	}
	for _, name := range rec.Parties {
		b.add(TypeParty, CanonicalName(name), strings.TrimSpace(name), id, 1)
	}
	for _, name := range rec.Advocates {
		b.add(TypeAdvocate, CanonicalName(name), strings.TrimSpace(name), id, 1)
	}
	for _, s := range rec.Subjects {
		b.add(TypeSubject, CanonicalValue(s), strings.TrimSpace(s), id, 1)
	}

	text := strings.Join(append([]string{rec.CaseTitle, rec.FullText}, rec.Subjects...), "\n")
	counts := query.CitationCounts(text)
	for canonical, n := range counts {
		c, ok := query.ParseCanonical(canonical)
		if !ok {
			continue
		}
		t := TypeCitation
		if c.IsStatute() {
			t = TypeSection
		}
		b.add(t, c.Canonical, CitationDisplay(c), id, n)
	}

	cleaned := query.CleanText(rec.CaseTitle + " " + rec.FullText)
	for _, term := range query.FindLegalTerms(cleaned) {
		b.add(TypeLegalTerm, term, term, id, query.CountTerm(cleaned, term))
	}
}

func (b *builder) finish() *Index {
	idx := &Index{
		terms:     b.terms,
		caseTerms: make(map[store.CaseID]map[Type][]string),
		numbers:   b.numbers,
	}
	idx.index()
	return idx
}

// index derives boost factors and the per-case term lists.
func (idx *Index) index() {
	for t, terms := range idx.terms {
		for canonical, term := range terms {
			sort.Slice(term.Cases, func(i, j int) bool { return term.Cases[i] < term.Cases[j] })
			term.BoostFactor = boostFactor(len(term.Cases))
			for _, id := range term.Cases {
				ct, ok := idx.caseTerms[id]
				if !ok {
					ct = make(map[Type][]string)
					idx.caseTerms[id] = ct
				}
				ct[t] = append(ct[t], canonical)
			}
		}
	}
	for _, ct := range idx.caseTerms {
		for _, list := range ct {
			sort.Strings(list)
		}
	}
	sort.Slice(idx.numbers, func(i, j int) bool { return idx.numbers[i].CaseID < idx.numbers[j].CaseID })
}

// CanonicalValue lowercases and collapses whitespace.
func CanonicalValue(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

var honorifics = map[string]bool{
	"justice": true, "mr": true, "mrs": true, "ms": true, "miss": true, "hon": true,
	"honble": true, "ble": true, "honourable": true, "honorable": true, "dr": true,
	"sahib": true, "sb": true,
}

// CanonicalName lowercases a person's name and drops titles and punctuation,
// so "Mr. Justice A. Khan" and "a khan" compare equal.
func CanonicalName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "'", "")
	fields := strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	out := fields[:0]
	for _, f := range fields {
		if !honorifics[f] {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}

// CitationDisplay renders a citation as it is usually written, e.g. "PPC 302".
func CitationDisplay(c query.Citation) string {
	return strings.ToUpper(c.Type) + " " + strings.ToUpper(c.Section)
}

// Len returns the number of indexed cases.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.numbers)
}

// TermCount returns the number of distinct terms across all types.
func (idx *Index) TermCount() int {
	if idx == nil {
		return 0
	}
	n := 0
	for _, terms := range idx.terms {
		n += len(terms)
	}
	return n
}

// BuiltAt returns when the index was built.
func (idx *Index) BuiltAt() time.Time { return idx.builtAt }

// Term returns one term by canonical key.
func (idx *Index) Term(t Type, canonical string) (*Term, bool) {
	if idx == nil {
		return nil, false
	}
	term, ok := idx.terms[t][canonical]
	return term, ok
}

// Terms returns every term of a type sorted by canonical key.
func (idx *Index) Terms(t Type) []*Term {
	if idx == nil {
		return nil
	}
	out := make([]*Term, 0, len(idx.terms[t]))
	for _, term := range idx.terms[t] {
		out = append(out, term)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical < out[j].Canonical })
	return out
}

// CaseTerms returns the canonical terms of one type a case carries, sorted.
func (idx *Index) CaseTerms(id store.CaseID, t Type) []string {
	if idx == nil {
		return nil
	}
	return idx.caseTerms[id][t]
}

// Occurrences returns how often a case mentions a term.
func (idx *Index) Occurrences(id store.CaseID, t Type, canonical string) int {
	term, ok := idx.Term(t, canonical)
	if !ok {
		return 0
	}
	return term.Occurrences[id]
}

// Lookup finds cases for a term: an exact canonical match when one exists,
// otherwise every term whose canonical key contains it. Each case scores
// occurrences × boost factor, summed over matched terms.
func (idx *Index) Lookup(t Type, term string) []Match {
	if idx == nil {
		return nil
	}
	key := canonicalFor(t, term)
	if key == "" {
		return nil
	}

	var matched []*Term
	if exact, ok := idx.terms[t][key]; ok {
		matched = []*Term{exact}
	} else if len(key) >= 2 {
		for _, cand := range idx.Terms(t) {
			if strings.Contains(cand.Canonical, key) {
				matched = append(matched, cand)
			}
		}
	}

	scores := make(map[store.CaseID]float64)
	for _, m := range matched {
		for id, n := range m.Occurrences {
			scores[id] += float64(n) * m.BoostFactor
		}
	}
	out := make([]Match, 0, len(scores))
	for id, s := range scores {
		out = append(out, Match{CaseID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CaseID < out[j].CaseID
	})
	return out
}

// canonicalFor maps user input to the canonical form of a facet type.
func canonicalFor(t Type, s string) string {
	switch t {
	case TypeJudge, TypeParty, TypeAdvocate:
		return CanonicalName(s)
	case TypeSection, TypeCitation:
		if c, ok := query.ParseCanonical(s); ok {
			return c.Canonical
		}
		if cs := query.ExtractCitations(s); len(cs) > 0 {
			return cs[0].Canonical
		}
		return CanonicalValue(s)
	default:
		return CanonicalValue(s)
	}
}

// CasesFor resolves the judge, section and citation filters to a case set.
// It returns nil when none of them is set. Several filters intersect.
func (idx *Index) CasesFor(f store.Filters) map[store.CaseID]bool {
	var sets []map[store.CaseID]bool
	if f.Judge != "" {
		sets = append(sets, idx.matchSet(idx.Lookup(TypeJudge, f.Judge)))
	}
	if f.Section != "" {
		sets = append(sets, idx.sectionCases(f.Section))
	}
	if f.Citation != "" {
		sets = append(sets, idx.matchSet(idx.Lookup(TypeCitation, f.Citation)))
	}
	if len(sets) == 0 {
		return nil
	}
	out := sets[0]
	for _, s := range sets[1:] {
		for id := range out {
			if !s[id] {
				delete(out, id)
			}
		}
	}
	return out
}

// sectionCases accepts "ppc:302", "PPC 302" or a bare "302" (any statute).
func (idx *Index) sectionCases(v string) map[store.CaseID]bool {
	key := strings.ToLower(strings.TrimSpace(v))
	if key != "" && strings.IndexFunc(key, func(r rune) bool { return !unicode.IsDigit(r) && !unicode.IsLetter(r) }) < 0 &&
		unicode.IsDigit(rune(key[0])) {
		out := make(map[store.CaseID]bool)
		for _, term := range idx.Terms(TypeSection) {
			if c, ok := query.ParseCanonical(term.Canonical); ok && c.Section == key {
				for _, id := range term.Cases {
					out[id] = true
				}
			}
		}
		return out
	}
	return idx.matchSet(idx.Lookup(TypeSection, v))
}

func (idx *Index) matchSet(matches []Match) map[store.CaseID]bool {
	out := make(map[store.CaseID]bool, len(matches))
	for _, m := range matches {
		out[m.CaseID] = true
	}
	return out
}
