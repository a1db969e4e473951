package ranking

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/Aman-CERP/casesearch/internal/config"
	"github.com/Aman-CERP/casesearch/internal/facet"
	"github.com/Aman-CERP/casesearch/internal/query"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// Boost names, in the order they are computed.
const (
	BoostExactMatch      = "exact_match"
	BoostCitation        = "citation"
	BoostLegalTerm       = "legal_term"
	BoostTitle           = "title"
	BoostParty           = "party"
	BoostSubject         = "subject"
	BoostSection         = "section"
	BoostFilterAlignment = "filter_alignment"
	BoostCourtLevel      = "court_level"
)

// Per-occurrence and per-match boost units. Each boost is capped by its
// RankingConfig value.
const (
	citationUnit   = 0.5
	legalTermUnit  = 0.3
	titleTermUnit  = 0.5
	titlePhrase    = 1.5
	titlePrefix    = 1.0
	numberPrefix   = 1.0
	subjectUnit    = 0.5
	sectionUnit    = 0.5
	minTitleTermLn = 3
)

// courtLevels are hierarchy multipliers; the boost is multiplier-1.
var courtLevels = []struct {
	name       string
	multiplier float64
}{
	{"supreme court", 1.5},
	{"high court", 1.3},
	{"district court", 1.1},
	{"sessions court", 1.1},
}

// booster computes the boosts of one query against candidate cases.
type booster struct {
	cfg     *config.RankingConfig
	q       *query.NormalizedQuery
	filters store.Filters
	records Records
	terms   Terms

	cleanedQuery string
	titleTerms   []string
	partyLeft    string
	partyRight   string
	hasParties   bool
	queryNumbers []string
}

func newBooster(cfg *config.RankingConfig, q *query.NormalizedQuery, filters store.Filters, records Records, terms Terms) *booster {
	b := &booster{cfg: cfg, q: q, filters: filters, records: records, terms: terms}
	if q == nil {
		return b
	}
	b.cleanedQuery = q.Cleaned()
	for _, tok := range q.WordTokens() {
		if len(tok) >= minTitleTermLn && !query.IsGenericWord(tok) {
			b.titleTerms = append(b.titleTerms, tok)
		}
		if isNumber(tok) {
			b.queryNumbers = append(b.queryNumbers, tok)
		}
	}
	b.partyLeft, b.partyRight, b.hasParties = query.SplitParties(q.Original)
	return b
}

// boosts returns the non-zero boosts of a case and their capped total.
func (b *booster) boosts(id store.CaseID) ([]Boost, float64) {
	rec, ok := b.lookup(id)
	var out []Boost
	add := func(name string, v, limit float64) {
		v = min(v, limit)
		if v > 0 {
			out = append(out, Boost{Name: name, Value: v})
		}
	}

	if b.q != nil {
		if ok {
			add(BoostExactMatch, b.exactMatch(&rec), b.cfg.ExactMatchBoost)
		}
		add(BoostCitation, b.citation(id), b.cfg.CitationBoost)
		add(BoostLegalTerm, b.legalTerm(id), b.cfg.LegalTermBoost)
		if ok {
			add(BoostTitle, b.title(&rec), b.cfg.TitleBoost)
			add(BoostParty, b.party(&rec), b.cfg.PartyBoost)
			add(BoostSubject, b.subject(&rec), b.cfg.SubjectBoost)
		}
		add(BoostSection, b.section(id), b.cfg.SectionBoost)
	}
	if ok {
		alignments := b.filterAlignment(&rec)
		add(BoostFilterAlignment, float64(alignments)*b.cfg.FilterAlignmentBoost, 3*b.cfg.FilterAlignmentBoost)
		add(BoostCourtLevel, courtLevel(rec.Court), b.cfg.CourtLevelBoost)
	}

	total := 0.0
	for _, bf := range out {
		total += bf.Value
	}
	return out, min(total, b.cfg.MaxBoost)
}

func (b *booster) lookup(id store.CaseID) (store.CaseRecord, bool) {
	if b.records == nil {
		return store.CaseRecord{}, false
	}
	return b.records.Record(id)
}

func (b *booster) occurrences(id store.CaseID, t facet.Type, canonical string) int {
	if b.terms == nil {
		return 0
	}
	return b.terms.Occurrences(id, t, canonical)
}

// exactMatch rewards a case whose number contains a queried identifier.
func (b *booster) exactMatch(rec *store.CaseRecord) float64 {
	num := strings.ToLower(rec.CaseNumber)
	normNum := query.NormalizeCaseNumber(rec.CaseNumber)
	if num == "" {
		return 0
	}
	for _, id := range b.q.ExactIdentifiers {
		v := strings.ToLower(strings.TrimSpace(id.Value))
		p := query.NormalizeCaseNumber(id.Value)
		if (v != "" && containsBounded(num, v)) || (p != "" && containsBounded(normNum, p)) {
			return b.cfg.ExactMatchBoost
		}
	}
	return 0
}

// citation sums min(cap, occurrences×0.5) over the queried citations.
func (b *booster) citation(id store.CaseID) float64 {
	total := 0.0
	for _, c := range b.q.Citations {
		t := facet.TypeCitation
		if c.IsStatute() {
			t = facet.TypeSection
		}
		if n := b.occurrences(id, t, c.Canonical); n > 0 {
			total += min(b.cfg.CitationBoost, float64(n)*citationUnit)
		}
	}
	return total
}

// legalTerm sums min(cap, occurrences×0.3) over the query's legal terms.
func (b *booster) legalTerm(id store.CaseID) float64 {
	total := 0.0
	for _, term := range b.q.LegalTerms {
		if n := b.occurrences(id, facet.TypeLegalTerm, term); n > 0 {
			total += min(b.cfg.LegalTermBoost, float64(n)*legalTermUnit)
		}
	}
	return total
}

// title rewards matched query terms, the whole query as a phrase in the
// title, a title that starts with the query, and a case number that starts
// with a queried identifier.
func (b *booster) title(rec *store.CaseRecord) float64 {
	title := query.CleanText(rec.CaseTitle)
	v := 0.0
	if title != "" {
		for _, term := range b.titleTerms {
			if query.CountTerm(title, term) > 0 {
				v += titleTermUnit
			}
		}
		if len(strings.Fields(b.cleanedQuery)) >= 2 && query.CountTerm(title, b.cleanedQuery) > 0 {
			v += titlePhrase
		}
		if b.cleanedQuery != "" && strings.HasPrefix(title, b.cleanedQuery) {
			v += titlePrefix
		}
	}
	normNum := query.NormalizeCaseNumber(rec.CaseNumber)
	for _, id := range b.q.ExactIdentifiers {
		if p := query.NormalizeCaseNumber(id.Value); normNum != "" && p != "" && strings.HasPrefix(normNum, p) {
			v += numberPrefix
			break
		}
	}
	return v
}

// party rewards an "A vs B" query whose both parties appear in the title.
func (b *booster) party(rec *store.CaseRecord) float64 {
	if !b.hasParties {
		return 0
	}
	title := query.CleanText(rec.CaseTitle)
	if query.CountTerm(title, b.partyLeft) > 0 && query.CountTerm(title, b.partyRight) > 0 {
		return b.cfg.PartyBoost
	}
	return 0
}

// subject rewards query words found in the case's subject tags.
func (b *booster) subject(rec *store.CaseRecord) float64 {
	if len(rec.Subjects) == 0 {
		return 0
	}
	words := make(map[string]bool)
	for _, s := range rec.Subjects {
		for _, w := range strings.Fields(query.CleanText(s)) {
			words[w] = true
		}
	}
	v := 0.0
	for _, term := range b.titleTerms {
		if words[term] {
			v += subjectUnit
		}
	}
	return v
}

// section rewards statute sections the query names, either as citations or
// as bare section numbers, that are tagged on the case.
func (b *booster) section(id store.CaseID) float64 {
	if b.terms == nil {
		return 0
	}
	tags := b.terms.CaseTerms(id, facet.TypeSection)
	if len(tags) == 0 {
		return 0
	}
	wanted := make(map[string]bool)
	for _, c := range b.q.Citations {
		if c.IsStatute() {
			wanted[c.Canonical] = true
		}
	}
	numbers := make(map[string]bool, len(b.queryNumbers))
	for _, n := range b.queryNumbers {
		numbers[n] = true
	}

	v := 0.0
	for _, tag := range tags {
		c, ok := query.ParseCanonical(tag)
		if !ok {
			continue
		}
		if wanted[tag] || numbers[c.Section] {
			v += sectionUnit
		}
	}
	return v
}

// filterAlignment counts the court, status and year filters the case matches.
func (b *booster) filterAlignment(rec *store.CaseRecord) int {
	n := 0
	f := b.filters
	if f.Court != "" && rec.Court != "" && strings.Contains(strings.ToLower(rec.Court), strings.ToLower(strings.TrimSpace(f.Court))) {
		n++
	}
	if f.Status != "" && strings.EqualFold(strings.TrimSpace(rec.Status), strings.TrimSpace(f.Status)) {
		n++
	}
	if f.Year != 0 && rec.Year() == f.Year {
		n++
	}
	return n
}

// courtLevel is the hierarchy multiplier minus one, zero for unknown courts.
func courtLevel(court string) float64 {
	c := strings.ToLower(court)
	for _, l := range courtLevels {
		if strings.Contains(c, l.name) {
			return l.multiplier - 1
		}
	}
	return 0
}

// containsBounded reports whether sub occurs in s without being glued to a
// letter or digit on either side, so "2/2025" does not match "12/2025".
func containsBounded(s, sub string) bool {
	for i := 0; i <= len(s)-len(sub); {
		j := strings.Index(s[i:], sub)
		if j < 0 {
			return false
		}
		j += i
		end := j + len(sub)
		if (j == 0 || !isAlnum(s[j-1])) && (end == len(s) || !isAlnum(s[end])) {
			return true
		}
		i = j + 1
	}
	return false
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	if _, err := strconv.Atoi(s); err == nil {
		return true
	}
	// Section numbers may carry a letter suffix, e.g. "302b".
	last := len(s) - 1
	return unicode.IsLetter(rune(s[last])) && last > 0 && strings.IndexFunc(s[:last], func(r rune) bool { return !unicode.IsDigit(r) }) < 0
}
