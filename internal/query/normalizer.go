// Package query turns raw legal query text into a NormalizedQuery: folded
// text, canonical citations, exact case identifiers, boost signals and a
// query type used for dynamic fusion weights.
package query

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
)

// Query length bounds in characters.
const (
	MinQueryLength = 1
	MaxQueryLength = 500
)

// Boost signal units and caps.
const (
	citationBoostUnit   = 0.5
	citationBoostCap    = 2.0
	exactMatchBoostUnit = 1.0
	exactMatchBoostCap  = 3.0
	legalTermBoostUnit  = 0.3
	legalTermBoostCap   = 1.5
)

// Citation is a canonicalized statute or law-report reference. Statutes
// key on the section ("ppc:302"). Law reports key on series and year
// whichever order they are written in, so "PLD 2019 SC 1" and
// "2019 PLD 1" both canonicalize as "pld:2019"; the court and page are not
// part of the key.
type Citation struct {
	Type      string `json:"type"`
	Section   string `json:"section"`
	Canonical string `json:"canonical"`
}

// IsStatute reports whether the citation names a statute section rather
// than a law report.
func (c Citation) IsStatute() bool {
	switch c.Type {
	case "ppc", "crpc", "cpc":
		return true
	}
	return false
}

// ParseCanonical splits a "type:section" key.
func ParseCanonical(key string) (Citation, bool) {
	typ, section, ok := strings.Cut(strings.ToLower(strings.TrimSpace(key)), ":")
	if !ok || typ == "" || section == "" {
		return Citation{}, false
	}
	return Citation{Type: typ, Section: section, Canonical: typ + ":" + section}, true
}

// Identifier is an exact case identifier found in the query.
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// BoostSignals are query-level boost hints derived from parsing.
type BoostSignals struct {
	CitationBoost   float64 `json:"citation_boost"`
	ExactMatchBoost float64 `json:"exact_match_boost"`
	LegalTermBoost  float64 `json:"legal_term_boost"`
}

// NormalizedQuery is built once per request and treated as read-only.
type NormalizedQuery struct {
	Original         string       `json:"original"`
	Normalized       string       `json:"normalized"`
	Citations        []Citation   `json:"citations"`
	ExactIdentifiers []Identifier `json:"exact_identifiers"`
	Boosts           BoostSignals `json:"boost_signals"`
	Type             Type         `json:"query_type"`
	Tokens           []string     `json:"tokens"`
	LegalTerms       []string     `json:"legal_terms,omitempty"`
	Warnings         []string     `json:"warnings,omitempty"`
}

// HasExactSignals reports whether the query names a citation or case identifier.
func (q *NormalizedQuery) HasExactSignals() bool {
	return len(q.Citations) > 0 || len(q.ExactIdentifiers) > 0
}

// Cleaned returns the normalized text without the appended citation keys.
func (q *NormalizedQuery) Cleaned() string {
	return CleanText(q.Original)
}

// WordTokens returns the plain word tokens, without identifiers or citation keys.
func (q *NormalizedQuery) WordTokens() []string {
	return strings.Fields(q.Cleaned())
}

// Validate checks the raw query length and returns advisory warnings.
func Validate(raw string) ([]string, error) {
	n := utf8.RuneCountInString(strings.TrimSpace(raw))
	if n < MinQueryLength {
		return nil, cserrors.New(cserrors.ErrCodeInvalidQuery, "query is required", nil)
	}
	if n > MaxQueryLength {
		return nil, cserrors.New(cserrors.ErrCodeInvalidQuery,
			fmt.Sprintf("query must be at most %d characters, got %d", MaxQueryLength, n), nil)
	}
	return warnings(CleanText(raw)), nil
}

// Normalize parses raw query text. It never fails: text that yields no
// tokens, citations or identifiers degrades to an empty generic query.
func Normalize(raw string) *NormalizedQuery {
	folded := FoldText(raw)
	cleaned := CleanText(raw)

	citations := extractCitations(folded)
	identifiers := extractIdentifiers(raw)
	legalTerms := FindLegalTerms(cleaned)

	normalized := cleaned
	for _, c := range citations {
		normalized += " " + c.Canonical
	}
	normalized = strings.TrimSpace(normalized)

	q := &NormalizedQuery{
		Original:         raw,
		Normalized:       normalized,
		Citations:        citations,
		ExactIdentifiers: identifiers,
		Boosts: BoostSignals{
			CitationBoost:   math.Min(citationBoostCap, citationBoostUnit*float64(len(citations))),
			ExactMatchBoost: math.Min(exactMatchBoostCap, exactMatchBoostUnit*float64(len(identifiers))),
			LegalTermBoost:  math.Min(legalTermBoostCap, legalTermBoostUnit*float64(len(legalTerms))),
		},
		Tokens:     Tokenize(raw),
		LegalTerms: legalTerms,
	}
	q.Type = classify(raw, q)
	q.Warnings = warnings(cleaned)

	if q.Citations == nil {
		q.Citations = []Citation{}
	}
	if q.ExactIdentifiers == nil {
		q.ExactIdentifiers = []Identifier{}
	}
	return q
}

// extractIdentifiers runs the identifier patterns over raw text, deduplicating by value.
func extractIdentifiers(raw string) []Identifier {
	seen := make(map[string]bool)
	var out []Identifier
	for _, re := range identifierPatterns {
		for _, m := range re.FindAllStringSubmatch(raw, -1) {
			value := strings.TrimSpace(m[1])
			if value == "" || seen[value] {
				continue
			}
			seen[value] = true
			out = append(out, Identifier{Type: "case_number", Value: value})
		}
	}
	return out
}

func warnings(cleaned string) []string {
	var out []string
	words := strings.Fields(cleaned)
	if len(words) == 1 && IsGenericWord(words[0]) {
		out = append(out, fmt.Sprintf("query %q is very generic; results may be broad", words[0]))
	}
	if danglingStatute.MatchString(cleaned) {
		out = append(out, "statute named without a section number")
	}
	return out
}
