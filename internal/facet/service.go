package facet

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Aman-CERP/casesearch/internal/config"
	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
	"github.com/Aman-CERP/casesearch/internal/query"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// Faceting limits.
const (
	DefaultMaxValues    = 50
	DefaultSuggestLimit = config.MaxSuggestLimit
	MinPrefixLength     = 2
)

// CountedTypes are the facets returned with search results.
var CountedTypes = []Type{TypeCourt, TypeStatus, TypeYear, TypeCaseType, TypeJudge, TypeSection}

// Value is one facet value and the number of results carrying it.
type Value struct {
	Value string `json:"value"`
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// CountOptions bound facet counting.
type CountOptions struct {
	MaxValues int
	MinCount  int
}

// CountOptionsFromConfig copies the facets config section.
func CountOptionsFromConfig(cfg config.FacetConfig) CountOptions {
	return CountOptions{MaxValues: cfg.MaxValues, MinCount: cfg.MinCount}
}

// Counts tallies facet values over the result set. Values already selected
// by a filter are left out, and each facet keeps its MaxValues most common
// values (count descending, value ascending).
func (idx *Index) Counts(results []store.CaseID, selected store.Filters, opts CountOptions) map[string][]Value {
	if opts.MaxValues <= 0 {
		opts.MaxValues = DefaultMaxValues
	}
	if opts.MinCount <= 0 {
		opts.MinCount = 1
	}

	out := make(map[string][]Value, len(CountedTypes))
	for _, t := range CountedTypes {
		counts := make(map[string]int)
		for _, id := range results {
			for _, canonical := range idx.CaseTerms(id, t) {
				counts[canonical]++
			}
		}

		values := make([]Value, 0, len(counts))
		for canonical, n := range counts {
			if n < opts.MinCount || isSelected(t, canonical, selected) {
				continue
			}
			display := canonical
			if term, ok := idx.Term(t, canonical); ok && term.Display != "" {
				display = term.Display
			}
			values = append(values, Value{Value: display, Key: canonical, Count: n})
		}
		sort.Slice(values, func(i, j int) bool {
			if values[i].Count != values[j].Count {
				return values[i].Count > values[j].Count
			}
			return values[i].Key < values[j].Key
		})
		if len(values) > opts.MaxValues {
			values = values[:opts.MaxValues]
		}
		out[string(t)] = values
	}
	return out
}

func isSelected(t Type, canonical string, f store.Filters) bool {
	switch t {
	case TypeCourt:
		return f.Court != "" && canonical == CanonicalValue(f.Court)
	case TypeStatus:
		return f.Status != "" && canonical == CanonicalValue(f.Status)
	case TypeYear:
		return f.Year != 0 && canonical == strconv.Itoa(f.Year)
	case TypeJudge:
		return f.Judge != "" && canonical == CanonicalName(f.Judge)
	case TypeSection:
		if f.Section == "" {
			return false
		}
		if canonical == canonicalFor(TypeSection, f.Section) {
			return true
		}
		c, ok := query.ParseCanonical(canonical)
		return ok && c.Section == strings.ToLower(strings.TrimSpace(f.Section))
	}
	return false
}

// SuggestType selects the sub-index a suggestion is drawn from.
type SuggestType string

// Suggestion types.
const (
	SuggestAuto     SuggestType = "auto"
	SuggestCase     SuggestType = "case"
	SuggestCitation SuggestType = "citation"
	SuggestSection  SuggestType = "section"
	SuggestJudge    SuggestType = "judge"
)

// ParseSuggestType validates a type hint; empty means auto.
func ParseSuggestType(s string) (SuggestType, error) {
	switch t := SuggestType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return SuggestAuto, nil
	case SuggestAuto, SuggestCase, SuggestCitation, SuggestSection, SuggestJudge:
		return t, nil
	default:
		return "", cserrors.New(cserrors.ErrCodeInvalidInput,
			fmt.Sprintf("invalid suggestion type %q (want auto, case, citation, section or judge)", s), nil)
	}
}

// Suggestion is one typeahead candidate.
type Suggestion struct {
	Value          string      `json:"value"`
	Type           SuggestType `json:"type"`
	CanonicalKey   string      `json:"canonical_key"`
	AdditionalInfo string      `json:"additional_info,omitempty"`

	relevance int
	cases     int
}

// Match strength.
const (
	relevanceSubstring = 1
	relevancePrefix    = 2
)

// Suggest returns up to limit suggestions for prefix, never more than
// DefaultSuggestLimit. Prefixes shorter than two characters return nothing.
// Prefix matches rank above substring matches, then more cases above fewer.
func (idx *Index) Suggest(prefix string, typ SuggestType, limit int) []Suggestion {
	p := strings.ToLower(strings.TrimSpace(prefix))
	if idx == nil || len([]rune(p)) < MinPrefixLength {
		return []Suggestion{}
	}
	if limit <= 0 || limit > DefaultSuggestLimit {
		limit = DefaultSuggestLimit
	}

	var out []Suggestion
	if typ == SuggestAuto || typ == SuggestCase {
		out = append(out, idx.suggestCases(p)...)
	}
	if typ == SuggestAuto || typ == SuggestCitation {
		out = append(out, idx.suggestTerms(p, TypeCitation, SuggestCitation)...)
	}
	if typ == SuggestAuto || typ == SuggestSection {
		out = append(out, idx.suggestTerms(p, TypeSection, SuggestSection)...)
	}
	if typ == SuggestAuto || typ == SuggestJudge {
		out = append(out, idx.suggestTerms(p, TypeJudge, SuggestJudge)...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].relevance != out[j].relevance {
			return out[i].relevance > out[j].relevance
		}
		if out[i].cases != out[j].cases {
			return out[i].cases > out[j].cases
		}
		return out[i].Value < out[j].Value
	})

	seen := make(map[string]bool, len(out))
	result := make([]Suggestion, 0, min(limit, len(out)))
	for _, s := range out {
		if seen[s.CanonicalKey] {
			continue
		}
		seen[s.CanonicalKey] = true
		result = append(result, s)
		if len(result) == limit {
			break
		}
	}
	return result
}

func matchStrength(p string, candidates ...string) int {
	best := 0
	for _, c := range candidates {
		switch {
		case c == "":
		case strings.HasPrefix(c, p):
			return relevancePrefix
		case strings.Contains(c, p):
			best = relevanceSubstring
		}
	}
	return best
}

func (idx *Index) suggestCases(p string) []Suggestion {
	normP := query.NormalizeCaseNumber(p)
	var out []Suggestion
	for _, n := range idx.numbers {
		num := strings.ToLower(n.Number)
		rel := matchStrength(p, num)
		if rel == 0 && normP != "" {
			rel = matchStrength(normP, query.NormalizeCaseNumber(n.Number))
		}
		if rel == 0 {
			continue
		}
		info := n.Title
		if n.Court != "" {
			info = strings.TrimSpace(info + " (" + n.Court + ")")
		}
		out = append(out, Suggestion{
			Value:          n.Number,
			Type:           SuggestCase,
			CanonicalKey:   "case:" + n.CaseID.String(),
			AdditionalInfo: info,
			relevance:      rel,
			cases:          1,
		})
	}
	return out
}

func (idx *Index) suggestTerms(p string, t Type, st SuggestType) []Suggestion {
	cleaned := query.CleanText(p)
	var out []Suggestion
	for _, term := range idx.Terms(t) {
		candidates := []string{term.Canonical, strings.ToLower(term.Display)}
		if c, ok := query.ParseCanonical(term.Canonical); ok && (t == TypeSection || t == TypeCitation) {
			candidates = append(candidates, c.Section)
		}
		rel := matchStrength(p, candidates...)
		if rel == 0 && cleaned != "" && cleaned != p {
			rel = matchStrength(cleaned, candidates...)
		}
		if rel == 0 {
			continue
		}
		out = append(out, Suggestion{
			Value:          term.Display,
			Type:           st,
			CanonicalKey:   string(t) + ":" + term.Canonical,
			AdditionalInfo: fmt.Sprintf("%d cases", term.CaseCount()),
			relevance:      rel,
			cases:          term.CaseCount(),
		})
	}
	return out
}
