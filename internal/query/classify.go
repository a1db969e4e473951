package query

import "strings"

// Type classifies a query for dynamic fusion weighting.
type Type string

const (
	TypeCitation      Type = "citation"
	TypeCaseTitle     Type = "case_title"
	TypeLegalConcept  Type = "legal_concept"
	TypeCourtSpecific Type = "court_specific"
	TypeGeneral       Type = "general"
)

// classify checks, in order: citation shape or parsed citation/identifier,
// two-party title, legal concept, court name.
func classify(raw string, q *NormalizedQuery) Type {
	if q.HasExactSignals() {
		return TypeCitation
	}
	for _, re := range citationShape {
		if re.MatchString(raw) {
			return TypeCitation
		}
	}
	if partySeparator.MatchString(raw) {
		return TypeCaseTitle
	}

	cleaned := " " + CleanText(raw) + " "
	for _, c := range legalConcepts {
		if strings.Contains(cleaned, " "+c+" ") {
			return TypeLegalConcept
		}
	}
	for _, c := range courtNames {
		if strings.Contains(cleaned, " "+c+" ") {
			return TypeCourtSpecific
		}
	}
	return TypeGeneral
}

// SplitParties splits an "A vs B" query into its two party strings.
// ok is false unless exactly one separator splits two non-empty sides.
func SplitParties(raw string) (left, right string, ok bool) {
	parts := partySeparator.Split(strings.TrimSpace(raw), -1)
	if len(parts) != 2 {
		return "", "", false
	}
	left, right = CleanText(parts[0]), CleanText(parts[1])
	if left == "" || right == "" {
		return "", "", false
	}
	return left, right, true
}
