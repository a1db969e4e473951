package lexical

import (
	"regexp"
	"strings"

	"github.com/Aman-CERP/casesearch/internal/query"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// Field names. They are also the keys of the field weight table.
const (
	FieldCaseNumber = "case_number"
	FieldTitle      = "title"
	FieldParties    = "parties"
	FieldCourt      = "court"
	FieldStatus     = "status"
	FieldKeywords   = "keywords"
)

// Extractor reads one candidate value for a field. ok is false when the
// record has nothing for this extractor, and the next one is tried.
type Extractor func(r *store.CaseRecord) (value string, ok bool)

// Field is a lexical field with its ordered fallback extractors.
type Field struct {
	Name       string
	Extractors []Extractor
}

// Extract returns the first non-empty value produced by the extractors.
func (f Field) Extract(r *store.CaseRecord) string {
	for _, ex := range f.Extractors {
		if v, ok := ex(r); ok {
			return v
		}
	}
	return ""
}

// DefaultFields returns the field registry in index order.
func DefaultFields() []Field {
	return []Field{
		{Name: FieldCaseNumber, Extractors: []Extractor{caseNumber, identifierInTitle}},
		{Name: FieldTitle, Extractors: []Extractor{caseTitle, partiesAsTitle}},
		{Name: FieldParties, Extractors: []Extractor{parties, partiesFromTitle}},
		{Name: FieldCourt, Extractors: []Extractor{court}},
		{Name: FieldStatus, Extractors: []Extractor{status}},
		{Name: FieldKeywords, Extractors: []Extractor{keywordsFromText, keywordsFromTitle}},
	}
}

// FieldNames lists the registry's field names in index order.
func FieldNames() []string {
	fields := DefaultFields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func nonEmpty(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

func caseNumber(r *store.CaseRecord) (string, bool) { return nonEmpty(r.CaseNumber) }
func caseTitle(r *store.CaseRecord) (string, bool)  { return nonEmpty(r.CaseTitle) }
func court(r *store.CaseRecord) (string, bool)      { return nonEmpty(r.Court) }
func status(r *store.CaseRecord) (string, bool)     { return nonEmpty(r.Status) }

func parties(r *store.CaseRecord) (string, bool) {
	return nonEmpty(strings.Join(r.Parties, " "))
}

var numberYear = regexp.MustCompile(`\b\d{1,6}/\d{4}\b`)

func identifierInTitle(r *store.CaseRecord) (string, bool) {
	return nonEmpty(numberYear.FindString(r.CaseTitle))
}

func partiesAsTitle(r *store.CaseRecord) (string, bool) {
	return nonEmpty(strings.Join(r.Parties, " vs "))
}

func partiesFromTitle(r *store.CaseRecord) (string, bool) {
	left, right, ok := query.SplitParties(r.CaseTitle)
	if !ok {
		return "", false
	}
	return left + " " + right, true
}

// keywordsFromText derives keywords from subjects, key legal terms and
// statute or report citations found in the full text.
func keywordsFromText(r *store.CaseRecord) (string, bool) {
	var parts []string
	parts = append(parts, r.Subjects...)
	if r.FullText != "" {
		parts = append(parts, query.FindLegalTerms(query.CleanText(r.FullText))...)
		for _, c := range query.ExtractCitations(r.FullText) {
			parts = append(parts, c.Canonical)
		}
	}
	return nonEmpty(strings.Join(parts, " "))
}

func keywordsFromTitle(r *store.CaseRecord) (string, bool) {
	return nonEmpty(strings.Join(query.FindLegalTerms(query.CleanText(r.CaseTitle)), " "))
}
