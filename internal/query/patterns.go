package query

import "regexp"

// Statute short forms. Applied in order to lowercased text, so "cr.p.c."
// is folded before "p.c." fragments can be misread.
var statuteFolds = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\bcode\s+of\s+criminal\s+procedure\b|\bcriminal\s+procedure\s+code\b|\bcr\.?\s*p\.?\s*c\b\.?`), "crpc"},
	{regexp.MustCompile(`\bcode\s+of\s+civil\s+procedure\b|\bcivil\s+procedure\s+code\b|\bc\.\s*p\.\s*c\b\.?|\bcpc\b`), "cpc"},
	{regexp.MustCompile(`\bpakistan\s+penal\s+code\b|\bp\.\s*p\.\s*c\b\.?|\bppc\b`), "ppc"},
	{regexp.MustCompile(`\bpakistan\s+law\s+journal\b`), "plj"},
	{regexp.MustCompile(`\bpakistan\s+legal\s+decisions\b`), "pld"},
	{regexp.MustCompile(`\bmonthly\s+law\s+digest\b`), "mld"},
	{regexp.MustCompile(`\bcivil\s+law\s+cases\b`), "clc"},
	{regexp.MustCompile(`\bsupreme\s+court\s+monthly\s+review\b`), "scmr"},
	{regexp.MustCompile(`\byearly\s+law\s+reports?\b`), "ylr"},
}

// Word abbreviations expanded after statute folding.
var wordAbbreviations = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\bhabeas(?:\s+corpus)?\b`), "habeas corpus"},
	{regexp.MustCompile(`\bpet\b\.?`), "petition"},
	{regexp.MustCompile(`\bapp\b\.?`), "appeal"},
	{regexp.MustCompile(`\brev\b\.?`), "revision"},
	{regexp.MustCompile(`\bmisc\b\.?`), "miscellaneous"},
	{regexp.MustCompile(`\bconst\b\.?`), "constitutional"},
	{regexp.MustCompile(`\badmin\b\.?`), "administrative"},
	{regexp.MustCompile(`\bcrl\b\.?`), "criminal"},
}

// Citation patterns run over statute-folded text.
var (
	// "ppc 302", "crpc:497", "ppc section 302-b"
	statuteForward = regexp.MustCompile(`\b(ppc|crpc|cpc)\s*[:\-]?\s*(?:section\s+|sec\.?\s*|s\.\s*)?(\d+(?:-?[a-z])?)\b`)
	// "section 302 ppc", "u/s 497 crpc", "302 of ppc"
	statuteReverse = regexp.MustCompile(`\b(?:section|sec\.?|s\.|u/s)?\s*(\d+(?:-?[a-z])?)\s+(?:of\s+(?:the\s+)?)?(ppc|crpc|cpc)\b`)
	// "pld 2019 sc 1", "scmr:2020"
	reportForward = regexp.MustCompile(`\b(plj|pld|mld|clc|scmr|ylr)\s*[:\-]?\s*((?:19|20)\d{2})\b`)
	// "2020 scmr 45"
	reportReverse = regexp.MustCompile(`\b((?:19|20)\d{2})\s+(plj|pld|mld|clc|scmr|ylr)\b`)
)

// Case identifier patterns run over the raw query.
var identifierPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:application|petition|appeal|revision|misc|const)\.?\s+(?:no\.?\s*)?(\d+/\d{4})\b`),
	regexp.MustCompile(`\b(\d+/\d{4})\b`),
	// Upper-case court codes only, e.g. "WP 12/2020".
	regexp.MustCompile(`\b([A-Z]{2,}\s+\d+/\d{4})\b`),
}

// caseNumberToken finds number/year identifiers inside text for tokenization.
var caseNumberToken = regexp.MustCompile(`\b(\d{1,6})/(\d{4})\b`)

var (
	nonWord    = regexp.MustCompile(`[^\w\s]+`)
	whitespace = regexp.MustCompile(`\s+`)
	wordToken  = regexp.MustCompile(`\w+`)
)

// Query type signals.
var (
	citationShape = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b\d{4}\s*[a-z]+\s*\d+\b`),
		regexp.MustCompile(`(?i)\b[a-z]+\s*\d{4}\s*\d+\b`),
		regexp.MustCompile(`(?i)\b\d+\s+of\s+\d{4}\b`),
	}
	partySeparator = regexp.MustCompile(`(?i)\s+(?:v|vs|versus)\.?\s+`)
	danglingStatute = regexp.MustCompile(`\b(?:ppc|crpc|cpc)\s*$`)
)

// legalConcepts mark a query as a legal_concept query.
var legalConcepts = []string{
	"appeal", "petition", "bail", "habeas corpus", "constitutional", "civil suit",
	"criminal case", "writ", "injunction", "damages",
}

// courtNames mark a query as court_specific.
var courtNames = []string{"supreme court", "high court", "district court", "sessions court"}

// LegalTerms are the key legal terms counted for legal-term density and boosts.
var LegalTerms = []string{
	"appeal", "petition", "bail", "habeas corpus", "constitutional", "civil", "criminal",
	"writ", "injunction", "damages", "compensation", "contempt", "review", "revision",
	"acquittal", "conviction", "jurisdiction", "precedent", "judgment", "order", "decree",
}

// genericWords carry little discriminating power on their own.
var genericWords = map[string]bool{
	"case": true, "cases": true, "law": true, "laws": true, "legal": true, "court": true,
	"courts": true, "judgment": true, "judgments": true, "order": true, "orders": true,
	"matter": true, "matters": true, "decision": true, "decisions": true, "record": true,
	"records": true, "file": true, "all": true, "any": true, "the": true, "a": true,
	"an": true, "of": true, "in": true, "and": true, "or": true, "for": true, "to": true,
}

// IsGenericWord reports whether a token is a generic, low-information word.
func IsGenericWord(token string) bool {
	return genericWords[token]
}
