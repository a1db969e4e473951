package query

import (
	"sort"
	"strings"
)

// FoldText lowercases text and folds statute names and abbreviations to
// canonical tokens, leaving punctuation in place.
func FoldText(text string) string {
	s := strings.ToLower(text)
	for _, f := range statuteFolds {
		s = f.re.ReplaceAllString(s, f.repl)
	}
	for _, a := range wordAbbreviations {
		s = a.re.ReplaceAllString(s, a.repl)
	}
	return s
}

// CleanText folds text, replaces punctuation with spaces and collapses whitespace.
func CleanText(text string) string {
	s := FoldText(text)
	s = nonWord.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokenize produces the tokens shared by index time and query time:
// word tokens of the cleaned text, each number/year identifier as a whole
// token, and canonical citation keys such as "ppc:302".
func Tokenize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	folded := FoldText(text)
	cleaned := whitespace.ReplaceAllString(nonWord.ReplaceAllString(folded, " "), " ")

	tokens := wordToken.FindAllString(cleaned, -1)
	for _, m := range caseNumberToken.FindAllStringSubmatch(folded, -1) {
		tokens = append(tokens, m[0])
	}
	for _, c := range extractCitations(folded) {
		tokens = append(tokens, c.Canonical)
	}
	return tokens
}

// NormalizeCaseNumber reduces a case number to lowercase alphanumerics and
// slashes, so "Crl. Misc. No. 2/2025" and "crl misc 2/2025" compare equal.
func NormalizeCaseNumber(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "no.", " ")
	var b strings.Builder
	space := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '/':
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
		default:
			space = true
		}
	}
	return b.String()
}

// extractCitations finds statute and report citations in folded text,
// ordered by position and deduplicated by canonical key.
func extractCitations(folded string) []Citation {
	hits := citationHits(folded)
	seen := make(map[string]bool, len(hits))
	out := make([]Citation, 0, len(hits))
	for _, c := range hits {
		if seen[c.Canonical] {
			continue
		}
		seen[c.Canonical] = true
		out = append(out, c)
	}
	return out
}

// citationHits returns every citation occurrence in folded text by position.
func citationHits(folded string) []Citation {
	type hit struct {
		pos int
		c   Citation
	}
	var hits []hit

	forward := statuteForward.FindAllStringSubmatchIndex(folded, -1)
	reverse := statuteReverse.FindAllStringSubmatchIndex(folded, -1)
	dropForward, dropReverse := resolveSharedSections(forward, reverse)
	for i, m := range forward {
		if dropForward[i] {
			continue
		}
		typ := folded[m[2]:m[3]]
		section := folded[m[4]:m[5]]
		hits = append(hits, hit{m[0], newCitation(typ, section)})
	}
	for i, m := range reverse {
		if dropReverse[i] {
			continue
		}
		section := folded[m[2]:m[3]]
		typ := folded[m[4]:m[5]]
		hits = append(hits, hit{m[0], newCitation(typ, section)})
	}
	forward = reportForward.FindAllStringSubmatchIndex(folded, -1)
	reverse = reportReverse.FindAllStringSubmatchIndex(folded, -1)
	dropForward, dropReverse = resolveSharedSections(forward, reverse)
	for i, m := range forward {
		if !dropForward[i] {
			hits = append(hits, hit{m[0], newCitation(folded[m[2]:m[3]], folded[m[4]:m[5]])})
		}
	}
	for i, m := range reverse {
		if !dropReverse[i] {
			hits = append(hits, hit{m[0], newCitation(folded[m[4]:m[5]], folded[m[2]:m[3]])})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]Citation, len(hits))
	for i, h := range hits {
		out[i] = h.c
	}
	return out
}

// resolveSharedSections settles numbers that sit between two statutes or
// report series, as 302 in "ppc 302 crpc 497", where both the forward and
// the reverse pattern claim the number. The number goes to the statute that has
// no other section: forward when the following statute carries its own
// number, reverse when the preceding statute does, forward otherwise.
func resolveSharedSections(forward, reverse [][]int) (dropForward, dropReverse map[int]bool) {
	dropForward = make(map[int]bool)
	dropReverse = make(map[int]bool)

	// Indexed by statute start: statutes followed by, or preceded by, a number.
	followed := make(map[int]bool, len(forward))
	preceded := make(map[int]bool, len(reverse))
	forwardBySection := make(map[int]int, len(forward))
	for i, m := range forward {
		followed[m[2]] = true
		forwardBySection[m[4]] = i
	}
	for _, m := range reverse {
		preceded[m[4]] = true
	}

	for ri, r := range reverse {
		fi, shared := forwardBySection[r[2]]
		if !shared {
			continue
		}
		f := forward[fi]
		switch {
		case followed[r[4]]:
			dropReverse[ri] = true
		case preceded[f[2]]:
			dropForward[fi] = true
		default:
			dropReverse[ri] = true
		}
	}
	return dropForward, dropReverse
}

func newCitation(typ, section string) Citation {
	section = strings.ReplaceAll(section, "-", "")
	return Citation{Type: typ, Section: section, Canonical: typ + ":" + section}
}

// ExtractCitations returns canonical citations found in arbitrary text.
// The facet index uses it to tag case bodies.
func ExtractCitations(text string) []Citation {
	return extractCitations(FoldText(text))
}

// CitationCounts counts every citation occurrence in text by canonical key.
func CitationCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, c := range citationHits(FoldText(text)) {
		counts[c.Canonical]++
	}
	return counts
}

// FindLegalTerms returns the key legal terms present in cleaned text, in list order.
func FindLegalTerms(cleaned string) []string {
	padded := " " + cleaned + " "
	var found []string
	for _, term := range LegalTerms {
		if strings.Contains(padded, " "+term+" ") {
			found = append(found, term)
		}
	}
	return found
}

// CountTerm counts whole-word occurrences of term in cleaned text.
func CountTerm(cleaned, term string) int {
	want := strings.Fields(term)
	if len(want) == 0 {
		return 0
	}
	words := strings.Fields(cleaned)
	count := 0
	for i := 0; i+len(want) <= len(words); i++ {
		match := true
		for j, w := range want {
			if words[i+j] != w {
				match = false
				break
			}
		}
		if match {
			count++
		}
	}
	return count
}
