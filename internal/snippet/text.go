package snippet

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/casesearch/internal/query"
)

// stopwords are dropped from query terms before matching.
var stopwords = map[string]bool{
	"the": true, "and": true, "or": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true, "as": true, "is": true,
	"are": true, "was": true, "were": true, "under": true, "vs": true,
}

// minTermLength is the shortest query term worth matching.
const minTermLength = 3

// QueryTerms returns the distinct query words used for matching, in query
// order. Citation section numbers are kept regardless of length.
func QueryTerms(q *query.NormalizedQuery) []string {
	if q == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, w := range q.WordTokens() {
		if len(w) >= minTermLength && !stopwords[w] {
			add(w)
		}
	}
	for _, c := range q.Citations {
		add(c.Section)
	}
	return out
}

// markTerms finds whole-word, case-insensitive occurrences of terms.
func markTerms(text string, terms []string) []Highlight {
	if len(terms) == 0 || text == "" {
		return nil
	}
	want := make(map[string]bool, len(terms))
	for _, t := range terms {
		want[strings.ToLower(t)] = true
	}
	var out []Highlight
	start := -1
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if want[strings.ToLower(text[start:i])] {
				out = append(out, Highlight{Start: start, End: i})
			}
			start = -1
		}
	}
	if start >= 0 && want[strings.ToLower(text[start:])] {
		out = append(out, Highlight{Start: start, End: len(text)})
	}
	return out
}

// mergeHighlights sorts spans and merges overlapping ones.
func mergeHighlights(in []Highlight) []Highlight {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Start < in[j].Start })
	out := []Highlight{in[0]}
	for _, h := range in[1:] {
		last := &out[len(out)-1]
		if h.Start <= last.End {
			last.End = max(last.End, h.End)
			continue
		}
		out = append(out, h)
	}
	return out
}

// applyHighlights wraps each span in ** markers.
func applyHighlights(text string, hl []Highlight) string {
	if len(hl) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 4*len(hl))
	prev := 0
	for _, h := range hl {
		if h.Start < prev || h.End > len(text) {
			continue
		}
		b.WriteString(text[prev:h.Start])
		b.WriteString("**")
		b.WriteString(text[h.Start:h.End])
		b.WriteString("**")
		prev = h.End
	}
	b.WriteString(text[prev:])
	return b.String()
}

var (
	metadataLine    = regexp.MustCompile(`(?i)^(document:|type:|order sheet|judgment sheet|date of hearing:|case number:|case title:|status:|bench:|=+)`)
	numberedPrefix  = regexp.MustCompile(`^\d+\.\s*`)
	fragmentPrefix  = regexp.MustCompile(`(?i)^(of|and|the|in|at|on|for|with|by)\s`)
	sentenceSplit   = regexp.MustCompile(`[.!?]\s+|\n+`)
	legalIndicators = []string{
		"court", "judge", "petitioner", "respondent", "order", "judgment", "law", "legal",
		"counsel", "application", "petition", "appeal", "proceedings", "hearing",
		"argument", "submits", "alleged", "accused", "bail",
	}
)

// meaningfulContent picks the most useful sentence of a chunk: the first
// substantial sentence with legal vocabulary, else the longest complete
// sentence, else the text itself. Header lines are skipped.
func meaningfulContent(text string) string {
	sentences := splitSentences(text)
	var longest string
	for _, s := range sentences {
		if metadataLine.MatchString(s) {
			continue
		}
		s = numberedPrefix.ReplaceAllString(s, "")
		if s == "" || fragmentPrefix.MatchString(s) || !startsUpper(s) {
			continue
		}
		if len(s) > 100 && hasLegalIndicator(s) {
			return terminate(s)
		}
		if len(s) > 50 && len(s) > len(longest) {
			longest = s
		}
	}
	if longest != "" {
		return terminate(longest)
	}
	return text
}

func splitSentences(text string) []string {
	var out []string
	prev := 0
	for _, loc := range sentenceSplit.FindAllStringIndex(text, -1) {
		end := loc[0]
		if text[loc[0]] != '\n' {
			end++
		}
		if s := strings.TrimSpace(text[prev:end]); s != "" {
			out = append(out, s)
		}
		prev = loc[1]
	}
	if s := strings.TrimSpace(text[prev:]); s != "" {
		out = append(out, s)
	}
	return out
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

func hasLegalIndicator(s string) bool {
	lower := strings.ToLower(s)
	for _, w := range legalIndicators {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func terminate(s string) string {
	if strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
		return s
	}
	return s + "."
}

// truncateAtSentence shortens text to maxLen bytes, preferring a sentence
// end past minLen, then a word boundary, and marks a cut with "...".
func truncateAtSentence(text string, maxLen, minLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	truncated := text[:cut]
	if end := strings.LastIndexAny(truncated, ".!?\n"); end > minLen {
		return truncated[:end+1]
	}
	if sp := strings.LastIndex(truncated, " "); sp > minLen {
		return truncated[:sp] + "..."
	}
	return truncated + "..."
}
