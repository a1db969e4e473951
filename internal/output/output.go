// Package output writes CLI results and status lines for humans and scripts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Aman-CERP/casesearch/internal/facet"
	"github.com/Aman-CERP/casesearch/internal/search"
)

// maxFacetValues caps the values printed per facet.
const maxFacetValues = 5

// Writer formats CLI output. Write errors are ignored; the terminal is the
// only consumer.
type Writer struct {
	out io.Writer
}

// New creates a Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints msg behind icon, or indented when icon is empty.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
}

// Successf prints a success line.
func (w *Writer) Successf(format string, args ...any) {
	w.Status("✓", fmt.Sprintf(format, args...))
}

// Warningf prints a warning line.
func (w *Writer) Warningf(format string, args ...any) {
	w.Status("!", fmt.Sprintf(format, args...))
}

// Errorf prints an error line.
func (w *Writer) Errorf(format string, args ...any) {
	w.Status("✗", fmt.Sprintf(format, args...))
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SearchResults prints a result page, one block per case.
func (w *Writer) SearchResults(query string, resp *search.Response) {
	if resp == nil || len(resp.Results) == 0 {
		total := 0
		if resp != nil {
			total = resp.Pagination.Total
		}
		if total > 0 {
			_, _ = fmt.Fprintf(w.out, "No cases at offset %d for %q (%d total).\n", resp.Pagination.Offset, query, total)
		} else {
			_, _ = fmt.Fprintf(w.out, "No cases found for %q.\n", query)
		}
		if resp != nil {
			w.warnings(resp.QueryInfo.Warnings)
		}
		return
	}

	p := resp.Pagination
	_, _ = fmt.Fprintf(w.out, "%d-%d of %d cases for %q (%s, %dms)\n",
		p.Offset+1, p.Offset+len(resp.Results), p.Total, query, resp.Metadata.Mode, resp.Metadata.LatencyMS)
	if qi := resp.QueryInfo; len(qi.Citations) > 0 {
		_, _ = fmt.Fprintf(w.out, "Citations: %s\n", strings.Join(qi.Citations, ", "))
	}
	w.warnings(resp.QueryInfo.Warnings)

	for _, r := range resp.Results {
		title := r.CaseTitle
		if title == "" {
			title = "Case " + r.CaseID.String()
		}
		_, _ = fmt.Fprintf(w.out, "\n%3d. %s  [%.3f]\n", r.Rank, title, r.FinalScore)

		var meta []string
		for _, v := range []string{r.CaseNumber, r.Court, r.Status, r.InstitutionDate} {
			if v != "" {
				meta = append(meta, v)
			}
		}
		meta = append(meta, "id "+r.CaseID.String())
		_, _ = fmt.Fprintf(w.out, "     %s\n", strings.Join(meta, " · "))

		for _, s := range r.Snippets {
			_, _ = fmt.Fprintf(w.out, "     %q\n", s.Text)
		}
		if r.Scores != nil {
			_, _ = fmt.Fprintf(w.out, "     keyword %.3f · vector %.3f · base %.3f · boost %.3f · recency %.3f\n",
				r.Scores.KeywordScore, r.Scores.VectorScore, r.Scores.BaseScore, r.Scores.TotalBoost, r.Scores.RecencyScore)
		}
	}

	w.facets(resp.Facets)
	if d := resp.Metadata.Debug; d != nil && len(d.Fallbacks) > 0 {
		_, _ = fmt.Fprintf(w.out, "\nFallbacks: %s\n", strings.Join(d.Fallbacks, ", "))
	}
	if p.HasNext {
		_, _ = fmt.Fprintf(w.out, "\nMore results: --offset %d\n", p.Offset+p.Limit)
	}
}

func (w *Writer) warnings(ws []string) {
	for _, msg := range ws {
		_, _ = fmt.Fprintf(w.out, "Note: %s\n", msg)
	}
}

func (w *Writer) facets(facets map[string][]facet.Value) {
	names := make([]string, 0, len(facets))
	for name, values := range facets {
		if len(values) > 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return
	}
	sort.Strings(names)

	_, _ = fmt.Fprintln(w.out, "\nFacets:")
	for _, name := range names {
		values := facets[name]
		parts := make([]string, 0, maxFacetValues)
		for i, v := range values {
			if i == maxFacetValues {
				parts = append(parts, fmt.Sprintf("+%d more", len(values)-maxFacetValues))
				break
			}
			parts = append(parts, fmt.Sprintf("%s (%d)", v.Value, v.Count))
		}
		_, _ = fmt.Fprintf(w.out, "  %-9s %s\n", name+":", strings.Join(parts, ", "))
	}
}

// Suggestions prints typeahead suggestions, one per line.
func (w *Writer) Suggestions(prefix string, suggestions []facet.Suggestion) {
	if len(suggestions) == 0 {
		_, _ = fmt.Fprintf(w.out, "No suggestions for %q.\n", prefix)
		return
	}
	for _, s := range suggestions {
		line := fmt.Sprintf("%-10s %s", string(s.Type), s.Value)
		if s.AdditionalInfo != "" {
			line += "  " + s.AdditionalInfo
		}
		_, _ = fmt.Fprintln(w.out, line)
	}
}
