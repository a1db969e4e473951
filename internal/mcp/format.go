package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Aman-CERP/casesearch/internal/facet"
	"github.com/Aman-CERP/casesearch/internal/search"
)

// maxFacetValuesShown caps each facet line in markdown output.
const maxFacetValuesShown = 5

// FormatSearchResults formats a search response as markdown.
func FormatSearchResults(query string, resp *search.Response) string {
	if resp == nil || len(resp.Results) == 0 {
		msg := fmt.Sprintf("No cases found for \"%s\"", query)
		if resp != nil && resp.Pagination.Total > 0 {
			msg += fmt.Sprintf(" at offset %d (%d total)", resp.Pagination.Offset, resp.Pagination.Total)
		}
		return msg
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Case Search Results for \"%s\"\n\n", query)
	p := resp.Pagination
	fmt.Fprintf(&sb, "Showing %d-%d of %d case", p.Offset+1, p.Offset+len(resp.Results), p.Total)
	if p.Total != 1 {
		sb.WriteString("s")
	}
	fmt.Fprintf(&sb, " (%s mode, %dms)\n\n", resp.Metadata.Mode, resp.Metadata.LatencyMS)

	if info := resp.QueryInfo; len(info.Citations) > 0 || info.ExactMatchesFound > 0 {
		fmt.Fprintf(&sb, "**Query:** %s", info.QueryType)
		if len(info.Citations) > 0 {
			fmt.Fprintf(&sb, "; citations: %s", strings.Join(info.Citations, ", "))
		}
		if info.ExactMatchesFound > 0 {
			fmt.Fprintf(&sb, "; %d case identifier", info.ExactMatchesFound)
			if info.ExactMatchesFound != 1 {
				sb.WriteString("s")
			}
		}
		sb.WriteString("\n\n")
	}

	for i := range resp.Results {
		formatResult(&sb, &resp.Results[i])
	}

	if len(resp.Facets) > 0 {
		formatFacets(&sb, resp.Facets)
	}
	if p.HasNext {
		fmt.Fprintf(&sb, "_More results available: use offset %d._\n", p.Offset+p.Limit)
	}
	return sb.String()
}

// formatResult formats a single ranked case.
func formatResult(sb *strings.Builder, r *search.Result) {
	title := r.CaseTitle
	if title == "" {
		title = "Case " + r.CaseID.String()
	}
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", r.Rank, title, r.FinalScore)

	var meta []string
	if r.CaseNumber != "" {
		meta = append(meta, "**Case No:** "+r.CaseNumber)
	}
	if r.Court != "" {
		meta = append(meta, "**Court:** "+r.Court)
	}
	if r.Status != "" {
		meta = append(meta, "**Status:** "+r.Status)
	}
	if r.InstitutionDate != "" {
		meta = append(meta, "**Instituted:** "+r.InstitutionDate)
	}
	if len(meta) > 0 {
		sb.WriteString(strings.Join(meta, " | "))
		sb.WriteString("\n")
	}
	fmt.Fprintf(sb, "Resource: `case://%s`\n\n", r.CaseID)

	for _, s := range r.Snippets {
		fmt.Fprintf(sb, "> %s\n\n", s.Text)
	}
}

func formatFacets(sb *strings.Builder, facets map[string][]facet.Value) {
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

	sb.WriteString("#### Facets\n\n")
	for _, name := range names {
		values := facets[name]
		if len(values) > maxFacetValuesShown {
			values = values[:maxFacetValuesShown]
		}
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = fmt.Sprintf("%s (%d)", v.Value, v.Count)
		}
		fmt.Fprintf(sb, "- **%s:** %s\n", name, strings.Join(parts, ", "))
	}
	sb.WriteString("\n")
}

// FormatSuggestions formats typeahead suggestions as markdown.
func FormatSuggestions(prefix string, suggestions []facet.Suggestion) string {
	if len(suggestions) == 0 {
		return fmt.Sprintf("No suggestions for \"%s\"", prefix)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Suggestions for \"%s\"\n\n", prefix)
	for _, s := range suggestions {
		fmt.Fprintf(&sb, "- `%s` (%s)", s.Value, s.Type)
		if s.AdditionalInfo != "" {
			fmt.Fprintf(&sb, ": %s", s.AdditionalInfo)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
