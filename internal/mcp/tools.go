package mcp

import (
	"github.com/Aman-CERP/casesearch/internal/facet"
	"github.com/Aman-CERP/casesearch/internal/index"
	"github.com/Aman-CERP/casesearch/internal/search"
)

// Tool names.
const (
	ToolSearchCases  = "search_cases"
	ToolSuggestCases = "suggest_cases"
	ToolIndexStatus  = "index_status"
)

// SearchCasesInput defines the input schema for the search_cases tool.
type SearchCasesInput struct {
	Query     string `json:"query" jsonschema:"the search query: case number, citation such as PPC 302, party names or legal concepts"`
	Mode      string `json:"mode,omitempty" jsonschema:"retrieval mode: hybrid (default), lexical or semantic"`
	Court     string `json:"court,omitempty" jsonschema:"filter by court name (substring match)"`
	Status    string `json:"status,omitempty" jsonschema:"filter by case status, e.g. Pending or Decided"`
	Year      int    `json:"year,omitempty" jsonschema:"filter by institution year"`
	Judge     string `json:"judge,omitempty" jsonschema:"filter by judge name"`
	Section   string `json:"section,omitempty" jsonschema:"filter by statute section, e.g. ppc:302 or 302"`
	Citation  string `json:"citation,omitempty" jsonschema:"filter by cited law report"`
	Offset    int    `json:"offset,omitempty" jsonschema:"number of ranked results to skip"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results, default from config"`
	Facets    bool   `json:"return_facets,omitempty" jsonschema:"include facet counts over the ranked results"`
	Highlight bool   `json:"highlight,omitempty" jsonschema:"include highlighted snippets"`
	Debug     bool   `json:"debug,omitempty" jsonschema:"include score breakdowns and fallback details"`
}

// SuggestCasesInput defines the input schema for the suggest_cases tool.
type SuggestCasesInput struct {
	Prefix string `json:"prefix" jsonschema:"at least two characters of a case number, citation, section or judge"`
	Type   string `json:"type,omitempty" jsonschema:"auto (default), case, citation, section or judge"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of suggestions, at most 10"`
}

// SuggestCasesOutput defines the output schema for the suggest_cases tool.
type SuggestCasesOutput struct {
	Suggestions []facet.Suggestion `json:"suggestions"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Index      index.Status  `json:"index"`
	Embeddings EmbeddingInfo `json:"embeddings"`
}

// EmbeddingInfo reports the configured and the active embedder.
type EmbeddingInfo struct {
	// Config values
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// Runtime state; clients fall back to lexical mode when semantic is unavailable.
	ActualModel      string `json:"actual_model"`
	Dimensions       int    `json:"dimensions"`
	Status           string `json:"status"`
	SemanticQuality  string `json:"semantic_quality"`
	IsFallbackActive bool   `json:"is_fallback_active"`
}

// toRequest maps tool input onto a search request, keeping configured
// defaults for omitted fields.
func toRequest(base search.Request, in SearchCasesInput) search.Request {
	req := base
	req.Query = in.Query
	if in.Mode != "" {
		req.Mode = in.Mode
	}
	if in.Limit != 0 {
		req.Limit = in.Limit
	}
	req.Offset = in.Offset
	req.Filters.Court = in.Court
	req.Filters.Status = in.Status
	req.Filters.Year = in.Year
	req.Filters.Judge = in.Judge
	req.Filters.Section = in.Section
	req.Filters.Citation = in.Citation
	req.Facets = in.Facets
	req.Highlight = in.Highlight
	req.Debug = in.Debug
	return req
}
