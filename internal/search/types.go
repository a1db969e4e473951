package search

import (
	"github.com/Aman-CERP/casesearch/internal/facet"
	"github.com/Aman-CERP/casesearch/internal/precision"
	"github.com/Aman-CERP/casesearch/internal/ranking"
	"github.com/Aman-CERP/casesearch/internal/snippet"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// Request is one search call. Build it with Service.NewRequest to pick up
// the configured defaults.
type Request struct {
	Query   string        `json:"query"`
	Mode    string        `json:"mode,omitempty"`
	Filters store.Filters `json:"filters"`
	Offset  int           `json:"offset"`
	// Limit must be positive; values above the configured maximum are capped.
	Limit int `json:"limit"`

	Facets    bool `json:"return_facets,omitempty"`
	Highlight bool `json:"highlight,omitempty"`
	Debug     bool `json:"debug,omitempty"`
}

// Result is one ranked case.
type Result struct {
	CaseID          store.CaseID      `json:"case_id"`
	CaseNumber      string            `json:"case_number"`
	CaseTitle       string            `json:"case_title"`
	Court           string            `json:"court"`
	Status          string            `json:"status"`
	InstitutionDate string            `json:"institution_date,omitempty"`
	VectorScore     float64           `json:"vector_score"`
	KeywordScore    float64           `json:"keyword_score"`
	FinalScore      float64           `json:"final_score"`
	Rank            int               `json:"rank"`
	Snippets        []snippet.Snippet `json:"snippets,omitempty"`

	// Scores is the full score breakdown, set in debug mode.
	Scores *ranking.Candidate `json:"score_breakdown,omitempty"`
}

// Pagination describes the returned page of the ranked list.
type Pagination struct {
	Total       int  `json:"total"`
	Offset      int  `json:"offset"`
	Limit       int  `json:"limit"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// QueryInfo reports how the query was read.
type QueryInfo struct {
	OriginalQuery     string   `json:"original_query"`
	NormalizedQuery   string   `json:"normalized_query"`
	QueryType         string   `json:"query_type"`
	CitationsFound    int      `json:"citations_found"`
	ExactMatchesFound int      `json:"exact_matches_found"`
	Citations         []string `json:"citations,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Metadata summarizes the execution of a search.
type Metadata struct {
	Mode         string `json:"mode"`
	TotalResults int    `json:"total_results"`
	LatencyMS    int64  `json:"latency_ms"`
	Debug        *Debug `json:"debug,omitempty"`
}

// Debug exposes ranking signals and every fallback taken.
type Debug struct {
	RequestedMode   string           `json:"requested_mode"`
	EffectiveMode   string           `json:"effective_mode"`
	Fallbacks       []string         `json:"fallbacks,omitempty"`
	SnapshotID      string           `json:"snapshot_id"`
	LexicalHits     int              `json:"lexical_hits"`
	VectorHits      int              `json:"vector_hits"`
	RetrievalLimit  int              `json:"retrieval_limit"`
	Weights         ranking.Weights  `json:"weights"`
	Diversified     bool             `json:"diversified"`
	RankingFallback bool             `json:"ranking_fallback"`
	RankingError    string           `json:"ranking_error,omitempty"`
	Precision       precision.Result `json:"precision"`
}

// Response is the result of one search.
type Response struct {
	Results    []Result                 `json:"results"`
	Pagination Pagination               `json:"pagination"`
	Facets     map[string][]facet.Value `json:"facets,omitempty"`
	QueryInfo  QueryInfo                `json:"query_info"`
	Metadata   Metadata                 `json:"search_metadata"`
}

// SuggestResponse carries typeahead suggestions.
type SuggestResponse struct {
	Suggestions []facet.Suggestion `json:"suggestions"`
}

// Fallback reasons reported in Debug.Fallbacks.
const (
	FallbackNoVectorIndex  = "vector_index_unavailable"
	FallbackNoEmbedder     = "embedder_unavailable"
	FallbackVectorFailed   = "vector_search_failed"
	FallbackRanking        = "raw_score_ranking"
	FallbackSnippetsFailed = "snippets_unavailable"
)
