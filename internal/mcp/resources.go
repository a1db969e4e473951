package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/casesearch/internal/store"
)

// Resource URIs.
const (
	CaseURIPrefix     = "case://"
	caseURITemplate   = "case://{case_id}"
	QueryMetricsURI   = "casesearch://query_metrics"
	markdownMIMEType  = "text/markdown"
	jsonMIMEType      = "application/json"
	maxCaseTextLength = 1 << 20
)

// registerCaseResources registers the case://{case_id} template so clients
// can open any case returned by search_cases.
func (s *Server) registerCaseResources() {
	s.mcp.AddResourceTemplate(
		&mcp.ResourceTemplate{
			Name:        "case",
			URITemplate: caseURITemplate,
			Description: "A case record with its metadata and indexed text",
			MIMEType:    markdownMIMEType,
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.ReadResource(ctx, req.Params.URI)
		},
	)
}

// ReadResource reads a case:// or query metrics resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	if uri == QueryMetricsURI {
		return s.readQueryMetrics()
	}
	if !strings.HasPrefix(uri, CaseURIPrefix) {
		return nil, NewResourceNotFoundError(uri)
	}

	id, err := store.ParseCaseID(strings.TrimPrefix(uri, CaseURIPrefix))
	if err != nil {
		return nil, NewInvalidParamsError(err.Error())
	}
	snap := s.index.Current()
	if snap == nil {
		return nil, &MCPError{Code: ErrCodeIndexNotBuilt, Message: "Index not built. Run 'casesearch index' first."}
	}
	rec, ok := snap.Record(id)
	if !ok {
		return nil, NewResourceNotFoundError(uri)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: markdownMIMEType,
				Text:     formatCase(&rec, snap.Chunks(id)),
			},
		},
	}, nil
}

// formatCase renders a case record and its chunk text as markdown.
func formatCase(rec *store.CaseRecord, chunks []store.Chunk) string {
	var sb strings.Builder
	title := rec.CaseTitle
	if title == "" {
		title = "Case " + rec.CaseID.String()
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)

	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "- **%s:** %s\n", name, value)
		}
	}
	field("Case ID", rec.CaseID.String())
	field("Case No", rec.CaseNumber)
	field("Court", rec.Court)
	field("Status", rec.Status)
	field("Parties", strings.Join(rec.Parties, ", "))
	field("Bench", strings.Join(rec.Bench, ", "))
	field("Advocates", strings.Join(rec.Advocates, ", "))
	field("Subjects", strings.Join(rec.Subjects, ", "))
	field("Instituted", rec.InstitutionDate)
	field("Hearing", rec.HearingDate)
	field("Disposed", rec.DisposalDate)

	if len(chunks) > 0 {
		sb.WriteString("\n## Text\n\n")
		written := 0
		for _, c := range chunks {
			if written+len(c.Text) > maxCaseTextLength {
				sb.WriteString("\n_[truncated]_\n")
				break
			}
			sb.WriteString(c.Text)
			sb.WriteString("\n\n")
			written += len(c.Text)
		}
	}
	return sb.String()
}

// QueryMetricsOutput is the JSON structure for the query_metrics resource.
type QueryMetricsOutput struct {
	Summary             QueryMetricsSummary `json:"summary"`
	QueryTypeCounts     map[string]int64    `json:"query_type_counts"`
	ModeCounts          map[string]int64    `json:"mode_counts"`
	TopTerms            []QueryTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// QueryMetricsSummary provides overview statistics.
type QueryMetricsSummary struct {
	TotalQueries     int64   `json:"total_queries"`
	TimePeriod       string  `json:"time_period"`
	ZeroResultPct    float64 `json:"zero_result_pct"`
	FallbackCount    int64   `json:"fallback_count"`
	ExactRepeatCount int64   `json:"exact_repeat_count"`
}

// QueryTermCount represents a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// registerQueryMetricsResource registers the query_metrics resource.
func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsURI,
			Description: "Search telemetry: query types, modes, top terms, zero-result queries and latency",
			MIMEType:    jsonMIMEType,
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readQueryMetrics()
		},
	)
}

func (s *Server) readQueryMetrics() (*mcp.ReadResourceResult, error) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()

	if metrics == nil {
		return nil, NewInvalidParamsError("query metrics not available")
	}

	snapshot := metrics.Snapshot()
	output := QueryMetricsOutput{
		Summary: QueryMetricsSummary{
			TotalQueries:     snapshot.TotalQueries,
			TimePeriod:       "session",
			ZeroResultPct:    snapshot.ZeroResultPercentage(),
			FallbackCount:    snapshot.FallbackCount,
			ExactRepeatCount: snapshot.ExactRepeatCount,
		},
		QueryTypeCounts:     snapshot.QueryTypeCounts,
		ModeCounts:          snapshot.ModeCounts,
		TopTerms:            make([]QueryTermCount, 0, len(snapshot.TopTerms)),
		ZeroResultQueries:   snapshot.ZeroResultQueries,
		LatencyDistribution: make(map[string]int64, len(snapshot.LatencyDistribution)),
	}
	for _, tc := range snapshot.TopTerms {
		output.TopTerms = append(output.TopTerms, QueryTermCount{Term: tc.Term, Count: tc.Count})
	}
	for bucket, count := range snapshot.LatencyDistribution {
		output.LatencyDistribution[string(bucket)] = count
	}

	content, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      QueryMetricsURI,
				MIMEType: jsonMIMEType,
				Text:     string(content),
			},
		},
	}, nil
}
