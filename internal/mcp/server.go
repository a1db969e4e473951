package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/casesearch/internal/config"
	"github.com/Aman-CERP/casesearch/internal/embed"
	"github.com/Aman-CERP/casesearch/internal/index"
	"github.com/Aman-CERP/casesearch/internal/search"
	"github.com/Aman-CERP/casesearch/internal/telemetry"
	"github.com/Aman-CERP/casesearch/pkg/version"
)

// ServerName is the implementation name reported to MCP clients.
const ServerName = "casesearch"

// Searcher answers search and suggest requests. *search.Service implements it.
type Searcher interface {
	NewRequest(q string) search.Request
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	Suggest(ctx context.Context, prefix, typ string, limit int) (*search.SuggestResponse, error)
}

// Index reports the served snapshot. *index.Manager implements it.
type Index interface {
	Status() index.Status
	Current() *index.Snapshot
	Embedder() embed.Embedder
}

// Server is the MCP server for casesearch.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	index    Index
	config   *config.Config
	logger   *slog.Logger

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.Metrics

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolInfos = []ToolInfo{
	{
		Name: ToolSearchCases,
		Description: "Search the legal case corpus. Understands case numbers (e.g. 1234/2023), statute citations " +
			"(e.g. PPC 302, 497 CrPC), law reports (e.g. 2020 SCMR 123), party names (A vs B) and legal concepts. " +
			"Supports court, status, year, judge, section and citation filters, pagination, facets and highlighted snippets.",
	},
	{
		Name:        ToolSuggestCases,
		Description: "Typeahead suggestions for case numbers, citations, statute sections and judges. Needs at least two characters.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Check whether the case index is built, when, with how many cases and chunks, and whether semantic search is available.",
	},
}

// NewServer creates a new MCP server.
func NewServer(searcher Searcher, idx Index, cfg *config.Config) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if idx == nil {
		return nil, errors.New("index is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		searcher: searcher,
		index:    idx,
		config:   cfg,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	s.registerCaseResources()

	return s, nil
}

// SetMetrics sets the query metrics collector and registers the
// query_metrics resource.
func (s *Server) SetMetrics(m *telemetry.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(toolInfos))
	copy(out, toolInfos)
	return out
}

// CallTool invokes a tool by name with JSON-style arguments. Search and
// suggest return markdown; index_status returns *IndexStatusOutput.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearchCases:
		var in SearchCasesInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		resp, err := s.handleSearchCases(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatSearchResults(in.Query, resp), nil
	case ToolSuggestCases:
		var in SuggestCasesInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		out, err := s.handleSuggestCases(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatSuggestions(in.Prefix, out.Suggestions), nil
	case ToolIndexStatus:
		return s.handleIndexStatus(ctx), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// decodeArgs round-trips loosely typed arguments into a tool input struct.
func decodeArgs(args map[string]any, out any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

func (s *Server) handleSearchCases(ctx context.Context, in SearchCasesInput) (*search.Response, error) {
	if st := s.index.Status(); st.Building && !st.Built {
		return nil, &MCPError{
			Code:    ErrCodeBuildInProgress,
			Message: "The case index is being built. Please try again in a moment.",
		}
	}

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("search_cases started",
		slog.String("request_id", requestID),
		slog.String("query", in.Query))

	resp, err := s.searcher.Search(ctx, toRequest(s.searcher.NewRequest(in.Query), in))
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search_cases failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("search_cases completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(resp.Results)),
		slog.Int("total", resp.Pagination.Total))
	return resp, nil
}

func (s *Server) handleSuggestCases(ctx context.Context, in SuggestCasesInput) (*SuggestCasesOutput, error) {
	resp, err := s.searcher.Suggest(ctx, in.Prefix, in.Type, in.Limit)
	if err != nil {
		return nil, MapError(err)
	}
	return &SuggestCasesOutput{Suggestions: resp.Suggestions}, nil
}

// handleIndexStatus reports the served snapshot and embedder capability, so
// clients can prefer lexical mode when semantic search is degraded.
func (s *Server) handleIndexStatus(ctx context.Context) *IndexStatusOutput {
	status := s.index.Status()
	out := &IndexStatusOutput{
		Index: status,
		Embeddings: EmbeddingInfo{
			Provider: s.config.Embeddings.Provider,
			Model:    s.config.Embeddings.Model,
		},
	}

	emb := s.index.Embedder()
	info := &out.Embeddings
	switch {
	case emb == nil:
		info.ActualModel = "none"
		info.Status = "unavailable"
		info.SemanticQuality = "none"
		info.IsFallbackActive = true
	default:
		info.ActualModel = emb.ModelName()
		info.Dimensions = emb.Dimensions()
		info.IsFallbackActive = strings.HasPrefix(info.ActualModel, "static")
		info.SemanticQuality = "high"
		if info.IsFallbackActive {
			info.SemanticQuality = "low"
		}
		info.Status = "ready"
		if !emb.Available(ctx) {
			info.Status = "unavailable"
		}
	}
	if !status.HasVector {
		info.SemanticQuality = "none"
	}
	return out
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSearchCases,
		Description: toolInfos[0].Description,
	}, s.mcpSearchCasesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSuggestCases,
		Description: toolInfos[1].Description,
	}, s.mcpSuggestCasesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIndexStatus,
		Description: toolInfos[2].Description,
	}, s.mcpIndexStatusHandler)

	s.logger.Info("mcp_tools_registered", slog.Int("count", len(toolInfos)))
}

// mcpSearchCasesHandler is the MCP SDK handler for the search_cases tool.
// The markdown rendering goes in the text content; the full response is the
// structured output.
func (s *Server) mcpSearchCasesHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchCasesInput) (
	*mcp.CallToolResult,
	*search.Response,
	error,
) {
	resp, err := s.handleSearchCases(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResults(input.Query, resp)}},
	}, resp, nil
}

// mcpSuggestCasesHandler is the MCP SDK handler for the suggest_cases tool.
func (s *Server) mcpSuggestCasesHandler(ctx context.Context, _ *mcp.CallToolRequest, input SuggestCasesInput) (
	*mcp.CallToolResult,
	*SuggestCasesOutput,
	error,
) {
	out, err := s.handleSuggestCases(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	return nil, s.handleIndexStatus(ctx), nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
