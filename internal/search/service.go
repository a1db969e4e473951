// Package search is the query API. It validates requests, retrieves lexical
// and vector candidates in parallel from the served snapshot, ranks and
// trims them, and assembles paginated results with snippets and facets.
// Every stage past validation degrades instead of failing.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/casesearch/internal/config"
	"github.com/Aman-CERP/casesearch/internal/embed"
	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
	"github.com/Aman-CERP/casesearch/internal/facet"
	"github.com/Aman-CERP/casesearch/internal/index"
	"github.com/Aman-CERP/casesearch/internal/lexical"
	"github.com/Aman-CERP/casesearch/internal/precision"
	"github.com/Aman-CERP/casesearch/internal/query"
	"github.com/Aman-CERP/casesearch/internal/ranking"
	"github.com/Aman-CERP/casesearch/internal/snippet"
	"github.com/Aman-CERP/casesearch/internal/store"
	"github.com/Aman-CERP/casesearch/internal/telemetry"
	"github.com/Aman-CERP/casesearch/internal/vector"
)

// snippetWorkers bounds concurrent snippet generation for one page.
const snippetWorkers = 4

// Snapshots serves the current index snapshot. *index.Manager implements it.
type Snapshots interface {
	Ensure(ctx context.Context) (*index.Snapshot, error)
	Embedder() embed.Embedder
}

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Service answers search and suggest requests. It is safe for concurrent use.
type Service struct {
	snapshots Snapshots
	cfg       *config.Config
	ranking   *config.RankingHolder
	engine    *ranking.Engine
	queries   *lru.Cache[string, *query.NormalizedQuery]
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithMetrics records every search in the telemetry collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock anchors recency scoring; tests pin it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a search service. holder supplies the ranking tunables and
// may be swapped while the service runs.
func New(snapshots Snapshots, cfg *config.Config, holder *config.RankingHolder, opts ...Option) (*Service, error) {
	if snapshots == nil {
		return nil, fmt.Errorf("%w: snapshot source is required", ErrNilDependency)
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if holder == nil {
		h, err := config.NewRankingHolder(cfg.Ranking)
		if err != nil {
			return nil, err
		}
		holder = h
	}
	size := cfg.Search.QueryCacheSize
	if size <= 0 {
		size = 1
	}
	queries, err := lru.New[string, *query.NormalizedQuery](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	s := &Service{
		snapshots: snapshots,
		cfg:       cfg,
		ranking:   holder,
		engine:    ranking.NewEngine(holder),
		queries:   queries,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewRequest returns a request for q with the configured default mode and limit.
func (s *Service) NewRequest(q string) Request {
	return Request{
		Query: q,
		Mode:  s.cfg.Search.DefaultMode,
		Limit: s.cfg.Search.DefaultLimit,
	}
}

// Search runs one query. Only invalid requests, an unavailable index and
// cancellation return errors; retrieval and ranking failures degrade and
// are reported in debug metadata.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	mode, warnings, err := s.validate(&req)
	if err != nil {
		return nil, err
	}

	snap, err := s.snapshots.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	q := s.normalize(req.Query)
	dbg := &Debug{RequestedMode: string(mode), SnapshotID: snap.ID}

	effective := mode
	if mode != ranking.ModeLexical {
		switch {
		case snap.Vector == nil:
			effective = ranking.ModeLexical
			dbg.Fallbacks = append(dbg.Fallbacks, FallbackNoVectorIndex)
		case s.snapshots.Embedder() == nil:
			effective = ranking.ModeLexical
			dbg.Fallbacks = append(dbg.Fallbacks, FallbackNoEmbedder)
		}
	}

	allowed := allowedCases(snap, req.Filters)
	spec := precision.Specificity(q)
	dbg.RetrievalLimit = s.retrievalLimit(req, precision.MaxResults(spec))

	lex, vec, vecErr := s.retrieve(ctx, snap, q, effective, req.Filters, allowed, dbg.RetrievalLimit)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if vecErr != nil {
		slog.Warn("vector_search_failed",
			slog.String("mode", string(effective)),
			slog.String("error", vecErr.Error()))
		dbg.Fallbacks = append(dbg.Fallbacks, FallbackVectorFailed)
		if effective == ranking.ModeSemantic {
			lex = s.lexicalHits(snap, q, req.Filters, allowed, dbg.RetrievalLimit)
		}
		effective = ranking.ModeLexical
		vec = nil
	}
	dbg.EffectiveMode = string(effective)
	dbg.LexicalHits = len(lex)
	dbg.VectorHits = len(vec)

	ranked := s.engine.Rank(ranking.Input{
		Query:   q,
		Mode:    effective,
		Vector:  vec,
		Lexical: lex,
		Filters: req.Filters,
		Records: snap,
		Terms:   snap,
		TopK:    precision.MaxResults(spec),
		Now:     s.now(),
	})
	dbg.Weights = ranked.Weights
	dbg.Diversified = ranked.Diversified
	if ranked.Fallback {
		dbg.RankingFallback = true
		dbg.Fallbacks = append(dbg.Fallbacks, FallbackRanking)
		if ranked.Err != nil {
			dbg.RankingError = ranked.Err.Error()
		}
	}

	trimmed := precision.Optimize(ranked.Candidates, q, precision.CutoffFromConfig(s.ranking.Load()))
	dbg.Precision = trimmed
	cands := trimmed.Candidates

	resp := &Response{
		Pagination: paginate(len(cands), req.Offset, req.Limit),
		QueryInfo:  queryInfo(req.Query, q, warnings),
	}

	if req.Facets && snap.Facets != nil {
		ids := make([]store.CaseID, len(cands))
		for i := range cands {
			ids[i] = cands[i].CaseID
		}
		resp.Facets = snap.Facets.Counts(ids, req.Filters, facet.CountOptionsFromConfig(s.cfg.Facets))
	}

	page := pageOf(cands, req.Offset, req.Limit)
	resp.Results = s.results(page, snap, req.Debug)
	if req.Highlight && len(resp.Results) > 0 {
		if snap.Text == nil {
			dbg.Fallbacks = append(dbg.Fallbacks, FallbackSnippetsFailed)
		}
		if err := s.attachSnippets(ctx, resp.Results, snap, q); err != nil {
			return nil, err
		}
	}

	latency := time.Since(start)
	resp.Metadata = Metadata{
		Mode:         string(effective),
		TotalResults: len(cands),
		LatencyMS:    latency.Milliseconds(),
	}
	if req.Debug {
		resp.Metadata.Debug = dbg
	}

	if s.metrics != nil {
		s.metrics.Record(telemetry.SearchEvent{
			Query:       req.Query,
			QueryType:   string(q.Type),
			Mode:        string(effective),
			ResultCount: len(cands),
			Latency:     latency,
			Fallback:    len(dbg.Fallbacks) > 0,
		})
	}

	slog.Debug("search_completed",
		slog.String("query_type", string(q.Type)),
		slog.String("mode", string(effective)),
		slog.Int("lexical_hits", len(lex)),
		slog.Int("vector_hits", len(vec)),
		slog.Int("total", len(cands)),
		slog.Int("fallbacks", len(dbg.Fallbacks)),
		slog.Duration("latency", latency))

	return resp, nil
}

// validate checks every request parameter and reports all failures at once.
// It fills in the default mode and caps the limit.
func (s *Service) validate(req *Request) (ranking.Mode, []string, error) {
	var errs cserrors.ValidationErrors

	warnings, err := query.Validate(req.Query)
	if err != nil {
		if ce, ok := cserrors.As(err); ok {
			errs = append(errs, ce)
		} else {
			errs = append(errs, cserrors.New(cserrors.ErrCodeInvalidQuery, err.Error(), err))
		}
	}

	if req.Mode == "" {
		req.Mode = s.cfg.Search.DefaultMode
	}
	mode, ok := ranking.ParseMode(req.Mode)
	if !ok {
		errs = append(errs, cserrors.New(cserrors.ErrCodeInvalidMode,
			fmt.Sprintf("mode must be one of lexical, semantic, hybrid, got %q", req.Mode), nil))
	}

	if req.Offset < 0 {
		errs = append(errs, cserrors.New(cserrors.ErrCodeInvalidOffset,
			fmt.Sprintf("offset must be non-negative, got %d", req.Offset), nil))
	}
	if req.Limit <= 0 {
		errs = append(errs, cserrors.New(cserrors.ErrCodeInvalidLimit,
			fmt.Sprintf("limit must be positive, got %d", req.Limit), nil))
	} else if maxLimit := s.cfg.Search.MaxLimit; maxLimit > 0 && req.Limit > maxLimit {
		warnings = append(warnings, fmt.Sprintf("limit capped at %d", maxLimit))
		req.Limit = maxLimit
	}

	if err := errs.OrNil(); err != nil {
		return "", nil, err
	}
	return mode, warnings, nil
}

// normalize parses q through the LRU cache. Cached queries are shared and
// must not be modified.
func (s *Service) normalize(raw string) *query.NormalizedQuery {
	if q, ok := s.queries.Get(raw); ok {
		return q
	}
	q := query.Normalize(raw)
	s.queries.Add(raw, q)
	return q
}

// retrievalLimit sizes each source's candidate list: twice the deepest
// requested rank, at least twice the precision cap, at most the configured
// candidate limit.
func (s *Service) retrievalLimit(req Request, maxResults int) int {
	n := max(2*(req.Offset+req.Limit), 2*maxResults)
	if c := s.cfg.Search.CandidateLimit; c > 0 {
		n = min(n, c)
	}
	return n
}

// retrieve runs the sources of mode in parallel. A vector failure is
// returned separately so lexical results survive it.
func (s *Service) retrieve(
	ctx context.Context,
	snap *index.Snapshot,
	q *query.NormalizedQuery,
	mode ranking.Mode,
	filters store.Filters,
	allowed map[store.CaseID]bool,
	limit int,
) (lex, vec []ranking.Hit, vecErr error) {
	g, gctx := errgroup.WithContext(ctx)

	if mode != ranking.ModeSemantic {
		g.Go(func() error {
			lex = s.lexicalHits(snap, q, filters, allowed, limit)
			return nil
		})
	}

	if mode != ranking.ModeLexical {
		embedder := s.snapshots.Embedder()
		g.Go(func() error {
			text := q.Normalized
			if text == "" {
				text = q.Original
			}
			results, err := snap.Vector.Search(gctx, text, embedder, vector.SearchOptions{
				Limit:   limit,
				Allowed: allowed,
			})
			if err != nil {
				// Don't fail the group; lexical results still count.
				vecErr = err
				return nil
			}
			vec = make([]ranking.Hit, len(results))
			for i, r := range results {
				vec[i] = ranking.Hit{CaseID: r.CaseID, Score: r.Score}
			}
			return nil
		})
	}

	_ = g.Wait()
	return lex, vec, vecErr
}

func (s *Service) lexicalHits(
	snap *index.Snapshot,
	q *query.NormalizedQuery,
	filters store.Filters,
	allowed map[store.CaseID]bool,
	limit int,
) []ranking.Hit {
	results := snap.Lexical.Search(q, lexical.SearchOptions{Limit: limit, Filters: filters, Allowed: allowed})
	hits := make([]ranking.Hit, len(results))
	for i, r := range results {
		hits[i] = ranking.Hit{CaseID: r.CaseID, Score: r.Score}
	}
	return hits
}

// allowedCases resolves filters to the set of matching cases. It returns nil
// when no filter is set.
func allowedCases(snap *index.Snapshot, f store.Filters) map[store.CaseID]bool {
	if f.IsZero() {
		return nil
	}
	var ids []store.CaseID
	if byTerm := snap.Facets.CasesFor(f); byTerm != nil {
		ids = make([]store.CaseID, 0, len(byTerm))
		for id := range byTerm {
			ids = append(ids, id)
		}
	} else {
		ids = snap.Lexical.CaseIDs()
	}

	out := make(map[store.CaseID]bool, len(ids))
	for _, id := range ids {
		rec, ok := snap.Record(id)
		if ok && f.MatchesRecord(&rec) {
			out[id] = true
		}
	}
	return out
}

func (s *Service) results(page []ranking.Candidate, snap *index.Snapshot, debug bool) []Result {
	out := make([]Result, 0, len(page))
	for i := range page {
		c := page[i]
		r := Result{
			CaseID:       c.CaseID,
			VectorScore:  c.VectorScore,
			KeywordScore: c.KeywordScore,
			FinalScore:   c.FinalScore,
			Rank:         c.Rank,
		}
		if rec, ok := snap.Record(c.CaseID); ok {
			r.CaseNumber = rec.CaseNumber
			r.CaseTitle = rec.CaseTitle
			r.Court = rec.Court
			r.Status = rec.Status
			r.InstitutionDate = rec.InstitutionDate
		}
		if debug {
			r.Scores = &c
		}
		out = append(out, r)
	}
	return out
}

// attachSnippets fills the snippets of one page concurrently.
func (s *Service) attachSnippets(ctx context.Context, results []Result, snap *index.Snapshot, q *query.NormalizedQuery) error {
	gen := snippet.NewGenerator(snippet.OptionsFromConfig(s.cfg.Snippet), snap.Text, snap, snap.Facets)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snippetWorkers)
	for i := range results {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, ok := snap.Record(results[i].CaseID)
			if !ok {
				return nil
			}
			results[i].Snippets = gen.Generate(gctx, &rec, q, true)
			return nil
		})
	}
	return g.Wait()
}

func paginate(total, offset, limit int) Pagination {
	return Pagination{
		Total:       total,
		Offset:      offset,
		Limit:       limit,
		HasNext:     offset+limit < total,
		HasPrevious: offset > 0,
	}
}

func pageOf(cands []ranking.Candidate, offset, limit int) []ranking.Candidate {
	if offset >= len(cands) {
		return nil
	}
	return cands[offset:min(offset+limit, len(cands))]
}

func queryInfo(raw string, q *query.NormalizedQuery, warnings []string) QueryInfo {
	info := QueryInfo{
		OriginalQuery:     raw,
		NormalizedQuery:   q.Normalized,
		QueryType:         string(q.Type),
		CitationsFound:    len(q.Citations),
		ExactMatchesFound: len(q.ExactIdentifiers),
		Warnings:          warnings,
	}
	for _, c := range q.Citations {
		info.Citations = append(info.Citations, c.Canonical)
	}
	return info
}

// Suggest returns typeahead suggestions for prefix. Prefixes shorter than
// two characters yield an empty list; an unknown type is a validation error.
func (s *Service) Suggest(ctx context.Context, prefix, typ string, limit int) (*SuggestResponse, error) {
	st, err := facet.ParseSuggestType(typ)
	if err != nil {
		return nil, cserrors.ValidationErrors{mustCaseError(err)}
	}
	if limit <= 0 {
		limit = s.cfg.Facets.SuggestLimit
	}

	snap, err := s.snapshots.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return &SuggestResponse{Suggestions: snap.Facets.Suggest(prefix, st, limit)}, nil
}

func mustCaseError(err error) *cserrors.CaseError {
	if ce, ok := cserrors.As(err); ok {
		return ce
	}
	return cserrors.ValidationError(err.Error(), err)
}
