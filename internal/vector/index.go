package vector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Aman-CERP/casesearch/internal/config"
	"github.com/Aman-CERP/casesearch/internal/embed"
	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// Options configure a build.
type Options struct {
	Backend      string
	ChunkSize    int
	ChunkOverlap int
	Workers      int
	BatchSize    int
	// Progress receives (chunks embedded so far, chunks to embed).
	Progress func(done, total int)
}

// OptionsFromConfig maps the vector and embeddings config sections.
func OptionsFromConfig(v config.VectorConfig, e config.EmbeddingsConfig) Options {
	return Options{
		Backend:      v.Backend,
		ChunkSize:    v.ChunkSize,
		ChunkOverlap: v.ChunkOverlap,
		Workers:      e.Workers,
		BatchSize:    e.BatchSize,
	}
}

// BuildStats reports what a build did. Errors holds per-batch failures;
// their chunks stay unembedded and are retried by the next build.
type BuildStats struct {
	Cases      int
	Chunks     int
	Embedded   int
	Unembedded int
	Reused     int
	// Recycled counts chunks of changed cases whose text was already
	// embedded in the previous index.
	Recycled int
	Errors   []error
}

// Result is the best chunk match of one case.
type Result struct {
	CaseID     store.CaseID `json:"case_id"`
	Score      float64      `json:"score"`
	ChunkIndex int          `json:"chunk_index"`
}

// SearchOptions bound a vector search.
type SearchOptions struct {
	// Limit caps the number of cases returned; zero means 10.
	Limit int
	// Allowed, when non-nil, restricts results to these cases.
	Allowed map[store.CaseID]bool
}

// Index is an immutable chunk index. It is safe for concurrent searches.
type Index struct {
	builtAt      time.Time
	dims         int
	model        string
	chunks       []store.Chunk
	caseChunks   map[store.CaseID][]int
	fingerprints map[store.CaseID]uint64
	store        VectorStore
}

// Build chunks and embeds records into a new index. A case whose fingerprint
// is unchanged since prev keeps prev's chunks, and only its unembedded chunks
// are sent to the embedder. Batch failures are collected in the stats and
// leave their chunks unembedded. The build fails only when a provider
// failure leaves no chunk embedded at all.
func Build(ctx context.Context, records []store.CaseRecord, prev *Index, embedder embed.Embedder, opts Options) (*Index, BuildStats, error) {
	sorted := make([]store.CaseRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CaseID < sorted[j].CaseID })

	dims := embedder.Dimensions()
	model := embedder.ModelName()
	if prev != nil && (prev.dims != dims || prev.model != model) {
		slog.Info("vector_index_model_changed",
			slog.String("previous_model", prev.model),
			slog.String("model", model),
			slog.Int("previous_dimensions", prev.dims),
			slog.Int("dimensions", dims))
		prev = nil
	}

	chunker := NewChunker(opts.ChunkSize, opts.ChunkOverlap)
	idx := &Index{
		builtAt:      time.Now().UTC(),
		dims:         dims,
		model:        model,
		caseChunks:   make(map[store.CaseID][]int, len(sorted)),
		fingerprints: make(map[store.CaseID]uint64, len(sorted)),
	}
	stats := BuildStats{}
	recycle := prev.embeddingsByContent()

	var pending []int
	for i := range sorted {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}
		rec := &sorted[i]
		if _, dup := idx.fingerprints[rec.CaseID]; dup {
			continue
		}
		fp := rec.Fingerprint()
		idx.fingerprints[rec.CaseID] = fp

		chunks, reused := prev.reusableChunks(rec.CaseID, fp)
		if reused {
			stats.Reused++
		} else {
			chunks = chunker.Chunk(rec)
			for j := range chunks {
				if vec, ok := recycle[embed.KeyFor(chunks[j].Text)]; ok {
					chunks[j].Embedding = vec
					chunks[j].Embedded = true
					stats.Recycled++
				}
			}
		}
		for _, c := range chunks {
			row := len(idx.chunks)
			idx.chunks = append(idx.chunks, c)
			idx.caseChunks[rec.CaseID] = append(idx.caseChunks[rec.CaseID], row)
			if !c.Embedded {
				pending = append(pending, row)
			}
		}
	}
	stats.Cases = len(idx.fingerprints)
	stats.Chunks = len(idx.chunks)

	if len(pending) > 0 {
		if err := idx.embedPending(ctx, embedder, pending, opts, &stats); err != nil {
			if ctx.Err() != nil || idx.embeddedCount() == 0 {
				return nil, stats, err
			}
			slog.Warn("vector_index_provider_unavailable",
				slog.Int("pending_chunks", len(pending)),
				slog.Int("reused_chunks", idx.embeddedCount()),
				slog.String("error", err.Error()))
			stats.Errors = append(stats.Errors, err)
		}
	}

	vs, err := idx.buildStore(opts.Backend)
	if err != nil {
		return nil, stats, err
	}
	idx.store = vs

	stats.Embedded = idx.embeddedCount()
	stats.Unembedded = stats.Chunks - stats.Embedded

	attrs := []any{
		slog.Int("reused_cases", stats.Reused),
		slog.Int("recycled_chunks", stats.Recycled),
		slog.Int("pending_chunks", len(pending)),
	}
	if c, ok := embedder.(interface{ Stats() embed.CacheStats }); ok {
		cs := c.Stats()
		attrs = append(attrs, slog.Int64("cache_hits", cs.Hits), slog.Int64("cache_misses", cs.Misses))
	}
	slog.Debug("vector_index_built", attrs...)
	return idx, stats, nil
}

func (idx *Index) embeddedCount() int {
	n := 0
	for i := range idx.chunks {
		if idx.chunks[i].Embedded {
			n++
		}
	}
	return n
}

func (idx *Index) embedPending(ctx context.Context, embedder embed.Embedder, pending []int, opts Options, stats *BuildStats) error {
	runner, err := embed.NewBatchRunner(embedder, opts.Workers, opts.BatchSize)
	if err != nil {
		return err
	}
	defer runner.Release()

	texts := make([]string, len(pending))
	for i, row := range pending {
		texts[i] = idx.chunks[row].Text
	}
	res := runner.Run(ctx, texts, opts.Progress)
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, row := range pending {
		vec := res.Vectors[i]
		if vec == nil {
			continue
		}
		if len(vec) != idx.dims {
			stats.Errors = append(stats.Errors, fmt.Errorf("chunk %s: %w", idx.chunks[row].ID(),
				ErrDimensionMismatch{Expected: idx.dims, Got: len(vec)}))
			continue
		}
		idx.chunks[row].Embedding = vec
		idx.chunks[row].Embedded = true
	}
	stats.Errors = append(stats.Errors, res.Errors...)

	if res.Failed == len(pending) {
		var cause error
		if len(res.Errors) > 0 {
			cause = res.Errors[0]
		}
		return cserrors.EmbeddingError(fmt.Sprintf("all %d pending chunks failed to embed", len(pending)), cause)
	}
	if res.Failed > 0 {
		slog.Warn("vector_index_partial",
			slog.Int("failed_chunks", res.Failed),
			slog.Int("pending_chunks", len(pending)))
	}
	return nil
}

func (idx *Index) buildStore(backend string) (VectorStore, error) {
	vs, err := NewStore(backend, idx.dims)
	if err != nil {
		return nil, cserrors.ConfigError(err.Error(), nil)
	}
	for row := range idx.chunks {
		c := &idx.chunks[row]
		if !c.Embedded {
			continue
		}
		if err := vs.Add(uint64(row), c.Embedding); err != nil {
			return nil, cserrors.InternalError(fmt.Sprintf("add chunk %s", c.ID()), err)
		}
	}
	return vs, nil
}

// embeddingsByContent maps the text of every embedded chunk to its vector.
func (idx *Index) embeddingsByContent() map[embed.ContentKey][]float32 {
	if idx == nil {
		return nil
	}
	out := make(map[embed.ContentKey][]float32, len(idx.chunks))
	for i := range idx.chunks {
		if c := &idx.chunks[i]; c.Embedded {
			out[embed.KeyFor(c.Text)] = c.Embedding
		}
	}
	return out
}

// reusableChunks returns copies of prev's chunks for an unchanged case.
func (idx *Index) reusableChunks(id store.CaseID, fp uint64) ([]store.Chunk, bool) {
	if idx == nil {
		return nil, false
	}
	if old, ok := idx.fingerprints[id]; !ok || old != fp {
		return nil, false
	}
	rows := idx.caseChunks[id]
	out := make([]store.Chunk, len(rows))
	for i, row := range rows {
		out[i] = idx.chunks[row]
	}
	return out, true
}

// Len returns the number of indexed cases.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.fingerprints)
}

// ChunkCount returns the number of chunks, embedded or not.
func (idx *Index) ChunkCount() int {
	if idx == nil {
		return 0
	}
	return len(idx.chunks)
}

// Unembedded returns the number of chunks still waiting for a vector.
func (idx *Index) Unembedded() int {
	if idx == nil {
		return 0
	}
	n := 0
	for i := range idx.chunks {
		if !idx.chunks[i].Embedded {
			n++
		}
	}
	return n
}

// Dimensions returns the embedding dimension.
func (idx *Index) Dimensions() int { return idx.dims }

// Model returns the embedding model the index was built with.
func (idx *Index) Model() string { return idx.model }

// Backend returns the vector store backend name.
func (idx *Index) Backend() string { return idx.store.Backend() }

// BuiltAt returns when the index was built.
func (idx *Index) BuiltAt() time.Time { return idx.builtAt }

// Chunks returns a case's chunks in order. Embeddings are omitted.
func (idx *Index) Chunks(id store.CaseID) []store.Chunk {
	if idx == nil {
		return nil
	}
	rows := idx.caseChunks[id]
	out := make([]store.Chunk, len(rows))
	for i, row := range rows {
		out[i] = idx.chunks[row]
		out[i].Embedding = nil
	}
	return out
}

// AllChunks returns every chunk in case id order. Embeddings are omitted.
func (idx *Index) AllChunks() []store.Chunk {
	if idx == nil {
		return nil
	}
	out := make([]store.Chunk, len(idx.chunks))
	for i := range idx.chunks {
		out[i] = idx.chunks[i]
		out[i].Embedding = nil
	}
	return out
}

// oversample is how many chunk hits are fetched per requested case.
const oversample = 4

// Search embeds text once and returns the best-matching cases, keeping each
// case's highest chunk similarity. Results are sorted by score descending,
// case id ascending, and only positive similarities are returned.
func (idx *Index) Search(ctx context.Context, text string, embedder embed.Embedder, opts SearchOptions) ([]Result, error) {
	if idx == nil || idx.store == nil || idx.store.Len() == 0 {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != idx.dims {
		return nil, cserrors.New(cserrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query vector has %d dimensions, index has %d", len(vec), idx.dims), nil)
	}

	fetch := limit * oversample
	if opts.Allowed != nil {
		fetch = idx.store.Len()
	}
	hits := idx.store.Search(vec, min(fetch, idx.store.Len()))

	best := make(map[store.CaseID]Result)
	for _, h := range hits {
		if h.Key >= uint64(len(idx.chunks)) || h.Score <= 0 {
			continue
		}
		c := &idx.chunks[h.Key]
		if opts.Allowed != nil && !opts.Allowed[c.CaseID] {
			continue
		}
		if cur, ok := best[c.CaseID]; !ok || h.Score > cur.Score {
			best[c.CaseID] = Result{CaseID: c.CaseID, Score: h.Score, ChunkIndex: c.Index}
		}
	}

	results := make([]Result, 0, len(best))
	for _, r := range best {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CaseID < results[j].CaseID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
