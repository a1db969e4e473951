// Package index owns the lifecycle of the search indexes: it builds the
// lexical, vector and facet indexes from a case source, persists them as a
// versioned snapshot generation, and publishes the loaded snapshot to
// queries with an atomic swap. Queries hold a *Snapshot for their whole
// duration, so a concurrent rebuild never exposes a half-built index.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/casesearch/internal/config"
	"github.com/Aman-CERP/casesearch/internal/embed"
	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
	"github.com/Aman-CERP/casesearch/internal/facet"
	"github.com/Aman-CERP/casesearch/internal/lexical"
	"github.com/Aman-CERP/casesearch/internal/snippet"
	"github.com/Aman-CERP/casesearch/internal/store"
	"github.com/Aman-CERP/casesearch/internal/vector"
)

// DefaultCloseDelay is how long a replaced snapshot's text index stays open
// for queries that still hold it.
const DefaultCloseDelay = 30 * time.Second

// Stage identifies a build phase for progress reporting.
type Stage string

// Build stages, in order.
const (
	StageLoading   Stage = "loading"
	StageIndexing  Stage = "indexing"
	StageEmbedding Stage = "embedding"
	StageSaving    Stage = "saving"
)

// ProgressEvent reports build progress.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	Message string
}

// Options configure a Manager.
type Options struct {
	// DataDir holds the manifest, snapshot generations and the build lock.
	DataDir string
	Source  store.CaseSource
	// Embedder may be nil; the snapshot is then built without a vector index
	// and semantic search degrades to lexical.
	Embedder embed.Embedder
	Config   *config.Config
	// Progress, when set, receives build progress. It must not block.
	Progress func(ProgressEvent)
}

// BuildOptions control one build.
type BuildOptions struct {
	// Force discards the current snapshot and rebuilds every case.
	Force bool
}

// BuildStats reports the outcome of a build. Errors lists per-item failures
// that did not abort the build.
type BuildStats struct {
	IndexBuilt bool          `json:"index_built"`
	Cases      int           `json:"cases"`
	Chunks     int           `json:"chunks"`
	Embedded   int           `json:"embedded"`
	Unembedded int           `json:"unembedded"`
	Reused     int           `json:"reused"`
	FacetTerms int           `json:"facet_terms"`
	Skipped    int           `json:"skipped"`
	Errors     []string      `json:"errors,omitempty"`
	Duration   time.Duration `json:"duration"`
	SnapshotID string        `json:"snapshot_id"`
}

// Snapshot is one loaded generation. It is immutable; the Manager replaces
// it as a whole.
type Snapshot struct {
	ID       string
	BuiltAt  time.Time
	Manifest Manifest
	Lexical  *lexical.Index
	// Vector is nil when the generation was built without embeddings.
	Vector *vector.Index
	Facets *facet.Index
	// Text locates query terms in chunk text for snippets. It may be nil.
	Text *snippet.TextIndex
}

// Record returns a case's metadata.
func (s *Snapshot) Record(id store.CaseID) (store.CaseRecord, bool) {
	return s.Lexical.Record(id)
}

// Chunks returns a case's chunks, or nil without a vector index.
func (s *Snapshot) Chunks(id store.CaseID) []store.Chunk {
	return s.Vector.Chunks(id)
}

// Occurrences returns how often a facet term occurs in a case.
func (s *Snapshot) Occurrences(id store.CaseID, t facet.Type, canonical string) int {
	return s.Facets.Occurrences(id, t, canonical)
}

// CaseTerms returns a case's canonical terms of one facet type.
func (s *Snapshot) CaseTerms(id store.CaseID, t facet.Type) []string {
	return s.Facets.CaseTerms(id, t)
}

// Status describes the manager's state for the status command and the
// index_status tool.
type Status struct {
	Built      bool      `json:"built"`
	Building   bool      `json:"building"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	BuiltAt    time.Time `json:"built_at,omitzero"`
	Model      string    `json:"model,omitempty"`
	Backend    string    `json:"backend,omitempty"`
	HasVector  bool      `json:"has_vector"`
	Counts     Counts    `json:"counts"`
	DataDir    string    `json:"data_dir"`
}

// Manager builds, persists and serves index snapshots. It is safe for
// concurrent use; at most one build runs at a time per data directory.
type Manager struct {
	opts       Options
	lock       *BuildLock
	mu         sync.Mutex
	ensureMu   sync.Mutex
	building   atomic.Bool
	current    atomic.Pointer[Snapshot]
	closeDelay time.Duration
}

// NewManager creates a Manager. Nothing is loaded until Load, Ensure or
// Build is called.
func NewManager(opts Options) (*Manager, error) {
	if opts.DataDir == "" {
		return nil, cserrors.ConfigError("index data directory is required", nil)
	}
	if opts.Source == nil {
		return nil, cserrors.ConfigError("case source is required", nil)
	}
	if opts.Config == nil {
		opts.Config = config.NewConfig()
	}
	return &Manager{
		opts:       opts,
		lock:       NewBuildLock(opts.DataDir),
		closeDelay: DefaultCloseDelay,
	}, nil
}

// Current returns the served snapshot, or nil before the first load.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// Building reports whether a build is running in this process.
func (m *Manager) Building() bool {
	return m.building.Load()
}

// Embedder returns the configured embedder, possibly nil.
func (m *Manager) Embedder() embed.Embedder {
	return m.opts.Embedder
}

// Status reports the served snapshot.
func (m *Manager) Status() Status {
	st := Status{Building: m.building.Load(), DataDir: m.opts.DataDir}
	snap := m.Current()
	if snap == nil {
		return st
	}
	st.Built = true
	st.SnapshotID = snap.ID
	st.BuiltAt = snap.BuiltAt
	st.Model = snap.Manifest.Model
	st.Backend = snap.Manifest.Backend
	st.HasVector = snap.Vector != nil
	st.Counts = snap.Manifest.Counts
	return st
}

// Build builds a new snapshot generation from the case source, persists it,
// and swaps it in. Without Force, cases whose fingerprint is unchanged reuse
// the current snapshot's tokens and embeddings. A cancelled or failed build
// leaves the served snapshot untouched.
func (m *Manager) Build(ctx context.Context, bo BuildOptions) (*BuildStats, error) {
	if !m.building.CompareAndSwap(false, true) {
		return nil, cserrors.New(cserrors.ErrCodeBuildInProgress, "an index build is already running", nil)
	}
	defer m.building.Store(false)

	acquired, err := m.lock.TryLock()
	if err != nil {
		return nil, cserrors.PersistenceError(cserrors.ErrCodeSnapshotSave, "failed to lock data directory", err).
			WithDetail("path", m.lock.Path())
	}
	if !acquired {
		return nil, cserrors.New(cserrors.ErrCodeBuildInProgress, "another process is building the index", nil).
			WithDetail("lock", m.lock.Path())
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil {
			slog.Warn("build_lock_release_failed", slog.String("error", err.Error()))
		}
	}()

	start := time.Now()
	stats := &BuildStats{}
	slog.Info("index_build_started", slog.Bool("force", bo.Force))

	m.progress(StageLoading, 0, 0, "reading case records")
	records, err := m.opts.Source.ListCases(ctx)
	if err != nil {
		return nil, cserrors.New(cserrors.ErrCodeSourceUnavailable, "failed to read case records", err)
	}
	valid := make([]store.CaseRecord, 0, len(records))
	for i := range records {
		if err := records[i].Validate(); err != nil {
			stats.Skipped++
			stats.Errors = append(stats.Errors, err.Error())
			continue
		}
		valid = append(valid, records[i])
	}
	m.progress(StageLoading, len(valid), len(records), "case records read")

	var prev *Snapshot
	if !bo.Force {
		prev = m.Current()
		if prev == nil {
			if loaded, err := m.Load(ctx); err == nil {
				prev = loaded
			}
		}
	}

	built, err := m.buildIndexes(ctx, valid, prev, stats)
	if err != nil {
		return nil, err
	}

	if err := m.persist(ctx, built); err != nil {
		built.closeText()
		return nil, err
	}
	m.swap(built)
	pruneGenerations(m.opts.DataDir, built.ID)

	stats.IndexBuilt = true
	stats.SnapshotID = built.ID
	stats.Duration = time.Since(start)
	slog.Info("index_build_complete",
		slog.String("snapshot_id", built.ID),
		slog.Int("cases", stats.Cases),
		slog.Int("chunks", stats.Chunks),
		slog.Int("embedded", stats.Embedded),
		slog.Int("unembedded", stats.Unembedded),
		slog.Int("reused", stats.Reused),
		slog.Int("errors", len(stats.Errors)),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// buildIndexes builds the three indexes in parallel. A vector build that
// fails outright is recorded; the previous vector index is carried forward
// when it still matches the embedder, otherwise the snapshot is lexical only.
func (m *Manager) buildIndexes(ctx context.Context, records []store.CaseRecord, prev *Snapshot, stats *BuildStats) (*Snapshot, error) {
	cfg := m.opts.Config
	var prevLex *lexical.Index
	var prevVec *vector.Index
	if prev != nil {
		prevLex, prevVec = prev.Lexical, prev.Vector
	}

	m.progress(StageIndexing, 0, len(records), "building lexical and facet indexes")

	var (
		lex      *lexical.Index
		lexStats lexical.BuildStats
		fac      *facet.Index
		facStats facet.BuildStats
		vec      *vector.Index
		vecStats vector.BuildStats
		vecErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lex, lexStats, err = lexical.Build(gctx, records, prevLex, lexical.ParamsFromConfig(cfg.Lexical))
		return err
	})
	g.Go(func() error {
		var err error
		fac, facStats, err = facet.Build(gctx, records)
		return err
	})
	if m.opts.Embedder != nil {
		g.Go(func() error {
			opts := vector.OptionsFromConfig(cfg.Vector, cfg.Embeddings)
			opts.Progress = func(done, total int) {
				m.progress(StageEmbedding, done, total, "embedding chunks")
			}
			vec, vecStats, vecErr = vector.Build(gctx, records, prevVec, m.opts.Embedder, opts)
			if vecErr != nil && gctx.Err() != nil {
				return vecErr
			}
			// Capture the error so lexical and facet builds continue.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			slog.Info("index_build_cancelled")
			return nil, ctx.Err()
		}
		return nil, cserrors.InternalError("index build failed", err)
	}

	stats.Cases = lexStats.Cases
	stats.Reused = lexStats.Reused
	stats.FacetTerms = facStats.Terms
	for _, e := range vecStats.Errors {
		stats.Errors = append(stats.Errors, e.Error())
	}
	if vecErr != nil {
		stats.Errors = append(stats.Errors, vecErr.Error())
		vec = nil
		if carried := m.carryVector(prevVec); carried != nil {
			slog.Warn("vector_index_carried_forward",
				slog.String("error", vecErr.Error()),
				slog.Int("cases", carried.Len()))
			vec = carried
			vecStats = vector.BuildStats{
				Cases:      carried.Len(),
				Chunks:     carried.ChunkCount(),
				Embedded:   carried.ChunkCount() - carried.Unembedded(),
				Unembedded: carried.Unembedded(),
			}
		} else {
			slog.Warn("vector_index_unavailable", slog.String("error", vecErr.Error()))
		}
	}

	var chunks []store.Chunk
	if vec != nil {
		stats.Chunks = vecStats.Chunks
		stats.Embedded = vecStats.Embedded
		stats.Unembedded = vecStats.Unembedded
		chunks = vec.AllChunks()
	} else {
		chunks = chunkRecords(records, cfg.Vector)
		stats.Chunks = len(chunks)
		stats.Unembedded = len(chunks)
	}

	text, err := snippet.NewTextIndex(ctx, chunks)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("text_index_unavailable", slog.String("error", err.Error()))
		stats.Errors = append(stats.Errors, err.Error())
		text = nil
	}

	man := Manifest{
		Version:    ManifestVersion,
		Generation: uuid.NewString(),
		BuiltAt:    time.Now().UTC(),
		HasVector:  vec != nil,
		Counts: Counts{
			Cases:      stats.Cases,
			Chunks:     stats.Chunks,
			Embedded:   stats.Embedded,
			Unembedded: stats.Unembedded,
			FacetTerms: stats.FacetTerms,
		},
	}
	if vec != nil {
		man.Model = vec.Model()
		man.Backend = vec.Backend()
	}
	return &Snapshot{
		ID:       man.Generation,
		BuiltAt:  man.BuiltAt,
		Manifest: man,
		Lexical:  lex,
		Vector:   vec,
		Facets:   fac,
		Text:     text,
	}, nil
}

// carryVector returns prev when it can keep serving semantic queries for
// the current embedder.
func (m *Manager) carryVector(prev *vector.Index) *vector.Index {
	e := m.opts.Embedder
	if prev == nil || e == nil {
		return nil
	}
	if prev.Model() != e.ModelName() || prev.Dimensions() != e.Dimensions() {
		return nil
	}
	if prev.ChunkCount() == prev.Unembedded() {
		return nil
	}
	return prev
}

func chunkRecords(records []store.CaseRecord, cfg config.VectorConfig) []store.Chunk {
	chunker := vector.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	var out []store.Chunk
	for i := range records {
		out = append(out, chunker.Chunk(&records[i])...)
	}
	return out
}

// persist writes the snapshot files in parallel, then the manifest. A
// partially written generation is removed.
func (m *Manager) persist(ctx context.Context, snap *Snapshot) error {
	dir := generationDir(m.opts.DataDir, snap.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return cserrors.PersistenceError(cserrors.ErrCodeSnapshotSave, "failed to create snapshot directory", err).
			WithDetail("path", dir)
	}
	m.progress(StageSaving, 0, 0, "writing snapshot")

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return snap.Lexical.Save(filepath.Join(dir, lexicalFileName)) })
	g.Go(func() error { return snap.Facets.Save(filepath.Join(dir, facetFileName)) })
	if snap.Vector != nil {
		g.Go(func() error { return snap.Vector.Save(dir) })
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		if werr := writeManifest(m.opts.DataDir, &snap.Manifest); werr != nil {
			err = cserrors.PersistenceError(cserrors.ErrCodeSnapshotSave, "failed to write manifest", werr)
		}
	}
	if err != nil {
		os.RemoveAll(dir)
		return err
	}
	return nil
}

// Load reads the generation named by the manifest and serves it. Loading
// the generation already served is a no-op. A missing index yields an
// IndexNotBuilt error; unreadable files yield a PersistenceError.
func (m *Manager) Load(ctx context.Context) (*Snapshot, error) {
	man, err := ReadManifest(m.opts.DataDir)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur := m.Current(); cur != nil && cur.ID == man.Generation {
		return cur, nil
	}

	snap, err := m.loadGeneration(ctx, man)
	if err != nil {
		return nil, err
	}
	m.swapLocked(snap)
	slog.Info("index_snapshot_loaded",
		slog.String("snapshot_id", snap.ID),
		slog.Int("cases", man.Counts.Cases),
		slog.Bool("has_vector", man.HasVector))
	return snap, nil
}

func (m *Manager) loadGeneration(ctx context.Context, man *Manifest) (*Snapshot, error) {
	dir := generationDir(m.opts.DataDir, man.Generation)
	snap := &Snapshot{ID: man.Generation, BuiltAt: man.BuiltAt, Manifest: *man}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Lexical, err = lexical.Load(filepath.Join(dir, lexicalFileName))
		return err
	})
	g.Go(func() error {
		var err error
		snap.Facets, err = facet.Load(filepath.Join(dir, facetFileName))
		return err
	})
	if man.HasVector {
		g.Go(func() error {
			var err error
			snap.Vector, err = vector.Load(dir)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Chunk text is only persisted with the vector index.
	if snap.Vector != nil {
		text, err := snippet.NewTextIndex(ctx, snap.Vector.AllChunks())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("text_index_unavailable", slog.String("error", err.Error()))
		} else {
			snap.Text = text
		}
	}
	return snap, nil
}

// Ensure returns the served snapshot, loading it on first use. When no
// index exists and lazy builds are enabled it builds one; a snapshot that
// fails to load is rebuilt from scratch.
func (m *Manager) Ensure(ctx context.Context) (*Snapshot, error) {
	if snap := m.Current(); snap != nil {
		return snap, nil
	}
	m.ensureMu.Lock()
	defer m.ensureMu.Unlock()
	if snap := m.Current(); snap != nil {
		return snap, nil
	}

	snap, err := m.Load(ctx)
	if err == nil {
		return snap, nil
	}

	switch {
	case cserrors.HasCode(err, cserrors.ErrCodeIndexNotBuilt):
		if !m.opts.Config.Search.LazyBuildEnabled() {
			return nil, err
		}
		slog.Info("index_lazy_build")
		if _, err := m.Build(ctx, BuildOptions{}); err != nil {
			return nil, err
		}
	case cserrors.HasCode(err, cserrors.ErrCodeSnapshotLoad), cserrors.HasCode(err, cserrors.ErrCodeCorruptSnapshot):
		slog.Warn("index_snapshot_unreadable", slog.String("error", err.Error()))
		if _, err := m.Build(ctx, BuildOptions{Force: true}); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if snap := m.Current(); snap != nil {
		return snap, nil
	}
	return nil, cserrors.IndexNotBuiltError("index build produced no snapshot")
}

// Close releases the served snapshot's resources.
func (m *Manager) Close() error {
	if snap := m.current.Swap(nil); snap != nil {
		snap.closeText()
	}
	return nil
}

func (m *Manager) swap(snap *Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swapLocked(snap)
}

func (m *Manager) swapLocked(snap *Snapshot) {
	old := m.current.Swap(snap)
	if old == nil || old.Text == nil {
		return
	}
	if m.closeDelay <= 0 {
		old.closeText()
		return
	}
	time.AfterFunc(m.closeDelay, old.closeText)
}

func (s *Snapshot) closeText() {
	if s.Text == nil {
		return
	}
	if err := s.Text.Close(); err != nil {
		slog.Debug("text_index_close_failed", slog.String("error", err.Error()))
	}
}

func (m *Manager) progress(stage Stage, current, total int, msg string) {
	if m.opts.Progress == nil {
		return
	}
	m.opts.Progress(ProgressEvent{Stage: stage, Current: current, Total: total, Message: msg})
}

// String summarizes the stats for logs and plain output.
func (s *BuildStats) String() string {
	return fmt.Sprintf("%d cases, %d chunks (%d embedded, %d unembedded), %d facet terms, %d errors",
		s.Cases, s.Chunks, s.Embedded, s.Unembedded, s.FacetTerms, len(s.Errors))
}
