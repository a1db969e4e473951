package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/casesearch/internal/config"
	"github.com/Aman-CERP/casesearch/internal/embed"
	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
	"github.com/Aman-CERP/casesearch/internal/lexical"
	"github.com/Aman-CERP/casesearch/internal/query"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// failingEmbedder rejects every batch.
type failingEmbedder struct {
	embed.Embedder
}

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, cserrors.New(cserrors.ErrCodeProviderUnavailable, "provider down", nil)
}

// switchEmbedder fails every batch while down is set.
type switchEmbedder struct {
	embed.Embedder
	down atomic.Bool
}

func (s *switchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.down.Load() {
		return nil, cserrors.New(cserrors.ErrCodeProviderUnavailable, "provider down", nil)
	}
	return s.Embedder.EmbedBatch(ctx, texts)
}

// mutableSource lets a test change the corpus between builds.
type mutableSource struct {
	mu      sync.Mutex
	records []store.CaseRecord
}

func (s *mutableSource) ListCases(ctx context.Context) ([]store.CaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.SliceSource(s.records).ListCases(ctx)
}

func (s *mutableSource) set(records []store.CaseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
}

func testRecords() []store.CaseRecord {
	return []store.CaseRecord{
		{CaseID: 1, CaseNumber: "Crl. Misc. 2/2025", CaseTitle: "Ahmed vs State", Court: "Lahore High Court",
			Status: "Pending", Parties: []string{"Ahmed", "State"}, InstitutionDate: "2025-01-10",
			FullText: "petition for post arrest bail under section 497 crpc in a case of theft"},
		{CaseID: 2, CaseNumber: "Civil Suit 9/2021", CaseTitle: "Rashid vs Province of Punjab", Court: "Civil Court Lahore",
			Status: "Decided", InstitutionDate: "2021-06-01",
			FullText: "land revenue mutation dispute over agricultural land in the district"},
		{CaseID: 3, CaseNumber: "Crl. Appeal 12/2024", CaseTitle: "State vs Bashir", Court: "Supreme Court",
			Status: "Decided", InstitutionDate: "2024-02-20",
			FullText: "appeal against conviction for murder under section 302 ppc"},
	}
}

func newTestManager(t *testing.T, dir string, src store.CaseSource, embedder embed.Embedder) *Manager {
	t.Helper()
	cfg := config.NewConfig()
	m, err := NewManager(Options{DataDir: dir, Source: src, Embedder: embedder, Config: cfg})
	require.NoError(t, err)
	m.closeDelay = 0
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func staticEmbedder() embed.Embedder {
	return embed.NewStaticEmbedderWithDimensions(64)
}

// ============================================================================
// Build
// ============================================================================

func TestManager_BuildEmptyCorpusForce(t *testing.T) {
	// Given an empty corpus
	m := newTestManager(t, t.TempDir(), store.SliceSource(nil), staticEmbedder())

	// When forcing a build
	stats, err := m.Build(context.Background(), BuildOptions{Force: true})

	// Then the index is built with zero counts
	require.NoError(t, err)
	assert.True(t, stats.IndexBuilt)
	assert.Zero(t, stats.Cases)
	assert.Zero(t, stats.Chunks)
	assert.Zero(t, stats.Embedded)
	assert.Zero(t, stats.FacetTerms)
	assert.Empty(t, stats.Errors)
	require.NotNil(t, m.Current())
	assert.Equal(t, stats.SnapshotID, m.Current().ID)
}

func TestManager_BuildPublishesSnapshot(t *testing.T) {
	// Given a small corpus
	dir := t.TempDir()
	m := newTestManager(t, dir, store.SliceSource(testRecords()), staticEmbedder())

	// When building
	stats, err := m.Build(context.Background(), BuildOptions{})

	// Then every index is populated and the manifest names the generation
	require.NoError(t, err)
	assert.True(t, stats.IndexBuilt)
	assert.Equal(t, 3, stats.Cases)
	assert.Positive(t, stats.Chunks)
	assert.Equal(t, stats.Chunks, stats.Embedded)
	assert.Zero(t, stats.Unembedded)
	assert.Positive(t, stats.FacetTerms)

	man, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, stats.SnapshotID, man.Generation)
	assert.True(t, man.HasVector)
	assert.Equal(t, 3, man.Counts.Cases)

	snap := m.Current()
	require.NotNil(t, snap)
	rec, ok := snap.Record(1)
	require.True(t, ok)
	assert.Equal(t, "Ahmed vs State", rec.CaseTitle)
	assert.NotEmpty(t, snap.Chunks(1))
	require.NotNil(t, snap.Text)
	assert.Equal(t, stats.Chunks, snap.Text.Len())

	for _, name := range []string{lexicalFileName, facetFileName, "vector.gob"} {
		assert.FileExists(t, filepath.Join(generationDir(dir, man.Generation), name))
	}
}

func TestManager_BuildSkipsInvalidRecords(t *testing.T) {
	// Given one record without a case id
	records := append(testRecords(), store.CaseRecord{CaseTitle: "No id"})
	m := newTestManager(t, t.TempDir(), store.SliceSource(records), staticEmbedder())

	// When building
	stats, err := m.Build(context.Background(), BuildOptions{})

	// Then the invalid record is reported and the rest indexed
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Cases)
	assert.Equal(t, 1, stats.Skipped)
	assert.Len(t, stats.Errors, 1)
}

func TestManager_BuildIsIncremental(t *testing.T) {
	// Given a built index
	m := newTestManager(t, t.TempDir(), store.SliceSource(testRecords()), staticEmbedder())
	first, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	assert.Zero(t, first.Reused)

	// When rebuilding an unchanged corpus
	second, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	// Then every case is reused and a new generation is served
	assert.Equal(t, 3, second.Reused)
	assert.NotEqual(t, first.SnapshotID, second.SnapshotID)

	// When forcing
	forced, err := m.Build(context.Background(), BuildOptions{Force: true})
	require.NoError(t, err)

	// Then nothing is reused
	assert.Zero(t, forced.Reused)
}

func TestManager_BuildWithoutEmbeddings(t *testing.T) {
	tests := []struct {
		name     string
		embedder embed.Embedder
	}{
		{name: "no embedder", embedder: nil},
		{name: "provider down", embedder: failingEmbedder{Embedder: staticEmbedder()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a build whose vector index cannot be produced
			m := newTestManager(t, t.TempDir(), store.SliceSource(testRecords()), tt.embedder)

			// When building
			stats, err := m.Build(context.Background(), BuildOptions{})

			// Then the snapshot is still published, lexical only
			require.NoError(t, err)
			assert.True(t, stats.IndexBuilt)
			assert.Zero(t, stats.Embedded)
			assert.Equal(t, stats.Chunks, stats.Unembedded)
			snap := m.Current()
			require.NotNil(t, snap)
			assert.Nil(t, snap.Vector)
			assert.Nil(t, snap.Chunks(1))
			assert.False(t, snap.Manifest.HasVector)
			require.NotNil(t, snap.Text)
			assert.Positive(t, snap.Text.Len())
			if tt.embedder != nil {
				assert.NotEmpty(t, stats.Errors)
			}
		})
	}
}

func TestManager_RebuildDuringProviderOutageKeepsEmbeddings(t *testing.T) {
	// Given an index built while the provider was healthy
	emb := &switchEmbedder{Embedder: staticEmbedder()}
	src := &mutableSource{records: testRecords()}
	m := newTestManager(t, t.TempDir(), src, emb)
	first, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, first.Embedded)

	// When the provider goes down and a new case is added
	emb.down.Store(true)
	src.set(append(testRecords(), store.CaseRecord{CaseID: 4, CaseNumber: "W.P. 77/2025",
		CaseTitle: "Farooq vs Federation", FullText: "writ petition against the federation"}))
	stats, err := m.Build(context.Background(), BuildOptions{})

	// Then the unchanged cases keep their vectors and the new one waits
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Cases)
	assert.Equal(t, 3, stats.Embedded)
	assert.Equal(t, 1, stats.Unembedded)
	assert.NotEmpty(t, stats.Errors)
	snap := m.Current()
	require.NotNil(t, snap)
	require.NotNil(t, snap.Vector)
	assert.True(t, snap.Manifest.HasVector)
	assert.Equal(t, 4, snap.Vector.Len())

	// And the next healthy build embeds only the new case
	emb.down.Store(false)
	healed, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, healed.Embedded)
	assert.Zero(t, healed.Unembedded)
}

func TestManager_RebuildDuringProviderOutageCarriesVectorIndex(t *testing.T) {
	// Given an index built while the provider was healthy
	emb := &switchEmbedder{Embedder: staticEmbedder()}
	src := &mutableSource{records: testRecords()}
	m := newTestManager(t, t.TempDir(), src, emb)
	_, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	prev := m.Current().Vector
	require.NotNil(t, prev)

	// When every case changes while the provider is down
	emb.down.Store(true)
	changed := testRecords()
	for i := range changed {
		changed[i].FullText += " amended"
	}
	src.set(changed)
	stats, err := m.Build(context.Background(), BuildOptions{})

	// Then the previous vector index keeps serving
	require.NoError(t, err)
	assert.NotEmpty(t, stats.Errors)
	snap := m.Current()
	require.NotNil(t, snap)
	assert.Same(t, prev, snap.Vector)
	assert.True(t, snap.Manifest.HasVector)
	assert.Equal(t, 3, stats.Embedded)
}

func TestManager_BuildInProgress(t *testing.T) {
	// Given a build already running
	m := newTestManager(t, t.TempDir(), store.SliceSource(testRecords()), nil)
	m.building.Store(true)

	// When another build starts
	_, err := m.Build(context.Background(), BuildOptions{})

	// Then it is rejected
	require.Error(t, err)
	assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeBuildInProgress))
}

func TestManager_BuildLockedByAnotherProcess(t *testing.T) {
	// Given the data directory locked by another holder
	dir := t.TempDir()
	other := NewBuildLock(dir)
	ok, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer other.Unlock()
	m := newTestManager(t, dir, store.SliceSource(testRecords()), nil)

	// When building
	_, err = m.Build(context.Background(), BuildOptions{})

	// Then the build is rejected
	require.Error(t, err)
	assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeBuildInProgress))
}

func TestManager_CancelledBuildKeepsSnapshot(t *testing.T) {
	// Given a served snapshot
	m := newTestManager(t, t.TempDir(), store.SliceSource(testRecords()), staticEmbedder())
	stats, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	// When a rebuild is cancelled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Build(ctx, BuildOptions{Force: true})

	// Then the previous snapshot is still served
	require.Error(t, err)
	assert.Equal(t, stats.SnapshotID, m.Current().ID)
	assert.False(t, m.Building())
}

func TestManager_PrunesOldGenerations(t *testing.T) {
	// Given two successive builds
	dir := t.TempDir()
	m := newTestManager(t, dir, store.SliceSource(testRecords()), nil)
	_, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	second, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	// Then only the latest generation remains
	entries, err := os.ReadDir(filepath.Join(dir, snapshotsDirName))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, second.SnapshotID, entries[0].Name())
}

// ============================================================================
// Load / Ensure
// ============================================================================

func TestManager_LoadMissingIndex(t *testing.T) {
	m := newTestManager(t, t.TempDir(), store.SliceSource(testRecords()), nil)

	_, err := m.Load(context.Background())

	require.Error(t, err)
	assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeIndexNotBuilt))
	assert.Nil(t, m.Current())
}

func TestManager_LoadRoundTrip(t *testing.T) {
	// Given an index built by one manager
	dir := t.TempDir()
	builder := newTestManager(t, dir, store.SliceSource(testRecords()), staticEmbedder())
	stats, err := builder.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	// When another manager loads it
	reader := newTestManager(t, dir, store.SliceSource(testRecords()), staticEmbedder())
	snap, err := reader.Load(context.Background())
	require.NoError(t, err)

	// Then it serves the same generation with identical rankings
	assert.Equal(t, stats.SnapshotID, snap.ID)
	require.NotNil(t, snap.Vector)
	assert.Equal(t, stats.Chunks, snap.Text.Len())

	q := query.Normalize("bail 497 crpc")
	want := builder.Current().Lexical.Search(q, lexical.SearchOptions{Limit: 10})
	got := snap.Lexical.Search(q, lexical.SearchOptions{Limit: 10})
	require.NotEmpty(t, want)
	assert.Equal(t, want, got)

	// When loading again
	again, err := reader.Load(context.Background())

	// Then the served snapshot is reused
	require.NoError(t, err)
	assert.Same(t, snap, again)
}

func TestManager_EnsureLazyBuild(t *testing.T) {
	// Given no index on disk
	m := newTestManager(t, t.TempDir(), store.SliceSource(testRecords()), nil)

	// When a query ensures an index
	snap, err := m.Ensure(context.Background())

	// Then one is built
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 3, snap.Lexical.Len())
}

func TestManager_EnsureLazyBuildDisabled(t *testing.T) {
	// Given lazy builds disabled
	cfg := config.NewConfig()
	off := false
	cfg.Search.LazyBuild = &off
	m, err := NewManager(Options{DataDir: t.TempDir(), Source: store.SliceSource(testRecords()), Config: cfg})
	require.NoError(t, err)

	// When ensuring
	_, err = m.Ensure(context.Background())

	// Then the caller learns the index is not built
	require.Error(t, err)
	assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeIndexNotBuilt))
}

func TestManager_EnsureRebuildsUnreadableSnapshot(t *testing.T) {
	// Given a snapshot whose lexical file is corrupted
	dir := t.TempDir()
	builder := newTestManager(t, dir, store.SliceSource(testRecords()), nil)
	stats, err := builder.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	path := filepath.Join(generationDir(dir, stats.SnapshotID), lexicalFileName)
	require.NoError(t, os.WriteFile(path, []byte("not a gob"), 0644))

	m := newTestManager(t, dir, store.SliceSource(testRecords()), nil)
	_, err = m.Load(context.Background())
	require.Error(t, err)

	// When ensuring
	snap, err := m.Ensure(context.Background())

	// Then a fresh generation is built and served
	require.NoError(t, err)
	assert.NotEqual(t, stats.SnapshotID, snap.ID)
	assert.Equal(t, 3, snap.Lexical.Len())
}

func TestManager_Status(t *testing.T) {
	m := newTestManager(t, t.TempDir(), store.SliceSource(testRecords()), staticEmbedder())

	st := m.Status()
	assert.False(t, st.Built)

	stats, err := m.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	st = m.Status()
	assert.True(t, st.Built)
	assert.False(t, st.Building)
	assert.Equal(t, stats.SnapshotID, st.SnapshotID)
	assert.True(t, st.HasVector)
	assert.Equal(t, "flat", st.Backend)
	assert.Equal(t, 3, st.Counts.Cases)
}

func TestNewManager_RequiresDataDirAndSource(t *testing.T) {
	_, err := NewManager(Options{Source: store.SliceSource(nil)})
	assert.Error(t, err)

	_, err = NewManager(Options{DataDir: t.TempDir()})
	assert.Error(t, err)
}

// ============================================================================
// Manifest / Lock / Watch
// ============================================================================

func TestReadManifest_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid json", content: "{"},
		{name: "wrong version", content: `{"version": 99, "generation": "x"}`},
		{name: "no generation", content: `{"version": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(manifestPath(dir), []byte(tt.content), 0644))

			_, err := ReadManifest(dir)

			require.Error(t, err)
			assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeCorruptSnapshot))
		})
	}
}

func TestBuildLock_Exclusive(t *testing.T) {
	dir := t.TempDir()
	a := NewBuildLock(dir)
	b := NewBuildLock(dir)

	ok, err := a.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, a.IsLocked())

	ok, err = b.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, b.IsLocked())

	require.NoError(t, a.Unlock())
	require.NoError(t, a.Unlock())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Lock(ctx))
	assert.True(t, b.IsLocked())
	require.NoError(t, b.Unlock())
	assert.Equal(t, filepath.Join(dir, "build.lock"), b.Path())
}

func TestManager_WatchReloadsNewGeneration(t *testing.T) {
	// Given a reader serving the first generation
	dir := t.TempDir()
	writer := newTestManager(t, dir, store.SliceSource(testRecords()), nil)
	_, err := writer.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	reader := newTestManager(t, dir, store.SliceSource(testRecords()), nil)
	_, err = reader.Load(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reader.Watch(ctx, 20*time.Millisecond) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()
	// Let the watcher register before the manifest changes.
	time.Sleep(50 * time.Millisecond)

	// When the writer publishes a new generation
	stats, err := writer.Build(context.Background(), BuildOptions{Force: true})
	require.NoError(t, err)

	// Then the reader swaps to it
	require.Eventually(t, func() bool {
		return reader.Current().ID == stats.SnapshotID
	}, 5*time.Second, 20*time.Millisecond)
}
