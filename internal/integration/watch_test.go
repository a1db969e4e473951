package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/casesearch/internal/config"
	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
	"github.com/Aman-CERP/casesearch/internal/index"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// Watch tests run a serving manager and a building manager over one data
// directory, the way 'casesearch serve' and 'casesearch index' share it.

func newManager(t *testing.T, dataDir string, src store.CaseSource) *index.Manager {
	t.Helper()
	m, err := index.NewManager(index.Options{DataDir: dataDir, Source: src, Config: config.NewConfig()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestWatch_ServerPicksUpPublishedSnapshot(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given a serving manager watching an empty data directory
	dataDir := filepath.Join(t.TempDir(), "index")
	records := store.SliceSource{
		{CaseID: 1, CaseNumber: "Crl. Misc. 2/2025", CaseTitle: "Ahmed vs State", FullText: "post arrest bail"},
	}
	builder := newManager(t, dataDir, records)
	server := newManager(t, dataDir, records)

	// The first build creates the directory the watcher needs.
	_, err := builder.Build(context.Background(), index.BuildOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- server.Watch(ctx, 50*time.Millisecond) }()

	// Wait for watcher to initialize
	time.Sleep(200 * time.Millisecond)

	// When the builder publishes a new generation
	stats, err := builder.Build(context.Background(), index.BuildOptions{Force: true})
	require.NoError(t, err)

	// Then the server swaps it in without a restart
	require.Eventually(t, func() bool {
		cur := server.Current()
		return cur != nil && cur.ID == stats.SnapshotID
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWatch_MissingDirectory(t *testing.T) {
	m := newManager(t, filepath.Join(t.TempDir(), "absent"), store.SliceSource(nil))

	err := m.Watch(context.Background(), 0)

	require.Error(t, err)
}

func TestLoad_NotBuilt(t *testing.T) {
	m := newManager(t, t.TempDir(), store.SliceSource(nil))

	_, err := m.Load(context.Background())

	require.Error(t, err)
	assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeIndexNotBuilt))
}
