package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the write and rename of one manifest update.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watch reloads the served snapshot whenever another process publishes a
// new manifest generation in the data directory. It blocks until ctx is
// done. Reload failures are logged and the current snapshot stays served.
func (m *Manager) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(m.opts.DataDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", m.opts.DataDir, err)
	}
	slog.Debug("index_watch_started", slog.String("data_dir", m.opts.DataDir))

	// Timer starts stopped; it is armed by the first manifest event.
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != manifestFileName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("index_watch_error", slog.String("error", err.Error()))
		case <-timer.C:
			m.reloadIfStale(ctx)
		}
	}
}

// reloadIfStale loads the manifest's generation when it differs from the
// served one. Builds in this process swap their own snapshot.
func (m *Manager) reloadIfStale(ctx context.Context) {
	if m.building.Load() {
		return
	}
	man, err := ReadManifest(m.opts.DataDir)
	if err != nil {
		slog.Debug("index_watch_manifest_unreadable", slog.String("error", err.Error()))
		return
	}
	if cur := m.Current(); cur != nil && cur.ID == man.Generation {
		return
	}
	snap, err := m.Load(ctx)
	if err != nil {
		slog.Warn("index_reload_failed",
			slog.String("generation", man.Generation),
			slog.String("error", err.Error()))
		return
	}
	slog.Info("index_reloaded", slog.String("snapshot_id", snap.ID))
}
