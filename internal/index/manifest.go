package index

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
)

// ManifestVersion is bumped whenever the snapshot layout changes.
const ManifestVersion = 1

// Data directory layout.
const (
	manifestFileName = "manifest.json"
	snapshotsDirName = "snapshots"
	lexicalFileName  = "lexical.gob"
	facetFileName    = "facet.gob"
)

// Counts summarizes a snapshot's contents.
type Counts struct {
	Cases      int `json:"cases"`
	Chunks     int `json:"chunks"`
	Embedded   int `json:"embedded"`
	Unembedded int `json:"unembedded"`
	FacetTerms int `json:"facet_terms"`
}

// Manifest names the active snapshot generation. It is rewritten atomically
// after every successful build; readers load whatever generation it names.
type Manifest struct {
	Version    int       `json:"version"`
	Generation string    `json:"generation"`
	BuiltAt    time.Time `json:"built_at"`
	Model      string    `json:"model,omitempty"`
	Backend    string    `json:"backend,omitempty"`
	HasVector  bool      `json:"has_vector"`
	Counts     Counts    `json:"counts"`
}

func manifestPath(dataDir string) string {
	return filepath.Join(dataDir, manifestFileName)
}

func generationDir(dataDir, generation string) string {
	return filepath.Join(dataDir, snapshotsDirName, generation)
}

// ReadManifest reads the manifest of a data directory. A missing manifest
// yields an IndexNotBuilt error.
func ReadManifest(dataDir string) (*Manifest, error) {
	path := manifestPath(dataDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cserrors.IndexNotBuiltError("no index has been built yet")
		}
		return nil, cserrors.PersistenceError(cserrors.ErrCodeSnapshotLoad, "failed to read manifest", err).
			WithDetail("path", path)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, cserrors.PersistenceError(cserrors.ErrCodeCorruptSnapshot, "manifest is not valid JSON", err).
			WithDetail("path", path)
	}
	if m.Version != ManifestVersion || m.Generation == "" {
		return nil, cserrors.PersistenceError(cserrors.ErrCodeCorruptSnapshot,
			fmt.Sprintf("manifest version %d generation %q is not loadable", m.Version, m.Generation), nil).
			WithDetail("path", path)
	}
	return &m, nil
}

// writeManifest replaces the manifest atomically.
func writeManifest(dataDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := manifestPath(dataDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// pruneGenerations removes every snapshot generation except keep.
func pruneGenerations(dataDir, keep string) {
	root := filepath.Join(dataDir, snapshotsDirName)
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			slog.Warn("snapshot_prune_failed",
				slog.String("generation", e.Name()),
				slog.String("error", err.Error()))
			continue
		}
		slog.Debug("snapshot_pruned", slog.String("generation", e.Name()))
	}
}
