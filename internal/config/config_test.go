package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty temp dir.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

// =============================================================================
// Defaults
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)

	assert.Equal(t, "hybrid", cfg.Search.DefaultMode)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxLimit)
	assert.True(t, cfg.Search.LazyBuildEnabled())

	assert.Equal(t, 1.5, cfg.Lexical.K1)
	assert.Equal(t, 0.75, cfg.Lexical.B)
	assert.Equal(t, 3, cfg.Lexical.RerankFactor)
	assert.Equal(t, 3.0, cfg.Lexical.FieldWeights["case_number"])
	assert.Equal(t, 1.2, cfg.Lexical.FieldWeights["keywords"])

	assert.Equal(t, "flat", cfg.Vector.Backend)
	assert.Equal(t, 512, cfg.Vector.ChunkSize)
	assert.Equal(t, 50, cfg.Vector.ChunkOverlap)

	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 256, cfg.Embeddings.Dimensions)

	assert.Equal(t, 300, cfg.Snippet.MaxLength)
	assert.Equal(t, 3, cfg.Snippet.MaxPerResult)
	assert.Equal(t, 50, cfg.Facets.MaxValues)
	assert.Equal(t, 10, cfg.Facets.SuggestLimit)
	assert.False(t, cfg.Telemetry.Disabled)

	require.NoError(t, cfg.Validate())
}

func TestDefaultRankingConfig_Values(t *testing.T) {
	r := DefaultRankingConfig()

	assert.Equal(t, 0.6, r.SemanticWeight)
	assert.Equal(t, 0.4, r.LexicalWeight)
	assert.Equal(t, 3.0, r.ExactMatchBoost)
	assert.Equal(t, 2.0, r.CitationBoost)
	assert.Equal(t, 1.5, r.LegalTermBoost)
	assert.Equal(t, 0.3, r.FilterAlignmentBoost)
	assert.Equal(t, 5.0, r.MaxBoost)
	assert.Equal(t, 0.1, r.RecencyDecayFactor)
	assert.Equal(t, 0.5, r.MMRLambda)
	assert.Equal(t, 0.1, r.RelevanceThreshold)
	assert.Equal(t, 0.45, r.ScoreDropThreshold)
	assert.True(t, r.UseDynamicWeights())
}

// =============================================================================
// Layering
// =============================================================================

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	// Given: a project config overriding a few values
	yaml := `
search:
  default_limit: 10
lexical:
  field_weights:
    title: 2.5
ranking:
  max_boost: 4
telemetry:
  disabled: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte(yaml), 0o644))

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: overrides apply, everything else keeps defaults
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 2.5, cfg.Lexical.FieldWeights["title"])
	assert.Equal(t, 3.0, cfg.Lexical.FieldWeights["case_number"])
	assert.Equal(t, 4.0, cfg.Ranking.MaxBoost)
	assert.Equal(t, 3.0, cfg.Ranking.ExactMatchBoost)
	assert.True(t, cfg.Telemetry.Disabled)
	assert.Equal(t, filepath.Join(dir, ".casesearch"), cfg.Paths.DataDir)
}

func TestLoad_UserConfigBelowProject(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "casesearch"), 0o755))
	require.NoError(t, os.WriteFile(GetUserConfigPath(), []byte("vector:\n  backend: hnsw\nsearch:\n  default_limit: 5\n"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".casesearch.yml"), []byte("search:\n  default_limit: 7\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "hnsw", cfg.Vector.Backend)
	assert.Equal(t, 7, cfg.Search.DefaultLimit)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte("embeddings:\n  provider: static\n"), 0o644))

	t.Setenv("CASESEARCH_EMBEDDINGS_PROVIDER", "ollama")
	t.Setenv("CASESEARCH_LEXICAL_WEIGHT", "0.3")
	t.Setenv("CASESEARCH_SEMANTIC_WEIGHT", "0.7")
	t.Setenv("CASESEARCH_DATA_DIR", "/var/lib/casesearch")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, 0.3, cfg.Ranking.LexicalWeight)
	assert.Equal(t, 0.7, cfg.Ranking.SemanticWeight)
	assert.Equal(t, "/var/lib/casesearch", cfg.Paths.DataDir)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte("search: [unclosed"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte("ranking:\n  lexical_weight: 0.9\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must equal 1.0")
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Search.DefaultMode = "fuzzy" }, "default_mode"},
		{"default above max", func(c *Config) { c.Search.DefaultLimit = 500 }, "exceeds"},
		{"bad b", func(c *Config) { c.Lexical.B = 1.5 }, "lexical.b"},
		{"negative field weight", func(c *Config) { c.Lexical.FieldWeights["title"] = -1 }, "field_weights.title"},
		{"bad backend", func(c *Config) { c.Vector.Backend = "faiss" }, "vector.backend"},
		{"overlap too large", func(c *Config) { c.Vector.ChunkOverlap = 512 }, "chunk_overlap"},
		{"suggest limit above cap", func(c *Config) { c.Facets.SuggestLimit = 50 }, "suggest_limit"},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "mlx" }, "embeddings.provider"},
		{"negative boost", func(c *Config) { c.Ranking.CitationBoost = -1 }, "citation_boost"},
		{"lambda out of range", func(c *Config) { c.Ranking.MMRLambda = 1.2 }, "mmr_lambda"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "trace" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	cfg := NewConfig()
	cfg.Search.DefaultLimit = 15
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectConfigName)))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 15, loaded.Search.DefaultLimit)
	assert.Equal(t, cfg.Ranking.ScoreDropThreshold, loaded.Ranking.ScoreDropThreshold)
}

// =============================================================================
// RankingHolder
// =============================================================================

func TestRankingHolder_SwapReplacesWholeConfig(t *testing.T) {
	// Given: a holder with defaults
	h, err := NewRankingHolder(DefaultRankingConfig())
	require.NoError(t, err)
	before := h.Load()

	// When: a new config is swapped in
	next := DefaultRankingConfig()
	next.MaxBoost = 4
	installed, err := h.Swap(next)
	require.NoError(t, err)

	// Then: readers see the new object with a bumped version; the old one is unchanged
	assert.Equal(t, 4.0, h.Load().MaxBoost)
	assert.Equal(t, before.Version+1, installed.Version)
	assert.Equal(t, 5.0, before.MaxBoost)
}

func TestRankingHolder_RejectsInvalidSwap(t *testing.T) {
	h, err := NewRankingHolder(DefaultRankingConfig())
	require.NoError(t, err)

	bad := DefaultRankingConfig()
	bad.SemanticWeight = 0.9

	_, err = h.Swap(bad)
	require.Error(t, err)
	assert.Equal(t, 0.6, h.Load().SemanticWeight)
	assert.Equal(t, 1, h.Load().Version)
}

func TestRankingHolder_ConcurrentSwapsAreSerialized(t *testing.T) {
	h, err := NewRankingHolder(DefaultRankingConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.Swap(DefaultRankingConfig())
			_ = h.Load().MaxBoost
		}()
	}
	wg.Wait()

	assert.Equal(t, 21, h.Load().Version)
}

// =============================================================================
// Backups
// =============================================================================

func TestBackupFile_KeepsNewestThree(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProjectConfigName)

	none, err := BackupFile(path)
	require.NoError(t, err)
	assert.Empty(t, none)

	// Given: a config file with five older backups
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path+BackupSuffix+".20200101-00000"+string(rune('0'+i))+".000", []byte("x"), 0o644))
	}

	backup, err := BackupFile(path)
	require.NoError(t, err)
	assert.FileExists(t, backup)

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
	assert.Equal(t, backup, backups[0])
}
