// Package config loads casesearch configuration.
//
// Values are layered in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. User config ($XDG_CONFIG_HOME/casesearch/config.yaml)
//  3. Project config (.casesearch.yaml in the data root)
//  4. Environment variables (CASESEARCH_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the project-level config file name.
const ProjectConfigName = ".casesearch.yaml"

// Config represents the complete casesearch configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Lexical    LexicalConfig    `yaml:"lexical" json:"lexical"`
	Vector     VectorConfig     `yaml:"vector" json:"vector"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Ranking    RankingConfig    `yaml:"ranking" json:"ranking"`
	Snippet    SnippetConfig    `yaml:"snippet" json:"snippet"`
	Facets     FacetConfig      `yaml:"facets" json:"facets"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
}

// PathsConfig locates the index data and the case record source.
// Relative paths resolve against the directory passed to Load.
type PathsConfig struct {
	// DataDir holds snapshots, the manifest and the build lock.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// SourceDB is the SQLite database of ingested case records.
	SourceDB string `yaml:"source_db" json:"source_db"`
}

// SearchConfig configures the query API.
type SearchConfig struct {
	DefaultMode    string `yaml:"default_mode" json:"default_mode"`
	DefaultLimit   int    `yaml:"default_limit" json:"default_limit"`
	MaxLimit       int    `yaml:"max_limit" json:"max_limit"`
	CandidateLimit int    `yaml:"candidate_limit" json:"candidate_limit"`
	QueryCacheSize int    `yaml:"query_cache_size" json:"query_cache_size"`
	// LazyBuild builds the index on the first query when no snapshot exists.
	LazyBuild *bool `yaml:"lazy_build,omitempty" json:"lazy_build,omitempty"`
}

// LexicalConfig configures the per-field BM25 index.
type LexicalConfig struct {
	K1 float64 `yaml:"k1" json:"k1"`
	B  float64 `yaml:"b" json:"b"`
	// RerankFactor bounds exact-match multipliers to the top RerankFactor*k candidates.
	RerankFactor int                `yaml:"rerank_factor" json:"rerank_factor"`
	FieldWeights map[string]float64 `yaml:"field_weights" json:"field_weights"`
}

// VectorConfig configures chunking and the vector store backend.
type VectorConfig struct {
	// Backend is "flat" (exact, in process) or "hnsw".
	Backend      string `yaml:"backend" json:"backend"`
	ChunkSize    int    `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap" json:"chunk_overlap"`
	TopK         int    `yaml:"top_k" json:"top_k"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "static" (hash-based, offline) or "ollama".
	Provider          string  `yaml:"provider" json:"provider"`
	Model             string  `yaml:"model" json:"model"`
	OllamaHost        string  `yaml:"ollama_host" json:"ollama_host"`
	Dimensions        int     `yaml:"dimensions" json:"dimensions"`
	BatchSize         int     `yaml:"batch_size" json:"batch_size"`
	Workers           int     `yaml:"workers" json:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	CacheSize         int     `yaml:"cache_size" json:"cache_size"`
	Timeout           string  `yaml:"timeout" json:"timeout"`
}

// TimeoutDuration parses Timeout, defaulting to 30s.
func (e EmbeddingsConfig) TimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(e.Timeout); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// SnippetConfig configures snippet extraction.
type SnippetConfig struct {
	MaxLength    int  `yaml:"max_length" json:"max_length"`
	MinLength    int  `yaml:"min_length" json:"min_length"`
	ContextWords int  `yaml:"context_words" json:"context_words"`
	MaxPerResult int  `yaml:"max_per_result" json:"max_per_result"`
	// NoSynthesis skips the metadata summary snippet.
	NoSynthesis bool `yaml:"no_synthesis" json:"no_synthesis"`
}

// MaxSuggestLimit caps every suggestion list.
const MaxSuggestLimit = 10

// FacetConfig configures facet counts and suggestions.
type FacetConfig struct {
	MaxValues    int `yaml:"max_values" json:"max_values"`
	MinCount     int `yaml:"min_count" json:"min_count"`
	SuggestLimit int `yaml:"suggest_limit" json:"suggest_limit"`
}

// ServerConfig configures logging and the MCP transport.
type ServerConfig struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`
	Transport string `yaml:"transport" json:"transport"`
}

// TelemetryConfig toggles query telemetry. It is on unless disabled.
type TelemetryConfig struct {
	Disabled bool `yaml:"disabled" json:"disabled"`
}

// DefaultFieldWeights returns the lexical field weight table.
func DefaultFieldWeights() map[string]float64 {
	return map[string]float64{
		"case_number": 3.0,
		"title":       2.0,
		"parties":     1.5,
		"court":       1.0,
		"status":      0.5,
		"keywords":    1.2,
	}
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	lazy := true
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir:  ".casesearch",
			SourceDB: filepath.Join(".casesearch", "cases.db"),
		},
		Search: SearchConfig{
			DefaultMode:    "hybrid",
			DefaultLimit:   20,
			MaxLimit:       100,
			CandidateLimit: 200,
			QueryCacheSize: 512,
			LazyBuild:      &lazy,
		},
		Lexical: LexicalConfig{
			K1:           1.5,
			B:            0.75,
			RerankFactor: 3,
			FieldWeights: DefaultFieldWeights(),
		},
		Vector: VectorConfig{
			Backend:      "flat",
			ChunkSize:    512,
			ChunkOverlap: 50,
			TopK:         200,
		},
		Embeddings: EmbeddingsConfig{
			Provider:          "static",
			Model:             "nomic-embed-text",
			Dimensions:        256,
			BatchSize:         32,
			Workers:           4,
			RequestsPerSecond: 20,
			CacheSize:         4096,
			Timeout:           "30s",
		},
		Ranking: DefaultRankingConfig(),
		Snippet: SnippetConfig{
			MaxLength:    300,
			MinLength:    100,
			ContextWords: 20,
			MaxPerResult: 3,
		},
		Facets: FacetConfig{
			MaxValues:    50,
			MinCount:     1,
			SuggestLimit: 10,
		},
		Server: ServerConfig{
			LogLevel:  "info",
			Transport: "stdio",
		},
	}
}

// LazyBuildEnabled reports whether queries may trigger a first build.
func (s SearchConfig) LazyBuildEnabled() bool {
	return s.LazyBuild == nil || *s.LazyBuild
}

// GetUserConfigPath returns the user config path following XDG:
//   - $XDG_CONFIG_HOME/casesearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/casesearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "casesearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "casesearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "casesearch", "config.yaml")
}

// loadUserConfig returns nil, nil when no user config exists.
func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}

	var parsed Config
	if err := parseYAMLFile(path, &parsed); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return &parsed, nil
}

// Load loads configuration for the data root dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile merges .casesearch.yaml or .casesearch.yml from dir, if present.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{ProjectConfigName, ".casesearch.yml"} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		var parsed Config
		if err := parseYAMLFile(path, &parsed); err != nil {
			return err
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

func parseYAMLFile(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	mergeString(&c.Paths.DataDir, other.Paths.DataDir)
	mergeString(&c.Paths.SourceDB, other.Paths.SourceDB)

	mergeString(&c.Search.DefaultMode, other.Search.DefaultMode)
	mergeInt(&c.Search.DefaultLimit, other.Search.DefaultLimit)
	mergeInt(&c.Search.MaxLimit, other.Search.MaxLimit)
	mergeInt(&c.Search.CandidateLimit, other.Search.CandidateLimit)
	mergeInt(&c.Search.QueryCacheSize, other.Search.QueryCacheSize)
	if other.Search.LazyBuild != nil {
		c.Search.LazyBuild = other.Search.LazyBuild
	}

	mergeFloat(&c.Lexical.K1, other.Lexical.K1)
	mergeFloat(&c.Lexical.B, other.Lexical.B)
	mergeInt(&c.Lexical.RerankFactor, other.Lexical.RerankFactor)
	for field, w := range other.Lexical.FieldWeights {
		c.Lexical.FieldWeights[field] = w
	}

	mergeString(&c.Vector.Backend, other.Vector.Backend)
	mergeInt(&c.Vector.ChunkSize, other.Vector.ChunkSize)
	mergeInt(&c.Vector.ChunkOverlap, other.Vector.ChunkOverlap)
	mergeInt(&c.Vector.TopK, other.Vector.TopK)

	mergeString(&c.Embeddings.Provider, other.Embeddings.Provider)
	mergeString(&c.Embeddings.Model, other.Embeddings.Model)
	mergeString(&c.Embeddings.OllamaHost, other.Embeddings.OllamaHost)
	mergeInt(&c.Embeddings.Dimensions, other.Embeddings.Dimensions)
	mergeInt(&c.Embeddings.BatchSize, other.Embeddings.BatchSize)
	mergeInt(&c.Embeddings.Workers, other.Embeddings.Workers)
	mergeFloat(&c.Embeddings.RequestsPerSecond, other.Embeddings.RequestsPerSecond)
	mergeInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)
	mergeString(&c.Embeddings.Timeout, other.Embeddings.Timeout)

	c.Ranking.mergeWith(&other.Ranking)

	mergeInt(&c.Snippet.MaxLength, other.Snippet.MaxLength)
	mergeInt(&c.Snippet.MinLength, other.Snippet.MinLength)
	mergeInt(&c.Snippet.ContextWords, other.Snippet.ContextWords)
	mergeInt(&c.Snippet.MaxPerResult, other.Snippet.MaxPerResult)
	c.Snippet.NoSynthesis = c.Snippet.NoSynthesis || other.Snippet.NoSynthesis

	mergeInt(&c.Facets.MaxValues, other.Facets.MaxValues)
	mergeInt(&c.Facets.MinCount, other.Facets.MinCount)
	mergeInt(&c.Facets.SuggestLimit, other.Facets.SuggestLimit)

	mergeString(&c.Server.LogLevel, other.Server.LogLevel)
	mergeString(&c.Server.Transport, other.Server.Transport)

	c.Telemetry.Disabled = c.Telemetry.Disabled || other.Telemetry.Disabled
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies CASESEARCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CASESEARCH_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("CASESEARCH_SOURCE_DB"); v != "" {
		c.Paths.SourceDB = v
	}
	if v := os.Getenv("CASESEARCH_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CASESEARCH_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CASESEARCH_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("CASESEARCH_VECTOR_BACKEND"); v != "" {
		c.Vector.Backend = v
	}
	// Explicit zero weights are allowed via env.
	if v := os.Getenv("CASESEARCH_LEXICAL_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Ranking.LexicalWeight = w
		}
	}
	if v := os.Getenv("CASESEARCH_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Ranking.SemanticWeight = w
		}
	}
	if v := os.Getenv("CASESEARCH_MAX_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxLimit = n
		}
	}
	if v := os.Getenv("CASESEARCH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("CASESEARCH_TELEMETRY"); v != "" {
		c.Telemetry.Disabled = !(strings.ToLower(v) == "true" || v == "1")
	}
}

// resolvePaths anchors relative paths at dir.
func (c *Config) resolvePaths(dir string) {
	if dir == "" {
		return
	}
	if !filepath.IsAbs(c.Paths.DataDir) {
		c.Paths.DataDir = filepath.Join(dir, c.Paths.DataDir)
	}
	if !filepath.IsAbs(c.Paths.SourceDB) {
		c.Paths.SourceDB = filepath.Join(dir, c.Paths.SourceDB)
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	validModes := map[string]bool{"lexical": true, "semantic": true, "hybrid": true}
	if !validModes[c.Search.DefaultMode] {
		return fmt.Errorf("search.default_mode must be 'lexical', 'semantic' or 'hybrid', got %s", c.Search.DefaultMode)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit <= 0 {
		return fmt.Errorf("search limits must be positive, got default=%d max=%d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) exceeds search.max_limit (%d)", c.Search.DefaultLimit, c.Search.MaxLimit)
	}

	if c.Lexical.K1 <= 0 {
		return fmt.Errorf("lexical.k1 must be positive, got %f", c.Lexical.K1)
	}
	if c.Lexical.B < 0 || c.Lexical.B > 1 {
		return fmt.Errorf("lexical.b must be between 0 and 1, got %f", c.Lexical.B)
	}
	for field, w := range c.Lexical.FieldWeights {
		if w < 0 {
			return fmt.Errorf("lexical.field_weights.%s must be non-negative, got %f", field, w)
		}
	}

	validBackends := map[string]bool{"flat": true, "hnsw": true}
	if !validBackends[strings.ToLower(c.Vector.Backend)] {
		return fmt.Errorf("vector.backend must be 'flat' or 'hnsw', got %s", c.Vector.Backend)
	}
	if c.Vector.ChunkSize <= 0 {
		return fmt.Errorf("vector.chunk_size must be positive, got %d", c.Vector.ChunkSize)
	}
	if c.Vector.ChunkOverlap < 0 || c.Vector.ChunkOverlap >= c.Vector.ChunkSize {
		return fmt.Errorf("vector.chunk_overlap must be in [0, chunk_size), got %d", c.Vector.ChunkOverlap)
	}

	validProviders := map[string]bool{"static": true, "ollama": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'static' or 'ollama', got %s", c.Embeddings.Provider)
	}
	if c.Facets.SuggestLimit <= 0 || c.Facets.SuggestLimit > MaxSuggestLimit {
		return fmt.Errorf("facets.suggest_limit must be in [1, %d], got %d", MaxSuggestLimit, c.Facets.SuggestLimit)
	}

	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	if err := c.Ranking.Validate(); err != nil {
		return err
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
