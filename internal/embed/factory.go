package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/casesearch/internal/config"
	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
)

// ProviderType identifies an embedding provider.
type ProviderType string

const (
	// ProviderStatic is the hash-based offline embedder.
	ProviderStatic ProviderType = "static"

	// ProviderOllama calls a local or remote Ollama server.
	ProviderOllama ProviderType = "ollama"
)

// ParseProvider validates a provider name.
func ParseProvider(s string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderStatic, ProviderOllama:
		return p, nil
	case "":
		return ProviderStatic, nil
	default:
		return "", cserrors.ConfigError(fmt.Sprintf("unknown embeddings provider %q (want static or ollama)", s), nil)
	}
}

// NewEmbedder builds the configured provider. Remote providers are wrapped
// in a ResilientEmbedder, and every provider gets an LRU cache unless the
// cache size is negative.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	var embedder Embedder
	switch provider {
	case ProviderOllama:
		ollama, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.TimeoutDuration(),
		})
		if err != nil {
			return nil, err
		}
		rc := DefaultResilientConfig()
		rc.RequestsPerSecond = cfg.RequestsPerSecond
		embedder = NewResilientEmbedder(ollama, rc)
	default:
		embedder = NewStaticEmbedderWithDimensions(cfg.Dimensions)
	}

	slog.Info("embedder_created",
		slog.String("provider", string(provider)),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))

	if cfg.CacheSize >= 0 {
		embedder = NewCachedEmbedder(embedder, cfg.CacheSize)
	}
	return embedder, nil
}
