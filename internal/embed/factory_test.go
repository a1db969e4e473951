package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/casesearch/internal/config"
	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    ProviderType
		wantErr bool
	}{
		{"static", ProviderStatic, false},
		{" Ollama ", ProviderOllama, false},
		{"", ProviderStatic, false},
		{"mlx", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeConfigInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewEmbedder_StaticIsCached(t *testing.T) {
	cfg := config.NewConfig().Embeddings
	cfg.Dimensions = 32

	e, err := NewEmbedder(context.Background(), cfg)

	require.NoError(t, err)
	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	assert.Equal(t, 32, cached.Dimensions())
	assert.IsType(t, &StaticEmbedder{}, cached.Inner())
}

func TestNewEmbedder_OllamaIsResilient(t *testing.T) {
	srv := newFakeOllama(t, &fakeOllama{})
	cfg := config.NewConfig().Embeddings
	cfg.Provider = "ollama"
	cfg.OllamaHost = srv.URL
	cfg.Dimensions = 0
	cfg.CacheSize = -1

	e, err := NewEmbedder(context.Background(), cfg)

	require.NoError(t, err)
	r, ok := e.(*ResilientEmbedder)
	require.True(t, ok)
	assert.Equal(t, 4, r.Dimensions())
}
