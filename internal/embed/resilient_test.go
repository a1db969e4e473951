package embed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
)

func fastResilientConfig() ResilientConfig {
	return ResilientConfig{
		Retry: cserrors.RetryConfig{
			MaxRetries:   2,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
		MaxFailures:  3,
		ResetTimeout: time.Hour,
	}
}

// ============================================================================
// Retry
// ============================================================================

func TestResilientEmbedder_RetriesTransientErrors(t *testing.T) {
	// Given: a provider that is unavailable for two calls
	inner := newMockEmbedder(8)
	inner.failFirst = 2
	inner.failWith = cserrors.New(cserrors.ErrCodeProviderUnavailable, "down", nil)
	r := NewResilientEmbedder(inner, fastResilientConfig())

	// When: embedding
	out, err := r.EmbedBatch(context.Background(), []string{"a", "b"})

	// Then: the third attempt succeeds
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, int64(3), inner.batchCalls.Load())
}

func TestResilientEmbedder_DoesNotRetryPermanentErrors(t *testing.T) {
	inner := newMockEmbedder(8)
	inner.failAlways = true
	inner.failWith = cserrors.New(cserrors.ErrCodeDimensionMismatch, "bad dims", nil)
	r := NewResilientEmbedder(inner, fastResilientConfig())

	_, err := r.Embed(context.Background(), "a")

	require.Error(t, err)
	assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeDimensionMismatch))
	assert.Equal(t, int64(1), inner.embedCalls.Load())
}

// ============================================================================
// Circuit breaker
// ============================================================================

func TestResilientEmbedder_CircuitOpensAndFailsFast(t *testing.T) {
	// Given: a provider that always times out
	inner := newMockEmbedder(8)
	inner.failAlways = true
	inner.failWith = cserrors.New(cserrors.ErrCodeProviderTimeout, "slow", nil)
	r := NewResilientEmbedder(inner, fastResilientConfig())

	// When: the first call exhausts its retries (3 attempts = 3 failures)
	_, err := r.Embed(context.Background(), "a")
	require.Error(t, err)
	require.Equal(t, cserrors.StateOpen, r.CircuitState())

	// Then: later calls fail fast without reaching the provider
	calls := inner.embedCalls.Load()
	_, err = r.Embed(context.Background(), "b")
	require.Error(t, err)
	assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeProviderUnavailable))
	assert.ErrorIs(t, err, cserrors.ErrCircuitOpen)
	assert.Equal(t, calls, inner.embedCalls.Load())
	assert.False(t, r.Available(context.Background()))
}

// ============================================================================
// Rate limit
// ============================================================================

func TestResilientEmbedder_RateLimitHonoursContext(t *testing.T) {
	// Given: one request per minute and the single token spent
	cfg := fastResilientConfig()
	cfg.RequestsPerSecond = 1.0 / 60
	cfg.Burst = 1
	r := NewResilientEmbedder(newMockEmbedder(8), cfg)
	_, err := r.Embed(context.Background(), "first")
	require.NoError(t, err)

	// When: a second call has a short deadline
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Embed(ctx, "second")

	// Then: it gives up instead of waiting a minute
	assert.Error(t, err)
}

func TestResilientEmbedder_Passthrough(t *testing.T) {
	inner := newMockEmbedder(16)
	r := NewResilientEmbedder(inner, DefaultResilientConfig())
	assert.Equal(t, 16, r.Dimensions())
	assert.Equal(t, "mock-model", r.ModelName())
	assert.True(t, r.Available(context.Background()))
	out, err := r.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, r.Close())
}
