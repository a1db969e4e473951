package embed

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
)

// ResilientConfig configures ResilientEmbedder.
type ResilientConfig struct {
	// RequestsPerSecond limits calls to the provider; zero or less means unlimited.
	RequestsPerSecond float64
	Burst             int
	Retry             cserrors.RetryConfig
	// MaxFailures consecutive failures open the circuit for ResetTimeout.
	MaxFailures  int
	ResetTimeout time.Duration
}

// DefaultResilientConfig returns 20 req/s, the default retry backoff and a
// circuit that opens after 5 failures for 30s.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		RequestsPerSecond: 20,
		Burst:             4,
		Retry:             cserrors.DefaultRetryConfig(),
		MaxFailures:       5,
		ResetTimeout:      30 * time.Second,
	}
}

// ResilientEmbedder wraps a provider with a rate limit, retries with
// backoff on transient errors, and a circuit breaker.
type ResilientEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
	retry   cserrors.RetryConfig
	breaker *cserrors.CircuitBreaker
}

var _ Embedder = (*ResilientEmbedder)(nil)

// NewResilientEmbedder wraps inner.
func NewResilientEmbedder(inner Embedder, cfg ResilientConfig) *ResilientEmbedder {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = shouldRetryEmbedding
	}

	opts := []cserrors.CircuitBreakerOption{
		cserrors.WithStateChange(func(name string, from, to cserrors.State) {
			slog.Warn("embedding_circuit_state_changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		}),
	}
	if cfg.MaxFailures > 0 {
		opts = append(opts, cserrors.WithMaxFailures(cfg.MaxFailures))
	}
	if cfg.ResetTimeout > 0 {
		opts = append(opts, cserrors.WithResetTimeout(cfg.ResetTimeout))
	}

	return &ResilientEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		retry:   cfg.Retry,
		breaker: cserrors.NewCircuitBreaker("embedder:"+inner.ModelName(), opts...),
	}
}

// shouldRetryEmbedding retries transient provider errors only. An open
// circuit and cancellation end the attempt at once.
func shouldRetryEmbedding(err error) bool {
	switch {
	case stderrors.Is(err, cserrors.ErrCircuitOpen),
		stderrors.Is(err, context.Canceled),
		stderrors.Is(err, context.DeadlineExceeded):
		return false
	}
	if ce, ok := cserrors.As(err); ok {
		return ce.Retryable
	}
	return true
}

func (r *ResilientEmbedder) call(ctx context.Context, fn func(ctx context.Context) ([][]float32, error)) ([][]float32, error) {
	return cserrors.RetryWithResult(ctx, r.retry, func() ([][]float32, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var out [][]float32
		err := r.breaker.Execute(func() error {
			var err error
			out, err = fn(ctx)
			return err
		})
		if stderrors.Is(err, cserrors.ErrCircuitOpen) {
			return nil, cserrors.New(cserrors.ErrCodeProviderUnavailable, "embedding provider circuit is open", err)
		}
		return out, err
	})
}

// Embed embeds one text.
func (r *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := r.call(ctx, func(ctx context.Context) ([][]float32, error) {
		vec, err := r.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return [][]float32{vec}, nil
	})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts as one provider call.
func (r *ResilientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return r.call(ctx, func(ctx context.Context) ([][]float32, error) {
		return r.inner.EmbedBatch(ctx, texts)
	})
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (r *ResilientEmbedder) Dimensions() int { return r.inner.Dimensions() }

// ModelName returns the model identifier (passthrough to inner).
func (r *ResilientEmbedder) ModelName() string { return r.inner.ModelName() }

// Available is false while the circuit is open.
func (r *ResilientEmbedder) Available(ctx context.Context) bool {
	return r.breaker.State() != cserrors.StateOpen && r.inner.Available(ctx)
}

// Close closes the inner embedder.
func (r *ResilientEmbedder) Close() error { return r.inner.Close() }

// CircuitState reports the breaker state.
func (r *ResilientEmbedder) CircuitState() cserrors.State { return r.breaker.State() }
