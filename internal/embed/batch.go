package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
)

// BatchResult holds one vector per input text. Vectors[i] is nil when the
// batch containing text i failed.
type BatchResult struct {
	Vectors [][]float32
	Failed  int
	Errors  []error
}

// BatchRunner embeds large text sets in fixed-size batches on a bounded
// worker pool. A failed batch is recorded and the rest continue.
type BatchRunner struct {
	embedder  Embedder
	pool      *ants.Pool
	batchSize int
}

// NewBatchRunner creates a runner with the given worker count and batch size.
func NewBatchRunner(embedder Embedder, workers, batchSize int) (*BatchRunner, error) {
	if workers < 1 {
		workers = 1
	}
	if batchSize < MinBatchSize {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	return &BatchRunner{embedder: embedder, pool: pool, batchSize: batchSize}, nil
}

// Run embeds texts. progress, if set, receives (texts done, total) after each
// batch and may be called from several goroutines.
func (b *BatchRunner) Run(ctx context.Context, texts []string, progress func(done, total int)) BatchResult {
	res := BatchResult{Vectors: make([][]float32, len(texts))}
	if len(texts) == 0 {
		return res
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done atomic.Int64
	)
	fail := func(n int, err error) {
		mu.Lock()
		res.Failed += n
		res.Errors = append(res.Errors, err)
		mu.Unlock()
	}

	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		batchStart, batch := start, texts[start:end]

		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				n := done.Add(int64(len(batch)))
				if progress != nil {
					progress(int(n), len(texts))
				}
			}()

			if err := ctx.Err(); err != nil {
				fail(len(batch), err)
				return
			}
			vectors, err := b.embedder.EmbedBatch(ctx, batch)
			if err == nil && len(vectors) != len(batch) {
				err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
			}
			if err != nil {
				slog.Warn("embedding_batch_failed",
					slog.Int("batch_start", batchStart),
					slog.Int("batch_size", len(batch)),
					slog.String("error", err.Error()))
				fail(len(batch), fmt.Errorf("batch at %d: %w", batchStart, err))
				return
			}
			copy(res.Vectors[batchStart:], vectors)
		}

		if err := b.pool.Submit(task); err != nil {
			wg.Done()
			fail(len(batch), fmt.Errorf("submit batch at %d: %w", batchStart, err))
		}
	}

	wg.Wait()
	return res
}

// Release stops the worker pool.
func (b *BatchRunner) Release() {
	b.pool.Release()
}
