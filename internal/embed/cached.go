package embed

import (
	"context"
	"crypto/sha256"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is the default number of cached vectors.
// At 256 dimensions * 4 bytes * 4096 entries, about 4MB.
const DefaultEmbeddingCacheSize = 4096

// ContentKey identifies chunk or query text independent of whitespace
// layout. The vector index keys recycled embeddings by it too.
type ContentKey [sha256.Size]byte

// KeyFor returns the content key of text.
func KeyFor(text string) ContentKey {
	return sha256.Sum256([]byte(strings.Join(strings.Fields(text), " ")))
}

// cacheKey scopes a content key to the model that produced the vector.
type cacheKey struct {
	model   string
	dims    int
	content ContentKey
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// CachedEmbedder serves repeated texts from an LRU cache. Search queries
// repeat across requests, and a build re-sends the unchanged chunks of
// edited cases; both are answered without a provider call.
type CachedEmbedder struct {
	inner  Embedder
	cache  *lru.Cache[cacheKey, []float32]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedder wraps inner with a cache of cacheSize vectors.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[cacheKey, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache}
}

// NewCachedEmbedderWithDefaults wraps inner with the default cache size.
func NewCachedEmbedderWithDefaults(inner Embedder) *CachedEmbedder {
	return NewCachedEmbedder(inner, DefaultEmbeddingCacheSize)
}

func (c *CachedEmbedder) key(text string) cacheKey {
	return cacheKey{model: c.inner.ModelName(), dims: c.inner.Dimensions(), content: KeyFor(text)}
}

func (c *CachedEmbedder) lookup(k cacheKey) ([]float32, bool) {
	vec, ok := c.cache.Get(k)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return vec, ok
}

// Embed returns the cached vector for text or embeds and caches it.
// Failures are not cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if vec, ok := c.lookup(k); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, vec)
	return vec, nil
}

// EmbedBatch sends only texts missing from the cache, each distinct
// content once, and fans the vectors back out to every position.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	var (
		missing []string
		keys    []cacheKey
		// positions of each missing key in texts
		waiting = make(map[cacheKey][]int)
	)
	for i, text := range texts {
		k := c.key(text)
		if pos, queued := waiting[k]; queued {
			waiting[k] = append(pos, i)
			continue
		}
		if vec, ok := c.lookup(k); ok {
			results[i] = vec
			continue
		}
		waiting[k] = []int{i}
		keys = append(keys, k)
		missing = append(missing, text)
	}
	if len(missing) == 0 {
		return results, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, k := range keys {
		if j >= len(vecs) || vecs[j] == nil {
			continue
		}
		c.cache.Add(k, vecs[j])
		for _, i := range waiting[k] {
			results[i] = vecs[j]
		}
	}
	return results, nil
}

// Stats returns hit and miss counts since creation.
func (c *CachedEmbedder) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.cache.Len()}
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

// Close closes the inner embedder.
func (c *CachedEmbedder) Close() error { return c.inner.Close() }

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder { return c.inner }

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }
