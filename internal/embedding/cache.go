package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"studyrag/internal/domain"
)

// Cached memoizes single-text embeddings so repeated queries skip the
// backend. It wraps a single backend so a cached vector always has one
// origin. Larger batches are passed through: chunk batches are embedded once
// per build and caching them only costs memory.
type Cached struct {
	inner domain.Embedder
	cache *lru.Cache[string, []float64]
}

// NewCached wraps inner with an LRU of the given size. A size of zero or
// less returns inner unchanged.
func NewCached(inner domain.Embedder, size int) (domain.Embedder, error) {
	if size <= 0 {
		return inner, nil
	}
	c, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Cached{inner: inner, cache: c}, nil
}

func (c *Cached) Name() string   { return c.inner.Name() }
func (c *Cached) Dimension() int { return c.inner.Dimension() }

func (c *Cached) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 1 {
		v, err := c.EmbedOne(ctx, texts[0])
		if err != nil {
			return nil, err
		}
		return [][]float64{v}, nil
	}
	return c.inner.EmbedMany(ctx, texts)
}

// EmbedOne returns a copy of the cached vector when present.
func (c *Cached) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	if v, ok := c.cache.Get(text); ok {
		return append([]float64(nil), v...), nil
	}
	v, err := c.inner.EmbedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, append([]float64(nil), v...))
	return v, nil
}
