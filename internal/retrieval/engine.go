// Package retrieval turns a query into supporting chunks, either as a fixed
// number of nearest neighbours or as every candidate above a similarity
// threshold.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"studyrag/internal/domain"
	"studyrag/internal/embedding"
	"studyrag/internal/vectorstore"
)

const DefaultCandidateLimit = 50

type Options struct {
	// CandidateLimit bounds the pool scored by Comprehensive.
	CandidateLimit int
	Bands          Bands
}

// Engine is stateless apart from its embedder and is safe for concurrent use.
type Engine struct {
	embedder domain.Embedder
	limit    int
	bands    Bands
	log      zerolog.Logger
}

func New(embedder domain.Embedder, opts Options, log zerolog.Logger) *Engine {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = DefaultCandidateLimit
	}
	if opts.Bands == (Bands{}) {
		opts.Bands = DefaultBands()
	}
	return &Engine{embedder: embedder, limit: opts.CandidateLimit, bands: opts.Bands, log: log}
}

// Precise returns up to k chunks in the index's best-first order. A blank
// query or a non-positive k yields an empty result.
func (e *Engine) Precise(ctx context.Context, query string, h vectorstore.Handle, k int) ([]domain.Chunk, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return []domain.Chunk{}, nil
	}
	vec, err := e.embed(ctx, query, h)
	if err != nil {
		return nil, err
	}
	cands, err := h.SearchKNN(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]domain.Chunk, len(cands))
	for i, c := range cands {
		out[i] = c.Chunk
	}
	e.log.Debug().Int("k", k).Int("returned", len(out)).Msg("precise retrieval")
	return out, nil
}

// Comprehensive returns every candidate whose normalized similarity is at
// least threshold, best first. Candidates without a usable score are
// skipped.
func (e *Engine) Comprehensive(ctx context.Context, query string, h vectorstore.Handle, threshold float64) ([]domain.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return []domain.ScoredChunk{}, nil
	}
	vec, err := e.embed(ctx, query, h)
	if err != nil {
		return nil, err
	}
	cands, err := h.SearchScored(ctx, vec, e.limit)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScoredChunk, 0, len(cands))
	skipped := 0
	for _, c := range cands {
		if c.RawScore == nil {
			skipped++
			continue
		}
		sim, ok := e.bands.Normalize(*c.RawScore)
		if !ok {
			skipped++
			continue
		}
		if sim >= threshold {
			out = append(out, domain.ScoredChunk{Chunk: c.Chunk, Similarity: sim})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })

	e.log.Debug().Float64("threshold", threshold).Int("candidates", len(cands)).
		Int("kept", len(out)).Int("skipped", skipped).Msg("comprehensive retrieval")
	return out, nil
}

// embed embeds query with the backend that built h.
func (e *Engine) embed(ctx context.Context, query string, h vectorstore.Handle) ([]float64, error) {
	if h == nil || h.Dimension() <= 0 {
		return nil, domain.ErrInvalidHandle
	}
	emb, err := embedding.ForIndex(e.embedder, h.Meta().Embedder)
	if err != nil {
		return nil, err
	}
	vec, err := emb.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := vectorstore.CheckQuery(vec, h.Dimension()); err != nil {
		return nil, err
	}
	return vec, nil
}
