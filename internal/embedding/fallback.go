// Package embedding composes the remote and local embedders behind the
// domain.Embedder interface.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"studyrag/internal/domain"
)

// BreakerConfig controls when the remote backend is skipped entirely.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// FallbackConfig configures the Fallback decorator.
type FallbackConfig struct {
	Timeout time.Duration
	Breaker BreakerConfig
}

// Fallback serves embeddings from a remote backend when one is configured
// and from the local backend otherwise. A batch is always served by one
// backend so vectors in a single call never come from different models.
// Indexes record the backend that built them and are queried through Pin.
type Fallback struct {
	remote  domain.Embedder
	local   domain.Embedder
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewFallback wraps remote and local. remote may be nil. Both must report
// the same dimension when the remote one declares it.
func NewFallback(remote, local domain.Embedder, cfg FallbackConfig, log zerolog.Logger) (*Fallback, error) {
	if local == nil {
		return nil, fmt.Errorf("local embedder is required: %w", domain.ErrEmbeddingBackend)
	}
	if remote != nil && remote.Dimension() > 0 && remote.Dimension() != local.Dimension() {
		return nil, fmt.Errorf("remote %s has dimension %d, local %s has %d: %w",
			remote.Name(), remote.Dimension(), local.Name(), local.Dimension(), domain.ErrDimensionMismatch)
	}
	if remote != nil && remote.Name() == local.Name() {
		return nil, fmt.Errorf("remote and local embedders are both named %q", local.Name())
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = 3
	}
	if cfg.Breaker.Cooldown <= 0 {
		cfg.Breaker.Cooldown = time.Minute
	}

	f := &Fallback{
		remote:  remote,
		local:   local,
		timeout: cfg.Timeout,
		log:     log,
	}
	if remote != nil {
		maxFailures := cfg.Breaker.MaxFailures
		f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        remote.Name(),
			MaxRequests: 1,
			Timeout:     cfg.Breaker.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("backend", name).Str("from", from.String()).Str("to", to.String()).
					Msg("remote embedder circuit changed state")
			},
		})
	}
	return f, nil
}

// Name lists the backends in the order they are tried.
func (f *Fallback) Name() string {
	if f.remote == nil {
		return f.local.Name()
	}
	return f.remote.Name() + "|" + f.local.Name()
}

// Dimension returns the local dimension, which the remote matches.
func (f *Fallback) Dimension() int { return f.local.Dimension() }

// EmbedOne returns the embedding of a single text.
func (f *Fallback) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	return embedOne(ctx, f, text)
}

func (f *Fallback) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	vecs, _, err := f.EmbedManyTagged(ctx, texts)
	return vecs, err
}

// EmbedManyTagged embeds texts with the remote backend, falling back to
// local on any remote failure including timeouts, and names the backend
// that produced the vectors.
func (f *Fallback) EmbedManyTagged(ctx context.Context, texts []string) ([][]float64, string, error) {
	if len(texts) == 0 {
		return [][]float64{}, f.local.Name(), nil
	}
	if f.remote != nil {
		vecs, err := f.tryRemote(ctx, texts)
		if err == nil {
			return vecs, f.remote.Name(), nil
		}
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("embedding cancelled: %w", ctx.Err())
		}
		f.log.Warn().Err(err).Str("remote", f.remote.Name()).Str("local", f.local.Name()).
			Int("texts", len(texts)).Msg("remote embedder unavailable, using local")
	}
	vecs, err := f.embedLocal(ctx, texts)
	if err != nil {
		return nil, "", err
	}
	return vecs, f.local.Name(), nil
}

// Pin returns an embedder that only uses the named backend. A pinned remote
// never falls back: its failures surface as ErrEmbeddingBackend.
func (f *Fallback) Pin(backend string) (domain.Embedder, error) {
	switch {
	case backend == f.local.Name():
		return &pinned{f: f, name: backend}, nil
	case f.remote != nil && backend == f.remote.Name():
		return &pinned{f: f, name: backend, remote: true}, nil
	}
	return nil, fmt.Errorf("%q is not one of the configured embedders (%s): %w", backend, f.Name(), domain.ErrEmbedderMismatch)
}

func (f *Fallback) embedLocal(ctx context.Context, texts []string) ([][]float64, error) {
	vecs, err := f.local.EmbedMany(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", f.local.Name(), err, domain.ErrEmbeddingBackend)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%s returned %d vectors for %d texts: %w",
			f.local.Name(), len(vecs), len(texts), domain.ErrEmbeddingBackend)
	}
	return vecs, nil
}

func (f *Fallback) tryRemote(ctx context.Context, texts []string) ([][]float64, error) {
	res, err := f.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		vecs, err := f.remote.EmbedMany(callCtx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("got %d vectors for %d texts", len(vecs), len(texts))
		}
		for _, v := range vecs {
			if len(v) != f.local.Dimension() {
				return nil, fmt.Errorf("vector dimension %d, want %d: %w",
					len(v), f.local.Dimension(), domain.ErrDimensionMismatch)
			}
		}
		return vecs, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([][]float64), nil
}

// pinned is one backend of a Fallback, keeping the remote's breaker and
// timeout.
type pinned struct {
	f      *Fallback
	name   string
	remote bool
}

func (p *pinned) Name() string   { return p.name }
func (p *pinned) Dimension() int { return p.f.Dimension() }

func (p *pinned) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	return embedOne(ctx, p, text)
}

func (p *pinned) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	if !p.remote {
		return p.f.embedLocal(ctx, texts)
	}
	vecs, err := p.f.tryRemote(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embedding cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%s: %v: %w", p.name, err, domain.ErrEmbeddingBackend)
	}
	return vecs, nil
}

// EmbedTagged embeds texts and names the backend whose vectors they are.
func EmbedTagged(ctx context.Context, emb domain.Embedder, texts []string) ([][]float64, string, error) {
	if m, ok := emb.(domain.MultiEmbedder); ok {
		return m.EmbedManyTagged(ctx, texts)
	}
	vecs, err := emb.EmbedMany(ctx, texts)
	return vecs, emb.Name(), err
}

// ForIndex returns the embedder whose vectors are comparable with an index
// built by backend. An empty backend accepts emb unchanged.
func ForIndex(emb domain.Embedder, backend string) (domain.Embedder, error) {
	if backend == "" {
		return emb, nil
	}
	if m, ok := emb.(domain.MultiEmbedder); ok {
		return m.Pin(backend)
	}
	if emb.Name() != backend {
		return nil, fmt.Errorf("index embedded by %q, configured embedder is %q: %w", backend, emb.Name(), domain.ErrEmbedderMismatch)
	}
	return emb, nil
}

func embedOne(ctx context.Context, emb domain.Embedder, text string) ([]float64, error) {
	vecs, err := emb.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
