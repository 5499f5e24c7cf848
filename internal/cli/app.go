package cli

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"studyrag/internal/config"
	"studyrag/internal/domain"
	"studyrag/internal/embedding"
	"studyrag/internal/embedding/hashing"
	"studyrag/internal/embedding/openai"
	"studyrag/internal/extractor"
	"studyrag/internal/llm"
	"studyrag/internal/logging"
	"studyrag/internal/retrieval"
	"studyrag/internal/service"
	"studyrag/internal/summarizer"
	"studyrag/internal/vectorstore"
	"studyrag/internal/vectorstore/memory"
	"studyrag/internal/vectorstore/qdrant"
)

// app holds the components assembled from one configuration. The embedder
// and everything depending on it are built on first use, so commands that
// only read manifests never touch an embedding backend.
type app struct {
	cfg      *config.AppConfig
	log      zerolog.Logger
	backend  vectorstore.Backend
	loaders  []vectorstore.Backend
	embedder *embedding.Lazy
	svc      *service.Service
}

func newApp(cfg *config.AppConfig, log zerolog.Logger) (*app, error) {
	backend, loaders, err := buildBackends(cfg.VectorStore, logging.Component(log, "vectorstore"))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, backend: backend, loaders: loaders}
	a.embedder = embedding.NewLazy(func(ctx context.Context) (domain.Embedder, error) {
		return buildEmbedder(cfg.Embedder, logging.Component(log, "embedder"))
	})
	return a, nil
}

// service returns the query service, building the embedder on first call.
func (a *app) service(ctx context.Context) (*service.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	emb, err := a.embedder.Get(ctx)
	if err != nil {
		return nil, err
	}
	cfg, log := a.cfg, a.log
	engine := retrieval.New(emb, retrieval.Options{
		CandidateLimit: cfg.Retrieval.CandidateLimit,
		Bands:          cfg.Retrieval.Bands.Bands(),
	}, logging.Component(log, "retrieval"))

	generator, translator := buildGenerator(cfg, logging.Component(log, "llm"))

	a.svc = service.New(service.Deps{
		Extractor:  extractor.New(extractor.Config{PageMarkers: cfg.Extractor.PageMarkers}, logging.Component(log, "extractor")),
		Embedder:   emb,
		Backend:    a.backend,
		Loaders:    a.loaders,
		Engine:     engine,
		Generator:  generator,
		Translator: translator,
		Summarizer: summarizer.NewFrequency(),
	}, service.Options{
		StoreDir:  cfg.VectorStore.Dir,
		TopK:      cfg.Retrieval.TopK,
		Threshold: cfg.Retrieval.Threshold,
	}, logging.Component(log, "service"))
	return a.svc, nil
}

func (a *app) Close() error {
	return errors.Join(a.embedder.Close(), logging.Close())
}

// buildEmbedder returns the local hashing embedder, fronted by the remote
// one when it is configured and its key is present. Only remote query
// vectors are cached.
func buildEmbedder(cfg config.EmbedderConfig, log zerolog.Logger) (domain.Embedder, error) {
	local := hashing.NewEmbedder(cfg.Dimension)

	var remote domain.Embedder
	if r := cfg.Remote; r != nil {
		client, err := openai.NewClient(openai.Config{
			BaseURL:    r.BaseURL,
			APIKeyEnv:  r.APIKeyEnv,
			Model:      r.Model,
			Dimension:  cfg.Dimension,
			Timeout:    config.Seconds(r.TimeoutSecs),
			BatchSize:  r.BatchSize,
			MaxRetries: r.MaxRetries,
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("remote embedder disabled, using local embeddings")
		} else if remote, err = embedding.NewCached(client, cfg.CacheSize); err != nil {
			return nil, err
		}
	}

	timeout := config.Seconds(30)
	if cfg.Remote != nil {
		timeout = config.Seconds(cfg.Remote.TimeoutSecs)
	}
	fb, err := embedding.NewFallback(remote, local, embedding.FallbackConfig{
		Timeout: timeout,
		Breaker: embedding.BreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			Cooldown:    config.Seconds(cfg.Breaker.CooldownSecs),
		},
	}, log)
	if err != nil {
		return nil, err
	}
	return fb, nil
}

// buildBackends returns the backend new indexes are built with and every
// backend able to load a persisted index.
func buildBackends(cfg config.VectorStoreConfig, log zerolog.Logger) (vectorstore.Backend, []vectorstore.Backend, error) {
	mem, err := memory.New(memory.Config{Metric: cfg.Metric}, log)
	if err != nil {
		return nil, nil, err
	}
	loaders := []vectorstore.Backend{mem}

	var qd *qdrant.Backend
	if q := cfg.Qdrant; q != nil && q.URL != "" {
		qd, err = qdrant.New(qdrant.Config{
			URL:              q.URL,
			APIKey:           q.APIKey,
			CollectionPrefix: q.CollectionPrefix,
			Distance:         q.Distance,
			Timeout:          config.Seconds(q.TimeoutSecs),
		}, log)
		if err != nil {
			return nil, nil, err
		}
		loaders = append(loaders, qd)
	}

	if cfg.Type == qdrant.BackendName {
		if qd == nil {
			return nil, nil, errors.New("qdrant store selected without a url")
		}
		return qd, loaders, nil
	}
	return mem, loaders, nil
}

// buildGenerator picks the chat model when configured and reachable with a
// key, and the offline extractive generator otherwise.
func buildGenerator(cfg *config.AppConfig, log zerolog.Logger) (domain.Generator, domain.Translator) {
	g := cfg.Generator
	llmCfg := llm.Config{
		BaseURL:          g.BaseURL,
		APIKeyEnv:        g.APIKeyEnv,
		Model:            g.Model,
		Temperature:      g.Temperature,
		NotesTemperature: g.NotesTemperature,
		MaxTokens:        g.MaxTokens,
		NotesMaxTokens:   g.NotesMaxTokens,
		HistoryTurns:     g.HistoryTurns,
		Timeout:          config.Seconds(g.TimeoutSecs),
		MaxRetries:       g.MaxRetries,
	}

	var generator domain.Generator = llm.NewExtractive(0, 0)
	if g.Type == "openai" {
		client, err := llm.NewClient(llmCfg, log)
		if err != nil {
			log.Warn().Err(err).Msg("chat model unavailable, answering extractively")
		} else {
			generator = client
		}
	}

	var translator domain.Translator = llm.NopTranslator{}
	if cfg.Translator.Enabled {
		if cfg.Translator.Model != "" {
			llmCfg.Model = cfg.Translator.Model
		}
		client, err := llm.NewClient(llmCfg, log)
		if err != nil {
			log.Warn().Err(err).Msg("translation disabled")
		} else {
			translator = llm.NewTranslator(client, cfg.Translator.TargetLanguage)
		}
	}
	return generator, translator
}
