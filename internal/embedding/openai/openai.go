package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"

	"studyrag/internal/retry"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
// It also talks to Ollama and other servers exposing /v1/embeddings.
type Client struct {
	api        *goopenai.Client
	model      string
	dimension  int
	timeout    time.Duration
	batchSize  int
	maxRetries int
	log        zerolog.Logger
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Dimension  int
	Timeout    time.Duration
	BatchSize  int
	MaxRetries int
	HTTPClient *http.Client
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = string(goopenai.SmallEmbedding3)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	apiCfg := goopenai.DefaultConfig(key)
	apiCfg.BaseURL = cfg.BaseURL
	if cfg.HTTPClient != nil {
		apiCfg.HTTPClient = cfg.HTTPClient
	}
	return &Client{
		api:        goopenai.NewClientWithConfig(apiCfg),
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		timeout:    cfg.Timeout,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		log:        log,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the requested embedding size, 0 if the server decides.
func (c *Client) Dimension() int { return c.dimension }

// EmbedOne returns an embedding vector for the given text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds texts in batches of the configured size.
func (c *Client) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := goopenai.EmbeddingRequest{
		Input:      batch,
		Model:      goopenai.EmbeddingModel(c.model),
		Dimensions: c.dimension,
	}

	var resp goopenai.EmbeddingResponse
	err := retry.Do(ctx, retry.Policy{MaxRetries: c.maxRetries, MaxElapsed: c.timeout}, c.log, "embeddings", func(ctx context.Context) error {
		r, err := c.api.CreateEmbeddings(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings failed: %w", err)
	}

	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("openai embeddings returned %d vectors for %d inputs", len(resp.Data), len(batch))
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	vecs := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		if len(d.Embedding) == 0 {
			return nil, errors.New("empty embedding")
		}
		if c.dimension > 0 && len(d.Embedding) != c.dimension {
			return nil, fmt.Errorf("openai embeddings returned dimension %d, want %d", len(d.Embedding), c.dimension)
		}
		v := make([]float64, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float64(x)
		}
		vecs[i] = v
	}
	return vecs, nil
}
