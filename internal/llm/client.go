// Package llm implements the answer, notes and translation collaborators
// on top of OpenAI-compatible chat completions, plus offline fallbacks.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"

	"studyrag/internal/domain"
	"studyrag/internal/retry"
)

var errEmptyCompletion = errors.New("model returned an empty completion")

type Config struct {
	BaseURL          string
	APIKeyEnv        string
	Model            string
	Temperature      float32
	NotesTemperature float32
	MaxTokens        int
	NotesMaxTokens   int
	HistoryTurns     int
	Timeout          time.Duration
	MaxRetries       int
	HTTPClient       *http.Client
}

// Client generates answers and notes with a chat completion model.
type Client struct {
	api *goopenai.Client
	cfg Config
	log zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT4oMini
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.4
	}
	if cfg.NotesTemperature == 0 {
		cfg.NotesTemperature = 0.6
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	if cfg.NotesMaxTokens == 0 {
		cfg.NotesMaxTokens = 800
	}
	if cfg.HistoryTurns == 0 {
		cfg.HistoryTurns = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	apiCfg := goopenai.DefaultConfig(key)
	apiCfg.BaseURL = cfg.BaseURL
	if cfg.HTTPClient != nil {
		apiCfg.HTTPClient = cfg.HTTPClient
	}
	return &Client{api: goopenai.NewClientWithConfig(apiCfg), cfg: cfg, log: log}, nil
}

// Answer replies to query using chunks as the only source of facts. The
// last HistoryTurns messages of history are forwarded.
func (c *Client) Answer(ctx context.Context, query string, chunks []domain.Chunk, history []domain.Message) (string, error) {
	return c.complete(ctx, "answer", answerMessages(query, chunks, history, c.cfg.HistoryTurns), c.cfg.Temperature, c.cfg.MaxTokens)
}

// Notes writes structured study notes about topic from the scored chunks.
func (c *Client) Notes(ctx context.Context, topic string, scored []domain.ScoredChunk) (string, error) {
	return c.complete(ctx, "notes", notesMessages(topic, scored), c.cfg.NotesTemperature, c.cfg.NotesMaxTokens)
}

func (c *Client) complete(ctx context.Context, what string, msgs []goopenai.ChatCompletionMessage, temperature float32, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req := goopenai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	start := time.Now()
	var resp goopenai.ChatCompletionResponse
	err := retry.Do(ctx, retry.Policy{MaxRetries: c.cfg.MaxRetries, MaxElapsed: c.cfg.Timeout}, c.log, what, func(ctx context.Context) error {
		r, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", what, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%s: %w", what, errEmptyCompletion)
	}
	c.log.Debug().Str("call", what).Str("model", c.cfg.Model).Dur("took", time.Since(start)).
		Int("tokens", resp.Usage.TotalTokens).Msg("completion done")
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Translator translates English text into a fixed target language.
type Translator struct {
	client   *Client
	language string
}

func NewTranslator(client *Client, language string) *Translator {
	if language == "" {
		language = "Sinhala"
	}
	return &Translator{client: client, language: language}
}

// Translate sends text as a single unit and returns the translation.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	msgs := []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleSystem, Content: translateSystem(t.language)},
		{Role: goopenai.ChatMessageRoleUser, Content: text},
	}
	return t.client.complete(ctx, "translate", msgs, 0.2, 4*len(text)+64)
}

// NopTranslator returns text unchanged.
type NopTranslator struct{}

func (NopTranslator) Translate(_ context.Context, text string) (string, error) { return text, nil }
