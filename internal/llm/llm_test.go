package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/domain"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type fakeChat struct {
	mu       sync.Mutex
	requests []chatRequest
	reply    func(req chatRequest) (int, string)
}

func (f *fakeChat) serve(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		status, content := f.reply(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte(`{"error":{"message":"` + content + `","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   req.Model,
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"}},
			"usage":   map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeChat) last() chatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeChat) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newClient(t *testing.T, srv *httptest.Server, retries int) *Client {
	t.Helper()
	t.Setenv("TEST_LLM_KEY", "sk-test")
	c, err := NewClient(Config{
		BaseURL:    srv.URL + "/v1",
		APIKeyEnv:  "TEST_LLM_KEY",
		Model:      "test-model",
		Timeout:    5 * time.Second,
		MaxRetries: retries,
	}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestAnswerSendsContextAndHistory(t *testing.T) {
	f := &fakeChat{reply: func(chatRequest) (int, string) { return 200, "  Mitochondria make ATP.  " }}
	c := newClient(t, f.serve(t), 0)

	history := make([]domain.Message, 0, 8)
	for i := 0; i < 8; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, domain.Message{Role: role, Content: strings.Repeat("h", i+1)})
	}
	got, err := c.Answer(context.Background(), "What makes ATP?", []domain.Chunk{
		{Text: "Mitochondria produce ATP."}, {Text: "Ribosomes build proteins."},
	}, history)
	require.NoError(t, err)
	assert.Equal(t, "Mitochondria make ATP.", got)

	req := f.last()
	assert.Equal(t, "test-model", req.Model)
	assert.InDelta(t, 0.4, req.Temperature, 1e-6)
	assert.Equal(t, 512, req.MaxTokens)
	require.Len(t, req.Messages, 1+5+1)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "assistant", req.Messages[1].Role)
	assert.Equal(t, "hhhh", req.Messages[1].Content)
	user := req.Messages[len(req.Messages)-1]
	assert.Equal(t, "user", user.Role)
	assert.Contains(t, user.Content, "[1] Mitochondria produce ATP.")
	assert.Contains(t, user.Content, "[2] Ribosomes build proteins.")
	assert.True(t, strings.HasSuffix(user.Content, "Question: What makes ATP?"))
}

func TestNotesUsesNotesSettings(t *testing.T) {
	f := &fakeChat{reply: func(chatRequest) (int, string) { return 200, "# Cells" }}
	c := newClient(t, f.serve(t), 0)

	got, err := c.Notes(context.Background(), "cells", []domain.ScoredChunk{{Chunk: domain.Chunk{Text: "Cells divide."}, Similarity: 0.9}})
	require.NoError(t, err)
	assert.Equal(t, "# Cells", got)
	req := f.last()
	assert.InDelta(t, 0.6, req.Temperature, 1e-6)
	assert.Equal(t, 800, req.MaxTokens)
	assert.Contains(t, req.Messages[1].Content, "Topic: cells")
}

func TestCompletionRetriesAndFails(t *testing.T) {
	f := &fakeChat{reply: func(chatRequest) (int, string) { return 503, "busy" }}
	c := newClient(t, f.serve(t), 1)

	_, err := c.Answer(context.Background(), "q", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 2, f.count())
}

func TestEmptyCompletionIsError(t *testing.T) {
	f := &fakeChat{reply: func(chatRequest) (int, string) { return 200, "   " }}
	c := newClient(t, f.serve(t), 0)
	_, err := c.Notes(context.Background(), "t", nil)
	assert.ErrorIs(t, err, errEmptyCompletion)
}

func TestTranslator(t *testing.T) {
	f := &fakeChat{reply: func(req chatRequest) (int, string) { return 200, "[si] " + req.Messages[1].Content }}
	tr := NewTranslator(newClient(t, f.serve(t), 0), "")

	got, err := tr.Translate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "[si] Hello", got)
	assert.Contains(t, f.last().Messages[0].Content, "Sinhala")

	got, err = tr.Translate(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, "  ", got)
	assert.Equal(t, 1, f.count())

	got, err = NopTranslator{}.Translate(context.Background(), "same")
	require.NoError(t, err)
	assert.Equal(t, "same", got)
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("NO_LLM_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "NO_LLM_KEY"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestExtractiveAnswer(t *testing.T) {
	e := NewExtractive(1, 0)
	chunks := []domain.Chunk{
		{Text: "The French revolution began in 1789. It ended the monarchy."},
		{Text: "Mitochondria produce ATP for the cell."},
	}
	got, err := e.Answer(context.Background(), "What do mitochondria produce?", chunks, nil)
	require.NoError(t, err)
	assert.Equal(t, "Mitochondria produce ATP for the cell.", got)

	got, err = e.Answer(context.Background(), "quantum chromodynamics", chunks, nil)
	require.NoError(t, err)
	assert.Equal(t, NoMaterial, got)
}

func TestExtractiveNotes(t *testing.T) {
	e := NewExtractive(0, 3)
	got, err := e.Notes(context.Background(), "cells", []domain.ScoredChunk{
		{Chunk: domain.Chunk{Text: "Cells are the unit of life.\n- Cells divide by mitosis"}, Similarity: 0.8},
		{Chunk: domain.Chunk{Text: "Plant cells have walls."}, Similarity: 0.91},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "# cells\n\n"))
	assert.Contains(t, got, "- Cells divide by mitosis\n")
	assert.Contains(t, got, "- Plant cells have walls.\n")
	assert.Contains(t, got, "Based on 2 passages (best match 0.91).")

	got, err = e.Notes(context.Background(), "cells", nil)
	require.NoError(t, err)
	assert.Equal(t, NoMaterial, got)
}
