package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

func newTestClient(t *testing.T, srv *httptest.Server, batch, retries int) *Client {
	t.Helper()
	t.Setenv("TEST_EMBED_KEY", "sk-test")
	c, err := NewClient(Config{
		BaseURL:    srv.URL + "/v1",
		APIKeyEnv:  "TEST_EMBED_KEY",
		Model:      "text-embedding-3-small",
		Dimension:  3,
		Timeout:    5 * time.Second,
		BatchSize:  batch,
		MaxRetries: retries,
	}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

// writeEmbeddings answers in reverse order to check that results are
// re-sorted by index.
func writeEmbeddings(w http.ResponseWriter, req embeddingRequest) {
	type item struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	data := make([]item, 0, len(req.Input))
	for i := len(req.Input) - 1; i >= 0; i-- {
		data = append(data, item{Object: "embedding", Index: i, Embedding: []float32{float32(len(req.Input[i])), 0, 1}})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
}

func TestEmbedManyBatchesAndOrders(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		atomic.AddInt32(&calls, 1)
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3, req.Dimensions)
		assert.LessOrEqual(t, len(req.Input), 2)
		writeEmbeddings(w, req)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 2, 0)
	vecs, err := c.EmbedMany(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, v := range vecs {
		assert.Equal(t, []float64{float64(i + 1), 0, 1}, v)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "openai:text-embedding-3-small", c.Name())
	assert.Equal(t, 3, c.Dimension())
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeEmbeddings(w, req)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 8, 3)
	v, err := c.EmbedOne(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 0, 1}, v)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 8, 5)
	_, err := c.EmbedOne(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1,2]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 8, 0)
	_, err := c.EmbedOne(context.Background(), "hello")
	assert.ErrorContains(t, err, "dimension 2")
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("MISSING_EMBED_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "MISSING_EMBED_KEY"}, zerolog.Nop())
	assert.ErrorContains(t, err, "MISSING_EMBED_KEY")
}
