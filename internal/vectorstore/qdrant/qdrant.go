// Package qdrant stores each index in its own Qdrant collection, talking to
// the server over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
)

const BackendName = "qdrant"

const upsertBatch = 256

type Config struct {
	URL              string        `yaml:"url"`
	APIKey           string        `yaml:"api_key"`
	CollectionPrefix string        `yaml:"collection_prefix"`
	Distance         string        `yaml:"distance"`
	Timeout          time.Duration `yaml:"timeout"`
	HTTPClient       *http.Client  `yaml:"-"`
}

// Backend creates one collection per built index.
type Backend struct {
	client   *client
	prefix   string
	distance string
	log      zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) (*Backend, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = "studyrag"
	}
	switch cfg.Distance {
	case "":
		cfg.Distance = "Cosine"
	case "Cosine", "Euclid", "Dot", "Manhattan":
	default:
		return nil, fmt.Errorf("unknown qdrant distance %q", cfg.Distance)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Backend{
		client:   &client{base: strings.TrimRight(cfg.URL, "/"), apiKey: cfg.APIKey, http: hc},
		prefix:   cfg.CollectionPrefix,
		distance: cfg.Distance,
		log:      log,
	}, nil
}

func (b *Backend) Name() string { return BackendName }

// Build creates a fresh collection and uploads entries. The collection is
// removed again if any upload fails.
func (b *Backend) Build(ctx context.Context, entries []domain.IndexEntry, meta vectorstore.Meta) (vectorstore.Handle, error) {
	dim, err := vectorstore.CheckEntries(entries)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	collection := b.prefix + "_" + id

	body := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": b.distance},
	}
	if err := b.client.do(ctx, http.MethodPut, "/collections/"+collection, body, nil); err != nil {
		return nil, fmt.Errorf("create collection %s: %w", collection, err)
	}

	for start := 0; start < len(entries); start += upsertBatch {
		end := start + upsertBatch
		if end > len(entries) {
			end = len(entries)
		}
		if err := b.upsert(ctx, collection, entries[start:end]); err != nil {
			if derr := b.client.do(context.Background(), http.MethodDelete, "/collections/"+collection, nil, nil); derr != nil {
				b.log.Warn().Err(derr).Str("collection", collection).Msg("failed to remove partial collection")
			}
			return nil, fmt.Errorf("upsert into %s: %w", collection, err)
		}
	}
	b.log.Debug().Str("collection", collection).Int("entries", len(entries)).Int("dimension", dim).Msg("qdrant index built")

	return &Index{
		client:     b.client,
		id:         id,
		collection: collection,
		distance:   b.distance,
		dimension:  dim,
		count:      len(entries),
		meta:       meta,
		created:    time.Now().UTC(),
	}, nil
}

func (b *Backend) upsert(ctx context.Context, collection string, entries []domain.IndexEntry) error {
	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		points[i] = map[string]any{
			"id":     PointID(e.Chunk),
			"vector": e.Vector,
			"payload": map[string]any{
				"source_id": e.Chunk.SourceID,
				"index":     e.Chunk.Index,
				"offset":    e.Chunk.Offset,
				"text":      e.Chunk.Text,
			},
		}
	}
	return b.client.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", map[string]any{"points": points}, nil)
}

// Load reopens the collection named in the manifest at location.
func (b *Backend) Load(ctx context.Context, location string) (vectorstore.Handle, error) {
	m, err := vectorstore.ReadManifest(location)
	if err != nil {
		return nil, err
	}
	if m.Backend != BackendName {
		return nil, fmt.Errorf("%s holds a %s index: %w", location, m.Backend, domain.ErrPersistence)
	}

	var resp struct {
		Result struct {
			PointsCount *int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := b.client.do(ctx, http.MethodGet, "/collections/"+m.Collection, nil, &resp); err != nil {
		return nil, fmt.Errorf("collection %s: %v: %w", m.Collection, err, domain.ErrPersistence)
	}
	if size := resp.Result.Config.Params.Vectors.Size; size != 0 && size != m.Dimension {
		return nil, fmt.Errorf("collection %s has size %d, manifest says %d: %w", m.Collection, size, m.Dimension, domain.ErrPersistence)
	}
	count := m.Count
	if resp.Result.PointsCount != nil {
		count = *resp.Result.PointsCount
	}
	b.log.Debug().Str("collection", m.Collection).Str("location", location).Msg("qdrant index loaded")

	return &Index{
		client:     b.client,
		id:         m.ID,
		collection: m.Collection,
		distance:   m.Metric,
		dimension:  m.Dimension,
		count:      count,
		meta:       vectorstore.Meta{SourceID: m.SourceID, Embedder: m.Embedder},
		created:    m.CreatedAt,
	}, nil
}

// PointID derives a stable point id from the chunk identity, so re-uploading
// a chunk overwrites it instead of duplicating it.
func PointID(c domain.Chunk) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("studyrag:"+c.ID())).String()
}

// Index is a handle to one collection.
type Index struct {
	client     *client
	id         string
	collection string
	distance   string
	dimension  int
	meta       vectorstore.Meta
	created    time.Time

	mu      sync.RWMutex
	count   int
	dropped bool
}

func (x *Index) ID() string      { return x.id }
func (x *Index) Backend() string { return BackendName }
func (x *Index) Metric() string  { return x.distance }

// Dimension is zero for a nil index, which callers treat as invalid.
func (x *Index) Dimension() int {
	if x == nil {
		return 0
	}
	return x.dimension
}

func (x *Index) Meta() vectorstore.Meta {
	if x == nil {
		return vectorstore.Meta{}
	}
	return x.meta
}

func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count
}

func (x *Index) SearchKNN(ctx context.Context, vector []float64, k int) ([]domain.Candidate, error) {
	return x.search(ctx, vector, k)
}

// SearchScored returns at most limit candidates. A limit of zero or less
// asks for the whole collection.
func (x *Index) SearchScored(ctx context.Context, vector []float64, limit int) ([]domain.Candidate, error) {
	if limit <= 0 {
		limit = x.Len()
	}
	return x.search(ctx, vector, limit)
}

func (x *Index) valid() bool {
	if x == nil || x.client == nil {
		return false
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return !x.dropped
}

func (x *Index) search(ctx context.Context, vector []float64, limit int) ([]domain.Candidate, error) {
	if !x.valid() {
		return nil, domain.ErrInvalidHandle
	}
	if err := vectorstore.CheckQuery(vector, x.dimension); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []domain.Candidate{}, nil
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   *float64 `json:"score"`
			Payload struct {
				SourceID string `json:"source_id"`
				Index    int    `json:"index"`
				Offset   int    `json:"offset"`
				Text     string `json:"text"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := x.client.do(ctx, http.MethodPost, "/collections/"+x.collection+"/points/search", req, &resp); err != nil {
		return nil, fmt.Errorf("search %s: %w", x.collection, err)
	}
	out := make([]domain.Candidate, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, domain.Candidate{
			Chunk: domain.Chunk{
				SourceID: r.Payload.SourceID,
				Index:    r.Payload.Index,
				Offset:   r.Payload.Offset,
				Text:     r.Payload.Text,
			},
			RawScore: r.Score,
		})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Persist writes a manifest referencing the collection. The vectors stay
// on the server.
func (x *Index) Persist(ctx context.Context, location string) error {
	if !x.valid() {
		return domain.ErrInvalidHandle
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return vectorstore.WriteDir(location, func(dir string) error {
		return vectorstore.WriteManifest(dir, vectorstore.Manifest{
			Version:    vectorstore.ManifestVersion,
			ID:         x.id,
			Backend:    BackendName,
			Metric:     x.distance,
			Dimension:  x.dimension,
			Count:      x.Len(),
			Embedder:   x.meta.Embedder,
			SourceID:   x.meta.SourceID,
			Collection: x.collection,
			CreatedAt:  x.created,
		})
	})
}

// Drop deletes the collection on the server.
func (x *Index) Drop(ctx context.Context) error {
	if !x.valid() {
		return domain.ErrInvalidHandle
	}
	if err := x.client.do(ctx, http.MethodDelete, "/collections/"+x.collection, nil, nil); err != nil {
		return fmt.Errorf("delete collection %s: %w", x.collection, err)
	}
	x.mu.Lock()
	x.dropped = true
	x.mu.Unlock()
	return nil
}

type client struct {
	base   string
	apiKey string
	http   *http.Client
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
