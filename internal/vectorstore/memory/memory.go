// Package memory is a brute-force in-process vector index persisted as
// JSON lines.
package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
)

const (
	BackendName = "memory"
	entriesFile = "entries.jsonl"
)

// Supported metrics. L2 reports a distance (smaller is closer), Cosine and
// Dot report similarities (larger is closer).
const (
	L2     = "l2"
	Cosine = "cosine"
	Dot    = "dot"
)

type Config struct {
	Metric string `yaml:"metric"`
}

// Backend creates memory indexes with a fixed metric.
type Backend struct {
	metric string
	log    zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) (*Backend, error) {
	metric := cfg.Metric
	if metric == "" {
		metric = L2
	}
	if !validMetric(metric) {
		return nil, fmt.Errorf("unknown memory metric %q", cfg.Metric)
	}
	return &Backend{metric: metric, log: log}, nil
}

func (b *Backend) Name() string { return BackendName }

// Build copies entries into a new index.
func (b *Backend) Build(ctx context.Context, entries []domain.IndexEntry, meta vectorstore.Meta) (vectorstore.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dim, err := vectorstore.CheckEntries(entries)
	if err != nil {
		return nil, err
	}
	idx := &Index{
		id:        uuid.NewString(),
		metric:    b.metric,
		dimension: dim,
		meta:      meta,
		created:   time.Now().UTC(),
		chunks:    make([]domain.Chunk, len(entries)),
		vectors:   make([][]float64, len(entries)),
	}
	for i, e := range entries {
		idx.chunks[i] = e.Chunk
		idx.vectors[i] = append([]float64(nil), e.Vector...)
	}
	b.log.Debug().Str("index", idx.id).Int("entries", len(entries)).Int("dimension", dim).Str("metric", b.metric).Msg("memory index built")
	return idx, nil
}

type record struct {
	Chunk  domain.Chunk `json:"chunk"`
	Vector []float64    `json:"vector"`
}

// Load reads an index written by Persist. The metric comes from the
// manifest, not from the backend configuration.
func (b *Backend) Load(ctx context.Context, location string) (vectorstore.Handle, error) {
	m, err := vectorstore.ReadManifest(location)
	if err != nil {
		return nil, err
	}
	if m.Backend != BackendName {
		return nil, fmt.Errorf("%s holds a %s index: %w", location, m.Backend, domain.ErrPersistence)
	}
	if !validMetric(m.Metric) {
		return nil, fmt.Errorf("%s uses unknown metric %q: %w", location, m.Metric, domain.ErrPersistence)
	}

	f, err := os.Open(filepath.Join(location, entriesFile))
	if err != nil {
		return nil, fmt.Errorf("open entries: %v: %w", err, domain.ErrPersistence)
	}
	defer f.Close()

	idx := &Index{
		id:        m.ID,
		metric:    m.Metric,
		dimension: m.Dimension,
		meta:      vectorstore.Meta{SourceID: m.SourceID, Embedder: m.Embedder},
		created:   m.CreatedAt,
		chunks:    make([]domain.Chunk, 0, m.Count),
		vectors:   make([][]float64, 0, m.Count),
	}
	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var r record
		if err := dec.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode entry %d: %v: %w", len(idx.chunks), err, domain.ErrPersistence)
		}
		if len(r.Vector) != m.Dimension {
			return nil, fmt.Errorf("entry %s has dimension %d, manifest says %d: %w",
				r.Chunk.ID(), len(r.Vector), m.Dimension, domain.ErrPersistence)
		}
		idx.chunks = append(idx.chunks, r.Chunk)
		idx.vectors = append(idx.vectors, r.Vector)
	}
	if len(idx.chunks) != m.Count {
		return nil, fmt.Errorf("%s has %d entries, manifest says %d: %w", location, len(idx.chunks), m.Count, domain.ErrPersistence)
	}
	b.log.Debug().Str("index", idx.id).Str("location", location).Int("entries", m.Count).Msg("memory index loaded")
	return idx, nil
}

// Index is a built memory index. The zero value is an invalid handle.
type Index struct {
	mu        sync.RWMutex
	id        string
	metric    string
	dimension int
	meta      vectorstore.Meta
	created   time.Time
	chunks    []domain.Chunk
	vectors   [][]float64
	dropped   bool
}

func (x *Index) ID() string      { return x.id }
func (x *Index) Backend() string { return BackendName }
func (x *Index) Metric() string  { return x.metric }

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
	return len(x.chunks)
}

func (x *Index) SearchKNN(ctx context.Context, vector []float64, k int) ([]domain.Candidate, error) {
	return x.search(ctx, vector, k)
}

// SearchScored ranks every entry and returns the best limit of them. A
// limit of zero or less returns the whole index.
func (x *Index) SearchScored(ctx context.Context, vector []float64, limit int) ([]domain.Candidate, error) {
	if limit <= 0 {
		limit = math.MaxInt
	}
	return x.search(ctx, vector, limit)
}

func (x *Index) search(ctx context.Context, vector []float64, k int) ([]domain.Candidate, error) {
	if x == nil {
		return nil, domain.ErrInvalidHandle
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.dropped || x.dimension == 0 {
		return nil, domain.ErrInvalidHandle
	}
	if err := vectorstore.CheckQuery(vector, x.dimension); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.Candidate{}, nil
	}

	scores := make([]float64, len(x.vectors))
	for i, v := range x.vectors {
		scores[i] = score(x.metric, v, vector)
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	closer := x.metric != L2
	sort.SliceStable(order, func(a, b int) bool {
		if closer {
			return scores[order[a]] > scores[order[b]]
		}
		return scores[order[a]] < scores[order[b]]
	})
	if k > len(order) {
		k = len(order)
	}
	out := make([]domain.Candidate, k)
	for i := 0; i < k; i++ {
		j := order[i]
		s := scores[j]
		out[i] = domain.Candidate{Chunk: x.chunks[j], RawScore: &s}
	}
	return out, nil
}

// Persist writes the manifest and the entries into location atomically.
func (x *Index) Persist(ctx context.Context, location string) error {
	if x == nil {
		return domain.ErrInvalidHandle
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.dropped || x.dimension == 0 {
		return domain.ErrInvalidHandle
	}
	return vectorstore.WriteDir(location, func(dir string) error {
		f, err := os.Create(filepath.Join(dir, entriesFile))
		if err != nil {
			return err
		}
		w := bufio.NewWriter(f)
		enc := json.NewEncoder(w)
		for i := range x.chunks {
			if err := ctx.Err(); err != nil {
				f.Close()
				return err
			}
			if err := enc.Encode(record{Chunk: x.chunks[i], Vector: x.vectors[i]}); err != nil {
				f.Close()
				return err
			}
		}
		if err := w.Flush(); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		return vectorstore.WriteManifest(dir, vectorstore.Manifest{
			Version:   vectorstore.ManifestVersion,
			ID:        x.id,
			Backend:   BackendName,
			Metric:    x.metric,
			Dimension: x.dimension,
			Count:     len(x.chunks),
			Embedder:  x.meta.Embedder,
			SourceID:  x.meta.SourceID,
			CreatedAt: x.created,
		})
	})
}

// Drop releases the entries. Further searches fail with ErrInvalidHandle.
func (x *Index) Drop(context.Context) error {
	if x == nil {
		return domain.ErrInvalidHandle
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.dropped = true
	x.chunks = nil
	x.vectors = nil
	return nil
}

func validMetric(m string) bool {
	return m == L2 || m == Cosine || m == Dot
}

func score(metric string, a, b []float64) float64 {
	switch metric {
	case Cosine:
		na, nb := norm(a), norm(b)
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (na * nb)
	case Dot:
		return dot(a, b)
	default:
		sum := 0.0
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return math.Sqrt(sum)
	}
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}
