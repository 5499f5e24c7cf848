package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
)

func entries() []domain.IndexEntry {
	return []domain.IndexEntry{
		{Chunk: domain.Chunk{SourceID: "doc", Index: 0, Text: "alpha"}, Vector: []float64{1, 0}},
		{Chunk: domain.Chunk{SourceID: "doc", Index: 1, Offset: 5, Text: "beta"}, Vector: []float64{0, 1}},
		{Chunk: domain.Chunk{SourceID: "doc", Index: 2, Offset: 9, Text: "gamma"}, Vector: []float64{0.8, 0.6}},
	}
}

func build(t *testing.T, metric string) vectorstore.Handle {
	t.Helper()
	b, err := New(Config{Metric: metric}, zerolog.Nop())
	require.NoError(t, err)
	h, err := b.Build(context.Background(), entries(), vectorstore.Meta{SourceID: "doc", Embedder: "hashing"})
	require.NoError(t, err)
	return h
}

func texts(cands []domain.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Chunk.Text
	}
	return out
}

func TestSearchL2(t *testing.T) {
	h := build(t, "")
	assert.Equal(t, L2, h.Metric())
	assert.Equal(t, 2, h.Dimension())
	assert.Equal(t, 3, h.Len())

	got, err := h.SearchKNN(context.Background(), []float64{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "gamma"}, texts(got))
	require.NotNil(t, got[0].RawScore)
	assert.InDelta(t, 0, *got[0].RawScore, 1e-12)
	assert.InDelta(t, 0.632455, *got[1].RawScore, 1e-6)
}

func TestSearchCosineAndDot(t *testing.T) {
	for _, metric := range []string{Cosine, Dot} {
		h := build(t, metric)
		got, err := h.SearchKNN(context.Background(), []float64{0, 2}, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"beta", "gamma", "alpha"}, texts(got), metric)
	}
	h := build(t, Cosine)
	got, err := h.SearchKNN(context.Background(), []float64{0, 2}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1, *got[0].RawScore, 1e-12)
}

func TestSearchBounds(t *testing.T) {
	h := build(t, L2)
	ctx := context.Background()

	got, err := h.SearchKNN(ctx, []float64{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = h.SearchKNN(ctx, []float64{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = h.SearchScored(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = h.SearchScored(ctx, []float64{1, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	b, err := New(Config{Metric: L2}, zerolog.Nop())
	require.NoError(t, err)
	h, err := b.Build(context.Background(), []domain.IndexEntry{
		{Chunk: domain.Chunk{SourceID: "d", Index: 0, Text: "first"}, Vector: []float64{1, 1}},
		{Chunk: domain.Chunk{SourceID: "d", Index: 1, Text: "second"}, Vector: []float64{1, 1}},
	}, vectorstore.Meta{})
	require.NoError(t, err)
	got, err := h.SearchKNN(context.Background(), []float64{0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, texts(got))
}

func TestBuildErrors(t *testing.T) {
	b, err := New(Config{}, zerolog.Nop())
	require.NoError(t, err)

	_, err = b.Build(context.Background(), nil, vectorstore.Meta{})
	assert.ErrorIs(t, err, domain.ErrEmptyIndex)

	bad := entries()
	bad[1].Vector = []float64{1, 2, 3}
	_, err = b.Build(context.Background(), bad, vectorstore.Meta{})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = New(Config{Metric: "manhattan"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestInvalidHandles(t *testing.T) {
	ctx := context.Background()
	var zero Index
	_, err := zero.SearchKNN(ctx, []float64{1}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidHandle)
	assert.ErrorIs(t, zero.Persist(ctx, t.TempDir()), domain.ErrInvalidHandle)

	h := build(t, L2)
	_, err = h.SearchKNN(ctx, []float64{1, 0, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	require.NoError(t, h.Drop(ctx))
	_, err = h.SearchScored(ctx, []float64{1, 0}, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidHandle)
}

func TestPersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, metric := range []string{L2, Cosine, Dot} {
		h := build(t, metric)
		loc := filepath.Join(t.TempDir(), "index")
		require.NoError(t, h.Persist(ctx, loc))

		b, err := New(Config{Metric: L2}, zerolog.Nop())
		require.NoError(t, err)
		loaded, err := vectorstore.Open(ctx, loc, b)
		require.NoError(t, err)

		assert.Equal(t, h.ID(), loaded.ID())
		assert.Equal(t, metric, loaded.Metric())
		assert.Equal(t, h.Len(), loaded.Len())
		assert.Equal(t, h.Meta(), loaded.Meta())

		query := []float64{0.3, 0.7}
		want, err := h.SearchScored(ctx, query, 0)
		require.NoError(t, err)
		got, err := loaded.SearchScored(ctx, query, 0)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestPersistReplacesExisting(t *testing.T) {
	ctx := context.Background()
	loc := filepath.Join(t.TempDir(), "index")
	require.NoError(t, build(t, L2).Persist(ctx, loc))
	second := build(t, Cosine)
	require.NoError(t, second.Persist(ctx, loc))

	m, err := vectorstore.ReadManifest(loc)
	require.NoError(t, err)
	assert.Equal(t, second.ID(), m.ID)
	assert.Equal(t, Cosine, m.Metric)

	siblings, err := os.ReadDir(filepath.Dir(loc))
	require.NoError(t, err)
	assert.Len(t, siblings, 1)
}

func TestLoadFailures(t *testing.T) {
	ctx := context.Background()
	b, err := New(Config{}, zerolog.Nop())
	require.NoError(t, err)

	_, err = b.Load(ctx, filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, domain.ErrPersistence)

	loc := filepath.Join(t.TempDir(), "index")
	require.NoError(t, build(t, L2).Persist(ctx, loc))
	require.NoError(t, os.WriteFile(filepath.Join(loc, entriesFile), []byte(`{"chunk":{"text":"x"},"vector":[1,0]}`+"\n{broken"), 0o644))
	_, err = b.Load(ctx, loc)
	assert.ErrorIs(t, err, domain.ErrPersistence)

	require.NoError(t, os.WriteFile(filepath.Join(loc, vectorstore.ManifestFile), []byte(`{"version":1}`), 0o644))
	_, err = b.Load(ctx, loc)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	loc := filepath.Join(t.TempDir(), "index")
	require.NoError(t, build(t, L2).Persist(ctx, loc))
	b, err := New(Config{}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, vectorstore.Delete(ctx, loc, b))
	_, err = os.Stat(loc)
	assert.True(t, os.IsNotExist(err))

	err = vectorstore.Delete(ctx, loc, b)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}
