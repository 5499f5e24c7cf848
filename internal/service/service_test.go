package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/domain"
	"studyrag/internal/embedding"
	"studyrag/internal/embedding/hashing"
	"studyrag/internal/extractor"
	"studyrag/internal/llm"
	"studyrag/internal/retrieval"
	"studyrag/internal/testutil"
	"studyrag/internal/vectorstore/memory"
)

var slides = [][]string{
	{"Cell biology", "Mitochondria produce ATP through cellular respiration."},
	{"Photosynthesis", "Chloroplasts capture light energy and store it as glucose.", "Plants release oxygen."},
	{"History", "The French revolution began in 1789 with the storming of the Bastille."},
}

type upperTranslator struct{ calls []string }

func (u *upperTranslator) Translate(_ context.Context, text string) (string, error) {
	u.calls = append(u.calls, text)
	return strings.ToUpper(text), nil
}

type failingEmbedder struct{ domain.Embedder }

func (failingEmbedder) EmbedMany(context.Context, []string) ([][]float64, error) {
	return nil, fmt.Errorf("offline: %w", domain.ErrEmbeddingBackend)
}

func newService(t *testing.T, storeDir string, emb domain.Embedder) *Service {
	t.Helper()
	backend, err := memory.New(memory.Config{Metric: memory.L2}, zerolog.Nop())
	require.NoError(t, err)
	gen := llm.NewExtractive(2, 6)
	return New(Deps{
		Extractor:  extractor.New(extractor.Config{}, zerolog.Nop()),
		Embedder:   emb,
		Backend:    backend,
		Engine:     retrieval.New(emb, retrieval.Options{}, zerolog.Nop()),
		Generator:  gen,
		Translator: &upperTranslator{},
		Summarizer: gen,
	}, Options{StoreDir: storeDir, TopK: 2, Threshold: 0.5}, zerolog.Nop())
}

func TestBuildIndexAndQuery(t *testing.T) {
	ctx := context.Background()
	deck := testutil.WriteDeck(t, t.TempDir(), "Biology Lecture 1.pptx", slides)
	store := t.TempDir()
	svc := newService(t, store, hashing.NewEmbedder(128))

	built, err := svc.BuildIndex(ctx, deck, 80, 20)
	require.NoError(t, err)
	assert.Greater(t, built.Chunks, 2)
	assert.Equal(t, built.Chunks, built.Handle.Len())
	assert.True(t, strings.HasPrefix(filepath.Base(built.Location), "Biology_Lecture_1_"))
	assert.Equal(t, store, filepath.Dir(built.Location))
	assert.NotEmpty(t, built.Summary)

	chunks, err := svc.Precise(ctx, built.Handle, "what do mitochondria produce", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Text, "Mitochondria")

	ans, err := svc.Ask(ctx, built.Handle, "What do mitochondria produce?", nil)
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "ATP")
	assert.Len(t, ans.Chunks, 2)

	st := StatusOf(built.Handle, built.Location)
	assert.Equal(t, "memory", st.Backend)
	assert.Equal(t, 128, st.Dimension)
	assert.Equal(t, "Biology_Lecture_1", st.SourceID)
	assert.Equal(t, "hashing", st.Embedder)
}

func TestReopenedIndexAnswersIdentically(t *testing.T) {
	ctx := context.Background()
	deck := testutil.WriteDeck(t, t.TempDir(), "deck.pptx", slides)
	svc := newService(t, t.TempDir(), hashing.NewEmbedder(64))

	built, err := svc.BuildIndex(ctx, deck, 60, 10)
	require.NoError(t, err)
	reopened, err := svc.Open(ctx, built.Location)
	require.NoError(t, err)

	for _, q := range []string{"light energy", "revolution 1789", "oxygen"} {
		want, err := svc.Precise(ctx, built.Handle, q, 3)
		require.NoError(t, err)
		got, err := svc.Precise(ctx, reopened, q, 3)
		require.NoError(t, err)
		assert.Equal(t, want, got, q)

		wantScored, err := svc.Comprehensive(ctx, built.Handle, q, 0.3)
		require.NoError(t, err)
		gotScored, err := svc.Comprehensive(ctx, reopened, q, 0.3)
		require.NoError(t, err)
		assert.Equal(t, wantScored, gotScored, q)
	}
}

func TestOpenRejectsOtherDimension(t *testing.T) {
	ctx := context.Background()
	deck := testutil.WriteDeck(t, t.TempDir(), "deck.pptx", slides)
	store := t.TempDir()
	built, err := newService(t, store, hashing.NewEmbedder(64)).BuildIndex(ctx, deck, 60, 10)
	require.NoError(t, err)

	_, err = newService(t, store, hashing.NewEmbedder(32)).Open(ctx, built.Location)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestNotes(t *testing.T) {
	ctx := context.Background()
	deck := testutil.WriteDeck(t, t.TempDir(), "deck.pptx", slides)
	svc := newService(t, t.TempDir(), hashing.NewEmbedder(128))
	svc.opts.Threshold = 0.3
	built, err := svc.BuildIndex(ctx, deck, 200, 0)
	require.NoError(t, err)

	notes, err := svc.Notes(ctx, built.Handle, "photosynthesis light energy")
	require.NoError(t, err)
	assert.NotEmpty(t, notes.Scored)
	assert.True(t, strings.HasPrefix(notes.Text, "# photosynthesis light energy"))

	empty, err := svc.Notes(ctx, built.Handle, "   ")
	require.NoError(t, err)
	assert.Equal(t, NoInformation, empty.Text)

	ans, err := svc.Ask(ctx, built.Handle, "", nil)
	require.NoError(t, err)
	assert.Equal(t, NoInformation, ans.Text)
}

func TestBuildIndexFailuresPersistNothing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	deck := testutil.WriteDeck(t, dir, "deck.pptx", slides)
	blank := testutil.WriteDeck(t, dir, "blank.pptx", [][]string{{"  "}})
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("plain text"), 0o644))

	cases := []struct {
		name    string
		path    string
		size    int
		overlap int
		emb     domain.Embedder
		want    error
	}{
		{"unsupported", notes, 100, 10, hashing.NewEmbedder(16), domain.ErrUnsupportedFormat},
		{"missing", filepath.Join(dir, "gone.pdf"), 100, 10, hashing.NewEmbedder(16), domain.ErrExtraction},
		{"empty", blank, 100, 10, hashing.NewEmbedder(16), domain.ErrEmptyDocument},
		{"overlap", deck, 100, 100, hashing.NewEmbedder(16), domain.ErrInvalidChunkParams},
		{"embedder", deck, 100, 10, failingEmbedder{hashing.NewEmbedder(16)}, domain.ErrEmbeddingBackend},
	}
	for _, c := range cases {
		store := t.TempDir()
		_, err := newService(t, store, c.emb).BuildIndex(ctx, c.path, c.size, c.overlap)
		assert.ErrorIs(t, err, c.want, c.name)
		entries, err := os.ReadDir(store)
		require.NoError(t, err)
		assert.Empty(t, entries, c.name)
	}
}

func TestBuildIndexPersistFailure(t *testing.T) {
	dir := t.TempDir()
	deck := testutil.WriteDeck(t, dir, "deck.pptx", slides)
	blocker := filepath.Join(dir, "store")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0o644))

	_, err := newService(t, blocker, hashing.NewEmbedder(16)).BuildIndex(context.Background(), deck, 100, 10)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestTranslatePerLine(t *testing.T) {
	tr := &upperTranslator{}
	svc := New(Deps{Translator: tr}, Options{}, zerolog.Nop())

	got, err := svc.Translate(context.Background(), "# Cells\n\n- divide by mitosis\n1. grow\nplain line\n  ")
	require.NoError(t, err)
	assert.Equal(t, "# CELLS\n\n- DIVIDE BY MITOSIS\n1. GROW\nPLAIN LINE\n  ", got)
	assert.Equal(t, []string{"Cells", "divide by mitosis", "grow", "plain line"}, tr.calls)

	plain := New(Deps{}, Options{}, zerolog.Nop())
	got, err = plain.Translate(context.Background(), "unchanged")
	require.NoError(t, err)
	assert.Equal(t, "unchanged", got)
}

func TestSourceID(t *testing.T) {
	assert.Equal(t, "Biology_Lecture_1", SourceID("/tmp/Biology Lecture 1.pptx"))
	assert.Equal(t, "notes-v2", SourceID("notes-v2.pdf"))
	assert.Equal(t, "document", SourceID("/tmp/???.pdf"))
}

func TestReadable(t *testing.T) {
	assert.Equal(t, "", Readable(nil))
	assert.Contains(t, Readable(fmt.Errorf("x: %w", domain.ErrUnsupportedFormat)), "Unsupported")
	assert.Contains(t, Readable(domain.ErrPersistence), "Ingest the document again")
	assert.Contains(t, Readable(fmt.Errorf("open: %w", domain.ErrEmbedderMismatch)), "not configured")
	assert.Equal(t, "Error: boom", Readable(errors.New("boom")))
}

// switchableRemote embeds like the hashing embedder under a remote name and
// can be taken down.
type switchableRemote struct {
	*hashing.Embedder
	down  atomic.Bool
	calls atomic.Int32
}

func (r *switchableRemote) Name() string { return "openai:test-embedding" }

func (r *switchableRemote) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	r.calls.Add(1)
	if r.down.Load() {
		return nil, errors.New("503 service unavailable")
	}
	return r.Embedder.EmbedMany(ctx, texts)
}

func (r *switchableRemote) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	vecs, err := r.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func newFallbackService(t *testing.T, store string) (*Service, *switchableRemote) {
	t.Helper()
	remote := &switchableRemote{Embedder: hashing.NewEmbedder(64)}
	fb, err := embedding.NewFallback(remote, hashing.NewEmbedder(64), embedding.FallbackConfig{}, zerolog.Nop())
	require.NoError(t, err)
	return newService(t, store, fb), remote
}

func TestQueriesStayOnBuildBackend(t *testing.T) {
	ctx := context.Background()
	deck := testutil.WriteDeck(t, t.TempDir(), "deck.pptx", slides)
	svc, remote := newFallbackService(t, t.TempDir())

	built, err := svc.BuildIndex(ctx, deck, 80, 20)
	require.NoError(t, err)
	assert.Equal(t, "openai:test-embedding", built.Handle.Meta().Embedder)

	remote.down.Store(true)
	_, err = svc.Comprehensive(ctx, built.Handle, "mitochondria", 0)
	assert.ErrorIs(t, err, domain.ErrEmbeddingBackend)
	_, err = svc.Ask(ctx, built.Handle, "What do mitochondria produce?", nil)
	assert.ErrorIs(t, err, domain.ErrEmbeddingBackend)

	remote.down.Store(false)
	reopened, err := svc.Open(ctx, built.Location)
	require.NoError(t, err)
	chunks, err := svc.Precise(ctx, reopened, "mitochondria", 1)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "Mitochondria")
}

func TestLocallyBuiltIndexIgnoresRecoveredRemote(t *testing.T) {
	ctx := context.Background()
	deck := testutil.WriteDeck(t, t.TempDir(), "deck.pptx", slides)
	svc, remote := newFallbackService(t, t.TempDir())

	remote.down.Store(true)
	built, err := svc.BuildIndex(ctx, deck, 80, 20)
	require.NoError(t, err)
	assert.Equal(t, "hashing", built.Handle.Meta().Embedder)

	remote.down.Store(false)
	before := remote.calls.Load()
	_, err = svc.Comprehensive(ctx, built.Handle, "light energy", 0)
	require.NoError(t, err)
	assert.Equal(t, before, remote.calls.Load())
}

func TestOpenRejectsIndexFromUnconfiguredBackend(t *testing.T) {
	ctx := context.Background()
	deck := testutil.WriteDeck(t, t.TempDir(), "deck.pptx", slides)
	store := t.TempDir()
	svc, _ := newFallbackService(t, store)
	built, err := svc.BuildIndex(ctx, deck, 80, 20)
	require.NoError(t, err)

	_, err = newService(t, store, hashing.NewEmbedder(64)).Open(ctx, built.Location)
	assert.ErrorIs(t, err, domain.ErrEmbedderMismatch)
}
