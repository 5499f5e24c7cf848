// Package service wires extraction, chunking, embedding, indexing and
// retrieval into the operations exposed by the CLI and the terminal UI.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studyrag/internal/chunker"
	"studyrag/internal/domain"
	"studyrag/internal/embedding"
	"studyrag/internal/retrieval"
	"studyrag/internal/vectorstore"
)

// NoInformation is the answer given when retrieval finds nothing relevant.
const NoInformation = "I couldn't find relevant information in the uploaded materials to answer your question."

type Options struct {
	StoreDir         string
	TopK             int
	Threshold        float64
	SummarySentences int
}

// Deps are the collaborators of a Service. Translator and Summarizer are
// optional.
type Deps struct {
	Extractor  domain.Extractor
	Embedder   domain.Embedder
	Backend    vectorstore.Backend
	Loaders    []vectorstore.Backend
	Engine     *retrieval.Engine
	Generator  domain.Generator
	Translator domain.Translator
	Summarizer domain.Summarizer
}

type Service struct {
	deps Deps
	opts Options
	log  zerolog.Logger
}

func New(deps Deps, opts Options, log zerolog.Logger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.75
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 3
	}
	if len(deps.Loaders) == 0 && deps.Backend != nil {
		deps.Loaders = []vectorstore.Backend{deps.Backend}
	}
	return &Service{deps: deps, opts: opts, log: log}
}

// Built is the outcome of a successful BuildIndex.
type Built struct {
	Handle   vectorstore.Handle
	Location string
	Chunks   int
	Summary  string
}

// BuildIndex extracts, chunks, embeds and indexes the document at path and
// persists the index under the store directory. Nothing is persisted when
// any stage fails.
func (s *Service) BuildIndex(ctx context.Context, path string, chunkSize, overlap int) (Built, error) {
	start := time.Now()
	ch, err := chunker.NewWindowChunker(chunkSize, overlap)
	if err != nil {
		return Built{}, err
	}

	text, err := s.deps.Extractor.Extract(path)
	if err != nil {
		return Built{}, err
	}
	doc := domain.Document{ID: SourceID(path), Path: path, Content: text}
	chunks, err := ch.Chunk(doc)
	if err != nil {
		return Built{}, err
	}
	if len(chunks) == 0 {
		return Built{}, fmt.Errorf("%s: %w", path, domain.ErrEmptyDocument)
	}
	s.log.Info().Str("source", doc.ID).Int("chars", len([]rune(text))).Int("chunks", len(chunks)).Msg("document chunked")

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, backend, err := embedding.EmbedTagged(ctx, s.deps.Embedder, texts)
	if err != nil {
		return Built{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return Built{}, fmt.Errorf("embedder returned %d vectors for %d chunks: %w", len(vecs), len(chunks), domain.ErrEmbeddingBackend)
	}
	want := s.deps.Embedder.Dimension()
	entries := make([]domain.IndexEntry, len(chunks))
	for i := range chunks {
		if want > 0 && len(vecs[i]) != want {
			return Built{}, fmt.Errorf("chunk %s embedded with dimension %d, embedder declares %d: %w",
				chunks[i].ID(), len(vecs[i]), want, domain.ErrDimensionMismatch)
		}
		entries[i] = domain.IndexEntry{Chunk: chunks[i], Vector: vecs[i]}
	}

	h, err := s.deps.Backend.Build(ctx, entries, vectorstore.Meta{SourceID: doc.ID, Embedder: backend})
	if err != nil {
		return Built{}, fmt.Errorf("build index: %w", err)
	}
	location := filepath.Join(s.opts.StoreDir, doc.ID+"_"+shortID(h.ID()))
	if err := h.Persist(ctx, location); err != nil {
		if derr := h.Drop(context.Background()); derr != nil {
			s.log.Warn().Err(derr).Str("index", h.ID()).Msg("failed to drop unpersisted index")
		}
		return Built{}, fmt.Errorf("persist index: %w", err)
	}

	built := Built{Handle: h, Location: location, Chunks: len(chunks)}
	if s.deps.Summarizer != nil {
		summary, err := s.deps.Summarizer.Summarize(text, s.opts.SummarySentences)
		if err != nil {
			s.log.Warn().Err(err).Msg("document summary failed")
		} else {
			built.Summary = summary
		}
	}
	s.log.Info().Str("location", location).Str("backend", h.Backend()).Str("embedder", backend).Int("dimension", h.Dimension()).
		Dur("took", time.Since(start)).Msg("index built")
	return built, nil
}

// Open loads a persisted index. The index is refused when the configured
// embedder cannot produce vectors from the backend that built it.
func (s *Service) Open(ctx context.Context, location string) (vectorstore.Handle, error) {
	h, err := vectorstore.Open(ctx, location, s.deps.Loaders...)
	if err != nil {
		return nil, err
	}
	if _, err := embedding.ForIndex(s.deps.Embedder, h.Meta().Embedder); err != nil {
		return nil, err
	}
	if h.Dimension() != s.deps.Embedder.Dimension() {
		return nil, fmt.Errorf("index dimension %d, embedder dimension %d: %w", h.Dimension(), s.deps.Embedder.Dimension(), domain.ErrDimensionMismatch)
	}
	return h, nil
}

// Precise runs fixed-count retrieval. k <= 0 uses the configured top_k.
func (s *Service) Precise(ctx context.Context, h vectorstore.Handle, query string, k int) ([]domain.Chunk, error) {
	if k <= 0 {
		k = s.opts.TopK
	}
	return s.deps.Engine.Precise(ctx, query, h, k)
}

// Comprehensive runs threshold retrieval. A negative threshold uses the
// configured one.
func (s *Service) Comprehensive(ctx context.Context, h vectorstore.Handle, query string, threshold float64) ([]domain.ScoredChunk, error) {
	if threshold < 0 {
		threshold = s.opts.Threshold
	}
	return s.deps.Engine.Comprehensive(ctx, query, h, threshold)
}

type Answer struct {
	Text   string
	Chunks []domain.Chunk
}

// Ask answers question from the top_k closest chunks.
func (s *Service) Ask(ctx context.Context, h vectorstore.Handle, question string, history []domain.Message) (Answer, error) {
	chunks, err := s.Precise(ctx, h, question, 0)
	if err != nil {
		return Answer{}, err
	}
	if len(chunks) == 0 {
		return Answer{Text: NoInformation}, nil
	}
	text, err := s.deps.Generator.Answer(ctx, question, chunks, history)
	if err != nil {
		return Answer{Chunks: chunks}, fmt.Errorf("generate answer: %w", err)
	}
	return Answer{Text: text, Chunks: chunks}, nil
}

type Notes struct {
	Text   string
	Scored []domain.ScoredChunk
}

// Notes synthesizes study notes from every chunk above the threshold.
func (s *Service) Notes(ctx context.Context, h vectorstore.Handle, topic string) (Notes, error) {
	scored, err := s.Comprehensive(ctx, h, topic, -1)
	if err != nil {
		return Notes{}, err
	}
	if len(scored) == 0 {
		return Notes{Text: NoInformation}, nil
	}
	text, err := s.deps.Generator.Notes(ctx, topic, scored)
	if err != nil {
		return Notes{Scored: scored}, fmt.Errorf("generate notes: %w", err)
	}
	return Notes{Text: text, Scored: scored}, nil
}

var markerRe = regexp.MustCompile(`^(\s*(?:#{1,6}\s+|[-*•]\s+|\d+[.)]\s+)?)(.*)$`)

// Translate translates text line by line. Blank lines are kept and list or
// heading markers are left untranslated.
func (s *Service) Translate(ctx context.Context, text string) (string, error) {
	if s.deps.Translator == nil {
		return text, nil
	}
	lines := strings.Split(text, "\n")
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = line
			continue
		}
		m := markerRe.FindStringSubmatch(line)
		prefix, body := m[1], m[2]
		if strings.TrimSpace(body) == "" {
			out[i] = line
			continue
		}
		tr, err := s.deps.Translator.Translate(ctx, body)
		if err != nil {
			return "", fmt.Errorf("translate line %d: %w", i+1, err)
		}
		out[i] = prefix + tr
	}
	return strings.Join(out, "\n"), nil
}

type Status struct {
	ID        string
	Location  string
	Backend   string
	Metric    string
	Dimension int
	Chunks    int
	SourceID  string
	Embedder  string
}

// StatusOf describes the index h persisted at location.
func StatusOf(h vectorstore.Handle, location string) Status {
	meta := h.Meta()
	return Status{
		ID:        h.ID(),
		Location:  location,
		Backend:   h.Backend(),
		Metric:    h.Metric(),
		Dimension: h.Dimension(),
		Chunks:    h.Len(),
		SourceID:  meta.SourceID,
		Embedder:  meta.Embedder,
	}
}

var unsafeID = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

// SourceID derives a filesystem-safe identifier from the document file name.
func SourceID(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	id := strings.Trim(unsafeID.ReplaceAllString(stem, "_"), "_")
	if id == "" {
		return "document"
	}
	return id
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Readable turns pipeline errors into a message suitable for end users.
func Readable(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return "Unsupported file type. Upload a PDF or a PowerPoint deck."
	case errors.Is(err, domain.ErrEmptyDocument):
		return "No text could be extracted from the document."
	case errors.Is(err, domain.ErrExtraction):
		return "The document could not be read. It may be corrupt or password protected."
	case errors.Is(err, domain.ErrInvalidChunkParams):
		return "Chunk overlap must be smaller than the chunk size."
	case errors.Is(err, domain.ErrPersistence):
		return "The saved index is missing or damaged. Ingest the document again."
	case errors.Is(err, domain.ErrInvalidHandle):
		return "No index is loaded."
	case errors.Is(err, domain.ErrEmbedderMismatch):
		return "The index was embedded by a backend that is not configured. Restore that embedder or ingest the document again."
	case errors.Is(err, domain.ErrDimensionMismatch):
		return "The index was built with a different embedding model."
	case errors.Is(err, domain.ErrEmbeddingBackend):
		return "No embedding backend is available."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out."
	}
	return "Error: " + err.Error()
}
