package domain

import (
	"context"
	"strconv"
)

// Document represents a single source file after text extraction.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a contiguous window of document text used for indexing.
type Chunk struct {
	SourceID string `json:"source_id"`
	Index    int    `json:"index"`
	Offset   int    `json:"offset"`
	Text     string `json:"text"`
}

// ID renders the unique (SourceID, Index) identity of the chunk.
func (c Chunk) ID() string {
	return c.SourceID + ":" + strconv.Itoa(c.Index)
}

// IndexEntry pairs a chunk with its embedding vector.
type IndexEntry struct {
	Chunk  Chunk
	Vector []float64
}

// Candidate is a chunk returned by a vector index together with the
// backend-native score. RawScore is nil when the backend reported none.
type Candidate struct {
	Chunk    Chunk
	RawScore *float64
}

// ScoredChunk is a chunk with a similarity normalized into [0,1].
type ScoredChunk struct {
	Chunk      Chunk
	Similarity float64
}

// Message is one turn of a conversation forwarded to a generator.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Extractor converts a source document into plain text.
type Extractor interface {
	Extract(path string) (string, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts free text into fixed-dimension vectors.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedMany(ctx context.Context, texts []string) ([][]float64, error)
	EmbedOne(ctx context.Context, text string) ([]float64, error)
}

// MultiEmbedder serves each call from one of several backends. Vectors from
// different backends are not comparable, so an index must be queried through
// the backend that embedded it.
type MultiEmbedder interface {
	Embedder
	// EmbedManyTagged also returns the name of the backend that served the batch.
	EmbedManyTagged(ctx context.Context, texts []string) ([][]float64, string, error)
	// Pin returns an embedder restricted to the named backend.
	Pin(backend string) (Embedder, error)
}

// Generator produces natural-language answers from retrieved context.
type Generator interface {
	Answer(ctx context.Context, query string, chunks []Chunk, history []Message) (string, error)
	Notes(ctx context.Context, topic string, scored []ScoredChunk) (string, error)
}

// Translator translates English text into the configured target language.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
