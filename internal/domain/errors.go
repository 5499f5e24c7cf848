package domain

import "errors"

// Extraction stage. These are never retried: a corrupt file stays corrupt.
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrEmptyDocument     = errors.New("no text could be extracted from the document")
	ErrExtraction        = errors.New("text extraction failed")
)

var ErrInvalidChunkParams = errors.New("invalid chunk parameters")

// Index and retrieval stage. Propagated to callers unchanged.
var (
	ErrEmptyIndex        = errors.New("cannot build an index from zero entries")
	ErrInvalidHandle     = errors.New("vector store handle is not built or has been dropped")
	ErrPersistence       = errors.New("vector store persistence failed")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmbedderMismatch  = errors.New("index was embedded by a different backend")
)

// ErrEmbeddingBackend is surfaced only when every configured embedder failed.
var ErrEmbeddingBackend = errors.New("embedding backend failed")
