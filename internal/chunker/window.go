package chunker

import (
	"fmt"
	"strings"

	"studyrag/internal/domain"
)

// Split slides a window of chunkSize runes over text, advancing by
// chunkSize-overlap, and emits every non-blank window as a chunk.
// The result depends only on the arguments.
func Split(text, sourceID string, chunkSize, overlap int) ([]domain.Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidChunkParams, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", domain.ErrInvalidChunkParams, chunkSize, overlap)
	}
	runes := []rune(text)
	step := chunkSize - overlap

	var chunks []domain.Chunk
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		window := string(runes[start:end])
		if strings.TrimSpace(window) == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			SourceID: sourceID,
			Index:    len(chunks),
			Offset:   start,
			Text:     window,
		})
	}
	return chunks, nil
}

// WindowChunker adapts Split to the domain.Chunker interface.
type WindowChunker struct {
	chunkSize int
	overlap   int
}

// NewWindowChunker validates the window parameters up front so that a
// misconfigured pipeline fails before any document is read.
func NewWindowChunker(chunkSize, overlap int) (*WindowChunker, error) {
	if _, err := Split("", "", chunkSize, overlap); err != nil {
		return nil, err
	}
	return &WindowChunker{chunkSize: chunkSize, overlap: overlap}, nil
}

func (c *WindowChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	return Split(document.Content, document.ID, c.chunkSize, c.overlap)
}
