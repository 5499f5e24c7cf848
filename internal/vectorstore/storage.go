// Package vectorstore defines the index contract shared by the memory and
// qdrant backends and the on-disk manifest that identifies a persisted index.
package vectorstore

import (
	"context"
	"fmt"
	"os"

	"studyrag/internal/domain"
)

// Meta describes where the entries of an index came from.
type Meta struct {
	SourceID string
	Embedder string
}

// Backend builds new indexes and reopens persisted ones.
type Backend interface {
	Name() string
	Build(ctx context.Context, entries []domain.IndexEntry, meta Meta) (Handle, error)
	Load(ctx context.Context, location string) (Handle, error)
}

// Handle is one built index. Searches are safe for concurrent use.
// SearchKNN returns at most k candidates best-first. SearchScored returns a
// candidate pool of at most limit entries for threshold filtering.
type Handle interface {
	ID() string
	Backend() string
	Metric() string
	Dimension() int
	Len() int
	Meta() Meta
	SearchKNN(ctx context.Context, vector []float64, k int) ([]domain.Candidate, error)
	SearchScored(ctx context.Context, vector []float64, limit int) ([]domain.Candidate, error)
	Persist(ctx context.Context, location string) error
	Drop(ctx context.Context) error
}

// Open reads the manifest at location and loads it with the matching backend.
func Open(ctx context.Context, location string, backends ...Backend) (Handle, error) {
	m, err := ReadManifest(location)
	if err != nil {
		return nil, err
	}
	for _, b := range backends {
		if b != nil && b.Name() == m.Backend {
			return b.Load(ctx, location)
		}
	}
	return nil, fmt.Errorf("no backend %q configured for %s: %w", m.Backend, location, domain.ErrPersistence)
}

// Delete drops the index persisted at location and removes the directory.
func Delete(ctx context.Context, location string, backends ...Backend) error {
	h, err := Open(ctx, location, backends...)
	if err != nil {
		return err
	}
	if err := h.Drop(ctx); err != nil {
		return fmt.Errorf("drop %s: %w", location, err)
	}
	if err := os.RemoveAll(location); err != nil {
		return fmt.Errorf("remove %s: %v: %w", location, err, domain.ErrPersistence)
	}
	return nil
}

// CheckEntries validates that entries are non-empty and share one
// dimension, which it returns.
func CheckEntries(entries []domain.IndexEntry) (int, error) {
	if len(entries) == 0 {
		return 0, domain.ErrEmptyIndex
	}
	dim := len(entries[0].Vector)
	if dim == 0 {
		return 0, fmt.Errorf("entry %s has an empty vector: %w", entries[0].Chunk.ID(), domain.ErrDimensionMismatch)
	}
	for _, e := range entries[1:] {
		if len(e.Vector) != dim {
			return 0, fmt.Errorf("entry %s has dimension %d, want %d: %w",
				e.Chunk.ID(), len(e.Vector), dim, domain.ErrDimensionMismatch)
		}
	}
	return dim, nil
}

// CheckQuery validates a query vector against the handle dimension.
func CheckQuery(vector []float64, dimension int) error {
	if len(vector) != dimension {
		return fmt.Errorf("query has dimension %d, index has %d: %w", len(vector), dimension, domain.ErrDimensionMismatch)
	}
	return nil
}
