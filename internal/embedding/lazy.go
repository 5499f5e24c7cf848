package embedding

import (
	"context"
	"errors"
	"io"
	"sync"

	"studyrag/internal/domain"
)

var errLazyClosed = errors.New("embedder holder is closed")

// Lazy builds an embedder on first use and shares it between callers.
// A failed initialisation is retried on the next Get.
type Lazy struct {
	init func(ctx context.Context) (domain.Embedder, error)

	mu     sync.Mutex
	value  domain.Embedder
	closed bool
}

// NewLazy returns a holder that calls init the first time Get is called.
func NewLazy(init func(ctx context.Context) (domain.Embedder, error)) *Lazy {
	return &Lazy{init: init}
}

// Get returns the shared embedder, initialising it if needed.
func (l *Lazy) Get(ctx context.Context) (domain.Embedder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errLazyClosed
	}
	if l.value != nil {
		return l.value, nil
	}
	v, err := l.init(ctx)
	if err != nil {
		return nil, err
	}
	l.value = v
	return v, nil
}

// Close releases the embedder. Embedders implementing io.Closer are closed.
// Later calls to Get fail.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	v := l.value
	l.value = nil
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
