// Package mock provides a deterministic in-process Embedder for tests.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
)

// Embedder produces deterministic vectors derived from the text bytes,
// so the same text always embeds to the same vector. Set EmbedFunc to
// override behavior, for example to inject failures.
type Embedder struct {
	Dimension int

	// EmbedFunc, when set, replaces the default behavior entirely.
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

	mu    sync.Mutex
	calls int
}

// New creates a mock embedder producing vectors of the given width.
func New(dimension int) *Embedder {
	return &Embedder{Dimension: dimension}
}

// Calls reports how many times EmbedTexts has been invoked.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// EmbedTexts implements embed.Embedder.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.EmbedFunc != nil {
		return e.EmbedFunc(ctx, texts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = Vector(text, e.Dimension)
	}
	return vectors, nil
}

// Vector derives a deterministic unit-free vector from text.
func Vector(text string, dimension int) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, dimension)
	for i := range v {
		word := binary.BigEndian.Uint32(sum[(i*4)%28 : (i*4)%28+4])
		v[i] = float32(word%2000)/1000 - 1
	}
	return v
}
