// Copyright 2025 Hollowbrook Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hollowbrook/kbflow/core"
)

var (
	// ErrDimensionMismatch is returned when the provider returns
	// vectors whose width differs from the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrCountMismatch is returned when the provider returns a
	// different number of vectors than texts sent.
	ErrCountMismatch = errors.New("embedding count mismatch")
)

// Generator embeds chunk texts in batches. A single Generator is shared
// by all pipeline workers, so its rate limiter paces the whole run, not
// one document.
type Generator struct {
	embedder  Embedder
	batchSize int
	dimension int
	timeout   time.Duration
	limiter   *rate.Limiter
	retry     core.RetryPolicy
	logger    *slog.Logger
}

// NewGenerator wires a generator. requestsPerSecond <= 0 disables
// pacing. dimension <= 0 disables the width check.
func NewGenerator(embedder Embedder, batchSize, dimension int, requestsPerSecond float64, timeout time.Duration, retry core.RetryPolicy, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &Generator{
		embedder:  embedder,
		batchSize: batchSize,
		dimension: dimension,
		timeout:   timeout,
		limiter:   rate.NewLimiter(limit, 1),
		retry:     retry,
		logger:    logger.With("component", "embedder"),
	}
}

// Generate embeds all texts, preserving order. It returns the vectors
// and the largest attempt count any batch needed, so callers can report
// how hard the provider pushed back.
func (g *Generator) Generate(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	vectors := make([][]float32, 0, len(texts))
	maxAttempts := 0

	for start := 0; start < len(texts); start += g.batchSize {
		end := start + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		batchVectors, attempts, err := g.embedBatch(ctx, batch)
		if attempts > maxAttempts {
			maxAttempts = attempts
		}
		if err != nil {
			return nil, maxAttempts, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batchVectors...)
	}

	return vectors, maxAttempts, nil
}

func (g *Generator) embedBatch(ctx context.Context, batch []string) ([][]float32, int, error) {
	var vectors [][]float32

	attempts, err := g.retry.Do(ctx, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}

		result, err := g.embedder.EmbedTexts(callCtx, batch)
		if err != nil {
			return err
		}

		if len(result) != len(batch) {
			return core.Permanent(fmt.Errorf("%w: sent %d texts, got %d vectors", ErrCountMismatch, len(batch), len(result)))
		}
		if g.dimension > 0 {
			for i, v := range result {
				if len(v) != g.dimension {
					return core.Permanent(fmt.Errorf("%w: vector %d has %d values, want %d", ErrDimensionMismatch, i, len(v), g.dimension))
				}
			}
		}

		vectors = result
		return nil
	})
	if err != nil {
		return nil, attempts, err
	}

	if attempts > 1 {
		g.logger.Debug("batch embedded after retries", "attempts", attempts, "size", len(batch))
	}
	return vectors, attempts, nil
}
