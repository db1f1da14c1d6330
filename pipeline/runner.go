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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/hollowbrook/kbflow/chunk"
	"github.com/hollowbrook/kbflow/core"
	"github.com/hollowbrook/kbflow/embed"
	"github.com/hollowbrook/kbflow/extract"
	"github.com/hollowbrook/kbflow/notify"
	"github.com/hollowbrook/kbflow/storage"
	"github.com/hollowbrook/kbflow/vector"
)

// ErrInvalidConcurrency is returned for a non-positive worker count.
var ErrInvalidConcurrency = errors.New("concurrency must be positive")

// Config holds the orchestration settings of a run.
type Config struct {
	SourcePrefix    string
	ProcessedPrefix string

	// Concurrency is the maximum number of documents in flight.
	Concurrency int

	// Retry governs storage and vector writes. Embedding carries its
	// own policy inside the generator.
	Retry core.RetryPolicy

	// Progress, when non-nil, receives a live progress line.
	Progress io.Writer
}

// Runner drives documents through the five stages. One Runner performs
// one run at a time; the embedding generator and vector writer it holds
// are shared by all its workers.
type Runner struct {
	cfg       Config
	store     storage.ObjectStore
	extractor *extract.Registry
	splitter  *chunk.Splitter
	embedder  *embed.Generator
	writer    vector.Writer
	sink      notify.Sink
	logger    *slog.Logger
}

// NewRunner wires a runner. A nil sink disables notifications, a nil
// logger selects the default.
func NewRunner(cfg Config, store storage.ObjectStore, extractor *extract.Registry, splitter *chunk.Splitter, embedder *embed.Generator, writer vector.Writer, sink notify.Sink, logger *slog.Logger) (*Runner, error) {
	if cfg.Concurrency <= 0 {
		return nil, ErrInvalidConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = notify.NewMulti(logger)
	}
	return &Runner{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		writer:    writer,
		sink:      sink,
		logger:    logger.With("component", "runner"),
	}, nil
}

// Run executes one full pass over the source prefix. The returned
// summary is complete even when some documents failed; the error is
// non-nil only for run-fatal conditions: a failed listing, or the run
// context ending before every document was drained.
func (r *Runner) Run(ctx context.Context) (*core.RunSummary, error) {
	summary := &core.RunSummary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	logger := r.logger.With("run_id", summary.RunID)

	lister := NewLister(r.store, r.cfg.SourcePrefix, r.cfg.ProcessedPrefix, logger)
	items, counts, err := lister.List(ctx)
	if err != nil {
		return nil, err
	}
	summary.SourceTotal = counts.SourceTotal
	summary.AlreadyProcessed = counts.AlreadyProcessed

	if len(items) == 0 {
		logger.Info("nothing to do")
		summary.FinishedAt = time.Now().UTC()
		r.publishSummary(ctx, summary, logger)
		return summary, nil
	}

	pool, err := ants.NewPool(r.cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var tracker *ProgressTracker
	if r.cfg.Progress != nil {
		tracker = NewProgressTracker(r.cfg.Progress, len(items), 1)
		tracker.Start()
	}

	outcomes := make(chan *core.DocumentOutcome, len(items))
	var wg sync.WaitGroup
	for _, item := range items {
		item := item
		wg.Add(1)
		task := func() {
			defer wg.Done()
			outcomes <- r.processDocument(ctx, summary.RunID, item, logger)
			if tracker != nil {
				tracker.Increment(1)
			}
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			outcomes <- &core.DocumentOutcome{
				Key:        item.Doc.Key,
				Status:     core.StatusFailed,
				Stage:      core.StatusPending,
				ErrorClass: core.ClassTransient,
				Err:        fmt.Errorf("submit to worker pool: %w", err),
			}
		}
	}
	wg.Wait()
	close(outcomes)

	for outcome := range outcomes {
		summary.Record(outcome)
		if outcome.Status == core.StatusFailed {
			if err := r.sink.PublishFailure(ctx, outcome); err != nil {
				logger.Warn("failure notification failed", "key", outcome.Key, "error", err)
			}
		}
	}

	if tracker != nil {
		tracker.Finish()
	}

	summary.FinishedAt = time.Now().UTC()
	r.publishSummary(ctx, summary, logger)
	if err := ctx.Err(); err != nil {
		// Skipped documents stay at the source; the caller must not
		// mistake an aborted pass for a clean one.
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

// publishSummary reports the run result. Notification failures are
// logged, never propagated: the work is already done.
func (r *Runner) publishSummary(ctx context.Context, summary *core.RunSummary, logger *slog.Logger) {
	if err := r.sink.PublishSummary(ctx, summary); err != nil {
		logger.Warn("summary notification failed", "error", err)
	}
}

// processDocument runs one document through all stages. It never
// returns an error; every path ends in a terminal outcome.
func (r *Runner) processDocument(ctx context.Context, runID string, item WorkItem, logger *slog.Logger) *core.DocumentOutcome {
	key := item.Doc.Key
	fingerprint := item.Doc.Fingerprint
	maxAttempts := 0

	fail := func(stage core.Status, err error) *core.DocumentOutcome {
		return &core.DocumentOutcome{
			Key:        key,
			Status:     core.StatusFailed,
			Stage:      stage,
			Attempts:   maxAttempts,
			ErrorClass: core.ClassOf(err),
			Err:        err,
		}
	}
	// A cancelled document stays at the source prefix untouched and is
	// picked up again by the next run.
	skip := func(stage core.Status) *core.DocumentOutcome {
		return &core.DocumentOutcome{
			Key:      key,
			Status:   core.StatusSkipped,
			Stage:    stage,
			Attempts: maxAttempts,
		}
	}
	// Cancellation means the run's own context ended, not that a per-call
	// deadline fired inside a stage. A slow provider hitting its call
	// timeout is a stage failure once retries are exhausted.
	canceled := func() bool {
		return ctx.Err() != nil
	}

	// Fetch and extract.
	if ctx.Err() != nil {
		return skip(core.StatusPending)
	}
	var data []byte
	var info storage.ObjectInfo
	attempts, err := r.cfg.Retry.Do(ctx, func() error {
		var getErr error
		data, info, getErr = r.store.Get(ctx, key)
		if errors.Is(getErr, storage.ErrNotFound) {
			// Removed between listing and fetch.
			return core.Permanent(getErr)
		}
		return getErr
	})
	maxAttempts = max(maxAttempts, attempts)
	if err != nil {
		if canceled() {
			return skip(core.StatusExtracting)
		}
		return fail(core.StatusExtracting, fmt.Errorf("fetch document: %w", err))
	}

	doc, err := r.extractor.Extract(ctx, data, info.ContentType)
	if err != nil {
		if canceled() {
			return skip(core.StatusExtracting)
		}
		return fail(core.StatusExtracting, err)
	}

	// Chunk.
	if ctx.Err() != nil {
		return skip(core.StatusChunking)
	}
	chunks := r.splitter.Split(key, fingerprint, doc.Text)
	if len(chunks) == 0 {
		// Nothing to index. Promote anyway so the next run does not
		// pick the document up again.
		outcome := r.transition(ctx, runID, item, doc, 0, &maxAttempts)
		if outcome != nil {
			return outcome
		}
		logger.Info("document empty, promoted without vectors", "key", key)
		return skip(core.StatusChunking)
	}

	// Embed.
	if ctx.Err() != nil {
		return skip(core.StatusEmbedding)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, attempts, err := r.embedder.Generate(ctx, texts)
	maxAttempts = max(maxAttempts, attempts)
	if err != nil {
		if canceled() {
			return skip(core.StatusEmbedding)
		}
		return fail(core.StatusEmbedding, err)
	}

	// Write vectors.
	if ctx.Err() != nil {
		return skip(core.StatusWriting)
	}
	records := make([]core.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = core.VectorRecord{
			ID:     c.ID,
			Vector: vectors[i],
			Payload: core.Payload{
				DocumentKey: key,
				Filename:    item.Doc.BaseName(),
				Text:        c.Text,
				Index:       c.Index,
				TotalChunks: len(chunks),
				MediaType:   doc.MediaType,
			},
		}
	}

	if item.Reindex {
		// The content changed, so the old chunk IDs no longer line up
		// with the new ones. Clear them before writing.
		attempts, err = r.cfg.Retry.Do(ctx, func() error {
			return r.writer.DeleteByDocument(ctx, key)
		})
		maxAttempts = max(maxAttempts, attempts)
		if err != nil {
			if canceled() {
				return skip(core.StatusWriting)
			}
			return fail(core.StatusWriting, fmt.Errorf("clear stale vectors: %w", err))
		}
	}

	var results []vector.Result
	attempts, err = r.cfg.Retry.Do(ctx, func() error {
		var upsertErr error
		results, upsertErr = r.writer.Upsert(ctx, records)
		return upsertErr
	})
	maxAttempts = max(maxAttempts, attempts)
	if err != nil {
		if canceled() {
			return skip(core.StatusWriting)
		}
		return fail(core.StatusWriting, err)
	}
	for _, res := range results {
		if res.Err != nil {
			return fail(core.StatusWriting, fmt.Errorf("record %s rejected: %w", res.ID, res.Err))
		}
	}

	// Transition.
	if outcome := r.transition(ctx, runID, item, doc, len(chunks), &maxAttempts); outcome != nil {
		return outcome
	}

	logger.Debug("document indexed", "key", key, "chunks", len(chunks))
	return &core.DocumentOutcome{
		Key:      key,
		Status:   core.StatusCompleted,
		Stage:    core.StatusCompleted,
		Attempts: maxAttempts,
	}
}

// transition promotes the document to the processed prefix and removes
// a stale processed copy left by a previous version. It returns nil on
// success and a terminal outcome on failure.
func (r *Runner) transition(ctx context.Context, runID string, item WorkItem, doc *extract.Document, chunkCount int, maxAttempts *int) *core.DocumentOutcome {
	key := item.Doc.Key

	if ctx.Err() != nil {
		return &core.DocumentOutcome{
			Key:      key,
			Status:   core.StatusSkipped,
			Stage:    core.StatusTransitioning,
			Attempts: *maxAttempts,
		}
	}

	processedKey := ProcessedKey(r.cfg.SourcePrefix, r.cfg.ProcessedPrefix, key, item.Doc.Fingerprint)
	metadata := map[string]string{
		"Indexed-By-Run": runID,
		"Indexed-At":     time.Now().UTC().Format(time.RFC3339),
		"Original-Key":   key,
		"Fingerprint":    item.Doc.Fingerprint,
		"Chunk-Count":    strconv.Itoa(chunkCount),
		"Media-Type":     doc.MediaType,
	}
	if len(doc.Pages) > 0 {
		metadata["Page-Count"] = strconv.Itoa(len(doc.Pages))
	}

	attempts, err := r.cfg.Retry.Do(ctx, func() error {
		return r.store.Promote(ctx, key, processedKey, metadata)
	})
	*maxAttempts = max(*maxAttempts, attempts)
	if err != nil {
		if ctx.Err() != nil {
			return &core.DocumentOutcome{
				Key:      key,
				Status:   core.StatusSkipped,
				Stage:    core.StatusTransitioning,
				Attempts: *maxAttempts,
			}
		}
		// Vectors for this document are already written; the document
		// stays at the source and the idempotent upsert makes the
		// retry next run harmless.
		return &core.DocumentOutcome{
			Key:        key,
			Status:     core.StatusFailed,
			Stage:      core.StatusTransitioning,
			Attempts:   *maxAttempts,
			ErrorClass: core.ClassOf(err),
			Err:        fmt.Errorf("promote document: %w", err),
		}
	}

	if item.StaleProcessedKey != "" && item.StaleProcessedKey != processedKey {
		if err := r.store.Remove(ctx, item.StaleProcessedKey); err != nil {
			// Best effort. The stale copy has a different fingerprint
			// tag, so it cannot shadow the new one.
			r.logger.Warn("failed to remove stale processed object", "key", item.StaleProcessedKey, "error", err)
		}
	}
	return nil
}
