package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollowbrook/kbflow/chunk"
	"github.com/hollowbrook/kbflow/core"
	"github.com/hollowbrook/kbflow/embed"
	embedmock "github.com/hollowbrook/kbflow/embed/mock"
	"github.com/hollowbrook/kbflow/extract"
	"github.com/hollowbrook/kbflow/storage/memory"
	vectormock "github.com/hollowbrook/kbflow/vector/mock"
)

const testDimension = 8

type recordingSink struct {
	mu        sync.Mutex
	summaries []*core.RunSummary
	failures  []*core.DocumentOutcome
}

func (s *recordingSink) PublishSummary(_ context.Context, summary *core.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
	return nil
}

func (s *recordingSink) PublishFailure(_ context.Context, outcome *core.DocumentOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, outcome)
	return nil
}

type testHarness struct {
	store    *memory.Store
	embedder *embedmock.Embedder
	writer   *vectormock.Writer
	sink     *recordingSink
	runner   *Runner
}

func newHarness(t *testing.T, concurrency int) *testHarness {
	t.Helper()
	return newHarnessWithEmbedTimeout(t, concurrency, 0)
}

func newHarnessWithEmbedTimeout(t *testing.T, concurrency int, embedTimeout time.Duration) *testHarness {
	t.Helper()

	store := memory.NewStore()
	embedder := embedmock.New(testDimension)
	writer := vectormock.New(testDimension)
	sink := &recordingSink{}

	splitter, err := chunk.NewSplitter(100, 20, nil)
	require.NoError(t, err)

	retry := core.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	generator := embed.NewGenerator(embedder, 20, testDimension, 0, embedTimeout, retry, nil)

	runner, err := NewRunner(
		Config{
			SourcePrefix:    "source/",
			ProcessedPrefix: "processed/",
			Concurrency:     concurrency,
			Retry:           retry,
		},
		store, extract.NewRegistry(), splitter, generator, writer, sink, nil,
	)
	require.NoError(t, err)

	return &testHarness{store: store, embedder: embedder, writer: writer, sink: sink, runner: runner}
}

func docText(word string) []byte {
	return []byte(strings.Repeat(word+" content sentence. ", 20))
}

func TestRunHappyPathWithOneCorruptDocument(t *testing.T) {
	h := newHarness(t, 3)
	h.store.Put("source/a.txt", docText("alpha"), "text/plain")
	h.store.Put("source/b.txt", docText("bravo"), "text/plain")
	// PDF magic with garbage behind it: extraction fails permanently.
	h.store.Put("source/corrupt.pdf", []byte("%PDF-1.7\nbroken"), "application/pdf")

	summary, err := h.runner.Run(context.Background())
	require.NoError(t, err, "a failed document must not fail the run")

	assert.Equal(t, 3, summary.SourceTotal)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)

	require.Len(t, summary.Failures, 1)
	failure := summary.Failures[0]
	assert.Equal(t, "source/corrupt.pdf", failure.Key)
	assert.Equal(t, "extracting", failure.Stage)
	assert.Equal(t, "permanent", failure.Class)

	// Completed documents moved, the failed one stayed put.
	assert.False(t, h.store.Has("source/a.txt"))
	assert.False(t, h.store.Has("source/b.txt"))
	assert.True(t, h.store.Has("source/corrupt.pdf"))

	assert.Greater(t, h.writer.CountByDocument("source/a.txt"), 0)
	assert.Greater(t, h.writer.CountByDocument("source/b.txt"), 0)
	assert.Zero(t, h.writer.CountByDocument("source/corrupt.pdf"))

	require.Len(t, h.sink.summaries, 1)
	require.Len(t, h.sink.failures, 1)
	assert.Equal(t, "source/corrupt.pdf", h.sink.failures[0].Key)
}

func TestRunPromoteCarriesMetadata(t *testing.T) {
	h := newHarness(t, 1)
	h.store.Put("source/a.txt", docText("alpha"), "text/plain")

	summary, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Completed)

	keys := h.store.Keys()
	require.Len(t, keys, 1)
	require.True(t, strings.HasPrefix(keys[0], "processed/a_"))

	meta := h.store.Metadata(keys[0])
	require.NotNil(t, meta)
	assert.Equal(t, summary.RunID, meta["Indexed-By-Run"])
	assert.Equal(t, "source/a.txt", meta["Original-Key"])
	assert.NotEmpty(t, meta["Chunk-Count"])
	assert.NotEqual(t, "0", meta["Chunk-Count"])
}

func TestRunRetriesRateLimitedEmbedding(t *testing.T) {
	h := newHarness(t, 1)
	h.store.Put("source/a.txt", docText("alpha"), "text/plain")

	var calls atomic.Int32
	h.embedder.EmbedFunc = func(_ context.Context, batch []string) ([][]float32, error) {
		if calls.Add(1) <= 2 {
			return nil, core.Transient(errors.New("429 too many requests"))
		}
		out := make([][]float32, len(batch))
		for i, text := range batch {
			out[i] = embedmock.Vector(text, testDimension)
		}
		return out, nil
	}

	summary, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 0, summary.Failed)
	assert.GreaterOrEqual(t, int(calls.Load()), 3)
}

func TestRunExhaustedRetriesFailDocument(t *testing.T) {
	h := newHarness(t, 1)
	h.store.Put("source/a.txt", docText("alpha"), "text/plain")

	h.embedder.EmbedFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, core.Transient(errors.New("503 overloaded"))
	}

	summary, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "embedding", summary.Failures[0].Stage)
	assert.Equal(t, 3, summary.Failures[0].Attempts)

	// Failed documents stay at the source for the next run.
	assert.True(t, h.store.Has("source/a.txt"))
}

func TestRunBoundsConcurrency(t *testing.T) {
	const workers = 2
	h := newHarness(t, workers)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		h.store.Put("source/"+name+".txt", docText(name), "text/plain")
	}

	var inFlight, peak atomic.Int32
	h.embedder.EmbedFunc = func(_ context.Context, batch []string) ([][]float32, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)

		out := make([][]float32, len(batch))
		for i, text := range batch {
			out[i] = embedmock.Vector(text, testDimension)
		}
		return out, nil
	}

	summary, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Completed)
	assert.LessOrEqual(t, peak.Load(), int32(workers))
}

func TestRunCancellationSkipsRemainingWork(t *testing.T) {
	h := newHarness(t, 1)
	h.store.Put("source/a.txt", docText("alpha"), "text/plain")
	h.store.Put("source/b.txt", docText("bravo"), "text/plain")

	ctx, cancel := context.WithCancel(context.Background())
	h.embedder.EmbedFunc = func(context.Context, []string) ([][]float32, error) {
		cancel()
		return nil, ctx.Err()
	}

	summary, err := h.runner.Run(ctx)
	require.ErrorIs(t, err, context.Canceled, "an interrupted run must not look clean")
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.Completed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, summary.Skipped)

	// Nothing was promoted; the next run starts over.
	assert.True(t, h.store.Has("source/a.txt"))
	assert.True(t, h.store.Has("source/b.txt"))
}

func TestRunProviderCallTimeoutFailsDocument(t *testing.T) {
	h := newHarnessWithEmbedTimeout(t, 1, 5*time.Millisecond)
	h.store.Put("source/a.txt", docText("alpha"), "text/plain")

	// The provider never answers inside the per-call deadline. The
	// run context stays live, so this is a document failure, not a
	// cancelled run.
	h.embedder.EmbedFunc = func(ctx context.Context, _ []string) ([][]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	summary, err := h.runner.Run(context.Background())
	require.NoError(t, err, "a slow provider fails the document, not the run")

	assert.Equal(t, 0, summary.Completed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "source/a.txt", summary.Failures[0].Key)
	assert.Equal(t, "embedding", summary.Failures[0].Stage)
	assert.Equal(t, "transient", summary.Failures[0].Class)
	assert.Equal(t, 3, summary.Failures[0].Attempts)

	require.Len(t, h.sink.failures, 1)
	assert.Equal(t, "source/a.txt", h.sink.failures[0].Key)
	assert.True(t, h.store.Has("source/a.txt"))
}

func TestRunDeclaredContentTypeReachesExtraction(t *testing.T) {
	h := newHarness(t, 1)
	// A leading NUL byte makes content sniffing report
	// application/octet-stream; only the declared object content type
	// makes this extractable.
	data := append([]byte{0x00}, docText("alpha")...)
	h.store.Put("source/a.bin", data, "text/plain")

	summary, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 0, summary.Failed)
	assert.False(t, h.store.Has("source/a.bin"))
}

func TestRunEmptyDocumentSkippedButPromoted(t *testing.T) {
	h := newHarness(t, 1)
	h.store.Put("source/empty.txt", []byte("   \n\n  "), "text/plain")

	summary, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Completed)
	assert.Equal(t, 1, summary.Skipped)

	// Promoted with zero chunks so the next run does not see it again.
	assert.False(t, h.store.Has("source/empty.txt"))
	keys := h.store.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, "0", h.store.Metadata(keys[0])["Chunk-Count"])
	assert.Zero(t, h.writer.Count())
}

func TestRunReindexClearsOldVectors(t *testing.T) {
	h := newHarness(t, 1)
	h.store.Put("source/a.txt", docText("version-two"), "text/plain")
	staleKey := "processed/a_00000000.txt"
	h.store.Put(staleKey, docText("version-one"), "text/plain")

	// Vectors from the previous version.
	_, err := h.writer.Upsert(context.Background(), []core.VectorRecord{{
		ID:      "stale-id",
		Vector:  make([]float32, testDimension),
		Payload: core.Payload{DocumentKey: "source/a.txt"},
	}})
	require.NoError(t, err)

	summary, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)

	assert.Equal(t, []string{"source/a.txt"}, h.writer.Deletes())
	_, stale := h.writer.Get("stale-id")
	assert.False(t, stale, "old vectors must be gone after reindex")
	assert.Greater(t, h.writer.CountByDocument("source/a.txt"), 0)

	assert.False(t, h.store.Has(staleKey), "stale processed copy removed")
	assert.False(t, h.store.Has("source/a.txt"))
}

func TestRunEmptySourceStillPublishesSummary(t *testing.T) {
	h := newHarness(t, 2)

	summary, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.SourceTotal)
	assert.Zero(t, summary.Processed())
	require.Len(t, h.sink.summaries, 1)
}

func TestRunListingFailureAbortsRun(t *testing.T) {
	h := newHarness(t, 2)
	h.store.ListErr = errors.New("endpoint unreachable")

	_, err := h.runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsListing(err))
	assert.Empty(t, h.sink.summaries, "no summary for a run that never started")
}

func TestRunUpsertTransientFailureRetries(t *testing.T) {
	h := newHarness(t, 1)
	h.store.Put("source/a.txt", docText("alpha"), "text/plain")

	h.writer.UpsertErr = core.Transient(errors.New("collection loading"))

	summary, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "writing", summary.Failures[0].Stage)
	assert.Equal(t, 3, summary.Failures[0].Attempts)
	assert.True(t, h.store.Has("source/a.txt"))
}
