package embed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollowbrook/kbflow/core"
	"github.com/hollowbrook/kbflow/embed/mock"
)

func testPolicy() core.RetryPolicy {
	return core.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("chunk %d", i)
	}
	return out
}

func TestGenerateBatching(t *testing.T) {
	m := mock.New(8)
	g := NewGenerator(m, 20, 8, 0, 0, testPolicy(), nil)

	vectors, attempts, err := g.Generate(context.Background(), texts(45))
	require.NoError(t, err)
	assert.Len(t, vectors, 45)
	assert.Equal(t, 3, m.Calls(), "45 texts at batch size 20 is 3 calls")
	assert.Equal(t, 1, attempts)
	for _, v := range vectors {
		assert.Len(t, v, 8)
	}
}

func TestGenerateEmptyInput(t *testing.T) {
	g := NewGenerator(mock.New(8), 20, 8, 0, 0, testPolicy(), nil)

	vectors, attempts, err := g.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Zero(t, attempts)
}

func TestGeneratePreservesOrder(t *testing.T) {
	m := mock.New(4)
	g := NewGenerator(m, 2, 4, 0, 0, testPolicy(), nil)

	in := texts(5)
	vectors, _, err := g.Generate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	for i, text := range in {
		assert.Equal(t, mock.Vector(text, 4), vectors[i])
	}
}

func TestGenerateRetriesTransientFailure(t *testing.T) {
	m := mock.New(8)
	var calls atomic.Int32
	m.EmbedFunc = func(_ context.Context, batch []string) ([][]float32, error) {
		if calls.Add(1) <= 2 {
			return nil, core.Transient(errors.New("429 too many requests"))
		}
		out := make([][]float32, len(batch))
		for i, text := range batch {
			out[i] = mock.Vector(text, 8)
		}
		return out, nil
	}
	g := NewGenerator(m, 20, 8, 0, 0, testPolicy(), nil)

	vectors, attempts, err := g.Generate(context.Background(), texts(3))
	require.NoError(t, err)
	assert.Len(t, vectors, 3)
	assert.Equal(t, 3, attempts)
}

func TestGeneratePermanentFailureNoRetry(t *testing.T) {
	m := mock.New(8)
	var calls atomic.Int32
	m.EmbedFunc = func(context.Context, []string) ([][]float32, error) {
		calls.Add(1)
		return nil, core.Permanent(errors.New("400 invalid input"))
	}
	g := NewGenerator(m, 20, 8, 0, 0, testPolicy(), nil)

	_, _, err := g.Generate(context.Background(), texts(3))
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateDimensionMismatch(t *testing.T) {
	m := mock.New(8)
	g := NewGenerator(m, 20, 16, 0, 0, testPolicy(), nil)

	_, _, err := g.Generate(context.Background(), texts(2))
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.True(t, core.IsPermanent(err))
	assert.Equal(t, 1, m.Calls(), "dimension mismatch must not be retried")
}

func TestGenerateCountMismatch(t *testing.T) {
	m := mock.New(8)
	m.EmbedFunc = func(_ context.Context, batch []string) ([][]float32, error) {
		return [][]float32{mock.Vector("only one", 8)}, nil
	}
	g := NewGenerator(m, 20, 8, 0, 0, testPolicy(), nil)

	_, _, err := g.Generate(context.Background(), texts(2))
	require.ErrorIs(t, err, ErrCountMismatch)
	assert.True(t, core.IsPermanent(err))
}

func TestGenerateContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGenerator(mock.New(8), 20, 8, 0, 0, testPolicy(), nil)
	_, _, err := g.Generate(ctx, texts(2))
	require.ErrorIs(t, err, context.Canceled)
}

func TestClassify(t *testing.T) {
	assert.True(t, core.IsTransient(classify(errors.New("HTTP 429: rate limit exceeded"))))
	assert.True(t, core.IsTransient(classify(errors.New("dial tcp: connection refused"))))
	assert.True(t, core.IsTransient(classify(errors.New("i/o timeout"))))
	assert.True(t, core.IsPermanent(classify(errors.New("HTTP 400: invalid request"))))
	assert.True(t, core.IsPermanent(classify(errors.New("401 unauthorized"))))
	assert.True(t, core.IsTransient(classify(errors.New("something new"))), "unknown errors default to transient")
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(context.Canceled), context.Canceled)
}
