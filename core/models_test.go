package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkID_Deterministic(t *testing.T) {
	first := ChunkID("abc123", 0)
	second := ChunkID("abc123", 0)
	assert.Equal(t, first, second, "same fingerprint and index must yield the same ID")
}

func TestChunkID_VariesWithIndex(t *testing.T) {
	assert.NotEqual(t, ChunkID("abc123", 0), ChunkID("abc123", 1))
}

func TestChunkID_VariesWithFingerprint(t *testing.T) {
	assert.NotEqual(t, ChunkID("abc123", 0), ChunkID("def456", 0))
}

func TestChunkID_IsUUID(t *testing.T) {
	id := ChunkID("abc123", 7)
	require.Len(t, id, 36)
	assert.Equal(t, byte('-'), id[8])
	assert.Equal(t, byte('-'), id[13])
}

func TestDocumentDescriptor_BaseName(t *testing.T) {
	d := DocumentDescriptor{Key: "source/reports/q3-summary.pdf"}
	assert.Equal(t, "q3-summary.pdf", d.BaseName())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "embedding", StatusEmbedding.String())
	assert.Equal(t, "failed", StatusFailed.String())
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusSkipped.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusWriting.Terminal())
}

func TestRunSummary_Record(t *testing.T) {
	s := &RunSummary{RunID: "run-1", StartedAt: time.Now().UTC()}

	s.Record(&DocumentOutcome{Key: "a.pdf", Status: StatusCompleted, Attempts: 1})
	s.Record(&DocumentOutcome{Key: "b.pdf", Status: StatusCompleted, Attempts: 3})
	s.Record(&DocumentOutcome{
		Key:        "c.pdf",
		Status:     StatusFailed,
		Stage:      StatusExtracting,
		Attempts:   1,
		ErrorClass: ClassPermanent,
		Err:        errors.New("no text extracted"),
	})
	s.Record(&DocumentOutcome{Key: "d.txt", Status: StatusSkipped})

	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 4, s.Processed())

	require.Len(t, s.Failures, 1)
	failure := s.Failures[0]
	assert.Equal(t, "c.pdf", failure.Key)
	assert.Equal(t, "extracting", failure.Stage)
	assert.Equal(t, "permanent", failure.Class)
	assert.Equal(t, "no text extracted", failure.Message)
}
