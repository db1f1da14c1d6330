package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSplitter(t *testing.T, size, overlap int) *Splitter {
	t.Helper()
	s, err := NewSplitter(size, overlap, nil)
	require.NoError(t, err)
	return s
}

func TestNewSplitterValidation(t *testing.T) {
	_, err := NewSplitter(0, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = NewSplitter(100, -1, nil)
	assert.ErrorIs(t, err, ErrInvalidOverlap)

	_, err = NewSplitter(100, 100, nil)
	assert.ErrorIs(t, err, ErrInvalidOverlap)

	_, err = NewSplitter(100, 20, nil)
	assert.NoError(t, err)
}

func TestSplitEmptyText(t *testing.T) {
	s := mustSplitter(t, 1000, 200)

	assert.Nil(t, s.Split("doc.txt", "fp", ""))
	assert.Nil(t, s.Split("doc.txt", "fp", "   \n\t  "))
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := mustSplitter(t, 1000, 200)

	chunks := s.Split("doc.txt", "fp", "a short paragraph")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 17, chunks[0].End)
	assert.Equal(t, "a short paragraph", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestSplitNoSeparatorsFixedStride(t *testing.T) {
	s := mustSplitter(t, 1000, 200)

	// 2500 characters with no separator at all.
	text := strings.Repeat("x", 2500)
	chunks := s.Split("doc.txt", "fp", text)

	require.Len(t, chunks, 4)
	starts := []int{chunks[0].Start, chunks[1].Start, chunks[2].Start, chunks[3].Start}
	assert.Equal(t, []int{0, 800, 1600, 2400}, starts)
	assert.Equal(t, 1000, chunks[0].End)
	assert.Equal(t, 1800, chunks[1].End)
	assert.Equal(t, 2500, chunks[2].End)
	assert.Equal(t, 2500, chunks[3].End)
}

func TestSplitBoundaryModeCutsAtParagraphs(t *testing.T) {
	s := mustSplitter(t, 100, 20)

	para := strings.Repeat("a", 60)
	text := para + "\n\n" + para + "\n\n" + para
	chunks := s.Split("doc.txt", "fp", text)

	require.NotEmpty(t, chunks)
	// The first window (100 characters) contains one paragraph break
	// at offset 60; the chunk ends just after it.
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 62, chunks[0].End)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "\n\n"))
}

func TestSplitBoundaryPrecedence(t *testing.T) {
	s := mustSplitter(t, 50, 10)

	// Window holds both a sentence break and a later space. The
	// sentence break wins even though the space is closer to the end.
	text := "First sentence here. Then some more words that keep going past the window"
	chunks := s.Split("doc.txt", "fp", text)

	require.NotEmpty(t, chunks)
	assert.Equal(t, "First sentence here. ", chunks[0].Text)
}

func TestSplitInvariants(t *testing.T) {
	s := mustSplitter(t, 120, 30)

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog. ")
		if i%7 == 0 {
			b.WriteString("\n\n")
		}
	}
	text := b.String()
	chunks := s.Split("doc.txt", "fp", text)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, text[c.Start:c.End], c.Text)
		assert.LessOrEqual(t, c.End-c.Start, 120, "chunk %d over size", i)
		if i > 0 {
			prev := chunks[i-1]
			assert.Greater(t, c.Start, prev.Start, "chunk %d does not advance", i)
			assert.LessOrEqual(t, c.Start, prev.End, "gap before chunk %d", i)
		}
	}
}

func TestSplitDeterministicIDs(t *testing.T) {
	s := mustSplitter(t, 100, 20)
	text := strings.Repeat("same content. ", 30)

	first := s.Split("doc.txt", "fingerprint-1", text)
	second := s.Split("doc.txt", "fingerprint-1", text)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	changed := s.Split("doc.txt", "fingerprint-2", text)
	assert.NotEqual(t, first[0].ID, changed[0].ID)
}

func TestSplitMultibyteFixedStride(t *testing.T) {
	s := mustSplitter(t, 1000, 200)

	// 2500 three-byte runes, no separator. Size and stride count
	// characters, not bytes, and no chunk may be cut mid-rune.
	text := strings.Repeat("世", 2500)
	chunks := s.Split("doc.txt", "fp", text)

	require.Len(t, chunks, 4)
	starts := []int{chunks[0].Start, chunks[1].Start, chunks[2].Start, chunks[3].Start}
	assert.Equal(t, []int{0, 800, 1600, 2400}, starts)

	runes := []rune(text)
	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text), "chunk %d is not valid utf-8", i)
		assert.Equal(t, c.End-c.Start, utf8.RuneCountInString(c.Text), "chunk %d", i)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 1000, "chunk %d over size", i)
		assert.Equal(t, string(runes[c.Start:c.End]), c.Text, "chunk %d", i)
	}
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0].Text))
}

func TestSplitMultibyteBoundaryMode(t *testing.T) {
	s := mustSplitter(t, 40, 8)

	para := strings.Repeat("界", 30)
	text := para + "\n\n" + para + "\n\n" + para
	chunks := s.Split("doc.txt", "fp", text)
	require.NotEmpty(t, chunks)

	// The first window contains one paragraph break at offset 30; the
	// chunk ends just after it.
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 32, chunks[0].End)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "\n\n"))

	runes := []rune(text)
	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text), "chunk %d is not valid utf-8", i)
		assert.LessOrEqual(t, c.End-c.Start, 40, "chunk %d over size", i)
		assert.Equal(t, string(runes[c.Start:c.End]), c.Text, "chunk %d", i)
	}
	assert.Equal(t, len(runes), chunks[len(chunks)-1].End)
}

func TestSplitOverlapNotInsideSeparator(t *testing.T) {
	s := mustSplitter(t, 64, 1)

	text := strings.Repeat("a", 60) + "\n\n" + strings.Repeat("b", 200)
	chunks := s.Split("doc.txt", "fp", text)
	require.Greater(t, len(chunks), 1)

	// The first cut falls after the paragraph break at offset 62; the
	// one-character backoff lands between the two newlines and must be
	// nudged past them.
	assert.Equal(t, 62, chunks[1].Start)
	assert.False(t, strings.HasPrefix(chunks[1].Text, "\n"))
}
