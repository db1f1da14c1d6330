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

package chunk

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/hollowbrook/kbflow/core"
)

// DefaultSeparators is the boundary precedence order: paragraph break,
// line break, sentence enders, clause enders, then any space.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ": ", " "}

var (
	// ErrInvalidSize is returned when the chunk size is not positive.
	ErrInvalidSize = errors.New("chunk size must be positive")

	// ErrInvalidOverlap is returned when the overlap is negative or not
	// smaller than the chunk size.
	ErrInvalidOverlap = errors.New("chunk overlap must be non-negative and smaller than chunk size")
)

// Splitter cuts text into chunks of at most Size characters, with
// Overlap characters shared between consecutive chunks. All arithmetic
// is in runes, so multi-byte text is never cut mid-character.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// NewSplitter validates the parameters. Passing nil separators selects
// DefaultSeparators.
func NewSplitter(size, overlap int, separators []string) (*Splitter, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if overlap < 0 || overlap >= size {
		return nil, ErrInvalidOverlap
	}
	if separators == nil {
		separators = DefaultSeparators
	}
	return &Splitter{size: size, overlap: overlap, separators: separators}, nil
}

// Split cuts text into chunks for the document identified by key and
// fingerprint. Chunk IDs are derived from the fingerprint and index, so
// re-splitting unchanged content yields identical IDs. Empty or
// whitespace-only text yields no chunks.
func (s *Splitter) Split(key, fingerprint, text string) []core.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	var spans [][2]int
	if s.hasSeparator(text) {
		spans = s.splitAtBoundaries(runes)
	} else {
		spans = s.splitFixed(len(runes))
	}

	chunks := make([]core.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = core.Chunk{
			DocumentKey: key,
			Index:       i,
			Start:       span[0],
			End:         span[1],
			Text:        string(runes[span[0]:span[1]]),
			ID:          core.ChunkID(fingerprint, i),
		}
	}
	return chunks
}

// hasSeparator decides the split mode for the whole text. The choice is
// global: a single separator anywhere selects boundary mode, because a
// text with one paragraph break usually has many.
func (s *Splitter) hasSeparator(text string) bool {
	for _, sep := range s.separators {
		if strings.Contains(text, sep) {
			return true
		}
	}
	return false
}

// splitAtBoundaries cuts each window at the last occurrence of the
// highest-precedence separator found inside it. The separator stays
// with the leading chunk. The next chunk starts overlap characters
// before the cut, nudged past any separator the backoff landed inside.
// Spans are rune offsets.
func (s *Splitter) splitAtBoundaries(runes []rune) [][2]int {
	var spans [][2]int

	start := 0
	for {
		if len(runes)-start <= s.size {
			spans = append(spans, [2]int{start, len(runes)})
			return spans
		}

		window := string(runes[start : start+s.size])
		end := start + s.cutPoint(window)
		spans = append(spans, [2]int{start, end})

		next := end - s.overlap
		next = s.snapPastSeparator(runes, next, end)
		if next <= start {
			next = start + 1
		}
		start = next
	}
}

// cutPoint returns the rune length of the leading chunk inside window:
// the position just after the last occurrence of the first separator
// (in precedence order) present in the window. A window with no
// separator is cut at full size.
func (s *Splitter) cutPoint(window string) int {
	for _, sep := range s.separators {
		idx := strings.LastIndex(window, sep)
		if idx <= 0 {
			continue
		}
		return utf8.RuneCountInString(window[:idx+len(sep)])
	}
	return utf8.RuneCountInString(window)
}

// snapPastSeparator moves pos forward out of the middle of a
// multi-character separator, so the overlap region never begins with a
// dangling half of one. The result never exceeds limit.
func (s *Splitter) snapPastSeparator(runes []rune, pos, limit int) int {
	for _, sep := range s.separators {
		sepLen := utf8.RuneCountInString(sep)
		if sepLen < 2 {
			continue
		}
		for off := 1; off < sepLen; off++ {
			from := pos - off
			if from < 0 || from+sepLen > len(runes) {
				continue
			}
			if string(runes[from:from+sepLen]) == sep && from+sepLen <= limit {
				return from + sepLen
			}
		}
	}
	return pos
}

// splitFixed steps through the text with a fixed stride of size minus
// overlap. The stride is applied even when a window already reaches the
// end of the text, so a trailing remainder shorter than the overlap
// still gets its own chunk. Spans are rune offsets over a text of
// length n runes.
func (s *Splitter) splitFixed(n int) [][2]int {
	var spans [][2]int

	step := s.size - s.overlap
	for start := 0; start < n; start += step {
		end := start + s.size
		if end > n {
			end = n
		}
		spans = append(spans, [2]int{start, end})
	}
	return spans
}
