package extract

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/hollowbrook/kbflow/core"
)

// ErrInvalidEncoding is returned for text that is not valid UTF-8.
var ErrInvalidEncoding = errors.New("text is not valid utf-8")

// TextExtractor handles plain text and its relatives (markdown, CSV,
// source code). The bytes are the text; only the encoding is checked.
type TextExtractor struct{}

// Extract implements Extractor.
func (e *TextExtractor) Extract(_ context.Context, data []byte) (*Document, error) {
	if !utf8.Valid(data) {
		return nil, core.Permanent(ErrInvalidEncoding)
	}

	// Strip a UTF-8 BOM if present. Editors on some platforms add one.
	text := strings.TrimPrefix(string(data), "\uFEFF")

	return &Document{Text: text}, nil
}
