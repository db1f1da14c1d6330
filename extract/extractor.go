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

package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/hollowbrook/kbflow/core"
)

var (
	// ErrUnsupportedType is returned when no extractor handles the
	// detected media type.
	ErrUnsupportedType = errors.New("unsupported media type")

	// ErrEmptyDocument is returned when the input has no bytes at all.
	ErrEmptyDocument = errors.New("empty document")
)

// Page is the text of one page of a paginated document.
type Page struct {
	Number int
	Text   string
}

// Document is the extraction result.
type Document struct {
	Text      string
	MediaType string
	// Pages is populated only for paginated formats such as PDF.
	Pages []Page
}

// Extractor converts one media type family into plain text.
type Extractor interface {
	// Extract parses data into a Document. Malformed input is a
	// permanent error.
	Extract(ctx context.Context, data []byte) (*Document, error)
}

// Registry routes documents to extractors by detected media type.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry creates a registry with the built-in extractors: PDF and
// plain text (covering text/* variants such as markdown and CSV).
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register("application/pdf", &PDFExtractor{})
	r.Register("text/plain", &TextExtractor{})
	return r
}

// Register binds an extractor to a media type. Registering "text/plain"
// also covers every other text/* subtype.
func (r *Registry) Register(mediaType string, e Extractor) {
	r.extractors[mediaType] = e
}

// Extract sniffs the media type of data and dispatches to the matching
// extractor. The declared contentType from the store is a hint only;
// the sniffed type wins because upload clients routinely send
// application/octet-stream.
func (r *Registry) Extract(ctx context.Context, data []byte, contentType string) (*Document, error) {
	if len(data) == 0 {
		return nil, core.Permanent(ErrEmptyDocument)
	}

	detected := mimetype.Detect(data)
	mediaType := baseType(detected.String())

	e, ok := r.extractors[mediaType]
	if !ok && strings.HasPrefix(mediaType, "text/") {
		e, ok = r.extractors["text/plain"]
	}
	if !ok && contentType != "" {
		// Fall back on the declared type for formats the sniffer cannot
		// distinguish from plain text.
		e, ok = r.extractors[baseType(contentType)]
	}
	if !ok {
		return nil, core.Permanent(fmt.Errorf("%w: %s", ErrUnsupportedType, mediaType))
	}

	doc, err := e.Extract(ctx, data)
	if err != nil {
		return nil, err
	}
	doc.MediaType = mediaType
	return doc, nil
}

// baseType strips parameters such as "; charset=utf-8".
func baseType(mediaType string) string {
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.TrimSpace(strings.ToLower(mediaType))
}
