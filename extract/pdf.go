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
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hollowbrook/kbflow/core"
)

// ErrMalformedPDF is returned for input that the PDF parser rejects.
var ErrMalformedPDF = errors.New("malformed pdf")

// PDFExtractor extracts text page by page. Pages are joined with a
// blank line so paragraph-level chunk boundaries fall between pages.
type PDFExtractor struct{}

// Extract implements Extractor.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (doc *Document, err error) {
	// The parser panics on some truncated or corrupt files instead of
	// returning an error. A corrupt file will stay corrupt, so map
	// panics to a permanent failure.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = core.Permanent(fmt.Errorf("%w: %v", ErrMalformedPDF, r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, core.Permanent(fmt.Errorf("%w: %v", ErrMalformedPDF, err))
	}

	var (
		pages []Page
		parts []string
	)
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// One unreadable page should not discard the rest of the
			// document.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		pages = append(pages, Page{Number: i, Text: text})
		parts = append(parts, text)
	}

	return &Document{
		Text:  strings.Join(parts, "\n\n"),
		Pages: pages,
	}, nil
}
