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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hollowbrook/kbflow/core"
	"github.com/hollowbrook/kbflow/storage"
)

// WorkItem is one document scheduled for processing.
type WorkItem struct {
	Doc core.DocumentDescriptor

	// Reindex is set when a processed copy of this document exists
	// with a different fingerprint. The worker removes the document's
	// old vectors before writing new ones.
	Reindex bool

	// StaleProcessedKey is the outdated processed object to remove
	// after a successful reindex. Empty unless Reindex is set.
	StaleProcessedKey string
}

// ListingCounts reports what the lister saw at run start.
type ListingCounts struct {
	SourceTotal      int
	AlreadyProcessed int
}

// Lister computes the set of documents that still need indexing: every
// object under the source prefix whose fingerprint has no matching
// processed copy.
type Lister struct {
	store           storage.ObjectStore
	sourcePrefix    string
	processedPrefix string
	logger          *slog.Logger
}

// NewLister wires a lister over store.
func NewLister(store storage.ObjectStore, sourcePrefix, processedPrefix string, logger *slog.Logger) *Lister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lister{
		store:           store,
		sourcePrefix:    sourcePrefix,
		processedPrefix: processedPrefix,
		logger:          logger.With("component", "lister"),
	}
}

type processedEntry struct {
	key string
	tag string
}

// List enumerates both prefixes and diffs them. Errors are run-fatal:
// without a listing there is nothing to fan out into.
func (l *Lister) List(ctx context.Context) ([]WorkItem, ListingCounts, error) {
	var counts ListingCounts

	source, err := l.store.List(ctx, l.sourcePrefix)
	if err != nil {
		return nil, counts, core.Listing(fmt.Errorf("list source prefix %q: %w", l.sourcePrefix, err))
	}

	processed, err := l.store.List(ctx, l.processedPrefix)
	if err != nil {
		return nil, counts, core.Listing(fmt.Errorf("list processed prefix %q: %w", l.processedPrefix, err))
	}

	index := make(map[string]processedEntry, len(processed))
	for _, obj := range processed {
		rel, tag, ok := ParseProcessedKey(l.processedPrefix, obj.Key)
		if !ok {
			// Objects placed under the processed prefix by hand. Not
			// ours to reason about.
			continue
		}
		index[rel] = processedEntry{key: obj.Key, tag: tag}
	}

	now := time.Now().UTC()
	var items []WorkItem
	for _, obj := range source {
		counts.SourceTotal++

		rel := strings.TrimPrefix(obj.Key, l.sourcePrefix)
		doc := core.DocumentDescriptor{
			Key:          obj.Key,
			Size:         obj.Size,
			Fingerprint:  obj.Fingerprint,
			DiscoveredAt: now,
		}

		entry, seen := index[rel]
		switch {
		case seen && entry.tag == fingerprintTag(obj.Fingerprint):
			counts.AlreadyProcessed++
		case seen:
			items = append(items, WorkItem{Doc: doc, Reindex: true, StaleProcessedKey: entry.key})
		default:
			items = append(items, WorkItem{Doc: doc})
		}
	}

	l.logger.Info("listing complete",
		"source_total", counts.SourceTotal,
		"already_processed", counts.AlreadyProcessed,
		"pending", len(items),
	)
	return items, counts, nil
}
