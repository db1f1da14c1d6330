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

package vector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/hollowbrook/kbflow/core"
)

// Collection schema field names.
const (
	fieldID          = "id"
	fieldVector      = "vector"
	fieldDocumentKey = "document_key"
	fieldFilename    = "filename"
	fieldChunkText   = "chunk_text"
	fieldChunkIndex  = "chunk_index"
	fieldTotalChunks = "total_chunks"
	fieldMediaType   = "media_type"
)

// MilvusWriter implements Writer on a Milvus collection.
type MilvusWriter struct {
	client     client.Client
	collection string
	dimension  int
	timeout    time.Duration
	logger     *slog.Logger
}

// NewMilvus connects to the Milvus address and returns a writer bound
// to collection. Call EnsureCollection before the first write.
func NewMilvus(ctx context.Context, address, collection string, dimension int, timeout time.Duration, logger *slog.Logger) (*MilvusWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("connect to vector database: %w", err)
	}

	return &MilvusWriter{
		client:     c,
		collection: collection,
		dimension:  dimension,
		timeout:    timeout,
		logger:     logger.With("component", "vector-writer"),
	}, nil
}

// Close releases the connection.
func (w *MilvusWriter) Close() error {
	return w.client.Close()
}

// EnsureCollection creates the collection and its index if they do not
// exist, then loads the collection for querying.
func (w *MilvusWriter) EnsureCollection(ctx context.Context) error {
	exists, err := w.client.HasCollection(ctx, w.collection)
	if err != nil {
		return fmt.Errorf("check collection %q: %w", w.collection, err)
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(w.collection).
			WithDescription("document chunks with embedding vectors").
			WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(fieldVector).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(w.dimension))).
			WithField(entity.NewField().WithName(fieldDocumentKey).WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024)).
			WithField(entity.NewField().WithName(fieldFilename).WithDataType(entity.FieldTypeVarChar).WithMaxLength(512)).
			WithField(entity.NewField().WithName(fieldChunkText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
			WithField(entity.NewField().WithName(fieldChunkIndex).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldTotalChunks).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldMediaType).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))

		if err := w.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("create collection %q: %w", w.collection, err)
		}

		idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 96)
		if err != nil {
			return fmt.Errorf("build index: %w", err)
		}
		if err := w.client.CreateIndex(ctx, w.collection, fieldVector, idx, false); err != nil {
			return fmt.Errorf("create index on %q: %w", w.collection, err)
		}
		w.logger.Info("collection created", "collection", w.collection, "dimension", w.dimension)
	}

	if err := w.client.LoadCollection(ctx, w.collection, false); err != nil {
		return fmt.Errorf("load collection %q: %w", w.collection, err)
	}
	return nil
}

// Upsert implements Writer. Records failing client-side validation are
// reported per record; the valid remainder is written in one call.
func (w *MilvusWriter) Upsert(ctx context.Context, records []core.VectorRecord) ([]Result, error) {
	valid, results := validate(records, w.dimension)
	if len(valid) == 0 {
		return results, nil
	}

	ids := make([]string, len(valid))
	vectors := make([][]float32, len(valid))
	docKeys := make([]string, len(valid))
	filenames := make([]string, len(valid))
	texts := make([]string, len(valid))
	indexes := make([]int64, len(valid))
	totals := make([]int64, len(valid))
	mediaTypes := make([]string, len(valid))
	for i, rec := range valid {
		ids[i] = rec.ID
		vectors[i] = rec.Vector
		docKeys[i] = rec.Payload.DocumentKey
		filenames[i] = rec.Payload.Filename
		texts[i] = rec.Payload.Text
		indexes[i] = int64(rec.Payload.Index)
		totals[i] = int64(rec.Payload.TotalChunks)
		mediaTypes[i] = rec.Payload.MediaType
	}

	callCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	_, err := w.client.Upsert(callCtx, w.collection, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, w.dimension, vectors),
		entity.NewColumnVarChar(fieldDocumentKey, docKeys),
		entity.NewColumnVarChar(fieldFilename, filenames),
		entity.NewColumnVarChar(fieldChunkText, texts),
		entity.NewColumnInt64(fieldChunkIndex, indexes),
		entity.NewColumnInt64(fieldTotalChunks, totals),
		entity.NewColumnVarChar(fieldMediaType, mediaTypes),
	)
	if err != nil {
		// Milvus errors here are almost always connectivity or load
		// pressure. The write is idempotent, so retrying is safe.
		return nil, core.Transient(fmt.Errorf("upsert %d vectors: %w", len(valid), err))
	}

	w.logger.Debug("vectors upserted", "count", len(valid), "collection", w.collection)
	return results, nil
}

// DeleteByDocument implements Writer.
func (w *MilvusWriter) DeleteByDocument(ctx context.Context, documentKey string) error {
	expr := fmt.Sprintf(`%s == "%s"`, fieldDocumentKey, escapeExpr(documentKey))
	if err := w.client.Delete(ctx, w.collection, "", expr); err != nil {
		return core.Transient(fmt.Errorf("delete vectors for %q: %w", documentKey, err))
	}
	return nil
}

// escapeExpr neutralizes quotes in keys interpolated into a boolean
// expression.
func escapeExpr(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

var _ Writer = (*MilvusWriter)(nil)
