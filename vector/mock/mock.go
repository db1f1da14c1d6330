// Package mock provides an in-memory vector.Writer for tests. Records
// are keyed by ID, which makes upsert idempotence observable.
package mock

import (
	"context"
	"sync"

	"github.com/hollowbrook/kbflow/core"
	"github.com/hollowbrook/kbflow/vector"
)

// Writer stores records in a map keyed by record ID.
type Writer struct {
	Dimension int

	// UpsertErr, when set, fails every Upsert call.
	UpsertErr error

	// DeleteErr, when set, fails every DeleteByDocument call.
	DeleteErr error

	mu      sync.Mutex
	records map[string]core.VectorRecord
	deletes []string
}

// New creates an empty writer accepting vectors of the given width.
func New(dimension int) *Writer {
	return &Writer{
		Dimension: dimension,
		records:   make(map[string]core.VectorRecord),
	}
}

// Upsert implements vector.Writer.
func (w *Writer) Upsert(ctx context.Context, records []core.VectorRecord) ([]vector.Result, error) {
	if w.UpsertErr != nil {
		return nil, w.UpsertErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	results := make([]vector.Result, 0, len(records))
	for _, rec := range records {
		switch {
		case rec.ID == "":
			results = append(results, vector.Result{ID: rec.ID, Err: core.Permanent(vector.ErrEmptyID)})
		case w.Dimension > 0 && len(rec.Vector) != w.Dimension:
			results = append(results, vector.Result{ID: rec.ID, Err: core.Permanent(vector.ErrBadDimension)})
		default:
			w.records[rec.ID] = rec
			results = append(results, vector.Result{ID: rec.ID})
		}
	}
	return results, nil
}

// DeleteByDocument implements vector.Writer.
func (w *Writer) DeleteByDocument(ctx context.Context, documentKey string) error {
	if w.DeleteErr != nil {
		return w.DeleteErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.deletes = append(w.deletes, documentKey)
	for id, rec := range w.records {
		if rec.Payload.DocumentKey == documentKey {
			delete(w.records, id)
		}
	}
	return nil
}

// Count returns the number of stored records.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

// Get returns the stored record for id.
func (w *Writer) Get(id string) (core.VectorRecord, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.records[id]
	return rec, ok
}

// CountByDocument returns how many records belong to documentKey.
func (w *Writer) CountByDocument(documentKey string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, rec := range w.records {
		if rec.Payload.DocumentKey == documentKey {
			n++
		}
	}
	return n
}

// Deletes returns the document keys passed to DeleteByDocument, in
// call order.
func (w *Writer) Deletes() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.deletes...)
}

var _ vector.Writer = (*Writer)(nil)
