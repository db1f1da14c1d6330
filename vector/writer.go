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
	"errors"

	"github.com/hollowbrook/kbflow/core"
)

var (
	// ErrEmptyID marks a record submitted without an ID.
	ErrEmptyID = errors.New("record has empty id")

	// ErrBadDimension marks a record whose vector width differs from
	// the collection dimension.
	ErrBadDimension = errors.New("record vector has wrong dimension")
)

// Result reports the fate of one record in an Upsert call.
type Result struct {
	ID  string
	Err error
}

// Writer stores vectors. Implementations must be safe for concurrent
// use by multiple pipeline workers.
type Writer interface {
	// Upsert writes records, replacing any existing entries with the
	// same IDs. Records that fail client-side validation are reported
	// in their Result and do not block the rest of the batch. A
	// non-nil error means the write as a whole failed.
	Upsert(ctx context.Context, records []core.VectorRecord) ([]Result, error)

	// DeleteByDocument removes every vector belonging to documentKey.
	DeleteByDocument(ctx context.Context, documentKey string) error
}

// validate splits records into storable ones and per-record failures.
func validate(records []core.VectorRecord, dimension int) (valid []core.VectorRecord, results []Result) {
	results = make([]Result, 0, len(records))
	valid = make([]core.VectorRecord, 0, len(records))

	for _, rec := range records {
		switch {
		case rec.ID == "":
			results = append(results, Result{ID: rec.ID, Err: core.Permanent(ErrEmptyID)})
		case dimension > 0 && len(rec.Vector) != dimension:
			results = append(results, Result{ID: rec.ID, Err: core.Permanent(ErrBadDimension)})
		default:
			valid = append(valid, rec)
			results = append(results, Result{ID: rec.ID})
		}
	}
	return valid, results
}
