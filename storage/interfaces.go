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

package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	Fingerprint  string // Content hash of the object bytes
	ContentType  string // May be empty; callers sniff when absent
	LastModified time.Time
}

// ObjectStore provides the object operations the pipeline needs.
// Implementations must be safe for concurrent use by multiple workers.
type ObjectStore interface {
	// List enumerates all objects under prefix. Directory marker keys
	// (trailing slash) are excluded.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Get reads an object's bytes and metadata.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, ObjectInfo, error)

	// Promote copies the object at srcKey to destKey with the given
	// user metadata attached, then deletes srcKey. The copy happens
	// first so a crash between the steps leaves the object visible at
	// both keys rather than at neither.
	Promote(ctx context.Context, srcKey, destKey string, metadata map[string]string) error

	// Remove deletes an object. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}
