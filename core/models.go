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

package core

import (
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
)

// DocumentDescriptor identifies one source object scheduled for indexing.
// Descriptors are produced by the lister and are immutable for the
// lifetime of a run.
type DocumentDescriptor struct {
	Key          string    // Object key under the source prefix
	Size         int64     // Object size in bytes
	Fingerprint  string    // Content hash of the object bytes
	DiscoveredAt time.Time // When the lister observed the object
}

// BaseName returns the file name portion of the object key.
func (d DocumentDescriptor) BaseName() string {
	return path.Base(d.Key)
}

// Chunk is one bounded span of a document's extracted text.
// Start and End are character offsets into the extracted text; the text
// between consecutive chunks overlaps by the splitter's overlap length.
type Chunk struct {
	DocumentKey string
	Index       int    // Zero-based position within the document
	Start       int    // Inclusive character offset
	End         int    // Exclusive character offset
	Text        string
	ID          string // Deterministic, derived from fingerprint and index
}

// ChunkID derives a deterministic identifier for a chunk from the parent
// document's content fingerprint and the chunk's sequence index.
// Re-processing an unchanged document yields the same IDs, which is what
// makes the vector writer's upsert idempotent.
func ChunkID(fingerprint string, index int) string {
	name := fmt.Sprintf("%s:%d", fingerprint, index)
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)).String()
}

// Payload is the metadata stored alongside each vector.
type Payload struct {
	DocumentKey string
	Filename    string
	Text        string
	Index       int
	TotalChunks int
	MediaType   string
}

// VectorRecord is the unit of storage in the vector database.
// ID is the primary key within a collection; writes are upserts, so at
// most one record per ID exists at any time.
type VectorRecord struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Status is the per-document processing state.
// Documents advance strictly forward through the stages; Failed and
// Skipped are terminal and reachable from any non-terminal state.
type Status int

const (
	StatusPending Status = iota
	StatusExtracting
	StatusChunking
	StatusEmbedding
	StatusWriting
	StatusTransitioning
	StatusCompleted
	StatusFailed
	StatusSkipped
)

var statusNames = map[Status]string{
	StatusPending:       "pending",
	StatusExtracting:    "extracting",
	StatusChunking:      "chunking",
	StatusEmbedding:     "embedding",
	StatusWriting:       "writing",
	StatusTransitioning: "transitioning",
	StatusCompleted:     "completed",
	StatusFailed:        "failed",
	StatusSkipped:       "skipped",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// DocumentOutcome is the per-document result of one run.
type DocumentOutcome struct {
	Key        string
	Status     Status
	Stage      Status     // Stage reached when the outcome was finalized
	Attempts   int        // Highest attempt count used by any stage
	ErrorClass ErrorClass // ClassNone unless Status is Failed
	Err        error      // Last error observed, nil on success
}

// Failure is a summary entry describing one failed document.
type Failure struct {
	Key      string
	Stage    string
	Class    string
	Message  string
	Attempts int
}

// RunSummary aggregates all document outcomes for one invocation.
// It is owned by the run orchestrator and published once, at run end.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	// Listing counts observed at run start.
	SourceTotal      int // Objects under the source prefix
	AlreadyProcessed int // Objects skipped because a processed copy exists

	Completed int
	Failed    int
	Skipped   int
	Failures  []Failure
}

// Record folds a document outcome into the summary counts.
func (s *RunSummary) Record(outcome *DocumentOutcome) {
	switch outcome.Status {
	case StatusCompleted:
		s.Completed++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
		msg := ""
		if outcome.Err != nil {
			msg = outcome.Err.Error()
		}
		s.Failures = append(s.Failures, Failure{
			Key:      outcome.Key,
			Stage:    outcome.Stage.String(),
			Class:    outcome.ErrorClass.String(),
			Message:  msg,
			Attempts: outcome.Attempts,
		})
	}
}

// Processed returns the number of documents that reached a terminal state.
func (s *RunSummary) Processed() int {
	return s.Completed + s.Failed + s.Skipped
}
