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

import "errors"

// ErrorClass categorizes pipeline errors for retry and reporting decisions.
type ErrorClass int

const (
	// ClassNone means no error, or an error that has not been classified.
	ClassNone ErrorClass = iota

	// ClassListing marks a failure to enumerate the source. Run-fatal:
	// there is nothing to fan out into.
	ClassListing

	// ClassPermanent marks an unrecoverable per-document condition
	// (corrupt input, provider content rejection, schema mismatch).
	// The document fails immediately; the run continues.
	ClassPermanent

	// ClassTransient marks a recoverable condition (timeout, rate limit,
	// transient network failure). Retried with exponential backoff.
	ClassTransient

	// ClassNotification marks a failure to publish the run summary.
	// Logged, never fails the run.
	ClassNotification
)

var classNames = map[ErrorClass]string{
	ClassNone:         "none",
	ClassListing:      "listing",
	ClassPermanent:    "permanent",
	ClassTransient:    "transient",
	ClassNotification: "notification",
}

func (c ErrorClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "unknown"
}

// classifiedError attaches an ErrorClass to a wrapped error.
type classifiedError struct {
	class ErrorClass
	err   error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Permanent wraps err as a permanent, non-retryable error.
// Returns nil if err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: ClassPermanent, err: err}
}

// Transient wraps err as a transient, retryable error.
// Returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: ClassTransient, err: err}
}

// Listing wraps err as a run-fatal listing error.
// Returns nil if err is nil.
func Listing(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: ClassListing, err: err}
}

// ClassOf reports the class of err. Unclassified errors default to
// ClassTransient: when in doubt the pipeline retries, relying on the
// idempotent upsert to make repeats safe.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.class
	}
	return ClassTransient
}

// IsPermanent reports whether err carries ClassPermanent.
func IsPermanent(err error) bool {
	return ClassOf(err) == ClassPermanent
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return ClassOf(err) == ClassTransient
}

// IsListing reports whether err is run-fatal.
func IsListing(err error) bool {
	return ClassOf(err) == ClassListing
}
