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
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidMaxAttempts is returned when MaxAttempts is <= 0.
var ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

// RetryPolicy describes the backoff discipline applied to transient errors.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay after the first failed attempt; it doubles
	// on each subsequent failure.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay. Zero means uncapped.
	MaxDelay time.Duration
}

// Do runs operation until it succeeds, returns a permanent error, the
// attempt budget is exhausted, or ctx is canceled. It returns the number
// of attempts made alongside the final error.
//
// Permanent errors (see IsPermanent) are never retried.
func (p RetryPolicy) Do(ctx context.Context, operation func() error) (int, error) {
	if p.MaxAttempts <= 0 {
		return 0, ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return attempt - 1, ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return attempt, nil
		}

		if IsPermanent(lastErr) {
			return attempt, lastErr
		}

		slog.Debug("operation failed, will retry",
			"attempt", attempt, "maxAttempts", p.MaxAttempts, "error", lastErr)

		// Don't sleep after the last attempt
		if attempt == p.MaxAttempts {
			break
		}

		// Exponential backoff: BaseDelay * 2^(attempt-1), capped at MaxDelay
		delay := p.BaseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				delay = p.MaxDelay
				break
			}
		}
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}

		// Sleep with context awareness
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
			// Continue to next attempt
		}
	}

	return p.MaxAttempts, lastErr
}
