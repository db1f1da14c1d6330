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

// Package notify publishes run summaries and per-document failures to
// interested consumers. Notification is best effort: a broken sink is
// logged, never allowed to fail the run that produced the result.
package notify

import (
	"context"
	"log/slog"

	"github.com/hollowbrook/kbflow/core"
)

// Sink receives pipeline results.
type Sink interface {
	// PublishSummary reports a finished run.
	PublishSummary(ctx context.Context, summary *core.RunSummary) error

	// PublishFailure reports one document that exhausted its retries
	// or failed permanently.
	PublishFailure(ctx context.Context, outcome *core.DocumentOutcome) error
}

// LogSink writes results to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink wraps logger; nil selects the default logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "notify")}
}

// PublishSummary implements Sink.
func (s *LogSink) PublishSummary(_ context.Context, summary *core.RunSummary) error {
	s.logger.Info("run finished",
		"run_id", summary.RunID,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
		"source_total", summary.SourceTotal,
		"already_processed", summary.AlreadyProcessed,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	return nil
}

// PublishFailure implements Sink.
func (s *LogSink) PublishFailure(_ context.Context, outcome *core.DocumentOutcome) error {
	s.logger.Error("document failed",
		"key", outcome.Key,
		"stage", outcome.Stage,
		"attempts", outcome.Attempts,
		"class", outcome.ErrorClass,
		"error", outcome.Err,
	)
	return nil
}

// Multi fans out to several sinks. Errors from individual sinks are
// logged and swallowed.
type Multi struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMulti combines sinks. A nil logger selects the default.
func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{sinks: sinks, logger: logger}
}

// PublishSummary implements Sink. It always returns nil.
func (m *Multi) PublishSummary(ctx context.Context, summary *core.RunSummary) error {
	for _, sink := range m.sinks {
		if err := sink.PublishSummary(ctx, summary); err != nil {
			m.logger.Warn("summary notification failed", "error", err)
		}
	}
	return nil
}

// PublishFailure implements Sink. It always returns nil.
func (m *Multi) PublishFailure(ctx context.Context, outcome *core.DocumentOutcome) error {
	for _, sink := range m.sinks {
		if err := sink.PublishFailure(ctx, outcome); err != nil {
			m.logger.Warn("failure notification failed", "error", err)
		}
	}
	return nil
}
