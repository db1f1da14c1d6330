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

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hollowbrook/kbflow/core"
)

// Event type values carried in the message key.
const (
	eventRunSummary      = "run-summary"
	eventDocumentFailure = "document-failure"
)

// summaryEvent is the wire form of a run summary.
type summaryEvent struct {
	Event            string    `json:"event"`
	RunID            string    `json:"runId"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	SourceTotal      int       `json:"sourceTotal"`
	AlreadyProcessed int       `json:"alreadyProcessed"`
	Completed        int       `json:"completed"`
	Failed           int       `json:"failed"`
	Skipped          int       `json:"skipped"`
	Failures         []string  `json:"failures,omitempty"`
}

// failureEvent is the wire form of one failed document.
type failureEvent struct {
	Event    string `json:"event"`
	Key      string `json:"key"`
	Stage    string `json:"stage"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// KafkaSink publishes results to a Kafka topic.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  brokers,
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		}),
	}
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// PublishSummary implements Sink.
func (s *KafkaSink) PublishSummary(ctx context.Context, summary *core.RunSummary) error {
	event := summaryEvent{
		Event:            eventRunSummary,
		RunID:            summary.RunID,
		StartedAt:        summary.StartedAt,
		FinishedAt:       summary.FinishedAt,
		SourceTotal:      summary.SourceTotal,
		AlreadyProcessed: summary.AlreadyProcessed,
		Completed:        summary.Completed,
		Failed:           summary.Failed,
		Skipped:          summary.Skipped,
	}
	for _, f := range summary.Failures {
		event.Failures = append(event.Failures, f.Key)
	}
	return s.publish(ctx, eventRunSummary, event)
}

// PublishFailure implements Sink.
func (s *KafkaSink) PublishFailure(ctx context.Context, outcome *core.DocumentOutcome) error {
	event := failureEvent{
		Event:    eventDocumentFailure,
		Key:      outcome.Key,
		Stage:    outcome.Stage.String(),
		Attempts: outcome.Attempts,
	}
	if outcome.Err != nil {
		event.Error = outcome.Err.Error()
	}
	return s.publish(ctx, eventDocumentFailure, event)
}

func (s *KafkaSink) publish(ctx context.Context, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", key, err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", key, err)
	}
	return nil
}
