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

// Package config loads and validates the pipeline configuration.
//
// Configuration comes from a YAML file; the CLI may override individual
// values after loading. Defaults follow the processing parameters the
// pipeline was tuned with (1000-character chunks, 200-character overlap,
// embedding batches of 20, five concurrent documents).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can use Go duration
// strings like "30s" or "1m" (yaml.v3 only decodes integers natively).
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML decodes a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML encodes the duration as a Go duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// SourceConfig describes the object store holding source documents.
type SourceConfig struct {
	Endpoint        string `yaml:"endpoint"`        // S3-compatible endpoint, e.g. "localhost:9000"
	AccessKey       string `yaml:"accessKey"`       // Access key ID
	SecretKey       string `yaml:"secretKey"`       // Secret access key
	Secure          bool   `yaml:"secure"`          // Use HTTPS
	Bucket          string `yaml:"bucket"`          // Bucket holding both prefixes
	SourcePrefix    string `yaml:"sourcePrefix"`    // Prefix listing pending documents
	ProcessedPrefix string `yaml:"processedPrefix"` // Prefix receiving processed documents
}

// EmbeddingConfig describes the embedding provider.
type EmbeddingConfig struct {
	Host              string        `yaml:"host"`              // Base URL of an OpenAI-compatible API
	APIKey            string        `yaml:"apiKey"`            // Bearer token; empty for unauthenticated local services
	Model             string        `yaml:"model"`             // Embedding model identifier
	Dimension         int           `yaml:"dimension"`         // Expected vector dimension; 0 disables the check
	BatchSize         int           `yaml:"batchSize"`         // Max chunks per embedding request
	RequestsPerSecond float64       `yaml:"requestsPerSecond"` // Shared provider-wide rate limit
	Timeout           Duration      `yaml:"timeout"`           // Per-request timeout
}

// VectorConfig describes the vector database.
type VectorConfig struct {
	Address    string   `yaml:"address"`    // Milvus address, e.g. "localhost:19530"
	Collection string   `yaml:"collection"` // Target collection name
	Timeout    Duration `yaml:"timeout"`    // Per-call timeout
}

// ChunkingConfig describes the splitter parameters.
type ChunkingConfig struct {
	Size       int      `yaml:"size"`       // Maximum chunk size in characters
	Overlap    int      `yaml:"overlap"`    // Overlap between consecutive chunks in characters
	Separators []string `yaml:"separators"` // Boundary precedence; empty uses the default policy
}

// RunConfig describes orchestration parameters.
type RunConfig struct {
	MaxConcurrency int      `yaml:"maxConcurrency"` // Simultaneous documents
	MaxAttempts    int      `yaml:"maxAttempts"`    // Attempt budget per retryable operation
	RetryBaseDelay Duration `yaml:"retryBaseDelay"` // Backoff base delay
	RetryMaxDelay  Duration `yaml:"retryMaxDelay"`  // Backoff delay cap
}

// NotifyConfig describes the optional Kafka notification sink.
// The slog sink is always active; Kafka is added when Brokers is set.
type NotifyConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Config is the root configuration for one pipeline deployment.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Run       RunConfig       `yaml:"run"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// Default returns a Config with the standard processing parameters.
// Connection fields (endpoint, credentials, addresses) have no defaults
// and must come from the file or flags.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			SourcePrefix:    "source/",
			ProcessedPrefix: "processed/",
		},
		Embedding: EmbeddingConfig{
			Host:              "http://localhost:11434/v1",
			Model:             "text-embedding-3-small",
			BatchSize:         20,
			RequestsPerSecond: 5,
			Timeout:           Duration(30 * time.Second),
		},
		Vector: VectorConfig{
			Collection: "knowledge-base",
			Timeout:    Duration(30 * time.Second),
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Run: RunConfig{
			MaxConcurrency: 5,
			MaxAttempts:    3,
			RetryBaseDelay: Duration(time.Second),
			RetryMaxDelay:  Duration(30 * time.Second),
		},
	}
}

// Load reads a YAML config file and merges it over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Validation errors.
var (
	ErrMissingEndpoint    = errors.New("source endpoint required")
	ErrMissingBucket      = errors.New("source bucket required")
	ErrMissingVectorAddr  = errors.New("vector database address required")
	ErrMissingCollection  = errors.New("vector collection name required")
	ErrInvalidChunking    = errors.New("chunk overlap must be smaller than chunk size")
	ErrInvalidConcurrency = errors.New("max concurrency must be positive")
	ErrInvalidBatchSize   = errors.New("embedding batch size must be positive")
	ErrInvalidAttempts    = errors.New("max attempts must be positive")
	ErrSamePrefix         = errors.New("source and processed prefixes must differ")
)

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Source.Endpoint == "" {
		return ErrMissingEndpoint
	}
	if c.Source.Bucket == "" {
		return ErrMissingBucket
	}
	if strings.TrimSuffix(c.Source.SourcePrefix, "/") == strings.TrimSuffix(c.Source.ProcessedPrefix, "/") {
		return ErrSamePrefix
	}
	if c.Vector.Address == "" {
		return ErrMissingVectorAddr
	}
	if c.Vector.Collection == "" {
		return ErrMissingCollection
	}
	if c.Chunking.Size <= 0 || c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return ErrInvalidChunking
	}
	if c.Run.MaxConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Embedding.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Run.MaxAttempts <= 0 {
		return ErrInvalidAttempts
	}
	return nil
}
