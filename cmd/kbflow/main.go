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

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hollowbrook/kbflow/chunk"
	"github.com/hollowbrook/kbflow/config"
	"github.com/hollowbrook/kbflow/core"
	"github.com/hollowbrook/kbflow/embed"
	"github.com/hollowbrook/kbflow/extract"
	"github.com/hollowbrook/kbflow/notify"
	"github.com/hollowbrook/kbflow/pipeline"
	miniostore "github.com/hollowbrook/kbflow/storage/minio"
	"github.com/hollowbrook/kbflow/vector"
)

func main() {
	app := &cli.App{
		Name:  "kbflow",
		Usage: "Index documents from object storage into a vector database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run one indexing pass over the source prefix",
				Action: runCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to YAML configuration file",
					},
					&cli.IntFlag{
						Name:  "max-concurrency",
						Usage: "Override the number of documents processed in parallel",
					},
					&cli.StringFlag{
						Name:  "collection",
						Usage: "Override the vector collection name",
					},
					&cli.StringFlag{
						Name:  "source-prefix",
						Usage: "Override the source prefix",
					},
					&cli.StringFlag{
						Name:  "processed-prefix",
						Usage: "Override the processed prefix",
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Disable the progress line on stderr",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger := slog.Default()

	store, err := miniostore.New(ctx, miniostore.Config{
		Endpoint:  cfg.Source.Endpoint,
		AccessKey: cfg.Source.AccessKey,
		SecretKey: cfg.Source.SecretKey,
		Secure:    cfg.Source.Secure,
		Bucket:    cfg.Source.Bucket,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect to object store: %w", err)
	}

	writer, err := vector.NewMilvus(ctx, cfg.Vector.Address, cfg.Vector.Collection, cfg.Embedding.Dimension, cfg.Vector.Timeout.Std(), logger)
	if err != nil {
		return err
	}
	defer writer.Close()

	if err := writer.EnsureCollection(ctx); err != nil {
		return err
	}

	embedder, err := embed.NewOpenAI(cfg.Embedding)
	if err != nil {
		return err
	}

	retry := core.RetryPolicy{
		MaxAttempts: cfg.Run.MaxAttempts,
		BaseDelay:   cfg.Run.RetryBaseDelay.Std(),
		MaxDelay:    cfg.Run.RetryMaxDelay.Std(),
	}

	generator := embed.NewGenerator(
		embedder,
		cfg.Embedding.BatchSize,
		cfg.Embedding.Dimension,
		cfg.Embedding.RequestsPerSecond,
		cfg.Embedding.Timeout.Std(),
		retry,
		logger,
	)

	splitter, err := chunk.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap, cfg.Chunking.Separators)
	if err != nil {
		return err
	}

	sinks := []notify.Sink{notify.NewLogSink(logger)}
	if len(cfg.Notify.Brokers) > 0 {
		kafkaSink := notify.NewKafkaSink(cfg.Notify.Brokers, cfg.Notify.Topic)
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}

	runnerCfg := pipeline.Config{
		SourcePrefix:    cfg.Source.SourcePrefix,
		ProcessedPrefix: cfg.Source.ProcessedPrefix,
		Concurrency:     cfg.Run.MaxConcurrency,
		Retry:           retry,
	}
	if !c.Bool("no-progress") {
		runnerCfg.Progress = os.Stderr
	}

	runner, err := pipeline.NewRunner(runnerCfg, store, extract.NewRegistry(), splitter, generator, writer, notify.NewMulti(logger, sinks...), logger)
	if err != nil {
		return err
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Indexed %d of %d documents (%d already processed, %d failed, %d skipped)\n",
		summary.Completed, summary.SourceTotal, summary.AlreadyProcessed, summary.Failed, summary.Skipped)

	// Per-document failures are not run-fatal, but a scheduler should
	// still see a non-zero exit when anything went wrong.
	if summary.Failed > 0 {
		return fmt.Errorf("%d documents failed", summary.Failed)
	}
	return nil
}

// loadConfig reads the config file and applies CLI overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if n := c.Int("max-concurrency"); n > 0 {
		cfg.Run.MaxConcurrency = n
	}
	if name := c.String("collection"); name != "" {
		cfg.Vector.Collection = name
	}
	if prefix := c.String("source-prefix"); prefix != "" {
		cfg.Source.SourcePrefix = prefix
	}
	if prefix := c.String("processed-prefix"); prefix != "" {
		cfg.Source.ProcessedPrefix = prefix
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
