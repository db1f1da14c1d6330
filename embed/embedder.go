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

package embed

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hollowbrook/kbflow/config"
)

// Embedder turns texts into vectors. One call embeds one batch.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// openAIEmbedder adapts the langchaingo OpenAI client to Embedder. It
// works against any OpenAI-compatible endpoint, including local Ollama.
type openAIEmbedder struct {
	impl *embeddings.EmbedderImpl
}

// NewOpenAI builds an embedder from the embedding config.
func NewOpenAI(cfg config.EmbeddingConfig) (Embedder, error) {
	token := cfg.APIKey
	if token == "" {
		// The client refuses to construct without a token even for
		// endpoints that ignore it.
		token = "none"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.Host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}

	impl, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &openAIEmbedder{impl: impl}, nil
}

func (e *openAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, classify(err)
	}
	return vectors, nil
}
