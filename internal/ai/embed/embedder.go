// Package embed implements the search embedder on an OpenAI-compatible
// embeddings API via langchaingo.
package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/eliasantony/recallr-api/internal/ai"
)

type Embedder struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

type Config struct {
	BaseURL string
	Token   string
	Model   string
}

func NewEmbedder(cfg Config) (*Embedder, error) {
	opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	token := cfg.Token
	if token == "" {
		token = "none"
	}
	opts = append(opts, openai.WithToken(token))

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("embed: create client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("embed: create embedder: %w", err)
	}

	return &Embedder{
		embedder: embedder,
		logger:   slog.Default().With("component", "embedder"),
	}, nil
}

// EmbedText generates a vector embedding for a single text string. The vector
// is checked against the fixed dimension the items table expects.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, &ai.EmbeddingError{Err: err}
	}
	if len(vectors) == 0 {
		return nil, &ai.EmbeddingError{Err: fmt.Errorf("embedder returned no vectors")}
	}

	vec := vectors[0]
	if len(vec) != ai.EmbeddingDim {
		return nil, &ai.EmbeddingError{Err: fmt.Errorf("unexpected embedding dimension %d, want %d", len(vec), ai.EmbeddingDim)}
	}
	return vec, nil
}
