package ai

import (
	"context"
	"fmt"
)

// EmbeddingDim is the fixed dimension of search embeddings; it must match the
// vector column in the database.
const EmbeddingDim = 768

// MediaRef points an analyzer at downloaded media. A nil ref (or nil Path)
// means text-only input.
type MediaRef struct {
	Path string
}

// Meta carries the textual context an analyzer gets alongside the media.
type Meta struct {
	Platform   string
	Title      string
	Caption    string
	Transcript string
}

// Analyzer runs the two analysis passes. Implementations must be safe for
// concurrent use.
type Analyzer interface {
	// AnalyzeGeneral produces the general-understanding result. media may be
	// nil for text-only analyzers or when no media was downloaded.
	AnalyzeGeneral(ctx context.Context, media *MediaRef, meta Meta) (*Analysis, error)

	// AnalyzeRecipe runs the specialized extraction pass. allowInference
	// governs whether the analyzer may fill fields not present in the content.
	AnalyzeRecipe(ctx context.Context, media *MediaRef, meta Meta, allowInference bool) (*Recipe, error)
}

// Embedder turns text into a fixed-dimension vector for similarity search.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// AnalysisError wraps a provider failure; the orchestrator treats it as
// recoverable and falls back to the next provider.
type AnalysisError struct {
	Provider string
	Err      error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis provider %s: %v", e.Provider, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// EmbeddingError wraps an embedding provider failure; recoverable, the item
// simply stays out of similarity search.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }
