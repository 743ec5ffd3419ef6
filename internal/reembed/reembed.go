// Package reembed repairs the gap between the transactional item write and
// the best-effort embedding write: a background reconciler finds items that
// are visible but have no vector, recomposes the embedding text from their
// stored artifacts and retries the embedding.
package reembed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/eliasantony/recallr-api/internal/ai"
	"github.com/eliasantony/recallr-api/internal/db"
	"github.com/eliasantony/recallr-api/internal/extract"
	"github.com/eliasantony/recallr-api/internal/pipeline"
)

const (
	// DefaultInterval is how often the reconciler scans for repair work.
	DefaultInterval = 5 * time.Minute

	// defaultBatchSize bounds one scan so a large backlog drains gradually.
	defaultBatchSize = 50
)

type store interface {
	ListItemsMissingEmbedding(ctx context.Context, limit int32) ([]*db.Item, error)
	GetItemJSON(ctx context.Context, itemID pgtype.UUID, kind db.ArtifactKind) ([]byte, error)
	UpdateItemEmbedding(ctx context.Context, params *db.UpdateItemEmbeddingParams) error
}

type Reconciler struct {
	store    store
	embedder ai.Embedder
	logger   *slog.Logger

	interval  time.Duration
	batchSize int32
}

func NewReconciler(s store, embedder ai.Embedder) *Reconciler {
	return &Reconciler{
		store:     s,
		embedder:  embedder,
		logger:    slog.Default().With("component", "reembed"),
		interval:  DefaultInterval,
		batchSize: defaultBatchSize,
	}
}

// Run scans on a fixed interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("reembed reconciler started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reembed reconciler stopping")
			return
		case <-ticker.C:
			repaired, err := r.RunOnce(ctx)
			if err != nil {
				r.logger.Error("reconcile scan failed", "error", err)
			} else if repaired > 0 {
				r.logger.Info("repaired missing embeddings", "count", repaired)
			}
		}
	}
}

// RunOnce processes one batch and returns how many items got an embedding.
// Per-item failures are logged and skipped; the item stays eligible for the
// next scan.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	items, err := r.store.ListItemsMissingEmbedding(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list items missing embedding: %w", err)
	}

	repaired := 0
	for _, item := range items {
		if err := r.reembedItem(ctx, item); err != nil {
			r.logger.Warn("failed to reembed item", "item_id", item.ID, "error", err)
			continue
		}
		repaired++
	}
	return repaired, nil
}

func (r *Reconciler) reembedItem(ctx context.Context, item *db.Item) error {
	text, err := r.composeFromArtifacts(ctx, item.ID)
	if err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("stored artifacts compose to empty text")
	}

	vec, err := r.embedder.EmbedText(ctx, text)
	if err != nil {
		return err
	}

	return r.store.UpdateItemEmbedding(ctx, &db.UpdateItemEmbeddingParams{
		ID:     item.ID,
		Vector: db.VectorLiteral(vec),
	})
}

// composeFromArtifacts rebuilds the exact embedding input from the stored
// meta/analysis/recipe artifacts, so a repaired vector matches what the
// pipeline would have written.
func (r *Reconciler) composeFromArtifacts(ctx context.Context, itemID pgtype.UUID) (string, error) {
	metaPayload, err := r.store.GetItemJSON(ctx, itemID, db.ArtifactKindMeta)
	if err != nil {
		return "", fmt.Errorf("load meta artifact: %w", err)
	}
	if len(metaPayload) == 0 {
		return "", fmt.Errorf("no meta artifact stored")
	}

	var meta extract.Result
	if err := json.Unmarshal(metaPayload, &meta); err != nil {
		return "", fmt.Errorf("parse meta artifact: %w", err)
	}

	var analysis *ai.Analysis
	if payload, err := r.store.GetItemJSON(ctx, itemID, db.ArtifactKindAnalysis); err == nil && len(payload) > 0 {
		var a ai.Analysis
		if err := json.Unmarshal(payload, &a); err == nil {
			analysis = &a
		}
	}

	var recipe *ai.Recipe
	if payload, err := r.store.GetItemJSON(ctx, itemID, db.ArtifactKindRecipe); err == nil && len(payload) > 0 {
		var rec ai.Recipe
		if err := json.Unmarshal(payload, &rec); err == nil {
			recipe = &rec
		}
	}

	return pipeline.ComposeEmbeddingText(&meta, analysis, recipe), nil
}
