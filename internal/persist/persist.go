// Package persist writes a pipeline result to the database: one transaction
// for the item row and its JSON artifacts, then a separate best-effort write
// of the embedding column.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/eliasantony/recallr-api/internal/ai"
	"github.com/eliasantony/recallr-api/internal/db"
	"github.com/eliasantony/recallr-api/internal/pipeline"
	"github.com/eliasantony/recallr-api/internal/postid"
)

// PersistenceError marks a failed phase-A write. It is fatal to the job.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type Coordinator struct {
	dbc    *db.DatabaseConnection
	logger *slog.Logger
}

func NewCoordinator(dbc *db.DatabaseConnection) *Coordinator {
	return &Coordinator{
		dbc:    dbc,
		logger: slog.Default().With("component", "persist"),
	}
}

// Persist stores a pipeline result and returns the item id. Phase A (item row
// plus artifacts) is atomic and fatal on failure. Phase B (embedding column)
// is best-effort; a failure there leaves the item visible but out of
// similarity search, which the re-embed reconciler later repairs.
func (c *Coordinator) Persist(ctx context.Context, url string, res *pipeline.Result) (pgtype.UUID, error) {
	itemID := pgtype.UUID{
		Bytes: postid.ItemUUID(res.Meta.Platform, res.Meta.PostID),
		Valid: true,
	}

	if err := c.persistPhaseA(ctx, itemID, url, res); err != nil {
		return pgtype.UUID{}, &PersistenceError{Err: err}
	}

	c.persistPhaseB(ctx, itemID, res.Embedding)

	return itemID, nil
}

func (c *Coordinator) persistPhaseA(ctx context.Context, itemID pgtype.UUID, url string, res *pipeline.Result) error {
	q, tx, err := c.dbc.NewWithTX(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := q.UpsertItem(ctx, BuildItemParams(itemID, url, res)); err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}

	metaPayload, err := json.Marshal(res.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta artifact: %w", err)
	}
	artifacts := []*db.UpsertItemJSONParams{
		{ItemID: itemID, Kind: db.ArtifactKindMeta, Payload: metaPayload},
	}

	if res.Analysis != nil {
		payload, err := json.Marshal(res.Analysis)
		if err != nil {
			return fmt.Errorf("marshal analysis artifact: %w", err)
		}
		artifacts = append(artifacts, &db.UpsertItemJSONParams{ItemID: itemID, Kind: db.ArtifactKindAnalysis, Payload: payload})
	}
	if res.Recipe != nil {
		payload, err := json.Marshal(res.Recipe)
		if err != nil {
			return fmt.Errorf("marshal recipe artifact: %w", err)
		}
		artifacts = append(artifacts, &db.UpsertItemJSONParams{ItemID: itemID, Kind: db.ArtifactKindRecipe, Payload: payload})
	}

	for _, a := range artifacts {
		if err := q.UpsertItemJSON(ctx, a); err != nil {
			return fmt.Errorf("upsert %s artifact: %w", a.Kind, err)
		}
	}

	return tx.Commit(ctx)
}

func (c *Coordinator) persistPhaseB(ctx context.Context, itemID pgtype.UUID, embedding []float32) {
	if len(embedding) == 0 {
		return
	}
	if len(embedding) != ai.EmbeddingDim {
		c.logger.Warn("skipping embedding write, unexpected dimension",
			"item_id", itemID, "dim", len(embedding), "want", ai.EmbeddingDim)
		return
	}

	err := c.dbc.Queries(ctx).UpdateItemEmbedding(ctx, &db.UpdateItemEmbeddingParams{
		ID:     itemID,
		Vector: db.VectorLiteral(embedding),
	})
	if err != nil {
		c.logger.Warn("embedding write failed, item stays out of similarity search",
			"item_id", itemID, "error", err)
	}
}

// BuildItemParams derives the item row facets from a pipeline result. The
// summary falls back through analysis, recipe title and caption.
func BuildItemParams(itemID pgtype.UUID, url string, res *pipeline.Result) *db.UpsertItemParams {
	meta := res.Meta

	params := &db.UpsertItemParams{
		ID:         itemID,
		Platform:   meta.Platform,
		PostID:     meta.PostID,
		URL:        url,
		Title:      meta.Title,
		ThumbURL:   meta.ThumbURL,
		StorageDir: res.StorageDir,
		IsRecipe:   res.Recipe != nil || (res.Analysis != nil && res.Analysis.IsRecipe()),
	}

	if author := strings.TrimSpace(meta.Author); author != "" {
		params.AuthorName = &author
	}
	if meta.PublishedAt != nil {
		params.PublishedAt = pgtype.Timestamptz{Time: *meta.PublishedAt, Valid: true}
	}
	if res.Analysis != nil {
		params.Topics = res.Analysis.Topics
	}
	if summary := summaryFor(res); summary != "" {
		params.Summary = &summary
	}

	return params
}

func summaryFor(res *pipeline.Result) string {
	if res.Analysis != nil {
		if s := strings.TrimSpace(res.Analysis.Summary); s != "" {
			return s
		}
	}
	if res.Recipe != nil {
		if s := strings.TrimSpace(res.Recipe.Title); s != "" {
			return s
		}
	}
	return strings.TrimSpace(res.Meta.Caption)
}
