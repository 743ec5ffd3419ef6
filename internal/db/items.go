package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const itemColumns = `id, platform, post_id, url, title, author_name, published_at,
	topics, is_recipe, storage_dir, thumb_url, summary, created_at, updated_at`

func scanItem(row interface{ Scan(dest ...any) error }) (*Item, error) {
	var it Item
	err := row.Scan(
		&it.ID, &it.Platform, &it.PostID, &it.URL, &it.Title, &it.AuthorName, &it.PublishedAt,
		&it.Topics, &it.IsRecipe, &it.StorageDir, &it.ThumbURL, &it.Summary,
		&it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

type UpsertItemParams struct {
	ID          pgtype.UUID
	Platform    string
	PostID      string
	URL         string
	Title       string
	AuthorName  *string
	PublishedAt pgtype.Timestamptz
	Topics      []string
	IsRecipe    bool
	StorageDir  string
	ThumbURL    *string
	Summary     *string
}

// UpsertItem inserts or updates the item row for a deterministic id.
// Re-ingestion of the same post always lands on the same row.
func (q *Queries) UpsertItem(ctx context.Context, params *UpsertItemParams) (*Item, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO items (id, platform, post_id, url, title, author_name, published_at,
			topics, is_recipe, storage_dir, thumb_url, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			url          = EXCLUDED.url,
			title        = EXCLUDED.title,
			author_name  = EXCLUDED.author_name,
			published_at = EXCLUDED.published_at,
			topics       = EXCLUDED.topics,
			is_recipe    = EXCLUDED.is_recipe,
			storage_dir  = EXCLUDED.storage_dir,
			thumb_url    = EXCLUDED.thumb_url,
			summary      = EXCLUDED.summary,
			updated_at   = now()
		RETURNING `+itemColumns,
		params.ID, params.Platform, params.PostID, params.URL, params.Title,
		params.AuthorName, params.PublishedAt, params.Topics, params.IsRecipe,
		params.StorageDir, params.ThumbURL, params.Summary,
	)
	return scanItem(row)
}

// GetItem returns an item by id.
func (q *Queries) GetItem(ctx context.Context, id pgtype.UUID) (*Item, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = $1`,
		id,
	)
	return scanItem(row)
}

type UpdateItemEmbeddingParams struct {
	ID     pgtype.UUID
	Vector string // pgvector literal, see VectorLiteral
}

// UpdateItemEmbedding writes the embedding column. This runs outside the
// item/artifact transaction; failures are logged by callers, not rolled back.
func (q *Queries) UpdateItemEmbedding(ctx context.Context, params *UpdateItemEmbeddingParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE items
		SET embedding = $2::vector, updated_at = now()
		WHERE id = $1`,
		params.ID, params.Vector,
	)
	return err
}

type SearchItemsByEmbeddingParams struct {
	Vector string
	Limit  int32
}

type SearchItemsByEmbeddingRow struct {
	Item
	Similarity float64
}

// SearchItemsByEmbedding runs a cosine-distance similarity query. Items with
// a NULL embedding are excluded from search until a rebuild or the reconciler
// fills them in.
func (q *Queries) SearchItemsByEmbedding(ctx context.Context, params *SearchItemsByEmbeddingParams) ([]*SearchItemsByEmbeddingRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+itemColumns+`, 1 - (embedding <=> $1::vector) AS similarity
		FROM items
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector
		LIMIT $2`,
		params.Vector, params.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SearchItemsByEmbeddingRow
	for rows.Next() {
		var r SearchItemsByEmbeddingRow
		err := rows.Scan(
			&r.ID, &r.Platform, &r.PostID, &r.URL, &r.Title, &r.AuthorName, &r.PublishedAt,
			&r.Topics, &r.IsRecipe, &r.StorageDir, &r.ThumbURL, &r.Summary,
			&r.CreatedAt, &r.UpdatedAt, &r.Similarity,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

type ListItemsParams struct {
	After pgtype.Timestamptz // keyset cursor, zero value means "from the top"
	Limit int32
}

// ListItems returns items newest-first with keyset pagination on created_at.
func (q *Queries) ListItems(ctx context.Context, params *ListItemsParams) ([]*Item, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if params.After.Valid {
		rows, err = q.db.Query(ctx, `
			SELECT `+itemColumns+`
			FROM items
			WHERE created_at < $1
			ORDER BY created_at DESC
			LIMIT $2`,
			params.After, params.Limit,
		)
	} else {
		rows, err = q.db.Query(ctx, `
			SELECT `+itemColumns+`
			FROM items
			ORDER BY created_at DESC
			LIMIT $1`,
			params.Limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListItemsMissingEmbedding feeds the re-embed reconciler: items that are
// durably visible but were left without a vector by a phase-B failure.
func (q *Queries) ListItemsMissingEmbedding(ctx context.Context, limit int32) ([]*Item, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		WHERE i.embedding IS NULL
		  AND EXISTS (
			SELECT 1 FROM item_json a
			WHERE a.item_id = i.id AND a.kind = 'meta'
		  )
		ORDER BY i.created_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// CountItems returns the total item count (used by the health endpoint).
func (q *Queries) CountItems(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}
