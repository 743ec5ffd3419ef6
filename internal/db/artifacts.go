package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type UpsertItemJSONParams struct {
	ItemID  pgtype.UUID
	Kind    ArtifactKind
	Payload []byte
}

// UpsertItemJSON stores a raw JSON artifact for an item. Last write wins on
// re-ingestion.
func (q *Queries) UpsertItemJSON(ctx context.Context, params *UpsertItemJSONParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO item_json (item_id, kind, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (item_id, kind) DO UPDATE SET
			payload    = EXCLUDED.payload,
			updated_at = now()`,
		params.ItemID, params.Kind, params.Payload,
	)
	return err
}

// GetItemJSON returns the artifact payload for (item, kind), or nil when no
// artifact of that kind exists.
func (q *Queries) GetItemJSON(ctx context.Context, itemID pgtype.UUID, kind ArtifactKind) ([]byte, error) {
	var payload []byte
	err := q.db.QueryRow(ctx, `
		SELECT payload FROM item_json
		WHERE item_id = $1 AND kind = $2`,
		itemID, kind,
	).Scan(&payload)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return payload, nil
}
