package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

type ArtifactKind string

const (
	ArtifactKindMeta     ArtifactKind = "meta"
	ArtifactKindAnalysis ArtifactKind = "analysis"
	ArtifactKindRecipe   ArtifactKind = "recipe"
)

// IngestJob is one unit of asynchronous ingestion work. Rows are never
// deleted; terminal jobs remain as an audit trail.
type IngestJob struct {
	ID              pgtype.UUID
	URL             string
	Status          JobStatus
	ItemID          pgtype.UUID
	Error           *string
	AllowInference  bool
	Refresh         bool
	Attempts        int32
	MaxAttempts     int32
	LeaseOwner      *string
	LeaseExpiresAt  pgtype.Timestamptz
	LastHeartbeatAt pgtype.Timestamptz
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
}

// Item is the canonical row for one ingested post. Its id is a deterministic
// UUIDv5 of (platform, post id), so re-ingestion always lands on the same row.
type Item struct {
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
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

// ItemJSON holds a raw JSON artifact for an item, keyed by (item_id, kind).
type ItemJSON struct {
	ItemID    pgtype.UUID
	Kind      ArtifactKind
	Payload   []byte
	UpdatedAt pgtype.Timestamptz
}
