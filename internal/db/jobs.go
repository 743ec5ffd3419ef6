package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const ingestJobColumns = `id, url, status, item_id, error, allow_inference, refresh,
	attempts, max_attempts, lease_owner, lease_expires_at, last_heartbeat_at,
	created_at, updated_at`

func scanIngestJob(row interface{ Scan(dest ...any) error }) (*IngestJob, error) {
	var j IngestJob
	err := row.Scan(
		&j.ID, &j.URL, &j.Status, &j.ItemID, &j.Error, &j.AllowInference, &j.Refresh,
		&j.Attempts, &j.MaxAttempts, &j.LeaseOwner, &j.LeaseExpiresAt, &j.LastHeartbeatAt,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

type InsertIngestJobParams struct {
	URL            string
	AllowInference bool
	Refresh        bool
	MaxAttempts    int32
}

// InsertIngestJob creates a new queued job row.
func (q *Queries) InsertIngestJob(ctx context.Context, params *InsertIngestJobParams) (*IngestJob, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO ingest_jobs (url, status, allow_inference, refresh, max_attempts)
		VALUES ($1, 'queued', $2, $3, $4)
		RETURNING `+ingestJobColumns,
		params.URL, params.AllowInference, params.Refresh, params.MaxAttempts,
	)
	return scanIngestJob(row)
}

// GetActiveIngestJobByURL returns the most recent non-terminal job for a URL.
// Used for duplicate-ingest dedup: a queued or running job for the same URL is
// returned to the caller instead of creating a new row.
func (q *Queries) GetActiveIngestJobByURL(ctx context.Context, url string) (*IngestJob, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+ingestJobColumns+`
		FROM ingest_jobs
		WHERE url = $1 AND status IN ('queued', 'running')
		ORDER BY created_at DESC
		LIMIT 1`,
		url,
	)
	return scanIngestJob(row)
}

// GetIngestJob returns a job by id.
func (q *Queries) GetIngestJob(ctx context.Context, id pgtype.UUID) (*IngestJob, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+ingestJobColumns+`
		FROM ingest_jobs
		WHERE id = $1`,
		id,
	)
	return scanIngestJob(row)
}

type ClaimNextIngestJobParams struct {
	LeaseOwner   string
	LeaseSeconds float64
}

// ClaimNextIngestJob atomically claims the oldest eligible job. Eligible means
// queued, or running with an expired lease. FOR UPDATE SKIP LOCKED guarantees
// two concurrent claimers never pick the same row.
func (q *Queries) ClaimNextIngestJob(ctx context.Context, params *ClaimNextIngestJobParams) (*IngestJob, error) {
	row := q.db.QueryRow(ctx, `
		WITH candidate AS (
			SELECT id
			FROM ingest_jobs
			WHERE status = 'queued'
			   OR (status = 'running' AND lease_expires_at < now())
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE ingest_jobs j
		SET status            = 'running',
		    lease_owner       = $1,
		    lease_expires_at  = now() + make_interval(secs => $2),
		    last_heartbeat_at = now(),
		    updated_at        = now()
		FROM candidate
		WHERE j.id = candidate.id
		RETURNING `+prefixedIngestJobColumns("j"),
		params.LeaseOwner, params.LeaseSeconds,
	)
	return scanIngestJob(row)
}

type HeartbeatIngestJobParams struct {
	ID           pgtype.UUID
	LeaseOwner   string
	LeaseSeconds float64
}

// HeartbeatIngestJob extends the lease if the caller still owns it. Returns
// false when ownership was lost; callers treat that as a silent no-op.
func (q *Queries) HeartbeatIngestJob(ctx context.Context, params *HeartbeatIngestJobParams) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE ingest_jobs
		SET lease_expires_at  = now() + make_interval(secs => $3),
		    last_heartbeat_at = now(),
		    updated_at        = now()
		WHERE id = $1 AND lease_owner = $2 AND status = 'running'`,
		params.ID, params.LeaseOwner, params.LeaseSeconds,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type CompleteIngestJobParams struct {
	ID         pgtype.UUID
	LeaseOwner string
	ItemID     pgtype.UUID
}

// CompleteIngestJob marks an owned job done and records the produced item.
func (q *Queries) CompleteIngestJob(ctx context.Context, params *CompleteIngestJobParams) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE ingest_jobs
		SET status           = 'done',
		    item_id          = $3,
		    error            = NULL,
		    lease_owner      = NULL,
		    lease_expires_at = NULL,
		    updated_at       = now()
		WHERE id = $1 AND lease_owner = $2 AND status = 'running'`,
		params.ID, params.LeaseOwner, params.ItemID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type FailIngestJobParams struct {
	ID         pgtype.UUID
	LeaseOwner string
	Error      string
}

type FailIngestJobRow struct {
	Status   JobStatus
	Attempts int32
}

// FailIngestJob records a failed attempt. The attempts counter is bumped and
// the job either re-enters the claim pool or, once max_attempts is reached,
// lands in the terminal error state.
func (q *Queries) FailIngestJob(ctx context.Context, params *FailIngestJobParams) (*FailIngestJobRow, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE ingest_jobs
		SET attempts         = attempts + 1,
		    status           = CASE WHEN attempts + 1 >= max_attempts THEN 'error'::job_status ELSE 'queued'::job_status END,
		    error            = $3,
		    lease_owner      = NULL,
		    lease_expires_at = NULL,
		    updated_at       = now()
		WHERE id = $1 AND lease_owner = $2 AND status = 'running'
		RETURNING status, attempts`,
		params.ID, params.LeaseOwner, params.Error,
	)
	var out FailIngestJobRow
	if err := row.Scan(&out.Status, &out.Attempts); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListenIngestJobs subscribes the connection to new-job notifications.
func (q *Queries) ListenIngestJobs(ctx context.Context) error {
	_, err := q.db.Exec(ctx, `LISTEN ingest_jobs`)
	return err
}
