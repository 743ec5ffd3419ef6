// Package queue is the lease manager for the ingest job queue. It owns the
// job state machine; all claim, heartbeat and completion traffic goes through
// it.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/eliasantony/recallr-api/internal/db"
	"github.com/eliasantony/recallr-api/internal/postid"
)

const (
	// MaxAttempts is how many failed executions a job gets before it lands in
	// the terminal error state.
	MaxAttempts = 3

	// LeaseDuration bounds how long a worker may hold a job without
	// heartbeating before another worker can reclaim it.
	LeaseDuration = 10 * time.Minute

	// HeartbeatInterval is how often a working owner extends its lease.
	HeartbeatInterval = LeaseDuration / 3

	// maxErrorLen bounds the failure message stored on the job row.
	maxErrorLen = 500
)

type jobStore interface {
	InsertIngestJob(ctx context.Context, params *db.InsertIngestJobParams) (*db.IngestJob, error)
	GetActiveIngestJobByURL(ctx context.Context, url string) (*db.IngestJob, error)
	GetIngestJob(ctx context.Context, id pgtype.UUID) (*db.IngestJob, error)
	ClaimNextIngestJob(ctx context.Context, params *db.ClaimNextIngestJobParams) (*db.IngestJob, error)
	HeartbeatIngestJob(ctx context.Context, params *db.HeartbeatIngestJobParams) (bool, error)
	CompleteIngestJob(ctx context.Context, params *db.CompleteIngestJobParams) (bool, error)
	FailIngestJob(ctx context.Context, params *db.FailIngestJobParams) (*db.FailIngestJobRow, error)
}

type Manager struct {
	store  jobStore
	logger *slog.Logger
}

func NewManager(store jobStore) *Manager {
	return &Manager{
		store:  store,
		logger: slog.Default().With("component", "queue"),
	}
}

// Enqueue creates a queued job for url, or returns the existing non-terminal
// job for the same normalized URL when refresh is false. The second return
// value reports whether a new row was created.
func (m *Manager) Enqueue(ctx context.Context, url string, allowInference, refresh bool) (*db.IngestJob, bool, error) {
	normalized, _, err := postid.NormalizeSourceURL(url)
	if err != nil {
		return nil, false, fmt.Errorf("normalize url: %w", err)
	}

	for {
		if !refresh {
			existing, err := m.store.GetActiveIngestJobByURL(ctx, normalized)
			if err == nil {
				m.logger.Info("returning existing job for duplicate ingest",
					"url", normalized, "job_id", existing.ID, "status", existing.Status)
				return existing, false, nil
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, false, fmt.Errorf("lookup active job: %w", err)
			}
		}

		job, err := m.store.InsertIngestJob(ctx, &db.InsertIngestJobParams{
			URL:            normalized,
			AllowInference: allowInference,
			Refresh:        refresh,
			MaxAttempts:    MaxAttempts,
		})
		if err != nil {
			// Concurrent enqueues for the same fresh URL can both pass the
			// lookup; the active-url unique index fails the loser, whose
			// retried lookup returns the winner's row.
			if !refresh && db.IsUniqueViolationErr(err) {
				continue
			}
			return nil, false, fmt.Errorf("insert job: %w", err)
		}

		m.logger.Info("enqueued ingest job", "url", normalized, "job_id", job.ID, "refresh", refresh)
		return job, true, nil
	}
}

// Get returns a job by id.
func (m *Manager) Get(ctx context.Context, id pgtype.UUID) (*db.IngestJob, error) {
	return m.store.GetIngestJob(ctx, id)
}

// ClaimNext claims the oldest eligible job for workerID. Returns (nil, nil)
// when nothing is eligible.
func (m *Manager) ClaimNext(ctx context.Context, workerID string) (*db.IngestJob, error) {
	job, err := m.store.ClaimNextIngestJob(ctx, &db.ClaimNextIngestJobParams{
		LeaseOwner:   workerID,
		LeaseSeconds: LeaseDuration.Seconds(),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}

	m.logger.Info("claimed job", "job_id", job.ID, "url", job.URL, "attempts", job.Attempts, "worker_id", workerID)
	return job, nil
}

// Heartbeat extends the lease on an owned job. A lost lease is logged and
// swallowed; the abandoned execution keeps running to completion, where its
// owner-guarded writes will no-op.
func (m *Manager) Heartbeat(ctx context.Context, jobID pgtype.UUID, workerID string) error {
	owned, err := m.store.HeartbeatIngestJob(ctx, &db.HeartbeatIngestJobParams{
		ID:           jobID,
		LeaseOwner:   workerID,
		LeaseSeconds: LeaseDuration.Seconds(),
	})
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if !owned {
		m.logger.Warn("lease lost, job was reclaimed by another worker", "job_id", jobID, "worker_id", workerID)
	}
	return nil
}

// Complete marks an owned job done with the item it produced. If the lease
// was lost in the meantime the write silently no-ops; the reclaiming worker's
// run owns the outcome.
func (m *Manager) Complete(ctx context.Context, jobID pgtype.UUID, workerID string, itemID pgtype.UUID) error {
	owned, err := m.store.CompleteIngestJob(ctx, &db.CompleteIngestJobParams{
		ID:         jobID,
		LeaseOwner: workerID,
		ItemID:     itemID,
	})
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if !owned {
		m.logger.Warn("lease lost before completion, discarding result", "job_id", jobID, "worker_id", workerID)
		return nil
	}

	m.logger.Info("job done", "job_id", jobID, "item_id", itemID)
	return nil
}

// Fail records a failed attempt with a truncated message. The job re-enters
// the claim pool until attempts reaches max_attempts, then goes terminal.
// Returns the resulting status and attempts, or nil when the lease was lost.
func (m *Manager) Fail(ctx context.Context, jobID pgtype.UUID, workerID string, message string) (*db.FailIngestJobRow, error) {
	row, err := m.store.FailIngestJob(ctx, &db.FailIngestJobParams{
		ID:         jobID,
		LeaseOwner: workerID,
		Error:      truncateMessage(message),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		m.logger.Warn("lease lost before failure could be recorded", "job_id", jobID, "worker_id", workerID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fail job: %w", err)
	}

	m.logger.Info("job attempt failed", "job_id", jobID, "status", row.Status, "attempts", row.Attempts, "error", truncateMessage(message))
	return row, nil
}

// truncateMessage bounds msg to maxErrorLen bytes without splitting a rune.
func truncateMessage(msg string) string {
	if len(msg) <= maxErrorLen {
		return msg
	}
	cut := maxErrorLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
