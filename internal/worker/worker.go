// Package worker drives claimed jobs through the pipeline: claim, heartbeat,
// run, persist, complete or fail.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/eliasantony/recallr-api/internal/db"
	"github.com/eliasantony/recallr-api/internal/pipeline"
	"github.com/eliasantony/recallr-api/internal/queue"
	"github.com/eliasantony/recallr-api/pkg/ytdlp"
)

// PollInterval is the claim cadence when no wake notification arrives.
const PollInterval = 5 * time.Second

type leaseManager interface {
	ClaimNext(ctx context.Context, workerID string) (*db.IngestJob, error)
	Heartbeat(ctx context.Context, jobID pgtype.UUID, workerID string) error
	Complete(ctx context.Context, jobID pgtype.UUID, workerID string, itemID pgtype.UUID) error
	Fail(ctx context.Context, jobID pgtype.UUID, workerID string, message string) (*db.FailIngestJobRow, error)
}

type runner interface {
	Run(ctx context.Context, url string, opts pipeline.Options) (*pipeline.Result, error)
}

type persister interface {
	Persist(ctx context.Context, url string, res *pipeline.Result) (pgtype.UUID, error)
}

type Loop struct {
	queue     leaseManager
	pipeline  runner
	persister persister
	workerID  string
	wake      <-chan struct{}
	logger    *slog.Logger

	pollInterval      time.Duration
	heartbeatInterval time.Duration
}

func NewLoop(q leaseManager, p runner, store persister, workerID string, wake <-chan struct{}) *Loop {
	return &Loop{
		queue:             q,
		pipeline:          p,
		persister:         store,
		workerID:          workerID,
		wake:              wake,
		logger:            slog.Default().With("component", "worker", "worker_id", workerID),
		pollInterval:      PollInterval,
		heartbeatInterval: queue.HeartbeatInterval,
	}
}

// Run claims and processes jobs until ctx is cancelled. One job at a time;
// between drains it waits for a wake notification or the poll tick.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("worker started")
	for {
		if ctx.Err() != nil {
			l.logger.Info("worker stopping")
			return
		}

		// Drain as many jobs as we can
		for {
			job, err := l.queue.ClaimNext(ctx, l.workerID)
			if err != nil {
				l.logger.Error("claim failed", "error", err)
				break
			}
			if job == nil {
				break
			}
			l.processJob(ctx, job)
		}

		select {
		case <-ctx.Done():
			l.logger.Info("worker stopping")
			return
		case <-l.wake:
			// new job notification
		case <-time.After(l.pollInterval):
			// periodic poll
		}
	}
}

// processJob runs one claimed job to a terminal outcome. The heartbeat ticker
// runs for exactly the duration of the execution, success or failure.
func (l *Loop) processJob(ctx context.Context, job *db.IngestJob) {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go l.heartbeat(hbCtx, job.ID)

	res, err := l.pipeline.Run(ctx, job.URL, pipeline.Options{
		AllowInference: job.AllowInference,
		Refresh:        job.Refresh,
	})
	if err != nil {
		l.failJob(ctx, job, err)
		return
	}

	itemID, err := l.persister.Persist(ctx, job.URL, res)
	if err != nil {
		l.failJob(ctx, job, err)
		return
	}

	stopHeartbeat()
	if err := l.queue.Complete(ctx, job.ID, l.workerID, itemID); err != nil {
		l.logger.Error("failed to mark job done", "job_id", job.ID, "error", err)
	}
}

func (l *Loop) heartbeat(ctx context.Context, jobID pgtype.UUID) {
	ticker := time.NewTicker(l.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.queue.Heartbeat(ctx, jobID, l.workerID); err != nil {
				l.logger.Warn("heartbeat failed", "job_id", jobID, "error", err)
			}
		}
	}
}

func (l *Loop) failJob(ctx context.Context, job *db.IngestJob, cause error) {
	var execErr *ytdlp.ExecError
	if errors.As(cause, &execErr) {
		l.logger.Error("job failed",
			"job_id", job.ID,
			"error", cause,
			"exit_code", execErr.ExitCode,
			"stderr", execErr.Stderr)
	} else {
		l.logger.Error("job failed", "job_id", job.ID, "error", cause)
	}

	if _, err := l.queue.Fail(ctx, job.ID, l.workerID, cause.Error()); err != nil {
		l.logger.Error("failed to record job failure", "job_id", job.ID, "error", err)
	}
}
