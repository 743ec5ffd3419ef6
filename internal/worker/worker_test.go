package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/eliasantony/recallr-api/internal/db"
	"github.com/eliasantony/recallr-api/internal/extract"
	"github.com/eliasantony/recallr-api/internal/pipeline"
)

type fakeQueue struct {
	mu sync.Mutex

	jobs []*db.IngestJob

	heartbeats int
	completed  []pgtype.UUID
	failed     []string
}

func (f *fakeQueue) ClaimNext(_ context.Context, _ string) (*db.IngestJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		return nil, nil
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return job, nil
}

func (f *fakeQueue) Heartbeat(_ context.Context, _ pgtype.UUID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeQueue) Complete(_ context.Context, _ pgtype.UUID, _ string, itemID pgtype.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, itemID)
	return nil
}

func (f *fakeQueue) Fail(_ context.Context, _ pgtype.UUID, _ string, message string) (*db.FailIngestJobRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, message)
	return &db.FailIngestJobRow{Status: db.JobStatusQueued, Attempts: 1}, nil
}

type fakeRunner struct {
	res     *pipeline.Result
	err     error
	gotOpts pipeline.Options
}

func (f *fakeRunner) Run(_ context.Context, _ string, opts pipeline.Options) (*pipeline.Result, error) {
	f.gotOpts = opts
	return f.res, f.err
}

type fakePersister struct {
	itemID pgtype.UUID
	err    error
	calls  int
}

func (f *fakePersister) Persist(_ context.Context, _ string, _ *pipeline.Result) (pgtype.UUID, error) {
	f.calls++
	if f.err != nil {
		return pgtype.UUID{}, f.err
	}
	return f.itemID, nil
}

func newJob() *db.IngestJob {
	return &db.IngestJob{
		ID:             pgtype.UUID{Bytes: uuid.New(), Valid: true},
		URL:            "https://tiktok.com/@a/video/7301",
		Status:         db.JobStatusRunning,
		AllowInference: true,
	}
}

func newTestLoop(q *fakeQueue, r *fakeRunner, p *fakePersister) *Loop {
	return &Loop{
		queue:             q,
		pipeline:          r,
		persister:         p,
		workerID:          "worker-test",
		wake:              make(chan struct{}),
		logger:            slog.Default(),
		pollInterval:      10 * time.Millisecond,
		heartbeatInterval: time.Hour,
	}
}

func TestProcessJobSuccess(t *testing.T) {
	q := &fakeQueue{}
	itemID := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	r := &fakeRunner{res: &pipeline.Result{Meta: &extract.Result{Platform: "tiktok", PostID: "7301"}}}
	p := &fakePersister{itemID: itemID}

	l := newTestLoop(q, r, p)
	l.processJob(t.Context(), newJob())

	require.Equal(t, []pgtype.UUID{itemID}, q.completed)
	require.Empty(t, q.failed)
	require.Equal(t, 1, p.calls)
	require.True(t, r.gotOpts.AllowInference)
}

func TestProcessJobPipelineFailure(t *testing.T) {
	q := &fakeQueue{}
	r := &fakeRunner{err: &extract.ExtractionError{URL: "u", Err: errors.New("unsupported url")}}
	p := &fakePersister{}

	l := newTestLoop(q, r, p)
	l.processJob(t.Context(), newJob())

	require.Empty(t, q.completed)
	require.Len(t, q.failed, 1)
	require.Contains(t, q.failed[0], "unsupported url")
	require.Zero(t, p.calls)
}

func TestProcessJobPersistenceFailure(t *testing.T) {
	q := &fakeQueue{}
	r := &fakeRunner{res: &pipeline.Result{Meta: &extract.Result{Platform: "tiktok", PostID: "7301"}}}
	p := &fakePersister{err: errors.New("connection reset")}

	l := newTestLoop(q, r, p)
	l.processJob(t.Context(), newJob())

	require.Empty(t, q.completed)
	require.Len(t, q.failed, 1)
}

func TestProcessJobHeartbeats(t *testing.T) {
	q := &fakeQueue{}
	block := make(chan struct{})
	r := &blockingRunner{release: block}
	p := &fakePersister{itemID: pgtype.UUID{Bytes: uuid.New(), Valid: true}}

	l := newTestLoop(q, &fakeRunner{}, p)
	l.heartbeatInterval = 5 * time.Millisecond
	l.pipeline = r

	done := make(chan struct{})
	go func() {
		l.processJob(context.Background(), newJob())
		close(done)
	}()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.heartbeats >= 2
	}, time.Second, time.Millisecond)

	close(block)
	<-done
	require.Len(t, q.completed, 1)
}

type blockingRunner struct {
	release chan struct{}
}

func (b *blockingRunner) res() *pipeline.Result {
	return &pipeline.Result{Meta: &extract.Result{Platform: "tiktok", PostID: "7301"}}
}

func (b *blockingRunner) Run(_ context.Context, _ string, _ pipeline.Options) (*pipeline.Result, error) {
	<-b.release
	return b.res(), nil
}

func TestRunDrainsQueueAndStops(t *testing.T) {
	itemID := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	q := &fakeQueue{jobs: []*db.IngestJob{newJob(), newJob()}}
	r := &fakeRunner{res: &pipeline.Result{Meta: &extract.Result{Platform: "tiktok", PostID: "7301"}}}
	p := &fakePersister{itemID: itemID}

	l := newTestLoop(q, r, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.completed) == 2
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancellation")
	}
}

func TestRunWakeSignalTriggersClaim(t *testing.T) {
	q := &fakeQueue{}
	r := &fakeRunner{res: &pipeline.Result{Meta: &extract.Result{Platform: "tiktok", PostID: "7301"}}}
	p := &fakePersister{itemID: pgtype.UUID{Bytes: uuid.New(), Valid: true}}

	wake := make(chan struct{}, 1)
	l := newTestLoop(q, r, p)
	l.wake = wake
	l.pollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	// queue a job after the initial drain, then wake the loop
	time.Sleep(20 * time.Millisecond)
	q.mu.Lock()
	q.jobs = append(q.jobs, newJob())
	q.mu.Unlock()
	wake <- struct{}{}

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.completed) == 1
	}, time.Second, time.Millisecond)
}
