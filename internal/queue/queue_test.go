package queue

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/eliasantony/recallr-api/internal/db"
)

type fakeStore struct {
	activeByURL map[string]*db.IngestJob
	claimable   *db.IngestJob

	inserted      []*db.InsertIngestJobParams
	insertCalls   int
	onInsert      func(params *db.InsertIngestJobParams) error
	heartbeatResp bool
	completeResp  bool
	failRow       *db.FailIngestJobRow
	failErr       error
	failFn        func(params *db.FailIngestJobParams) (*db.FailIngestJobRow, error)

	lastHeartbeat *db.HeartbeatIngestJobParams
	lastComplete  *db.CompleteIngestJobParams
	lastFail      *db.FailIngestJobParams
}

func (f *fakeStore) InsertIngestJob(_ context.Context, params *db.InsertIngestJobParams) (*db.IngestJob, error) {
	f.insertCalls++
	if f.onInsert != nil {
		if err := f.onInsert(params); err != nil {
			return nil, err
		}
	}
	f.inserted = append(f.inserted, params)
	return &db.IngestJob{ID: newUUID(), URL: params.URL, Status: db.JobStatusQueued, MaxAttempts: params.MaxAttempts}, nil
}

func (f *fakeStore) GetActiveIngestJobByURL(_ context.Context, url string) (*db.IngestJob, error) {
	if j, ok := f.activeByURL[url]; ok {
		return j, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeStore) GetIngestJob(_ context.Context, id pgtype.UUID) (*db.IngestJob, error) {
	return nil, pgx.ErrNoRows
}

func (f *fakeStore) ClaimNextIngestJob(_ context.Context, params *db.ClaimNextIngestJobParams) (*db.IngestJob, error) {
	if f.claimable == nil {
		return nil, pgx.ErrNoRows
	}
	j := f.claimable
	f.claimable = nil
	owner := params.LeaseOwner
	j.Status = db.JobStatusRunning
	j.LeaseOwner = &owner
	return j, nil
}

func (f *fakeStore) HeartbeatIngestJob(_ context.Context, params *db.HeartbeatIngestJobParams) (bool, error) {
	f.lastHeartbeat = params
	return f.heartbeatResp, nil
}

func (f *fakeStore) CompleteIngestJob(_ context.Context, params *db.CompleteIngestJobParams) (bool, error) {
	f.lastComplete = params
	return f.completeResp, nil
}

func (f *fakeStore) FailIngestJob(_ context.Context, params *db.FailIngestJobParams) (*db.FailIngestJobRow, error) {
	f.lastFail = params
	if f.failFn != nil {
		return f.failFn(params)
	}
	if f.failErr != nil {
		return nil, f.failErr
	}
	return f.failRow, nil
}

func newUUID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

func TestEnqueueCreatesJob(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store)

	job, created, err := m.Enqueue(t.Context(), "https://www.tiktok.com/@a/video/7301?lang=en", true, false)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, db.JobStatusQueued, job.Status)
	require.Equal(t, int32(MaxAttempts), job.MaxAttempts)

	// host canonicalization and tracking-param stripping happen before storage
	require.Len(t, store.inserted, 1)
	require.Equal(t, "https://tiktok.com/@a/video/7301", store.inserted[0].URL)
	require.True(t, store.inserted[0].AllowInference)
}

func TestEnqueueReturnsExistingActiveJob(t *testing.T) {
	existing := &db.IngestJob{ID: newUUID(), URL: "https://tiktok.com/@a/video/7301", Status: db.JobStatusRunning}
	store := &fakeStore{activeByURL: map[string]*db.IngestJob{existing.URL: existing}}
	m := NewManager(store)

	// the www host normalizes onto the stored job's canonical URL
	job, created, err := m.Enqueue(t.Context(), "https://www.tiktok.com/@a/video/7301", false, false)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, existing.ID, job.ID)
	require.Empty(t, store.inserted)
}

func TestEnqueueInsertRaceReturnsWinner(t *testing.T) {
	winner := &db.IngestJob{ID: newUUID(), URL: "https://tiktok.com/@a/video/7301", Status: db.JobStatusQueued}
	store := &fakeStore{activeByURL: map[string]*db.IngestJob{}}
	// Another process inserts the same URL between our dedup lookup and our
	// insert; the active-url unique index rejects ours.
	store.onInsert = func(params *db.InsertIngestJobParams) error {
		store.activeByURL[params.URL] = winner
		return &pgconn.PgError{Code: "23505", ConstraintName: "ingest_jobs_active_url_uniq"}
	}
	m := NewManager(store)

	job, created, err := m.Enqueue(t.Context(), "https://tiktok.com/@a/video/7301", false, false)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, winner.ID, job.ID)
	require.Equal(t, 1, store.insertCalls)
	require.Empty(t, store.inserted)
}

func TestEnqueueRefreshSkipsDedup(t *testing.T) {
	existing := &db.IngestJob{ID: newUUID(), URL: "https://tiktok.com/@a/video/7301", Status: db.JobStatusQueued}
	store := &fakeStore{activeByURL: map[string]*db.IngestJob{existing.URL: existing}}
	m := NewManager(store)

	job, created, err := m.Enqueue(t.Context(), "https://tiktok.com/@a/video/7301", false, true)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, existing.ID, job.ID)
}

func TestClaimNextEmptyQueue(t *testing.T) {
	m := NewManager(&fakeStore{})

	job, err := m.ClaimNext(t.Context(), "worker-1")
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestClaimNextReturnsJob(t *testing.T) {
	store := &fakeStore{claimable: &db.IngestJob{ID: newUUID(), URL: "u", Status: db.JobStatusQueued}}
	m := NewManager(store)

	job, err := m.ClaimNext(t.Context(), "worker-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, db.JobStatusRunning, job.Status)
	require.Equal(t, "worker-1", *job.LeaseOwner)
}

func TestHeartbeatLostLeaseIsSilent(t *testing.T) {
	store := &fakeStore{heartbeatResp: false}
	m := NewManager(store)

	err := m.Heartbeat(t.Context(), newUUID(), "worker-1")
	require.NoError(t, err)
	require.InDelta(t, LeaseDuration.Seconds(), store.lastHeartbeat.LeaseSeconds, 0.01)
}

func TestCompleteLostLeaseIsSilent(t *testing.T) {
	store := &fakeStore{completeResp: false}
	m := NewManager(store)

	err := m.Complete(t.Context(), newUUID(), "worker-1", newUUID())
	require.NoError(t, err)
	require.NotNil(t, store.lastComplete)
}

func TestFailTruncatesMessage(t *testing.T) {
	store := &fakeStore{failRow: &db.FailIngestJobRow{Status: db.JobStatusQueued, Attempts: 1}}
	m := NewManager(store)

	long := strings.Repeat("x", 2000)
	row, err := m.Fail(t.Context(), newUUID(), "worker-1", long)
	require.NoError(t, err)
	require.Equal(t, int32(1), row.Attempts)
	require.Len(t, store.lastFail.Error, maxErrorLen)
}

func TestFailTruncationKeepsValidUTF8(t *testing.T) {
	store := &fakeStore{failRow: &db.FailIngestJobRow{Status: db.JobStatusQueued, Attempts: 1}}
	m := NewManager(store)

	// A two-byte rune straddles the truncation point.
	msg := strings.Repeat("x", maxErrorLen-1) + "éé"
	_, err := m.Fail(t.Context(), newUUID(), "worker-1", msg)
	require.NoError(t, err)
	require.True(t, utf8.ValidString(store.lastFail.Error))
	require.Len(t, store.lastFail.Error, maxErrorLen-1)
}

func TestFailThreeAttemptsReachTerminalError(t *testing.T) {
	// Scripted to the store's attempts rule: the job re-enters the queue
	// until attempts reaches max_attempts, then goes terminal.
	attempts := int32(0)
	store := &fakeStore{}
	store.failFn = func(_ *db.FailIngestJobParams) (*db.FailIngestJobRow, error) {
		attempts++
		status := db.JobStatusQueued
		if attempts >= MaxAttempts {
			status = db.JobStatusError
		}
		return &db.FailIngestJobRow{Status: status, Attempts: attempts}, nil
	}
	m := NewManager(store)

	id := newUUID()
	for want := int32(1); want <= MaxAttempts; want++ {
		row, err := m.Fail(t.Context(), id, "worker-1", "boom")
		require.NoError(t, err)
		require.Equal(t, want, row.Attempts)
		if want < MaxAttempts {
			require.Equal(t, db.JobStatusQueued, row.Status)
		} else {
			require.Equal(t, db.JobStatusError, row.Status)
		}
	}
}

func TestFailLostLease(t *testing.T) {
	store := &fakeStore{failErr: pgx.ErrNoRows}
	m := NewManager(store)

	row, err := m.Fail(t.Context(), newUUID(), "worker-1", "boom")
	require.NoError(t, err)
	require.Nil(t, row)
}
