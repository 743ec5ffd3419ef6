package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/eliasantony/recallr-api/internal/db"
)

type fakeJobs struct {
	enqueued *db.IngestJob
	created  bool
	job      *db.IngestJob

	gotURL     string
	gotRefresh bool
}

func (f *fakeJobs) Enqueue(_ context.Context, url string, allowInference, refresh bool) (*db.IngestJob, bool, error) {
	f.gotURL = url
	f.gotRefresh = refresh
	return f.enqueued, f.created, nil
}

func (f *fakeJobs) Get(_ context.Context, id pgtype.UUID) (*db.IngestJob, error) {
	if f.job == nil || f.job.ID != id {
		return nil, pgx.ErrNoRows
	}
	return f.job, nil
}

type fakeItems struct {
	item      *db.Item
	artifacts map[db.ArtifactKind][]byte
	rows      []*db.SearchItemsByEmbeddingRow
	list      []*db.Item
	count     int64
}

func (f *fakeItems) GetItem(_ context.Context, id pgtype.UUID) (*db.Item, error) {
	if f.item == nil || f.item.ID != id {
		return nil, pgx.ErrNoRows
	}
	return f.item, nil
}

func (f *fakeItems) GetItemJSON(_ context.Context, _ pgtype.UUID, kind db.ArtifactKind) ([]byte, error) {
	return f.artifacts[kind], nil
}

func (f *fakeItems) SearchItemsByEmbedding(_ context.Context, _ *db.SearchItemsByEmbeddingParams) ([]*db.SearchItemsByEmbeddingRow, error) {
	return f.rows, nil
}

func (f *fakeItems) ListItems(_ context.Context, _ *db.ListItemsParams) ([]*db.Item, error) {
	return f.list, nil
}

func (f *fakeItems) CountItems(_ context.Context) (int64, error) {
	return f.count, nil
}

type fakeEmbedder struct {
	vec []float32
}

func (f *fakeEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	return f.vec, nil
}

func newID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestIngestCreatesJob(t *testing.T) {
	jobID := newID()
	jobs := &fakeJobs{enqueued: &db.IngestJob{ID: jobID, Status: db.JobStatusQueued}, created: true}
	s := NewServer(jobs, &fakeItems{}, nil)

	rec := doRequest(s, http.MethodPost, "/api/ingest", `{"url":"https://tiktok.com/@a/video/7301","allow_inference":true}`)
	require.Equal(t, 202, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, uuidString(jobID), resp["id"])
	require.Equal(t, "queued", resp["status"])
	require.Equal(t, true, resp["created"])
	require.Equal(t, "tiktok", resp["platform"])
	require.Equal(t, "https://tiktok.com/@a/video/7301", jobs.gotURL)
}

func TestIngestDuplicateReturnsExisting(t *testing.T) {
	jobs := &fakeJobs{enqueued: &db.IngestJob{ID: newID(), Status: db.JobStatusRunning}, created: false}
	s := NewServer(jobs, &fakeItems{}, nil)

	rec := doRequest(s, http.MethodPost, "/api/ingest", `{"url":"https://tiktok.com/@a/video/7301"}`)
	require.Equal(t, 200, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, false, resp["created"])
}

func TestIngestRequiresURL(t *testing.T) {
	s := NewServer(&fakeJobs{}, &fakeItems{}, nil)
	rec := doRequest(s, http.MethodPost, "/api/ingest", `{"url":"  "}`)
	require.Equal(t, 400, rec.Code)
}

func TestJobStatus(t *testing.T) {
	jobID := newID()
	errMsg := "extraction failed"
	jobs := &fakeJobs{job: &db.IngestJob{
		ID:          jobID,
		URL:         "https://tiktok.com/@a/video/7301",
		Status:      db.JobStatusError,
		Error:       &errMsg,
		Attempts:    3,
		MaxAttempts: 3,
	}}
	s := NewServer(jobs, &fakeItems{}, nil)

	rec := doRequest(s, http.MethodGet, "/api/jobs/"+uuidString(jobID), "")
	require.Equal(t, 200, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "error", resp["status"])
	require.Equal(t, "extraction failed", resp["error"])
	require.EqualValues(t, 3, resp["attempts"])
}

func TestJobStatusNotFound(t *testing.T) {
	s := NewServer(&fakeJobs{}, &fakeItems{}, nil)
	rec := doRequest(s, http.MethodGet, "/api/jobs/"+uuid.NewString(), "")
	require.Equal(t, 404, rec.Code)
}

func TestJobStatusInvalidID(t *testing.T) {
	s := NewServer(&fakeJobs{}, &fakeItems{}, nil)
	rec := doRequest(s, http.MethodGet, "/api/jobs/not-a-uuid", "")
	require.Equal(t, 400, rec.Code)
}

func TestGetItemWithArtifacts(t *testing.T) {
	itemID := newID()
	summary := "a pasta tutorial"
	items := &fakeItems{
		item: &db.Item{
			ID:       itemID,
			Platform: "tiktok",
			PostID:   "7301",
			Title:    "Quick pasta",
			Summary:  &summary,
			IsRecipe: true,
		},
		artifacts: map[db.ArtifactKind][]byte{
			db.ArtifactKindAnalysis: []byte(`{"content_type":"recipe"}`),
			db.ArtifactKindRecipe:   []byte(`{"title":"Quick pasta"}`),
		},
	}
	s := NewServer(&fakeJobs{}, items, nil)

	rec := doRequest(s, http.MethodGet, "/api/items/"+uuidString(itemID), "")
	require.Equal(t, 200, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Quick pasta", resp["title"])
	require.Equal(t, "a pasta tutorial", resp["summary"])
	require.Contains(t, resp, "analysis")
	require.Contains(t, resp, "recipe")
}

func TestRebuildEnqueuesFreshJob(t *testing.T) {
	itemID := newID()
	jobs := &fakeJobs{enqueued: &db.IngestJob{ID: newID(), Status: db.JobStatusQueued}, created: true}
	items := &fakeItems{item: &db.Item{ID: itemID, URL: "https://tiktok.com/@a/video/7301"}}
	s := NewServer(jobs, items, nil)

	rec := doRequest(s, http.MethodPost, "/api/items/"+uuidString(itemID)+"/rebuild", "")
	require.Equal(t, 202, rec.Code)
	require.True(t, jobs.gotRefresh)
	require.Equal(t, "https://tiktok.com/@a/video/7301", jobs.gotURL)
}

func TestSearchReturnsRankedResults(t *testing.T) {
	items := &fakeItems{rows: []*db.SearchItemsByEmbeddingRow{
		{Item: db.Item{ID: newID(), Title: "Quick pasta"}, Similarity: 0.91},
	}}
	s := NewServer(&fakeJobs{}, items, &fakeEmbedder{vec: []float32{0.1}})

	rec := doRequest(s, http.MethodGet, "/api/search?q=pasta", "")
	require.Equal(t, 200, rec.Code)

	var resp struct {
		Results []map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	require.InDelta(t, 0.91, resp.Results[0]["similarity"], 1e-6)
}

func TestSearchWithoutEmbedder(t *testing.T) {
	s := NewServer(&fakeJobs{}, &fakeItems{}, nil)
	rec := doRequest(s, http.MethodGet, "/api/search?q=pasta", "")
	require.Equal(t, 503, rec.Code)
}

func TestSearchRequiresQuery(t *testing.T) {
	s := NewServer(&fakeJobs{}, &fakeItems{}, &fakeEmbedder{vec: []float32{0.1}})
	rec := doRequest(s, http.MethodGet, "/api/search", "")
	require.Equal(t, 400, rec.Code)
}

func TestListItemsRejectsBadCursor(t *testing.T) {
	s := NewServer(&fakeJobs{}, &fakeItems{}, nil)
	rec := doRequest(s, http.MethodGet, "/api/items?after=yesterday", "")
	require.Equal(t, 400, rec.Code)
}

func TestHealth(t *testing.T) {
	s := NewServer(&fakeJobs{}, &fakeItems{count: 7}, nil)
	rec := doRequest(s, http.MethodGet, "/healthz", "")
	require.Equal(t, 200, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.EqualValues(t, 7, resp["items"])
}
