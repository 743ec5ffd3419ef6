package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/labstack/echo/v4"

	"github.com/eliasantony/recallr-api/internal/db"
	"github.com/eliasantony/recallr-api/internal/postid"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	defaultListLimit   = 20
	maxListLimit       = 100
)

func (s *Server) handleIngest() echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			URL            string `json:"url"`
			AllowInference bool   `json:"allow_inference"`
			Refresh        bool   `json:"refresh"`
		}
		if err := c.Bind(&req); err != nil {
			return c.String(400, "invalid json")
		}
		req.URL = strings.TrimSpace(req.URL)
		if req.URL == "" {
			return c.String(400, "url is required")
		}

		job, created, err := s.jobs.Enqueue(c.Request().Context(), req.URL, req.AllowInference, req.Refresh)
		if err != nil {
			slog.Error("failed to enqueue ingest", "url", req.URL, "error", err)
			return c.String(500, "failed to enqueue")
		}

		status := 200
		if created {
			status = 202
		}
		resp := map[string]any{
			"id":      uuidString(job.ID),
			"status":  job.Status,
			"created": created,
		}
		if platform := postid.PlatformForURL(req.URL); platform != "" {
			resp["platform"] = platform
		}
		return c.JSON(status, resp)
	}
}

func (s *Server) handleJobStatus() echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := requireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		job, err := s.jobs.Get(c.Request().Context(), id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return c.String(404, "job not found")
			}
			slog.Error("failed to fetch job", "job_id", id, "error", err)
			return c.String(500, "failed to fetch job")
		}

		return c.JSON(200, jobResponse(job))
	}
}

func (s *Server) handleGetItem() echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := requireUUIDParam(c, "id")
		if err != nil {
			return err
		}
		ctx := c.Request().Context()

		item, err := s.items.GetItem(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return c.String(404, "item not found")
			}
			slog.Error("failed to fetch item", "item_id", id, "error", err)
			return c.String(500, "failed to fetch item")
		}

		resp := itemResponse(item)
		for _, kind := range []db.ArtifactKind{db.ArtifactKindAnalysis, db.ArtifactKindRecipe} {
			payload, err := s.items.GetItemJSON(ctx, id, kind)
			if err != nil {
				slog.Warn("failed to load artifact", "item_id", id, "kind", kind, "error", err)
				continue
			}
			if len(payload) > 0 {
				resp[string(kind)] = json.RawMessage(payload)
			}
		}

		return c.JSON(200, resp)
	}
}

func (s *Server) handleRebuild() echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := requireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		var req struct {
			AllowInference bool `json:"allow_inference"`
		}
		// empty body is fine
		_ = c.Bind(&req)

		ctx := c.Request().Context()
		item, err := s.items.GetItem(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return c.String(404, "item not found")
			}
			slog.Error("failed to fetch item", "item_id", id, "error", err)
			return c.String(500, "failed to fetch item")
		}

		// a rebuild is always a fresh job row with the cache bypassed
		job, _, err := s.jobs.Enqueue(ctx, item.URL, req.AllowInference, true)
		if err != nil {
			slog.Error("failed to enqueue rebuild", "item_id", id, "error", err)
			return c.String(500, "failed to enqueue")
		}

		return c.JSON(202, map[string]any{
			"id":     uuidString(job.ID),
			"status": job.Status,
		})
	}
}

func (s *Server) handleSearch() echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.embedder == nil {
			return c.String(503, "search is not configured")
		}

		q := strings.TrimSpace(c.QueryParam("q"))
		if q == "" {
			return c.String(400, "q is required")
		}
		limit := queryInt(c, "limit", defaultSearchLimit, maxSearchLimit)

		ctx := c.Request().Context()
		vec, err := s.embedder.EmbedText(ctx, q)
		if err != nil {
			slog.Error("failed to embed search query", "error", err)
			return c.String(502, "search backend unavailable")
		}

		rows, err := s.items.SearchItemsByEmbedding(ctx, &db.SearchItemsByEmbeddingParams{
			Vector: db.VectorLiteral(vec),
			Limit:  int32(limit),
		})
		if err != nil {
			slog.Error("search query failed", "error", err)
			return c.String(500, "search failed")
		}

		results := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			r := itemResponse(&row.Item)
			r["similarity"] = row.Similarity
			results = append(results, r)
		}
		return c.JSON(200, map[string]any{"results": results})
	}
}

func (s *Server) handleListItems() echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &db.ListItemsParams{
			Limit: int32(queryInt(c, "limit", defaultListLimit, maxListLimit)),
		}
		if after := strings.TrimSpace(c.QueryParam("after")); after != "" {
			t, err := time.Parse(time.RFC3339Nano, after)
			if err != nil {
				return c.String(400, "after must be an RFC 3339 timestamp")
			}
			params.After = pgtype.Timestamptz{Time: t, Valid: true}
		}

		items, err := s.items.ListItems(c.Request().Context(), params)
		if err != nil {
			slog.Error("failed to list items", "error", err)
			return c.String(500, "failed to list items")
		}

		results := make([]map[string]any, 0, len(items))
		for _, item := range items {
			results = append(results, itemResponse(item))
		}

		resp := map[string]any{"items": results}
		if len(items) == int(params.Limit) {
			resp["next_after"] = items[len(items)-1].CreatedAt.Time.Format(time.RFC3339Nano)
		}
		return c.JSON(200, resp)
	}
}

func (s *Server) handleHealth() echo.HandlerFunc {
	return func(c echo.Context) error {
		n, err := s.items.CountItems(c.Request().Context())
		if err != nil {
			if db.IsUndefinedColumnErr(err) {
				return c.JSON(503, map[string]any{"status": "migrations pending", "error": err.Error()})
			}
			return c.JSON(503, map[string]any{"status": "degraded", "error": err.Error()})
		}
		return c.JSON(200, map[string]any{"status": "ok", "items": n})
	}
}

func jobResponse(job *db.IngestJob) map[string]any {
	resp := map[string]any{
		"id":           uuidString(job.ID),
		"url":          job.URL,
		"status":       job.Status,
		"attempts":     job.Attempts,
		"max_attempts": job.MaxAttempts,
		"created_at":   job.CreatedAt.Time,
		"updated_at":   job.UpdatedAt.Time,
	}
	if job.CreatedAt.Valid {
		resp["age"] = humanize.Time(job.CreatedAt.Time)
	}
	if job.ItemID.Valid {
		resp["item_id"] = uuidString(job.ItemID)
	}
	if job.Error != nil {
		resp["error"] = *job.Error
	}
	return resp
}

func itemResponse(item *db.Item) map[string]any {
	resp := map[string]any{
		"id":         uuidString(item.ID),
		"platform":   item.Platform,
		"post_id":    item.PostID,
		"url":        item.URL,
		"title":      item.Title,
		"topics":     item.Topics,
		"is_recipe":  item.IsRecipe,
		"created_at": item.CreatedAt.Time,
		"updated_at": item.UpdatedAt.Time,
	}
	if item.AuthorName != nil {
		resp["author_name"] = *item.AuthorName
	}
	if t := db.NilTimePtr(item.PublishedAt); t != nil {
		resp["published_at"] = *t
	}
	if item.ThumbURL != nil {
		resp["thumb_url"] = *item.ThumbURL
	}
	if item.Summary != nil {
		resp["summary"] = *item.Summary
	}
	return resp
}

func requireUUIDParam(c echo.Context, name string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(c.Param(name))
	if err != nil {
		return pgtype.UUID{}, echo.NewHTTPError(400, "invalid id")
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

func queryInt(c echo.Context, name string, def, max int) int {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func uuidString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
