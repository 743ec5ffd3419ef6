// Package server is the JSON API surface: ingest, job status, item reads,
// rebuild, semantic search and health.
package server

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/eliasantony/recallr-api/internal/ai"
	"github.com/eliasantony/recallr-api/internal/db"
)

// JobQueue is the slice of the lease manager the API drives.
type JobQueue interface {
	Enqueue(ctx context.Context, url string, allowInference, refresh bool) (*db.IngestJob, bool, error)
	Get(ctx context.Context, id pgtype.UUID) (*db.IngestJob, error)
}

// ItemStore is the read side used by the item and search endpoints.
type ItemStore interface {
	GetItem(ctx context.Context, id pgtype.UUID) (*db.Item, error)
	GetItemJSON(ctx context.Context, itemID pgtype.UUID, kind db.ArtifactKind) ([]byte, error)
	SearchItemsByEmbedding(ctx context.Context, params *db.SearchItemsByEmbeddingParams) ([]*db.SearchItemsByEmbeddingRow, error)
	ListItems(ctx context.Context, params *db.ListItemsParams) ([]*db.Item, error)
	CountItems(ctx context.Context) (int64, error)
}

type Server struct {
	*echo.Echo
	jobs     JobQueue
	items    ItemStore
	embedder ai.Embedder
}

// NewServer wires routes and middleware. embedder may be nil; search then
// answers 503.
func NewServer(jobs JobQueue, items ItemStore, embedder ai.Embedder) *Server {
	e := echo.New()

	s := &Server{
		Echo:     e,
		jobs:     jobs,
		items:    items,
		embedder: embedder,
	}

	s.setupMiddleware()
	s.registerRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.HideBanner = true
	s.HidePort = true
	s.Use(middleware.BodyLimit("1M"))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz"
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
				"error", v.Error,
			)
			return nil
		},
	}))
}

func (s *Server) registerRoutes() {
	s.GET("/healthz", s.handleHealth())

	api := s.Group("/api")
	api.POST("/ingest", s.handleIngest())
	api.GET("/jobs/:id", s.handleJobStatus())
	api.GET("/items", s.handleListItems())
	api.GET("/items/:id", s.handleGetItem())
	api.POST("/items/:id/rebuild", s.handleRebuild())
	api.GET("/search", s.handleSearch())
}
