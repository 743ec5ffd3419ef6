package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/eliasantony/recallr-api/internal/ai"
	"github.com/eliasantony/recallr-api/internal/ai/embed"
	"github.com/eliasantony/recallr-api/internal/ai/gemini"
	"github.com/eliasantony/recallr-api/internal/ai/textllm"
	"github.com/eliasantony/recallr-api/internal/application"
	"github.com/eliasantony/recallr-api/internal/config"
	"github.com/eliasantony/recallr-api/internal/contentcache"
	"github.com/eliasantony/recallr-api/internal/db"
	"github.com/eliasantony/recallr-api/internal/extract"
	"github.com/eliasantony/recallr-api/internal/persist"
	"github.com/eliasantony/recallr-api/internal/pipeline"
	"github.com/eliasantony/recallr-api/internal/queue"
	"github.com/eliasantony/recallr-api/internal/reembed"
	"github.com/eliasantony/recallr-api/internal/transcribe"
	"github.com/eliasantony/recallr-api/internal/worker"
	"github.com/eliasantony/recallr-api/pkg/ytdlp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting worker service")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if conf.DatabaseRetries <= 0 {
		conf.DatabaseRetries = 10
	}

	workerID := strings.TrimSpace(conf.WorkerID)
	if workerID == "" {
		host, _ := os.Hostname()
		workerID = "worker-" + host
	}

	for _, dir := range []string{"spool", "cache", "items"} {
		if err := os.MkdirAll(filepath.Join(conf.StorageDir, dir), 0o755); err != nil {
			slog.Error("failed to create storage dir", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	ytdlpClient := ytdlp.New()
	ytdlpClient.Path = conf.YtdlpPath

	updateCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	if err := ytdlpClient.Update(updateCtx); err != nil {
		slog.Warn("failed to update yt-dlp", "error", err)
	} else if v, err := ytdlpClient.Version(updateCtx); err == nil {
		slog.Info("yt-dlp ready", "version", v)
	}
	cancel()

	pool, err := application.OpenDBPoolWithRetry(ctx, *conf)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	dbc, err := db.NewDatabaseConnection(ctx, pool)
	if err != nil {
		slog.Error("failed to create database connection", "error", err)
		os.Exit(1)
	}
	defer dbc.Close()

	var primary ai.Analyzer
	if conf.GeminiAPIKey != "" {
		g, err := gemini.NewAnalyzer(ctx, conf.GeminiAPIKey, conf.GeminiModel)
		if err != nil {
			slog.Error("failed to create gemini analyzer", "error", err)
			os.Exit(1)
		}
		defer g.Close()
		primary = g
	} else {
		slog.Warn("GEMINI_API_KEY not set, running text-only analysis")
	}

	fallback, err := textllm.NewAnalyzer(textllm.Config{
		BaseURL: conf.OpenAIBaseURL,
		Token:   conf.OpenAIAPIKey,
		Model:   conf.FallbackModel,
	})
	if err != nil {
		slog.Error("failed to create fallback analyzer", "error", err)
		os.Exit(1)
	}

	embedder, err := embed.NewEmbedder(embed.Config{
		BaseURL: conf.OpenAIBaseURL,
		Token:   conf.OpenAIAPIKey,
		Model:   conf.EmbeddingModel,
	})
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Cache:              contentcache.New(filepath.Join(conf.StorageDir, "cache")),
		Extractor:          extract.NewAdapter(ytdlpClient, filepath.Join(conf.StorageDir, "spool")),
		Transcriber:        transcribe.New(conf.WhisperPath, conf.WhisperModel),
		Primary:            primary,
		Fallback:           fallback,
		Embedder:           embedder,
		StorageDir:         conf.StorageDir,
		MaxDurationSeconds: float64(conf.MaxDurationSeconds),
	})

	mgr := queue.NewManager(dbc.Queries(ctx))
	coordinator := persist.NewCoordinator(dbc)

	wake := make(chan struct{}, 1)
	go worker.ListenForJobs(ctx, conf.DatabaseDSN, wake)
	go reembed.NewReconciler(dbc.Queries(ctx), embedder).Run(ctx)

	loop := worker.NewLoop(mgr, orchestrator, coordinator, workerID, wake)
	go loop.Run(ctx)

	slog.Info("Worker started", "worker_id", workerID)
	<-ctx.Done()
	slog.Info("Worker service stopping")
}
