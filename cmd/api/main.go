package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/eliasantony/recallr-api/internal/ai"
	"github.com/eliasantony/recallr-api/internal/ai/embed"
	"github.com/eliasantony/recallr-api/internal/application"
	"github.com/eliasantony/recallr-api/internal/config"
	"github.com/eliasantony/recallr-api/internal/db"
	"github.com/eliasantony/recallr-api/internal/queue"
	"github.com/eliasantony/recallr-api/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting API service")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if conf.DatabaseRetries <= 0 {
		conf.DatabaseRetries = 10
	}

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

	var embedder ai.Embedder
	e, err := embed.NewEmbedder(embed.Config{
		BaseURL: conf.OpenAIBaseURL,
		Token:   conf.OpenAIAPIKey,
		Model:   conf.EmbeddingModel,
	})
	if err != nil {
		slog.Warn("embedder unavailable, search disabled", "error", err)
	} else {
		embedder = e
	}

	srv := server.NewServer(queue.NewManager(dbc.Queries(ctx)), dbc.Queries(ctx), embedder)

	addr := ":" + strconv.Itoa(conf.APIPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Listening", "addr", addr)
	if err := srv.Start(addr); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// Echo returns an error on Shutdown; treat it as normal if context is done.
		if ctx.Err() != nil {
			return
		}
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
