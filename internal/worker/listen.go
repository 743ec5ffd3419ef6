package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eliasantony/recallr-api/internal/db"
)

// ListenForJobs holds a dedicated connection on LISTEN ingest_jobs and pushes
// a non-blocking wake signal for every notification. It reconnects forever
// until ctx is cancelled; the poll tick covers any notifications lost while
// reconnecting.
func ListenForJobs(ctx context.Context, dsn string, wake chan<- struct{}) {
	for {
		if ctx.Err() != nil {
			return
		}

		// Parse using pgxpool so pool_* DSN params are consumed client-side
		// (otherwise they get forwarded to Postgres as startup params and cause FATAL).
		poolConf, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			slog.Error("listen parse config failed", "error", err)
			time.Sleep(2 * time.Second)
			continue
		}

		conn, err := pgx.ConnectConfig(ctx, poolConf.ConnConfig)
		if err != nil {
			slog.Error("listen connect failed", "error", err)
			time.Sleep(2 * time.Second)
			continue
		}

		if err := db.New(conn).ListenIngestJobs(ctx); err != nil {
			slog.Error("LISTEN failed", "error", err)
			_ = conn.Close(ctx)
			time.Sleep(2 * time.Second)
			continue
		}

		for {
			if ctx.Err() != nil {
				_ = conn.Close(ctx)
				return
			}

			if err := conn.PgConn().WaitForNotification(ctx); err != nil {
				if ctx.Err() == nil {
					slog.Error("wait for notification failed", "error", err)
				}
				_ = conn.Close(ctx)
				break
			}

			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}
