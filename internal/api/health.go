package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundbot/groundbot/internal/log"
)

const readinessTimeout = 2 * time.Second

// health is a liveness probe. It always returns 200 while the process
// can serve HTTP at all.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness is a readiness probe that additionally pings the database.
// With a nil pool it degrades to a liveness check.
func readiness(pool *pgxpool.Pool, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			logger.Warn("readiness check failed", "error", err)
			WriteError(w, http.StatusServiceUnavailable, "db_unavailable", "database not reachable", logger)
			return
		}

		stat := pool.Stat()
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":            "ok",
			"db_total_conns":    stat.TotalConns(),
			"db_idle_conns":     stat.IdleConns(),
			"db_acquired_conns": stat.AcquiredConns(),
		}, logger)
	}
}
