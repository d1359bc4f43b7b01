// Package app assembles the application: configuration, database,
// Genkit provider, ingest pipeline, pack manager, answer engine, and
// the HTTP server all get wired here.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundbot/groundbot/internal/answer"
	"github.com/groundbot/groundbot/internal/config"
	"github.com/groundbot/groundbot/internal/index"
	"github.com/groundbot/groundbot/internal/log"
	"github.com/groundbot/groundbot/internal/pack"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Index  *index.Store
	Packs  *pack.Manager
	Engine *answer.Engine
	Flow   *answer.Flow

	otelCleanup func()
}

// Close gracefully shuts down all resources. Background pack ingests
// are waited for, then the pool is closed and pending spans flushed.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.Packs != nil {
		a.Packs.Close()
	}

	if a.DBPool != nil {
		a.DBPool.Close()
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
