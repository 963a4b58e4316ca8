// Package app wires the application together: configuration, database
// pool, Genkit provider plugins, the vector store, and the QA chain.
// Setup builds everything in dependency order and returns an App whose
// Close releases all acquired resources.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docuquery/docqa/internal/config"
	"github.com/docuquery/docqa/internal/docqa"
)

// App is the application container. All fields are populated by Setup.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DBPool   *pgxpool.Pool
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Service  *docqa.Service

	otelCleanup func()
}

// Close releases all resources acquired during Setup. Safe to call on a
// partially initialized App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.DBPool != nil {
		a.DBPool.Close()
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
