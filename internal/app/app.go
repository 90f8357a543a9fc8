// Package app provides application initialization and dependency injection.
//
// Setup wires the whole object graph explicitly: configuration, logging,
// Genkit, the connection pool, the vector indices, the gateway invokers, the
// agent and the router. Every collaborator is passed in through constructors;
// nothing reaches for globals.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sqlsage/sqlsage/internal/agent"
	"github.com/sqlsage/sqlsage/internal/config"
	"github.com/sqlsage/sqlsage/internal/memory"
	"github.com/sqlsage/sqlsage/internal/router"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Memory *memory.Store
	Agent  *agent.Agent
	Router *router.Router
}

// Close releases all resources.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}
	if a.DBPool != nil {
		a.DBPool.Close()
	}
	return nil
}
