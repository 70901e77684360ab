// Package app wires the application together: database, Genkit, stores,
// ingestion pipeline, and the conversation orchestrator.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lylin/knowbase/internal/agent"
	"github.com/lylin/knowbase/internal/config"
	"github.com/lylin/knowbase/internal/conversation"
	"github.com/lylin/knowbase/internal/ingest"
	"github.com/lylin/knowbase/internal/knowledge"
	"github.com/lylin/knowbase/internal/log"
)

// App holds the initialized application components.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool     *pgxpool.Pool
	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	Conversations *conversation.Store
	Knowledge     *knowledge.Store
	Documents     *ingest.Documents
	Pipeline      *ingest.Pipeline
	Orchestrator  *agent.Orchestrator
}

// Close releases held resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}
