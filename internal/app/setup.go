package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lylin/knowbase/db"
	"github.com/lylin/knowbase/internal/agent"
	"github.com/lylin/knowbase/internal/config"
	"github.com/lylin/knowbase/internal/conversation"
	"github.com/lylin/knowbase/internal/ingest"
	"github.com/lylin/knowbase/internal/knowledge"
	"github.com/lylin/knowbase/internal/log"
)

// Setup initializes the application: migrations, connection pool, Genkit
// with the GoogleAI plugin, stores, ingestion pipeline, and orchestrator.
// On failure, everything already initialized is released.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	if err := db.Migrate(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	a.Conversations = conversation.NewStore(pool, logger.With("component", "conversation"))
	a.Knowledge = knowledge.New(pool, embedder, logger.With("component", "knowledge"))
	a.Documents = ingest.NewDocuments(pool)
	a.Pipeline = ingest.NewPipeline(
		ingest.NewSplitter(ingest.DefaultChunkSize, ingest.DefaultOverlap),
		a.Knowledge,
		a.Documents,
		logger.With("component", "ingest"),
	)

	retrieval := agent.NewRetrieval(a.Knowledge, cfg.RetrievalTopK, logger.With("component", "retrieval"))
	streamer := agent.NewGenkitStreamer(g, cfg.FullModelName(), cfg.MaxTurns, retrieval, logger.With("component", "model"))
	contexts := agent.NewContextBuilder(a.Conversations, cfg.HistoryWindow)
	a.Orchestrator = agent.NewOrchestrator(streamer, contexts, logger.With("component", "agent"))

	return a, nil
}

func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with googleai provider")
	}
	return g, nil
}

// compile-time check: the conversation store satisfies the context
// builder's message source.
var _ agent.MessageSource = (*conversation.Store)(nil)

// and the knowledge store satisfies the retrieval tool's searcher.
var _ agent.Searcher = (*knowledge.Store)(nil)
