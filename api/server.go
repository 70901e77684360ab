// Package api exposes knowbase over HTTP.
//
// Endpoints:
//
//	POST /api/chat/stream            streaming conversation turn (SSE-framed JSON)
//	POST /api/chat                   non-streaming conversation turn
//	GET/POST /api/conversations      conversation listing and creation
//	GET/DELETE /api/conversations/{id}
//	PATCH /api/conversations/{id}/title
//	GET  /api/conversations/{id}/messages
//	POST /api/knowledge/upload       document ingestion (multipart)
//	GET  /api/knowledge/documents    uploaded document records
//	GET/DELETE /api/knowledge/documents/{id}
//	GET  /api/knowledge/search       keyword search over indexed chunks
//	GET  /api/knowledge/stats        index statistics
//	GET  /health, /ready             probes
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lylin/knowbase/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against Slowloris-style slow clients.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response,
	// streaming turns included.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// Server is the knowbase HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health        *HealthHandler
	chat          *ChatHandler
	conversations *ConversationHandler
	documents     *DocumentHandler
	knowledge     *KnowledgeHandler
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(
	pool *pgxpool.Pool,
	store ConversationStore,
	runner Agent,
	pipeline DocumentPipeline,
	records DocumentRecords,
	index KnowledgeIndex,
	logger log.Logger,
) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:           mux,
		logger:        logger,
		health:        NewHealthHandler(pool, logger),
		chat:          NewChatHandler(store, runner, logger),
		conversations: NewConversationHandler(store, logger),
		documents:     NewDocumentHandler(pipeline, records, logger),
		knowledge:     NewKnowledgeHandler(index, logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.conversations.RegisterRoutes(mux)
	s.documents.RegisterRoutes(mux)
	s.knowledge.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
