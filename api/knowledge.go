package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/lylin/knowbase/internal/knowledge"
	"github.com/lylin/knowbase/internal/log"
)

// KnowledgeIndex is the read-side slice of the knowledge store used by
// the HTTP layer.
type KnowledgeIndex interface {
	SearchKeyword(ctx context.Context, term string, limit int) ([]knowledge.Result, error)
	Stats(ctx context.Context) (*knowledge.Stats, error)
}

// KnowledgeHandler serves keyword search and index statistics.
type KnowledgeHandler struct {
	index  KnowledgeIndex
	logger log.Logger
}

// NewKnowledgeHandler creates a knowledge handler.
func NewKnowledgeHandler(index KnowledgeIndex, logger log.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{index: index, logger: logger}
}

// RegisterRoutes registers knowledge routes on the given mux.
func (h *KnowledgeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/knowledge/search", h.search)
	mux.HandleFunc("GET /api/knowledge/stats", h.stats)
}

func (h *KnowledgeHandler) search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "q parameter is required")
		return
	}
	limit := parseIntParam(r, "limit", 10, 1, 100)

	results, err := h.index.SearchKeyword(r.Context(), query, limit)
	if err != nil {
		h.logger.Error("keyword search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
		"total":   len(results),
	})
}

func (h *KnowledgeHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.index.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to read index stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
