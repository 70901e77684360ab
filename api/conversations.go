package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lylin/knowbase/internal/conversation"
	"github.com/lylin/knowbase/internal/log"
)

// MaxTitleLength bounds user-supplied conversation titles.
const MaxTitleLength = 200

// ConversationHandler serves conversation CRUD endpoints.
type ConversationHandler struct {
	store  ConversationStore
	logger log.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(store ConversationStore, logger log.Logger) *ConversationHandler {
	return &ConversationHandler{store: store, logger: logger}
}

// RegisterRoutes registers conversation routes on the given mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/conversations", h.list)
	mux.HandleFunc("POST /api/conversations", h.create)
	mux.HandleFunc("GET /api/conversations/{id}", h.get)
	mux.HandleFunc("DELETE /api/conversations/{id}", h.delete)
	mux.HandleFunc("PATCH /api/conversations/{id}/title", h.updateTitle)
	mux.HandleFunc("GET /api/conversations/{id}/messages", h.messages)
}

func (h *ConversationHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	conversations, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": conversations,
		"total":         len(conversations),
		"limit":         limit,
		"offset":        offset,
	})
}

type createConversationRequest struct {
	Title string `json:"title"`
}

func (h *ConversationHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if len(req.Title) > MaxTitleLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "title too long")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = "New Conversation"
	}

	conv, err := h.store.Create(r.Context(), req.Title)
	if err != nil {
		h.logger.Error("failed to create conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *ConversationHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	conv, err := h.store.Get(r.Context(), id)
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get conversation", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	err := h.store.Delete(r.Context(), id)
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete conversation", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateTitleRequest struct {
	Title string `json:"title"`
}

func (h *ConversationHandler) updateTitle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	var req updateTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || len(req.Title) > MaxTitleLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "title must be 1-200 characters")
		return
	}

	err := h.store.UpdateTitle(r.Context(), id, req.Title)
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to update title", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update title")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	if _, err := h.store.Get(r.Context(), id); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		h.logger.Error("failed to get conversation", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get conversation")
		return
	}

	msgs, err := h.store.Messages(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list messages", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "total": len(msgs)})
}

// pathUUID parses the {id} path segment, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
