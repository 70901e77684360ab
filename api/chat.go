package api

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lylin/knowbase/internal/agent"
	"github.com/lylin/knowbase/internal/conversation"
	"github.com/lylin/knowbase/internal/log"
)

// MaxMessageLength bounds a single user message in bytes.
const MaxMessageLength = 32 * 1024

// Agent runs one conversation turn as a stream of typed events.
type Agent interface {
	Run(ctx context.Context, conversationID uuid.UUID, query string) iter.Seq2[agent.Event, error]
}

// ConversationStore is the slice of the conversation store the HTTP
// layer needs.
type ConversationStore interface {
	Create(ctx context.Context, title string) (*conversation.Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
	List(ctx context.Context, limit, offset int) ([]conversation.Conversation, error)
	UpdateTitle(ctx context.Context, id uuid.UUID, title string) error
	Delete(ctx context.Context, id uuid.UUID) error
	AddMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (*conversation.Message, error)
	Messages(ctx context.Context, conversationID uuid.UUID) ([]conversation.Message, error)
}

// ChatHandler coordinates conversation turns: it resolves the target
// conversation, persists the user message before any generation starts,
// translates agent events into wire frames, and persists the assistant
// message only after a clean done.
type ChatHandler struct {
	store  ConversationStore
	runner Agent
	logger log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(store ConversationStore, runner Agent, logger log.Logger) *ChatHandler {
	return &ChatHandler{store: store, runner: runner, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat/stream", h.handleStream)
	mux.HandleFunc("POST /api/chat", h.handleSend)
}

type chatRequest struct {
	Message        string     `json:"message"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
}

type chatResponse struct {
	ConversationID uuid.UUID        `json:"conversation_id"`
	Content        string           `json:"content"`
	Sources        []agent.Citation `json:"sources,omitempty"`
}

// decodeChatRequest parses and validates the request body.
func decodeChatRequest(r *http.Request) (*chatRequest, error) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxMessageLength)).Decode(&req); err != nil {
		return nil, errors.New("invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("message must not be empty")
	}
	return &req, nil
}

// prepareTurn resolves the conversation (creating one titled from the
// first message when absent) and persists the user message. The user
// message is stored before streaming begins so a failed turn still
// leaves the question in the transcript.
func (h *ChatHandler) prepareTurn(ctx context.Context, req *chatRequest) (*conversation.Conversation, error) {
	if req.ConversationID != nil {
		conv, err := h.store.Get(ctx, *req.ConversationID)
		if err != nil {
			return nil, err
		}
		if _, err := h.store.AddMessage(ctx, conv.ID, conversation.RoleUser, req.Message); err != nil {
			return nil, err
		}
		return conv, nil
	}

	conv, err := h.store.Create(ctx, conversation.AutoTitle(req.Message))
	if err != nil {
		return nil, err
	}
	if _, err := h.store.AddMessage(ctx, conv.ID, conversation.RoleUser, req.Message); err != nil {
		return nil, err
	}
	return conv, nil
}

// handleStream serves POST /api/chat/stream.
func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx := r.Context()

	conv, err := h.prepareTurn(ctx, req)
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to prepare turn", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start conversation turn")
		return
	}

	sw, err := NewStreamWriter(w)
	if err != nil {
		h.logger.Error("streaming unsupported", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	if err := sw.Init(conv.ID); err != nil {
		h.logger.Debug("client gone before init", "error", err)
		return
	}

	var done *agent.Event
	for ev, err := range h.runner.Run(ctx, conv.ID, req.Message) {
		if err != nil {
			h.logger.Error("turn failed", "conversation_id", conv.ID, "error", err)
			_ = sw.Error(publicErrorMessage(err))
			return
		}

		var writeErr error
		switch ev.Kind {
		case agent.EventToken:
			writeErr = sw.Token(ev.Text)
		case agent.EventToolStart, agent.EventToolEnd:
			// Tool activity reaches clients as literal token content.
			writeErr = sw.Token(ev.Marker())
		case agent.EventSources:
			writeErr = sw.Sources(ev.Sources)
		case agent.EventDone:
			d := ev
			done = &d
			writeErr = sw.Done(ev.FullText, ev.HasSources)
		}
		if writeErr != nil {
			h.logger.Debug("client disconnected mid-stream", "conversation_id", conv.ID, "error", writeErr)
			return
		}

		select {
		case <-ctx.Done():
			h.logger.Debug("request cancelled", "conversation_id", conv.ID)
			return
		default:
		}
	}

	// The assistant message is persisted only after a clean done; the
	// transcript keeps tool markers verbatim.
	if done != nil {
		persistCtx := context.WithoutCancel(ctx)
		if _, err := h.store.AddMessage(persistCtx, conv.ID, conversation.RoleAssistant, done.FullText); err != nil {
			h.logger.Error("failed to persist assistant message", "conversation_id", conv.ID, "error", err)
		}
	}
}

// handleSend serves POST /api/chat: the same pipeline with the stream
// buffered into a single JSON response.
func (h *ChatHandler) handleSend(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx := r.Context()

	conv, err := h.prepareTurn(ctx, req)
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to prepare turn", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start conversation turn")
		return
	}

	var done *agent.Event
	var sources []agent.Citation
	for ev, err := range h.runner.Run(ctx, conv.ID, req.Message) {
		if err != nil {
			h.logger.Error("turn failed", "conversation_id", conv.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "generation_failed", publicErrorMessage(err))
			return
		}
		switch ev.Kind {
		case agent.EventSources:
			sources = ev.Sources
		case agent.EventDone:
			d := ev
			done = &d
		}
	}
	if done == nil {
		writeError(w, http.StatusInternalServerError, "generation_failed", "the turn produced no result")
		return
	}

	persistCtx := context.WithoutCancel(ctx)
	if _, err := h.store.AddMessage(persistCtx, conv.ID, conversation.RoleAssistant, done.FullText); err != nil {
		h.logger.Error("failed to persist assistant message", "conversation_id", conv.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: conv.ID,
		Content:        done.FullText,
		Sources:        sources,
	})
}

// publicErrorMessage maps internal failures to client-safe text.
func publicErrorMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Please try again."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	default:
		return "The assistant failed to generate a response. Please try again."
	}
}
