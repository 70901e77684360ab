package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/lylin/knowbase/internal/agent"
)

// Wire frame types. Per turn, the order is:
// init, token*, sources?, then exactly one of done or error.
const (
	frameInit    = "init"
	frameToken   = "token"
	frameSources = "sources"
	frameDone    = "done"
	frameError   = "error"
)

type initFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

type tokenFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type sourcesFrame struct {
	Type    string           `json:"type"`
	Sources []agent.Citation `json:"sources"`
}

type doneFrame struct {
	Type        string `json:"type"`
	FullContent string `json:"full_content"`
	HasSources  bool   `json:"has_sources"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StreamWriter encodes wire frames as server-sent events: one
// "data: {json}" block per frame, flushed immediately so tokens reach
// the client as they are generated.
type StreamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewStreamWriter prepares w for streaming and sets the SSE headers.
// Fails if the ResponseWriter cannot flush.
func NewStreamWriter(w http.ResponseWriter) (*StreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable proxy buffering so frames are not batched.
	w.Header().Set("X-Accel-Buffering", "no")

	return &StreamWriter{w: w, flusher: flusher}, nil
}

func (s *StreamWriter) writeFrame(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Init writes the opening frame carrying the conversation ID.
func (s *StreamWriter) Init(conversationID uuid.UUID) error {
	return s.writeFrame(initFrame{Type: frameInit, ConversationID: conversationID.String()})
}

// Token writes one fragment of assistant output.
func (s *StreamWriter) Token(content string) error {
	return s.writeFrame(tokenFrame{Type: frameToken, Content: content})
}

// Sources writes the turn's citations.
func (s *StreamWriter) Sources(sources []agent.Citation) error {
	return s.writeFrame(sourcesFrame{Type: frameSources, Sources: sources})
}

// Done terminates a successful turn.
func (s *StreamWriter) Done(fullContent string, hasSources bool) error {
	return s.writeFrame(doneFrame{Type: frameDone, FullContent: fullContent, HasSources: hasSources})
}

// Error terminates a failed turn.
func (s *StreamWriter) Error(message string) error {
	return s.writeFrame(errorFrame{Type: frameError, Message: message})
}
