package agent

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/lylin/knowbase/internal/conversation"
)

// DefaultWindow is the number of recent messages loaded per turn.
const DefaultWindow = 10

// MessageSource is the slice of the conversation store the context
// builder needs: the last limit messages in chronological order.
type MessageSource interface {
	Recent(ctx context.Context, conversationID uuid.UUID, limit int) ([]conversation.Message, error)
}

// ContextBuilder assembles the model prompt for a turn: the recent
// history window followed by the current user query.
type ContextBuilder struct {
	source MessageSource
	window int
}

// NewContextBuilder creates a context builder. window values below 1 fall
// back to DefaultWindow.
func NewContextBuilder(source MessageSource, window int) *ContextBuilder {
	if window < 1 {
		window = DefaultWindow
	}
	return &ContextBuilder{source: source, window: window}
}

// Build loads the history window and maps it to model messages. The
// window's final entry is the just-persisted user query; it is dropped
// and re-appended as the closing user message, so the query is never
// duplicated. Build never mutates stored state and is safe to call
// repeatedly for the same turn.
func (b *ContextBuilder) Build(ctx context.Context, conversationID uuid.UUID, query string) ([]*ai.Message, error) {
	history, err := b.source.Recent(ctx, conversationID, b.window)
	if err != nil {
		return nil, fmt.Errorf("loading conversation history: %w", err)
	}
	if n := len(history); n > 0 {
		history = history[:n-1]
	}

	msgs := make([]*ai.Message, 0, len(history)+1)
	for _, m := range history {
		role := ai.RoleModel
		if m.Role == conversation.RoleUser {
			role = ai.RoleUser
		}
		msgs = append(msgs, &ai.Message{
			Role:    role,
			Content: []*ai.Part{ai.NewTextPart(m.Content)},
		})
	}
	msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(query)))
	return msgs, nil
}
