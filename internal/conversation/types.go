package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Message roles stored in the messages table.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is a chat thread.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single transcript entry. Assistant content may contain
// inline tool markers; they are persisted verbatim.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
