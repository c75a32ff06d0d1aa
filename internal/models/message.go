package models

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	ConversationID uuid.UUID   `json:"conversationId" db:"conversation_id"`
	SenderID       uuid.UUID   `json:"senderId" db:"sender_id"`
	SenderName     string      `json:"senderName,omitempty" db:"sender_name"`
	Text           string      `json:"message" db:"message"`
	SeenIDs        []uuid.UUID `json:"seenIds"`
	DeleteFor      []uuid.UUID `json:"-"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time   `json:"updatedAt" db:"updated_at"`
}

// VisibleTo reports whether the message has not been deleted for userID.
func (m *Message) VisibleTo(userID uuid.UUID) bool {
	return !ContainsID(m.DeleteFor, userID)
}

func (m *Message) SeenBy(userID uuid.UUID) bool {
	return ContainsID(m.SeenIDs, userID)
}
