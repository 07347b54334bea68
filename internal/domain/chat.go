package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is an ephemeral line of text carried over a data channel.
// It is never persisted.
type ChatMessage struct {
	ID        string        `json:"id"`
	SenderID  ParticipantID `json:"senderId"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
}

func NewChatMessage(sender ParticipantID, content string, at time.Time) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		SenderID:  sender,
		Content:   content,
		Timestamp: at,
	}
}
