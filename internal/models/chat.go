package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat represents a conversation, either one-on-one or a group.
type Chat struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"is_group"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMember links a user to a chat.
type ChatMember struct {
	ChatID   uuid.UUID `json:"chat_id"`
	UserID   uuid.UUID `json:"user_id"`
	IsAdmin  bool      `json:"is_admin"`
	JoinedAt time.Time `json:"joined_at"`
}

// ChatPreview is a sidebar entry: a chat plus its most recent message.
type ChatPreview struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	IsGroup         bool      `json:"is_group"`
	LastMessage     string    `json:"last_message,omitempty"`
	LastMessageTime int64     `json:"last_message_ts,omitempty"`
	Labels          []string  `json:"labels"`
}

// Label is a user-defined tag that can be attached to chats.
type Label struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
}
