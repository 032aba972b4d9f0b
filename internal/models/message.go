package models

// Message represents a persisted chat message. The realtime layer treats
// Content as opaque; only ID and ChatID are interpreted for routing and
// client-side dedup.
type Message struct {
	ID           string `json:"id"` // ULID
	ChatID       string `json:"chat_id"`
	SenderID     string `json:"sender_id"`
	Content      string `json:"content"`
	Type         string `json:"type"`
	SentAt       int64  `json:"sent_at"` // Unix ms
	SenderName   string `json:"sender_name,omitempty"`
	SenderAvatar string `json:"sender_avatar,omitempty"`
}
