package realtime

import (
	"encoding/json"

	"github.com/pulsechat/pulse/internal/models"
)

// Event names exchanged over the websocket.
const (
	// client -> server
	EventUserOnline  = "user-online"
	EventJoinChat    = "join-chat"
	EventLeaveChat   = "leave-chat"
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"
	EventSendMessage = "send-message"

	// server -> client
	EventNewMessage       = "new-message"
	EventUserTyping       = "user-typing"
	EventUserStatusChange = "user-status-change"
)

// Frame is the wire envelope for every websocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewFrame marshals an event and its payload into a wire frame.
func NewFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// UserOnlinePayload announces the connection's owner.
type UserOnlinePayload struct {
	UserID string `json:"user_id"`
}

// ChatPayload carries a room subscription change.
type ChatPayload struct {
	ChatID string `json:"chat_id"`
}

// TypingPayload carries typing intent from a client.
type TypingPayload struct {
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id"`
}

// UserTypingPayload is broadcast to a room when a member's typing state
// changes.
type UserTypingPayload struct {
	UserID   string `json:"user_id"`
	ChatID   string `json:"chat_id"`
	IsTyping bool   `json:"is_typing"`
}

// StatusChangePayload is broadcast to all clients on a presence transition.
type StatusChangePayload struct {
	UserID string `json:"user_id"`
	Status string `json:"status"` // "online" or "offline"
}

// SendMessagePayload carries an already-persisted message for relay. The
// message id must be the final persisted id so receivers can deduplicate
// against the change-feed.
type SendMessagePayload struct {
	ChatID  string         `json:"chat_id"`
	UserID  string         `json:"user_id"`
	Message models.Message `json:"message"`
}

// NewMessagePayload is broadcast to room members when a message is relayed.
type NewMessagePayload struct {
	ChatID  string         `json:"chat_id"`
	Message models.Message `json:"message"`
}
