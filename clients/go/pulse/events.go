package pulse

import "encoding/json"

// Event names exchanged over the websocket.
const (
	eventUserOnline  = "user-online"
	eventJoinChat    = "join-chat"
	eventLeaveChat   = "leave-chat"
	eventTypingStart = "typing-start"
	eventTypingStop  = "typing-stop"
	eventSendMessage = "send-message"

	eventNewMessage       = "new-message"
	eventUserTyping       = "user-typing"
	eventUserStatusChange = "user-status-change"
)

// frame is the wire envelope for every websocket message.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{Event: event, Data: data})
}

// TypingEvent is delivered when a chat member's typing state changes.
type TypingEvent struct {
	UserID   string `json:"user_id"`
	ChatID   string `json:"chat_id"`
	IsTyping bool   `json:"is_typing"`
}

// StatusEvent is delivered when any user's presence changes.
type StatusEvent struct {
	UserID string `json:"user_id"`
	Status string `json:"status"` // "online" or "offline"
}

// newMessageEvent is the server's message fan-out payload.
type newMessageEvent struct {
	ChatID  string  `json:"chat_id"`
	Message Message `json:"message"`
}

// sendMessageEvent asks the server to fan a persisted message out to the
// chat's live connections.
type sendMessageEvent struct {
	ChatID  string  `json:"chat_id"`
	UserID  string  `json:"user_id"`
	Message Message `json:"message"`
}

type userOnlineEvent struct {
	UserID string `json:"user_id"`
}

type chatEvent struct {
	ChatID string `json:"chat_id"`
}

type typingIntentEvent struct {
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id"`
}
