package pulse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectAttempts = 5
	reconnectDelay    = 1 * time.Second
	writeWait         = 10 * time.Second
)

// ErrSessionClosed is returned from session operations after Close.
var ErrSessionClosed = errors.New("pulse: session closed")

// Handlers receives server events. Nil fields are skipped. Callbacks run on
// the session's read goroutine; do not block in them.
type Handlers struct {
	// OnMessage fires once per unique message id, after the timeline for
	// the chat has absorbed the row. Duplicate deliveries from the relay
	// and the change-feed are collapsed before this fires.
	OnMessage func(chatID string, msg Message)
	OnTyping  func(ev TypingEvent)
	OnStatus  func(ev StatusEvent)
	// OnReconnect fires after the socket was re-established and open
	// chats were rejoined.
	OnReconnect func()
	// OnClose fires when the session gives up: reconnects were exhausted
	// or Close was called.
	OnClose func(err error)
}

// Session maintains the realtime connection for one signed-in user. It
// reconnects on failure, rejoins open chats, keeps a deduplicated timeline
// per chat, and debounces typing intents.
type Session struct {
	client   *Client
	handlers Handlers

	mu        sync.Mutex
	conn      *websocket.Conn
	open      map[string]*Timeline        // chatID -> timeline
	debounce  map[string]*typingDebouncer // chatID -> debouncer
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// Connect dials the realtime socket and starts the read loop. The client
// must hold a session token from Register or Login.
func Connect(client *Client, handlers Handlers) (*Session, error) {
	if client.Token == "" {
		return nil, errors.New("pulse: not authenticated")
	}

	s := &Session{
		client:   client,
		handlers: handlers,
		open:     make(map[string]*Timeline),
		debounce: make(map[string]*typingDebouncer),
		done:     make(chan struct{}),
	}

	conn, err := s.dial()
	if err != nil {
		return nil, err
	}
	s.conn = conn

	go s.readLoop(conn)
	return s, nil
}

// dial opens the websocket with the session token in the query string.
func (s *Session) dial() (*websocket.Conn, error) {
	wsURL, err := socketURL(s.client.BaseURL)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token="+url.QueryEscape(s.client.Token), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("pulse: socket auth rejected: %w", err)
		}
		return nil, err
	}
	return conn, nil
}

// socketURL converts the HTTP base URL into the websocket endpoint.
func socketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("pulse: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// readLoop consumes server frames until the connection fails, then hands
// off to the reconnect loop.
func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.reconnect(err)
			return
		}
		s.dispatch(data)
	}
}

// reconnect retries the socket a bounded number of times, rejoining open
// chats on success. Messages persisted while offline come back through the
// next backlog fetch; the timeline dedup drops any overlap.
func (s *Session) reconnect(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.mu.Unlock()

	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		select {
		case <-s.done:
			return
		case <-time.After(reconnectDelay):
		}

		conn, err := s.dial()
		if err != nil {
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		chats := make([]string, 0, len(s.open))
		for chatID := range s.open {
			chats = append(chats, chatID)
		}
		s.mu.Unlock()

		// Re-announce presence and rejoin every open chat.
		s.send(eventUserOnline, userOnlineEvent{UserID: s.client.UserID})
		for _, chatID := range chats {
			s.send(eventJoinChat, chatEvent{ChatID: chatID})
		}

		if s.handlers.OnReconnect != nil {
			s.handlers.OnReconnect()
		}
		go s.readLoop(conn)
		return
	}

	s.shutdown(fmt.Errorf("pulse: reconnect failed after %d attempts: %w", reconnectAttempts, cause))
}

// dispatch routes one server frame to the timelines and handlers.
func (s *Session) dispatch(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return
	}

	switch f.Event {
	case eventNewMessage:
		var ev newMessageEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return
		}
		s.absorb(ev.ChatID, ev.Message)

	case eventUserTyping:
		var ev TypingEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return
		}
		if s.handlers.OnTyping != nil {
			s.handlers.OnTyping(ev)
		}

	case eventUserStatusChange:
		var ev StatusEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return
		}
		if s.handlers.OnStatus != nil {
			s.handlers.OnStatus(ev)
		}
	}
}

// absorb adds a delivered message to the chat's timeline and notifies the
// handler when the id was new.
func (s *Session) absorb(chatID string, msg Message) {
	s.mu.Lock()
	tl := s.open[chatID]
	s.mu.Unlock()
	if tl == nil {
		// Chat not open locally; nothing to render.
		return
	}
	if tl.Append(msg) && s.handlers.OnMessage != nil {
		s.handlers.OnMessage(chatID, msg)
	}
}

// OpenChat joins the chat's live room, fetches the backlog and returns the
// chat's timeline. Opening an already open chat returns the existing
// timeline.
func (s *Session) OpenChat(chatID string) (*Timeline, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if tl, ok := s.open[chatID]; ok {
		s.mu.Unlock()
		return tl, nil
	}
	tl := NewTimeline()
	s.open[chatID] = tl
	s.debounce[chatID] = newTypingDebouncer(0, 0,
		func() { s.send(eventTypingStart, typingIntentEvent{UserID: s.client.UserID, ChatID: chatID}) },
		func() { s.send(eventTypingStop, typingIntentEvent{UserID: s.client.UserID, ChatID: chatID}) },
	)
	s.mu.Unlock()

	if err := s.send(eventJoinChat, chatEvent{ChatID: chatID}); err != nil {
		return nil, err
	}

	resp, err := s.client.GetMessages(chatID, 50, 0)
	if err != nil {
		return nil, err
	}
	tl.SetBacklog(resp.Messages)
	return tl, nil
}

// CloseChat leaves the chat's live room and discards its timeline.
func (s *Session) CloseChat(chatID string) error {
	s.mu.Lock()
	deb := s.debounce[chatID]
	delete(s.open, chatID)
	delete(s.debounce, chatID)
	s.mu.Unlock()

	if deb != nil {
		deb.Flush()
	}
	return s.send(eventLeaveChat, chatEvent{ChatID: chatID})
}

// Typing registers a keystroke in the chat. Bursts collapse into one
// typing-start; silence emits the stop.
func (s *Session) Typing(chatID string) {
	s.mu.Lock()
	deb := s.debounce[chatID]
	s.mu.Unlock()
	if deb != nil {
		deb.Keystroke()
	}
}

// Send posts a message with optimistic rendering: the timeline shows a
// placeholder immediately, the row is persisted over HTTP, and the
// placeholder is replaced by the stored row or removed on failure. The
// persisted row is then relayed to the chat's live connections.
func (s *Session) Send(chatID, content string) (*Message, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	tl := s.open[chatID]
	deb := s.debounce[chatID]
	s.mu.Unlock()
	if tl == nil {
		return nil, fmt.Errorf("pulse: chat %s is not open", chatID)
	}

	// Sending implies the typing burst is over.
	if deb != nil {
		deb.Flush()
	}

	tempID := tl.AppendOptimistic(Message{
		ChatID:   chatID,
		SenderID: s.client.UserID,
		Content:  content,
		SentAt:   time.Now().UnixMilli(),
	})

	persisted, err := s.client.PostMessage(chatID, content)
	if err != nil {
		tl.Revert(tempID)
		return nil, err
	}
	tl.Confirm(tempID, *persisted)

	// Fan out to live members. The send is best-effort: the change-feed
	// carries the row regardless.
	s.send(eventSendMessage, sendMessageEvent{
		ChatID:  chatID,
		UserID:  s.client.UserID,
		Message: *persisted,
	})

	return persisted, nil
}

// Timeline returns the timeline for an open chat, or nil.
func (s *Session) Timeline(chatID string) *Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[chatID]
}

// send writes one frame to the socket, if connected.
func (s *Session) send(event string, payload interface{}) error {
	frame, err := newFrame(event, payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.conn == nil {
		return errors.New("pulse: socket not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close tears the session down. Safe to call more than once.
func (s *Session) Close() error {
	s.shutdown(nil)
	return nil
}

func (s *Session) shutdown(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		conn := s.conn
		s.conn = nil
		debs := make([]*typingDebouncer, 0, len(s.debounce))
		for _, d := range s.debounce {
			debs = append(debs, d)
		}
		s.mu.Unlock()

		close(s.done)
		for _, d := range debs {
			d.Flush()
		}
		if conn != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		}
		if s.handlers.OnClose != nil {
			s.handlers.OnClose(err)
		}
	})
}
