package pulse

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestSocketURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws"},
		{"https://chat.example.com", "wss://chat.example.com/ws"},
		{"https://chat.example.com/api/", "wss://chat.example.com/api/ws"},
	}
	for _, tt := range tests {
		got, err := socketURL(tt.in)
		if err != nil {
			t.Fatalf("socketURL(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("socketURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := socketURL("ftp://nope"); err == nil {
		t.Fatal("unsupported scheme should error")
	}
}

// chatServer is a minimal in-test server covering the socket and the
// message endpoints the session touches.
type chatServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	conns  chan *websocket.Conn // each accepted socket, in order
	frames chan frame           // every inbound frame across connections

	failPosts bool
}

func newChatServer(t *testing.T) *chatServer {
	cs := &chatServer{
		t:      t,
		conns:  make(chan *websocket.Conn, 8),
		frames: make(chan frame, 64),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}
		conn, err := cs.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cs.conns <- conn
		go func() {
			for {
				var f frame
				if err := conn.ReadJSON(&f); err != nil {
					return
				}
				cs.frames <- f
			}
		}()
	})
	mux.HandleFunc("/chats/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			if cs.failPosts {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"failed to store message"}`))
				return
			}
			var req struct {
				Content string `json:"content"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(Message{
				ID:      "01PERSISTED",
				ChatID:  strings.Split(r.URL.Path, "/")[2],
				Content: req.Content,
				SentAt:  time.Now().UnixMilli(),
			})
			return
		}
		json.NewEncoder(w).Encode(MessagesResponse{Messages: []Message{}})
	})

	cs.srv = httptest.NewServer(mux)
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *chatServer) client() *Client {
	c := NewClient(cs.srv.URL)
	c.Token = "test-token"
	c.UserID = "alice"
	return c
}

// accept waits for the next socket connection.
func (cs *chatServer) accept() *websocket.Conn {
	cs.t.Helper()
	select {
	case conn := <-cs.conns:
		return conn
	case <-time.After(10 * time.Second):
		cs.t.Fatal("no connection arrived")
		return nil
	}
}

// expectFrame waits for an inbound frame with the given event.
func (cs *chatServer) expectFrame(event string) frame {
	cs.t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case f := <-cs.frames:
			if f.Event == event {
				return f
			}
		case <-deadline:
			cs.t.Fatalf("frame %q never arrived", event)
		}
	}
}

func (cs *chatServer) push(conn *websocket.Conn, event string, payload interface{}) {
	cs.t.Helper()
	data, err := newFrame(event, payload)
	if err != nil {
		cs.t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		cs.t.Fatal(err)
	}
}

func TestSessionDeduplicatesDualPathDelivery(t *testing.T) {
	cs := newChatServer(t)

	delivered := make(chan Message, 8)
	session, err := Connect(cs.client(), Handlers{
		OnMessage: func(chatID string, msg Message) { delivered <- msg },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	conn := cs.accept()
	if _, err := session.OpenChat("chat1"); err != nil {
		t.Fatal(err)
	}
	cs.expectFrame(eventJoinChat)

	// The same row arrives twice: once from the relay, once from the feed
	msg := Message{ID: "01HX", ChatID: "chat1", Content: "hi"}
	cs.push(conn, eventNewMessage, newMessageEvent{ChatID: "chat1", Message: msg})
	cs.push(conn, eventNewMessage, newMessageEvent{ChatID: "chat1", Message: msg})

	select {
	case got := <-delivered:
		if got.ID != "01HX" {
			t.Fatalf("unexpected message: %+v", got)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("message never delivered")
	}

	select {
	case got := <-delivered:
		t.Fatalf("duplicate must be suppressed, got %+v", got)
	case <-time.After(200 * time.Millisecond):
	}

	if session.Timeline("chat1").Len() != 1 {
		t.Fatalf("expected 1 timeline entry, got %d", session.Timeline("chat1").Len())
	}
}

func TestSessionReconnectRejoinsOpenChats(t *testing.T) {
	cs := newChatServer(t)

	reconnected := make(chan struct{}, 1)
	session, err := Connect(cs.client(), Handlers{
		OnReconnect: func() { reconnected <- struct{}{} },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	first := cs.accept()
	if _, err := session.OpenChat("chat1"); err != nil {
		t.Fatal(err)
	}
	cs.expectFrame(eventJoinChat)

	// Kill the socket; the session retries and rejoins
	first.Close()

	cs.accept()
	online := cs.expectFrame(eventUserOnline)
	var op userOnlineEvent
	json.Unmarshal(online.Data, &op)
	if op.UserID != "alice" {
		t.Fatalf("expected presence re-announce for alice, got %+v", op)
	}

	join := cs.expectFrame(eventJoinChat)
	var jp chatEvent
	json.Unmarshal(join.Data, &jp)
	if jp.ChatID != "chat1" {
		t.Fatalf("expected rejoin of chat1, got %+v", jp)
	}

	select {
	case <-reconnected:
	case <-time.After(10 * time.Second):
		t.Fatal("OnReconnect never fired")
	}
}

func TestSessionSendConfirmsOptimisticRow(t *testing.T) {
	cs := newChatServer(t)

	session, err := Connect(cs.client(), Handlers{})
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	cs.accept()
	tl, err := session.OpenChat("chat1")
	if err != nil {
		t.Fatal(err)
	}

	persisted, err := session.Send("chat1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if persisted.ID != "01PERSISTED" {
		t.Fatalf("unexpected persisted id: %s", persisted.ID)
	}

	msgs := tl.Messages()
	if len(msgs) != 1 || msgs[0].ID != "01PERSISTED" {
		t.Fatalf("placeholder not replaced: %v", msgs)
	}

	// The relay frame carries the final id
	sent := cs.expectFrame(eventSendMessage)
	var sp sendMessageEvent
	json.Unmarshal(sent.Data, &sp)
	if sp.Message.ID != "01PERSISTED" || sp.ChatID != "chat1" {
		t.Fatalf("unexpected relay frame: %+v", sp)
	}

	// A relayed copy of the persisted row deduplicates
	if tl.Append(*persisted) {
		t.Fatal("persisted row must already be known")
	}
}

func TestSessionSendRevertsOnFailure(t *testing.T) {
	cs := newChatServer(t)
	cs.failPosts = true

	session, err := Connect(cs.client(), Handlers{})
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	cs.accept()
	tl, err := session.OpenChat("chat1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := session.Send("chat1", "doomed"); err == nil {
		t.Fatal("send should fail")
	}
	if tl.Len() != 0 {
		t.Fatalf("failed send must be reverted, got %d messages", tl.Len())
	}
}
