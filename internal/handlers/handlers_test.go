package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pulsechat/pulse/internal/api/middleware"
	"github.com/pulsechat/pulse/internal/realtime"
	"github.com/pulsechat/pulse/internal/store"
)

// testEnv wires a handler onto a SQLite store and an in-process feed, the
// same shape the server runs without Postgres and Redis.
type testEnv struct {
	t      *testing.T
	srv    *httptest.Server
	tokens map[string]string // email -> session token
	users  map[string]string // email -> user id
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, nil)
}

// newTestEnvWith additionally wires a Redis store so the cached backlog
// path is reachable.
func newTestEnvWith(t *testing.T, redisStore *store.RedisStore) *testEnv {
	t.Helper()

	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(db.Close)

	hub := realtime.NewHub(zerolog.Nop(), 5*time.Second, 5*time.Second)
	auth := middleware.NewAuthMiddleware("test-secret")
	h := NewHandler(db, redisStore, store.NewLocalFeed(), hub, auth, zerolog.Nop(), 64)

	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Get("/health", h.Health)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Get("/users", h.SearchUsers)
		r.Get("/users/{id}", h.GetUser)
		r.Post("/chats", h.CreateChat)
		r.Get("/chats", h.ListChats)
		r.Get("/chats/{id}/members", h.ListChatMembers)
		r.Post("/chats/{id}/members", h.AddChatMembers)
		r.Get("/chats/{id}/messages", h.GetChatMessages)
		r.Post("/chats/{id}/messages", h.PostMessage)
		r.Post("/chats/{id}/labels", h.AttachLabel)
		r.Post("/labels", h.CreateLabel)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{t: t, srv: srv, tokens: map[string]string{}, users: map[string]string{}}
}

// do performs a request, optionally authenticated as the given email.
func (e *testEnv) do(method, path, email string, body interface{}) *http.Response {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatal(err)
		}
	}

	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		e.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[email])
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatal(err)
	}
}

// register creates an account and remembers its token.
func (e *testEnv) register(name, email string) {
	e.t.Helper()
	resp := e.do("POST", "/register", "", RegisterRequest{
		Name: name, Email: email, Password: "hunter2pass",
	})
	if resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("register %s: status %d", email, resp.StatusCode)
	}
	var session SessionResponse
	decode(e.t, resp, &session)
	e.tokens[email] = session.Token
	e.users[email] = session.User.ID.String()
}

func TestRegisterAndLogin(t *testing.T) {
	e := newTestEnv(t)
	e.register("Alice", "alice@example.com")

	// Duplicate email
	resp := e.do("POST", "/register", "", RegisterRequest{
		Name: "Fake", Email: "alice@example.com", Password: "hunter2pass",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Weak password
	resp = e.do("POST", "/register", "", RegisterRequest{
		Name: "Bob", Email: "bob@example.com", Password: "short",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do("POST", "/login", "", LoginRequest{Email: "alice@example.com", Password: "hunter2pass"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	var session SessionResponse
	decode(t, resp, &session)
	if session.Token == "" || session.User.Name != "Alice" {
		t.Fatalf("unexpected session: %+v", session)
	}

	// The password hash never leaves the server
	if session.User.PasswordHash != "" {
		t.Fatal("password hash leaked in response")
	}

	resp = e.do("POST", "/login", "", LoginRequest{Email: "alice@example.com", Password: "wrong-pass"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChatMembershipEnforced(t *testing.T) {
	e := newTestEnv(t)
	e.register("Alice", "alice@example.com")
	e.register("Bob", "bob@example.com")
	e.register("Carol", "carol@example.com")

	resp := e.do("POST", "/chats", "alice@example.com", CreateChatRequest{
		Name: "pair", MemberIDs: []string{e.users["bob@example.com"]},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create chat: status %d", resp.StatusCode)
	}
	var chat struct {
		ID string `json:"id"`
	}
	decode(t, resp, &chat)

	// Members can post
	resp = e.do("POST", "/chats/"+chat.ID+"/messages", "bob@example.com", PostMessageRequest{Content: "hi"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("member post: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Outsiders cannot read or post
	resp = e.do("GET", "/chats/"+chat.ID+"/messages", "carol@example.com", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider read: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do("POST", "/chats/"+chat.ID+"/messages", "carol@example.com", PostMessageRequest{Content: "intrude"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider post: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Anonymous requests bounce at the middleware
	resp = e.do("GET", "/chats", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMessageBacklogPagination(t *testing.T) {
	e := newTestEnv(t)
	e.register("Alice", "alice@example.com")
	e.register("Bob", "bob@example.com")

	resp := e.do("POST", "/chats", "alice@example.com", CreateChatRequest{
		Name: "pair", MemberIDs: []string{e.users["bob@example.com"]},
	})
	var chat struct {
		ID string `json:"id"`
	}
	decode(t, resp, &chat)

	for i := 0; i < 5; i++ {
		resp := e.do("POST", "/chats/"+chat.ID+"/messages", "alice@example.com",
			PostMessageRequest{Content: fmt.Sprintf("msg %d", i)})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("post %d: status %d", i, resp.StatusCode)
		}
		resp.Body.Close()
		time.Sleep(2 * time.Millisecond) // distinct sent_at
	}

	resp = e.do("GET", "/chats/"+chat.ID+"/messages?limit=3", "alice@example.com", nil)
	var page MessagesResponse
	decode(t, resp, &page)
	if len(page.Messages) != 3 || !page.HasMore {
		t.Fatalf("expected 3 rows with has_more, got %d %v", len(page.Messages), page.HasMore)
	}
	if page.Messages[0].SentAt > page.Messages[2].SentAt {
		t.Fatal("messages must be ascending")
	}
	if page.Messages[2].Content != "msg 4" {
		t.Fatalf("expected the newest row last, got %q", page.Messages[2].Content)
	}

	resp = e.do("GET", fmt.Sprintf("/chats/%s/messages?limit=3&before=%d", chat.ID, page.Messages[0].SentAt),
		"alice@example.com", nil)
	var older MessagesResponse
	decode(t, resp, &older)
	if len(older.Messages) != 2 || older.HasMore {
		t.Fatalf("expected the 2 older rows, got %d has_more=%v", len(older.Messages), older.HasMore)
	}
	if older.Messages[1].Content != "msg 1" {
		t.Fatalf("unexpected page: %+v", older.Messages)
	}
}

func TestCachedBacklogHasMore(t *testing.T) {
	mr := miniredis.RunT(t)
	rs, err := store.NewRedisStore(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	t.Cleanup(func() { rs.Close() })

	e := newTestEnvWith(t, rs)
	e.register("Alice", "alice@example.com")
	e.register("Bob", "bob@example.com")

	resp := e.do("POST", "/chats", "alice@example.com", CreateChatRequest{
		Name: "pair", MemberIDs: []string{e.users["bob@example.com"]},
	})
	var chat struct {
		ID string `json:"id"`
	}
	decode(t, resp, &chat)

	for i := 0; i < 3; i++ {
		resp := e.do("POST", "/chats/"+chat.ID+"/messages", "alice@example.com",
			PostMessageRequest{Content: fmt.Sprintf("msg %d", i)})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("post %d: status %d", i, resp.StatusCode)
		}
		resp.Body.Close()
		time.Sleep(2 * time.Millisecond) // distinct sent_at
	}

	// The cache holds exactly limit rows and the store has nothing older:
	// the page must not advertise a next page.
	resp = e.do("GET", "/chats/"+chat.ID+"/messages?limit=3", "alice@example.com", nil)
	var page MessagesResponse
	decode(t, resp, &page)
	if len(page.Messages) != 3 {
		t.Fatalf("expected the 3 cached rows, got %d", len(page.Messages))
	}
	if page.HasMore {
		t.Fatal("chat with exactly limit messages must not advertise more")
	}

	// A fourth message pushes one row past the window; now there is more.
	resp = e.do("POST", "/chats/"+chat.ID+"/messages", "alice@example.com",
		PostMessageRequest{Content: "msg 3"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("post: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do("GET", "/chats/"+chat.ID+"/messages?limit=3", "alice@example.com", nil)
	decode(t, resp, &page)
	if len(page.Messages) != 3 || !page.HasMore {
		t.Fatalf("expected 3 rows with has_more, got %d %v", len(page.Messages), page.HasMore)
	}
	if page.Messages[2].Content != "msg 3" {
		t.Fatalf("expected the newest row last, got %q", page.Messages[2].Content)
	}
}

func TestLabelsAttachToChats(t *testing.T) {
	e := newTestEnv(t)
	e.register("Alice", "alice@example.com")
	e.register("Bob", "bob@example.com")

	resp := e.do("POST", "/labels", "alice@example.com", CreateLabelRequest{Name: "work", Color: "#ff0000"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create label: status %d", resp.StatusCode)
	}
	var label struct {
		ID string `json:"id"`
	}
	decode(t, resp, &label)

	resp = e.do("POST", "/chats", "alice@example.com", CreateChatRequest{
		Name: "pair", MemberIDs: []string{e.users["bob@example.com"]},
	})
	var chat struct {
		ID string `json:"id"`
	}
	decode(t, resp, &chat)

	resp = e.do("POST", "/chats/"+chat.ID+"/labels", "alice@example.com", AttachLabelRequest{LabelID: label.ID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("attach label: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do("GET", "/chats", "alice@example.com", nil)
	var list struct {
		Chats []struct {
			ID     string   `json:"id"`
			Labels []string `json:"labels"`
		} `json:"chats"`
	}
	decode(t, resp, &list)
	if len(list.Chats) != 1 || len(list.Chats[0].Labels) != 1 || list.Chats[0].Labels[0] != "work" {
		t.Fatalf("expected the work label on the chat, got %+v", list.Chats)
	}
}

func TestUserSearchExcludesCaller(t *testing.T) {
	e := newTestEnv(t)
	e.register("Alice", "alice@example.com")
	e.register("Alicia", "alicia@example.com")

	resp := e.do("GET", "/users?q=Ali", "alice@example.com", nil)
	var result struct {
		Users []UserProfile `json:"users"`
	}
	decode(t, resp, &result)
	if len(result.Users) != 1 || result.Users[0].Name != "Alicia" {
		t.Fatalf("expected Alicia only, got %+v", result.Users)
	}
	if result.Users[0].Online {
		t.Fatal("Alicia has no live connection and must not be online")
	}
}
