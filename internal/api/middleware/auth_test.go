package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	a := NewAuthMiddleware("secret")

	token, err := a.IssueToken("user-1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	userID, err := a.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %q", userID)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	a := NewAuthMiddleware("secret")
	b := NewAuthMiddleware("other")

	token, _ := a.IssueToken("user-1", time.Hour)
	if _, err := b.Verify(token); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
}

func TestTokenExpired(t *testing.T) {
	a := NewAuthMiddleware("secret")

	token, _ := a.IssueToken("user-1", -time.Minute)
	if _, err := a.Verify(token); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestRequireAuth(t *testing.T) {
	a := NewAuthMiddleware("secret")
	token, _ := a.IssueToken("user-1", time.Hour)

	var gotUserID string
	handler := a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserID(r.Context())
	}))

	// Bearer header
	req := httptest.NewRequest("GET", "/chats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || gotUserID != "user-1" {
		t.Fatalf("header auth failed: status %d, user %q", rec.Code, gotUserID)
	}

	// Query parameter, for the browser websocket API
	gotUserID = ""
	req = httptest.NewRequest("GET", "/ws?token="+token, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || gotUserID != "user-1" {
		t.Fatalf("query auth failed: status %d, user %q", rec.Code, gotUserID)
	}

	// Missing token
	req = httptest.NewRequest("GET", "/chats", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	// Garbage token
	req = httptest.NewRequest("GET", "/chats", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
