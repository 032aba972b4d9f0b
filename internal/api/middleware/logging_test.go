package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoggerRecordsAuthenticatedUser(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	auth := NewAuthMiddleware("test-secret")
	token, err := auth.IssueToken("user-42", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	handler := Logger(logger)(auth.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), `"user_id":"user-42"`) {
		t.Fatalf("log line should carry the authenticated user id: %s", buf.String())
	}
}

func TestLoggerAnonymousAndUpgradeFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if strings.Contains(buf.String(), "user_id") {
		t.Fatalf("anonymous request must not log a user id: %s", buf.String())
	}

	buf.Reset()
	up := httptest.NewRequest(http.MethodGet, "/ws", nil)
	up.Header.Set("Upgrade", "websocket")
	handler.ServeHTTP(httptest.NewRecorder(), up)
	if !strings.Contains(buf.String(), `"websocket":true`) {
		t.Fatalf("upgrade request should be marked: %s", buf.String())
	}
}
