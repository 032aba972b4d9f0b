package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/pulsechat/pulse/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, name, email string) uuid.UUID {
	t.Helper()
	u, err := s.CreateUser(context.Background(), name, email, "hash", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func TestSQLiteUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := seedUser(t, s, "Alice", "alice@example.com")

	byID, err := s.GetUserByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if byID == nil || byID.Name != "Alice" || byID.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", byID)
	}

	byEmail, err := s.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if byEmail == nil || byEmail.ID != id {
		t.Fatalf("unexpected user: %+v", byEmail)
	}

	// Missing rows come back as nil, nil
	missing, err := s.GetUserByEmail(ctx, "nobody@example.com")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing user, got %+v, %v", missing, err)
	}

	// Duplicate email is rejected
	if _, err := s.CreateUser(ctx, "Fake Alice", "alice@example.com", "hash", ""); err == nil {
		t.Fatal("duplicate email should error")
	}
}

func TestSQLiteSearchUsersExcludesCaller(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "Alice", "alice@example.com")
	seedUser(t, s, "Alicia", "alicia@example.com")
	seedUser(t, s, "Bob", "bob@example.com")

	users, err := s.SearchUsers(ctx, "Ali", alice, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Name != "Alicia" {
		t.Fatalf("expected Alicia only, got %+v", users)
	}
}

func TestSQLiteChatMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "Alice", "alice@example.com")
	bob := seedUser(t, s, "Bob", "bob@example.com")
	carol := seedUser(t, s, "Carol", "carol@example.com")

	chat, err := s.CreateChat(ctx, "pair", false, alice, []uuid.UUID{alice, bob})
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		user uuid.UUID
		want bool
	}{{alice, true}, {bob, true}, {carol, false}} {
		got, err := s.IsChatMember(ctx, chat.ID, tc.user)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Fatalf("IsChatMember(%s) = %v, want %v", tc.user, got, tc.want)
		}
	}

	// Adding an existing member is a no-op
	if err := s.AddChatMembers(ctx, chat.ID, []uuid.UUID{bob, carol}); err != nil {
		t.Fatal(err)
	}
	members, err := s.ListChatMembers(ctx, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members))
	}
}

func TestSQLiteMessagePagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "Alice", "alice@example.com")
	chat, err := s.CreateChat(ctx, "room", true, alice, []uuid.UUID{alice})
	if err != nil {
		t.Fatal(err)
	}

	var sentAts []int64
	for i := 0; i < 5; i++ {
		msg := &models.Message{
			ChatID:   chat.ID.String(),
			SenderID: alice.String(),
			Content:  "msg",
			SentAt:   int64(1000 + i),
		}
		if err := s.InsertMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
		if msg.ID == "" {
			t.Fatal("insert must assign an id")
		}
		if msg.SenderName != "Alice" {
			t.Fatalf("insert must denormalize the sender name, got %q", msg.SenderName)
		}
		sentAts = append(sentAts, msg.SentAt)
	}

	// Latest page, ascending
	page, err := s.ListChatMessages(ctx, chat.ID.String(), 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(page))
	}
	if page[0].SentAt != sentAts[2] || page[2].SentAt != sentAts[4] {
		t.Fatalf("expected newest 3 ascending, got %v", page)
	}

	// Page backwards: strictly older than the oldest row of the first page
	older, err := s.ListChatMessages(ctx, chat.ID.String(), 3, page[0].SentAt)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 2 || older[1].SentAt != sentAts[1] {
		t.Fatalf("expected the 2 older rows, got %v", older)
	}
}

func TestSQLiteChatPreviews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "Alice", "alice@example.com")
	chat, err := s.CreateChat(ctx, "room", true, alice, []uuid.UUID{alice})
	if err != nil {
		t.Fatal(err)
	}

	s.InsertMessage(ctx, &models.Message{ChatID: chat.ID.String(), SenderID: alice.String(), Content: "old", SentAt: 1})
	s.InsertMessage(ctx, &models.Message{ChatID: chat.ID.String(), SenderID: alice.String(), Content: "new", SentAt: 2})

	label, err := s.CreateLabel(ctx, "work", "#ff0000")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddLabelToChat(ctx, chat.ID, label.ID); err != nil {
		t.Fatal(err)
	}
	// Idempotent
	if err := s.AddLabelToChat(ctx, chat.ID, label.ID); err != nil {
		t.Fatal(err)
	}

	previews, err := s.ListUserChats(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(previews) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(previews))
	}
	p := previews[0]
	if p.LastMessage != "new" || p.LastMessageTime != 2 {
		t.Fatalf("unexpected preview: %+v", p)
	}
	if len(p.Labels) != 1 || p.Labels[0] != "work" {
		t.Fatalf("expected the work label, got %v", p.Labels)
	}
}
