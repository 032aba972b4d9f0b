package realtime

import (
	"context"
	"sync"
	"time"
)

// TypingState identifies one (user, chat) typing entry.
type TypingState struct {
	UserID string
	ChatID string
}

// TypingTracker holds ephemeral per-(user,chat) typing state with a
// last-activity timestamp. Entries are refreshed on Start, removed on Stop,
// and evicted by a periodic sweep once their age exceeds the expiry
// threshold, so a lost typing-stop (abrupt disconnect) can never leave a
// stuck indicator.
type TypingTracker struct {
	mu      sync.Mutex
	entries map[TypingState]time.Time
	expiry  time.Duration

	now func() time.Time // test hook
}

// NewTypingTracker creates a tracker with the given expiry threshold.
func NewTypingTracker(expiry time.Duration) *TypingTracker {
	return &TypingTracker{
		entries: make(map[TypingState]time.Time),
		expiry:  expiry,
		now:     time.Now,
	}
}

// Start sets or refreshes the typing timestamp for (user, chat).
func (t *TypingTracker) Start(userID, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[TypingState{UserID: userID, ChatID: chatID}] = t.now()
}

// Stop removes the entry and reports whether it existed. Stopping a
// non-existent entry is a no-op.
func (t *TypingTracker) Stop(userID, chatID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := TypingState{UserID: userID, ChatID: chatID}
	_, ok := t.entries[key]
	delete(t.entries, key)
	return ok
}

// DropUser removes all entries for a user and returns the chats affected.
// Called on disconnect cleanup.
func (t *TypingTracker) DropUser(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var chats []string
	for key := range t.entries {
		if key.UserID == userID {
			chats = append(chats, key.ChatID)
			delete(t.entries, key)
		}
	}
	return chats
}

// Sweep evicts entries older than the expiry threshold and returns them so
// the caller can emit synthetic typing=false events.
func (t *TypingTracker) Sweep() []TypingState {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var expired []TypingState
	for key, ts := range t.entries {
		if now.Sub(ts) > t.expiry {
			expired = append(expired, key)
			delete(t.entries, key)
		}
	}
	return expired
}

// Run sweeps on the given interval until the context is cancelled, invoking
// onExpire for each evicted entry.
func (t *TypingTracker) Run(ctx context.Context, interval time.Duration, onExpire func(TypingState)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, state := range t.Sweep() {
				onExpire(state)
			}
		}
	}
}

// Len returns the number of live typing entries.
func (t *TypingTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
