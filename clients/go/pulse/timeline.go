package pulse

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
)

// defaultSeenCap bounds the per-chat dedup set. Messages arrive on two
// paths (socket relay and change-feed) and the same id must collapse to
// one timeline entry without the set growing forever.
const defaultSeenCap = 512

// Timeline holds the rendered message list for one chat. It merges the
// backlog fetch, the socket relay and the change-feed into a single
// id-deduplicated sequence, and supports optimistic local appends that are
// later confirmed or reverted.
type Timeline struct {
	mu       sync.Mutex
	messages []Message
	seen     map[string]struct{}
	order    []string // seen ids, oldest first, for LRU eviction
	seenCap  int
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{
		seen:    make(map[string]struct{}),
		seenCap: defaultSeenCap,
	}
}

// Append adds a message unless its id was already observed. It returns
// true when the message was new.
func (t *Timeline) Append(msg Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.seen[msg.ID]; dup {
		return false
	}
	t.remember(msg.ID)
	t.messages = append(t.messages, msg)
	return true
}

// SetBacklog loads a backlog fetch as the timeline base. Rows already
// rendered but absent from the backlog (relay copies the store has not
// surfaced yet, optimistic placeholders) survive after the backlog rows;
// wiping them would lose the message until the chat is reopened. Already
// observed ids stay in the dedup set so relayed copies of backlog rows are
// still dropped.
func (t *Timeline) SetBacklog(messages []Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	inBacklog := make(map[string]struct{}, len(messages))
	for _, m := range messages {
		inBacklog[m.ID] = struct{}{}
	}
	var extra []Message
	for _, m := range t.messages {
		if _, dup := inBacklog[m.ID]; !dup {
			extra = append(extra, m)
		}
	}

	t.messages = make([]Message, 0, len(messages)+len(extra))
	t.messages = append(t.messages, messages...)
	t.messages = append(t.messages, extra...)
	for _, m := range messages {
		if _, dup := t.seen[m.ID]; !dup {
			t.remember(m.ID)
		}
	}
}

// AppendOptimistic adds a placeholder row with a generated temporary id
// and returns that id. The entry renders immediately; Confirm or Revert
// resolves it once the server responds.
func (t *Timeline) AppendOptimistic(msg Message) string {
	tempID := newTempID()
	msg.ID = tempID

	t.mu.Lock()
	defer t.mu.Unlock()
	t.remember(tempID)
	t.messages = append(t.messages, msg)
	return tempID
}

// Confirm resolves the placeholder against the persisted row. Normally it
// replaces the placeholder in place and registers the final id so the
// relayed and feed copies deduplicate against it. When the relay or feed
// copy won the race and the final id already renders, the placeholder is
// removed instead so the row shows exactly once. It returns false when the
// placeholder is gone.
func (t *Timeline) Confirm(tempID string, persisted Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.seen[persisted.ID]; dup {
		for i := range t.messages {
			if t.messages[i].ID == tempID {
				t.messages = append(t.messages[:i], t.messages[i+1:]...)
				return true
			}
		}
		return false
	}
	t.remember(persisted.ID)
	for i := range t.messages {
		if t.messages[i].ID == tempID {
			t.messages[i] = persisted
			return true
		}
	}
	return false
}

// Revert removes a failed optimistic append. It returns false when the
// placeholder is gone.
func (t *Timeline) Revert(tempID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.messages {
		if t.messages[i].ID == tempID {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return true
		}
	}
	return false
}

// Messages returns a snapshot of the timeline, oldest first.
func (t *Timeline) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of rendered messages.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// remember records an id in the dedup set, evicting the oldest entry when
// the cap is reached. Caller holds t.mu.
func (t *Timeline) remember(id string) {
	if len(t.order) >= t.seenCap {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.seen, oldest)
	}
	t.seen[id] = struct{}{}
	t.order = append(t.order, id)
}

// newTempID generates a placeholder id that cannot collide with a server
// ULID.
func newTempID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "temp-" + hex.EncodeToString(b)
}
