package store

import (
	"context"
	"sync"

	"github.com/pulsechat/pulse/internal/models"
)

// MessageFeed notifies subscribers of newly persisted messages, filtered by
// chat. This is the second delivery path next to the realtime relay; clients
// deduplicate by message id, so both paths may deliver the same row.
type MessageFeed interface {
	// Publish announces a persisted message to subscribers of its chat.
	Publish(ctx context.Context, msg *models.Message) error
	// Subscribe returns a channel of inserts for the chat and a cancel
	// function that releases the subscription.
	Subscribe(ctx context.Context, chatID string) (<-chan *models.Message, func(), error)
	// SubscribeAll returns a channel of inserts across every chat. The
	// server uses it to fan inserts from other instances into the local
	// relay.
	SubscribeAll(ctx context.Context) (<-chan *models.Message, func(), error)
}

// LocalFeed is an in-process MessageFeed used when Redis is not configured.
// Single-process deployments lose nothing; the feed only has to reach
// subscribers in the same process.
type LocalFeed struct {
	mu   sync.Mutex
	subs map[string]map[chan *models.Message]struct{}
	all  map[chan *models.Message]struct{}
}

// NewLocalFeed creates an in-process feed.
func NewLocalFeed() *LocalFeed {
	return &LocalFeed{
		subs: make(map[string]map[chan *models.Message]struct{}),
		all:  make(map[chan *models.Message]struct{}),
	}
}

// Publish delivers the message to current subscribers of its chat. A
// subscriber that cannot keep up misses the insert; it will see the row on
// its next backlog fetch.
func (f *LocalFeed) Publish(ctx context.Context, msg *models.Message) error {
	f.mu.Lock()
	targets := make([]chan *models.Message, 0, len(f.subs[msg.ChatID])+len(f.all))
	for ch := range f.subs[msg.ChatID] {
		targets = append(targets, ch)
	}
	for ch := range f.all {
		targets = append(targets, ch)
	}
	f.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers for inserts on the given chat.
func (f *LocalFeed) Subscribe(ctx context.Context, chatID string) (<-chan *models.Message, func(), error) {
	ch := make(chan *models.Message, 32)

	f.mu.Lock()
	if f.subs[chatID] == nil {
		f.subs[chatID] = make(map[chan *models.Message]struct{})
	}
	f.subs[chatID][ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if set, ok := f.subs[chatID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(f.subs, chatID)
			}
		}
		f.mu.Unlock()
	}
	return ch, cancel, nil
}

// SubscribeAll registers for inserts on every chat.
func (f *LocalFeed) SubscribeAll(ctx context.Context) (<-chan *models.Message, func(), error) {
	ch := make(chan *models.Message, 64)

	f.mu.Lock()
	f.all[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		delete(f.all, ch)
		f.mu.Unlock()
	}
	return ch, cancel, nil
}
