package store

import (
	"context"
	"testing"
	"time"

	"github.com/pulsechat/pulse/internal/models"
)

func receive(t *testing.T, ch <-chan *models.Message) *models.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message arrived")
		return nil
	}
}

func TestLocalFeedDeliversToChatSubscribers(t *testing.T) {
	f := NewLocalFeed()
	ctx := context.Background()

	sub, cancel, err := f.Subscribe(ctx, "chat1")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	other, cancelOther, err := f.Subscribe(ctx, "chat2")
	if err != nil {
		t.Fatal(err)
	}
	defer cancelOther()

	msg := &models.Message{ID: "01HX", ChatID: "chat1", Content: "hi"}
	if err := f.Publish(ctx, msg); err != nil {
		t.Fatal(err)
	}

	if got := receive(t, sub); got.ID != "01HX" {
		t.Fatalf("unexpected message: %+v", got)
	}
	select {
	case got := <-other:
		t.Fatalf("chat2 subscriber must not see chat1 inserts, got %+v", got)
	default:
	}
}

func TestLocalFeedCancelStopsDelivery(t *testing.T) {
	f := NewLocalFeed()
	ctx := context.Background()

	sub, cancel, err := f.Subscribe(ctx, "chat1")
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	f.Publish(ctx, &models.Message{ID: "01HX", ChatID: "chat1"})
	select {
	case got := <-sub:
		t.Fatalf("cancelled subscriber must not receive, got %+v", got)
	default:
	}
}

func TestLocalFeedSubscribeAll(t *testing.T) {
	f := NewLocalFeed()
	ctx := context.Background()

	all, cancel, err := f.SubscribeAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	f.Publish(ctx, &models.Message{ID: "01A", ChatID: "chat1"})
	f.Publish(ctx, &models.Message{ID: "01B", ChatID: "chat2"})

	first := receive(t, all)
	second := receive(t, all)
	if first.ChatID != "chat1" || second.ChatID != "chat2" {
		t.Fatalf("wildcard subscriber should see every chat, got %s then %s", first.ChatID, second.ChatID)
	}
}

func TestLocalFeedSlowSubscriberMissesInsert(t *testing.T) {
	f := NewLocalFeed()
	ctx := context.Background()

	sub, cancel, err := f.Subscribe(ctx, "chat1")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	// Overfill the subscriber buffer; extra inserts are dropped rather
	// than blocking the publisher.
	for i := 0; i < 100; i++ {
		f.Publish(ctx, &models.Message{ID: "m", ChatID: "chat1"})
	}

	n := 0
	for {
		select {
		case <-sub:
			n++
			continue
		default:
		}
		break
	}
	if n == 0 || n >= 100 {
		t.Fatalf("expected a bounded number of deliveries, got %d", n)
	}
}
