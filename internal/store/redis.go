package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsechat/pulse/internal/models"
)

const messageCacheTTL = 24 * time.Hour

// RedisStore handles Redis operations: the recent-message cache and the
// cross-process message change-feed (Pub/Sub). It implements MessageFeed.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that needs raw access.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// chatMessagesKey returns the key for a chat's message sorted set.
func chatMessagesKey(chatID string) string {
	return fmt.Sprintf("chat:%s:messages", chatID)
}

// chatFeedChannel returns the Pub/Sub channel for a chat's insert feed.
func chatFeedChannel(chatID string) string {
	return fmt.Sprintf("chat:%s:feed", chatID)
}

// CacheMessage stores a persisted message in the recent-message cache.
func (s *RedisStore) CacheMessage(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := chatMessagesKey(msg.ChatID)

	err = s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.SentAt),
		Member: string(data),
	}).Err()
	if err != nil {
		return err
	}

	s.client.Expire(ctx, key, messageCacheTTL)
	return nil
}

// GetRecentMessages retrieves cached messages for a chat, ascending by
// sent_at. Returns at most limit rows; an empty result means cache miss and
// the caller falls through to SQL.
func (s *RedisStore) GetRecentMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	key := chatMessagesKey(chatID)

	results, err := s.client.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Publish announces a persisted message on the chat's feed channel.
func (s *RedisStore) Publish(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, chatFeedChannel(msg.ChatID), data).Err()
}

// Subscribe returns a channel of inserts for the chat. The cancel function
// closes the Pub/Sub subscription; the returned channel closes after cancel.
func (s *RedisStore) Subscribe(ctx context.Context, chatID string) (<-chan *models.Message, func(), error) {
	sub := s.client.Subscribe(ctx, chatFeedChannel(chatID))

	// Wait for confirmation before handing out the channel
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, err
	}

	out := make(chan *models.Message, 32)
	go func() {
		defer close(out)
		for m := range sub.Channel() {
			var msg models.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				continue
			}
			select {
			case out <- &msg:
			default:
			}
		}
	}()

	cancel := func() { sub.Close() }
	return out, cancel, nil
}

// SubscribeAll returns a channel of inserts across every chat, using a
// pattern subscription on the per-chat feed channels.
func (s *RedisStore) SubscribeAll(ctx context.Context) (<-chan *models.Message, func(), error) {
	sub := s.client.PSubscribe(ctx, chatFeedChannel("*"))

	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, err
	}

	out := make(chan *models.Message, 64)
	go func() {
		defer close(out)
		for m := range sub.Channel() {
			var msg models.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				continue
			}
			select {
			case out <- &msg:
			default:
			}
		}
	}()

	cancel := func() { sub.Close() }
	return out, cancel, nil
}
