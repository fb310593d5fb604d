package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const channelPrefix = "draft:saved:"

// RedisNotifier implements the save-event broadcast over redis pub/sub.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier connects to redis and verifies the connection.
func NewRedisNotifier(redisURL string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisNotifier{client: client}, nil
}

// NewRedisNotifierWithClient wraps an existing redis client.
func NewRedisNotifierWithClient(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func channel(caseID string) string {
	return channelPrefix + caseID
}

func (n *RedisNotifier) Publish(ctx context.Context, event SaveEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal save event: %w", err)
	}
	if err := n.client.Publish(ctx, channel(event.DocumentID), payload).Err(); err != nil {
		return fmt.Errorf("publish save event: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Subscribe(ctx context.Context, caseID string, handler func(SaveEvent)) (func(), error) {
	pubsub := n.client.Subscribe(ctx, channel(caseID))

	// Confirm the subscription before returning so a publish that follows
	// Subscribe is not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", caseID, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var event SaveEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				// malformed broadcasts are dropped, never fatal
				logrus.Debugf("notify: dropping malformed save event on %s: %v", msg.Channel, err)
				continue
			}
			if event.DocumentID != caseID {
				continue
			}
			handler(event)
		}
	}()

	return func() { _ = pubsub.Close() }, nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
