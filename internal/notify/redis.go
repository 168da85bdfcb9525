package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultChannelPrefix is prepended to the user ID to form the channel.
const DefaultChannelPrefix = "notifications:"

// Envelope is the JSON message published for each event.
type Envelope struct {
	UserID  string         `json:"user_id"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
	SentAt  time.Time      `json:"sent_at"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisConfig configures the Redis notifier.
type RedisConfig struct {
	Address       string
	Password      string
	DB            int
	ChannelPrefix string
}

// Redis publishes events on a per-user pub/sub channel.
type Redis struct {
	client publisher
	prefix string
	now    func() time.Time
}

// NewRedis connects a Redis notifier.
func NewRedis(cfg RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedis(client, cfg.ChannelPrefix)
}

func newRedis(client publisher, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Redis{client: client, prefix: prefix, now: time.Now}
}

// Close closes the underlying client when it owns one.
func (r *Redis) Close() error {
	if c, ok := r.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}

func (r *Redis) Notify(ctx context.Context, userID, event string, payload map[string]any) error {
	msg, err := json.Marshal(Envelope{
		UserID:  userID,
		Event:   event,
		Payload: payload,
		SentAt:  r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := r.client.Publish(ctx, r.prefix+userID, msg).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
