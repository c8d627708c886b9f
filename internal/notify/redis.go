package notify

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisNotifier publishes the alert text on an "alerts:{channelID}" Redis
// Pub/Sub channel rather than delivering it itself, letting a separate
// process (the dashboard gateway, or an external bot) fan it out further.
// Pub/Sub carries no durability guarantee, which matches the at-most-once,
// no-history delivery model the rest of the engine assumes.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier wraps an existing go-redis client.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (r *RedisNotifier) Send(ctx context.Context, channelID, text string) error {
	channel := fmt.Sprintf("alerts:%s", channelID)
	return r.client.Publish(ctx, channel, text).Err()
}
