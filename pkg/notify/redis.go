package notify

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisPublisher appends events to a Redis list for consumers to BLPOP
type RedisPublisher struct {
	client *redis.Client
	key    string
}

func NewRedisPublisher(client *redis.Client, key string) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		key:    key,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, events []MatchActivity) error {
	if len(events) == 0 {
		return nil
	}

	values := make([]interface{}, len(events))
	for i, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event for %d: %w", e.PlayerID, err)
		}
		values[i] = data
	}
	return p.client.RPush(ctx, p.key, values...).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
