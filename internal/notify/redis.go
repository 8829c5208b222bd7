package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "buy_box_change"

// RedisPublisher publishes JSON encoded events on a pub/sub channel for
// dashboards running in other processes.
type RedisPublisher struct {
	Client  *redis.Client
	Channel string
}

func NewRedisPublisher(opt *redis.Options, channel string) *RedisPublisher {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{Client: redis.NewClient(opt), Channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.Client == nil {
		return nil
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Client.Publish(ctx, p.Channel, raw).Err()
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	if p == nil || p.Client == nil {
		return nil
	}
	return p.Client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	if p == nil || p.Client == nil {
		return nil
	}
	return p.Client.Close()
}
