package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the Redis connection and target list.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	MaxLen   int64  `yaml:"max_len"` // list is trimmed to the newest MaxLen events; 0 keeps all
}

// RedisPublisher pushes events onto a Redis list, newest at the head.
// Consumers BRPOP from the tail.
type RedisPublisher struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisPublisher connects and pings Redis.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	key := cfg.Key
	if key == "" {
		key = "trade-engine:events"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisPublisher{client: client, key: key, maxLen: cfg.MaxLen}, nil
}

// Publish LPUSHes the encoded event and trims the list in one pipeline.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := encode(ev)
	if err != nil {
		return err
	}
	pipe := p.client.TxPipeline()
	pipe.LPush(ctx, p.key, data)
	if p.maxLen > 0 {
		pipe.LTrim(ctx, p.key, 0, p.maxLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
