package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"centralrepo/internal/logger"
)

// Config configures the Redis case-event consumer.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
}

// Handler receives one raw case-event envelope.
type Handler func(payload []byte) error

// Consumer pops case events from a Redis list.
type Consumer struct {
	client       redis.UniversalClient
	key          string
	blockTimeout time.Duration
}

// NewConsumer creates a Redis consumer for list-based queues.
func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	c, err := NewConsumerWithClient(client, cfg.Key, cfg.BlockTimeout)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return c, nil
}

// NewConsumerWithClient creates a consumer over an existing client.
func NewConsumerWithClient(client redis.UniversalClient, key string, blockTimeout time.Duration) (*Consumer, error) {
	if key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if blockTimeout == 0 {
		blockTimeout = 5 * time.Second
	}
	return &Consumer{client: client, key: key, blockTimeout: blockTimeout}, nil
}

// Pop pops one message from the list. It returns nil, nil on timeout.
func (c *Consumer) Pop(ctx context.Context) ([]byte, error) {
	res, err := c.client.BLPop(ctx, c.blockTimeout, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Push appends a message to the list.
func (c *Consumer) Push(ctx context.Context, payload []byte) error {
	return c.client.RPush(ctx, c.key, payload).Err()
}

// Run pops messages and passes them to handle until ctx is done.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	logger.Infof("Redis case-event consumer started on %s", c.key)
	for {
		payload, err := c.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Errorf("Failed to pop redis message: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if payload == nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if err := handle(payload); err != nil {
			logger.Warnf("Dropped case event: %v", err)
		}
	}
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.client.Close()
}
