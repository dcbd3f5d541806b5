package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// EventChannel is the pubsub channel carrying bridge events for a topic.
func EventChannel(topic string) string {
	return fmt.Sprintf("events:%s", topic)
}

// AuthTokenKey is the key holding a dashboard login token.
func AuthTokenKey(tokenHash string) string {
	return fmt.Sprintf("auth:%s", tokenHash)
}
