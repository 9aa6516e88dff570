package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatline/internal/storage"
)

// Subscriptions live in a hash per user keyed by endpoint; the whole hash
// expires after the TTL so stale browsers age out on their own.
const subscriptionTTL = 30 * 24 * time.Hour

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func subKey(userID string) string { return "push_subs:" + userID }

func (c *Client) Save(ctx context.Context, userID string, sub storage.Subscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("redis save subscription marshal: %w", err)
	}
	key := subKey(userID)
	if err := c.cli.HSet(ctx, key, sub.Endpoint, data).Err(); err != nil {
		return fmt.Errorf("redis save subscription: %w", err)
	}
	// refresh the TTL on every save so active users never expire
	return c.cli.Expire(ctx, key, subscriptionTTL).Err()
}

func (c *Client) List(ctx context.Context, userID string) ([]storage.Subscription, error) {
	vals, err := c.cli.HVals(ctx, subKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis list subscriptions: %w", err)
	}
	subs := make([]storage.Subscription, 0, len(vals))
	for _, v := range vals {
		var sub storage.Subscription
		if err := json.Unmarshal([]byte(v), &sub); err != nil {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (c *Client) Remove(ctx context.Context, userID, endpoint string) error {
	if err := c.cli.HDel(ctx, subKey(userID), endpoint).Err(); err != nil {
		return fmt.Errorf("redis remove subscription: %w", err)
	}
	return nil
}

// FlushDB clears the current Redis database (tests and dev restarts).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
