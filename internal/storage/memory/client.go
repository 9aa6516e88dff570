package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chatline/internal/storage"
)

const subscriptionTTL = 30 * 24 * time.Hour

type item struct {
	sub storage.Subscription
	exp time.Time
}

type Client struct {
	mu   sync.RWMutex
	subs map[string]map[string]item // userID -> endpoint -> item
}

func New() *Client {
	return &Client{subs: make(map[string]map[string]item)}
}

func (c *Client) Close() error { return nil }

func (c *Client) Save(ctx context.Context, userID string, sub storage.Subscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[userID]; !ok {
		c.subs[userID] = make(map[string]item)
	}
	c.subs[userID][sub.Endpoint] = item{sub: sub, exp: time.Now().Add(subscriptionTTL)}
	return nil
}

func (c *Client) List(ctx context.Context, userID string) ([]storage.Subscription, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now()
	var out []storage.Subscription
	for _, it := range c.subs[userID] {
		if now.After(it.exp) {
			continue
		}
		out = append(out, it.sub)
	}
	return out, nil
}

func (c *Client) Remove(ctx context.Context, userID, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.subs[userID]; ok {
		delete(m, endpoint)
		if len(m) == 0 {
			delete(c.subs, userID)
		}
	}
	return nil
}
