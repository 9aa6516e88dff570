package storage

import "context"

// Subscription is one browser push subscription.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// SubscriptionStore keeps push subscriptions per user. A user may have
// several (one per browser). Implementations: redis.Client, memory.Client
// (for -dev without Redis).
type SubscriptionStore interface {
	Save(ctx context.Context, userID string, sub Subscription) error
	List(ctx context.Context, userID string) ([]Subscription, error)
	Remove(ctx context.Context, userID, endpoint string) error
	Close() error
}
