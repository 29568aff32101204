package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest YES/NO prices per proposal.
type PriceCache interface {
	SetPrice(ctx context.Context, proposalID int64, point PricePoint) error
	GetPrice(ctx context.Context, proposalID int64) (PricePoint, error)
}

// LockManager provides distributed locking for cross-process sweeps (the
// funding-trigger and close sweeps must not run concurrently on two nodes).
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out for committed engine events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter caps request rates per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is one durable entry read back from an event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}
