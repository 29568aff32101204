// Package local implements the cache and pub/sub interfaces in process.
// Simulation mode and the test suites use it in place of Redis; a single
// node needs no cross-process coordination.
package local

import (
	"context"
	"sync"
	"time"

	"github.com/helixlabs/helixmarket/internal/domain"
)

// PriceCache implements domain.PriceCache with a map.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[int64]domain.PricePoint
}

// NewPriceCache creates an empty PriceCache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[int64]domain.PricePoint)}
}

// SetPrice implements domain.PriceCache.
func (c *PriceCache) SetPrice(_ context.Context, proposalID int64, point domain.PricePoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[proposalID] = point
	return nil
}

// GetPrice implements domain.PriceCache.
func (c *PriceCache) GetPrice(_ context.Context, proposalID int64) (domain.PricePoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[proposalID]
	if !ok {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	return p, nil
}

// LockManager implements domain.LockManager for a single process. TTLs are
// ignored; a lock is held until its unlock function runs.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]bool
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]bool)}
}

// Acquire implements domain.LockManager.
func (m *LockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return nil, domain.ErrLockHeld
	}
	m.locks[key] = true

	released := false
	unlock := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if released {
			return
		}
		released = true
		delete(m.locks, key)
	}
	return unlock, nil
}

// SignalBus implements domain.SignalBus with in-process channels. Wildcard
// subscriptions use the same trailing-star convention as the Redis bus.
type SignalBus struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

// NewSignalBus creates an empty SignalBus.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[string][]chan []byte)}
}

// Publish implements domain.SignalBus. Slow subscribers drop messages rather
// than blocking the publisher.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for pattern, chans := range b.subs {
		if !matches(pattern, channel) {
			continue
		}
		for _, ch := range chans {
			select {
			case ch <- payload:
			default:
			}
		}
	}
	return nil
}

// Subscribe implements domain.SignalBus. The returned channel closes when the
// context is cancelled.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		chans := b.subs[channel]
		for i, c := range chans {
			if c == ch {
				b.subs[channel] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

func matches(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(channel) >= len(prefix) && channel[:len(prefix)] == prefix
	}
	return false
}

// Compile-time interface checks.
var (
	_ domain.PriceCache  = (*PriceCache)(nil)
	_ domain.LockManager = (*LockManager)(nil)
	_ domain.SignalBus   = (*SignalBus)(nil)
)
