package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixlabs/helixmarket/internal/domain"
)

func TestPriceCache(t *testing.T) {
	c := NewPriceCache()
	ctx := context.Background()

	_, err := c.GetPrice(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	point := domain.PricePoint{Time: time.Unix(1_700_000_000, 0), PriceYes: 0.7, PriceNo: 0.3}
	require.NoError(t, c.SetPrice(ctx, 1, point))

	got, err := c.GetPrice(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, point, got)
}

func TestLockManager(t *testing.T) {
	m := NewLockManager()
	ctx := context.Background()

	unlock, err := m.Acquire(ctx, "sweep:funding", time.Second)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "sweep:funding", time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	// Different keys do not contend.
	other, err := m.Acquire(ctx, "sweep:close", time.Second)
	require.NoError(t, err)
	other()

	unlock()
	unlock() // unlock is idempotent

	again, err := m.Acquire(ctx, "sweep:funding", time.Second)
	require.NoError(t, err)
	again()
}

func TestSignalBusExactChannel(t *testing.T) {
	b := NewSignalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "prices")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "prices", []byte("p1")))
	require.NoError(t, b.Publish(ctx, "events", []byte("e1")))

	select {
	case msg := <-ch:
		assert.Equal(t, "p1", string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %q", msg)
	default:
	}
}

func TestSignalBusWildcard(t *testing.T) {
	b := NewSignalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "events:proposal:*")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "events:proposal:7", []byte("m1")))
	require.NoError(t, b.Publish(ctx, "events", []byte("m2")))

	select {
	case msg := <-ch:
		assert.Equal(t, "m1", string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestSignalBusUnsubscribeOnCancel(t *testing.T) {
	b := NewSignalBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Subscribe(ctx, "events")
	require.NoError(t, err)
	cancel()

	// The channel closes once the subscription is torn down.
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}
