package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixlabs/helixmarket/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func native(n int64) domain.CurrencyAmount {
	return domain.CurrencyAmount{Currency: domain.CurrencyNative, Amount: n}
}

func token(n int64) domain.CurrencyAmount {
	return domain.CurrencyAmount{Currency: domain.CurrencyToken, Amount: n}
}

func TestDeposit(t *testing.T) {
	l := New(nil, testLogger())
	ctx := context.Background()

	require.NoError(t, l.Deposit(ctx, "alice", native(100)))
	require.NoError(t, l.Deposit(ctx, "alice", native(50)))
	require.NoError(t, l.Deposit(ctx, "alice", token(30)))

	assert.Equal(t, int64(150), l.Balance(ctx, "alice", domain.CurrencyNative))
	assert.Equal(t, int64(30), l.Balance(ctx, "alice", domain.CurrencyToken))
	assert.Equal(t, int64(0), l.Balance(ctx, "bob", domain.CurrencyNative))

	err := l.Deposit(ctx, "alice", native(-1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	err = l.Deposit(ctx, "alice", domain.CurrencyAmount{Currency: "doge", Amount: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestEscrowAndRelease(t *testing.T) {
	l := New(nil, testLogger())
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "alice", native(100)))

	ticket, err := l.Escrow(ctx, "alice", 7, native(60))
	require.NoError(t, err)
	assert.Equal(t, int64(40), l.Balance(ctx, "alice", domain.CurrencyNative))
	assert.Equal(t, int64(7), ticket.ProposalID)
	assert.False(t, ticket.Released)

	// The hold is not anyone's balance until released.
	require.NoError(t, l.Release(ctx, ticket.ID, "market:7"))
	assert.Equal(t, int64(60), l.Balance(ctx, "market:7", domain.CurrencyNative))

	err = l.Release(ctx, ticket.ID, "market:7")
	assert.ErrorIs(t, err, domain.ErrAlreadyReleased)

	err = l.Release(ctx, "no-such-ticket", "market:7")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEscrowInsufficientFunds(t *testing.T) {
	l := New(nil, testLogger())
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "alice", native(10)))
	require.NoError(t, l.Deposit(ctx, "alice", token(1000)))

	// Currencies never cover for each other.
	_, err := l.Escrow(ctx, "alice", 1, native(11))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(10), l.Balance(ctx, "alice", domain.CurrencyNative), "rejected escrow mutates nothing")
}

func TestPayout(t *testing.T) {
	l := New(nil, testLogger())
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "market:3", native(500)))

	require.NoError(t, l.Payout(ctx, "market:3", "bob", 3, native(200)))
	assert.Equal(t, int64(300), l.Balance(ctx, "market:3", domain.CurrencyNative))
	assert.Equal(t, int64(200), l.Balance(ctx, "bob", domain.CurrencyNative))

	// Zero payouts are a no-op, not an error.
	require.NoError(t, l.Payout(ctx, "market:3", "bob", 3, native(0)))
	assert.Equal(t, int64(200), l.Balance(ctx, "bob", domain.CurrencyNative))

	err := l.Payout(ctx, "market:3", "bob", 3, native(1000))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestPayoutReserve(t *testing.T) {
	l := New(nil, testLogger())
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "market:5", native(300)))
	require.NoError(t, l.Deposit(ctx, "market:5", token(80)))

	err := l.PayoutReserve(ctx, "market:5", "carol", 5, domain.Reserve{Native: 200, Token: 80})
	require.NoError(t, err)
	assert.Equal(t, int64(100), l.Balance(ctx, "market:5", domain.CurrencyNative))
	assert.Equal(t, int64(0), l.Balance(ctx, "market:5", domain.CurrencyToken))
	assert.Equal(t, int64(200), l.Balance(ctx, "carol", domain.CurrencyNative))
	assert.Equal(t, int64(80), l.Balance(ctx, "carol", domain.CurrencyToken))

	// A zero leg moves nothing and is not an error.
	require.NoError(t, l.PayoutReserve(ctx, "market:5", "carol", 5, domain.Reserve{Native: 100}))
	assert.Equal(t, int64(300), l.Balance(ctx, "carol", domain.CurrencyNative))
}

// A payout with one leg the treasury cannot cover must move neither leg.
func TestPayoutReserveAllOrNothing(t *testing.T) {
	var events []domain.Event
	sink := domain.EventSinkFunc(func(_ context.Context, ev domain.Event) {
		events = append(events, ev)
	})
	l := New(sink, testLogger())
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "market:9", native(100)))

	err := l.PayoutReserve(ctx, "market:9", "dave", 9, domain.Reserve{Native: 50, Token: 10})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, int64(100), l.Balance(ctx, "market:9", domain.CurrencyNative))
	assert.Equal(t, int64(0), l.Balance(ctx, "dave", domain.CurrencyNative))
	assert.Equal(t, int64(0), l.Balance(ctx, "dave", domain.CurrencyToken))

	// Only the funding deposit reached the event log.
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventLedgerDeposit, events[0].Type)

	err = l.PayoutReserve(ctx, "market:9", "dave", 9, domain.Reserve{Native: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestBalances(t *testing.T) {
	l := New(nil, testLogger())
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "alice", native(5)))

	got := l.Balances(ctx, "alice")
	assert.Equal(t, map[domain.Currency]int64{
		domain.CurrencyNative: 5,
		domain.CurrencyToken:  0,
	}, got)
}

func TestLedgerEvents(t *testing.T) {
	var events []domain.Event
	sink := domain.EventSinkFunc(func(_ context.Context, ev domain.Event) {
		events = append(events, ev)
	})
	l := New(sink, testLogger())
	ctx := context.Background()

	require.NoError(t, l.Deposit(ctx, "alice", native(100)))
	ticket, err := l.Escrow(ctx, "alice", 1, native(40))
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, ticket.ID, "market:1"))

	require.Len(t, events, 3)
	assert.Equal(t, domain.EventLedgerDeposit, events[0].Type)
	assert.Equal(t, int64(100), events[0].Delta)
	assert.Equal(t, domain.EventLedgerEscrow, events[1].Type)
	assert.Equal(t, int64(-40), events[1].Delta)
	assert.Equal(t, ticket.ID, events[1].Detail["ticket_id"])
	assert.Equal(t, domain.EventLedgerRelease, events[2].Type)
	assert.Equal(t, domain.Account("market:1"), events[2].Account)
	assert.Equal(t, "alice", events[2].Detail["from"])
}
