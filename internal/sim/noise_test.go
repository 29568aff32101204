package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixlabs/helixmarket/internal/domain"
	"github.com/helixlabs/helixmarket/internal/engine"
	"github.com/helixlabs/helixmarket/internal/ledger"
	"github.com/helixlabs/helixmarket/internal/oracle"
)

func newTestEngine(t *testing.T) (*engine.Registry, *ledger.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lg := ledger.New(nil, logger)
	trigger := &engine.ElapsedGate{Window: time.Hour, Threshold: 0.6}
	reg := engine.NewRegistry(
		engine.Config{Rate: domain.ConversionRate{Num: 1, Den: 1, Version: 1}},
		lg, oracle.StaticGateway{}, trigger, nil, logger,
	)
	return reg, lg
}

func TestNoiseDefaults(t *testing.T) {
	reg, lg := newTestEngine(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	n := New(Config{}, reg, lg, logger)
	assert.Equal(t, 2*time.Second, n.cfg.Interval)
	assert.Equal(t, int64(100), n.cfg.MinTrade)
	assert.Equal(t, int64(100), n.cfg.MaxTrade)
	assert.Len(t, n.accounts, 8)
	assert.Equal(t, int64(1_000_000), n.cfg.SeedBalance)
}

func TestNoisePlacesTradesUntilCancelled(t *testing.T) {
	reg, lg := newTestEngine(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	p, err := reg.CreateProposal(ctx, engine.CreateRequest{
		Title:      "demo market",
		Researcher: "0xresearcher",
	})
	require.NoError(t, err)

	n := New(Config{
		Interval:    time.Millisecond,
		MinTrade:    10,
		MaxTrade:    20,
		Accounts:    3,
		SeedBalance: 10_000,
	}, reg, lg, logger)

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	err = n.Run(runCtx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// Accounts were seeded in both currencies.
	balances := lg.Balances(ctx, n.accounts[0])
	assert.LessOrEqual(t, balances[domain.CurrencyNative], int64(10_000))
	assert.Equal(t, int64(10_000), balances[domain.CurrencyToken]+tradedToken(t, reg, ctx, p.ID, n))

	// Trades moved money into the market.
	got, err := reg.Get(ctx, p.ID)
	require.NoError(t, err)
	total := got.Treasury.Native + got.Treasury.Token
	assert.Positive(t, total)
}

// tradedToken sums what the account spent in token units so the seed balance
// can be reconciled.
func tradedToken(t *testing.T, reg *engine.Registry, ctx context.Context, id int64, n *Noise) int64 {
	t.Helper()
	got, err := reg.Get(ctx, id)
	require.NoError(t, err)
	var spent int64
	for acct, pos := range got.Positions {
		if acct == n.accounts[0] {
			spent += pos.Yes.Token + pos.No.Token
		}
	}
	return spent
}
