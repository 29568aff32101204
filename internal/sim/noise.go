// Package sim drives synthetic trading against the engine so demo deploys
// show moving prices without real participants.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/helixlabs/helixmarket/internal/domain"
	"github.com/helixlabs/helixmarket/internal/engine"
	"github.com/helixlabs/helixmarket/internal/ledger"
)

// Config tunes the noise trader.
type Config struct {
	// Interval between trade attempts.
	Interval time.Duration
	// MinTrade/MaxTrade bound the per-trade deposit (inclusive).
	MinTrade int64
	MaxTrade int64
	// Accounts is the number of synthetic trader accounts.
	Accounts int
	// SeedBalance is the opening balance deposited per account and currency.
	SeedBalance int64
}

// Noise is a background trader that places random buys across all open
// proposals using a pool of synthetic accounts.
type Noise struct {
	cfg      Config
	registry *engine.Registry
	ledger   *ledger.Ledger
	logger   *slog.Logger
	rng      *rand.Rand
	accounts []domain.Account
}

// New creates a noise trader. Call Run to start it.
func New(cfg Config, registry *engine.Registry, l *ledger.Ledger, logger *slog.Logger) *Noise {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MinTrade <= 0 {
		cfg.MinTrade = 100
	}
	if cfg.MaxTrade < cfg.MinTrade {
		cfg.MaxTrade = cfg.MinTrade
	}
	if cfg.Accounts <= 0 {
		cfg.Accounts = 8
	}
	if cfg.SeedBalance <= 0 {
		cfg.SeedBalance = 1_000_000
	}

	accounts := make([]domain.Account, cfg.Accounts)
	for i := range accounts {
		accounts[i] = domain.Account(fmt.Sprintf("sim:trader-%02d", i))
	}

	return &Noise{
		cfg:      cfg,
		registry: registry,
		ledger:   l,
		logger:   logger.With(slog.String("component", "sim")),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		accounts: accounts,
	}
}

// Run seeds the trader accounts and then places one random trade per tick
// until the context is cancelled.
func (n *Noise) Run(ctx context.Context) error {
	if err := n.seedAccounts(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(n.cfg.Interval)
	defer ticker.Stop()

	n.logger.InfoContext(ctx, "noise trader started",
		slog.Int("accounts", len(n.accounts)),
		slog.Duration("interval", n.cfg.Interval),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n.tick(ctx)
		}
	}
}

func (n *Noise) seedAccounts(ctx context.Context) error {
	for _, acct := range n.accounts {
		for _, cur := range []domain.Currency{domain.CurrencyNative, domain.CurrencyToken} {
			err := n.ledger.Deposit(ctx, acct, domain.CurrencyAmount{Currency: cur, Amount: n.cfg.SeedBalance})
			if err != nil {
				return fmt.Errorf("sim: seed account %s: %w", acct, err)
			}
		}
	}
	return nil
}

// tick places one random buy on one random open proposal. All rejections are
// expected in normal operation (market resolved, trader broke) and only
// logged at debug.
func (n *Noise) tick(ctx context.Context) {
	proposals, err := n.registry.List(ctx, domain.ListOpts{})
	if err != nil {
		n.logger.WarnContext(ctx, "list proposals failed", slog.String("error", err.Error()))
		return
	}

	open := proposals[:0]
	for _, p := range proposals {
		if !p.Resolved() {
			open = append(open, p)
		}
	}
	if len(open) == 0 {
		return
	}

	p := open[n.rng.Intn(len(open))]
	side := domain.SideYes
	if n.rng.Intn(2) == 1 {
		side = domain.SideNo
	}
	currency := domain.CurrencyNative
	if n.rng.Intn(2) == 1 {
		currency = domain.CurrencyToken
	}
	amount := n.cfg.MinTrade
	if spread := n.cfg.MaxTrade - n.cfg.MinTrade; spread > 0 {
		amount += n.rng.Int63n(spread + 1)
	}
	account := n.accounts[n.rng.Intn(len(n.accounts))]

	result, err := n.registry.Buy(ctx, engine.BuyRequest{
		ProposalID: p.ID,
		Account:    account,
		Side:       side,
		Amount:     amount,
		Currency:   currency,
	})
	if err != nil {
		if errors.Is(err, domain.ErrMarketClosed) || errors.Is(err, domain.ErrInsufficientFunds) {
			n.logger.DebugContext(ctx, "trade skipped",
				slog.Int64("proposal_id", p.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		n.logger.WarnContext(ctx, "trade failed",
			slog.Int64("proposal_id", p.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	n.logger.DebugContext(ctx, "trade placed",
		slog.Int64("proposal_id", p.ID),
		slog.String("account", string(account)),
		slog.String("side", string(side)),
		slog.Int64("amount", amount),
		slog.Float64("price_yes", result.PriceYes),
	)
}
