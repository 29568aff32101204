// Package ledger implements the dual-currency value ledger. Balances enter
// markets only through escrow and leave only through release, which is what
// keeps the engine's conservation invariant checkable from the event log.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixlabs/helixmarket/internal/domain"
)

// Ledger holds per-account balances in both currencies and the escrow
// tickets debited against proposals. All operations are synchronous and
// atomic: a rejected call mutates nothing.
type Ledger struct {
	mu       sync.Mutex
	balances map[domain.Account]map[domain.Currency]int64
	escrows  map[string]*domain.EscrowTicket

	store  domain.LedgerStore // optional write-through persistence
	sink   domain.EventSink
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStore enables write-through persistence of balances and escrows.
func WithStore(store domain.LedgerStore) Option {
	return func(l *Ledger) { l.store = store }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger emitting events to sink.
func New(sink domain.EventSink, logger *slog.Logger, opts ...Option) *Ledger {
	if sink == nil {
		sink = domain.NopSink
	}
	l := &Ledger{
		balances: make(map[domain.Account]map[domain.Currency]int64),
		escrows:  make(map[string]*domain.EscrowTicket),
		sink:     sink,
		logger:   logger.With(slog.String("component", "ledger")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Deposit credits the account with the given amount.
func (l *Ledger) Deposit(ctx context.Context, account domain.Account, amount domain.CurrencyAmount) error {
	if err := amount.Validate(); err != nil {
		return fmt.Errorf("ledger: deposit: %w", err)
	}

	l.mu.Lock()
	balance := l.credit(account, amount.Currency, amount.Amount)
	l.mu.Unlock()

	l.persistBalance(ctx, account, amount.Currency, balance)
	l.sink.Emit(ctx, domain.Event{
		ID:       uuid.NewString(),
		Type:     domain.EventLedgerDeposit,
		Account:  account,
		Currency: amount.Currency,
		Delta:    amount.Amount,
		Balance:  balance,
		At:       l.now(),
	})
	return nil
}

// Escrow debits the account into a proposal-scoped hold and returns the
// ticket. Fails with ErrInsufficientFunds when the balance cannot cover the
// amount.
func (l *Ledger) Escrow(ctx context.Context, account domain.Account, proposalID int64, amount domain.CurrencyAmount) (domain.EscrowTicket, error) {
	if err := amount.Validate(); err != nil {
		return domain.EscrowTicket{}, fmt.Errorf("ledger: escrow: %w", err)
	}

	l.mu.Lock()
	balance := l.balanceLocked(account, amount.Currency)
	if balance < amount.Amount {
		l.mu.Unlock()
		return domain.EscrowTicket{}, fmt.Errorf(
			"ledger: escrow %d %s for %s: have %d: %w",
			amount.Amount, amount.Currency, account, balance, domain.ErrInsufficientFunds,
		)
	}

	balance = l.credit(account, amount.Currency, -amount.Amount)
	ticket := domain.EscrowTicket{
		ID:         uuid.NewString(),
		Account:    account,
		ProposalID: proposalID,
		Amount:     amount,
		CreatedAt:  l.now(),
	}
	l.escrows[ticket.ID] = &ticket
	l.mu.Unlock()

	l.persistBalance(ctx, account, amount.Currency, balance)
	l.persistEscrow(ctx, ticket)
	l.sink.Emit(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventLedgerEscrow,
		ProposalID: proposalID,
		Account:    account,
		Currency:   amount.Currency,
		Delta:      -amount.Amount,
		Balance:    balance,
		Detail:     map[string]any{"ticket_id": ticket.ID},
		At:         l.now(),
	})
	return ticket, nil
}

// Release moves an escrowed amount to the destination account. Releasing the
// same ticket twice fails with ErrAlreadyReleased.
func (l *Ledger) Release(ctx context.Context, ticketID string, destination domain.Account) error {
	l.mu.Lock()
	ticket, ok := l.escrows[ticketID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("ledger: release ticket %s: %w", ticketID, domain.ErrNotFound)
	}
	if ticket.Released {
		l.mu.Unlock()
		return fmt.Errorf("ledger: release ticket %s: %w", ticketID, domain.ErrAlreadyReleased)
	}

	ticket.Released = true
	releasedAt := l.now()
	ticket.ReleasedAt = &releasedAt
	balance := l.credit(destination, ticket.Amount.Currency, ticket.Amount.Amount)
	snapshot := *ticket
	l.mu.Unlock()

	l.persistBalance(ctx, destination, snapshot.Amount.Currency, balance)
	l.persistEscrow(ctx, snapshot)
	l.sink.Emit(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventLedgerRelease,
		ProposalID: snapshot.ProposalID,
		Account:    destination,
		Currency:   snapshot.Amount.Currency,
		Delta:      snapshot.Amount.Amount,
		Balance:    balance,
		Detail:     map[string]any{"ticket_id": snapshot.ID, "from": string(snapshot.Account)},
		At:         releasedAt,
	})
	return nil
}

// Payout escrows from the proposal treasury holder and releases to the payee
// in one step. It exists for engine-internal transfers (grants and claims)
// where the source is the market itself rather than a user account.
func (l *Ledger) Payout(ctx context.Context, from, to domain.Account, proposalID int64, amount domain.CurrencyAmount) error {
	if amount.Amount == 0 {
		return nil
	}
	ticket, err := l.Escrow(ctx, from, proposalID, amount)
	if err != nil {
		return err
	}
	return l.Release(ctx, ticket.ID, to)
}

// PayoutReserve pays both currency legs in one atomic step. Both legs are
// validated against the source balances before either moves, so a claim can
// never half-pay: on any rejection nothing mutates.
func (l *Ledger) PayoutReserve(ctx context.Context, from, to domain.Account, proposalID int64, amounts domain.Reserve) error {
	legs := []domain.CurrencyAmount{
		{Currency: domain.CurrencyNative, Amount: amounts.Native},
		{Currency: domain.CurrencyToken, Amount: amounts.Token},
	}

	l.mu.Lock()
	for _, leg := range legs {
		if leg.Amount < 0 {
			l.mu.Unlock()
			return fmt.Errorf("ledger: payout %d %s: %w", leg.Amount, leg.Currency, domain.ErrInvalidAmount)
		}
		if have := l.balanceLocked(from, leg.Currency); have < leg.Amount {
			l.mu.Unlock()
			return fmt.Errorf(
				"ledger: payout %d %s from %s: have %d: %w",
				leg.Amount, leg.Currency, from, have, domain.ErrInsufficientFunds,
			)
		}
	}

	now := l.now()
	type movement struct {
		ticket      domain.EscrowTicket
		fromBalance int64
		toBalance   int64
	}
	var moves []movement
	for _, leg := range legs {
		if leg.Amount == 0 {
			continue
		}
		fromBalance := l.credit(from, leg.Currency, -leg.Amount)
		toBalance := l.credit(to, leg.Currency, leg.Amount)
		released := now
		ticket := domain.EscrowTicket{
			ID:         uuid.NewString(),
			Account:    from,
			ProposalID: proposalID,
			Amount:     leg,
			CreatedAt:  now,
			Released:   true,
			ReleasedAt: &released,
		}
		l.escrows[ticket.ID] = &ticket
		moves = append(moves, movement{ticket: ticket, fromBalance: fromBalance, toBalance: toBalance})
	}
	l.mu.Unlock()

	for _, m := range moves {
		currency := m.ticket.Amount.Currency
		l.persistBalance(ctx, from, currency, m.fromBalance)
		l.persistBalance(ctx, to, currency, m.toBalance)
		l.persistEscrow(ctx, m.ticket)
		l.sink.Emit(ctx, domain.Event{
			ID:         uuid.NewString(),
			Type:       domain.EventLedgerEscrow,
			ProposalID: proposalID,
			Account:    from,
			Currency:   currency,
			Delta:      -m.ticket.Amount.Amount,
			Balance:    m.fromBalance,
			Detail:     map[string]any{"ticket_id": m.ticket.ID},
			At:         now,
		})
		l.sink.Emit(ctx, domain.Event{
			ID:         uuid.NewString(),
			Type:       domain.EventLedgerRelease,
			ProposalID: proposalID,
			Account:    to,
			Currency:   currency,
			Delta:      m.ticket.Amount.Amount,
			Balance:    m.toBalance,
			Detail:     map[string]any{"ticket_id": m.ticket.ID, "from": string(from)},
			At:         now,
		})
	}
	return nil
}

// Balance returns the account's balance in the given currency.
func (l *Ledger) Balance(_ context.Context, account domain.Account, currency domain.Currency) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(account, currency)
}

// Balances returns the account's balances in all currencies.
func (l *Ledger) Balances(_ context.Context, account domain.Account) map[domain.Currency]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := map[domain.Currency]int64{
		domain.CurrencyNative: l.balanceLocked(account, domain.CurrencyNative),
		domain.CurrencyToken:  l.balanceLocked(account, domain.CurrencyToken),
	}
	return out
}

// credit adjusts a balance and returns the result. Caller holds the lock.
func (l *Ledger) credit(account domain.Account, currency domain.Currency, delta int64) int64 {
	m, ok := l.balances[account]
	if !ok {
		m = make(map[domain.Currency]int64, 2)
		l.balances[account] = m
	}
	m[currency] += delta
	return m[currency]
}

func (l *Ledger) balanceLocked(account domain.Account, currency domain.Currency) int64 {
	return l.balances[account][currency]
}

// persistBalance writes through to the store. Persistence failures are
// logged, not propagated: the in-memory ledger is authoritative and the
// event log carries enough to reconcile.
func (l *Ledger) persistBalance(ctx context.Context, account domain.Account, currency domain.Currency, balance int64) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveBalance(ctx, account, currency, balance); err != nil {
		l.logger.WarnContext(ctx, "balance persist failed",
			slog.String("account", string(account)),
			slog.String("currency", string(currency)),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Ledger) persistEscrow(ctx context.Context, ticket domain.EscrowTicket) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveEscrow(ctx, ticket); err != nil {
		l.logger.WarnContext(ctx, "escrow persist failed",
			slog.String("ticket_id", ticket.ID),
			slog.String("error", err.Error()),
		)
	}
}
