package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ProposalStore persists proposal records, including positions and claims.
// Mutations are atomic per proposal; Save writes the full current snapshot.
type ProposalStore interface {
	Save(ctx context.Context, p *Proposal) error
	GetByID(ctx context.Context, id int64) (*Proposal, error)
	List(ctx context.Context, opts ListOpts) ([]*Proposal, error)
	// ListResolvedBefore returns resolved, not-yet-closed proposals whose
	// resolution time is strictly before the cutoff. Used by the close sweep.
	ListResolvedBefore(ctx context.Context, before time.Time) ([]*Proposal, error)
	// NextID returns the next monotonically assigned proposal identifier.
	NextID(ctx context.Context) (int64, error)
}

// LedgerStore persists account balances and escrow tickets.
type LedgerStore interface {
	SaveBalance(ctx context.Context, account Account, currency Currency, balance int64) error
	GetBalance(ctx context.Context, account Account, currency Currency) (int64, error)
	ListBalances(ctx context.Context, account Account) (map[Currency]int64, error)
	SaveEscrow(ctx context.Context, e EscrowTicket) error
}

// EscrowTicket records a debit held against a proposal until release.
type EscrowTicket struct {
	ID         string
	Account    Account
	ProposalID int64
	Amount     CurrencyAmount
	Released   bool
	CreatedAt  time.Time
	ReleasedAt *time.Time
}

// EventStore persists the append-only audit log.
type EventStore interface {
	Append(ctx context.Context, ev Event) error
	ListByProposal(ctx context.Context, proposalID int64, opts ListOpts) ([]Event, error)
}
