package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helixlabs/helixmarket/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// SaveBalance upserts the balance for one account and currency.
func (s *LedgerStore) SaveBalance(ctx context.Context, account domain.Account, currency domain.Currency, balance int64) error {
	const query = `
		INSERT INTO balances (account, currency, balance, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (account, currency) DO UPDATE SET
			balance    = EXCLUDED.balance,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, string(account), string(currency), balance)
	if err != nil {
		return fmt.Errorf("postgres: save balance %s/%s: %w", account, currency, err)
	}
	return nil
}

// GetBalance returns the stored balance, zero when no row exists.
func (s *LedgerStore) GetBalance(ctx context.Context, account domain.Account, currency domain.Currency) (int64, error) {
	const query = `
		SELECT COALESCE(
			(SELECT balance FROM balances WHERE account = $1 AND currency = $2), 0)`

	var balance int64
	if err := s.pool.QueryRow(ctx, query, string(account), string(currency)).Scan(&balance); err != nil {
		return 0, fmt.Errorf("postgres: get balance %s/%s: %w", account, currency, err)
	}
	return balance, nil
}

// ListBalances returns every currency balance held by the account.
func (s *LedgerStore) ListBalances(ctx context.Context, account domain.Account) (map[domain.Currency]int64, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT currency, balance FROM balances WHERE account = $1", string(account))
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances %s: %w", account, err)
	}
	defer rows.Close()

	out := make(map[domain.Currency]int64, 2)
	for rows.Next() {
		var currency string
		var balance int64
		if err := rows.Scan(&currency, &balance); err != nil {
			return nil, fmt.Errorf("postgres: scan balance %s: %w", account, err)
		}
		out[domain.Currency(currency)] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate balances %s: %w", account, err)
	}
	return out, nil
}

// SaveEscrow upserts an escrow ticket.
func (s *LedgerStore) SaveEscrow(ctx context.Context, e domain.EscrowTicket) error {
	const query = `
		INSERT INTO escrows (id, account, proposal_id, currency, amount, released, created_at, released_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			released    = EXCLUDED.released,
			released_at = EXCLUDED.released_at`

	_, err := s.pool.Exec(ctx, query,
		e.ID, string(e.Account), e.ProposalID,
		string(e.Amount.Currency), e.Amount.Amount,
		e.Released, e.CreatedAt, e.ReleasedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save escrow %s: %w", e.ID, err)
	}
	return nil
}
