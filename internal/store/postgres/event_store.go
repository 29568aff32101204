package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helixlabs/helixmarket/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts one event. Duplicate ids are ignored so sink retries stay
// idempotent.
func (s *EventStore) Append(ctx context.Context, ev domain.Event) error {
	var detail []byte
	if len(ev.Detail) > 0 {
		var err error
		detail, err = json.Marshal(ev.Detail)
		if err != nil {
			return fmt.Errorf("postgres: marshal event detail %s: %w", ev.ID, err)
		}
	}

	const query = `
		INSERT INTO events (id, type, proposal_id, account, currency, delta, balance, detail, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		ev.ID, string(ev.Type), ev.ProposalID,
		string(ev.Account), string(ev.Currency),
		ev.Delta, ev.Balance, detail, ev.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", ev.ID, err)
	}
	return nil
}

// ListByProposal returns the events for one proposal in insertion order.
func (s *EventStore) ListByProposal(ctx context.Context, proposalID int64, opts domain.ListOpts) ([]domain.Event, error) {
	query := `
		SELECT id, type, proposal_id, account, currency, delta, balance, detail, at
		FROM events WHERE proposal_id = $1 ORDER BY at, id`
	args := []any{proposalID}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events for proposal %d: %w", proposalID, err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var ev domain.Event
		var evType, account, currency string
		var detail []byte
		if err := rows.Scan(
			&ev.ID, &evType, &ev.ProposalID, &account, &currency,
			&ev.Delta, &ev.Balance, &detail, &ev.At,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Type = domain.EventType(evType)
		ev.Account = domain.Account(account)
		ev.Currency = domain.Currency(currency)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &ev.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event detail %s: %w", ev.ID, err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate events: %w", err)
	}
	return out, nil
}
