package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helixlabs/helixmarket/internal/domain"
)

// ProposalStore implements domain.ProposalStore using PostgreSQL. The full
// proposal snapshot lives in a JSONB column; state and resolution time are
// lifted into columns for the sweep queries.
type ProposalStore struct {
	pool *pgxpool.Pool
}

// NewProposalStore creates a new ProposalStore backed by the given pool.
func NewProposalStore(pool *pgxpool.Pool) *ProposalStore {
	return &ProposalStore{pool: pool}
}

// proposalDoc is the durable snapshot. The API serialization of a Proposal
// hides positions, claim guards, price history, and the resolution proof;
// the store must keep all of them or a restart strands claimable funds, so
// they ride alongside the embedded document under their own keys.
type proposalDoc struct {
	*domain.Proposal
	Positions       map[domain.Account]*domain.Position `json:"positions,omitempty"`
	Claimed         map[domain.Account]bool             `json:"claimed,omitempty"`
	History         []domain.PricePoint                 `json:"history,omitempty"`
	ResolutionProof []byte                              `json:"resolution_proof,omitempty"`
}

func encodeProposal(p *domain.Proposal) ([]byte, error) {
	return json.Marshal(proposalDoc{
		Proposal:        p,
		Positions:       p.Positions,
		Claimed:         p.Claimed,
		History:         p.History,
		ResolutionProof: p.ResolutionProof,
	})
}

func decodeProposal(data []byte) (*domain.Proposal, error) {
	d := proposalDoc{Proposal: &domain.Proposal{}}
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	p := d.Proposal
	p.Positions = d.Positions
	p.Claimed = d.Claimed
	p.History = d.History
	p.ResolutionProof = d.ResolutionProof
	if p.Positions == nil {
		p.Positions = make(map[domain.Account]*domain.Position)
	}
	if p.Claimed == nil {
		p.Claimed = make(map[domain.Account]bool)
	}
	return p, nil
}

// Save upserts the proposal snapshot.
func (s *ProposalStore) Save(ctx context.Context, p *domain.Proposal) error {
	doc, err := encodeProposal(p)
	if err != nil {
		return fmt.Errorf("postgres: marshal proposal %d: %w", p.ID, err)
	}

	const query = `
		INSERT INTO proposals (id, state, researcher_identity, resolved_at, doc, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			state               = EXCLUDED.state,
			researcher_identity = EXCLUDED.researcher_identity,
			resolved_at         = EXCLUDED.resolved_at,
			doc                 = EXCLUDED.doc,
			updated_at          = NOW()`

	_, err = s.pool.Exec(ctx, query,
		p.ID, string(p.State), p.ResearcherIdentity, p.ResolvedAt, doc,
	)
	if err != nil {
		return fmt.Errorf("postgres: save proposal %d: %w", p.ID, err)
	}
	return nil
}

// GetByID returns the proposal snapshot for the given id.
func (s *ProposalStore) GetByID(ctx context.Context, id int64) (*domain.Proposal, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT doc, researcher_identity FROM proposals WHERE id = $1", id)

	p, err := scanProposal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: proposal %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get proposal %d: %w", id, err)
	}
	return p, nil
}

// List returns proposal snapshots ordered by id.
func (s *ProposalStore) List(ctx context.Context, opts domain.ListOpts) ([]*domain.Proposal, error) {
	query := "SELECT doc, researcher_identity FROM proposals ORDER BY id"
	args := []any{}
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
		return nil, fmt.Errorf("postgres: list proposals: %w", err)
	}
	defer rows.Close()

	return collectProposals(rows)
}

// ListResolvedBefore returns resolved proposals whose resolution time is
// strictly before the cutoff.
func (s *ProposalStore) ListResolvedBefore(ctx context.Context, before time.Time) ([]*domain.Proposal, error) {
	const query = `
		SELECT doc, researcher_identity FROM proposals
		WHERE state = $1 AND resolved_at < $2
		ORDER BY id`

	rows, err := s.pool.Query(ctx, query, string(domain.StateResolved), before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved proposals: %w", err)
	}
	defer rows.Close()

	return collectProposals(rows)
}

// NextID returns the next proposal identifier from the backing sequence.
func (s *ProposalStore) NextID(ctx context.Context) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, "SELECT nextval('proposal_ids')").Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: next proposal id: %w", err)
	}
	return id, nil
}

// scanProposal decodes one proposal row. The researcher identity is stored
// in its own column because the JSON snapshot deliberately omits it.
func scanProposal(row pgx.Row) (*domain.Proposal, error) {
	var doc []byte
	var identity string
	if err := row.Scan(&doc, &identity); err != nil {
		return nil, err
	}

	p, err := decodeProposal(doc)
	if err != nil {
		return nil, fmt.Errorf("unmarshal proposal: %w", err)
	}
	p.ResearcherIdentity = identity
	return p, nil
}

func collectProposals(rows pgx.Rows) ([]*domain.Proposal, error) {
	var out []*domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan proposal: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate proposals: %w", err)
	}
	return out, nil
}
