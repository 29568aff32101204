// Package memory implements the domain store interfaces with in-process
// maps. It backs the simulation mode and the test suites; the postgres
// package provides the durable equivalents behind the same interfaces.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/helixlabs/helixmarket/internal/domain"
)

// ProposalStore implements domain.ProposalStore in memory.
type ProposalStore struct {
	mu        sync.RWMutex
	proposals map[int64]*domain.Proposal
	nextID    int64
}

// NewProposalStore creates an empty ProposalStore.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{proposals: make(map[int64]*domain.Proposal)}
}

// Save stores a deep copy of the proposal snapshot.
func (s *ProposalStore) Save(_ context.Context, p *domain.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ID] = clone(p)
	if p.ID >= s.nextID {
		s.nextID = p.ID + 1
	}
	return nil
}

// GetByID returns a copy of the stored proposal.
func (s *ProposalStore) GetByID(_ context.Context, id int64) (*domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, fmt.Errorf("memory: proposal %d: %w", id, domain.ErrNotFound)
	}
	return clone(p), nil
}

// List returns copies of stored proposals ordered by id.
func (s *ProposalStore) List(_ context.Context, opts domain.ListOpts) ([]*domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.proposals))
	for id := range s.proposals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if opts.Offset > 0 {
		if opts.Offset >= len(ids) {
			return nil, nil
		}
		ids = ids[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(ids) {
		ids = ids[:opts.Limit]
	}

	out := make([]*domain.Proposal, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(s.proposals[id]))
	}
	return out, nil
}

// ListResolvedBefore implements domain.ProposalStore.
func (s *ProposalStore) ListResolvedBefore(_ context.Context, before time.Time) ([]*domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Proposal
	for _, p := range s.proposals {
		if p.State == domain.StateResolved && p.ResolvedAt != nil && p.ResolvedAt.Before(before) {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// NextID implements domain.ProposalStore.
func (s *ProposalStore) NextID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	return id, nil
}

func clone(p *domain.Proposal) *domain.Proposal {
	cp := *p
	cp.Positions = make(map[domain.Account]*domain.Position, len(p.Positions))
	for a, pos := range p.Positions {
		posCopy := *pos
		cp.Positions[a] = &posCopy
	}
	cp.Claimed = make(map[domain.Account]bool, len(p.Claimed))
	for a, c := range p.Claimed {
		cp.Claimed[a] = c
	}
	cp.History = append([]domain.PricePoint(nil), p.History...)
	if p.Settlement != nil {
		st := *p.Settlement
		cp.Settlement = &st
	}
	cp.ResolutionProof = append([]byte(nil), p.ResolutionProof...)
	return &cp
}

// LedgerStore implements domain.LedgerStore in memory.
type LedgerStore struct {
	mu       sync.RWMutex
	balances map[domain.Account]map[domain.Currency]int64
	escrows  map[string]domain.EscrowTicket
}

// NewLedgerStore creates an empty LedgerStore.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		balances: make(map[domain.Account]map[domain.Currency]int64),
		escrows:  make(map[string]domain.EscrowTicket),
	}
}

// SaveBalance implements domain.LedgerStore.
func (s *LedgerStore) SaveBalance(_ context.Context, account domain.Account, currency domain.Currency, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.balances[account]
	if !ok {
		m = make(map[domain.Currency]int64, 2)
		s.balances[account] = m
	}
	m[currency] = balance
	return nil
}

// GetBalance implements domain.LedgerStore.
func (s *LedgerStore) GetBalance(_ context.Context, account domain.Account, currency domain.Currency) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[account][currency], nil
}

// ListBalances implements domain.LedgerStore.
func (s *LedgerStore) ListBalances(_ context.Context, account domain.Account) (map[domain.Currency]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.Currency]int64, 2)
	for c, b := range s.balances[account] {
		out[c] = b
	}
	return out, nil
}

// SaveEscrow implements domain.LedgerStore.
func (s *LedgerStore) SaveEscrow(_ context.Context, e domain.EscrowTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escrows[e.ID] = e
	return nil
}

// EventStore implements domain.EventStore in memory.
type EventStore struct {
	mu     sync.RWMutex
	events []domain.Event
}

// NewEventStore creates an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Append implements domain.EventStore.
func (s *EventStore) Append(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// ListByProposal implements domain.EventStore.
func (s *EventStore) ListByProposal(_ context.Context, proposalID int64, opts domain.ListOpts) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, ev := range s.events {
		if ev.ProposalID == proposalID {
			out = append(out, ev)
		}
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// All returns a copy of every recorded event. Test helper.
func (s *EventStore) All() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Event(nil), s.events...)
}
