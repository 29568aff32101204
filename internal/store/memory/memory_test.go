package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixlabs/helixmarket/internal/domain"
)

func TestProposalStoreSaveAndGet(t *testing.T) {
	s := NewProposalStore()
	ctx := context.Background()

	_, err := s.GetByID(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	p := &domain.Proposal{
		ID:    3,
		Title: "CRISPR screen replication",
		State: domain.StateCreated,
		Positions: map[domain.Account]*domain.Position{
			"alice": {Account: "alice", Yes: domain.Reserve{Native: 10}},
		},
	}
	require.NoError(t, s.Save(ctx, p))

	got, err := s.GetByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "CRISPR screen replication", got.Title)

	// Stored copy is isolated from caller mutations in both directions.
	p.Title = "changed"
	p.Positions["alice"].Yes.Native = 99
	got.Positions["alice"].Yes.Native = 77

	again, err := s.GetByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "CRISPR screen replication", again.Title)
	assert.Equal(t, int64(10), again.Positions["alice"].Yes.Native)

	// Save tracks the id watermark for NextID.
	id, err := s.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)
	id, err = s.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
}

func TestProposalStoreList(t *testing.T) {
	s := NewProposalStore()
	ctx := context.Background()
	for i := int64(0); i < 5; i++ {
		require.NoError(t, s.Save(ctx, &domain.Proposal{ID: i}))
	}

	all, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, int64(0), all[0].ID)
	assert.Equal(t, int64(4), all[4].ID)

	page, err := s.List(ctx, domain.ListOpts{Offset: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].ID)
	assert.Equal(t, int64(3), page[1].ID)

	none, err := s.List(ctx, domain.ListOpts{Offset: 9})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestProposalStoreListResolvedBefore(t *testing.T) {
	s := NewProposalStore()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	early := base.Add(-time.Hour)
	late := base.Add(time.Hour)
	require.NoError(t, s.Save(ctx, &domain.Proposal{ID: 1, State: domain.StateResolved, ResolvedAt: &early}))
	require.NoError(t, s.Save(ctx, &domain.Proposal{ID: 2, State: domain.StateResolved, ResolvedAt: &late}))
	require.NoError(t, s.Save(ctx, &domain.Proposal{ID: 3, State: domain.StateClosed, ResolvedAt: &early}))
	require.NoError(t, s.Save(ctx, &domain.Proposal{ID: 4, State: domain.StateCreated}))

	out, err := s.ListResolvedBefore(ctx, base)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].ID)
}

func TestLedgerStore(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()

	b, err := s.GetBalance(ctx, "alice", domain.CurrencyNative)
	require.NoError(t, err)
	assert.Zero(t, b, "absent balances read as zero")

	require.NoError(t, s.SaveBalance(ctx, "alice", domain.CurrencyNative, 100))
	require.NoError(t, s.SaveBalance(ctx, "alice", domain.CurrencyNative, 60))
	require.NoError(t, s.SaveBalance(ctx, "alice", domain.CurrencyToken, 5))

	b, err = s.GetBalance(ctx, "alice", domain.CurrencyNative)
	require.NoError(t, err)
	assert.Equal(t, int64(60), b, "SaveBalance overwrites, not accumulates")

	all, err := s.ListBalances(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[domain.Currency]int64{
		domain.CurrencyNative: 60,
		domain.CurrencyToken:  5,
	}, all)

	require.NoError(t, s.SaveEscrow(ctx, domain.EscrowTicket{ID: "t1", Account: "alice"}))
	require.NoError(t, s.SaveEscrow(ctx, domain.EscrowTicket{ID: "t1", Account: "alice", Released: true}))
}

func TestEventStore(t *testing.T) {
	s := NewEventStore()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Append(ctx, domain.Event{
			ID:         string(rune('a' + i)),
			Type:       domain.EventTrade,
			ProposalID: int64(i % 2),
		}))
	}

	evs, err := s.ListByProposal(ctx, 0, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "a", evs[0].ID)
	assert.Equal(t, "c", evs[1].ID)

	page, err := s.ListByProposal(ctx, 1, domain.ListOpts{Offset: 1, Limit: 5})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "d", page[0].ID)

	assert.Len(t, s.All(), 4)
}
