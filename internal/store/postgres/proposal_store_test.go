package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixlabs/helixmarket/internal/domain"
)

// The API serialization of a Proposal hides positions, claim guards, price
// history, and the resolution proof. The store snapshot must keep every one
// of them: a restart that drops positions leaves the treasury stranded in
// the market account with nobody able to claim it.
func TestProposalDocRoundTrip(t *testing.T) {
	outcome := true
	resolvedAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	p := &domain.Proposal{
		ID:         7,
		Title:      "Longevity compound trial",
		Researcher: "0xresearcher",
		State:      domain.StateResolved,
		Pool: domain.OutcomePool{
			Yes: domain.Reserve{Native: 70000},
			No:  domain.Reserve{Native: 30000},
		},
		Treasury: domain.Reserve{Native: 100000},
		Outcome:  &outcome,
		Settlement: &domain.Settlement{
			Treasury:      domain.Reserve{Native: 100000},
			WinningShares: domain.Reserve{Native: 70000},
			Remaining:     domain.Reserve{Native: 100000},
		},
		Positions: map[domain.Account]*domain.Position{
			"0xalice": {
				Account: "0xalice",
				Yes:     domain.Reserve{Native: 7000},
			},
			"0xbob": {
				Account: "0xbob",
				Yes:     domain.Reserve{Native: 63000},
				No:      domain.Reserve{Native: 30000},
			},
		},
		Claimed: map[domain.Account]bool{"0xbob": true},
		History: []domain.PricePoint{
			{Time: resolvedAt.Add(-time.Hour), PriceYes: 0.5, PriceNo: 0.5},
			{Time: resolvedAt, PriceYes: 0.7, PriceNo: 0.3},
		},
		ResolutionProof: []byte{0xde, 0xad, 0xbe, 0xef},
		CreatedAt:       resolvedAt.Add(-24 * time.Hour),
		ResolvedAt:      &resolvedAt,
	}

	doc, err := encodeProposal(p)
	require.NoError(t, err)

	got, err := decodeProposal(doc)
	require.NoError(t, err)

	require.Len(t, got.Positions, 2)
	assert.Equal(t, int64(7000), got.Positions["0xalice"].Yes.Native)
	assert.Equal(t, int64(63000), got.Positions["0xbob"].Yes.Native)
	assert.Equal(t, int64(30000), got.Positions["0xbob"].No.Native)

	assert.True(t, got.Claimed["0xbob"])
	assert.False(t, got.Claimed["0xalice"])

	require.Len(t, got.History, 2)
	assert.InDelta(t, 0.7, got.History[1].PriceYes, 1e-9)

	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, got.ResolutionProof)

	require.NotNil(t, got.Settlement)
	assert.Equal(t, int64(70000), got.Settlement.WinningShares.Native)
	assert.Equal(t, domain.StateResolved, got.State)
	require.NotNil(t, got.Outcome)
	assert.True(t, *got.Outcome)
}

func TestProposalDocEmptyMaps(t *testing.T) {
	doc, err := encodeProposal(&domain.Proposal{ID: 1, State: domain.StateCreated})
	require.NoError(t, err)

	got, err := decodeProposal(doc)
	require.NoError(t, err)

	// Decoded proposals are always safe to mutate.
	assert.NotNil(t, got.Positions)
	assert.NotNil(t, got.Claimed)
}
