package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixlabs/helixmarket/internal/domain"
)

var parity = domain.ConversionRate{Num: 1, Den: 1, Version: 1}

func TestPriceEmptyPool(t *testing.T) {
	var pool domain.OutcomePool
	assert.Equal(t, 0.5, Price(pool, domain.SideYes, parity))
	assert.Equal(t, 0.5, Price(pool, domain.SideNo, parity))
}

func TestPriceRatio(t *testing.T) {
	tests := []struct {
		name    string
		pool    domain.OutcomePool
		rate    domain.ConversionRate
		wantYes float64
	}{
		{
			name: "single currency",
			pool: domain.OutcomePool{
				Yes: domain.Reserve{Native: 60000},
				No:  domain.Reserve{Native: 40000},
			},
			rate:    parity,
			wantYes: 0.6,
		},
		{
			name: "mixed currencies at parity",
			pool: domain.OutcomePool{
				Yes: domain.Reserve{Native: 65000},
				No:  domain.Reserve{Native: 30000, Token: 5000},
			},
			rate:    parity,
			wantYes: 0.65,
		},
		{
			name: "native worth double",
			pool: domain.OutcomePool{
				Yes: domain.Reserve{Native: 1000},
				No:  domain.Reserve{Token: 2000},
			},
			rate:    domain.ConversionRate{Num: 2, Den: 1, Version: 2},
			wantYes: 0.5,
		},
		{
			name: "seed only",
			pool: domain.OutcomePool{
				Yes: domain.Reserve{Token: 300},
				No:  domain.Reserve{Token: 700},
			},
			rate:    parity,
			wantYes: 0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yes := Price(tt.pool, domain.SideYes, tt.rate)
			no := Price(tt.pool, domain.SideNo, tt.rate)
			assert.InDelta(t, tt.wantYes, yes, 1e-9)
			assert.InDelta(t, 1.0, yes+no, 1e-9, "complementary prices must sum to 1")
		})
	}
}

func TestBuyShiftsPriceLinearly(t *testing.T) {
	pool := domain.OutcomePool{
		Yes: domain.Reserve{Native: 65000},
		No:  domain.Reserve{Native: 35000},
	}

	pool = applyBuy(pool, domain.SideYes, domain.CurrencyNative, 5000)

	assert.Equal(t, int64(70000), pool.Yes.Native)
	assert.Equal(t, int64(35000), pool.No.Native)
	assert.InDelta(t, 70000.0/105000.0, Price(pool, domain.SideYes, parity), 1e-9)
}

func TestApplyBuyLeavesOtherSideUntouched(t *testing.T) {
	pool := domain.OutcomePool{
		Yes: domain.Reserve{Token: 100},
		No:  domain.Reserve{Token: 100},
	}

	got := applyBuy(pool, domain.SideYes, domain.CurrencyNative, 50)
	assert.Equal(t, int64(50), got.Yes.Native)
	assert.Equal(t, int64(100), got.Yes.Token)
	assert.Equal(t, domain.Reserve{Token: 100}, got.No)

	// Value semantics: the input pool is unchanged.
	assert.Equal(t, int64(0), pool.Yes.Native)
}

func TestPayoutForTruncation(t *testing.T) {
	tests := []struct {
		name                            string
		shares, treasury, totalWinning  int64
		want                            int64
	}{
		{"pro rata exact", 7000, 100000, 70000, 10000},
		{"pro rata rest", 63000, 100000, 70000, 90000},
		{"truncates toward zero", 1, 100, 3, 33},
		{"no shares", 0, 100, 3, 0},
		{"no winners", 10, 100, 0, 0},
		{"empty treasury", 10, 0, 30, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, payoutFor(tt.shares, tt.treasury, tt.totalWinning))
		})
	}
}

func TestWinningShares(t *testing.T) {
	p := &domain.Proposal{
		Positions: map[domain.Account]*domain.Position{
			"a": {Yes: domain.Reserve{Native: 100}, No: domain.Reserve{Token: 50}},
			"b": {Yes: domain.Reserve{Native: 200, Token: 10}},
			"c": {No: domain.Reserve{Native: 70}},
		},
	}

	yes := winningShares(p, true)
	assert.Equal(t, domain.Reserve{Native: 300, Token: 10}, yes)

	no := winningShares(p, false)
	assert.Equal(t, domain.Reserve{Native: 70, Token: 50}, no)
}
