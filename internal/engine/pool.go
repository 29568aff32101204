// Package engine implements the market-making and settlement core: the
// constant-sum outcome pool, the proposal lifecycle state machine, the
// funding-trigger policies, and the registry that serializes all mutating
// operations per proposal.
package engine

import (
	"github.com/helixlabs/helixmarket/internal/domain"
)

// poolValue combines a reserve's two currencies into token units using the
// configured conversion rate. Used only for pricing and the funding trigger;
// minted shares and payouts never cross currencies.
func poolValue(r domain.Reserve, rate domain.ConversionRate) int64 {
	return r.Token + rate.TokenValue(r.Native)
}

// Price returns the ratio price of one side in [0,1]:
// reserve[side] / (reserve[yes] + reserve[no]), valued in token units.
// An empty pool prices both sides at 0.5.
func Price(pool domain.OutcomePool, side domain.Side, rate domain.ConversionRate) float64 {
	yes := poolValue(pool.Yes, rate)
	no := poolValue(pool.No, rate)
	total := yes + no
	if total == 0 {
		return 0.5
	}
	if side == domain.SideYes {
		return float64(yes) / float64(total)
	}
	return float64(no) / float64(total)
}

// applyBuy increases the bought side's reserve in the deposit currency and
// leaves the other side untouched. Constant-sum: no slippage bound is needed
// because price impact is linear in trade size relative to total reserve.
func applyBuy(pool domain.OutcomePool, side domain.Side, currency domain.Currency, amount int64) domain.OutcomePool {
	if side == domain.SideYes {
		pool.Yes = pool.Yes.Add(currency, amount)
	} else {
		pool.No = pool.No.Add(currency, amount)
	}
	return pool
}

// winningShares sums the outcome-side shares across all positions, per
// currency. Frozen into the settlement snapshot at resolution.
func winningShares(p *domain.Proposal, outcome bool) domain.Reserve {
	var total domain.Reserve
	for _, pos := range p.Positions {
		side := pos.No
		if outcome {
			side = pos.Yes
		}
		total.Native += side.Native
		total.Token += side.Token
	}
	return total
}

// payoutFor computes one winner's pro-rata payout in a single currency:
// shares * treasury / totalWinningShares, with integer division truncating
// toward zero. The truncated dust stays in Settlement.Remaining.
func payoutFor(shares, treasury, totalWinning int64) int64 {
	if shares <= 0 || totalWinning <= 0 || treasury <= 0 {
		return 0
	}
	return shares * treasury / totalWinning
}
