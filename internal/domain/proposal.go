package domain

import "time"

// ProposalState is the lifecycle state of a proposal. Transitions are
// monotonic; no state is ever revisited. Funding release is a flag rather
// than a state because trading continues after the grant is paid.
type ProposalState string

const (
	StateCreated      ProposalState = "created"
	StateDataAnchored ProposalState = "data_anchored"
	StateIPMinted     ProposalState = "ip_minted"
	StateResolved     ProposalState = "resolved"
	StateClosed       ProposalState = "closed"
)

// rank orders states for monotonicity checks.
func (s ProposalState) rank() int {
	switch s {
	case StateCreated:
		return 0
	case StateDataAnchored:
		return 1
	case StateIPMinted:
		return 2
	case StateResolved:
		return 3
	case StateClosed:
		return 4
	default:
		return -1
	}
}

// Before reports whether s strictly precedes other in the lifecycle.
func (s ProposalState) Before(other ProposalState) bool {
	return s.rank() < other.rank()
}

// Reserve holds one quantity per currency. The two currencies are tracked
// independently; they are only combined through the configured conversion
// rate, and only for pricing.
type Reserve struct {
	Native int64 `json:"native"`
	Token  int64 `json:"token"`
}

// Get returns the amount for the given currency.
func (r Reserve) Get(c Currency) int64 {
	if c == CurrencyNative {
		return r.Native
	}
	return r.Token
}

// Add returns a copy with amount added to the given currency.
func (r Reserve) Add(c Currency, amount int64) Reserve {
	if c == CurrencyNative {
		r.Native += amount
	} else {
		r.Token += amount
	}
	return r
}

// IsZero reports whether both currencies are zero.
func (r Reserve) IsZero() bool {
	return r.Native == 0 && r.Token == 0
}

// OutcomePool is the constant-sum AMM state for one proposal: two virtual
// reserves per currency. A buy of side S for amount A increases reserve[S]
// by A and leaves the other side unchanged, so price is a simple ratio.
type OutcomePool struct {
	Yes Reserve `json:"yes"`
	No  Reserve `json:"no"`
}

// Side returns the reserve for the given outcome side.
func (p OutcomePool) Side(s Side) Reserve {
	if s == SideYes {
		return p.Yes
	}
	return p.No
}

// Position tracks one account's outcome shares per currency of deposit.
// Shares are minted 1:1 per unit deposited, so a Reserve doubles as the
// per-currency share count.
type Position struct {
	Account   Account   `json:"account"`
	Yes       Reserve   `json:"yes"`
	No        Reserve   `json:"no"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PricePoint is one sampled price observation, recorded on every trade and
// consumed by the funding-trigger policy and the UI chart feed.
type PricePoint struct {
	Time     time.Time `json:"time"`
	PriceYes float64   `json:"price_yes"`
	PriceNo  float64   `json:"price_no"`
}

// Proposal is the central entity: immutable metadata, the lifecycle state
// machine, the AMM pool, the claimable treasury, and per-account positions.
type Proposal struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Researcher Account `json:"researcher"`
	AuditURL   string  `json:"audit_url"`

	// Description and TrustScore are display metadata carried from creation.
	Description string `json:"description,omitempty"`
	TrustScore  int    `json:"trust_score,omitempty"`

	// ResearcherIdentity is the out-of-band identity token registered at
	// creation. Any buyer presenting the same token is an insider.
	ResearcherIdentity string `json:"-"`

	State ProposalState `json:"state"`

	// DataPointer is the content-addressed research-data pointer (IPFS hash).
	// Re-anchoring overwrites it without advancing state.
	DataPointer string `json:"data_pointer,omitempty"`
	IPMinted    bool   `json:"ip_minted"`

	Pool OutcomePool `json:"pool"`

	// Treasury is the actual escrowed value backing positions, per currency.
	// Virtual seed liquidity lives only in Pool, never here, so claims are
	// always fully funded.
	Treasury Reserve `json:"treasury"`

	FundingTarget   CurrencyAmount `json:"funding_target"`
	FundingReleased bool           `json:"funding_released"`
	FundingPaid     int64          `json:"funding_paid,omitempty"`
	FundingPaidAt   *time.Time     `json:"funding_paid_at,omitempty"`

	Outcome         *bool  `json:"outcome,omitempty"`
	ResolutionProof []byte `json:"-"`

	// Settlement captures, at resolution, the claimable treasury and the
	// total winning-side shares per currency. Claim payouts divide against
	// this snapshot so earlier claims do not dilute later ones.
	Settlement *Settlement `json:"settlement,omitempty"`

	Positions map[Account]*Position `json:"-"`
	Claimed   map[Account]bool      `json:"-"`

	History []PricePoint `json:"-"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// Settlement is the frozen payout basis taken when a proposal resolves.
type Settlement struct {
	Treasury      Reserve `json:"treasury"`
	WinningShares Reserve `json:"winning_shares"`
	// Remaining tracks treasury not yet paid out; integer-division
	// truncation can leave dust here after all winners claim.
	Remaining Reserve `json:"remaining"`
}

// PositionFor returns the account's position, creating it if absent.
func (p *Proposal) PositionFor(a Account) *Position {
	if p.Positions == nil {
		p.Positions = make(map[Account]*Position)
	}
	pos, ok := p.Positions[a]
	if !ok {
		pos = &Position{Account: a}
		p.Positions[a] = pos
	}
	return pos
}

// Resolved reports whether the proposal has reached a terminal market state.
func (p *Proposal) Resolved() bool {
	return p.State == StateResolved || p.State == StateClosed
}
