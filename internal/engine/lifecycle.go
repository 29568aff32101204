package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/helixlabs/helixmarket/internal/domain"
)

// UploadResearchData anchors a content-addressed data pointer on the
// proposal. Only the researcher may call it; re-anchoring overwrites the
// pointer without advancing the state further.
func (r *Registry) UploadResearchData(ctx context.Context, id int64, caller domain.Account, pointer string) error {
	if strings.TrimSpace(pointer) == "" {
		return fmt.Errorf("engine: anchor data: empty pointer: %w", domain.ErrInvalidAmount)
	}
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.p

	if !sameAccount(caller, p.Researcher) {
		return fmt.Errorf("engine: anchor data on proposal %d: caller %s: %w", id, caller, domain.ErrNotAuthorized)
	}
	if p.Resolved() {
		return fmt.Errorf("engine: anchor data on proposal %d: %w", id, domain.ErrMarketClosed)
	}

	p.DataPointer = pointer
	if p.State == domain.StateCreated {
		p.State = domain.StateDataAnchored
	}

	r.persist(ctx, p)
	r.sink.Emit(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventDataAnchored,
		ProposalID: id,
		Account:    caller,
		Detail:     map[string]any{"pointer": pointer},
		At:         r.now(),
	})
	return nil
}

// MintIPRecord mints the proposal's non-fungible IP record. Researcher only;
// a second mint fails with ErrAlreadyMinted.
func (r *Registry) MintIPRecord(ctx context.Context, id int64, caller domain.Account) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.p

	if !sameAccount(caller, p.Researcher) {
		return fmt.Errorf("engine: mint ip on proposal %d: caller %s: %w", id, caller, domain.ErrNotAuthorized)
	}
	if p.IPMinted {
		return fmt.Errorf("engine: mint ip on proposal %d: %w", id, domain.ErrAlreadyMinted)
	}
	if p.Resolved() {
		return fmt.Errorf("engine: mint ip on proposal %d: %w", id, domain.ErrMarketClosed)
	}

	p.IPMinted = true
	if p.State.Before(domain.StateIPMinted) {
		p.State = domain.StateIPMinted
	}

	r.persist(ctx, p)
	r.sink.Emit(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventIPMinted,
		ProposalID: id,
		Account:    caller,
		At:         r.now(),
	})
	return nil
}

// BuyRequest is one trade: amount of one currency deposited on one side.
type BuyRequest struct {
	ProposalID int64
	Account    domain.Account
	Side       domain.Side
	Amount     int64
	Currency   domain.Currency
	// IdentityToken is the caller's out-of-band identity marker, compared
	// against the researcher's to enforce the insider restriction.
	IdentityToken string
}

// BuyResult reports the shares minted and the post-trade prices.
type BuyResult struct {
	Shares   int64               `json:"shares"`
	PriceYes float64             `json:"price_yes"`
	PriceNo  float64             `json:"price_no"`
	Pool     domain.OutcomePool  `json:"pool"`
	Ticket   domain.EscrowTicket `json:"-"`
}

// Buy escrows the deposit, applies the constant-sum trade, and mints shares
// 1:1. All validation, including the insider restriction, happens before any
// state mutation; a rejected buy leaves both the pool and the ledger
// untouched.
func (r *Registry) Buy(ctx context.Context, req BuyRequest) (BuyResult, error) {
	if req.Amount <= 0 {
		return BuyResult{}, fmt.Errorf("engine: buy on proposal %d: amount %d: %w", req.ProposalID, req.Amount, domain.ErrInvalidAmount)
	}
	if !req.Side.Valid() {
		return BuyResult{}, fmt.Errorf("engine: buy on proposal %d: side %q: %w", req.ProposalID, req.Side, domain.ErrInvalidAmount)
	}
	if !req.Currency.Valid() {
		return BuyResult{}, fmt.Errorf("engine: buy on proposal %d: currency %q: %w", req.ProposalID, req.Currency, domain.ErrInvalidAmount)
	}
	if req.Account == "" {
		return BuyResult{}, fmt.Errorf("engine: buy on proposal %d: missing account: %w", req.ProposalID, domain.ErrNotAuthorized)
	}

	e, err := r.lookup(req.ProposalID)
	if err != nil {
		return BuyResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.p

	if p.Resolved() {
		return BuyResult{}, fmt.Errorf("engine: buy on proposal %d: %w", req.ProposalID, domain.ErrMarketClosed)
	}
	if r.isInsider(p, req.Account, req.IdentityToken) {
		return BuyResult{}, fmt.Errorf("engine: buy on proposal %d by %s: %w", req.ProposalID, req.Account, domain.ErrInsiderRestricted)
	}

	// Move funds first: buyer -> escrow -> market treasury. An insufficient
	// balance rejects the trade before the pool is touched.
	amount := domain.CurrencyAmount{Currency: req.Currency, Amount: req.Amount}
	ticket, err := r.ledger.Escrow(ctx, req.Account, p.ID, amount)
	if err != nil {
		return BuyResult{}, err
	}
	if err := r.ledger.Release(ctx, ticket.ID, MarketAccount(p.ID)); err != nil {
		return BuyResult{}, fmt.Errorf("engine: buy on proposal %d: settle escrow: %w", p.ID, err)
	}

	now := r.now()
	p.Pool = applyBuy(p.Pool, req.Side, req.Currency, req.Amount)
	p.Treasury = p.Treasury.Add(req.Currency, req.Amount)

	pos := p.PositionFor(req.Account)
	if req.Side == domain.SideYes {
		pos.Yes = pos.Yes.Add(req.Currency, req.Amount)
	} else {
		pos.No = pos.No.Add(req.Currency, req.Amount)
	}
	pos.UpdatedAt = now

	r.recordSample(p, now)
	r.persist(ctx, p)

	res := BuyResult{
		Shares:   req.Amount, // constant-sum model mints 1:1
		PriceYes: Price(p.Pool, domain.SideYes, r.cfg.Rate),
		PriceNo:  Price(p.Pool, domain.SideNo, r.cfg.Rate),
		Pool:     p.Pool,
		Ticket:   ticket,
	}
	r.sink.Emit(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventTrade,
		ProposalID: p.ID,
		Account:    req.Account,
		Currency:   req.Currency,
		Delta:      req.Amount,
		Detail: map[string]any{
			"side":      string(req.Side),
			"shares":    res.Shares,
			"price_yes": res.PriceYes,
			"price_no":  res.PriceNo,
		},
		At: now,
	})
	return res, nil
}

// CheckFundingTrigger evaluates the funding condition and, when it holds,
// pays the accumulated funding-currency treasury to the researcher exactly
// once. Callable by anyone; the fundingReleased flag, not caller identity,
// protects against double payment, so repeated calls are no-ops.
func (r *Registry) CheckFundingTrigger(ctx context.Context, id int64) (released bool, paid int64, err error) {
	e, err := r.lookup(id)
	if err != nil {
		return false, 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.p

	if p.FundingReleased || p.Resolved() {
		return false, 0, nil
	}
	now := r.now()
	if !r.trigger.ShouldRelease(p, now) {
		return false, 0, nil
	}

	currency := p.FundingTarget.Currency
	grant := p.Treasury.Get(currency)
	if grant > 0 {
		payout := domain.CurrencyAmount{Currency: currency, Amount: grant}
		if err := r.ledger.Payout(ctx, MarketAccount(p.ID), p.Researcher, p.ID, payout); err != nil {
			return false, 0, fmt.Errorf("engine: funding grant on proposal %d: %w", p.ID, err)
		}
	}

	p.FundingReleased = true
	p.FundingPaid = grant
	p.FundingPaidAt = &now
	p.Treasury = p.Treasury.Add(currency, -grant)

	r.persist(ctx, p)
	r.sink.Emit(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventFundingReleased,
		ProposalID: p.ID,
		Account:    p.Researcher,
		Currency:   currency,
		Delta:      grant,
		Detail:     map[string]any{"policy": r.trigger.Name()},
		At:         now,
	})
	r.logger.InfoContext(ctx, "funding released",
		slog.Int64("proposal_id", p.ID),
		slog.Int64("grant", grant),
		slog.String("currency", string(currency)),
	)
	return true, grant, nil
}

// Resolve verifies the attestation through the oracle gateway and, once
// accepted, sets the outcome exactly once and freezes the settlement
// snapshot. A malformed or unverifiable attestation rejects with
// ErrInvalidProof and mutates nothing.
func (r *Registry) Resolve(ctx context.Context, id int64, att domain.Attestation) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.p

	if p.Resolved() {
		return fmt.Errorf("engine: resolve proposal %d: %w", id, domain.ErrAlreadyResolved)
	}
	if att.ProposalID != id {
		return fmt.Errorf("engine: resolve proposal %d: attestation for proposal %d: %w", id, att.ProposalID, domain.ErrInvalidProof)
	}
	if err := r.oracle.Verify(ctx, att); err != nil {
		return fmt.Errorf("engine: resolve proposal %d: %w", id, err)
	}

	now := r.now()
	outcome := att.Outcome
	p.Outcome = &outcome
	p.ResolutionProof = att.Proof()
	p.State = domain.StateResolved
	p.ResolvedAt = &now
	p.Settlement = &domain.Settlement{
		Treasury:      p.Treasury,
		WinningShares: winningShares(p, outcome),
		Remaining:     p.Treasury,
	}

	r.persist(ctx, p)
	r.sink.Emit(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventResolved,
		ProposalID: p.ID,
		Detail:     map[string]any{"outcome": outcome},
		At:         now,
	})
	r.logger.InfoContext(ctx, "proposal resolved",
		slog.Int64("proposal_id", p.ID),
		slog.Bool("outcome", outcome),
	)
	return nil
}

// ClaimWinnings pays the caller's pro-rata settlement share, each currency
// redistributed within itself. A caller with no winning shares receives zero
// and is still marked claimed; a second call fails with ErrAlreadyClaimed.
func (r *Registry) ClaimWinnings(ctx context.Context, id int64, caller domain.Account) (domain.Reserve, error) {
	if caller == "" {
		return domain.Reserve{}, fmt.Errorf("engine: claim on proposal %d: missing account: %w", id, domain.ErrNotAuthorized)
	}
	e, err := r.lookup(id)
	if err != nil {
		return domain.Reserve{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.p

	if p.State == domain.StateClosed {
		return domain.Reserve{}, fmt.Errorf("engine: claim on proposal %d: %w", id, domain.ErrMarketClosed)
	}
	if p.State != domain.StateResolved || p.Settlement == nil || p.Outcome == nil {
		return domain.Reserve{}, fmt.Errorf("engine: claim on unresolved proposal %d: %w", id, domain.ErrMarketClosed)
	}
	if p.Claimed[caller] {
		return domain.Reserve{}, fmt.Errorf("engine: claim on proposal %d by %s: %w", id, caller, domain.ErrAlreadyClaimed)
	}

	var shares domain.Reserve
	if pos, ok := p.Positions[caller]; ok {
		shares = pos.No
		if *p.Outcome {
			shares = pos.Yes
		}
	}

	s := p.Settlement
	payout := domain.Reserve{
		Native: payoutFor(shares.Native, s.Treasury.Native, s.WinningShares.Native),
		Token:  payoutFor(shares.Token, s.Treasury.Token, s.WinningShares.Token),
	}

	// Both legs settle in one ledger operation before the claimed flag
	// flips: a rejected payout mutates nothing and leaves the claim
	// retryable, and a claim can never half-pay.
	if payout.Native != 0 || payout.Token != 0 {
		if err := r.ledger.PayoutReserve(ctx, MarketAccount(p.ID), caller, p.ID, payout); err != nil {
			return domain.Reserve{}, fmt.Errorf("engine: claim payout on proposal %d: %w", p.ID, err)
		}
	}

	now := r.now()
	if p.Claimed == nil {
		p.Claimed = make(map[domain.Account]bool)
	}
	p.Claimed[caller] = true
	s.Remaining.Native -= payout.Native
	s.Remaining.Token -= payout.Token
	p.Treasury.Native -= payout.Native
	p.Treasury.Token -= payout.Token

	closed := r.maybeCloseLocked(p, now)

	r.persist(ctx, p)
	r.sink.Emit(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventClaimed,
		ProposalID: p.ID,
		Account:    caller,
		Detail: map[string]any{
			"payout_native": payout.Native,
			"payout_token":  payout.Token,
		},
		At: now,
	})
	if closed {
		r.emitClosed(ctx, p, now)
	}
	return payout, nil
}

// CloseExpired closes resolved proposals whose resolution is older than the
// configured timeout. Run from the scheduled sweep; purely bookkeeping.
func (r *Registry) CloseExpired(ctx context.Context) (int, error) {
	if r.cfg.CloseTimeout <= 0 {
		return 0, nil
	}
	now := r.now()
	cutoff := now.Add(-r.cfg.CloseTimeout)

	r.mu.RLock()
	entries := make([]*entry, 0, len(r.proposals))
	for _, e := range r.proposals {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	closed := 0
	for _, e := range entries {
		e.mu.Lock()
		p := e.p
		if p.State == domain.StateResolved && p.ResolvedAt != nil && p.ResolvedAt.Before(cutoff) {
			p.State = domain.StateClosed
			p.ClosedAt = &now
			r.persist(ctx, p)
			r.emitClosed(ctx, p, now)
			closed++
		}
		e.mu.Unlock()
	}
	return closed, nil
}

// maybeCloseLocked closes the proposal once every position holder has
// claimed. Caller holds the entry lock.
func (r *Registry) maybeCloseLocked(p *domain.Proposal, now time.Time) bool {
	if p.State != domain.StateResolved {
		return false
	}
	for a := range p.Positions {
		if !p.Claimed[a] {
			return false
		}
	}
	p.State = domain.StateClosed
	p.ClosedAt = &now
	return true
}

func (r *Registry) emitClosed(ctx context.Context, p *domain.Proposal, now time.Time) {
	r.sink.Emit(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventClosed,
		ProposalID: p.ID,
		At:         now,
	})
}

// isInsider applies the insider restriction: the researcher account itself,
// or any caller presenting the researcher's identity token.
func (r *Registry) isInsider(p *domain.Proposal, account domain.Account, identityToken string) bool {
	if sameAccount(account, p.Researcher) {
		return true
	}
	return p.ResearcherIdentity != "" && identityToken == p.ResearcherIdentity
}

// sameAccount compares address-like identifiers case-insensitively, matching
// how hex wallet addresses are compared upstream.
func sameAccount(a, b domain.Account) bool {
	return strings.EqualFold(string(a), string(b))
}
