package domain

import (
	"context"
	"time"
)

// EventType names the auditable engine and ledger events.
type EventType string

const (
	EventProposalCreated EventType = "proposal_created"
	EventDataAnchored    EventType = "data_anchored"
	EventIPMinted        EventType = "ip_minted"
	EventTrade           EventType = "trade"
	EventFundingReleased EventType = "funding_released"
	EventResolved        EventType = "resolved"
	EventClaimed         EventType = "claimed"
	EventClosed          EventType = "closed"

	EventLedgerDeposit EventType = "ledger_deposit"
	EventLedgerEscrow  EventType = "ledger_escrow"
	EventLedgerRelease EventType = "ledger_release"
)

// Event is a single auditable engine or ledger event. Ledger events always
// carry Account, Currency, Delta, and the resulting Balance.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	ProposalID int64          `json:"proposal_id,omitempty"`
	Account    Account        `json:"account,omitempty"`
	Currency   Currency       `json:"currency,omitempty"`
	Delta      int64          `json:"delta,omitempty"`
	Balance    int64          `json:"balance,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	At         time.Time      `json:"at"`
}

// EventSink receives committed events. Emission happens after the owning
// operation has committed; sink failures must not roll the operation back,
// so implementations log and swallow their own errors.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, ev Event)

// Emit implements EventSink.
func (f EventSinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// NopSink discards all events.
var NopSink EventSink = EventSinkFunc(func(context.Context, Event) {})

// MultiSink fans one event out to several sinks in order.
type MultiSink []EventSink

// Emit implements EventSink.
func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}
