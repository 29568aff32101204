package notify

import (
	"context"
	"fmt"

	"github.com/helixlabs/helixmarket/internal/domain"
)

// Sink adapts the Notifier to domain.EventSink so operators get alerted on
// the lifecycle milestones they configured. Delivery failures are already
// logged by the notifier and never propagate back into the engine.
type Sink struct {
	notifier *Notifier
}

// NewSink creates an EventSink over the given notifier.
func NewSink(n *Notifier) *Sink {
	return &Sink{notifier: n}
}

// Emit implements domain.EventSink.
func (s *Sink) Emit(ctx context.Context, ev domain.Event) {
	title, message, ok := render(ev)
	if !ok {
		return
	}
	_ = s.notifier.Notify(ctx, string(ev.Type), title, message)
}

func render(ev domain.Event) (title, message string, ok bool) {
	switch ev.Type {
	case domain.EventProposalCreated:
		return fmt.Sprintf("Proposal #%d created", ev.ProposalID),
			fmt.Sprintf("Researcher %s opened a new market.", ev.Account), true
	case domain.EventFundingReleased:
		return fmt.Sprintf("Funding released for proposal #%d", ev.ProposalID),
			fmt.Sprintf("Grant of %d %s paid to %s.", ev.Delta, ev.Currency, ev.Account), true
	case domain.EventResolved:
		outcome := "NO"
		if v, isBool := ev.Detail["outcome"].(bool); isBool && v {
			outcome = "YES"
		}
		return fmt.Sprintf("Proposal #%d resolved %s", ev.ProposalID, outcome),
			"Winning positions may now claim.", true
	case domain.EventClosed:
		return fmt.Sprintf("Proposal #%d closed", ev.ProposalID),
			"All claims settled or the claim window expired.", true
	default:
		return "", "", false
	}
}

// Compile-time interface check.
var _ domain.EventSink = (*Sink)(nil)
