package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixlabs/helixmarket/internal/domain"
)

type stubSender struct {
	name string
	sent []string
	fail bool
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	if s.fail {
		return errors.New("boom")
	}
	s.sent = append(s.sent, title)
	return nil
}

func (s *stubSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{sender}, []string{"resolved"}, testLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "trade", "Trade", "ignored"))
	require.NoError(t, n.Notify(ctx, "resolved", "Resolved", "delivered"))
	assert.Equal(t, []string{"Resolved"}, sender.sent)

	// NotifyAll bypasses the filter.
	require.NoError(t, n.NotifyAll(ctx, "Anything", "delivered"))
	assert.Len(t, sender.sent, 2)
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "T", "m"))
	assert.Len(t, sender.sent, 1)
}

func TestDispatchCollectsSenderErrors(t *testing.T) {
	good := &stubSender{name: "good"}
	bad := &stubSender{name: "bad", fail: true}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), "x", "T", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.sent, 1, "one failing sender must not block the others")
}

func TestSinkRendersLifecycleEvents(t *testing.T) {
	sender := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())
	sink := NewSink(n)
	ctx := context.Background()

	sink.Emit(ctx, domain.Event{Type: domain.EventResolved, ProposalID: 3, Detail: map[string]any{"outcome": true}})
	sink.Emit(ctx, domain.Event{Type: domain.EventFundingReleased, ProposalID: 3, Account: "0xabc", Currency: domain.CurrencyNative, Delta: 5000})
	sink.Emit(ctx, domain.Event{Type: domain.EventTrade, ProposalID: 3})

	require.Len(t, sender.sent, 2, "trades are not notified")
	assert.Equal(t, "Proposal #3 resolved YES", sender.sent[0])
	assert.Equal(t, "Funding released for proposal #3", sender.sent[1])
}
