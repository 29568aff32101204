package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixlabs/helixmarket/internal/cache/local"
	"github.com/helixlabs/helixmarket/internal/domain"
	"github.com/helixlabs/helixmarket/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestStoreSinkAppends(t *testing.T) {
	store := memory.NewEventStore()
	sink := NewStoreSink(store, testLogger())

	sink.Emit(context.Background(), domain.Event{ID: "e1", Type: domain.EventTrade, ProposalID: 4})

	all := store.All()
	require.Len(t, all, 1)
	assert.Equal(t, "e1", all[0].ID)
}

func TestBusSinkFansOut(t *testing.T) {
	bus := local.NewSignalBus()
	prices := local.NewPriceCache()
	sink := NewBusSink(bus, prices, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firehose, err := bus.Subscribe(ctx, "events")
	require.NoError(t, err)
	perProposal, err := bus.Subscribe(ctx, "events:proposal:9")
	require.NoError(t, err)
	priceFeed, err := bus.Subscribe(ctx, "prices")
	require.NoError(t, err)

	ev := domain.Event{
		ID:         "e1",
		Type:       domain.EventTrade,
		ProposalID: 9,
		Account:    "alice",
		Currency:   domain.CurrencyNative,
		Delta:      500,
		Detail: map[string]any{
			"side":      "yes",
			"shares":    int64(500),
			"price_yes": 0.62,
			"price_no":  0.38,
		},
		At: time.Unix(1_700_000_000, 0).UTC(),
	}
	sink.Emit(ctx, ev)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(recv(t, firehose), &decoded))
	assert.Equal(t, "e1", decoded.ID)
	assert.Equal(t, domain.EventTrade, decoded.Type)

	require.NoError(t, json.Unmarshal(recv(t, perProposal), &decoded))
	assert.Equal(t, int64(9), decoded.ProposalID)

	var tick map[string]any
	require.NoError(t, json.Unmarshal(recv(t, priceFeed), &tick))
	assert.Equal(t, float64(9), tick["proposal_id"])
	assert.Equal(t, 0.62, tick["price_yes"])

	point, err := prices.GetPrice(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 0.62, point.PriceYes)
	assert.Equal(t, 0.38, point.PriceNo)
}

func TestBusSinkNonTradeSkipsPrices(t *testing.T) {
	bus := local.NewSignalBus()
	prices := local.NewPriceCache()
	sink := NewBusSink(bus, prices, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	priceFeed, err := bus.Subscribe(ctx, "prices")
	require.NoError(t, err)

	sink.Emit(ctx, domain.Event{ID: "e1", Type: domain.EventResolved, ProposalID: 2})

	select {
	case msg := <-priceFeed:
		t.Fatalf("unexpected price message %q", msg)
	default:
	}
	_, err = prices.GetPrice(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
