package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/helixlabs/helixmarket/internal/domain"
)

// StoreSink appends committed events to the durable event log. Append
// failures are logged and swallowed; the audit log must never roll back the
// operation that produced the event.
type StoreSink struct {
	store  domain.EventStore
	logger *slog.Logger
}

// NewStoreSink creates an EventSink over the given store.
func NewStoreSink(store domain.EventStore, logger *slog.Logger) *StoreSink {
	return &StoreSink{store: store, logger: logger}
}

// Emit implements domain.EventSink.
func (s *StoreSink) Emit(ctx context.Context, ev domain.Event) {
	if err := s.store.Append(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "event append failed",
			slog.String("event_id", ev.ID),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// streamAppender is satisfied by the Redis signal bus, which mirrors events
// into a durable stream in addition to pub/sub.
type streamAppender interface {
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// BusSink publishes committed events on the signal bus: once on the firehose
// channel and once on a per-proposal channel. Trade events additionally
// update the price cache and the "prices" channel so chart consumers need no
// event parsing.
type BusSink struct {
	bus    domain.SignalBus
	prices domain.PriceCache
	logger *slog.Logger
}

// NewBusSink creates an EventSink over the given bus and price cache. The
// price cache may be nil.
func NewBusSink(bus domain.SignalBus, prices domain.PriceCache, logger *slog.Logger) *BusSink {
	return &BusSink{bus: bus, prices: prices, logger: logger}
}

// Emit implements domain.EventSink.
func (s *BusSink) Emit(ctx context.Context, ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.WarnContext(ctx, "event marshal failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.publish(ctx, "events", payload)
	if ev.ProposalID != 0 || ev.Type == domain.EventProposalCreated {
		s.publish(ctx, fmt.Sprintf("events:proposal:%d", ev.ProposalID), payload)
	}
	if sa, ok := s.bus.(streamAppender); ok {
		if err := sa.StreamAppend(ctx, "events", payload); err != nil {
			s.logger.WarnContext(ctx, "event stream append failed",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if ev.Type == domain.EventTrade {
		s.emitPrice(ctx, ev)
	}
}

func (s *BusSink) publish(ctx context.Context, channel string, payload []byte) {
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// emitPrice projects the trade's post-trade prices into the cache and onto
// the "prices" channel.
func (s *BusSink) emitPrice(ctx context.Context, ev domain.Event) {
	yes, okYes := ev.Detail["price_yes"].(float64)
	no, okNo := ev.Detail["price_no"].(float64)
	if !okYes || !okNo {
		return
	}

	point := domain.PricePoint{Time: ev.At, PriceYes: yes, PriceNo: no}
	if s.prices != nil {
		if err := s.prices.SetPrice(ctx, ev.ProposalID, point); err != nil {
			s.logger.WarnContext(ctx, "price cache update failed",
				slog.Int64("proposal_id", ev.ProposalID),
				slog.String("error", err.Error()),
			)
		}
	}

	payload, err := json.Marshal(map[string]any{
		"proposal_id": ev.ProposalID,
		"price_yes":   yes,
		"price_no":    no,
		"at":          ev.At,
	})
	if err != nil {
		return
	}
	s.publish(ctx, "prices", payload)
}

// Compile-time interface checks.
var (
	_ domain.EventSink = (*StoreSink)(nil)
	_ domain.EventSink = (*BusSink)(nil)
)
