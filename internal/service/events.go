package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/septivank/ledger-relay-gateway/internal/mq"
	"github.com/septivank/ledger-relay-gateway/internal/relayer"
)

// RelayEventSink accepts wire-format relay events.
type RelayEventSink interface {
	PublishRelayEvent(ctx context.Context, event mq.RelayEvent) error
}

// EventForwarder adapts relayer events to the queue wire format.
type EventForwarder struct {
	sink RelayEventSink
}

// NewEventForwarder creates a forwarder publishing to sink.
func NewEventForwarder(sink RelayEventSink) *EventForwarder {
	return &EventForwarder{sink: sink}
}

func (f *EventForwarder) PublishRelayEvent(ctx context.Context, event relayer.Event) error {
	wire, err := ToRelayEvent(event)
	if err != nil {
		return err
	}
	return f.sink.PublishRelayEvent(ctx, wire)
}

// ToRelayEvent converts a relayer event. The record travels in canonical
// form so the feed can be checked against the data hash.
func ToRelayEvent(event relayer.Event) (mq.RelayEvent, error) {
	canonical, err := event.Record.Canonical()
	if err != nil {
		return mq.RelayEvent{}, fmt.Errorf("failed to encode record: %w", err)
	}
	return mq.RelayEvent{
		DataHash:    event.Receipt.DataHash,
		TxHash:      event.Receipt.TxHash,
		Status:      event.Receipt.Status,
		BlockNumber: event.Receipt.BlockNumber,
		ProductID:   event.Record.ProductID,
		DeviceID:    event.Record.DeviceID,
		Client:      event.Client,
		Tier:        string(event.Tier),
		RecordedAt:  time.UnixMilli(event.Receipt.Timestamp).UTC().Format(time.RFC3339),
		Record:      json.RawMessage(canonical),
	}, nil
}

// Discard drops relay events when no queue is configured.
type Discard struct{}

func (Discard) PublishRelayEvent(context.Context, relayer.Event) error { return nil }
