package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/septivank/ledger-relay-gateway/internal/enterprise"
	"github.com/septivank/ledger-relay-gateway/internal/mq"
	"github.com/septivank/ledger-relay-gateway/internal/record"
	"github.com/septivank/ledger-relay-gateway/internal/relayer"
	"github.com/septivank/ledger-relay-gateway/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, apiKey string, req record.Request) (relayer.Receipt, error) {
	args := m.Called(ctx, apiKey, req)
	return args.Get(0).(relayer.Receipt), args.Error(1)
}

func ingestBody(t *testing.T, msg IngestMessage) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return body
}

func TestProcessMessage_Relays(t *testing.T) {
	sub := &mockSubmitter{}
	p := NewProcessor(sub, zap.NewNop(), nil)

	req := record.Request{ProductID: "SKU-1", SensorData: &record.SensorData{}, Metadata: record.Metadata{DeviceID: "d1"}}
	sub.On("Submit", mock.Anything, "ENT_WALMART_2026", req).
		Return(relayer.Receipt{Success: true, Status: relayer.StatusSimulated}, nil).Once()

	err := p.ProcessMessage(context.Background(), ingestBody(t, IngestMessage{
		RequestID: "req-1",
		APIKey:    "ENT_WALMART_2026",
		Record:    req,
	}))

	require.NoError(t, err)
	sub.AssertExpectations(t)
}

func TestProcessMessage_MalformedBody(t *testing.T) {
	sub := &mockSubmitter{}
	p := NewProcessor(sub, nil, nil)

	err := p.ProcessMessage(context.Background(), []byte("{not json"))

	assert.Error(t, err)
	sub.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessMessage_RejectionDeadLetters(t *testing.T) {
	sub := &mockSubmitter{}
	p := NewProcessor(sub, nil, nil)

	sub.On("Submit", mock.Anything, "DEV_INDIE_123", mock.Anything).
		Return(relayer.Receipt{}, &enterprise.PermissionError{Client: "Indie Developer", Capability: enterprise.CapabilityWrite}).Once()

	err := p.ProcessMessage(context.Background(), ingestBody(t, IngestMessage{RequestID: "req-2", APIKey: "DEV_INDIE_123"}))

	assert.ErrorIs(t, err, enterprise.ErrUnauthorized)
}

func TestProcessMessage_TransientFaultRequeues(t *testing.T) {
	sub := &mockSubmitter{}
	p := NewProcessor(sub, nil, nil)

	sub.On("Submit", mock.Anything, "ENT_WALMART_2026", mock.Anything).
		Return(relayer.Receipt{}, fmt.Errorf("failed to charge quota: %w", errors.New("redis: connection refused"))).Once()

	err := p.ProcessMessage(context.Background(), ingestBody(t, IngestMessage{RequestID: "req-3", APIKey: "ENT_WALMART_2026"}))

	assert.ErrorIs(t, err, mq.ErrTransient)
}

func TestProcessMessage_RejectionsAreNotTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unknown key", fmt.Errorf("%w: unknown api key", enterprise.ErrUnauthenticated)},
		{"quota", &enterprise.QuotaError{Client: "C1", Quota: 2, Used: 2}},
		{"invalid", validator.Invalid("productId", "required", "productId is required")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &mockSubmitter{}
			p := NewProcessor(sub, nil, nil)
			sub.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(relayer.Receipt{}, tt.err).Once()

			err := p.ProcessMessage(context.Background(), ingestBody(t, IngestMessage{RequestID: "req-4"}))

			require.Error(t, err)
			assert.NotErrorIs(t, err, mq.ErrTransient)
		})
	}
}

type captureSink struct {
	events []mq.RelayEvent
	err    error
}

func (c *captureSink) PublishRelayEvent(_ context.Context, e mq.RelayEvent) error {
	c.events = append(c.events, e)
	return c.err
}

func TestEventForwarder_ConvertsEvent(t *testing.T) {
	temp := 3.5
	rec, err := record.Build(record.Request{
		ProductID:  "SKU-9",
		SensorData: &record.SensorData{Temperature: &temp},
		Metadata:   record.Metadata{DeviceID: "d9"},
	}, "Carrefour Logistics", time.UnixMilli(1772361000000))
	require.NoError(t, err)

	block := uint64(77)
	sink := &captureSink{}
	f := NewEventForwarder(sink)

	err = f.PublishRelayEvent(context.Background(), relayer.Event{
		Receipt: relayer.Receipt{
			DataHash:    rec.DataHash,
			TxHash:      "0xabc",
			Status:      relayer.StatusConfirmed,
			BlockNumber: &block,
			Timestamp:   rec.Timestamp,
		},
		Record: rec,
		Client: "Carrefour Logistics",
		Tier:   enterprise.TierPremium,
	})
	require.NoError(t, err)
	require.Len(t, sink.events, 1)

	got := sink.events[0]
	assert.Equal(t, rec.DataHash, got.DataHash)
	assert.Equal(t, "SKU-9", got.ProductID)
	assert.Equal(t, "d9", got.DeviceID)
	assert.Equal(t, "PREMIUM", got.Tier)
	assert.Equal(t, "2026-03-01T10:30:00Z", got.RecordedAt)
	assert.Equal(t, &block, got.BlockNumber)

	canonical, err := rec.Canonical()
	require.NoError(t, err)
	assert.JSONEq(t, string(canonical), string(got.Record))
}

func TestEventForwarder_PropagatesSinkError(t *testing.T) {
	rec, err := record.Build(record.Request{ProductID: "SKU-1", SensorData: &record.SensorData{}}, "x", time.Now())
	require.NoError(t, err)

	f := NewEventForwarder(&captureSink{err: errors.New("broker down")})
	err = f.PublishRelayEvent(context.Background(), relayer.Event{Record: rec})

	assert.ErrorContains(t, err, "broker down")
}
