package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/septivank/ledger-relay-gateway/internal/enterprise"
	"github.com/septivank/ledger-relay-gateway/internal/logging"
	"github.com/septivank/ledger-relay-gateway/internal/metrics"
	"github.com/septivank/ledger-relay-gateway/internal/mq"
	"github.com/septivank/ledger-relay-gateway/internal/record"
	"github.com/septivank/ledger-relay-gateway/internal/relayer"
	"github.com/septivank/ledger-relay-gateway/internal/validator"
	"go.uber.org/zap"
)

// IngestMessage is one data-commitment request delivered over RabbitMQ.
type IngestMessage struct {
	RequestID string         `json:"request_id"`
	APIKey    string         `json:"api_key"`
	Record    record.Request `json:"record"`
}

// Submitter commits a request on behalf of an API key.
type Submitter interface {
	Submit(ctx context.Context, apiKey string, req record.Request) (relayer.Receipt, error)
}

// Processor relays queued ingest messages.
type Processor struct {
	submitter Submitter
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewProcessor creates a new processor
func NewProcessor(submitter Submitter, logger *zap.Logger, m *metrics.Metrics) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{submitter: submitter, logger: logger, metrics: m}
}

// ProcessMessage decodes and relays one message. Ledger faults never surface
// here. A rejected message returns a plain error and belongs in the DLQ; a
// registry or quota store fault wraps mq.ErrTransient so it is retried.
func (p *Processor) ProcessMessage(ctx context.Context, body []byte) error {
	var msg IngestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		p.metrics.RecordIngestMessage("malformed")
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	reqLogger := logging.WithRequestID(p.logger, msg.RequestID)
	reqLogger.Info("processing ingest message",
		zap.String("product_id", msg.Record.ProductID),
		zap.String("device_id", msg.Record.Metadata.DeviceID),
	)

	receipt, err := p.submitter.Submit(ctx, msg.APIKey, msg.Record)
	if err != nil {
		if !isRejection(err) {
			p.metrics.RecordIngestMessage("requeued")
			reqLogger.Warn("ingest message hit a transient fault", zap.Error(err))
			return fmt.Errorf("%w: failed to relay message %s: %w", mq.ErrTransient, msg.RequestID, err)
		}
		p.metrics.RecordIngestMessage("rejected")
		reqLogger.Info("ingest message rejected", zap.Error(err))
		return fmt.Errorf("failed to relay message %s: %w", msg.RequestID, err)
	}

	p.metrics.RecordIngestMessage("relayed")
	reqLogger.Info("ingest message relayed",
		zap.String("data_hash", receipt.DataHash),
		zap.String("tx_hash", receipt.TxHash),
		zap.String("status", receipt.Status),
	)
	return nil
}

// isRejection reports whether err is about the message or its caller rather
// than the infrastructure behind them.
func isRejection(err error) bool {
	return errors.Is(err, enterprise.ErrUnauthenticated) ||
		errors.Is(err, enterprise.ErrUnauthorized) ||
		errors.Is(err, enterprise.ErrQuotaExceeded) ||
		errors.Is(err, validator.ErrInvalid)
}
