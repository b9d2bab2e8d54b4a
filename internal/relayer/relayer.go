package relayer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/septivank/ledger-relay-gateway/internal/clock"
	"github.com/septivank/ledger-relay-gateway/internal/enterprise"
	"github.com/septivank/ledger-relay-gateway/internal/ledger"
	"github.com/septivank/ledger-relay-gateway/internal/metrics"
	"github.com/septivank/ledger-relay-gateway/internal/record"
	"github.com/septivank/ledger-relay-gateway/internal/traceability"
	"github.com/septivank/ledger-relay-gateway/internal/validator"
	"go.uber.org/zap"
)

// Receipt statuses.
const (
	StatusConfirmed          = "confirmed"
	StatusSimulated          = "simulated"
	StatusSimulationFallback = "simulation_fallback"
)

const (
	messageOnChain  = "Data recorded on-chain. Gas paid by the enterprise (fee delegation)."
	messageAccepted = "Data recorded successfully. Gas paid by the enterprise."
)

// Config holds relayer settings.
type Config struct {
	GasLimit            uint64
	ConfirmTimeout      time.Duration
	ExplorerTxURL       string
	LowBalanceThreshold float64
}

// Receipt is the outcome of a data commitment.
type Receipt struct {
	Success          bool    `json:"success"`
	DataHash         string  `json:"dataHash"`
	TxHash           string  `json:"txHash"`
	Status           string  `json:"status"`
	BlockExplorerURL *string `json:"blockExplorerUrl"`
	BlockNumber      *uint64 `json:"blockNumber"`
	ProductID        string  `json:"productId"`
	Timestamp        int64   `json:"timestamp"`
	CertifiedBy      string  `json:"certifiedBy"`
	QuotaRemaining   *int64  `json:"quotaRemaining"`
	Message          string  `json:"message"`
}

// Event is emitted for every receipt so that simulated commitments can be
// reconciled later.
type Event struct {
	Receipt Receipt
	Record  record.DataRecord
	Client  string
	Tier    enterprise.Tier
}

// EventPublisher receives relay events.
type EventPublisher interface {
	PublishRelayEvent(ctx context.Context, event Event) error
}

// Relayer commits data hashes on the ledger from the gateway's own funded
// account. Ledger faults never reach the caller; they turn into
// simulation_fallback receipts.
type Relayer struct {
	cfg       Config
	quota     *enterprise.QuotaLedger
	validator *validator.Validator
	conn      ledger.Connector
	store     traceability.Store
	events    EventPublisher
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics

	// submitMu serializes build+submit on the relayer account.
	submitMu sync.Mutex
}

// NewRelayer creates a relayer. store and events may be nil.
func NewRelayer(
	cfg Config,
	quota *enterprise.QuotaLedger,
	v *validator.Validator,
	conn ledger.Connector,
	store traceability.Store,
	events EventPublisher,
	clk clock.Clock,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Relayer {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 50000
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if conn == nil {
		conn = ledger.Unavailable{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relayer{
		cfg:       cfg,
		quota:     quota,
		validator: v,
		conn:      conn,
		store:     store,
		events:    events,
		clock:     clk,
		logger:    logger,
		metrics:   m,
	}
}

// Submit authenticates apiKey and commits req on its behalf.
func (r *Relayer) Submit(ctx context.Context, apiKey string, req record.Request) (Receipt, error) {
	client, err := r.quota.Authenticate(ctx, apiKey)
	if err != nil {
		return Receipt{}, err
	}
	return r.SubmitAs(ctx, client, req)
}

// SubmitAs commits req for an already resolved client. Only
// authorization, validation and quota failures are returned as errors.
func (r *Relayer) SubmitAs(ctx context.Context, client enterprise.Client, req record.Request) (Receipt, error) {
	if err := r.quota.Authorize(client, enterprise.CapabilityWrite); err != nil {
		return Receipt{}, err
	}

	now := r.clock.Now()
	if r.validator != nil {
		if err := r.validator.ValidateRequest(req, now); err != nil {
			return Receipt{}, err
		}
	}

	rec, err := record.Build(req, client.Name, now)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to build record: %w", err)
	}

	charged, err := r.quota.ChargeOne(ctx, client)
	if err != nil {
		return Receipt{}, err
	}

	logger := r.logger.With(
		zap.String("product_id", rec.ProductID),
		zap.String("data_hash", rec.DataHash),
		zap.String("client", client.Name),
	)

	receipt := r.commit(ctx, rec, logger)
	receipt.QuotaRemaining = charged.Remaining()
	r.metrics.RecordReceipt(receipt.Status)

	logger.Info("data commitment processed",
		zap.String("status", receipt.Status),
		zap.String("tx_hash", receipt.TxHash),
	)

	r.afterCommit(ctx, client, rec, receipt, logger)
	return receipt, nil
}

func (r *Relayer) commit(ctx context.Context, rec record.DataRecord, logger *zap.Logger) Receipt {
	receipt := Receipt{
		Success:     true,
		DataHash:    rec.DataHash,
		ProductID:   rec.ProductID,
		Timestamp:   rec.Timestamp,
		CertifiedBy: rec.CertifiedBy,
		Message:     messageAccepted,
	}

	relayer, ok := r.conn.RelayerAddress()
	if !r.conn.IsAvailable() || !ok {
		receipt.Status = StatusSimulated
		receipt.TxHash = r.syntheticHash()
		return receipt
	}

	conf, err := r.sendAndConfirm(ctx, relayer, rec)
	if err != nil {
		logger.Warn("ledger commitment failed, returning simulated receipt", zap.Error(err))
		receipt.Status = StatusSimulationFallback
		receipt.TxHash = r.syntheticHash()
		return receipt
	}

	explorer := r.cfg.ExplorerTxURL + conf.TxHash
	block := conf.BlockNumber
	receipt.Status = StatusConfirmed
	receipt.TxHash = conf.TxHash
	receipt.BlockExplorerURL = &explorer
	receipt.BlockNumber = &block
	receipt.Message = messageOnChain
	return receipt
}

// sendAndConfirm submits a self-transaction carrying the data hash. The
// submission is serialized; the confirmation wait is not.
func (r *Relayer) sendAndConfirm(ctx context.Context, relayer common.Address, rec record.DataRecord) (ledger.Confirmation, error) {
	r.submitMu.Lock()
	pending, err := r.conn.SendRaw(ctx, ledger.TxRequest{
		To:       relayer,
		Data:     rec.HashBytes(),
		Value:    big.NewInt(0),
		GasLimit: r.cfg.GasLimit,
	})
	r.submitMu.Unlock()
	if err != nil {
		return ledger.Confirmation{}, fmt.Errorf("submission failed: %w", err)
	}

	conf, err := r.conn.AwaitConfirmation(ctx, pending, r.cfg.ConfirmTimeout)
	if err != nil {
		return ledger.Confirmation{}, fmt.Errorf("confirmation failed: %w", err)
	}
	return conf, nil
}

func (r *Relayer) syntheticHash() string {
	return fmt.Sprintf("0xSIMULATED%d-%s", r.clock.Now().UnixMilli(), uuid.NewString()[:8])
}

// afterCommit records and announces the receipt. Both steps are best-effort.
func (r *Relayer) afterCommit(ctx context.Context, client enterprise.Client, rec record.DataRecord, receipt Receipt, logger *zap.Logger) {
	ctx = context.WithoutCancel(ctx)

	if r.store != nil {
		c := traceability.Commitment{
			Record:      rec,
			TxHash:      receipt.TxHash,
			Status:      receipt.Status,
			CommittedAt: r.clock.Now(),
		}
		if receipt.BlockNumber != nil {
			c.BlockNumber = *receipt.BlockNumber
		}
		if err := r.store.Save(ctx, c); err != nil {
			logger.Error("failed to save commitment", zap.Error(err))
		}
	}

	if r.events != nil {
		event := Event{Receipt: receipt, Record: rec, Client: client.Name, Tier: client.Tier}
		if err := r.events.PublishRelayEvent(ctx, event); err != nil {
			logger.Error("failed to publish relay event", zap.Error(err))
		}
	}
}

// CheckBalance reads the relayer balance, updates the gauge and warns when
// it is below the configured threshold.
func (r *Relayer) CheckBalance(ctx context.Context) (float64, error) {
	addr, ok := r.conn.RelayerAddress()
	if !r.conn.IsAvailable() || !ok {
		return 0, ledger.ErrUnavailable
	}

	wei, err := r.conn.GetBalance(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("failed to read relayer balance: %w", err)
	}
	balance := ledger.EtherToFloat(wei)
	r.metrics.SetRelayerBalance(balance)

	if balance < r.cfg.LowBalanceThreshold {
		r.logger.Warn("relayer balance low",
			zap.String("address", addr.Hex()),
			zap.String("balance", ledger.FormatEther(wei)),
			zap.Float64("threshold", r.cfg.LowBalanceThreshold),
		)
	}
	return balance, nil
}

// RunBalanceMonitor checks the balance now and then every interval until
// ctx is done.
func (r *Relayer) RunBalanceMonitor(ctx context.Context, interval time.Duration) {
	check := func() {
		if _, err := r.CheckBalance(ctx); err != nil && !errors.Is(err, ledger.ErrUnavailable) {
			r.logger.Warn("relayer balance check failed", zap.Error(err))
		}
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
