package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/ledger-relay-gateway/internal/clock"
	"github.com/septivank/ledger-relay-gateway/internal/enterprise"
	"github.com/septivank/ledger-relay-gateway/internal/logging"
	"github.com/septivank/ledger-relay-gateway/internal/metrics"
	"github.com/septivank/ledger-relay-gateway/internal/record"
	"github.com/septivank/ledger-relay-gateway/internal/relayer"
	"github.com/septivank/ledger-relay-gateway/internal/validator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Submitter commits a single operation for a resolved client.
type Submitter interface {
	SubmitAs(ctx context.Context, client enterprise.Client, req record.Request) (relayer.Receipt, error)
}

// Result is the outcome of operations[Index].
type Result struct {
	Index   int              `json:"index"`
	Success bool             `json:"success"`
	Data    *relayer.Receipt `json:"data,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Job is the aggregated outcome of a batch.
type Job struct {
	Success         bool     `json:"success"`
	BatchID         string   `json:"batchId"`
	TotalOperations int      `json:"totalOperations"`
	SuccessCount    int      `json:"successCount"`
	FailCount       int      `json:"failCount"`
	Results         []Result `json:"results"`
	ExecutedBy      string   `json:"executedBy"`
	Timestamp       int64    `json:"timestamp"`
	QuotaRemaining  *int64   `json:"quotaRemaining"`
	Message         string   `json:"message"`
}

// Config bounds batch size and fan-out.
type Config struct {
	MaxOperations  int
	MaxConcurrency int
}

// Orchestrator fans a batch out to the relayer and collects every outcome.
type Orchestrator struct {
	cfg       Config
	quota     *enterprise.QuotaLedger
	submitter Submitter
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config, quota *enterprise.QuotaLedger, submitter Submitter, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *Orchestrator {
	if cfg.MaxOperations <= 0 {
		cfg.MaxOperations = 500
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 32
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, quota: quota, submitter: submitter, clock: clk, logger: logger, metrics: m}
}

// Run resolves apiKey and runs the batch as that client.
func (o *Orchestrator) Run(ctx context.Context, apiKey string, ops []record.Request) (Job, error) {
	caller, err := o.quota.Authenticate(ctx, apiKey)
	if err != nil {
		return Job{}, err
	}
	return o.RunAs(ctx, caller, ops)
}

// RunAs authorizes caller once, charges the batch once against its quota
// (unlimited callers are exempt), then commits every operation as the
// internal identity. One failed operation never affects the others;
// results[i] always reports on ops[i].
func (o *Orchestrator) RunAs(ctx context.Context, caller enterprise.Client, ops []record.Request) (Job, error) {
	if err := o.quota.Authorize(caller, enterprise.CapabilityBatch); err != nil {
		return Job{}, err
	}
	if err := validator.ValidateBatchSize(len(ops), o.cfg.MaxOperations); err != nil {
		return Job{}, err
	}
	charged, err := o.quota.ChargeOne(ctx, caller)
	if err != nil {
		return Job{}, err
	}

	start := o.clock.Now()
	batchID := NewBatchID(start)
	logger := logging.WithBatchID(o.logger, batchID)
	logger.Info("processing batch",
		zap.String("client", caller.Name),
		zap.Int("operations", len(ops)),
	)

	internal := o.quota.Internal()
	results := make([]Result, len(ops))

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.MaxConcurrency)
	for i, op := range ops {
		g.Go(func() error {
			receipt, err := o.submitter.SubmitAs(ctx, internal, op)
			if err != nil {
				results[i] = Result{Index: i, Success: false, Error: err.Error()}
				return nil
			}
			results[i] = Result{Index: i, Success: true, Data: &receipt}
			return nil
		})
	}
	_ = g.Wait()

	successes := 0
	for _, r := range results {
		if r.Success {
			successes++
		}
	}
	failures := len(ops) - successes
	o.metrics.RecordBatch(successes, failures, o.clock.Now().Sub(start))

	logger.Info("batch completed",
		zap.Int("succeeded", successes),
		zap.Int("failed", failures),
	)

	return Job{
		Success:         true,
		BatchID:         batchID,
		TotalOperations: len(ops),
		SuccessCount:    successes,
		FailCount:       failures,
		Results:         results,
		ExecutedBy:      caller.Name,
		Timestamp:       o.clock.Now().UnixMilli(),
		QuotaRemaining:  charged.Remaining(),
		Message:         fmt.Sprintf("Batch completed: %d/%d operations succeeded", successes, len(ops)),
	}, nil
}

// NewBatchID returns BATCH_<unix-millis>_<9 random chars>.
func NewBatchID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("BATCH_%d_%s", at.UnixMilli(), suffix)
}
