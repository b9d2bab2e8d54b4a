package batch

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/septivank/ledger-relay-gateway/internal/enterprise"
	"github.com/septivank/ledger-relay-gateway/internal/ledger"
	"github.com/septivank/ledger-relay-gateway/internal/record"
	"github.com/septivank/ledger-relay-gateway/internal/relayer"
	"github.com/septivank/ledger-relay-gateway/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuota(extra ...enterprise.Client) (*enterprise.QuotaLedger, *enterprise.MemoryRepository) {
	repo := enterprise.NewMemoryRepository(append(enterprise.DefaultClients(), extra...)...)
	return enterprise.NewQuotaLedger(repo, "INTERNAL_BATCH_SYS", nil, nil), repo
}

func ops(n int) []record.Request {
	out := make([]record.Request, n)
	for i := range out {
		temp := float64(i)
		out[i] = record.Request{
			ProductID:  "SKU-" + string(rune('A'+i%26)),
			SensorData: &record.SensorData{Temperature: &temp},
		}
	}
	return out
}

// jitterSubmitter completes operations out of order and fails product "FAIL".
type jitterSubmitter struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	mu       sync.Mutex
	callers  []enterprise.Client
}

func (s *jitterSubmitter) SubmitAs(_ context.Context, c enterprise.Client, req record.Request) (relayer.Receipt, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	s.mu.Lock()
	s.callers = append(s.callers, c)
	s.mu.Unlock()

	time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	if req.ProductID == "FAIL" {
		return relayer.Receipt{}, errors.New("boom")
	}
	return relayer.Receipt{ProductID: req.ProductID, Status: relayer.StatusSimulated}, nil
}

func TestRun_ResultsFollowRequestOrder(t *testing.T) {
	quota, _ := newQuota()
	sub := &jitterSubmitter{}
	o := NewOrchestrator(Config{MaxOperations: 100, MaxConcurrency: 4}, quota, sub, nil, nil, nil)

	batch := ops(40)
	batch[7].ProductID = "FAIL"
	batch[31].ProductID = "FAIL"

	job, err := o.Run(context.Background(), "ENT_CARREFOUR_2026", batch)
	require.NoError(t, err)

	require.Len(t, job.Results, 40)
	assert.Equal(t, 40, job.TotalOperations)
	assert.Equal(t, 38, job.SuccessCount)
	assert.Equal(t, 2, job.FailCount)
	assert.Equal(t, job.TotalOperations, job.SuccessCount+job.FailCount)
	assert.Equal(t, "Batch completed: 38/40 operations succeeded", job.Message)
	assert.Equal(t, "Carrefour Logistics", job.ExecutedBy)

	for i, r := range job.Results {
		assert.Equal(t, i, r.Index)
		if batch[i].ProductID == "FAIL" {
			assert.False(t, r.Success)
			assert.Equal(t, "boom", r.Error)
			continue
		}
		require.True(t, r.Success)
		assert.Equal(t, batch[i].ProductID, r.Data.ProductID)
	}

	assert.LessOrEqual(t, sub.maxSeen.Load(), int32(4))
	for _, c := range sub.callers {
		assert.Equal(t, enterprise.TierInternal, c.Tier)
	}
}

func TestRun_ChargesCallerOnce(t *testing.T) {
	quota, repo := newQuota()
	o := NewOrchestrator(Config{}, quota, &jitterSubmitter{}, nil, nil, nil)

	job, err := o.Run(context.Background(), "ENT_WALMART_2026", ops(25))
	require.NoError(t, err)

	c, err := repo.FindByKey(context.Background(), "ENT_WALMART_2026")
	require.NoError(t, err)
	assert.Equal(t, int64(45_231), c.UsedQuota)
	assert.Equal(t, int64(1_000_000-45_231), *job.QuotaRemaining)
}

func TestRun_Rejections(t *testing.T) {
	quota, repo := newQuota()
	o := NewOrchestrator(Config{MaxOperations: 3}, quota, &jitterSubmitter{}, nil, nil, nil)
	ctx := context.Background()

	_, err := o.Run(ctx, "nope", ops(1))
	assert.ErrorIs(t, err, enterprise.ErrUnauthenticated)

	_, err = o.Run(ctx, "DEV_INDIE_123", ops(1))
	assert.ErrorIs(t, err, enterprise.ErrUnauthorized)

	_, err = o.Run(ctx, "ENT_WALMART_2026", nil)
	assert.ErrorIs(t, err, validator.ErrInvalid)

	_, err = o.Run(ctx, "ENT_WALMART_2026", ops(4))
	assert.ErrorIs(t, err, validator.ErrInvalid)

	c, err := repo.FindByKey(ctx, "ENT_WALMART_2026")
	require.NoError(t, err)
	assert.Equal(t, int64(45_230), c.UsedQuota)
}

func TestRun_ExhaustedCallerIsRejected(t *testing.T) {
	quota, _ := newQuota(enterprise.Client{
		ID: "C1", Name: "C1", Tier: enterprise.TierBasic,
		Permissions: []string{enterprise.CapabilityBatch}, MonthlyQuota: 1, UsedQuota: 1,
	})
	o := NewOrchestrator(Config{}, quota, &jitterSubmitter{}, nil, nil, nil)

	_, err := o.Run(context.Background(), "C1", ops(2))
	assert.ErrorIs(t, err, enterprise.ErrQuotaExceeded)
}

func TestRun_WithRelayerItemsAreNotCharged(t *testing.T) {
	quota, repo := newQuota(enterprise.Client{
		ID: "C1", Name: "C1 Foods", Tier: enterprise.TierBasic,
		Permissions: []string{enterprise.CapabilityWrite, enterprise.CapabilityBatch}, MonthlyQuota: 2,
	})
	r := relayer.NewRelayer(relayer.Config{}, quota, validator.NewValidator(60), ledger.Unavailable{}, nil, nil, nil, nil, nil)
	o := NewOrchestrator(Config{}, quota, r, nil, nil, nil)
	ctx := context.Background()

	job, err := o.Run(ctx, "C1", ops(5))
	require.NoError(t, err)
	assert.Equal(t, 5, job.SuccessCount)
	for _, res := range job.Results {
		assert.Equal(t, relayer.StatusSimulated, res.Data.Status)
		assert.Equal(t, enterprise.InternalClientName, res.Data.CertifiedBy)
	}

	c, err := repo.FindByKey(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.UsedQuota)
}

func TestRunAs_InternalIgnoresExhaustedCallerQuota(t *testing.T) {
	quota, repo := newQuota(enterprise.Client{
		ID: "C1", Name: "C1 Foods", Tier: enterprise.TierBasic,
		Permissions: []string{enterprise.CapabilityWrite, enterprise.CapabilityBatch}, MonthlyQuota: 2,
	})
	r := relayer.NewRelayer(relayer.Config{}, quota, validator.NewValidator(60), ledger.Unavailable{}, nil, nil, nil, nil, nil)
	o := NewOrchestrator(Config{}, quota, r, nil, nil, nil)
	ctx := context.Background()

	type outcome struct {
		receipt relayer.Receipt
		err     error
	}
	outcomes := make([]outcome, 3)
	var wg sync.WaitGroup
	for i := range outcomes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receipt, err := r.Submit(ctx, "C1", ops(1)[0])
			outcomes[i] = outcome{receipt, err}
		}()
	}
	wg.Wait()

	var remaining []int64
	exceeded := 0
	for _, out := range outcomes {
		if out.err != nil {
			assert.ErrorIs(t, out.err, enterprise.ErrQuotaExceeded)
			exceeded++
			continue
		}
		require.NotNil(t, out.receipt.QuotaRemaining)
		remaining = append(remaining, *out.receipt.QuotaRemaining)
	}
	assert.Equal(t, 1, exceeded)
	assert.ElementsMatch(t, []int64{1, 0}, remaining)

	_, err := o.Run(ctx, "C1", ops(5))
	assert.ErrorIs(t, err, enterprise.ErrQuotaExceeded)

	job, err := o.RunAs(ctx, quota.Internal(), ops(5))
	require.NoError(t, err)
	assert.Equal(t, 5, job.SuccessCount)
	assert.Equal(t, 0, job.FailCount)
	assert.Nil(t, job.QuotaRemaining)
	assert.Equal(t, enterprise.InternalClientName, job.ExecutedBy)

	c, err := repo.FindByKey(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.UsedQuota)
}

func TestRunAs_ChecksCapability(t *testing.T) {
	quota, _ := newQuota()
	o := NewOrchestrator(Config{}, quota, &jitterSubmitter{}, nil, nil, nil)

	_, err := o.RunAs(context.Background(), enterprise.Client{ID: "ro", Name: "Read Only", Permissions: []string{enterprise.CapabilityRead}, MonthlyQuota: enterprise.Unlimited}, ops(1))
	assert.ErrorIs(t, err, enterprise.ErrUnauthorized)
}

func TestNewBatchID(t *testing.T) {
	id := NewBatchID(time.UnixMilli(1_772_361_045_123))
	assert.Regexp(t, regexp.MustCompile(`^BATCH_1772361045123_[0-9a-f]{9}$`), id)
	assert.NotEqual(t, id, NewBatchID(time.UnixMilli(1_772_361_045_123)))
}
