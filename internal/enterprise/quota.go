package enterprise

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/septivank/ledger-relay-gateway/internal/metrics"
	"go.uber.org/zap"
)

// InternalClientName is the display name of the system identity.
const InternalClientName = "Internal Batch Orchestrator"

// QuotaLedger authenticates callers, checks capabilities and charges usage.
type QuotaLedger struct {
	repo     Repository
	internal Client
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewQuotaLedger creates a ledger over repo. internalKey identifies the
// system identity used for batch items; it is never looked up in repo.
func NewQuotaLedger(repo Repository, internalKey string, logger *zap.Logger, m *metrics.Metrics) *QuotaLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuotaLedger{
		repo: repo,
		internal: Client{
			ID:           internalKey,
			Name:         InternalClientName,
			Tier:         TierInternal,
			Permissions:  []string{CapabilityAll},
			MonthlyQuota: Unlimited,
		},
		logger:  logger,
		metrics: m,
	}
}

// Internal returns the system identity. It is exempt from quota but still
// subject to permission checks.
func (q *QuotaLedger) Internal() Client {
	c := q.internal
	c.Permissions = append([]string(nil), c.Permissions...)
	return c
}

// Authenticate resolves an API key to its client.
func (q *QuotaLedger) Authenticate(ctx context.Context, apiKey string) (Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return Client{}, fmt.Errorf("%w: api key is required", ErrUnauthenticated)
	}

	c, err := q.repo.FindByKey(ctx, apiKey)
	if errors.Is(err, ErrNotFound) {
		return Client{}, fmt.Errorf("%w: unknown api key", ErrUnauthenticated)
	}
	if err != nil {
		return Client{}, fmt.Errorf("failed to look up client: %w", err)
	}
	return c, nil
}

// Authorize returns a *PermissionError unless the client holds capability.
func (q *QuotaLedger) Authorize(c Client, capability string) error {
	if c.HasPermission(capability) {
		return nil
	}
	q.metrics.RecordQuotaDecision(string(c.Tier), "forbidden")
	return &PermissionError{Client: c.Name, Capability: capability}
}

// ChargeOne consumes one operation of the client's quota. The check and the
// increment happen in a single repository step. It returns the client as it
// stands after the charge.
func (q *QuotaLedger) ChargeOne(ctx context.Context, c Client) (Client, error) {
	if c.IsUnlimited() {
		q.metrics.RecordQuotaDecision(string(c.Tier), "exempt")
		return c, nil
	}

	updated, err := q.repo.IncrementUsage(ctx, c.ID)
	var qerr *QuotaError
	switch {
	case errors.As(err, &qerr):
		q.metrics.RecordQuotaDecision(string(c.Tier), "exceeded")
		q.logger.Info("quota exceeded",
			zap.String("client", c.Name),
			zap.Int64("monthly_quota", qerr.Quota),
			zap.Int64("used_quota", qerr.Used),
		)
		return c, err
	case errors.Is(err, ErrNotFound):
		return c, fmt.Errorf("%w: client no longer registered", ErrUnauthenticated)
	case err != nil:
		return c, fmt.Errorf("failed to charge quota: %w", err)
	}

	q.metrics.RecordQuotaDecision(string(c.Tier), "charged")
	return updated, nil
}

// QuotaUsage is the quota section of Stats.
type QuotaUsage struct {
	Monthly    *int64 `json:"monthly"`
	Used       int64  `json:"used"`
	Remaining  *int64 `json:"remaining"`
	Percentage string `json:"percentage"`
}

// Stats is the enterprise dashboard view of a client.
type Stats struct {
	CompanyName string     `json:"companyName"`
	Tier        Tier       `json:"tier"`
	Quota       QuotaUsage `json:"quota"`
	Permissions []string   `json:"permissions"`
}

// Stats reports usage for the client behind apiKey.
func (q *QuotaLedger) Stats(ctx context.Context, apiKey string) (Stats, error) {
	c, err := q.Authenticate(ctx, apiKey)
	if err != nil {
		return Stats{}, err
	}
	return StatsFor(c), nil
}

// StatsFor builds the dashboard view of c.
func StatsFor(c Client) Stats {
	usage := QuotaUsage{Used: c.UsedQuota, Remaining: c.Remaining(), Percentage: "0.00"}
	if !c.IsUnlimited() {
		monthly := c.MonthlyQuota
		usage.Monthly = &monthly
		if monthly > 0 {
			usage.Percentage = fmt.Sprintf("%.2f", float64(c.UsedQuota)/float64(monthly)*100)
		}
	}
	return Stats{
		CompanyName: c.Name,
		Tier:        c.Tier,
		Quota:       usage,
		Permissions: append([]string{}, c.Permissions...),
	}
}
