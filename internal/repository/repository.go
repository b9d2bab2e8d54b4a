package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/ledger-relay-gateway/internal/db"
	"github.com/septivank/ledger-relay-gateway/internal/enterprise"
)

// PostgresClients is the enterprise client registry backed by PostgreSQL.
type PostgresClients struct {
	pool *pgxpool.Pool
}

var _ enterprise.Repository = (*PostgresClients)(nil)

// NewPostgresClients creates a new client registry
func NewPostgresClients(pool *pgxpool.Pool) *PostgresClients {
	return &PostgresClients{pool: pool}
}

const clientColumns = `id, key_hash, name, tier, permissions, monthly_quota, used_quota, created_at, updated_at`

func scanClient(row pgx.Row) (*db.EnterpriseClient, error) {
	var c db.EnterpriseClient
	err := row.Scan(
		&c.ID,
		&c.KeyHash,
		&c.Name,
		&c.Tier,
		&c.Permissions,
		&c.MonthlyQuota,
		&c.UsedQuota,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func toClient(apiKey string, row *db.EnterpriseClient) enterprise.Client {
	return enterprise.Client{
		ID:           apiKey,
		Name:         row.Name,
		Tier:         enterprise.Tier(row.Tier),
		Permissions:  row.Permissions,
		MonthlyQuota: row.MonthlyQuota,
		UsedQuota:    row.UsedQuota,
	}
}

// FindByKey looks a client up by the hash of its API key
func (r *PostgresClients) FindByKey(ctx context.Context, apiKey string) (enterprise.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM enterprise_clients WHERE key_hash = $1`

	row, err := scanClient(r.pool.QueryRow(ctx, query, enterprise.HashAPIKey(apiKey)))
	if errors.Is(err, pgx.ErrNoRows) {
		return enterprise.Client{}, enterprise.ErrNotFound
	}
	if err != nil {
		return enterprise.Client{}, fmt.Errorf("failed to query client: %w", err)
	}
	return toClient(apiKey, row), nil
}

// IncrementUsage charges one operation in a single conditional UPDATE, so
// concurrent charges can never push used_quota past monthly_quota.
func (r *PostgresClients) IncrementUsage(ctx context.Context, apiKey string) (enterprise.Client, error) {
	query := `
		UPDATE enterprise_clients
		SET used_quota = used_quota + 1, updated_at = now()
		WHERE key_hash = $1 AND (monthly_quota < 0 OR used_quota < monthly_quota)
		RETURNING ` + clientColumns

	row, err := scanClient(r.pool.QueryRow(ctx, query, enterprise.HashAPIKey(apiKey)))
	if err == nil {
		return toClient(apiKey, row), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return enterprise.Client{}, fmt.Errorf("failed to increment usage: %w", err)
	}

	// no row updated: either the key is unknown or the quota is spent
	current, err := r.FindByKey(ctx, apiKey)
	if err != nil {
		return enterprise.Client{}, err
	}
	return current, &enterprise.QuotaError{Client: current.Name, Quota: current.MonthlyQuota, Used: current.UsedQuota}
}

// Seed inserts clients that are not registered yet. Existing rows keep
// their usage.
func (r *PostgresClients) Seed(ctx context.Context, clients []enterprise.Client) error {
	query := `
		INSERT INTO enterprise_clients (key_hash, name, tier, permissions, monthly_quota, used_quota)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key_hash) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, c := range clients {
		batch.Queue(query,
			enterprise.HashAPIKey(c.ID),
			c.Name,
			string(c.Tier),
			c.Permissions,
			c.MonthlyQuota,
			c.UsedQuota,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range clients {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to seed client: %w", err)
		}
	}
	return nil
}
