package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/ledger-relay-gateway/internal/db"
	"github.com/septivank/ledger-relay-gateway/internal/record"
	"github.com/septivank/ledger-relay-gateway/internal/traceability"
)

// PostgresRecords stores committed records for the traceability read path.
type PostgresRecords struct {
	pool *pgxpool.Pool
}

var _ traceability.Store = (*PostgresRecords)(nil)

// NewPostgresRecords creates a new record store
func NewPostgresRecords(pool *pgxpool.Pool) *PostgresRecords {
	return &PostgresRecords{pool: pool}
}

// Save inserts a commitment
func (r *PostgresRecords) Save(ctx context.Context, c traceability.Commitment) error {
	payload, err := json.Marshal(c.Record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	row := db.RelayRecord{
		ProductID:   c.Record.ProductID,
		DataHash:    c.Record.DataHash,
		TxHash:      c.TxHash,
		Status:      c.Status,
		RecordedAt:  time.UnixMilli(c.Record.Timestamp).UTC(),
		CommittedAt: c.CommittedAt,
		Payload:     payload,
	}
	if c.BlockNumber > 0 {
		n := int64(c.BlockNumber)
		row.BlockNumber = &n
	}
	if row.CommittedAt.IsZero() {
		row.CommittedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO relay_records (
			product_id, data_hash, tx_hash, status, block_number, recorded_at, committed_at, payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		row.ProductID,
		row.DataHash,
		row.TxHash,
		row.Status,
		row.BlockNumber,
		row.RecordedAt,
		row.CommittedAt,
		row.Payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert relay record: %w", err)
	}
	return nil
}

// ListByProduct returns every commitment for a product
func (r *PostgresRecords) ListByProduct(ctx context.Context, productID string) ([]traceability.Commitment, error) {
	query := `
		SELECT tx_hash, status, block_number, committed_at, payload
		FROM relay_records
		WHERE product_id = $1
		ORDER BY recorded_at, data_hash
	`

	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relay records: %w", err)
	}
	defer rows.Close()

	var out []traceability.Commitment
	for rows.Next() {
		var row db.RelayRecord
		if err := rows.Scan(&row.TxHash, &row.Status, &row.BlockNumber, &row.CommittedAt, &row.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan relay record: %w", err)
		}
		c, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func fromRow(row db.RelayRecord) (traceability.Commitment, error) {
	var rec record.DataRecord
	if err := json.Unmarshal(row.Payload, &rec); err != nil {
		return traceability.Commitment{}, fmt.Errorf("failed to decode relay record: %w", err)
	}
	c := traceability.Commitment{
		Record:      rec,
		TxHash:      row.TxHash,
		Status:      row.Status,
		CommittedAt: row.CommittedAt,
	}
	if row.BlockNumber != nil {
		c.BlockNumber = uint64(*row.BlockNumber)
	}
	return c, nil
}
