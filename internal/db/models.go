package db

import (
	"time"

	"github.com/google/uuid"
)

// EnterpriseClient represents a registered API client in the database.
// Only the SHA-256 of the API key is stored.
type EnterpriseClient struct {
	ID           uuid.UUID
	KeyHash      string
	Name         string
	Tier         string
	Permissions  []string
	MonthlyQuota int64
	UsedQuota    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RelayRecord represents a committed data record in the database
type RelayRecord struct {
	ID          uuid.UUID
	ProductID   string
	DataHash    string
	TxHash      string
	Status      string
	BlockNumber *int64
	RecordedAt  time.Time
	CommittedAt time.Time
	Payload     []byte
}
