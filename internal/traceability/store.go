package traceability

import (
	"context"
	"sync"
	"time"

	"github.com/septivank/ledger-relay-gateway/internal/record"
)

// Commitment is a record together with the outcome of committing its hash.
type Commitment struct {
	Record      record.DataRecord `json:"record"`
	TxHash      string            `json:"txHash"`
	Status      string            `json:"status"`
	BlockNumber uint64            `json:"blockNumber,omitempty"`
	CommittedAt time.Time         `json:"committedAt"`
}

// Store persists commitments for the read path.
type Store interface {
	Save(ctx context.Context, c Commitment) error
	ListByProduct(ctx context.Context, productID string) ([]Commitment, error)
}

// MemoryStore keeps commitments in process.
type MemoryStore struct {
	mu        sync.RWMutex
	byProduct map[string][]Commitment
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byProduct: make(map[string][]Commitment)}
}

func (s *MemoryStore) Save(_ context.Context, c Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byProduct[c.Record.ProductID] = append(s.byProduct[c.Record.ProductID], c)
	return nil
}

func (s *MemoryStore) ListByProduct(_ context.Context, productID string) ([]Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Commitment(nil), s.byProduct[productID]...), nil
}
