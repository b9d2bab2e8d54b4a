package enterprise

import (
	"context"
	"sync"
)

// Repository is the persisted client registry.
type Repository interface {
	// FindByKey returns the client for a raw API key, or ErrNotFound.
	FindByKey(ctx context.Context, apiKey string) (Client, error)
	// IncrementUsage atomically checks used < quota and increments used in
	// the same step. It returns the updated client or a *QuotaError.
	IncrementUsage(ctx context.Context, apiKey string) (Client, error)
}

type memoryEntry struct {
	mu     sync.Mutex
	client Client
}

// MemoryRepository keeps clients in process with one lock per client, so
// charges against different clients never contend.
type MemoryRepository struct {
	mu      sync.RWMutex
	clients map[string]*memoryEntry
}

// NewMemoryRepository creates a repository holding the given clients.
func NewMemoryRepository(clients ...Client) *MemoryRepository {
	r := &MemoryRepository{clients: make(map[string]*memoryEntry, len(clients))}
	for _, c := range clients {
		r.Put(c)
	}
	return r
}

// Put inserts or replaces a client keyed by its ID.
func (r *MemoryRepository) Put(c Client) {
	c.Permissions = append([]string(nil), c.Permissions...)
	r.mu.Lock()
	r.clients[HashAPIKey(c.ID)] = &memoryEntry{client: c}
	r.mu.Unlock()
}

func (r *MemoryRepository) entry(apiKey string) (*memoryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.clients[HashAPIKey(apiKey)]
	return e, ok
}

func (r *MemoryRepository) FindByKey(_ context.Context, apiKey string) (Client, error) {
	e, ok := r.entry(apiKey)
	if !ok {
		return Client{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client, nil
}

func (r *MemoryRepository) IncrementUsage(_ context.Context, apiKey string) (Client, error) {
	e, ok := r.entry(apiKey)
	if !ok {
		return Client{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.client
	if !c.IsUnlimited() && c.UsedQuota >= c.MonthlyQuota {
		return c, &QuotaError{Client: c.Name, Quota: c.MonthlyQuota, Used: c.UsedQuota}
	}
	e.client.UsedQuota++
	return e.client, nil
}
