package memory

import (
	"context"
	"sync"

	"github.com/teamspace/expense-ledger/internal/application/port"
)

// IdempotencyStore maps (workspaceID, key) to expense ids. Bindings are
// permanent for the lifetime of the store and the first write wins.
type IdempotencyStore struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewIdempotencyStore creates an empty idempotency store
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{keys: make(map[string]string)}
}

// Get returns the expense id bound to (workspaceID, key)
func (s *IdempotencyStore) Get(_ context.Context, workspaceID, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.keys[scopedKey(workspaceID, key)]
	return id, ok, nil
}

// Set binds (workspaceID, key) to an expense id. An existing binding is
// never overwritten.
func (s *IdempotencyStore) Set(_ context.Context, workspaceID, key, expenseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := scopedKey(workspaceID, key)
	if _, exists := s.keys[k]; !exists {
		s.keys[k] = expenseID
	}
	return nil
}

// scopedKey namespaces keys per workspace. NUL cannot appear in either
// part, so the join is unambiguous.
func scopedKey(workspaceID, key string) string {
	return workspaceID + "\x00" + key
}

// Verify interface compliance
var _ port.IdempotencyStore = (*IdempotencyStore)(nil)
