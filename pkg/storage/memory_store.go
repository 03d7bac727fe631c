package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory implementation of Store, suitable for tests
// and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	outcomes map[string]OutcomeRecord
	audit    []AuditEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		outcomes: make(map[string]OutcomeRecord),
	}
}

// StoreOutcome persists one outcome record in memory.
func (s *MemoryStore) StoreOutcome(_ context.Context, record OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.outcomes[record.RequestID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, record.RequestID)
	}
	s.outcomes[record.RequestID] = record
	return nil
}

// GetOutcome retrieves an outcome record from memory.
func (s *MemoryStore) GetOutcome(_ context.Context, requestID string) (OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.outcomes[requestID]
	if !ok {
		return OutcomeRecord{}, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	return record, nil
}

// AppendAudit records an audit entry in memory.
func (s *MemoryStore) AppendAudit(_ context.Context, entry AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

// AuditEntries returns a snapshot of the audit log. Helper for tests.
func (s *MemoryStore) AuditEntries() []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AuditEntry(nil), s.audit...)
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
