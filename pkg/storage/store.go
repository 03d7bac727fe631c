// Package storage persists per-request outcome records and the out-of-band
// audit log. Backends enforce request_id uniqueness; the wrapper treats the
// store as append-only.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentguard/blackbox/pkg/attestation"
)

var (
	// ErrNotFound is returned when no outcome exists for a request ID.
	ErrNotFound = errors.New("storage: outcome not found")
	// ErrDuplicateRequest is returned when an outcome already exists for
	// a request ID.
	ErrDuplicateRequest = errors.New("storage: duplicate request_id")
	// ErrUnknownBackend is returned by Open for unsupported backend names.
	ErrUnknownBackend = errors.New("storage: unknown backend")
)

// OutcomeRecord is the persisted summary of one request's execution.
type OutcomeRecord struct {
	RequestID   string              `json:"request_id"`
	Status      string              `json:"status"`
	Error       string              `json:"error,omitempty"`
	InputHash   string              `json:"input_hash,omitempty"`
	OutputHash  string              `json:"output_hash,omitempty"`
	LatencyMS   int64               `json:"latency_ms"`
	CostCents   float64             `json:"cost_cents"`
	CreatedAt   time.Time           `json:"created_at"`
	Attestation *attestation.Record `json:"attestation,omitempty"`
}

// AuditEntry records an out-of-band policy action, such as a break-glass
// activation.
type AuditEntry struct {
	RequestID string    `json:"request_id"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the persistence collaborator for the black-box wrapper.
type Store interface {
	// StoreOutcome persists one outcome record. A second write with the
	// same request ID fails with ErrDuplicateRequest.
	StoreOutcome(ctx context.Context, record OutcomeRecord) error

	// GetOutcome retrieves an outcome by request ID, or ErrNotFound.
	GetOutcome(ctx context.Context, requestID string) (OutcomeRecord, error)

	// AppendAudit records an out-of-band policy action.
	AppendAudit(ctx context.Context, entry AuditEntry) error

	// Close releases backend resources.
	Close() error
}

// Open constructs a store by backend name: "memory" or "sqlite" (dsn is the
// SQLite DSN, ignored for memory). Unknown names fail with
// ErrUnknownBackend.
func Open(backend, dsn string) (Store, error) {
	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
