package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentguard/blackbox/pkg/attestation"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
    request_id  TEXT PRIMARY KEY,
    input_hash  TEXT,
    output_hash TEXT,
    status      TEXT NOT NULL,
    error       TEXT,
    latency_ms  INTEGER NOT NULL,
    cost_cents  REAL NOT NULL,
    created_at  TEXT NOT NULL,
    attestation TEXT
);

CREATE TABLE IF NOT EXISTS audit_log (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    action     TEXT NOT NULL,
    reason     TEXT,
    timestamp  TEXT NOT NULL
);
`

// SQLStore is a relational implementation of Store over database/sql.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite-backed store at the given DSN and
// applies the schema.
func OpenSQLite(dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}

	store := NewSQLStore(db)
	if err := store.ApplySchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an existing database handle. The caller remains
// responsible for applying the schema when the database is not fresh.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// ApplySchema creates the outcomes and audit_log tables if absent.
func (s *SQLStore) ApplySchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("storage: apply schema: %w", err)
	}
	return nil
}

// StoreOutcome inserts one outcome row. The primary key on request_id
// surfaces duplicates as ErrDuplicateRequest.
func (s *SQLStore) StoreOutcome(ctx context.Context, record OutcomeRecord) error {
	var attJSON sql.NullString
	if record.Attestation != nil {
		raw, err := json.Marshal(record.Attestation)
		if err != nil {
			return fmt.Errorf("storage: marshal attestation: %w", err)
		}
		attJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO outcomes (request_id, input_hash, output_hash, status, error, latency_ms, cost_cents, created_at, attestation)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RequestID,
		nullable(record.InputHash),
		nullable(record.OutputHash),
		record.Status,
		nullable(record.Error),
		record.LatencyMS,
		record.CostCents,
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
		attJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateRequest, record.RequestID)
		}
		return fmt.Errorf("storage: insert outcome: %w", err)
	}
	return nil
}

// GetOutcome reads one outcome row by request ID.
func (s *SQLStore) GetOutcome(ctx context.Context, requestID string) (OutcomeRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT request_id, input_hash, output_hash, status, error, latency_ms, cost_cents, created_at, attestation
FROM outcomes WHERE request_id = ?`, requestID)

	var (
		record     OutcomeRecord
		inputHash  sql.NullString
		outputHash sql.NullString
		errText    sql.NullString
		createdAt  string
		attJSON    sql.NullString
	)
	err := row.Scan(&record.RequestID, &inputHash, &outputHash, &record.Status, &errText,
		&record.LatencyMS, &record.CostCents, &createdAt, &attJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return OutcomeRecord{}, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	if err != nil {
		return OutcomeRecord{}, fmt.Errorf("storage: scan outcome: %w", err)
	}

	record.InputHash = inputHash.String
	record.OutputHash = outputHash.String
	record.Error = errText.String

	record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return OutcomeRecord{}, fmt.Errorf("storage: parse created_at: %w", err)
	}

	if attJSON.Valid {
		var att attestation.Record
		if err := json.Unmarshal([]byte(attJSON.String), &att); err != nil {
			return OutcomeRecord{}, fmt.Errorf("storage: unmarshal attestation: %w", err)
		}
		record.Attestation = &att
	}
	return record, nil
}

// AppendAudit inserts one audit_log row.
func (s *SQLStore) AppendAudit(ctx context.Context, entry AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO audit_log (request_id, action, reason, timestamp)
VALUES (?, ?, ?, ?)`,
		entry.RequestID,
		entry.Action,
		entry.Reason,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storage: insert audit entry: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
