package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solswap/internal/domain"
	"solswap/internal/storage"
)

// SecurityEventStore implements storage.SecurityEventStore using ClickHouse.
// The gate's in-memory log holds the 24h working window; this store is the
// durable audit trail behind it.
type SecurityEventStore struct {
	conn *Conn
}

// NewSecurityEventStore creates a new SecurityEventStore.
func NewSecurityEventStore(conn *Conn) *SecurityEventStore {
	return &SecurityEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SecurityEventStore = (*SecurityEventStore)(nil)

// AppendEvent records one gate event. Append-only.
func (s *SecurityEventStore) AppendEvent(ctx context.Context, ev domain.SecurityEvent) error {
	query := `
		INSERT INTO security_events (
			timestamp, event_type, severity, identity, operation, detail
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	err := s.conn.Exec(ctx, query,
		ev.Timestamp,
		ev.Type,
		ev.Severity,
		ev.Identity,
		string(ev.Operation),
		ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

// EventsSince retrieves events at or after the cutoff, oldest first.
func (s *SecurityEventStore) EventsSince(ctx context.Context, cutoff time.Time) ([]domain.SecurityEvent, error) {
	query := `
		SELECT timestamp, event_type, severity, identity, operation, detail
		FROM security_events
		WHERE timestamp >= $1
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}
	defer rows.Close()

	var result []domain.SecurityEvent
	for rows.Next() {
		var ev domain.SecurityEvent
		var operation string
		if err := rows.Scan(&ev.Timestamp, &ev.Type, &ev.Severity, &ev.Identity, &operation, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}
		ev.Operation = domain.OperationKind(operation)
		result = append(result, ev)
	}
	return result, rows.Err()
}
