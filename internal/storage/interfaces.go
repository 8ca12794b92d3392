// Package storage defines the persistence interfaces behind the swap path.
package storage

import (
	"context"
	"time"

	"solswap/internal/domain"
)

// AttemptStore provides access to swap attempt records.
type AttemptStore interface {
	// Insert adds a new attempt. Returns ErrDuplicateKey if request_id exists.
	Insert(ctx context.Context, rec *domain.SwapAttemptRecord) error

	// UpdateStatus advances an attempt's status. Returns ErrNotFound if the
	// request_id does not exist, ErrTerminalAttempt if the stored record
	// already reached a terminal status.
	UpdateStatus(ctx context.Context, requestID string, status domain.AttemptStatus, signature, failReason string) error

	// GetByRequestID retrieves one attempt. Returns ErrNotFound if absent.
	GetByRequestID(ctx context.Context, requestID string) (*domain.SwapAttemptRecord, error)

	// GetByIdentity retrieves attempts for a wallet, newest first.
	GetByIdentity(ctx context.Context, identity string, limit int) ([]*domain.SwapAttemptRecord, error)
}

// SecurityEventStore persists gate events beyond the in-memory window.
type SecurityEventStore interface {
	// AppendEvent records one gate event. Append-only.
	AppendEvent(ctx context.Context, ev domain.SecurityEvent) error

	// EventsSince retrieves events at or after the cutoff, oldest first.
	EventsSince(ctx context.Context, cutoff time.Time) ([]domain.SecurityEvent, error)
}
