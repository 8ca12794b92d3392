package memory

import (
	"context"
	"sync"
	"time"

	"solswap/internal/domain"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// SecurityEventStore is an in-memory implementation of
// storage.SecurityEventStore. Events are held in arrival order.
type SecurityEventStore struct {
	mu     sync.RWMutex
	events []domain.SecurityEvent
}

// NewSecurityEventStore creates a new in-memory security event store.
func NewSecurityEventStore() *SecurityEventStore {
	return &SecurityEventStore{}
}

// AppendEvent records one gate event.
func (s *SecurityEventStore) AppendEvent(_ context.Context, ev domain.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// EventsSince retrieves events at or after the cutoff, oldest first.
func (s *SecurityEventStore) EventsSince(_ context.Context, cutoff time.Time) ([]domain.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.SecurityEvent
	for _, ev := range s.events {
		if !ev.Timestamp.Before(cutoff) {
			result = append(result, ev)
		}
	}
	return result, nil
}
