// Package memory provides in-memory implementations of the storage
// interfaces, used in tests and single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"solswap/internal/domain"
	"solswap/internal/storage"
)

// AttemptStore is an in-memory implementation of storage.AttemptStore.
type AttemptStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SwapAttemptRecord // keyed by request_id
}

// NewAttemptStore creates a new in-memory attempt store.
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		data: make(map[string]*domain.SwapAttemptRecord),
	}
}

// Insert adds a new attempt. Returns ErrDuplicateKey if request_id exists.
func (s *AttemptStore) Insert(_ context.Context, rec *domain.SwapAttemptRecord) error {
	if rec == nil || rec.RequestID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[rec.RequestID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *rec
	s.data[rec.RequestID] = &copy
	return nil
}

// UpdateStatus advances an attempt's status. Terminal records are immutable.
func (s *AttemptStore) UpdateStatus(_ context.Context, requestID string, status domain.AttemptStatus, signature, failReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.data[requestID]
	if !exists {
		return storage.ErrNotFound
	}
	if rec.Status.Terminal() {
		return storage.ErrTerminalAttempt
	}

	rec.Status = status
	if signature != "" {
		rec.Signature = signature
	}
	if failReason != "" {
		rec.FailReason = failReason
	}
	rec.UpdatedAt = nowUTC()
	return nil
}

// GetByRequestID retrieves one attempt. Returns ErrNotFound if absent.
func (s *AttemptStore) GetByRequestID(_ context.Context, requestID string) (*domain.SwapAttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.data[requestID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *rec
	return &copy, nil
}

// GetByIdentity retrieves attempts for a wallet, newest first.
func (s *AttemptStore) GetByIdentity(_ context.Context, identity string, limit int) ([]*domain.SwapAttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapAttemptRecord
	for _, rec := range s.data {
		if rec.Identity != identity {
			continue
		}
		copy := *rec
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
