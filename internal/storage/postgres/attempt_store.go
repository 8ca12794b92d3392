package postgres

import (
	"context"
	"fmt"

	"solswap/internal/domain"
	"solswap/internal/storage"
)

// AttemptStore implements storage.AttemptStore using PostgreSQL.
type AttemptStore struct {
	pool *Pool
}

// NewAttemptStore creates a new AttemptStore.
func NewAttemptStore(pool *Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AttemptStore = (*AttemptStore)(nil)

// Insert adds a new attempt. Returns ErrDuplicateKey if request_id exists.
func (s *AttemptStore) Insert(ctx context.Context, rec *domain.SwapAttemptRecord) error {
	if rec == nil || rec.RequestID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO swap_attempts (
			request_id, identity, from_token, to_token, raw_amount, slippage_bps,
			in_amount, out_amount, other_amount_threshold, price_impact_pct, intent_key, quote_fetched_at,
			status, signature, fail_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.RequestID,
		rec.Identity,
		rec.Intent.FromToken,
		rec.Intent.ToToken,
		rec.Intent.RawAmount,
		rec.Intent.SlippageBps,
		int64(rec.Quote.InAmountBaseUnits),
		int64(rec.Quote.OutAmountBaseUnits),
		int64(rec.Quote.OtherAmountThreshold),
		rec.Quote.PriceImpactPct,
		rec.Quote.IntentKey,
		rec.Quote.FetchedAt,
		string(rec.Status),
		rec.Signature,
		rec.FailReason,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// UpdateStatus advances an attempt's status. Terminal records are immutable.
func (s *AttemptStore) UpdateStatus(ctx context.Context, requestID string, status domain.AttemptStatus, signature, failReason string) error {
	query := `
		UPDATE swap_attempts
		SET status = $2,
		    signature = CASE WHEN $3 <> '' THEN $3 ELSE signature END,
		    fail_reason = CASE WHEN $4 <> '' THEN $4 ELSE fail_reason END,
		    updated_at = now()
		WHERE request_id = $1 AND status NOT IN ('confirmed', 'failed')
	`

	tag, err := s.pool.Exec(ctx, query, requestID, string(status), signature, failReason)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No row changed: missing, or already terminal.
	var existing string
	err = s.pool.QueryRow(ctx, `SELECT status FROM swap_attempts WHERE request_id = $1`, requestID).Scan(&existing)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("check attempt status: %w", err)
	}
	return storage.ErrTerminalAttempt
}

// GetByRequestID retrieves one attempt. Returns ErrNotFound if absent.
func (s *AttemptStore) GetByRequestID(ctx context.Context, requestID string) (*domain.SwapAttemptRecord, error) {
	query := selectAttempt + ` WHERE request_id = $1`

	rec, err := scanAttempt(s.pool.QueryRow(ctx, query, requestID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return rec, nil
}

// GetByIdentity retrieves attempts for a wallet, newest first.
func (s *AttemptStore) GetByIdentity(ctx context.Context, identity string, limit int) ([]*domain.SwapAttemptRecord, error) {
	query := selectAttempt + ` WHERE identity = $1 ORDER BY created_at DESC`
	args := []interface{}{identity}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var result []*domain.SwapAttemptRecord
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

const selectAttempt = `
	SELECT request_id, identity, from_token, to_token, raw_amount, slippage_bps,
	       in_amount, out_amount, other_amount_threshold, price_impact_pct, intent_key, quote_fetched_at,
	       status, signature, fail_reason, created_at, updated_at
	FROM swap_attempts`

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAttempt(row rowScanner) (*domain.SwapAttemptRecord, error) {
	var rec domain.SwapAttemptRecord
	var inAmount, outAmount, threshold int64
	var status string

	err := row.Scan(
		&rec.RequestID,
		&rec.Identity,
		&rec.Intent.FromToken,
		&rec.Intent.ToToken,
		&rec.Intent.RawAmount,
		&rec.Intent.SlippageBps,
		&inAmount,
		&outAmount,
		&threshold,
		&rec.Quote.PriceImpactPct,
		&rec.Quote.IntentKey,
		&rec.Quote.FetchedAt,
		&status,
		&rec.Signature,
		&rec.FailReason,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Quote.InAmountBaseUnits = uint64(inAmount)
	rec.Quote.OutAmountBaseUnits = uint64(outAmount)
	rec.Quote.OtherAmountThreshold = uint64(threshold)
	rec.Status = domain.AttemptStatus(status)
	return &rec, nil
}
