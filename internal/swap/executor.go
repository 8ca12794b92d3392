// Package swap executes a user-confirmed swap: build, sign, submit,
// confirm, with every transition recorded.
package swap

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"solswap/internal/domain"
	"solswap/internal/jupiter"
	"solswap/internal/observability"
	"solswap/internal/quote"
	"solswap/internal/solana"
	"solswap/internal/storage"
	"solswap/internal/validate"
)

// Default executor configuration.
const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultCommitment     = solana.CommitmentConfirmed
)

// Signer is the externally supplied wallet capability. It may decline,
// surfaced as domain.ErrSigningDeclined, which is a normal outcome.
type Signer interface {
	// PublicKey returns the base58 address signing transactions.
	PublicKey() string

	// SignTransaction signs a base64-encoded unsigned transaction and
	// returns the signed payload, base64-encoded.
	SignTransaction(ctx context.Context, unsignedBase64 string) (string, error)
}

// TransactionBuilder obtains the unsigned transaction for an accepted quote.
type TransactionBuilder interface {
	BuildSwapTransaction(ctx context.Context, q *jupiter.QuoteResponse, userPublicKey string) (string, error)
}

// Sender broadcasts a signed transaction.
type Sender interface {
	SendTransaction(ctx context.Context, signedBase64 string) (string, error)
}

// Gate is the pre-swap security check.
type Gate interface {
	Evaluate(identity string, intent domain.SwapIntent, op domain.OperationKind) *domain.SecurityDecision
}

// Executor drives one swap attempt through
// Pending -> Built -> Signed -> Submitted -> Confirmed | Failed.
// One execution may be in flight at a time; a second is rejected.
type Executor struct {
	builder   TransactionBuilder
	sender    Sender
	confirmer solana.Confirmer
	gate      Gate
	store     storage.AttemptStore
	logger    zerolog.Logger

	maxQuoteAge    time.Duration
	confirmTimeout time.Duration
	commitment     string
	now            func() time.Time

	inFlight atomic.Bool
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxQuoteAge sets how old a quote may be and still execute.
func WithMaxQuoteAge(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.maxQuoteAge = d }
}

// WithConfirmTimeout bounds the wait for network confirmation.
func WithConfirmTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.confirmTimeout = d }
}

// WithCommitment sets the confirmation commitment level.
func WithCommitment(c string) ExecutorOption {
	return func(e *Executor) { e.commitment = c }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates a swap executor.
func NewExecutor(builder TransactionBuilder, sender Sender, confirmer solana.Confirmer, gate Gate, store storage.AttemptStore, opts ...ExecutorOption) *Executor {
	e := &Executor{
		builder:        builder,
		sender:         sender,
		confirmer:      confirmer,
		gate:           gate,
		store:          store,
		logger:         zerolog.Nop(),
		maxQuoteAge:    quote.DefaultMaxQuoteAge,
		confirmTimeout: DefaultConfirmTimeout,
		commitment:     DefaultCommitment,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "swap_executor").Logger()
	return e
}

// Execute runs one swap attempt. The returned record reflects the attempt's
// final state even when err is non-nil; a nil record means the attempt was
// refused before it was created. ErrConfirmationTimeout leaves the record
// Submitted, never Failed: the transaction may still land.
func (e *Executor) Execute(ctx context.Context, identity string, intent domain.SwapIntent, snap *quote.Snapshot, signer Signer) (*domain.SwapAttemptRecord, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, domain.ErrExecutionInFlight
	}
	defer e.inFlight.Store(false)

	if snap == nil || snap.Quote == nil {
		return nil, domain.ErrStaleQuote
	}
	if !snap.Quote.Matches(intent) {
		observability.RecordQuoteStale()
		return nil, fmt.Errorf("quote is for %q, intent is %q: %w", snap.Quote.IntentKey, intent.Key(), domain.ErrStaleQuote)
	}
	if !snap.Quote.Fresh(e.maxQuoteAge, e.now()) {
		observability.RecordQuoteStale()
		return nil, fmt.Errorf("quote expired: %w", domain.ErrStaleQuote)
	}

	// Gate re-check before any network call. The pre-quote check may be
	// minutes old by the time the user confirms.
	decision := e.gate.Evaluate(identity, intent, domain.OpSwap)
	if decision.Rejected() {
		return nil, &domain.SecurityRejectedError{Decision: decision}
	}

	rec := &domain.SwapAttemptRecord{
		RequestID: uuid.NewString(),
		Identity:  identity,
		Intent:    intent,
		Quote:     *snap.Quote,
		Status:    domain.AttemptPending,
		CreatedAt: e.now(),
		UpdatedAt: e.now(),
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		// Persistence is observational; a store outage must not block the swap.
		e.logger.Warn().Err(err).Str("request_id", rec.RequestID).Msg("attempt insert failed")
	}

	logger := e.logger.With().
		Str("request_id", rec.RequestID).
		Str("identity", identity).
		Str("intent", intent.Key()).
		Logger()

	unsigned, err := e.builder.BuildSwapTransaction(ctx, snap.Response, signer.PublicKey())
	if err != nil {
		return rec, e.fail(ctx, rec, fmt.Errorf("build transaction: %w", err))
	}
	e.transition(ctx, rec, domain.AttemptBuilt, "", "")
	observability.RecordQuoteUsed()

	signed, err := signer.SignTransaction(ctx, unsigned)
	if err != nil {
		if errors.Is(err, domain.ErrSigningDeclined) {
			logger.Info().Msg("signing declined")
			return rec, e.fail(ctx, rec, err)
		}
		return rec, e.fail(ctx, rec, fmt.Errorf("sign transaction: %w", err))
	}
	e.transition(ctx, rec, domain.AttemptSigned, "", "")

	signature, err := e.sender.SendTransaction(ctx, signed)
	if err != nil {
		return rec, e.fail(ctx, rec, fmt.Errorf("%w: %v", domain.ErrBroadcastFailed, err))
	}
	if res := validate.SignatureFormat(signature); !res.IsValid {
		// A malformed signature out of the broadcast path is an internal
		// fault, never reported as success.
		return rec, e.fail(ctx, rec, fmt.Errorf("%w: malformed signature %q from broadcast", domain.ErrBroadcastFailed, signature))
	}
	rec.Signature = signature
	e.transition(ctx, rec, domain.AttemptSubmitted, signature, "")
	logger.Info().Str("signature", signature).Msg("transaction submitted")

	confirmCtx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()
	if err := e.confirmer.WaitForConfirmation(confirmCtx, signature, e.commitment); err != nil {
		if errors.Is(err, domain.ErrConfirmationTimeout) {
			// Outcome unknown. The record stays Submitted.
			logger.Warn().Str("signature", signature).Msg("confirmation wait expired, outcome unknown")
			observability.RecordSwapAttempt(string(domain.AttemptSubmitted))
			return rec, err
		}
		return rec, e.fail(ctx, rec, fmt.Errorf("confirmation: %w", err))
	}

	e.transition(ctx, rec, domain.AttemptConfirmed, signature, "")
	observability.RecordSwapAttempt(string(domain.AttemptConfirmed))
	logger.Info().Str("signature", signature).Msg("swap confirmed")
	return rec, nil
}

// transition advances the in-memory record and mirrors it to the store.
func (e *Executor) transition(ctx context.Context, rec *domain.SwapAttemptRecord, status domain.AttemptStatus, signature, failReason string) {
	rec.Status = status
	rec.UpdatedAt = e.now()
	if err := e.store.UpdateStatus(ctx, rec.RequestID, status, signature, failReason); err != nil {
		e.logger.Warn().Err(err).
			Str("request_id", rec.RequestID).
			Str("status", string(status)).
			Msg("attempt update failed")
	}
}

// fail marks the record Failed with the error as reason and returns the error.
func (e *Executor) fail(ctx context.Context, rec *domain.SwapAttemptRecord, cause error) error {
	rec.FailReason = cause.Error()
	e.transition(ctx, rec, domain.AttemptFailed, rec.Signature, rec.FailReason)
	observability.RecordSwapAttempt(string(domain.AttemptFailed))
	return cause
}
