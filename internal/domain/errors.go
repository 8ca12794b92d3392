package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy for the swap path. Each failure mode has a distinct
// sentinel so callers can pick retry vs. abort messaging with errors.Is.
var (
	// ErrUnknownToken is returned by the registry for an unregistered symbol.
	ErrUnknownToken = errors.New("unknown token")

	// ErrValidation marks malformed input; the user must correct it.
	ErrValidation = errors.New("validation failed")

	// ErrRateLimited is recoverable once the window elapses.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrQuoteUnavailable is a transient upstream failure; retryable.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrStaleQuote means the intent changed since the quote was fetched.
	// Remediation is a re-quote, never a re-send of the same request.
	ErrStaleQuote = errors.New("stale quote")

	// ErrSigningDeclined is the user refusing to sign. Not a fault.
	ErrSigningDeclined = errors.New("signing declined")

	// ErrBroadcastFailed means the signed transaction was not accepted by
	// the network. Retry with a fresh quote.
	ErrBroadcastFailed = errors.New("broadcast failed")

	// ErrConfirmationTimeout means the transaction was submitted but
	// confirmation was not observed in time. Ambiguous: the transaction may
	// still land. Must never be presented as a definite failure.
	ErrConfirmationTimeout = errors.New("confirmation timeout: outcome unknown, check explorer")

	// ErrSecurityRejected is a gate reject verdict. Unlike ErrValidation it
	// may reflect heuristic policy rather than strict input malformation.
	ErrSecurityRejected = errors.New("security rejected")

	// ErrExecutionInFlight is returned when a second execution is requested
	// while one is outstanding for the same session.
	ErrExecutionInFlight = errors.New("execution already in flight")
)

// ValidationError carries which field failed and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) hold for all validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// SecurityRejectedError carries the full gate decision for UI surfacing.
type SecurityRejectedError struct {
	Decision *SecurityDecision
}

func (e *SecurityRejectedError) Error() string {
	msgs := make([]string, 0, len(e.Decision.Alerts))
	for _, a := range e.Decision.Alerts {
		msgs = append(msgs, a.Message)
	}
	return "security rejected: " + strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrSecurityRejected) hold.
func (e *SecurityRejectedError) Is(target error) bool {
	return target == ErrSecurityRejected
}
