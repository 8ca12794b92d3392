package domain

import "time"

// AttemptStatus is the lifecycle state of a swap attempt.
type AttemptStatus string

// Attempt lifecycle states. Confirmed and Failed are terminal.
// Submitted with an expired confirmation wait is NOT Failed: the
// transaction may still land, and the caller is told to check an explorer.
const (
	AttemptPending   AttemptStatus = "pending"
	AttemptBuilt     AttemptStatus = "built"
	AttemptSigned    AttemptStatus = "signed"
	AttemptSubmitted AttemptStatus = "submitted"
	AttemptConfirmed AttemptStatus = "confirmed"
	AttemptFailed    AttemptStatus = "failed"
)

// Terminal reports whether the status is final.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptConfirmed || s == AttemptFailed
}

// SwapAttemptRecord captures one user-confirmed swap from creation to its
// terminal state. Intent and Quote are snapshots taken at confirmation time;
// the record is never mutated after reaching a terminal state.
type SwapAttemptRecord struct {
	RequestID  string
	Identity   string // wallet address the attempt was made for
	Intent     SwapIntent
	Quote      Quote
	Status     AttemptStatus
	Signature  string // set once submitted
	FailReason string // set when Status is failed
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
