package solana

import "context"

// Commitment levels, weakest to strongest.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// commitmentRank orders commitment levels for comparison.
func commitmentRank(c string) int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// RPCClient is the ledger interface the swap path needs.
type RPCClient interface {
	// GetBalance returns the lamport balance of an address.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// SendTransaction broadcasts a base64-encoded signed transaction and
	// returns its signature. Never retried internally: a duplicate send is
	// a double-submission risk.
	SendTransaction(ctx context.Context, signedBase64 string) (string, error)

	// GetSignatureStatuses returns the status of each signature, nil for
	// signatures the cluster has not seen.
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error)
}

// Confirmer waits for a submitted transaction to reach a commitment level.
type Confirmer interface {
	// WaitForConfirmation blocks until the signature reaches commitment,
	// the transaction errors on chain, or ctx expires. Expiry surfaces as
	// domain.ErrConfirmationTimeout: the outcome is unknown, not failed.
	WaitForConfirmation(ctx context.Context, signature, commitment string) error
}
