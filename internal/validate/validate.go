// Package validate provides stateless checks on amounts, addresses and
// signatures. All functions are pure; none touch the network.
package validate

import (
	"math"
	"strconv"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"solswap/internal/domain"
)

// MaxFractionalDigits bounds user-entered precision. Solana's finest token
// scale in this app is 9 (lamports); anything finer is a precision attack
// or a typo.
const MaxFractionalDigits = 9

const (
	publicKeyLen = 32
	signatureLen = 64
)

// Result is the outcome of one validation check.
type Result struct {
	IsValid bool
	Err     *domain.ValidationError
}

func valid() Result { return Result{IsValid: true} }

func invalid(field, reason string) Result {
	return Result{Err: &domain.ValidationError{Field: field, Reason: reason}}
}

// Amount checks a user-entered amount against [min, max] and the precision
// bound. The raw string is inspected for fractional digits so "0.0000000001"
// is rejected even though it parses to a representable float.
func Amount(raw string, min, max float64) Result {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return invalid("amount", "empty")
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return invalid("amount", "not a finite number")
	}
	if f < min {
		return invalid("amount", "below minimum "+strconv.FormatFloat(min, 'f', -1, 64))
	}
	if f > max {
		return invalid("amount", "above maximum "+strconv.FormatFloat(max, 'f', -1, 64))
	}
	if fractionalDigits(raw) > MaxFractionalDigits {
		return invalid("amount", "too many decimal places")
	}
	return valid()
}

func fractionalDigits(raw string) int {
	// Scientific notation is already beyond what a human types into the
	// amount box; count it as over-precise.
	if strings.ContainsAny(raw, "eE") {
		return MaxFractionalDigits + 1
	}
	_, frac, ok := strings.Cut(raw, ".")
	if !ok {
		return 0
	}
	return len(frac)
}

// Address checks that s is a syntactically valid on-chain public key:
// base58 with a 32-byte decode.
func Address(s string) Result {
	raw, err := base58.Decode(s)
	if err != nil {
		return invalid("address", "not base58")
	}
	if len(raw) != publicKeyLen {
		return invalid("address", "decoded length is not 32 bytes")
	}
	return valid()
}

// SignatureFormat checks that s is a syntactically valid transaction
// signature: base58 with a 64-byte decode.
func SignatureFormat(s string) Result {
	raw, err := base58.Decode(s)
	if err != nil {
		return invalid("signature", "not base58")
	}
	if len(raw) != signatureLen {
		return invalid("signature", "decoded length is not 64 bytes")
	}
	return valid()
}

// IsOnCurve reports whether the address decodes to a valid ed25519 point.
// Wallet identities are ed25519 public keys and sit on the curve;
// program-derived addresses deliberately do not. Callers treat off-curve
// identities as unusual, not invalid.
func IsOnCurve(address string) bool {
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != publicKeyLen {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// SanitizeText strips markup-bearing content from free text. Defense in
// depth for fields that might be persisted or displayed; not a security
// boundary for the swap path itself.
func SanitizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))

	inTag := false
	for _, r := range input {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	out := b.String()
	for _, scheme := range []string{"javascript:", "vbscript:", "data:"} {
		for {
			idx := strings.Index(strings.ToLower(out), scheme)
			if idx < 0 {
				break
			}
			out = out[:idx] + out[idx+len(scheme):]
		}
	}
	return strings.TrimSpace(out)
}
