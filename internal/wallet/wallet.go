// Package wallet provides a local ed25519 signer for serialized
// Solana transactions. It holds key material in process and is meant
// for tooling and tests; production callers are expected to plug in
// their own signer.
package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"

	"solswap/internal/domain"
	"solswap/internal/swap"
)

const signatureLen = 64

var _ swap.Signer = (*LocalSigner)(nil)

// LocalSigner signs transactions with an in-memory ed25519 keypair.
type LocalSigner struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address string

	// Approve, when set, is consulted before every signature. Returning
	// false declines the signing without it being an error condition.
	Approve func(ctx context.Context) bool
}

// NewLocalSigner wraps an existing ed25519 private key.
func NewLocalSigner(priv ed25519.PrivateKey) (*LocalSigner, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &LocalSigner{
		priv:    priv,
		pub:     pub,
		address: base58.Encode(pub),
	}, nil
}

// NewLocalSignerFromSeed decodes a base58 32-byte seed into a signer.
func NewLocalSignerFromSeed(seed string) (*LocalSigner, error) {
	raw, err := base58.Decode(seed)
	if err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if len(raw) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(raw))
	}
	return NewLocalSigner(ed25519.NewKeyFromSeed(raw))
}

// GenerateLocalSigner creates a signer with a fresh random keypair.
func GenerateLocalSigner() (*LocalSigner, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return NewLocalSigner(priv)
}

func (s *LocalSigner) PublicKey() string {
	return s.address
}

// SignTransaction signs the message bytes of a base64-encoded
// serialized transaction and writes the signature into the slot
// matching this signer's account position. The transaction must list
// the signer's public key among its required signers.
func (s *LocalSigner) SignTransaction(ctx context.Context, unsignedBase64 string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Approve != nil && !s.Approve(ctx) {
		return "", domain.ErrSigningDeclined
	}

	raw, err := base64.StdEncoding.DecodeString(unsignedBase64)
	if err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}

	numSigs, sigArrayStart, err := decodeCompactU16(raw, 0)
	if err != nil {
		return "", fmt.Errorf("malformed transaction: %w", err)
	}
	msgStart := sigArrayStart + numSigs*signatureLen
	if msgStart > len(raw) {
		return "", fmt.Errorf("malformed transaction: signature array exceeds payload")
	}
	message := raw[msgStart:]

	slot, err := signerSlot(message, s.pub, numSigs)
	if err != nil {
		return "", err
	}

	sig := ed25519.Sign(s.priv, message)
	copy(raw[sigArrayStart+slot*signatureLen:], sig)
	return base64.StdEncoding.EncodeToString(raw), nil
}

// signerSlot locates pub among the message's required signers. Message
// layout: optional version byte (high bit set), 3-byte header whose
// first byte is the required-signature count, compact-u16 account
// count, then 32-byte account keys. Signature slots follow the order
// of the signer accounts.
func signerSlot(message []byte, pub ed25519.PublicKey, numSigs int) (int, error) {
	offset := 0
	if len(message) > 0 && message[0]&0x80 != 0 {
		offset++ // versioned transaction prefix
	}
	if len(message) < offset+3 {
		return 0, fmt.Errorf("malformed transaction: message header truncated")
	}
	required := int(message[offset])
	if required != numSigs {
		return 0, fmt.Errorf("malformed transaction: %d signature slots but %d required signers", numSigs, required)
	}
	offset += 3

	accounts, offset, err := decodeCompactU16(message, offset)
	if err != nil {
		return 0, fmt.Errorf("malformed transaction: %w", err)
	}
	if accounts < required || len(message) < offset+accounts*ed25519.PublicKeySize {
		return 0, fmt.Errorf("malformed transaction: account keys truncated")
	}

	for i := 0; i < required; i++ {
		key := message[offset+i*ed25519.PublicKeySize : offset+(i+1)*ed25519.PublicKeySize]
		if string(key) == string(pub) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("signer %s is not a required signer of this transaction", base58.Encode(pub))
}

// decodeCompactU16 reads Solana's compact-u16 length prefix.
func decodeCompactU16(b []byte, offset int) (int, int, error) {
	var value, shift uint
	for i := 0; i < 3; i++ {
		if offset >= len(b) {
			return 0, 0, fmt.Errorf("compact-u16 truncated")
		}
		c := uint(b[offset])
		offset++
		value |= (c & 0x7f) << shift
		if c&0x80 == 0 {
			if value > 0xffff {
				return 0, 0, fmt.Errorf("compact-u16 overflow")
			}
			return int(value), offset, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("compact-u16 too long")
}
