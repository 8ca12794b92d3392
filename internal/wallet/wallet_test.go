package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"solswap/internal/domain"
)

// unsignedTx builds a minimal serialized transaction with a single
// zeroed signature slot for the given fee payer.
func unsignedTx(t *testing.T, feePayer ed25519.PublicKey, versioned bool) string {
	t.Helper()

	other := make([]byte, ed25519.PublicKeySize)
	for i := range other {
		other[i] = 0xAB
	}
	blockhash := make([]byte, 32)
	for i := range blockhash {
		blockhash[i] = 0xCD
	}

	var msg []byte
	if versioned {
		msg = append(msg, 0x80)
	}
	msg = append(msg, 1, 0, 1) // 1 required signer, 0 readonly signed, 1 readonly unsigned
	msg = append(msg, 2)       // account count
	msg = append(msg, feePayer...)
	msg = append(msg, other...)
	msg = append(msg, blockhash...)
	msg = append(msg, 0) // no instructions

	raw := append([]byte{1}, make([]byte, signatureLen)...)
	raw = append(raw, msg...)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestLocalSignerSignTransaction(t *testing.T) {
	s, err := GenerateLocalSigner()
	require.NoError(t, err)

	for _, versioned := range []bool{false, true} {
		signed, err := s.SignTransaction(context.Background(), unsignedTx(t, s.pub, versioned))
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(signed)
		require.NoError(t, err)

		sig := raw[1 : 1+signatureLen]
		msg := raw[1+signatureLen:]
		require.True(t, ed25519.Verify(s.pub, msg, sig), "signature must verify against message bytes")
	}
}

func TestLocalSignerRejectsForeignTransaction(t *testing.T) {
	s, err := GenerateLocalSigner()
	require.NoError(t, err)
	stranger, err := GenerateLocalSigner()
	require.NoError(t, err)

	_, err = s.SignTransaction(context.Background(), unsignedTx(t, stranger.pub, false))
	require.ErrorContains(t, err, "not a required signer")
}

func TestLocalSignerApproveDeclines(t *testing.T) {
	s, err := GenerateLocalSigner()
	require.NoError(t, err)
	s.Approve = func(context.Context) bool { return false }

	_, err = s.SignTransaction(context.Background(), unsignedTx(t, s.pub, false))
	require.True(t, errors.Is(err, domain.ErrSigningDeclined))
}

func TestLocalSignerMalformedPayloads(t *testing.T) {
	s, err := GenerateLocalSigner()
	require.NoError(t, err)

	cases := map[string]string{
		"not base64":          "!!!",
		"empty":               base64.StdEncoding.EncodeToString(nil),
		"truncated sig array": base64.StdEncoding.EncodeToString([]byte{2, 0, 0, 0}),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.SignTransaction(context.Background(), payload)
			require.Error(t, err)
		})
	}
}

func TestLocalSignerFromSeed(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	s, err := NewLocalSignerFromSeed(base58.Encode(seed))
	require.NoError(t, err)

	want := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	require.Equal(t, base58.Encode(want), s.PublicKey())

	_, err = NewLocalSignerFromSeed(base58.Encode(seed[:16]))
	require.ErrorContains(t, err, "seed must be")
}

func TestLocalSignerContextCancelled(t *testing.T) {
	s, err := GenerateLocalSigner()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.SignTransaction(ctx, unsignedTx(t, s.pub, false))
	require.ErrorIs(t, err, context.Canceled)
}
