// Package registry maps symbolic token identifiers to on-chain mints and
// handles decimal <-> base-unit conversion.
package registry

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"solswap/internal/domain"
)

// Registry is an immutable symbol -> TokenConfig mapping.
type Registry struct {
	tokens map[string]domain.TokenConfig
}

// New builds a registry from the given configs. Symbols must be unique and
// non-empty; decimals must be non-negative.
func New(tokens []domain.TokenConfig) (*Registry, error) {
	m := make(map[string]domain.TokenConfig, len(tokens))
	for _, t := range tokens {
		if t.Symbol == "" {
			return nil, fmt.Errorf("token with empty symbol (mint %s)", t.ChainAddress)
		}
		if t.Decimals < 0 {
			return nil, fmt.Errorf("token %s: negative decimals %d", t.Symbol, t.Decimals)
		}
		if _, exists := m[t.Symbol]; exists {
			return nil, fmt.Errorf("duplicate token symbol %s", t.Symbol)
		}
		m[t.Symbol] = t
	}
	return &Registry{tokens: m}, nil
}

// Default returns a registry with the tokens the swap UI ships with.
func Default() *Registry {
	r, err := New([]domain.TokenConfig{
		{Symbol: "SOL", ChainAddress: domain.WrappedSOLMint, Decimals: 9},
		{Symbol: "USDC", ChainAddress: domain.USDCMint, Decimals: 6},
	})
	if err != nil {
		panic(err) // static config, unreachable
	}
	return r
}

// Resolve returns the config for symbol or ErrUnknownToken.
func (r *Registry) Resolve(symbol string) (domain.TokenConfig, error) {
	t, ok := r.tokens[symbol]
	if !ok {
		return domain.TokenConfig{}, fmt.Errorf("%w: %s", domain.ErrUnknownToken, symbol)
	}
	return t, nil
}

// DecimalsOf returns the base-unit scale for symbol.
func (r *Registry) DecimalsOf(symbol string) (int, error) {
	t, err := r.Resolve(symbol)
	if err != nil {
		return 0, err
	}
	return t.Decimals, nil
}

// ToBaseUnits converts a user-entered decimal amount to integer base units,
// flooring toward zero. Flooring matters: rounding up would request more
// than the user authorized.
func (r *Registry) ToBaseUnits(symbol, amount string) (uint64, error) {
	t, err := r.Resolve(symbol)
	if err != nil {
		return 0, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, &domain.ValidationError{Field: "amount", Reason: "not a decimal number"}
	}
	if d.IsNegative() {
		return 0, &domain.ValidationError{Field: "amount", Reason: "negative amount"}
	}

	scaled := d.Shift(int32(t.Decimals)).Truncate(0)
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, &domain.ValidationError{Field: "amount", Reason: "amount overflows base units"}
	}
	return bi.Uint64(), nil
}

// FromBaseUnits converts integer base units back to a decimal amount string.
// Trailing zeros are trimmed: 287500000 at 6 decimals renders "287.5".
func (r *Registry) FromBaseUnits(symbol string, baseUnits uint64) (string, error) {
	t, err := r.Resolve(symbol)
	if err != nil {
		return "", err
	}
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(baseUnits), -int32(t.Decimals))
	return d.String(), nil
}

// Symbols returns all registered symbols, order unspecified.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.tokens))
	for s := range r.tokens {
		out = append(out, s)
	}
	return out
}
