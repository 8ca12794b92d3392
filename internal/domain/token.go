package domain

// TokenConfig describes a tradable token known to the registry.
// Immutable after registry construction.
type TokenConfig struct {
	Symbol       string // lookup key, e.g. "SOL"
	ChainAddress string // base58 mint address
	Decimals     int    // base-unit scale, e.g. 9 for SOL
}

// Well-known mainnet mints.
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)
