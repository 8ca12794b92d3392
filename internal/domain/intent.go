package domain

import "fmt"

// SwapIntent is the user's declared exchange: sell RawAmount of FromToken
// for ToToken, tolerating SlippageBps of deviation. RawAmount is the exact
// text the user entered; it is parsed lazily by the registry so no precision
// is lost before validation.
type SwapIntent struct {
	FromToken   string
	ToToken     string
	RawAmount   string
	SlippageBps int
}

// Key returns the intent identity used for quote supersession: a quote
// response is only applied if the intent it was requested for is still the
// current one.
func (i SwapIntent) Key() string {
	return fmt.Sprintf("%s>%s|%s|%d", i.FromToken, i.ToToken, i.RawAmount, i.SlippageBps)
}

// SamePair reports whether both intents trade the same direction.
func (i SwapIntent) SamePair(other SwapIntent) bool {
	return i.FromToken == other.FromToken && i.ToToken == other.ToToken
}
