package domain

import "time"

// RouteStep is one hop of the aggregator's routing plan, kept for display.
type RouteStep struct {
	Label      string // venue label, e.g. "Orca"
	InputMint  string
	OutputMint string
	Percent    int // share of the input routed through this hop
}

// Quote is a priced, time-bounded offer returned by the aggregator.
// Immutable once returned. OutAmountBaseUnits and OtherAmountThreshold are
// the execution-determining values; display-side USD conversions live
// elsewhere and never feed back into execution.
type Quote struct {
	InputMint            string
	OutputMint           string
	InAmountBaseUnits    uint64
	OutAmountBaseUnits   uint64
	OtherAmountThreshold uint64 // minimum acceptable out amount at the quoted slippage
	SlippageBps          int
	PriceImpactPct       string // aggregator-provided, authoritative
	Route                []RouteStep
	IntentKey            string // identity of the intent this quote was fetched for
	FetchedAt            time.Time
}

// Fresh reports whether the quote is still within its freshness window.
func (q *Quote) Fresh(maxAge time.Duration, now time.Time) bool {
	return now.Sub(q.FetchedAt) <= maxAge
}

// Matches reports whether the quote still corresponds to the given intent.
// A mismatch means the user changed tokens or amount after the quote was
// fetched; executing against it would trade something the user did not ask for.
func (q *Quote) Matches(intent SwapIntent) bool {
	return q.IntentKey == intent.Key()
}
