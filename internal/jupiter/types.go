package jupiter

import (
	"encoding/json"
	"strconv"
	"time"

	"solswap/internal/domain"
)

// QuoteResponse is the aggregator's quote document. Amount fields are
// decimal strings of base units, exactly as the upstream sends them. The
// raw document is retained because the swap build endpoint requires it to
// be replayed verbatim.
type QuoteResponse struct {
	InputMint            string          `json:"inputMint"`
	InAmount             string          `json:"inAmount"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            []RoutePlanStep `json:"routePlan"`

	raw json.RawMessage
}

// RoutePlanStep is one hop of the routing plan.
type RoutePlanStep struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

// SwapInfo describes the venue used by a route step.
type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// Raw returns the upstream document as received.
func (q *QuoteResponse) Raw() json.RawMessage {
	return q.raw
}

// ToDomain converts the upstream document into the immutable Quote the
// rest of the system works with.
func (q *QuoteResponse) ToDomain(intentKey string, fetchedAt time.Time) (*domain.Quote, error) {
	inAmount, err := strconv.ParseUint(q.InAmount, 10, 64)
	if err != nil {
		return nil, &domain.ValidationError{Field: "inAmount", Reason: "not an unsigned integer"}
	}
	outAmount, err := strconv.ParseUint(q.OutAmount, 10, 64)
	if err != nil {
		return nil, &domain.ValidationError{Field: "outAmount", Reason: "not an unsigned integer"}
	}
	threshold, err := strconv.ParseUint(q.OtherAmountThreshold, 10, 64)
	if err != nil {
		return nil, &domain.ValidationError{Field: "otherAmountThreshold", Reason: "not an unsigned integer"}
	}

	route := make([]domain.RouteStep, 0, len(q.RoutePlan))
	for _, step := range q.RoutePlan {
		route = append(route, domain.RouteStep{
			Label:      step.SwapInfo.Label,
			InputMint:  step.SwapInfo.InputMint,
			OutputMint: step.SwapInfo.OutputMint,
			Percent:    step.Percent,
		})
	}

	return &domain.Quote{
		InputMint:            q.InputMint,
		OutputMint:           q.OutputMint,
		InAmountBaseUnits:    inAmount,
		OutAmountBaseUnits:   outAmount,
		OtherAmountThreshold: threshold,
		SlippageBps:          q.SlippageBps,
		PriceImpactPct:       q.PriceImpactPct,
		Route:                route,
		IntentKey:            intentKey,
		FetchedAt:            fetchedAt,
	}, nil
}

// swapRequest is the build-transaction request body.
type swapRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
}

// swapResponse carries the base64-encoded unsigned transaction.
type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// priceResponse is the display price document.
type priceResponse struct {
	Data map[string]struct {
		Price float64 `json:"price"`
	} `json:"data"`
}
