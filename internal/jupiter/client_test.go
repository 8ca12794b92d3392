package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"solswap/internal/domain"
)

const quoteDoc = `{
	"inputMint": "So11111111111111111111111111111111111111112",
	"inAmount": "1250000000",
	"outputMint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	"outAmount": "287500000",
	"otherAmountThreshold": "286062500",
	"swapMode": "ExactIn",
	"slippageBps": 50,
	"priceImpactPct": "0.12",
	"routePlan": [
		{"swapInfo": {"ammKey": "amm1", "label": "Orca",
			"inputMint": "So11111111111111111111111111111111111111112",
			"outputMint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			"inAmount": "1250000000", "outAmount": "287500000",
			"feeAmount": "1000", "feeMint": "So11111111111111111111111111111111111111112"},
		 "percent": 100}
	]
}`

func TestGetQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("inputMint") != domain.WrappedSOLMint {
			t.Errorf("inputMint = %s", q.Get("inputMint"))
		}
		if q.Get("amount") != "1250000000" {
			t.Errorf("amount = %s", q.Get("amount"))
		}
		if q.Get("slippageBps") != "50" {
			t.Errorf("slippageBps = %s", q.Get("slippageBps"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(quoteDoc))
	}))
	defer server.Close()

	client := NewClient(WithQuoteBaseURL(server.URL))
	quote, err := client.GetQuote(context.Background(), domain.WrappedSOLMint, domain.USDCMint, 1250000000, 50)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}

	if quote.OutAmount != "287500000" {
		t.Errorf("outAmount = %s", quote.OutAmount)
	}
	if len(quote.RoutePlan) != 1 || quote.RoutePlan[0].SwapInfo.Label != "Orca" {
		t.Errorf("unexpected route plan: %+v", quote.RoutePlan)
	}
	if len(quote.Raw()) == 0 {
		t.Error("raw document should be retained")
	}
}

func TestGetQuote_UpstreamErrorIsQuoteUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(WithQuoteBaseURL(server.URL))
	_, err := client.GetQuote(context.Background(), domain.WrappedSOLMint, domain.USDCMint, 1, 50)
	if !errors.Is(err, domain.ErrQuoteUnavailable) {
		t.Fatalf("expected ErrQuoteUnavailable, got %v", err)
	}
}

func TestGetQuote_NoRetry(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(WithQuoteBaseURL(server.URL))
	client.GetQuote(context.Background(), domain.WrappedSOLMint, domain.USDCMint, 1, 50)

	if calls != 1 {
		t.Fatalf("quote fetch made %d requests, want exactly 1", calls)
	}
}

func TestBuildSwapTransaction_ReplaysRawQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/swap" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			QuoteResponse json.RawMessage `json:"quoteResponse"`
			UserPublicKey string          `json:"userPublicKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.UserPublicKey != "wallet123" {
			t.Errorf("userPublicKey = %s", req.UserPublicKey)
		}
		var echoed QuoteResponse
		if err := json.Unmarshal(req.QuoteResponse, &echoed); err != nil {
			t.Fatalf("quoteResponse not replayed verbatim: %v", err)
		}
		if echoed.OutAmount != "287500000" {
			t.Errorf("replayed outAmount = %s", echoed.OutAmount)
		}
		json.NewEncoder(w).Encode(map[string]string{"swapTransaction": "cGF5bG9hZA=="})
	}))
	defer server.Close()

	client := NewClient(WithQuoteBaseURL(server.URL))
	quote := &QuoteResponse{OutAmount: "287500000", raw: json.RawMessage(quoteDoc)}

	payload, err := client.BuildSwapTransaction(context.Background(), quote, "wallet123")
	if err != nil {
		t.Fatalf("BuildSwapTransaction: %v", err)
	}
	if payload != "cGF5bG9hZA==" {
		t.Errorf("payload = %s", payload)
	}
}

func TestGetPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") == "" {
			t.Error("missing ids parameter")
		}
		w.Write([]byte(`{"data": {"` + domain.WrappedSOLMint + `": {"price": 142.5}}}`))
	}))
	defer server.Close()

	client := NewClient(WithPriceBaseURL(server.URL))
	prices, err := client.GetPrices(context.Background(), domain.WrappedSOLMint, domain.USDCMint)
	if err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if prices[domain.WrappedSOLMint] != 142.5 {
		t.Errorf("SOL price = %f", prices[domain.WrappedSOLMint])
	}
	if _, ok := prices[domain.USDCMint]; ok {
		t.Error("mint absent upstream should be absent in result")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(WithQuoteBaseURL(server.URL), WithRateLimit(1000, 1000))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		client.GetQuote(ctx, domain.WrappedSOLMint, domain.USDCMint, 1, 50)
	}

	if calls >= 10 {
		t.Fatalf("breaker never opened: %d requests reached upstream", calls)
	}

	_, err := client.GetQuote(ctx, domain.WrappedSOLMint, domain.USDCMint, 1, 50)
	if !errors.Is(err, domain.ErrQuoteUnavailable) {
		t.Fatalf("open breaker should still surface ErrQuoteUnavailable, got %v", err)
	}
}

func TestQuoteResponseToDomain(t *testing.T) {
	var quote QuoteResponse
	if err := json.Unmarshal([]byte(quoteDoc), &quote); err != nil {
		t.Fatal(err)
	}

	fetchedAt := time.Unix(1_700_000_000, 0)
	d, err := quote.ToDomain("SOL>USDC|1.25|50", fetchedAt)
	if err != nil {
		t.Fatalf("ToDomain: %v", err)
	}

	if d.InAmountBaseUnits != 1250000000 {
		t.Errorf("inAmount = %d", d.InAmountBaseUnits)
	}
	if d.OutAmountBaseUnits != 287500000 {
		t.Errorf("outAmount = %d", d.OutAmountBaseUnits)
	}
	if d.OtherAmountThreshold != 286062500 {
		t.Errorf("threshold = %d", d.OtherAmountThreshold)
	}
	if d.PriceImpactPct != "0.12" {
		t.Errorf("priceImpact = %s", d.PriceImpactPct)
	}
	if len(d.Route) != 1 || d.Route[0].Label != "Orca" {
		t.Errorf("route = %+v", d.Route)
	}
	if !d.Fresh(10*time.Second, fetchedAt.Add(5*time.Second)) {
		t.Error("quote should be fresh at 5s with 10s window")
	}
	if d.Fresh(10*time.Second, fetchedAt.Add(11*time.Second)) {
		t.Error("quote should be stale at 11s with 10s window")
	}
}
