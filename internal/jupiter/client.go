// Package jupiter is the HTTP client for the external liquidity
// aggregator. The aggregator is an opaque pricing oracle: this client
// fetches quotes, builds unsigned swap transactions for an accepted quote,
// and reads display-side prices. It never retries a quote on its own; the
// caller decides whether to re-request.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"solswap/internal/domain"
	"solswap/internal/observability"
)

// Default configuration values.
const (
	DefaultQuoteBaseURL = "https://quote-api.jup.ag/v6"
	DefaultPriceBaseURL = "https://price.jup.ag/v4"
	DefaultTimeout      = 15 * time.Second

	// DefaultRequestsPerSecond throttles outbound traffic so combined
	// debounce and refresh activity cannot storm the upstream.
	DefaultRequestsPerSecond = 5
	DefaultBurst             = 5
)

// Client talks to the aggregator's quote, swap and price endpoints.
type Client struct {
	quoteBaseURL string
	priceBaseURL string
	client       *http.Client
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker[[]byte]
	logger       zerolog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithQuoteBaseURL overrides the quote/swap endpoint base.
func WithQuoteBaseURL(u string) Option {
	return func(c *Client) { c.quoteBaseURL = u }
}

// WithPriceBaseURL overrides the price endpoint base.
func WithPriceBaseURL(u string) Option {
	return func(c *Client) { c.priceBaseURL = u }
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithRateLimit overrides the outbound request throttle.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates an aggregator client. A circuit breaker fronts all
// requests so a down upstream fails fast instead of queueing timeouts.
func NewClient(opts ...Option) *Client {
	c := &Client{
		quoteBaseURL: DefaultQuoteBaseURL,
		priceBaseURL: DefaultPriceBaseURL,
		client:       &http.Client{Timeout: DefaultTimeout},
		limiter:      rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultBurst),
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "aggregator",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Superseded quote fetches are cancelled routinely; a cancellation
		// says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("aggregator circuit breaker state change")
		},
	})

	return c
}

// GetQuote fetches a quote for amount base units of inputMint into
// outputMint at the given slippage. Failures surface as
// domain.ErrQuoteUnavailable; there is no retry here.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*QuoteResponse, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.Itoa(slippageBps))

	start := time.Now()
	body, err := c.do(ctx, http.MethodGet, c.quoteBaseURL+"/quote?"+params.Encode(), nil)
	observability.RecordAggregatorLatency("quote", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, err)
	}

	var quote QuoteResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("%w: decode quote: %v", domain.ErrQuoteUnavailable, err)
	}
	quote.raw = body
	return &quote, nil
}

// BuildSwapTransaction asks the aggregator to build an unsigned transaction
// for the accepted quote. Returns the base64-encoded payload.
func (c *Client) BuildSwapTransaction(ctx context.Context, quote *QuoteResponse, userPublicKey string) (string, error) {
	reqBody, err := json.Marshal(swapRequest{
		QuoteResponse:    quote.raw,
		UserPublicKey:    userPublicKey,
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal swap request: %w", err)
	}

	start := time.Now()
	body, err := c.do(ctx, http.MethodPost, c.quoteBaseURL+"/swap", reqBody)
	observability.RecordAggregatorLatency("swap", time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("build swap transaction: %w", err)
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode swap response: %w", err)
	}
	if resp.SwapTransaction == "" {
		return "", fmt.Errorf("swap response missing transaction payload")
	}
	return resp.SwapTransaction, nil
}

// GetPrices returns USD prices for the given mints. Display-only: these
// values never participate in execution decisions. Missing mints are
// simply absent from the result.
func (c *Client) GetPrices(ctx context.Context, mints ...string) (map[string]float64, error) {
	if len(mints) == 0 {
		return map[string]float64{}, nil
	}

	params := url.Values{}
	ids := mints[0]
	for _, m := range mints[1:] {
		ids += "," + m
	}
	params.Set("ids", ids)

	start := time.Now()
	body, err := c.do(ctx, http.MethodGet, c.priceBaseURL+"/price?"+params.Encode(), nil)
	observability.RecordAggregatorLatency("price", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}

	var resp priceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	prices := make(map[string]float64, len(resp.Data))
	for mint, entry := range resp.Data {
		prices[mint] = entry.Price
	}
	return prices, nil
}

// do performs one throttled, breaker-guarded HTTP request and returns the
// response body.
func (c *Client) do(ctx context.Context, method, u string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		}
		return respBody, nil
	})
}
