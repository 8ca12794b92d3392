package quote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"solswap/internal/domain"
	"solswap/internal/jupiter"
	"solswap/internal/observability"
	"solswap/internal/registry"
)

// Default manager timing.
const (
	DefaultDebounce        = 800 * time.Millisecond
	DefaultRefreshInterval = 10 * time.Second
	DefaultMaxQuoteAge     = 30 * time.Second
)

// Aggregator is the slice of the aggregator client the manager needs.
type Aggregator interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*jupiter.QuoteResponse, error)
	GetPrices(ctx context.Context, mints ...string) (map[string]float64, error)
}

// Gate pre-checks an intent before it generates upstream traffic. A
// rejected intent never reaches the aggregator.
type Gate interface {
	Evaluate(identity string, intent domain.SwapIntent, op domain.OperationKind) *domain.SecurityDecision
}

// Snapshot pairs the parsed quote with the verbatim aggregator response.
// The response is what the swap build step replays upstream; the parsed
// quote is what staleness and display logic read.
type Snapshot struct {
	Quote    *domain.Quote
	Response *jupiter.QuoteResponse
}

// Manager debounces quote fetches for a single session. Rapid intent
// changes collapse into one request; while an amount is entered the quote
// refreshes on an interval; a response for a superseded intent is dropped
// even when it arrives after a newer one.
type Manager struct {
	agg      Aggregator
	reg      *registry.Registry
	logger   zerolog.Logger
	debounce time.Duration
	refresh  time.Duration
	maxAge   time.Duration
	onQuote  func(*Snapshot, error)
	gate     Gate
	identity string

	debouncer DebounceTimer
	refresher DebounceTimer

	// gen orders fetches. Only the result of the highest generation may
	// update current.
	gen atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	current *Snapshot
	closed  bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDebounce sets the quiet period before a fetch fires.
func WithDebounce(d time.Duration) ManagerOption {
	return func(m *Manager) { m.debounce = d }
}

// WithRefreshInterval sets the re-fetch interval while an amount is entered.
func WithRefreshInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.refresh = d }
}

// WithMaxQuoteAge sets how long a quote counts as fresh.
func WithMaxQuoteAge(d time.Duration) ManagerOption {
	return func(m *Manager) { m.maxAge = d }
}

// WithGate makes every fetch pass the security gate for the given
// wallet identity first. Rejections surface through the settle callback
// and clear any displayed quote.
func WithGate(gate Gate, identity string) ManagerOption {
	return func(m *Manager) {
		m.gate = gate
		m.identity = identity
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithOnQuote registers the callback invoked when a fetch settles: a
// snapshot on success, nil snapshot and nil error when the quote is
// cleared, or an error when the upstream fails. Called from the fetch
// goroutine.
func WithOnQuote(fn func(*Snapshot, error)) ManagerOption {
	return func(m *Manager) { m.onQuote = fn }
}

// NewManager creates a quote manager.
func NewManager(agg Aggregator, reg *registry.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		agg:      agg,
		reg:      reg,
		logger:   zerolog.Nop(),
		debounce: DefaultDebounce,
		refresh:  DefaultRefreshInterval,
		maxAge:   DefaultMaxQuoteAge,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "quote_manager").Logger()
	return m
}

// MaxQuoteAge returns the configured freshness window.
func (m *Manager) MaxQuoteAge() time.Duration {
	return m.maxAge
}

// SetOnQuote replaces the settle callback. Call before the first
// IntentChanged.
func (m *Manager) SetOnQuote(fn func(*Snapshot, error)) {
	m.mu.Lock()
	m.onQuote = fn
	m.mu.Unlock()
}

// notify invokes the settle callback, if any.
func (m *Manager) notify(snap *Snapshot, err error) {
	m.mu.Lock()
	fn := m.onQuote
	m.mu.Unlock()
	if fn != nil {
		fn(snap, err)
	}
}

// Current returns the latest accepted snapshot, nil when none.
func (m *Manager) Current() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IntentChanged debounces a fetch for the new intent. A zero or unparsable
// amount clears the quote without error and stops the refresh cycle.
func (m *Manager) IntentChanged(intent domain.SwapIntent) {
	amount, err := m.reg.ToBaseUnits(intent.FromToken, intent.RawAmount)
	if err != nil || amount == 0 {
		m.Clear()
		return
	}

	m.refresher.Stop()
	m.debouncer.Start(m.debounce, func() {
		m.fire(intent, amount)
	})
}

// RequestNow fetches synchronously, bypassing the debounce. Any pending or
// in-flight async fetch is superseded. Used when a confirmation needs a
// fresh quote immediately.
func (m *Manager) RequestNow(ctx context.Context, intent domain.SwapIntent) (*Snapshot, error) {
	amount, err := m.reg.ToBaseUnits(intent.FromToken, intent.RawAmount)
	if err != nil {
		return nil, &domain.ValidationError{Field: "amount", Reason: "unparsable amount"}
	}
	if amount == 0 {
		m.Clear()
		return nil, nil
	}

	m.debouncer.Stop()
	if err := m.precheck(intent); err != nil {
		return nil, err
	}
	gen := m.gen.Add(1)
	snap, err := m.fetch(ctx, intent, amount)
	if err != nil {
		return nil, err
	}
	if !m.store(gen, intent, snap) {
		return nil, domain.ErrStaleQuote
	}
	return snap, nil
}

// Clear drops the current quote, cancels any pending or in-flight fetch
// and stops the refresh cycle. Not an error state.
func (m *Manager) Clear() {
	m.gen.Add(1)
	m.debouncer.Stop()
	m.refresher.Stop()

	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	hadQuote := m.current != nil
	m.current = nil
	closed := m.closed
	m.mu.Unlock()

	if hadQuote && !closed {
		m.notify(nil, nil)
	}
}

// Close tears the manager down: timers stopped, in-flight fetch cancelled,
// late results dropped.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Clear()
}

// DisplayPrices returns USD prices keyed by token symbol. Informational
// only; execution amounts always come from the quote itself.
func (m *Manager) DisplayPrices(ctx context.Context, symbols ...string) (map[string]float64, error) {
	mints := make([]string, 0, len(symbols))
	bySymbol := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		token, err := m.reg.Resolve(symbol)
		if err != nil {
			return nil, err
		}
		mints = append(mints, token.ChainAddress)
		bySymbol[symbol] = token.ChainAddress
	}

	prices, err := m.agg.GetPrices(ctx, mints...)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(symbols))
	for symbol, mint := range bySymbol {
		if price, ok := prices[mint]; ok {
			out[symbol] = price
		}
	}
	return out, nil
}

// fire launches an async fetch for the intent at a fresh generation.
func (m *Manager) fire(intent domain.SwapIntent, amount uint64) {
	gen := m.gen.Add(1)

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel = cancel
	m.mu.Unlock()

	go func() {
		defer cancel()

		if err := m.precheck(intent); err != nil {
			if gen != m.gen.Load() {
				return
			}
			m.logger.Warn().Err(err).Str("intent", intent.Key()).Msg("quote blocked by security gate")
			m.dropCurrent(gen)
			m.notify(nil, err)
			return
		}

		snap, err := m.fetch(ctx, intent, amount)
		if gen != m.gen.Load() {
			// Superseded while in flight. Dropped silently, success or not.
			observability.RecordQuoteStale()
			return
		}

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.logger.Warn().Err(err).Str("intent", intent.Key()).Msg("quote fetch failed")
			// The displayed quote is stale the moment a refresh fails, and
			// the cycle keeps going while the amount is entered.
			m.dropCurrent(gen)
			m.rearm(gen, intent, amount)
			m.notify(nil, err)
			return
		}

		if !m.store(gen, intent, snap) {
			observability.RecordQuoteStale()
			return
		}
		m.notify(snap, nil)
	}()
}

// precheck consults the security gate before any upstream traffic.
func (m *Manager) precheck(intent domain.SwapIntent) error {
	if m.gate == nil {
		return nil
	}
	if decision := m.gate.Evaluate(m.identity, intent, domain.OpSwap); decision.Rejected() {
		return &domain.SecurityRejectedError{Decision: decision}
	}
	return nil
}

// dropCurrent clears the published snapshot unless gen was superseded.
func (m *Manager) dropCurrent(gen uint64) {
	m.mu.Lock()
	if gen == m.gen.Load() && !m.closed {
		m.current = nil
	}
	m.mu.Unlock()
}

// rearm keeps the refresh cycle alive after a failed fetch.
func (m *Manager) rearm(gen uint64, intent domain.SwapIntent, amount uint64) {
	m.mu.Lock()
	superseded := m.closed || gen != m.gen.Load()
	m.mu.Unlock()
	if superseded {
		return
	}
	m.refresher.Start(m.refresh, func() {
		m.fire(intent, amount)
	})
}

// fetch performs one aggregator round trip.
func (m *Manager) fetch(ctx context.Context, intent domain.SwapIntent, amount uint64) (*Snapshot, error) {
	from, err := m.reg.Resolve(intent.FromToken)
	if err != nil {
		return nil, err
	}
	to, err := m.reg.Resolve(intent.ToToken)
	if err != nil {
		return nil, err
	}

	resp, err := m.agg.GetQuote(ctx, from.ChainAddress, to.ChainAddress, amount, intent.SlippageBps)
	if err != nil {
		observability.RecordQuoteFailure()
		return nil, err
	}

	parsed, err := resp.ToDomain(intent.Key(), time.Now())
	if err != nil {
		observability.RecordQuoteFailure()
		return nil, err
	}

	observability.RecordQuoteIssued()
	return &Snapshot{Quote: parsed, Response: resp}, nil
}

// store publishes the snapshot if its generation is still current, and
// arms the refresh timer for the same intent.
func (m *Manager) store(gen uint64, intent domain.SwapIntent, snap *Snapshot) bool {
	m.mu.Lock()
	if m.closed || gen != m.gen.Load() {
		m.mu.Unlock()
		return false
	}
	m.current = snap
	m.mu.Unlock()

	m.logger.Debug().
		Str("intent", intent.Key()).
		Uint64("out_amount", snap.Quote.OutAmountBaseUnits).
		Str("price_impact_pct", snap.Quote.PriceImpactPct).
		Msg("quote updated")

	amount := snap.Quote.InAmountBaseUnits
	m.refresher.Start(m.refresh, func() {
		m.fire(intent, amount)
	})
	return true
}
