// Package session owns the mutable state of one swap session: the intent
// the user is editing, the latest quote, and the current attempt. All
// mutations flow through a single event goroutine, so handlers never race.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solswap/internal/domain"
	"solswap/internal/quote"
	"solswap/internal/swap"
)

// QuoteSource is the slice of the quote manager the controller drives.
type QuoteSource interface {
	IntentChanged(intent domain.SwapIntent)
	RequestNow(ctx context.Context, intent domain.SwapIntent) (*quote.Snapshot, error)
	Clear()
	Close()
	MaxQuoteAge() time.Duration
}

// SwapExecutor runs a confirmed swap.
type SwapExecutor interface {
	Execute(ctx context.Context, identity string, intent domain.SwapIntent, snap *quote.Snapshot, signer swap.Signer) (*domain.SwapAttemptRecord, error)
}

// State is a read-only copy of the session.
type State struct {
	Intent   domain.SwapIntent
	Quote    *domain.Quote
	Attempt  *domain.SwapAttemptRecord
	QuoteErr error
}

type eventKind int

const (
	evIntentChanged eventKind = iota
	evQuoteReceived
	evAttemptSettled
	evUserConfirmed
)

type confirmResult struct {
	rec *domain.SwapAttemptRecord
	err error
}

type event struct {
	kind   eventKind
	mutate func(domain.SwapIntent) domain.SwapIntent
	snap   *quote.Snapshot
	err    error
	rec    *domain.SwapAttemptRecord
	ctx    context.Context
	reply  chan confirmResult
}

// Controller is the top-level state machine a caller interacts with.
type Controller struct {
	quotes   QuoteSource
	executor SwapExecutor
	signer   swap.Signer
	identity string
	logger   zerolog.Logger

	events chan event
	done   chan struct{}
	wg     sync.WaitGroup

	// session state, owned by the run goroutine
	intent  domain.SwapIntent
	snap    *quote.Snapshot
	attempt *domain.SwapAttemptRecord
	lastErr error

	// published mirrors the loop state for State()
	mu        sync.Mutex
	published State
	closeOnce sync.Once
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// NewController creates and starts a session for one wallet identity.
// The initial pair is from/to with an empty amount. If quotes is a
// *quote.Manager its settle callback is attached automatically.
func NewController(quotes QuoteSource, executor SwapExecutor, signer swap.Signer, identity, from, to string, slippageBps int, opts ...ControllerOption) *Controller {
	c := &Controller{
		quotes:   quotes,
		executor: executor,
		signer:   signer,
		identity: identity,
		logger:   zerolog.Nop(),
		events:   make(chan event, 64),
		done:     make(chan struct{}),
		intent:   domain.SwapIntent{FromToken: from, ToToken: to, SlippageBps: slippageBps},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "session").Str("identity", identity).Logger()
	c.publish()

	if mgr, ok := quotes.(*quote.Manager); ok {
		mgr.SetOnQuote(c.QuoteArrived)
	}

	c.wg.Add(1)
	go c.run()
	return c
}

// SetAmount replaces the raw amount the user typed.
func (c *Controller) SetAmount(raw string) {
	c.send(event{kind: evIntentChanged, mutate: func(i domain.SwapIntent) domain.SwapIntent {
		i.RawAmount = raw
		return i
	}})
}

// SetSlippage replaces the slippage tolerance.
func (c *Controller) SetSlippage(bps int) {
	c.send(event{kind: evIntentChanged, mutate: func(i domain.SwapIntent) domain.SwapIntent {
		i.SlippageBps = bps
		return i
	}})
}

// SetPair replaces both tokens.
func (c *Controller) SetPair(from, to string) {
	c.send(event{kind: evIntentChanged, mutate: func(i domain.SwapIntent) domain.SwapIntent {
		i.FromToken, i.ToToken = from, to
		return i
	}})
}

// Flip swaps direction and clears the amount. A cached quote priced the
// old direction, so it is cleared with it.
func (c *Controller) Flip() {
	c.send(event{kind: evIntentChanged, mutate: func(i domain.SwapIntent) domain.SwapIntent {
		i.FromToken, i.ToToken = i.ToToken, i.FromToken
		i.RawAmount = ""
		return i
	}})
}

// QuoteArrived feeds a settled quote fetch into the session.
func (c *Controller) QuoteArrived(snap *quote.Snapshot, err error) {
	c.send(event{kind: evQuoteReceived, snap: snap, err: err})
}

// Confirm executes a swap for the current intent, fetching a fresh quote
// first when the cached one is absent or stale. Blocks until the attempt
// settles or ctx expires.
func (c *Controller) Confirm(ctx context.Context) (*domain.SwapAttemptRecord, error) {
	reply := make(chan confirmResult, 1)
	select {
	case c.events <- event{kind: evUserConfirmed, ctx: ctx, reply: reply}:
	case <-c.done:
		return nil, fmt.Errorf("session closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.rec, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State returns a copy of the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published
}

// Close tears the session down: the event loop stops and the quote
// manager's timers and in-flight fetches are cancelled.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		c.quotes.Close()
	})
}

func (c *Controller) send(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev event) {
	switch ev.kind {
	case evIntentChanged:
		c.intent = ev.mutate(c.intent)
		// Any cached quote priced the old intent.
		c.snap = nil
		c.lastErr = nil
		c.quotes.IntentChanged(c.intent)

	case evQuoteReceived:
		switch {
		case ev.err != nil:
			c.lastErr = ev.err
			c.snap = nil
		case ev.snap == nil:
			// Cleared: zero or invalid amount.
			c.snap = nil
			c.lastErr = nil
		case !ev.snap.Quote.Matches(c.intent):
			// Late arrival for an intent the user already left.
			return
		default:
			c.snap = ev.snap
			c.lastErr = nil
		}

	case evAttemptSettled:
		c.attempt = ev.rec

	case evUserConfirmed:
		// Execution blocks on the network, so it runs outside the loop;
		// the executor's single-flight guard rejects a second confirm.
		go c.runConfirm(ev.ctx, c.intent, c.snap, ev.reply)
	}

	c.publish()
}

func (c *Controller) runConfirm(ctx context.Context, intent domain.SwapIntent, snap *quote.Snapshot, reply chan confirmResult) {
	if snap == nil || !snap.Quote.Matches(intent) || !snap.Quote.Fresh(c.quotes.MaxQuoteAge(), time.Now()) {
		fresh, err := c.quotes.RequestNow(ctx, intent)
		if err != nil {
			reply <- confirmResult{nil, err}
			return
		}
		if fresh == nil {
			reply <- confirmResult{nil, &domain.ValidationError{Field: "amount", Reason: "no amount entered"}}
			return
		}
		snap = fresh
	}

	rec, err := c.executor.Execute(ctx, c.identity, intent, snap, c.signer)
	if rec != nil {
		c.send(event{kind: evAttemptSettled, rec: rec})
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("swap attempt settled with error")
	}
	reply <- confirmResult{rec, err}
}

func (c *Controller) publish() {
	state := State{Intent: c.intent, Attempt: c.attempt, QuoteErr: c.lastErr}
	if c.snap != nil {
		state.Quote = c.snap.Quote
	}
	c.mu.Lock()
	c.published = state
	c.mu.Unlock()
}
