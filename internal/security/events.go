// Package security composes rate limiting, input validation and anomaly
// heuristics into a single pass/warn/reject decision, and keeps an
// append-only log of everything it saw.
package security

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solswap/internal/domain"
)

// DefaultRetention bounds how long events are kept for aggregation.
const DefaultRetention = 24 * time.Hour

// recordBuffer sizes the async channel between callers and the writer
// goroutine. When full, events are dropped rather than blocking the
// operation that produced them.
const recordBuffer = 256

// Sink receives security events for durable storage. Implementations must
// tolerate being called from a single background goroutine.
type Sink interface {
	AppendEvent(ctx context.Context, event domain.SecurityEvent) error
}

// EventLog is an append-only, retention-bounded security event log.
// Recording never blocks and never fails the calling operation.
type EventLog struct {
	retention time.Duration
	sink      Sink
	logger    zerolog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	events []domain.SecurityEvent

	ch   chan domain.SecurityEvent
	done chan struct{}
	wg   sync.WaitGroup
}

// EventLogOption configures an EventLog.
type EventLogOption func(*EventLog)

// WithRetention overrides the retention window.
func WithRetention(d time.Duration) EventLogOption {
	return func(l *EventLog) { l.retention = d }
}

// WithSink mirrors events to a durable store.
func WithSink(s Sink) EventLogOption {
	return func(l *EventLog) { l.sink = s }
}

// WithLogger attaches a logger for drop/sink-failure diagnostics.
func WithLogger(logger zerolog.Logger) EventLogOption {
	return func(l *EventLog) { l.logger = logger }
}

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) EventLogOption {
	return func(l *EventLog) { l.now = now }
}

// NewEventLog creates the log and starts its writer goroutine.
// Close must be called on teardown.
func NewEventLog(opts ...EventLogOption) *EventLog {
	l := &EventLog{
		retention: DefaultRetention,
		logger:    zerolog.Nop(),
		now:       time.Now,
		ch:        make(chan domain.SecurityEvent, recordBuffer),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.wg.Add(1)
	go l.writeLoop()

	return l
}

// Record appends an event. Non-blocking: if the writer is saturated the
// event is counted as dropped and the caller proceeds.
func (l *EventLog) Record(event domain.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	select {
	case l.ch <- event:
	default:
		l.logger.Warn().Str("type", event.Type).Msg("security event dropped, writer saturated")
	}
}

// Events returns events at or after since, oldest first.
func (l *EventLog) Events(since time.Time) []domain.SecurityEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.SecurityEvent, 0, len(l.events))
	for _, e := range l.events {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

// SuspiciousPatterns inspects the retained window for anomaly aggregates:
// bursts of rate-limit hits and repeated validation failures.
func (l *EventLog) SuspiciousPatterns() []string {
	cutoff := l.now().Add(-l.retention)
	recent := l.Events(cutoff)

	var rateLimitHits, validationFailures int
	for _, e := range recent {
		switch e.Type {
		case EventRateLimitExceeded:
			rateLimitHits++
		case EventValidationFailed:
			validationFailures++
		}
	}

	var patterns []string
	if rateLimitHits > 5 {
		patterns = append(patterns, "repeated rate limit hits")
	}
	if validationFailures > 10 {
		patterns = append(patterns, "multiple validation failures")
	}
	return patterns
}

// Close stops the writer goroutine after draining queued events.
func (l *EventLog) Close() {
	close(l.done)
	l.wg.Wait()
}

func (l *EventLog) writeLoop() {
	defer l.wg.Done()

	for {
		select {
		case event := <-l.ch:
			l.append(event)
		case <-l.done:
			// Drain what is already queued, then exit.
			for {
				select {
				case event := <-l.ch:
					l.append(event)
				default:
					return
				}
			}
		}
	}
}

func (l *EventLog) append(event domain.SecurityEvent) {
	cutoff := l.now().Add(-l.retention)

	l.mu.Lock()
	// Events arrive in order; retention pruning is a prefix drop.
	start := 0
	for start < len(l.events) && l.events[start].Timestamp.Before(cutoff) {
		start++
	}
	l.events = append(l.events[start:], event)
	l.mu.Unlock()

	if l.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.sink.AppendEvent(ctx, event); err != nil {
			l.logger.Warn().Err(err).Str("type", event.Type).Msg("security event sink write failed")
		}
		cancel()
	}
}
