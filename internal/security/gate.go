package security

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"solswap/internal/domain"
	"solswap/internal/ratelimit"
	"solswap/internal/validate"
)

// Security event types recorded by the gate.
const (
	EventRateLimitExceeded = "rate_limit_exceeded"
	EventValidationFailed  = "validation_failed"
	EventLargeTransaction  = "large_transaction"
	EventOffCurveIdentity  = "off_curve_identity"
	EventGatePassed        = "gate_passed"
)

// AmountBounds are the per-operation amount limits, a configuration input
// rather than values hard-coded at call sites.
type AmountBounds struct {
	Min float64
	Max float64
}

// GateConfig configures the security gate.
type GateConfig struct {
	// Bounds holds amount limits per operation kind.
	Bounds map[domain.OperationKind]AmountBounds

	// MaxOps/Window parameterize the per-identity rate limit.
	MaxOps int
	Window time.Duration

	// LargeAmountThreshold triggers a warn-level alert above it.
	LargeAmountThreshold float64
}

// DefaultGateConfig mirrors the product defaults: 5 operations per minute
// per wallet, swap amounts in [0.001, 1000], warnings above 100.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Bounds: map[domain.OperationKind]AmountBounds{
			domain.OpSwap:         {Min: 0.001, Max: 1000},
			domain.OpMarketCreate: {Min: 0.1, Max: 10000},
		},
		MaxOps:               5,
		Window:               time.Minute,
		LargeAmountThreshold: 100,
	}
}

// Gate evaluates operations against rate limits, input validity and
// anomaly heuristics. One instance per process, injected into consumers.
type Gate struct {
	cfg     GateConfig
	limiter *ratelimit.Limiter
	log     *EventLog
	logger  zerolog.Logger
}

// NewGate wires a gate from its collaborators.
func NewGate(cfg GateConfig, limiter *ratelimit.Limiter, log *EventLog, logger zerolog.Logger) *Gate {
	return &Gate{cfg: cfg, limiter: limiter, log: log, logger: logger}
}

// Evaluate runs the gate pipeline for one operation, short-circuiting on
// reject. Heuristic findings are warn-level only and never reject. Every
// outcome is appended to the event log without blocking the caller.
func (g *Gate) Evaluate(identity string, intent domain.SwapIntent, op domain.OperationKind) *domain.SecurityDecision {
	// 1. Rate limit: atomic check-and-record per identity.
	if !g.limiter.Allow(identity, g.cfg.MaxOps, g.cfg.Window) {
		return g.reject(identity, op, EventRateLimitExceeded, domain.SeverityMedium,
			"rate limit exceeded, wait before retrying")
	}

	// 2. Identity must be a well-formed public key.
	if res := validate.Address(identity); !res.IsValid {
		return g.reject(identity, op, EventValidationFailed, domain.SeverityHigh,
			"invalid wallet address format")
	}

	// 3. Amount bounds for this operation kind.
	bounds, ok := g.cfg.Bounds[op]
	if !ok {
		return g.reject(identity, op, EventValidationFailed, domain.SeverityHigh,
			fmt.Sprintf("no bounds configured for operation %q", op))
	}
	if res := validate.Amount(intent.RawAmount, bounds.Min, bounds.Max); !res.IsValid {
		return g.reject(identity, op, EventValidationFailed, domain.SeverityHigh, res.Err.Error())
	}

	// 4. Heuristics: warn, never reject.
	var alerts []domain.Alert

	if amount, err := strconv.ParseFloat(intent.RawAmount, 64); err == nil && amount > g.cfg.LargeAmountThreshold {
		msg := "unusually large transaction amount"
		alerts = append(alerts, domain.Alert{Severity: domain.SeverityMedium, Message: msg})
		g.record(identity, op, EventLargeTransaction, domain.SeverityMedium, msg)
	}

	if !validate.IsOnCurve(identity) {
		msg := "identity is not an ed25519 curve point; unusual for a wallet"
		alerts = append(alerts, domain.Alert{Severity: domain.SeverityLow, Message: msg})
		g.record(identity, op, EventOffCurveIdentity, domain.SeverityLow, msg)
	}

	g.record(identity, op, EventGatePassed, domain.SeverityLow, "")

	verdict := domain.VerdictPass
	if len(alerts) > 0 {
		verdict = domain.VerdictWarn
	}
	return &domain.SecurityDecision{Verdict: verdict, Alerts: alerts}
}

func (g *Gate) reject(identity string, op domain.OperationKind, eventType, severity, msg string) *domain.SecurityDecision {
	g.record(identity, op, eventType, severity, msg)
	g.logger.Warn().
		Str("identity", identity).
		Str("operation", string(op)).
		Str("reason", msg).
		Msg("security gate rejected operation")

	return &domain.SecurityDecision{
		Verdict: domain.VerdictReject,
		Alerts:  []domain.Alert{{Severity: severity, Message: msg}},
	}
}

func (g *Gate) record(identity string, op domain.OperationKind, eventType, severity, detail string) {
	if g.log == nil {
		return
	}
	g.log.Record(domain.SecurityEvent{
		Type:      eventType,
		Severity:  severity,
		Identity:  identity,
		Operation: op,
		Detail:    detail,
	})
}
