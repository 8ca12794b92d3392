package domain

import "time"

// Verdict is the outcome of a security gate evaluation.
type Verdict string

const (
	VerdictPass   Verdict = "pass"
	VerdictWarn   Verdict = "warn"
	VerdictReject Verdict = "reject"
)

// Alert severities, ordered low to critical.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// OperationKind distinguishes gate policies: swap bounds differ from
// market-creation bounds.
type OperationKind string

const (
	OpSwap         OperationKind = "swap"
	OpMarketCreate OperationKind = "market_create"
)

// Alert is one finding produced during gate evaluation.
type Alert struct {
	Severity string
	Message  string
}

// SecurityDecision is produced fresh for every gate evaluation and never
// persisted beyond the session. Warn-level alerts accompany a pass verdict;
// a reject verdict means the operation must not proceed.
type SecurityDecision struct {
	Verdict Verdict
	Alerts  []Alert
}

// Rejected reports whether the operation was refused.
func (d *SecurityDecision) Rejected() bool {
	return d.Verdict == VerdictReject
}

// SecurityEvent is one entry in the append-only security event log.
type SecurityEvent struct {
	Timestamp time.Time
	Type      string // e.g. "rate_limit_exceeded", "quote_fetched"
	Severity  string
	Identity  string
	Operation OperationKind
	Detail    string
}
