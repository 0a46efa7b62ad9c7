package domain

import (
	"time"

	"github.com/fd1az/quote-router/internal/apperror"
)

// OutcomeKind tags the result of asking one provider.
type OutcomeKind int

const (
	// OutcomeQuote means the provider returned a usable quote.
	OutcomeQuote OutcomeKind = iota
	// OutcomeSkipped means the provider was never called (rate limited or
	// not applicable).
	OutcomeSkipped
	// OutcomeFailed means every attempt failed or the call was abandoned.
	OutcomeFailed
	// OutcomeRejected means the circuit breaker refused the call.
	OutcomeRejected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeQuote:
		return "quote"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is what one provider task reports back to the router.
type Outcome struct {
	Provider string
	Kind     OutcomeKind
	Quote    *Quote
	Err      error
	Reason   string // why a provider was skipped
	Attempts int
	Latency  time.Duration
}

// Succeeded builds a quote outcome.
func Succeeded(provider string, q *Quote, attempts int, latency time.Duration) Outcome {
	return Outcome{Provider: provider, Kind: OutcomeQuote, Quote: q, Attempts: attempts, Latency: latency}
}

// Skipped builds an outcome for a provider that was not called.
func Skipped(provider, reason string) Outcome {
	return Outcome{Provider: provider, Kind: OutcomeSkipped, Reason: reason}
}

// Failed builds an outcome for a provider whose call failed.
func Failed(provider string, err error, attempts int, latency time.Duration) Outcome {
	return Outcome{Provider: provider, Kind: OutcomeFailed, Err: err, Attempts: attempts, Latency: latency}
}

// Rejected builds an outcome for a provider whose breaker is open.
func Rejected(provider string, err error, latency time.Duration) Outcome {
	return Outcome{Provider: provider, Kind: OutcomeRejected, Err: err, Latency: latency}
}

// Summary flattens the outcome for callers and logs.
func (o Outcome) Summary() OutcomeSummary {
	s := OutcomeSummary{
		Provider:  o.Provider,
		Kind:      o.Kind.String(),
		Attempts:  o.Attempts,
		LatencyMs: o.Latency.Milliseconds(),
		Reason:    o.Reason,
	}
	if o.Err != nil {
		s.Code = string(apperror.GetCode(o.Err))
	}
	return s
}

// OutcomeSummary is the diagnostic view of one provider outcome.
type OutcomeSummary struct {
	Provider  string `json:"provider"`
	Kind      string `json:"kind"`
	Code      string `json:"code,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// BestQuote is the router's answer.
type BestQuote struct {
	RequestID string           `json:"request_id"`
	Quote     *Quote           `json:"quote"`
	CacheHit  bool             `json:"cache_hit"`
	Outcomes  []OutcomeSummary `json:"outcomes,omitempty"`
}

// Provider returns the name of the winning provider.
func (b *BestQuote) Provider() string {
	if b == nil || b.Quote == nil {
		return ""
	}
	return b.Quote.Provider
}
