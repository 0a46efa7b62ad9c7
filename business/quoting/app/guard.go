package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/quote-router/business/quoting/domain"
	"github.com/fd1az/quote-router/internal/apperror"
	"github.com/fd1az/quote-router/internal/circuitbreaker"
	"github.com/fd1az/quote-router/internal/ratelimit"
	"github.com/fd1az/quote-router/internal/retry"
)

// DefaultAdapterTimeout bounds one provider's whole call sequence.
const DefaultAdapterTimeout = 8 * time.Second

// Skip reasons reported in outcomes.
const (
	ReasonRateLimited   = "rate_limited"
	ReasonNotApplicable = "not_applicable"
)

// GuardedProvider wraps a provider with its limiter, retry policy, breaker
// and timeout. The call order is limiter gate, then retries, each attempt
// going through the breaker, all under one adapter timeout.
type GuardedProvider struct {
	provider QuoteProvider
	limiter  *ratelimit.Limiter
	breaker  *circuitbreaker.CircuitBreaker[*domain.Quote]
	retry    *retry.Policy
	timeout  time.Duration
	clock    clock.Clock
}

// GuardOption configures a GuardedProvider.
type GuardOption func(*GuardedProvider)

// WithAdapterTimeout overrides DefaultAdapterTimeout.
func WithAdapterTimeout(d time.Duration) GuardOption {
	return func(g *GuardedProvider) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithGuardClock sets the clock used for latency measurement.
func WithGuardClock(c clock.Clock) GuardOption {
	return func(g *GuardedProvider) {
		g.clock = c
	}
}

// NewGuardedProvider composes the resilience stack around p.
func NewGuardedProvider(
	p QuoteProvider,
	limiter *ratelimit.Limiter,
	breaker *circuitbreaker.CircuitBreaker[*domain.Quote],
	policy *retry.Policy,
	opts ...GuardOption,
) *GuardedProvider {
	g := &GuardedProvider{
		provider: p,
		limiter:  limiter,
		breaker:  breaker,
		retry:    policy,
		timeout:  DefaultAdapterTimeout,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the wrapped provider's name.
func (g *GuardedProvider) Name() string {
	return g.provider.Name()
}

// Capabilities returns the wrapped provider's capabilities.
func (g *GuardedProvider) Capabilities() Capabilities {
	return g.provider.Capabilities()
}

// Breaker exposes the provider's breaker for stats and resets.
func (g *GuardedProvider) Breaker() *circuitbreaker.CircuitBreaker[*domain.Quote] {
	return g.breaker
}

// Call asks the provider for a quote and never returns an error: every
// result is a tagged outcome.
func (g *GuardedProvider) Call(ctx context.Context, req domain.QuoteRequest) domain.Outcome {
	name := g.provider.Name()

	if !g.limiter.Allow(ctx, name) {
		if err := ctx.Err(); err != nil {
			return domain.Failed(name, apperror.Provider(apperror.CodeProviderTimeout, name, err), 0, 0)
		}
		return domain.Skipped(name, ReasonRateLimited)
	}

	start := g.clock.Now()
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var (
		quote   *domain.Quote
		lastErr error
		reached atomic.Int32
	)
	attempts, err := g.retry.Execute(callCtx, func(ctx context.Context) error {
		q, err := g.breaker.Execute(func() (*domain.Quote, error) {
			reached.Add(1)
			return g.quote(ctx, req)
		})
		switch {
		case err == nil:
			quote = q
			return nil
		case circuitbreaker.IsOpen(err):
			// Opened by a concurrent call while this one was backing off.
			if lastErr != nil {
				return retry.Stop(lastErr)
			}
			return err
		}
		lastErr = err
		if g.breaker.State() == gobreaker.StateOpen {
			return retry.Stop(err)
		}
		return err
	})
	latency := g.clock.Since(start)

	switch {
	case err == nil:
		return domain.Succeeded(name, quote, attempts, latency)
	case circuitbreaker.IsOpen(err) && reached.Load() == 0:
		return domain.Rejected(name, err, latency)
	default:
		return domain.Failed(name, err, attempts, latency)
	}
}

// quote runs one provider call and rejects answers that cannot be compared,
// so they count against the breaker like any other bad response.
func (g *GuardedProvider) quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	name := g.provider.Name()

	q, err := g.provider.Quote(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !apperror.IsAppError(err) {
			return nil, apperror.Provider(apperror.CodeProviderTimeout, name, err)
		}
		return nil, err
	}
	if q == nil {
		return nil, apperror.Provider(apperror.CodeInvalidProviderResponse, name, nil)
	}
	if q.Provider == "" {
		q.Provider = name
	}
	if err := q.Validate(); err != nil {
		return nil, apperror.Provider(apperror.CodeInvalidProviderResponse, name, err)
	}
	if q.ReceivedAt.IsZero() {
		q.ReceivedAt = g.clock.Now()
	}
	return q, nil
}
