package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/quote-router/business/quoting/domain"
	"github.com/fd1az/quote-router/internal/apperror"
	"github.com/fd1az/quote-router/internal/circuitbreaker"
	"github.com/fd1az/quote-router/internal/logger"
	"github.com/fd1az/quote-router/internal/ratelimit"
	"github.com/fd1az/quote-router/internal/retry"
)

const (
	testWETH = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	testUSDC = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

// mockProvider answers with fn and counts calls.
type mockProvider struct {
	name  string
	caps  Capabilities
	calls atomic.Int32

	mu sync.Mutex
	fn func(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error)
}

func newMockProvider(name string, fn func(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error)) *mockProvider {
	return &mockProvider{name: name, fn: fn, caps: Capabilities{ExactOut: true}}
}

func (m *mockProvider) Name() string               { return m.name }
func (m *mockProvider) Capabilities() Capabilities { return m.caps }

func (m *mockProvider) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	m.calls.Add(1)
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	return fn(ctx, req)
}

func (m *mockProvider) setFn(fn func(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error)) {
	m.mu.Lock()
	m.fn = fn
	m.mu.Unlock()
}

func returns(buy string) func(context.Context, domain.QuoteRequest) (*domain.Quote, error) {
	return func(_ context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
		return &domain.Quote{
			SellToken:  req.SellToken,
			BuyToken:   req.BuyToken,
			SellAmount: req.SellAmount,
			BuyAmount:  buy,
		}, nil
	}
}

func failsWith(code apperror.Code) func(context.Context, domain.QuoteRequest) (*domain.Quote, error) {
	return func(context.Context, domain.QuoteRequest) (*domain.Quote, error) {
		return nil, apperror.New(code)
	}
}

func hangs(ctx context.Context, _ domain.QuoteRequest) (*domain.Quote, error) {
	<-ctx.Done()
	return nil, apperror.New(apperror.CodeProviderTimeout, apperror.WithCause(ctx.Err()))
}

type guardSettings struct {
	limiter   *ratelimit.Limiter
	threshold uint32
	open      time.Duration
	retry     retry.Config
	timeout   time.Duration
}

func defaultGuardSettings() guardSettings {
	return guardSettings{
		limiter:   ratelimit.New(nil, ratelimit.WithDefaults(ratelimit.Limits{})),
		threshold: 5,
		open:      time.Minute,
		retry:     retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
		timeout:   time.Second,
	}
}

func guard(p QuoteProvider, s guardSettings) *GuardedProvider {
	breaker := circuitbreaker.New[*domain.Quote](circuitbreaker.Config{
		Name:         p.Name(),
		Threshold:    s.threshold,
		OpenDuration: s.open,
	})
	return NewGuardedProvider(p, s.limiter, breaker, retry.New(s.retry), WithAdapterTimeout(s.timeout))
}

// mapCache is an in-memory QuoteCache for router tests.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]*domain.CacheEntry
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*domain.CacheEntry)}
}

func (c *mapCache) Get(_ context.Context, key string) (*domain.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *mapCache) Set(_ context.Context, key string, e *domain.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
}

func sellRequest() domain.QuoteRequest {
	return domain.QuoteRequest{
		SellToken:       testWETH,
		BuyToken:        testUSDC,
		SellAmount:      "1000000000000000000",
		ChainID:         1,
		SlippagePercent: decimal.NewFromFloat(0.5),
	}
}

func newTestRouter(t *testing.T, limiter *ratelimit.Limiter, guards []*GuardedProvider, opts ...RouterOption) *Router {
	t.Helper()
	r, err := NewRouter(guards, limiter, logger.NewDiscard(), opts...)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r
}

func outcomeOf(best *domain.BestQuote, provider string) (domain.OutcomeSummary, bool) {
	for _, o := range best.Outcomes {
		if o.Provider == provider {
			return o, true
		}
	}
	return domain.OutcomeSummary{}, false
}
