package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/fd1az/quote-router/business/quoting/domain"
	"github.com/fd1az/quote-router/internal/apm"
	"github.com/fd1az/quote-router/internal/apperror"
	"github.com/fd1az/quote-router/internal/circuitbreaker"
	"github.com/fd1az/quote-router/internal/logger"
	"github.com/fd1az/quote-router/internal/ratelimit"
)

const (
	// DefaultBatchDeadline bounds a whole fan-out.
	DefaultBatchDeadline = 10 * time.Second
	// DefaultCacheTTL is how long a selected quote is reused.
	DefaultCacheTTL = 5 * time.Second
)

// ProviderStats is the observability view of one provider.
type ProviderStats struct {
	Provider  string               `json:"provider"`
	Breaker   circuitbreaker.Stats `json:"breaker"`
	RateLimit ratelimit.Stats      `json:"rate_limit"`
	Caps      ProviderCapabilities `json:"capabilities"`
}

// ProviderCapabilities is the JSON form of Capabilities.
type ProviderCapabilities struct {
	Chains     []uint64 `json:"chains,omitempty"`
	CrossChain bool     `json:"cross_chain"`
	ExactOut   bool     `json:"exact_out"`
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithBatchDeadline overrides DefaultBatchDeadline.
func WithBatchDeadline(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.batchDeadline = d
		}
	}
}

// WithPriority sets the tie-break order; earlier names win exact ties.
func WithPriority(names []string) RouterOption {
	return func(r *Router) {
		r.priority = slices.Clone(names)
	}
}

// WithCache sets the quote cache. Without one every request fans out.
func WithCache(c QuoteCache, ttl time.Duration) RouterOption {
	return func(r *Router) {
		if c != nil {
			r.cache = c
		}
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

// WithRouterClock sets the clock used for cache timestamps and latency.
func WithRouterClock(c clock.Clock) RouterOption {
	return func(r *Router) {
		r.clock = c
	}
}

// WithMeterProvider sets where router metrics are recorded.
func WithMeterProvider(mp metric.MeterProvider) RouterOption {
	return func(r *Router) {
		r.meterProvider = mp
	}
}

// WithTracer sets the tracer for router spans.
func WithTracer(t apm.Tracer) RouterOption {
	return func(r *Router) {
		r.tracer = t
	}
}

// Router fans a request out to every applicable provider and returns the
// best quote.
type Router struct {
	providers     []*GuardedProvider
	limiter       *ratelimit.Limiter
	cache         QuoteCache
	cacheTTL      time.Duration
	batchDeadline time.Duration
	priority      []string
	clock         clock.Clock
	logger        logger.LoggerInterface
	tracer        apm.Tracer
	meterProvider metric.MeterProvider
	metrics       *routerMetrics

	flights singleflight.Group
}

// NewRouter creates a router over the guarded providers. Provider names must
// be unique.
func NewRouter(
	providers []*GuardedProvider,
	limiter *ratelimit.Limiter,
	log logger.LoggerInterface,
	opts ...RouterOption,
) (*Router, error) {
	r := &Router{
		providers:     slices.Clone(providers),
		limiter:       limiter,
		cache:         nopCache{},
		cacheTTL:      DefaultCacheTTL,
		batchDeadline: DefaultBatchDeadline,
		clock:         clock.New(),
		logger:        log,
	}
	for _, opt := range opts {
		opt(r)
	}

	seen := make(map[string]bool, len(r.providers))
	for _, p := range r.providers {
		if seen[p.Name()] {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithContext("duplicate provider "+p.Name()))
		}
		seen[p.Name()] = true
	}
	sort.Slice(r.providers, func(i, j int) bool { return r.providers[i].Name() < r.providers[j].Name() })

	if r.tracer == nil {
		r.tracer = apm.NewTracer("quote_router")
	}

	m, err := newRouterMetrics(r.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("router metrics: %w", err)
	}
	r.metrics = m

	return r, nil
}

// GetBestQuote returns the best quote across providers. The only errors are
// INVALID_INPUT for a bad request and NO_QUOTE_AVAILABLE when no provider
// answered in time.
func (r *Router) GetBestQuote(ctx context.Context, req domain.QuoteRequest) (*domain.BestQuote, error) {
	requestID := uuid.NewString()

	ctx, span := r.tracer.Start(ctx, "router.GetBestQuote")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.Int64("chain.id", int64(req.ChainID)),
		attribute.String("mode", req.Mode().String()),
	)

	if err := req.Validate(); err != nil {
		r.metrics.request(ctx, "invalid")
		span.NoticeError(err)
		return nil, err
	}

	key := domain.CacheKey(req)
	if entry, ok := r.cache.Get(ctx, key); ok && entry.Live(r.clock.Now()) {
		r.metrics.cacheLookup(ctx, true)
		r.metrics.request(ctx, "cache_hit")
		span.SetAttributes(attribute.Bool("cache.hit", true), attribute.String("provider", entry.Provider))
		return &domain.BestQuote{RequestID: requestID, Quote: entry.Quote, CacheHit: true}, nil
	}
	r.metrics.cacheLookup(ctx, false)

	// Identical in-flight requests share one fan-out. The flight is detached
	// from the first caller's cancellation and bounded by the batch deadline
	// so one impatient caller cannot fail the others.
	flight := r.flights.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.batchDeadline)
		defer cancel()
		return r.fanOut(fctx, key, req, requestID)
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			r.metrics.request(ctx, "no_quote")
			span.NoticeError(res.Err)
			return nil, res.Err
		}
		best := *res.Val.(*domain.BestQuote)
		best.RequestID = requestID
		r.metrics.request(ctx, "ok")
		span.SetAttributes(attribute.String("provider", best.Provider()), attribute.Bool("shared", res.Shared))
		return &best, nil

	case <-ctx.Done():
		r.metrics.request(ctx, "no_quote")
		span.SetStatus(codes.Error, "caller gave up")
		return nil, apperror.New(apperror.CodeNoQuoteAvailable,
			apperror.WithContext("request_id="+requestID), apperror.WithCause(ctx.Err()))
	}
}

// fanOut queries every applicable provider concurrently and selects the best
// answer. ctx carries the batch deadline.
func (r *Router) fanOut(ctx context.Context, key string, req domain.QuoteRequest, requestID string) (*domain.BestQuote, error) {
	start := r.clock.Now()

	outcomes := make([]domain.Outcome, 0, len(r.providers))
	tasks := make([]*GuardedProvider, 0, len(r.providers))
	for _, p := range r.providers {
		if !p.Capabilities().Supports(req) {
			outcomes = append(outcomes, domain.Skipped(p.Name(), ReasonNotApplicable))
			continue
		}
		tasks = append(tasks, p)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so late tasks never block once the router has moved on.
	results := make(chan domain.Outcome, len(tasks))
	pending := make(map[string]bool, len(tasks))
	for _, p := range tasks {
		pending[p.Name()] = true
		go func() {
			results <- r.call(taskCtx, p, req)
		}()
	}

collect:
	for range tasks {
		select {
		case o := <-results:
			delete(pending, o.Provider)
			outcomes = append(outcomes, o)
		case <-ctx.Done():
			break collect
		}
	}

	if len(pending) > 0 {
		elapsed := r.clock.Since(start)
		late := make([]string, 0, len(pending))
		for name := range pending {
			late = append(late, name)
		}
		sort.Strings(late)
		for _, name := range late {
			err := apperror.Provider(apperror.CodeProviderTimeout, name, errors.New("batch deadline exceeded"))
			outcomes = append(outcomes, domain.Failed(name, err, 0, elapsed))
		}
	}

	quotes := make([]*domain.Quote, 0, len(outcomes))
	summaries := make([]domain.OutcomeSummary, 0, len(outcomes))
	for _, o := range outcomes {
		r.record(ctx, requestID, o)
		summaries = append(summaries, o.Summary())
		if o.Kind == domain.OutcomeQuote {
			quotes = append(quotes, o.Quote)
		}
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Provider < summaries[j].Provider })
	r.metrics.fanOut(ctx, r.clock.Since(start))

	best, err := domain.Select(req, quotes, r.priority)
	if err != nil {
		r.logger.Warn(ctx, "no quote available",
			"request_id", requestID,
			"providers", len(tasks),
			"outcomes", summarize(summaries),
		)
		return nil, apperror.New(apperror.CodeNoQuoteAvailable, apperror.WithContext("request_id="+requestID))
	}

	r.cache.Set(ctx, key, domain.NewCacheEntry(key, best, r.clock.Now(), r.cacheTTL))

	r.logger.Info(ctx, "best quote selected",
		"request_id", requestID,
		"provider", best.Provider,
		"buy_amount", best.BuyAmount,
		"sell_amount", best.SellAmount,
		"quotes", len(quotes),
	)

	return &domain.BestQuote{Quote: best, Outcomes: summaries}, nil
}

// call runs one provider task. A panicking adapter becomes a failed outcome
// instead of taking the fan-out down with it.
func (r *Router) call(ctx context.Context, p *GuardedProvider, req domain.QuoteRequest) (o domain.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			err := apperror.Provider(apperror.CodeProviderError, p.Name(), fmt.Errorf("panic: %v", rec))
			o = domain.Failed(p.Name(), err, 0, 0)
		}
	}()
	return p.Call(ctx, req)
}

// record logs and counts one outcome at the task boundary.
func (r *Router) record(ctx context.Context, requestID string, o domain.Outcome) {
	r.metrics.outcome(ctx, o)

	switch o.Kind {
	case domain.OutcomeFailed:
		r.logger.Warn(ctx, "provider failed",
			"request_id", requestID,
			"provider", o.Provider,
			"code", apperror.GetCode(o.Err),
			"attempts", o.Attempts,
			"latency_ms", o.Latency.Milliseconds(),
			"error", o.Err.Error(),
		)
	case domain.OutcomeRejected:
		r.logger.Info(ctx, "provider skipped by open circuit",
			"request_id", requestID,
			"provider", o.Provider,
		)
	case domain.OutcomeSkipped:
		r.logger.Debug(ctx, "provider skipped",
			"request_id", requestID,
			"provider", o.Provider,
			"reason", o.Reason,
		)
	}
}

// Stats returns breaker and limiter stats for every provider, sorted by name.
func (r *Router) Stats() []ProviderStats {
	out := make([]ProviderStats, 0, len(r.providers))
	for _, p := range r.providers {
		caps := p.Capabilities()
		out = append(out, ProviderStats{
			Provider:  p.Name(),
			Breaker:   p.Breaker().Stats(),
			RateLimit: r.limiter.Stats(p.Name()),
			Caps: ProviderCapabilities{
				Chains:     caps.Chains,
				CrossChain: caps.CrossChain,
				ExactOut:   caps.ExactOut,
			},
		})
	}
	return out
}

// ResetBreaker forces the named provider's breaker closed.
func (r *Router) ResetBreaker(name string) bool {
	for _, p := range r.providers {
		if p.Name() == name {
			p.Breaker().Reset()
			return true
		}
	}
	return false
}

// Providers returns the provider names in stable order.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}

func summarize(s []domain.OutcomeSummary) string {
	parts := make([]string, 0, len(s))
	for _, o := range s {
		if o.Code != "" {
			parts = append(parts, o.Provider+"="+o.Kind+":"+o.Code)
		} else {
			parts = append(parts, o.Provider+"="+o.Kind)
		}
	}
	return strings.Join(parts, ",")
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (*domain.CacheEntry, bool) { return nil, false }
func (nopCache) Set(context.Context, string, *domain.CacheEntry)        {}
