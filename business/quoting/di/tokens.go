// Package di contains dependency injection tokens for the quoting context.
package di

import (
	"github.com/fd1az/quote-router/business/quoting/app"
	"github.com/fd1az/quote-router/business/quoting/domain"
	"github.com/fd1az/quote-router/internal/circuitbreaker"
	"github.com/fd1az/quote-router/internal/di"
	"github.com/fd1az/quote-router/internal/ratelimit"
	"github.com/fd1az/quote-router/internal/retry"
)

// Public service tokens - exposed to other modules
var (
	Router = di.NewToken[*app.Router]("quoting.Router")
)

// Private dependency tokens - internal to quoting module
var (
	Limiter     = di.NewToken[*ratelimit.Limiter]("quoting:limiter")
	Breakers    = di.NewToken[*circuitbreaker.Registry[*domain.Quote]]("quoting:breakers")
	RetryPolicy = di.NewToken[*retry.Policy]("quoting:retryPolicy")
	Providers   = di.NewToken[[]app.QuoteProvider]("quoting:providers")
	QuoteCache  = di.NewToken[app.QuoteCache]("quoting:quoteCache")
)

// Helper functions for type-safe access
func GetRouter(c di.ServiceRegistry) *app.Router {
	return di.GetToken(c, Router)
}

func GetLimiter(c di.ServiceRegistry) *ratelimit.Limiter {
	return di.GetToken(c, Limiter)
}

func GetBreakers(c di.ServiceRegistry) *circuitbreaker.Registry[*domain.Quote] {
	return di.GetToken(c, Breakers)
}

func GetRetryPolicy(c di.ServiceRegistry) *retry.Policy {
	return di.GetToken(c, RetryPolicy)
}

func GetProviders(c di.ServiceRegistry) []app.QuoteProvider {
	return di.GetToken(c, Providers)
}

func GetQuoteCache(c di.ServiceRegistry) app.QuoteCache {
	return di.GetToken(c, QuoteCache)
}
