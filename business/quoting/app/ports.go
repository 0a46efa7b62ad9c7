// Package app contains application services and port definitions for the quoting context.
package app

import (
	"context"
	"slices"

	"github.com/fd1az/quote-router/business/quoting/domain"
)

// Capabilities describes which requests a provider can answer.
type Capabilities struct {
	Chains     []uint64 // empty means every chain
	CrossChain bool
	ExactOut   bool
}

// Supports reports whether a provider with these capabilities applies to req.
// Cross-chain requests need a cross-chain provider serving both chains;
// buy-amount requests need exact-out support.
func (c Capabilities) Supports(req domain.QuoteRequest) bool {
	if req.CrossChain && !c.CrossChain {
		return false
	}
	if req.Mode() == domain.ModeExactOut && !c.ExactOut {
		return false
	}
	if !c.servesChain(req.ChainID) {
		return false
	}
	return !req.CrossChain || c.servesChain(req.DestinationChain())
}

func (c Capabilities) servesChain(id uint64) bool {
	return len(c.Chains) == 0 || slices.Contains(c.Chains, id)
}

// QuoteProvider is one aggregator behind a uniform interface. Failures are
// *apperror.AppError values with a provider code.
type QuoteProvider interface {
	// Name is the stable identifier used for limits, breakers and tie-breaks.
	Name() string

	// Capabilities reports the chains and modes the provider serves.
	Capabilities() Capabilities

	// Quote asks the provider for one quote. It must honor ctx.
	Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error)
}

// QuoteCache stores selected quotes. Losing entries is always safe, so
// backends swallow their own failures and report a miss.
type QuoteCache interface {
	Get(ctx context.Context, key string) (*domain.CacheEntry, bool)
	Set(ctx context.Context, key string, entry *domain.CacheEntry)
}
