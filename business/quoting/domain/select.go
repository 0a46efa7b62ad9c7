package domain

import (
	"math/big"

	"github.com/fd1az/quote-router/internal/apperror"
)

// ErrNoQuoteAvailable is returned when no provider produced a usable quote.
// Match it with errors.Is.
var ErrNoQuoteAvailable = apperror.New(apperror.CodeNoQuoteAvailable)

// Select picks the best valid quote for req. ExactIn prefers the largest buy
// amount, ExactOut the smallest sell amount. Exact ties go to the provider
// listed first in priority, then to the lexicographically smaller name, so
// the result never depends on arrival order. Invalid quotes are ignored, as
// are quotes that do not honor the fixed side: an ExactIn quote must sell
// exactly the requested amount and an ExactOut quote must buy at least it.
func Select(req QuoteRequest, quotes []*Quote, priority []string) (*Quote, error) {
	mode := req.Mode()
	target, ok := new(big.Int).SetString(req.Amount(), 10)
	if !ok {
		return nil, ErrNoQuoteAvailable
	}

	rank := make(map[string]int, len(priority))
	for i, name := range priority {
		if _, dup := rank[name]; !dup {
			rank[name] = i
		}
	}
	rankOf := func(name string) int {
		if r, ok := rank[name]; ok {
			return r
		}
		return len(priority)
	}

	var (
		best       *Quote
		bestAmount *big.Int
	)
	for _, q := range quotes {
		if q.Validate() != nil {
			continue
		}
		sell, buy, _ := q.Amounts()
		amount := buy
		if mode == ModeExactOut {
			if buy.Cmp(target) < 0 {
				continue
			}
			amount = sell
		} else if sell.Cmp(target) != 0 {
			continue
		}

		if best == nil {
			best, bestAmount = q, amount
			continue
		}

		cmp := amount.Cmp(bestAmount)
		if mode == ModeExactOut {
			cmp = -cmp
		}
		switch {
		case cmp > 0:
			best, bestAmount = q, amount
		case cmp == 0:
			r, br := rankOf(q.Provider), rankOf(best.Provider)
			if r < br || (r == br && q.Provider < best.Provider) {
				best, bestAmount = q, amount
			}
		}
	}

	if best == nil {
		return nil, ErrNoQuoteAvailable
	}
	return best, nil
}
