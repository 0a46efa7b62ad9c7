package domain

import (
	"errors"
	"fmt"
	"math/big"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/quote-router/internal/apperror"
)

const (
	weth = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	usdc = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

func validRequest() QuoteRequest {
	return QuoteRequest{
		SellToken:       weth,
		BuyToken:        usdc,
		SellAmount:      "1000000000000000000",
		ChainID:         1,
		SlippagePercent: decimal.NewFromFloat(0.5),
	}
}

func TestQuoteRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *QuoteRequest)
		ok     bool
	}{
		{"valid_exact_in", func(r *QuoteRequest) {}, true},
		{"valid_exact_out", func(r *QuoteRequest) { r.SellAmount, r.BuyAmount = "", "3000000000" }, true},
		{"valid_zero_slippage", func(r *QuoteRequest) { r.SlippagePercent = decimal.Zero }, true},
		{"valid_max_slippage", func(r *QuoteRequest) { r.SlippagePercent = decimal.NewFromInt(50) }, true},
		{"valid_taker", func(r *QuoteRequest) { r.TakerAddress = "0x00000000219ab540356cBB839Cbe05303d7705Fa" }, true},
		{"valid_cross_chain", func(r *QuoteRequest) { r.CrossChain, r.ToChainID = true, 42161 }, true},
		{"bad_sell_token", func(r *QuoteRequest) { r.SellToken = "WETH" }, false},
		{"bad_buy_token", func(r *QuoteRequest) { r.BuyToken = "0x123" }, false},
		{"same_token", func(r *QuoteRequest) { r.BuyToken = strings.ToLower(weth) }, false},
		{"no_amount", func(r *QuoteRequest) { r.SellAmount = "" }, false},
		{"both_amounts", func(r *QuoteRequest) { r.BuyAmount = "1" }, false},
		{"zero_amount", func(r *QuoteRequest) { r.SellAmount = "0" }, false},
		{"negative_amount", func(r *QuoteRequest) { r.SellAmount = "-1" }, false},
		{"decimal_amount", func(r *QuoteRequest) { r.SellAmount = "1.5" }, false},
		{"no_chain", func(r *QuoteRequest) { r.ChainID = 0 }, false},
		{"negative_slippage", func(r *QuoteRequest) { r.SlippagePercent = decimal.NewFromInt(-1) }, false},
		{"slippage_too_high", func(r *QuoteRequest) { r.SlippagePercent = decimal.NewFromFloat(50.01) }, false},
		{"bad_taker", func(r *QuoteRequest) { r.TakerAddress = "me" }, false},
		{"cross_chain_no_destination", func(r *QuoteRequest) { r.CrossChain = true }, false},
		{"cross_chain_same_destination", func(r *QuoteRequest) { r.CrossChain, r.ToChainID = true, 1 }, false},
		{"destination_without_flag", func(r *QuoteRequest) { r.ToChainID = 10 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.mutate(&r)
			err := r.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if apperror.GetCode(err) != apperror.CodeInvalidInput {
					t.Errorf("expected INVALID_INPUT, got %s", apperror.GetCode(err))
				}
			}
		})
	}
}

func TestQuoteRequest_Mode(t *testing.T) {
	r := validRequest()
	if r.Mode() != ModeExactIn || r.Amount() != r.SellAmount {
		t.Errorf("expected exact_in on sell amount, got %s", r.Mode())
	}

	r.SellAmount, r.BuyAmount = "", "42"
	if r.Mode() != ModeExactOut || r.Amount() != "42" {
		t.Errorf("expected exact_out on buy amount, got %s", r.Mode())
	}

	if got := validRequest().SlippageFraction(); !got.Equal(decimal.NewFromFloat(0.005)) {
		t.Errorf("expected 0.005, got %s", got)
	}
}

func TestCacheKey(t *testing.T) {
	base := validRequest()
	key := CacheKey(base)

	same := base
	same.SellToken = strings.ToLower(base.SellToken)
	same.BuyToken = strings.ToUpper(base.BuyToken[2:])
	same.BuyToken = "0x" + same.BuyToken
	same.TakerAddress = "0x00000000219ab540356cBB839Cbe05303d7705Fa"
	if CacheKey(same) != key {
		t.Errorf("expected case and taker to be ignored:\n%s\n%s", CacheKey(same), key)
	}

	variants := map[string]func(r *QuoteRequest){
		"amount":      func(r *QuoteRequest) { r.SellAmount = "2" },
		"mode":        func(r *QuoteRequest) { r.BuyAmount, r.SellAmount = r.SellAmount, "" },
		"chain":       func(r *QuoteRequest) { r.ChainID = 10 },
		"slippage":    func(r *QuoteRequest) { r.SlippagePercent = decimal.NewFromInt(1) },
		"cross_chain": func(r *QuoteRequest) { r.CrossChain, r.ToChainID = true, 10 },
		"direction":   func(r *QuoteRequest) { r.SellToken, r.BuyToken = r.BuyToken, r.SellToken },
	}
	for name, mutate := range variants {
		r := base
		mutate(&r)
		if CacheKey(r) == key {
			t.Errorf("%s: expected a different key", name)
		}
	}

	// destination chain is not part of the key
	a, b := base, base
	a.CrossChain, a.ToChainID = true, 10
	b.CrossChain, b.ToChainID = true, 42161
	if CacheKey(a) != CacheKey(b) {
		t.Error("expected destination chain to be ignored")
	}
}

func TestCacheEntry_Live(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewCacheEntry("k", &Quote{Provider: "0x"}, now, 5*time.Second)

	if e.Provider != "0x" {
		t.Errorf("expected provider copied from quote, got %q", e.Provider)
	}
	if !e.Live(now.Add(5 * time.Second)) {
		t.Error("expected entry live at exactly ttl")
	}
	if e.Live(now.Add(5*time.Second + time.Nanosecond)) {
		t.Error("expected entry expired after ttl")
	}

	var nilEntry *CacheEntry
	if nilEntry.Live(now) {
		t.Error("nil entry must not be live")
	}
}

func quote(provider, sell, buy string) *Quote {
	return &Quote{Provider: provider, SellToken: weth, BuyToken: usdc, SellAmount: sell, BuyAmount: buy}
}

func requestFor(mode Mode, amount string) QuoteRequest {
	req := validRequest()
	if mode == ModeExactOut {
		req.SellAmount, req.BuyAmount = "", amount
	} else {
		req.SellAmount = amount
	}
	return req
}

func TestSelect(t *testing.T) {
	priority := []string{"0x", "1inch", "paraswap", "lifi"}

	tests := []struct {
		name   string
		mode   Mode
		quotes []*Quote
		want   string
	}{
		{
			name:   "exact_in_max_buy",
			mode:   ModeExactIn,
			quotes: []*Quote{quote("0x", "1", "3000"), quote("paraswap", "1", "3100"), quote("1inch", "1", "3050")},
			want:   "paraswap",
		},
		{
			name:   "exact_out_min_sell",
			mode:   ModeExactOut,
			quotes: []*Quote{quote("0x", "105", "100"), quote("1inch", "101", "100"), quote("lifi", "110", "100")},
			want:   "1inch",
		},
		{
			name:   "tie_goes_to_priority",
			mode:   ModeExactIn,
			quotes: []*Quote{quote("lifi", "1", "3000"), quote("1inch", "1", "3000")},
			want:   "1inch",
		},
		{
			name:   "tie_unlisted_goes_to_name",
			mode:   ModeExactIn,
			quotes: []*Quote{quote("zeta", "1", "3000"), quote("alpha", "1", "3000")},
			want:   "alpha",
		},
		{
			name:   "listed_beats_unlisted_on_tie",
			mode:   ModeExactIn,
			quotes: []*Quote{quote("alpha", "1", "3000"), quote("lifi", "1", "3000")},
			want:   "lifi",
		},
		{
			name:   "invalid_quotes_ignored",
			mode:   ModeExactIn,
			quotes: []*Quote{quote("0x", "1", "9e9"), quote("1inch", "1", "-5"), quote("lifi", "1", "10"), nil},
			want:   "lifi",
		},
		{
			name:   "exact_in_other_sell_amount_ignored",
			mode:   ModeExactIn,
			quotes: []*Quote{quote("0x", "2", "6000"), quote("1inch", "1", "3000")},
			want:   "1inch",
		},
		{
			name:   "exact_out_short_buy_ignored",
			mode:   ModeExactOut,
			quotes: []*Quote{quote("0x", "50", "99"), quote("1inch", "101", "100"), quote("lifi", "102", "120")},
			want:   "1inch",
		},
		{
			name:   "amounts_beyond_uint64",
			mode:   ModeExactIn,
			quotes: []*Quote{quote("0x", "1", "340282366920938463463374607431768211455"), quote("1inch", "1", "18446744073709551616")},
			want:   "0x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := "1"
			if tt.mode == ModeExactOut {
				amount = "100"
			}
			got, err := Select(requestFor(tt.mode, amount), tt.quotes, priority)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Provider != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.Provider)
			}
		})
	}
}

func TestSelect_NoValidQuotes(t *testing.T) {
	for _, quotes := range [][]*Quote{nil, {quote("0x", "1", "abc")}} {
		_, err := Select(requestFor(ModeExactIn, "1"), quotes, nil)
		if !errors.Is(err, ErrNoQuoteAvailable) {
			t.Errorf("expected ErrNoQuoteAvailable, got %v", err)
		}
	}
}

// Randomized sets with deliberate ties: the winner must have the optimal
// amount and must not depend on input order.
func TestSelect_RandomizedOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	names := []string{"0x", "1inch", "paraswap", "lifi", "kyber", "odos"}
	priority := []string{"lifi", "0x", "1inch", "paraswap"}

	for round := 0; round < 200; round++ {
		n := 1 + rng.IntN(len(names))
		perm := rng.Perm(len(names))[:n]

		for _, mode := range []Mode{ModeExactIn, ModeExactOut} {
			// small ranges force ties; the fixed side always honors the request
			quotes := make([]*Quote, 0, n)
			for _, i := range perm {
				if mode == ModeExactIn {
					quotes = append(quotes, quote(names[i], "90", fmt.Sprint(100+rng.IntN(3))))
				} else {
					quotes = append(quotes, quote(names[i], fmt.Sprint(90+rng.IntN(3)), fmt.Sprint(100+rng.IntN(3))))
				}
			}
			req := requestFor(mode, "90")
			if mode == ModeExactOut {
				req = requestFor(mode, "100")
			}

			first, err := Select(req, quotes, priority)
			if err != nil {
				t.Fatalf("round %d: %v", round, err)
			}

			best := optimal(mode, quotes)
			sell, buy, _ := first.Amounts()
			got := buy
			if mode == ModeExactOut {
				got = sell
			}
			if got.Cmp(best) != 0 {
				t.Fatalf("round %d %s: selected %s, optimal %s", round, mode, got, best)
			}

			shuffled := append([]*Quote(nil), quotes...)
			rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
			again, _ := Select(req, shuffled, priority)
			if again.Provider != first.Provider {
				t.Fatalf("round %d %s: order changed winner %s -> %s", round, mode, first.Provider, again.Provider)
			}
		}
	}
}

func optimal(mode Mode, quotes []*Quote) *big.Int {
	var best *big.Int
	for _, q := range quotes {
		sell, buy, _ := q.Amounts()
		v := buy
		if mode == ModeExactOut {
			v = sell
		}
		if best == nil || (mode == ModeExactIn && v.Cmp(best) > 0) || (mode == ModeExactOut && v.Cmp(best) < 0) {
			best = v
		}
	}
	return best
}

func TestOutcome_Summary(t *testing.T) {
	err := apperror.Provider(apperror.CodeProviderTimeout, "1inch", nil)
	s := Failed("1inch", err, 3, 1500*time.Millisecond).Summary()

	if s.Kind != "failed" || s.Code != "PROVIDER_TIMEOUT" || s.Attempts != 3 || s.LatencyMs != 1500 {
		t.Errorf("unexpected summary %+v", s)
	}

	skip := Skipped("lifi", "rate_limited").Summary()
	if skip.Kind != "skipped" || skip.Reason != "rate_limited" || skip.Code != "" {
		t.Errorf("unexpected skip summary %+v", skip)
	}
}

func TestErrNoQuoteAvailable(t *testing.T) {
	if ErrNoQuoteAvailable.Code != apperror.CodeNoQuoteAvailable {
		t.Errorf("unexpected code %s", ErrNoQuoteAvailable.Code)
	}
	if !strings.Contains(strings.ToLower(ErrNoQuoteAvailable.Message), "temporarily unable to price this trade") {
		t.Errorf("unexpected message %q", ErrNoQuoteAvailable.Message)
	}
}
