package domain

import (
	"strconv"
	"strings"
	"time"
)

// CacheEntry is a selected quote stored for reuse. It is never served once
// now > InsertedAt+TTL.
type CacheEntry struct {
	Key        string        `json:"key"`
	Provider   string        `json:"provider"`
	Quote      *Quote        `json:"quote"`
	InsertedAt time.Time     `json:"inserted_at"`
	TTL        time.Duration `json:"ttl"`
}

// NewCacheEntry creates an entry for q inserted at now.
func NewCacheEntry(key string, q *Quote, now time.Time, ttl time.Duration) *CacheEntry {
	return &CacheEntry{
		Key:        key,
		Provider:   q.Provider,
		Quote:      q,
		InsertedAt: now,
		TTL:        ttl,
	}
}

// ExpiresAt is the last instant the entry may be served.
func (e *CacheEntry) ExpiresAt() time.Time {
	return e.InsertedAt.Add(e.TTL)
}

// Live reports whether the entry may still be served at now.
func (e *CacheEntry) Live(now time.Time) bool {
	return e != nil && !now.After(e.ExpiresAt())
}

// CacheKey identifies requests that may share a quote: both tokens, the fixed
// amount and its side, the chain, the slippage and the cross-chain flag. The
// taker and the destination chain are not part of the key.
func CacheKey(req QuoteRequest) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(req.SellToken))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(req.BuyToken))
	b.WriteByte('|')
	b.WriteString(req.Mode().String())
	b.WriteByte(':')
	b.WriteString(req.Amount())
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(req.ChainID, 10))
	b.WriteByte('|')
	b.WriteString(req.SlippagePercent.String())
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(req.CrossChain))
	return b.String()
}
