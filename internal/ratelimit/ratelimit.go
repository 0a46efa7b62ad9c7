// Package ratelimit provides per-provider admission control: a fixed
// per-minute call window plus minimum inter-call spacing enforced with
// golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// WindowLength is the fixed length of a counting window.
const WindowLength = 60 * time.Second

// Limits is the configured budget for one provider.
type Limits struct {
	PerMinute int     // max admitted calls per window; <= 0 means unlimited
	PerSecond float64 // max calls per second; <= 0 disables spacing
}

// DefaultLimits is the conservative budget applied to unconfigured providers.
var DefaultLimits = Limits{PerMinute: 10, PerSecond: 1}

// Stats is a read-only snapshot of a provider window.
type Stats struct {
	Provider    string    `json:"provider"`
	PerMinute   int       `json:"per_minute"`
	PerSecond   float64   `json:"per_second"`
	Used        int       `json:"used"`
	Remaining   int       `json:"remaining"`
	WindowStart time.Time `json:"window_start"`
}

// window is the mutable state of one provider. Guarded by its own mutex so
// providers never contend with each other.
type window struct {
	mu          sync.Mutex
	limits      Limits
	count       int
	windowStart time.Time
	spacing     *rate.Limiter
}

// Limiter holds one window per provider.
type Limiter struct {
	clock    clock.Clock
	defaults Limits

	mu      sync.RWMutex
	windows map[string]*window
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source (tests use clock.NewMock()).
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// WithDefaults overrides the budget for unconfigured providers.
func WithDefaults(limits Limits) Option {
	return func(l *Limiter) {
		l.defaults = limits
	}
}

// New creates a limiter with an explicit budget per provider.
func New(perProvider map[string]Limits, opts ...Option) *Limiter {
	l := &Limiter{
		clock:    clock.New(),
		defaults: DefaultLimits,
		windows:  make(map[string]*window, len(perProvider)),
	}
	for _, opt := range opts {
		opt(l)
	}

	for name, limits := range perProvider {
		l.windows[name] = l.newWindow(limits)
	}

	return l
}

func (l *Limiter) newWindow(limits Limits) *window {
	w := &window{
		limits:      limits,
		windowStart: l.clock.Now(),
	}
	if limits.PerSecond > 0 {
		w.spacing = rate.NewLimiter(rate.Limit(limits.PerSecond), 1)
	}
	return w
}

// get returns the provider window, creating a default one on first use.
func (l *Limiter) get(provider string) *window {
	l.mu.RLock()
	w, ok := l.windows[provider]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[provider]; ok {
		return w
	}
	w = l.newWindow(l.defaults)
	l.windows[provider] = w
	return w
}

// Allow admits or rejects one call for provider. A rejection is a normal
// outcome and the caller must skip the provider. When the window has room
// but the last call was too recent, Allow blocks the caller until the spacing
// is satisfied; cancelling ctx during that wait releases the slot and
// returns false.
func (l *Limiter) Allow(ctx context.Context, provider string) bool {
	w := l.get(provider)

	w.mu.Lock()
	now := l.clock.Now()
	if now.Sub(w.windowStart) >= WindowLength {
		w.count = 0
		w.windowStart = now
	}

	if w.limits.PerMinute > 0 && w.count >= w.limits.PerMinute {
		w.mu.Unlock()
		return false
	}

	// Reserve both the window slot and the spacing token while holding the
	// lock so concurrent callers cannot overshoot the window.
	w.count++
	var delay time.Duration
	var reservation *rate.Reservation
	if w.spacing != nil {
		reservation = w.spacing.ReserveN(now, 1)
		delay = reservation.DelayFrom(now)
	}
	windowStart := w.windowStart
	w.mu.Unlock()

	if delay <= 0 {
		return true
	}

	timer := l.clock.Timer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		reservation.CancelAt(l.clock.Now())
		w.mu.Lock()
		if w.windowStart.Equal(windowStart) && w.count > 0 {
			w.count--
		}
		w.mu.Unlock()
		return false
	}
}

// Stats returns a snapshot for one provider.
func (l *Limiter) Stats(provider string) Stats {
	w := l.get(provider)

	w.mu.Lock()
	defer w.mu.Unlock()

	used := w.count
	start := w.windowStart
	if l.clock.Now().Sub(w.windowStart) >= WindowLength {
		used = 0
		start = l.clock.Now()
	}

	remaining := -1
	if w.limits.PerMinute > 0 {
		remaining = w.limits.PerMinute - used
	}

	return Stats{
		Provider:    provider,
		PerMinute:   w.limits.PerMinute,
		PerSecond:   w.limits.PerSecond,
		Used:        used,
		Remaining:   remaining,
		WindowStart: start,
	}
}

// Providers returns the names of every provider with a window.
func (l *Limiter) Providers() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.windows))
	for name := range l.windows {
		names = append(names, name)
	}
	return names
}
