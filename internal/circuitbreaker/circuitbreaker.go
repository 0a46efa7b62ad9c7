// Package circuitbreaker wraps sony/gobreaker with the consecutive-failure
// policy used for every quote provider: trip after Threshold consecutive
// failures, reject for OpenDuration, then admit exactly one trial call.
package circuitbreaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fd1az/quote-router/internal/apperror"
	"github.com/sony/gobreaker/v2"
)

const (
	DefaultThreshold    = 5
	DefaultOpenDuration = 60 * time.Second
)

// ErrOpen is returned (matched by code) when a call is rejected without
// reaching the wrapped function.
var ErrOpen = apperror.New(apperror.CodeCircuitOpen)

// Config holds breaker settings.
type Config struct {
	Name          string
	Threshold     uint32
	OpenDuration  time.Duration
	OnStateChange func(name string, from, to gobreaker.State)
	Clock         clock.Clock
}

// DefaultConfig returns the default settings for a named breaker.
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		Threshold:    DefaultThreshold,
		OpenDuration: DefaultOpenDuration,
	}
}

// Stats is a snapshot of a breaker.
type Stats struct {
	Name                string        `json:"name"`
	State               string        `json:"state"`
	ConsecutiveFailures uint32        `json:"consecutive_failures"`
	TotalFailures       uint32        `json:"total_failures"`
	LastTransition      time.Time     `json:"last_transition"`
	SinceTransition     time.Duration `json:"since_transition"`
	Threshold           uint32        `json:"threshold"`
	OpenDuration        time.Duration `json:"open_duration"`
}

// CircuitBreaker is a typed breaker. Reset swaps in a fresh gobreaker
// instance; callbacks from the replaced instance are ignored.
type CircuitBreaker[T any] struct {
	cfg   Config
	clock clock.Clock

	cb         atomic.Pointer[gobreaker.CircuitBreaker[T]]
	generation atomic.Uint64

	mu             sync.Mutex
	lastTransition time.Time
}

// New creates a breaker from cfg. Zero threshold or duration fall back to
// the defaults.
func New[T any](cfg Config) *CircuitBreaker[T] {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = DefaultOpenDuration
	}

	c := &CircuitBreaker[T]{
		cfg:   cfg,
		clock: cfg.Clock,
	}
	if c.clock == nil {
		c.clock = clock.New()
	}

	c.lastTransition = c.clock.Now()
	c.cb.Store(c.build(c.generation.Load()))
	return c
}

func (c *CircuitBreaker[T]) build(gen uint64) *gobreaker.CircuitBreaker[T] {
	threshold := c.cfg.Threshold

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        c.cfg.Name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     c.cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if c.generation.Load() != gen {
				return
			}
			c.mu.Lock()
			c.lastTransition = c.clock.Now()
			c.mu.Unlock()

			if c.cfg.OnStateChange != nil {
				c.cfg.OnStateChange(name, from, to)
			}
		},
	})
}

// Name returns the breaker name.
func (c *CircuitBreaker[T]) Name() string {
	return c.cfg.Name
}

// Execute runs fn if the breaker admits the call. Rejections return an
// AppError with CodeCircuitOpen and never invoke fn.
func (c *CircuitBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	res, err := c.cb.Load().Execute(fn)
	if err != nil && (errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)) {
		var zero T
		return zero, apperror.New(apperror.CodeCircuitOpen,
			apperror.WithContext("breaker="+c.cfg.Name),
			apperror.WithCause(err),
		)
	}
	return res, err
}

// State returns the current state.
func (c *CircuitBreaker[T]) State() gobreaker.State {
	return c.cb.Load().State()
}

// Reset forces the breaker back to closed with zeroed counters.
func (c *CircuitBreaker[T]) Reset() {
	prev := c.cb.Load().State()
	gen := c.generation.Add(1)
	c.cb.Store(c.build(gen))

	c.mu.Lock()
	c.lastTransition = c.clock.Now()
	c.mu.Unlock()

	if prev != gobreaker.StateClosed && c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(c.cfg.Name, prev, gobreaker.StateClosed)
	}
}

// Stats returns a snapshot of the breaker.
func (c *CircuitBreaker[T]) Stats() Stats {
	cb := c.cb.Load()
	state := cb.State()
	counts := cb.Counts()

	c.mu.Lock()
	last := c.lastTransition
	c.mu.Unlock()

	return Stats{
		Name:                c.cfg.Name,
		State:               state.String(),
		ConsecutiveFailures: counts.ConsecutiveFailures,
		TotalFailures:       counts.TotalFailures,
		LastTransition:      last,
		SinceTransition:     c.clock.Since(last),
		Threshold:           c.cfg.Threshold,
		OpenDuration:        c.cfg.OpenDuration,
	}
}

// IsOpen reports whether err is a breaker rejection.
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}

// Registry holds one breaker per name, created on first use.
type Registry[T any] struct {
	configFor func(name string) Config

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker[T]
}

// NewRegistry creates a registry. configFor supplies the settings for each
// breaker; nil means DefaultConfig.
func NewRegistry[T any](configFor func(name string) Config) *Registry[T] {
	if configFor == nil {
		configFor = DefaultConfig
	}
	return &Registry[T]{
		configFor: configFor,
		breakers:  make(map[string]*CircuitBreaker[T]),
	}
}

// Get returns the breaker for name, creating it if needed.
func (r *Registry[T]) Get(name string) *CircuitBreaker[T] {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok = r.breakers[name]; ok {
		return cb
	}
	cfg := r.configFor(name)
	cfg.Name = name
	cb = New[T](cfg)
	r.breakers[name] = cb
	return cb
}
