// Package retry runs an operation with bounded exponential backoff. The delay
// schedule comes from cenkalti/backoff with randomization disabled; jitter is
// applied on top as a uniform 0-20% extension.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v5"
	"github.com/fd1az/quote-router/internal/apperror"
	"github.com/fd1az/quote-router/internal/logger"
)

// MaxJitter is the upper bound of the jitter extension as a fraction of the
// computed delay.
const MaxJitter = 0.2

// Config holds the retry schedule.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultConfig returns the default schedule: 3 attempts, 1s doubling up to
// 60s, jitter on.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// DeadLetterFunc receives operations that exhausted every attempt.
type DeadLetterFunc func(ctx context.Context, err error, attempts int) error

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy is safe for concurrent use; all per-call state lives on the stack.
type Policy struct {
	cfg        Config
	clock      clock.Clock
	logger     logger.LoggerInterface
	deadLetter DeadLetterFunc
	sleep      SleepFunc
	retryable  func(error) bool
}

// Option configures a Policy.
type Option func(*Policy)

// WithClock sets the clock used by the default sleeper.
func WithClock(c clock.Clock) Option {
	return func(p *Policy) {
		p.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.LoggerInterface) Option {
	return func(p *Policy) {
		p.logger = l
	}
}

// WithDeadLetter sets the hook invoked after the last attempt fails.
func WithDeadLetter(fn DeadLetterFunc) Option {
	return func(p *Policy) {
		p.deadLetter = fn
	}
}

// WithSleeper replaces the sleep function.
func WithSleeper(fn SleepFunc) Option {
	return func(p *Policy) {
		p.sleep = fn
	}
}

// WithClassifier replaces the retryable-error predicate.
func WithClassifier(fn func(error) bool) Option {
	return func(p *Policy) {
		p.retryable = fn
	}
}

// New creates a policy. Invalid fields fall back to DefaultConfig values.
func New(cfg Config, opts ...Option) *Policy {
	def := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}

	p := &Policy{
		cfg:       cfg,
		clock:     clock.New(),
		logger:    logger.NewDiscard(),
		retryable: apperror.IsTransient,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sleep == nil {
		p.sleep = p.clockSleep
	}
	return p
}

// Config returns the effective schedule.
func (p *Policy) Config() Config {
	return p.cfg
}

// Stop marks err as final: Execute returns it unwrapped without another
// attempt or a dead letter.
func Stop(err error) error {
	return backoff.Permanent(err)
}

// Execute runs op until it succeeds, fails permanently or runs out of
// attempts. It returns the number of attempts made and the last error.
// Breaker rejections, Stop errors and context cancellation end the loop
// immediately.
func (p *Policy) Execute(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	b := p.schedule()

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		var stop *backoff.PermanentError
		if errors.As(lastErr, &stop) {
			return attempt, stop.Err
		}

		if ctx.Err() != nil || !p.shouldRetry(lastErr) {
			return attempt, lastErr
		}

		if attempt == p.cfg.MaxAttempts {
			p.sendDeadLetter(ctx, lastErr, attempt)
			return attempt, lastErr
		}

		delay := p.withJitter(b.NextBackOff())
		p.logger.Debug(ctx, "retrying after transient failure",
			"attempt", attempt,
			"delay", delay.String(),
			"error", lastErr.Error(),
		)

		if err := p.sleep(ctx, delay); err != nil {
			return attempt, lastErr
		}
	}

	return p.cfg.MaxAttempts, lastErr
}

func (p *Policy) schedule() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          p.cfg.Multiplier,
		MaxInterval:         p.cfg.MaxDelay,
	}
	b.Reset()
	return b
}

func (p *Policy) shouldRetry(err error) bool {
	if apperror.GetCode(err) == apperror.CodeCircuitOpen {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return p.retryable(err)
}

func (p *Policy) withJitter(d time.Duration) time.Duration {
	if !p.cfg.Jitter || d <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*MaxJitter*rand.Float64())
}

func (p *Policy) clockSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := p.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendDeadLetter invokes the hook; its failures never reach the caller.
func (p *Policy) sendDeadLetter(ctx context.Context, cause error, attempts int) {
	if p.deadLetter == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "dead letter hook panicked",
				"panic", fmt.Sprint(r),
				"attempts", attempts,
			)
		}
	}()

	if err := p.deadLetter(ctx, cause, attempts); err != nil {
		p.logger.Warn(ctx, "dead letter hook failed",
			"error", err.Error(),
			"attempts", attempts,
		)
	}
}
