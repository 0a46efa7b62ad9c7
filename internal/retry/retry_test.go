package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fd1az/quote-router/internal/apperror"
	"github.com/fd1az/quote-router/internal/logger"
)

// mockLogger implements logger.LoggerInterface for testing.
type mockLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any) {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, msg)
}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

// recordingSleeper captures requested delays without waiting.
type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func transient() error {
	return apperror.New(apperror.CodeProviderTimeout)
}

func TestPolicy_RetriesUntilSuccess(t *testing.T) {
	tests := []struct {
		name         string
		failures     int
		maxAttempts  int
		wantAttempts int
		wantErr      bool
	}{
		{"first_try", 0, 3, 1, false},
		{"one_failure", 1, 3, 2, false},
		{"two_failures", 2, 3, 3, false},
		{"exhausted", 5, 3, 3, true},
		{"single_attempt", 1, 1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingSleeper{}
			cfg := DefaultConfig()
			cfg.MaxAttempts = tt.maxAttempts
			p := New(cfg, WithSleeper(rec.sleep))

			calls := 0
			attempts, err := p.Execute(context.Background(), func(ctx context.Context) error {
				calls++
				if calls <= tt.failures {
					return transient()
				}
				return nil
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if attempts != tt.wantAttempts || calls != tt.wantAttempts {
				t.Errorf("expected %d attempts, got attempts=%d calls=%d", tt.wantAttempts, attempts, calls)
			}
			if len(rec.delays) != tt.wantAttempts-1 {
				t.Errorf("expected %d sleeps, got %d", tt.wantAttempts-1, len(rec.delays))
			}
		})
	}
}

func TestPolicy_DelaysWithinJitterBounds(t *testing.T) {
	cfg := Config{
		MaxAttempts: 6,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    1 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}

	for run := 0; run < 20; run++ {
		rec := &recordingSleeper{}
		p := New(cfg, WithSleeper(rec.sleep))

		p.Execute(context.Background(), func(ctx context.Context) error {
			return transient()
		})

		base := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			800 * time.Millisecond,
			1 * time.Second,
		}
		if len(rec.delays) != len(base) {
			t.Fatalf("expected %d delays, got %d", len(base), len(rec.delays))
		}
		for i, d := range rec.delays {
			upper := base[i] + time.Duration(float64(base[i])*MaxJitter)
			if d < base[i] || d > upper {
				t.Errorf("delay %d = %s outside [%s, %s]", i, d, base[i], upper)
			}
		}
	}
}

func TestPolicy_ScheduleIsCappedExponential(t *testing.T) {
	rec := &recordingSleeper{}
	p := New(Config{
		MaxAttempts: 6,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		Multiplier:  2.0,
	}, WithSleeper(rec.sleep))

	p.Execute(context.Background(), func(ctx context.Context) error {
		return transient()
	})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}
	got := rec.delays
	if len(got) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay %d = %s, want %s", i, got[i], want[i])
		}
		if i > 0 && got[i] < got[i-1] {
			t.Errorf("delay %d decreased: %s < %s", i, got[i], got[i-1])
		}
	}
}

func TestPolicy_PermanentErrorsStopImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"client_error", apperror.New(apperror.CodeProviderClientError)},
		{"malformed_response", apperror.New(apperror.CodeInvalidProviderResponse)},
		{"breaker_open", apperror.New(apperror.CodeCircuitOpen)},
		{"cancelled", context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingSleeper{}
			dead := 0
			p := New(DefaultConfig(),
				WithSleeper(rec.sleep),
				WithDeadLetter(func(ctx context.Context, err error, attempts int) error {
					dead++
					return nil
				}),
			)

			calls := 0
			attempts, err := p.Execute(context.Background(), func(ctx context.Context) error {
				calls++
				return tt.err
			})

			if !errors.Is(err, tt.err) {
				t.Errorf("expected original error, got %v", err)
			}
			if calls != 1 || attempts != 1 {
				t.Errorf("expected a single call, got calls=%d attempts=%d", calls, attempts)
			}
			if len(rec.delays) != 0 {
				t.Errorf("expected no sleeps, got %v", rec.delays)
			}
			if dead != 0 {
				t.Errorf("expected dead letter untouched for permanent failures")
			}
		})
	}
}

func TestPolicy_StopEndsSequenceWithCause(t *testing.T) {
	rec := &recordingSleeper{}
	dead := 0
	p := New(DefaultConfig(),
		WithSleeper(rec.sleep),
		WithDeadLetter(func(ctx context.Context, err error, attempts int) error {
			dead++
			return nil
		}),
	)

	cause := transient()
	calls := 0
	attempts, err := p.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 2 {
			return Stop(cause)
		}
		return transient()
	})

	if calls != 2 || attempts != 2 {
		t.Errorf("expected to stop on the second attempt, got calls=%d attempts=%d", calls, attempts)
	}
	if err != cause {
		t.Errorf("expected the unwrapped cause, got %v", err)
	}
	if len(rec.delays) != 1 {
		t.Errorf("expected one sleep before the stop, got %v", rec.delays)
	}
	if dead != 0 {
		t.Errorf("expected no dead letter for a stopped sequence")
	}
}

func TestPolicy_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(DefaultConfig(), WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	calls := 0
	attempts, err := p.Execute(ctx, func(ctx context.Context) error {
		calls++
		return transient()
	})

	if calls != 1 || attempts != 1 {
		t.Errorf("expected to stop after cancellation during backoff, got calls=%d", calls)
	}
	if apperror.GetCode(err) != apperror.CodeProviderTimeout {
		t.Errorf("expected last operation error, got %v", err)
	}
}

func TestPolicy_DeadLetterFailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name     string
		hook     DeadLetterFunc
		wantWarn int
		wantErr  int
	}{
		{
			name:     "hook_error",
			hook:     func(ctx context.Context, err error, attempts int) error { return errors.New("queue down") },
			wantWarn: 1,
		},
		{
			name:    "hook_panic",
			hook:    func(ctx context.Context, err error, attempts int) error { panic("boom") },
			wantErr: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &mockLogger{}
			rec := &recordingSleeper{}
			p := New(DefaultConfig(),
				WithSleeper(rec.sleep),
				WithLogger(log),
				WithDeadLetter(tt.hook),
			)

			attempts, err := p.Execute(context.Background(), func(ctx context.Context) error {
				return transient()
			})

			if attempts != 3 {
				t.Errorf("expected 3 attempts, got %d", attempts)
			}
			if apperror.GetCode(err) != apperror.CodeProviderTimeout {
				t.Errorf("expected original failure returned, got %v", err)
			}
			if len(log.warns) != tt.wantWarn || len(log.errs) != tt.wantErr {
				t.Errorf("expected warns=%d errs=%d, got warns=%v errs=%v",
					tt.wantWarn, tt.wantErr, log.warns, log.errs)
			}
		})
	}
}

func TestPolicy_DeadLetterReceivesFinalFailure(t *testing.T) {
	var gotAttempts int
	var gotErr error
	p := New(DefaultConfig(),
		WithSleeper((&recordingSleeper{}).sleep),
		WithDeadLetter(func(ctx context.Context, err error, attempts int) error {
			gotAttempts = attempts
			gotErr = err
			return nil
		}),
	)

	p.Execute(context.Background(), func(ctx context.Context) error {
		return transient()
	})

	if gotAttempts != 3 {
		t.Errorf("expected dead letter with 3 attempts, got %d", gotAttempts)
	}
	if apperror.GetCode(gotErr) != apperror.CodeProviderTimeout {
		t.Errorf("unexpected dead letter error %v", gotErr)
	}
}
