package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestLimiter_WindowAdmitsExactlyMax(t *testing.T) {
	mock := clock.NewMock()
	l := New(map[string]Limits{
		"0x": {PerMinute: 5},
	}, WithClock(mock))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if !l.Allow(ctx, "0x") {
			t.Fatalf("call %d: expected admission", i+1)
		}
	}

	if l.Allow(ctx, "0x") {
		t.Fatal("expected the 6th call in the window to be rejected")
	}
	if got := l.Stats("0x").Remaining; got != 0 {
		t.Errorf("expected 0 remaining, got %d", got)
	}

	// Still inside the window.
	mock.Add(59 * time.Second)
	if l.Allow(ctx, "0x") {
		t.Fatal("expected rejection before rollover")
	}

	// Rollover resumes admission.
	mock.Add(1 * time.Second)
	if !l.Allow(ctx, "0x") {
		t.Fatal("expected admission after window rollover")
	}
	if got := l.Stats("0x").Remaining; got != 4 {
		t.Errorf("expected 4 remaining after rollover, got %d", got)
	}
}

func TestLimiter_ProvidersAreIndependent(t *testing.T) {
	mock := clock.NewMock()
	l := New(map[string]Limits{
		"0x":    {PerMinute: 1},
		"1inch": {PerMinute: 1},
	}, WithClock(mock))

	ctx := context.Background()
	if !l.Allow(ctx, "0x") {
		t.Fatal("expected 0x admission")
	}
	if l.Allow(ctx, "0x") {
		t.Fatal("expected 0x exhausted")
	}
	if !l.Allow(ctx, "1inch") {
		t.Fatal("expected 1inch unaffected by 0x budget")
	}
}

func TestLimiter_UnconfiguredProviderUsesDefaults(t *testing.T) {
	mock := clock.NewMock()
	l := New(nil, WithClock(mock), WithDefaults(Limits{PerMinute: 2}))

	ctx := context.Background()
	l.Allow(ctx, "paraswap")
	l.Allow(ctx, "paraswap")

	if l.Allow(ctx, "paraswap") {
		t.Fatal("expected default window of 2 to be enforced")
	}

	stats := l.Stats("paraswap")
	if stats.PerMinute != 2 || stats.Used != 2 || stats.Remaining != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestLimiter_ConcurrentCallersNeverOvershoot(t *testing.T) {
	mock := clock.NewMock()
	l := New(map[string]Limits{"0x": {PerMinute: 10}}, WithClock(mock))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(context.Background(), "0x") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 10 {
		t.Errorf("expected exactly 10 admitted, got %d", admitted)
	}
}

func TestLimiter_SpacingBlocksUntilInterval(t *testing.T) {
	mock := clock.NewMock()
	l := New(map[string]Limits{"0x": {PerMinute: 60, PerSecond: 1}}, WithClock(mock))

	ctx := context.Background()
	if !l.Allow(ctx, "0x") {
		t.Fatal("expected first call admitted immediately")
	}

	done := make(chan bool, 1)
	go func() {
		done <- l.Allow(ctx, "0x")
	}()

	// Let the goroutine register its timer on the mock clock.
	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("expected second call to wait for spacing")
	default:
	}

	mock.Add(time.Second)

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected second call admitted after spacing")
		}
	case <-time.After(time.Second):
		t.Fatal("second call never released")
	}
}

func TestLimiter_CancelDuringSpacingReleasesSlot(t *testing.T) {
	mock := clock.NewMock()
	l := New(map[string]Limits{"0x": {PerMinute: 5, PerSecond: 1}}, WithClock(mock))

	if !l.Allow(context.Background(), "0x") {
		t.Fatal("expected first call admitted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		done <- l.Allow(ctx, "0x")
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected cancelled wait to report rejection")
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled call never returned")
	}

	if got := l.Stats("0x").Remaining; got != 4 {
		t.Errorf("expected slot refunded (4 remaining), got %d", got)
	}
}

func TestLimiter_UnlimitedWindow(t *testing.T) {
	l := New(map[string]Limits{"lifi": {}}, WithClock(clock.NewMock()))

	for i := 0; i < 100; i++ {
		if !l.Allow(context.Background(), "lifi") {
			t.Fatalf("call %d: expected unlimited admission", i)
		}
	}
	if got := l.Stats("lifi").Remaining; got != -1 {
		t.Errorf("expected -1 for unlimited, got %d", got)
	}
}
