package workerutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunWithPanicRecoveryNormalExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	var panicCalled atomic.Int32
	var fatalCalled atomic.Int32

	opts := RecoveryOptions{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		MaxRetries:     3,
		OnPanic:        func(_ string, _ int) { panicCalled.Add(1) },
		OnFatal:        func(_ string, _ int) { fatalCalled.Add(1) },
	}

	RunWithPanicRecovery(ctx, "normal", &wg, func(ctx context.Context) {
		<-ctx.Done()
	}, opts)

	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()

	if panicCalled.Load() != 0 {
		t.Errorf("OnPanic called %d times, want 0", panicCalled.Load())
	}
	if fatalCalled.Load() != 0 {
		t.Errorf("OnFatal called %d times, want 0", fatalCalled.Load())
	}
}

func TestRunWithPanicRecoverySingleRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	var callCount atomic.Int32
	var panicAttempt atomic.Int32
	var fatalCalled atomic.Int32

	opts := RecoveryOptions{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		MaxRetries:     5,
		OnPanic:        func(_ string, attempt int) { panicAttempt.Store(int32(attempt)) },
		OnFatal:        func(_ string, _ int) { fatalCalled.Add(1) },
	}

	RunWithPanicRecovery(ctx, "single-retry", &wg, func(_ context.Context) {
		if callCount.Add(1) == 1 {
			panic("first call fails")
		}
	}, opts)

	wg.Wait()

	if got := callCount.Load(); got != 2 {
		t.Errorf("fn called %d times, want 2 (1 panic + 1 normal)", got)
	}
	if got := panicAttempt.Load(); got != 1 {
		t.Errorf("OnPanic attempt = %d, want 1", got)
	}
	if fatalCalled.Load() != 0 {
		t.Errorf("OnFatal called %d times, want 0", fatalCalled.Load())
	}
}

func TestRunWithPanicRecoveryMaxRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	const maxRetries = 3
	var callCount atomic.Int32
	var fatalMaxRetries atomic.Int32

	opts := RecoveryOptions{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		MaxRetries:     maxRetries,
		OnFatal:        func(_ string, maxR int) { fatalMaxRetries.Store(int32(maxR)) },
	}

	RunWithPanicRecovery(ctx, "max-retries", &wg, func(_ context.Context) {
		callCount.Add(1)
		panic("always fails")
	}, opts)

	wg.Wait()

	if got := callCount.Load(); got != maxRetries {
		t.Errorf("fn called %d times, want %d", got, maxRetries)
	}
	if got := fatalMaxRetries.Load(); got != maxRetries {
		t.Errorf("OnFatal maxRetries = %d, want %d", got, maxRetries)
	}
}

func TestRunWithPanicRecoveryShutdownStopsRestart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	var callCount atomic.Int32
	var panicCalled atomic.Int32
	var fatalCalled atomic.Int32

	opts := RecoveryOptions{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		MaxRetries:     5,
		OnPanic:        func(_ string, _ int) { panicCalled.Add(1) },
		OnFatal:        func(_ string, _ int) { fatalCalled.Add(1) },
		IsShutdown:     func() bool { return callCount.Load() >= 1 },
	}

	RunWithPanicRecovery(ctx, "shutdown", &wg, func(_ context.Context) {
		callCount.Add(1)
		panic("panic during teardown")
	}, opts)

	wg.Wait()

	if got := callCount.Load(); got != 1 {
		t.Errorf("fn called %d times, want 1 (shutdown prevents restart)", got)
	}
	if panicCalled.Load() != 0 {
		t.Errorf("OnPanic called %d times, want 0 (shutdown exits before OnPanic)", panicCalled.Load())
	}
	if fatalCalled.Load() != 0 {
		t.Errorf("OnFatal called %d times, want 0", fatalCalled.Load())
	}
}

func TestRunWithPanicRecoveryCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	var callCount atomic.Int32

	// Long backoff so the timer cannot fire before the cancel.
	opts := RecoveryOptions{
		InitialBackoff: 10 * time.Second,
		MaxBackoff:     10 * time.Second,
		MaxRetries:     5,
	}

	RunWithPanicRecovery(ctx, "cancel-backoff", &wg, func(_ context.Context) {
		callCount.Add(1)
		panic("enter backoff")
	}, opts)

	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit within 2s after context cancel during backoff")
	}

	if got := callCount.Load(); got != 1 {
		t.Errorf("fn called %d times, want 1", got)
	}
}

func TestRecoveryOptionsDefaults(t *testing.T) {
	applied := RecoveryOptions{}.applyDefaults()
	if applied.InitialBackoff != defaultInitialBackoff {
		t.Errorf("InitialBackoff = %s, want %s", applied.InitialBackoff, defaultInitialBackoff)
	}
	if applied.MaxBackoff != defaultMaxBackoff {
		t.Errorf("MaxBackoff = %s, want %s", applied.MaxBackoff, defaultMaxBackoff)
	}
	if applied.MaxRetries != defaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", applied.MaxRetries, defaultMaxRetries)
	}

	contradictory := RecoveryOptions{
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		MaxRetries:     3,
	}.applyDefaults()
	if contradictory.MaxBackoff != contradictory.InitialBackoff {
		t.Errorf("MaxBackoff = %s, want %s (promoted to InitialBackoff)",
			contradictory.MaxBackoff, contradictory.InitialBackoff)
	}
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		name       string
		current    time.Duration
		maxBackoff time.Duration
		want       time.Duration
	}{
		{name: "zero uses default initial", current: 0, maxBackoff: 5 * time.Second, want: defaultInitialBackoff},
		{name: "doubles under cap", current: 200 * time.Millisecond, maxBackoff: 5 * time.Second, want: 400 * time.Millisecond},
		{name: "caps at max", current: 5 * time.Second, maxBackoff: 5 * time.Second, want: 5 * time.Second},
		{name: "caps when doubling exceeds max", current: 3 * time.Second, maxBackoff: 5 * time.Second, want: 5 * time.Second},
		{name: "overflow guard", current: time.Duration(1<<62 - 1), maxBackoff: 5 * time.Second, want: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextBackoff(tt.current, tt.maxBackoff); got != tt.want {
				t.Errorf("nextBackoff(%s, %s) = %s, want %s",
					tt.current, tt.maxBackoff, got, tt.want)
			}
		})
	}
}
