// Package workerutil runs background workers with panic recovery and
// exponential backoff restart.
package workerutil

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	// defaultInitialBackoff is the delay before the first restart after a
	// worker panic. Doubles on each attempt up to defaultMaxBackoff.
	defaultInitialBackoff = 100 * time.Millisecond

	defaultMaxBackoff = 5 * time.Second

	// defaultMaxRetries bounds total restart attempts before the worker is
	// permanently stopped.
	defaultMaxRetries = 10
)

// RecoveryOptions configures RunWithPanicRecovery. Zero-value numeric fields
// select the defaults; nil callbacks are no-ops. Set MaxRetries to 1 to run
// the worker once with no restart.
type RecoveryOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int

	// OnPanic is called after each recovered panic, before the backoff
	// wait. attempt is 1-based.
	OnPanic func(worker string, attempt int)

	// OnFatal is called when MaxRetries is exceeded and the worker stops
	// for good.
	OnFatal func(worker string, maxRetries int)

	// IsShutdown short-circuits the restart loop when the daemon is
	// tearing down: a panic during shutdown is logged but never restarted,
	// since the components the worker touches (store, watcher, stream) are
	// being dismantled underneath it.
	IsShutdown func() bool
}

// applyDefaults returns a copy with zero-value fields filled in. A MaxBackoff
// below InitialBackoff is contradictory; the backoff sequence must be
// non-decreasing, so InitialBackoff wins.
func (opts RecoveryOptions) applyDefaults() RecoveryOptions {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		slog.Warn("[worker] MaxBackoff below InitialBackoff, using InitialBackoff as cap",
			"initialBackoff", opts.InitialBackoff,
			"maxBackoff", opts.MaxBackoff,
		)
		opts.MaxBackoff = opts.InitialBackoff
	}
	return opts
}

// RunWithPanicRecovery launches fn in a goroutine tracked by wg. A panic is
// logged with its stack and the worker restarted after an exponentially
// growing delay; after MaxRetries consecutive panics the worker stops and
// OnFatal fires. fn should select on ctx.Done to observe cancellation.
func RunWithPanicRecovery(
	ctx context.Context,
	name string,
	wg *sync.WaitGroup,
	fn func(ctx context.Context),
	opts RecoveryOptions,
) {
	opts = opts.applyDefaults()

	// wg.Add runs before launch, so a wg.Wait racing this call still
	// observes the worker.
	wg.Add(1)
	go func() {
		defer wg.Done()
		runRecoveryLoop(ctx, name, fn, opts)
	}()
}

func runRecoveryLoop(
	ctx context.Context,
	name string,
	fn func(ctx context.Context),
	opts RecoveryOptions,
) {
	restartDelay := opts.InitialBackoff

	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		panicked := false
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("[worker] recovered from panic",
						"worker", name,
						"panic", r,
						"stack", string(debug.Stack()),
					)
					panicked = true
				}
			}()
			fn(ctx)
		}()

		// Normal exit or context already cancelled: stop immediately.
		if !panicked || ctx.Err() != nil {
			return
		}

		// OnPanic is skipped on the shutdown path: the panic is already
		// logged above, and shutdown-time callbacks would touch state
		// that is being torn down.
		if opts.IsShutdown != nil && opts.IsShutdown() {
			slog.Info("[worker] shutdown in progress, not restarting",
				"worker", name,
			)
			return
		}

		slog.Warn("[worker] restarting after panic",
			"worker", name,
			"restartDelay", restartDelay,
			"attempt", attempt+1,
		)

		if opts.OnPanic != nil {
			opts.OnPanic(name, attempt+1)
		}

		// No backoff wait after the final attempt; there is no next
		// restart to wait for.
		if attempt == opts.MaxRetries-1 {
			break
		}

		restartTimer := time.NewTimer(restartDelay)
		select {
		case <-ctx.Done():
			restartTimer.Stop()
			return
		case <-restartTimer.C:
		}

		restartDelay = nextBackoff(restartDelay, opts.MaxBackoff)
	}

	slog.Error("[worker] exceeded max retries, giving up",
		"worker", name,
		"maxRetries", opts.MaxRetries,
	)

	if opts.OnFatal != nil {
		opts.OnFatal(name, opts.MaxRetries)
	}
}

// nextBackoff doubles the delay, capping at maxBackoff. Doubling a large
// int64 duration can wrap negative, so the overflow case also caps.
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	if current <= 0 {
		return defaultInitialBackoff
	}
	if current >= maxBackoff {
		return maxBackoff
	}
	next := current * 2
	if next > maxBackoff || next < current {
		return maxBackoff
	}
	return next
}
