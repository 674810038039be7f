// volwheel is a background utility that turns the mouse wheel into a volume
// control: hold a configured key combo, scroll, and the mapped audio target
// (master, one device, or one application) steps up or down.
//
// The daemon owns a global low-level mouse hook, a mapping store fed from a
// YAML settings file (live-reloaded on change), a named-pipe control surface
// for the volwheelctl client, and a localhost WebSocket stream that pushes
// applied levels to an optional overlay.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"volwheel/internal/audio"
	"volwheel/internal/hotkey"
	"volwheel/internal/ipc"
	"volwheel/internal/keys"
	"volwheel/internal/levelstream"
	"volwheel/internal/logring"
	"volwheel/internal/mousehook"
	"volwheel/internal/procutil"
	"volwheel/internal/router"
	"volwheel/internal/settings"
	"volwheel/internal/singleinstance"
	"volwheel/internal/workerutil"
)

func main() {
	os.Exit(run())
}

func run() int {
	setConsoleUTF8()

	settingsPath := flag.String("settings", settings.DefaultPath(), "path to the settings file")
	background := flag.Bool("background", false, "hide the console window after startup")
	debugLogs := flag.Bool("debug", false, "enable debug logging")
	streamAddr := flag.String("stream-addr", "127.0.0.1:0", "listen address for the overlay level stream")
	flag.Parse()

	ring := logring.NewRing(logring.DefaultCapacity)
	setupLogging(ring, *debugLogs)

	// Single-instance check first: two daemons would install two hooks and
	// double every volume step.
	mutexLock, err := singleinstance.TryLock(singleinstance.DefaultMutexName())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		reportRunningInstance()
		return 1
	}
	if err != nil {
		// Mutex creation failed for an unexpected reason. Continue startup
		// without the guard rather than refusing to run.
		slog.Warn("[main] mutex creation failed, proceeding without single-instance guard", "error", err)
	}
	if mutexLock != nil {
		defer func() {
			if releaseErr := mutexLock.Release(); releaseErr != nil {
				slog.Warn("[main] mutex release failed", "error", releaseErr)
			}
		}()
	}

	if *background {
		procutil.HideConsoleWindow()
	}

	loaded, err := settings.EnsureFile(*settingsPath)
	if err != nil {
		// Defaults were returned alongside the error; run with them so a
		// broken file never keeps the daemon down.
		slog.Warn("[main] settings load failed, continuing with defaults",
			"path", *settingsPath, "error", err)
	}
	store := hotkey.NewStore(loaded.Step, settings.BuildMappings(loaded))

	system, err := audio.NewSystem()
	if err != nil {
		slog.Error("[main] audio system initialization failed", "error", err)
		return 1
	}
	defer func() {
		if closeErr := system.Close(); closeErr != nil {
			slog.Warn("[main] audio system close failed", "error", closeErr)
		}
	}()

	reader, err := keys.NewReader()
	if err != nil {
		slog.Error("[main] keyboard state reader unavailable", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hub := levelstream.NewHub(levelstream.HubOptions{Addr: *streamAddr})
	if err := hub.Start(ctx); err != nil {
		// The overlay stream is a convenience; volume control works without it.
		slog.Warn("[main] level stream unavailable", "error", err)
	}
	defer func() {
		if stopErr := hub.Stop(); stopErr != nil {
			slog.Warn("[main] level stream stop failed", "error", stopErr)
		}
	}()

	notifier := router.NotifierFunc(func(applied router.AppliedLevel) {
		hub.Publish(levelstream.Event{
			TargetKind:   applied.TargetKind,
			EndpointID:   applied.EndpointID,
			EndpointName: applied.EndpointName,
			Process:      applied.Process,
			Level:        applied.Level,
		})
	})
	volumeRouter := router.New(system, notifier, store.Step)

	engine := NewWheelEngine(reader, store, volumeRouter)
	hook := mousehook.New(engine)

	app := NewApp(AppConfig{
		SettingsPath:  *settingsPath,
		Store:         store,
		System:        system,
		Ring:          ring,
		HookInstalled: hook.Installed,
		StreamURL:     hub.URL,
		RequestStop:   cancel,
	})

	server := ipc.NewPipeServer("", app)
	if err := server.Start(); err != nil {
		slog.Error("[main] control pipe unavailable", "error", err)
		return 1
	}
	defer func() {
		if stopErr := server.Stop(); stopErr != nil {
			slog.Warn("[main] control pipe stop failed", "error", stopErr)
		}
	}()

	// Installed last so its deferred uninstall runs first: no wheel event
	// can arrive while the rest of the daemon is dismantled.
	if err := hook.Install(); err != nil {
		// Without the hook there is nothing to do; this is the one component
		// the daemon cannot run degraded without.
		slog.Error("[main] mouse hook installation failed", "error", err)
		return 1
	}
	defer func() {
		if uninstallErr := hook.Uninstall(); uninstallErr != nil {
			slog.Warn("[main] mouse hook uninstall failed", "error", uninstallErr)
		}
	}()

	var wg sync.WaitGroup
	startSettingsWatcher(ctx, &wg, *settingsPath, store)

	slog.Info("[main] volwheel started",
		"settings", *settingsPath,
		"mappings", len(store.Snapshot()),
		"pipe", server.PipeName(),
		"stream", hub.URL(),
	)

	<-ctx.Done()
	slog.Info("[main] shutting down")

	waitWithTimeout(&wg, 5*time.Second)
	return 0
}

// reportRunningInstance asks the existing daemon for its status so the
// duplicate-launch message names the process holding the mutex.
func reportRunningInstance() {
	resp, err := ipc.Send(ipc.DefaultPipeName(), ipc.Request{Command: ipc.CommandStatus})
	if err != nil || resp.Status == nil {
		fmt.Fprintln(os.Stderr, "volwheel is already running")
		return
	}
	fmt.Fprintf(os.Stderr, "volwheel is already running (pid %d, settings %s)\n",
		resp.Status.PID, resp.Status.SettingsPath)
}

// setupLogging installs the process-wide logger: human-readable text to
// stderr, with warnings and errors teed into the in-memory ring for the
// recent-logs command.
func setupLogging(ring *logring.Ring, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(logring.NewTeeHandler(base, slog.LevelWarn, ring)))
}

// startSettingsWatcher launches the live-reload worker. Watcher construction
// failure is non-fatal: edits then require an explicit reload command.
func startSettingsWatcher(ctx context.Context, wg *sync.WaitGroup, path string, store *hotkey.Store) {
	watcher, err := settings.NewWatcher(path, func(s settings.Settings) {
		store.Replace(s.Step, settings.BuildMappings(s))
	})
	if err != nil {
		slog.Warn("[main] settings watcher unavailable, live reload disabled", "error", err)
		return
	}
	workerutil.RunWithPanicRecovery(ctx, "settings-watcher", wg, watcher.Run, workerutil.RecoveryOptions{
		IsShutdown: func() bool { return ctx.Err() != nil },
	})
}

// waitWithTimeout waits for background workers, bounding shutdown so a stuck
// worker cannot hang process exit.
func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		slog.Warn("[main] background workers did not stop in time")
	}
}
