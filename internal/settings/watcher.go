package settings

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the burst of write/rename events an atomic save
// produces into one reload.
const debounceDelay = 250 * time.Millisecond

// Watcher reloads the settings file when it changes on disk and hands the
// result to a callback. The directory is watched rather than the file so
// atomic rename-into-place (our own Save included) keeps being observed.
type Watcher struct {
	path     string
	onChange func(Settings)
	fs       *fsnotify.Watcher
}

// NewWatcher builds a watcher for the settings file at path. onChange runs on
// the watcher goroutine with every successfully loaded revision.
func NewWatcher(path string, onChange func(Settings)) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("settings watcher requires an onChange callback")
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return nil, err
	}
	return &Watcher{path: path, onChange: onChange, fs: fs}, nil
}

// Run processes file events until ctx is cancelled. Intended to be launched
// as a background worker.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fs.Close()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			slog.Debug("[settings] file event", "op", event.Op.String(), "name", event.Name)
			if debounce == nil {
				debounce = time.NewTimer(debounceDelay)
				debounceC = debounce.C
			} else {
				debounce.Stop()
				debounce.Reset(debounceDelay)
			}
		case <-debounceC:
			debounce = nil
			debounceC = nil
			w.reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("[settings] watcher error", "error", err)
		}
	}
}

// relevant filters directory events down to ones touching the settings file.
// Create and Rename both matter: atomic saves land as a rename, editors vary.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	return filepath.Base(event.Name) == filepath.Base(w.path)
}

func (w *Watcher) reload() {
	s, err := Load(w.path)
	if err != nil {
		// Keep the last good configuration on a broken edit.
		slog.Warn("[settings] reload failed, keeping current configuration",
			"path", w.path, "error", err)
		return
	}
	slog.Info("[settings] settings reloaded", "path", w.path, "mappings", len(s.Mappings))
	w.onChange(s)
}
