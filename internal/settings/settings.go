// Package settings persists the daemon configuration: the global step size
// and the list of hotkey mappings. Files are YAML, written atomically, and
// a missing file always yields working defaults.
package settings

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"volwheel/internal/hotkey"
)

const (
	maxSettingsFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry             = 10
	// Windows file lock releases (antivirus/indexing) typically settle
	// quickly. Linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond
)

// userHomeDirFn is a test seam for home-directory resolution failures.
var userHomeDirFn = os.UserHomeDir

// TargetEntry is the on-disk form of a mapping target.
type TargetEntry struct {
	Kind       string `yaml:"kind" json:"kind"`
	DeviceID   string `yaml:"device_id,omitempty" json:"device_id,omitempty"`
	DeviceName string `yaml:"device_name,omitempty" json:"device_name,omitempty"`
	Process    string `yaml:"process,omitempty" json:"process,omitempty"`
}

// MappingEntry is the on-disk form of one hotkey mapping.
type MappingEntry struct {
	ID     string      `yaml:"id,omitempty" json:"id,omitempty"`
	Combo  string      `yaml:"combo" json:"combo"`
	Target TargetEntry `yaml:"target" json:"target"`
}

// Settings is the volwheel configuration file.
type Settings struct {
	// Step is the per-notch volume change. Zero means "use the default";
	// out-of-range values are clamped on load.
	Step     float64        `yaml:"step" json:"step"`
	Mappings []MappingEntry `yaml:"mappings" json:"mappings"`
}

// DefaultSettings returns the configuration written on first run: master
// volume on Ctrl+Shift with the default step.
func DefaultSettings() Settings {
	return Settings{
		Step: hotkey.DefaultStep,
		Mappings: []MappingEntry{
			{Combo: "Ctrl+Shift", Target: TargetEntry{Kind: "master"}},
		},
	}
}

// DefaultPath resolves the settings file path, preferring LOCALAPPDATA over
// APPDATA, falling back to ~/.config when both are unset, and then to
// os.TempDir() if the home directory cannot be resolved. The temp-dir
// fallback is not a stable persistence location.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			slog.Warn("[settings] using temp dir as settings path fallback", "error", err)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "volwheel", "settings.yaml")
}

// Load reads the settings file. A missing file returns defaults without
// error; a malformed file returns defaults alongside the parse error so the
// daemon can start while reporting the problem.
func Load(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, errors.New("settings path required")
	}

	raw, err := readLimitedFile(path, maxSettingsFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, err
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		slog.Warn("[settings] failed to parse settings, using defaults", "path", path, "error", err)
		return DefaultSettings(), err
	}
	normalize(&s)
	return s, nil
}

// Save normalizes s and atomically writes it to path. Returns the settings
// that were actually written.
func Save(path string, s Settings) (Settings, error) {
	if strings.TrimSpace(path) == "" {
		return s, errors.New("settings path required")
	}
	normalize(&s)

	raw, err := yaml.Marshal(s)
	if err != nil {
		return s, fmt.Errorf("save settings: marshal: %w", err)
	}
	if err := atomicWrite(path, raw); err != nil {
		return s, err
	}
	slog.Debug("[settings] settings saved", "path", path)
	return s, nil
}

// EnsureFile writes default settings if the file is missing and returns the
// loaded settings.
func EnsureFile(path string) (Settings, error) {
	s, err := Load(path)
	if err != nil {
		return s, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, s); err != nil {
			return s, err
		}
	}
	return s, nil
}

// BuildMappings converts the on-disk entries into runtime mappings. Entries
// with an unparseable combo or an invalid target are skipped with a warning
// rather than failing the whole file.
func BuildMappings(s Settings) []hotkey.Mapping {
	mappings := make([]hotkey.Mapping, 0, len(s.Mappings))
	for i, entry := range s.Mappings {
		m, err := buildMapping(entry)
		if err != nil {
			slog.Warn("[settings] skipping invalid mapping",
				"index", i, "combo", entry.Combo, "error", err)
			continue
		}
		mappings = append(mappings, m)
	}
	return mappings
}

func buildMapping(entry MappingEntry) (hotkey.Mapping, error) {
	target, err := buildTarget(entry.Target)
	if err != nil {
		return hotkey.Mapping{}, err
	}
	return hotkey.NewMapping(entry.ID, entry.Combo, target)
}

func buildTarget(entry TargetEntry) (hotkey.Target, error) {
	kind, err := hotkey.ParseTargetKind(entry.Kind)
	if err != nil {
		return hotkey.Target{}, err
	}
	switch kind {
	case hotkey.TargetMaster:
		return hotkey.MasterTarget(), nil
	case hotkey.TargetDevice:
		return hotkey.DeviceTarget(entry.DeviceID, entry.DeviceName)
	case hotkey.TargetApplication:
		return hotkey.ApplicationTarget(entry.Process)
	default:
		return hotkey.Target{}, fmt.Errorf("unknown target kind %q", entry.Kind)
	}
}

// FromMappings builds the on-disk form from a runtime snapshot, used when a
// control command changes the mapping set and the file must follow.
func FromMappings(step float64, mappings []hotkey.Mapping) Settings {
	entries := make([]MappingEntry, 0, len(mappings))
	for _, m := range mappings {
		entries = append(entries, MappingEntry{
			ID:     m.ID(),
			Combo:  m.Combo(),
			Target: targetEntry(m.Target()),
		})
	}
	return Settings{Step: step, Mappings: entries}
}

func targetEntry(t hotkey.Target) TargetEntry {
	entry := TargetEntry{Kind: t.Kind().String()}
	switch t.Kind() {
	case hotkey.TargetDevice:
		entry.DeviceID = t.DeviceID()
		entry.DeviceName = t.DeviceName()
	case hotkey.TargetApplication:
		entry.Process = t.ProcessName()
	}
	return entry
}

// normalize clamps the step and trims whitespace on string fields in place.
func normalize(s *Settings) {
	s.Step = hotkey.ClampStep(s.Step)
	for i := range s.Mappings {
		entry := &s.Mappings[i]
		entry.ID = strings.TrimSpace(entry.ID)
		entry.Combo = strings.TrimSpace(entry.Combo)
		entry.Target.Kind = strings.TrimSpace(entry.Target.Kind)
		entry.Target.DeviceID = strings.TrimSpace(entry.Target.DeviceID)
		entry.Target.DeviceName = strings.TrimSpace(entry.Target.DeviceName)
		entry.Target.Process = strings.TrimSpace(entry.Target.Process)
	}
}

// atomicWrite writes data using temp-file + rename to avoid partial writes
// and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save settings: mkdir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".settings.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save settings: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[settings] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[settings] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save settings: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save settings: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save settings: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save settings: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save settings: rename: %w", err)
	}
	return nil
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := 0; attempt < maxRenameRetry; attempt++ {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("settings file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}
