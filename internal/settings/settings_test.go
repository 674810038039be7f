package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"volwheel/internal/hotkey"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load missing file error = %v, want nil", err)
	}
	if s.Step != hotkey.DefaultStep {
		t.Fatalf("Step = %v, want default %v", s.Step, hotkey.DefaultStep)
	}
	if len(s.Mappings) != 1 || s.Mappings[0].Target.Kind != "master" {
		t.Fatalf("default mappings = %+v, want one master mapping", s.Mappings)
	}
}

func TestLoadMalformedFileReturnsDefaultsWithError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("step: [not a number"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err == nil {
		t.Fatal("Load malformed file error = nil, want parse error")
	}
	if s.Step != hotkey.DefaultStep {
		t.Fatalf("malformed load must fall back to defaults, got step %v", s.Step)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	in := Settings{
		Step: 0.10,
		Mappings: []MappingEntry{
			{ID: "m1", Combo: "Ctrl+Shift", Target: TargetEntry{Kind: "master"}},
			{ID: "m2", Combo: "Ctrl+Alt+H", Target: TargetEntry{Kind: "device", DeviceID: "ep-1", DeviceName: "Headset"}},
			{ID: "m3", Combo: "Ctrl+M", Target: TargetEntry{Kind: "application", Process: "music.exe"}},
		},
	}
	if _, err := Save(path, in); err != nil {
		t.Fatalf("Save error = %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if out.Step != in.Step {
		t.Fatalf("Step = %v, want %v", out.Step, in.Step)
	}
	if len(out.Mappings) != len(in.Mappings) {
		t.Fatalf("mappings = %d, want %d", len(out.Mappings), len(in.Mappings))
	}
	for i := range in.Mappings {
		if out.Mappings[i] != in.Mappings[i] {
			t.Fatalf("mapping[%d] = %+v, want %+v", i, out.Mappings[i], in.Mappings[i])
		}
	}
}

func TestSaveClampsStep(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{name: "zero selects default", in: 0, want: hotkey.DefaultStep},
		{name: "below minimum", in: 0.001, want: hotkey.MinStep},
		{name: "above maximum", in: 0.9, want: hotkey.MaxStep},
		{name: "in range unchanged", in: 0.10, want: 0.10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.yaml")
			written, err := Save(path, Settings{Step: tt.in})
			if err != nil {
				t.Fatalf("Save error = %v", err)
			}
			if written.Step != tt.want {
				t.Fatalf("written step = %v, want %v", written.Step, tt.want)
			}
		})
	}
}

func TestEnsureFileCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if _, err := EnsureFile(path); err != nil {
		t.Fatalf("EnsureFile error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("settings file not created: %v", err)
	}
	// A second call must not rewrite the file.
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := EnsureFile(path); err != nil {
		t.Fatalf("EnsureFile second call error = %v", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("EnsureFile rewrote an existing file")
	}
}

func TestBuildMappingsSkipsInvalidEntries(t *testing.T) {
	s := Settings{
		Step: 0.05,
		Mappings: []MappingEntry{
			{Combo: "Ctrl+Shift", Target: TargetEntry{Kind: "master"}},
			{Combo: "Ctrl+NoSuchKey", Target: TargetEntry{Kind: "master"}},
			{Combo: "Ctrl+H", Target: TargetEntry{Kind: "device"}}, // missing device id
			{Combo: "Ctrl+M", Target: TargetEntry{Kind: "application", Process: "music"}},
			{Combo: "Ctrl+X", Target: TargetEntry{Kind: "bogus"}},
		},
	}
	mappings := BuildMappings(s)
	if len(mappings) != 2 {
		t.Fatalf("built %d mappings, want 2 valid ones", len(mappings))
	}
	if mappings[0].Combo() != "Ctrl+Shift" {
		t.Fatalf("first combo = %q, want Ctrl+Shift", mappings[0].Combo())
	}
	if mappings[1].Target().Kind() != hotkey.TargetApplication {
		t.Fatalf("second target = %v, want application", mappings[1].Target().Kind())
	}
}

func TestBuildMappingsAssignsIDs(t *testing.T) {
	s := Settings{Mappings: []MappingEntry{
		{Combo: "Ctrl+Shift", Target: TargetEntry{Kind: "master"}},
		{ID: "keep-me", Combo: "Ctrl+M", Target: TargetEntry{Kind: "application", Process: "music"}},
	}}
	mappings := BuildMappings(s)
	if len(mappings) != 2 {
		t.Fatalf("built %d mappings, want 2", len(mappings))
	}
	if mappings[0].ID() == "" {
		t.Fatal("missing id must be generated")
	}
	if mappings[1].ID() != "keep-me" {
		t.Fatalf("explicit id = %q, want keep-me", mappings[1].ID())
	}
}

func TestFromMappingsRoundTrip(t *testing.T) {
	device, err := hotkey.DeviceTarget("ep-1", "Headset")
	if err != nil {
		t.Fatal(err)
	}
	m1, err := hotkey.NewMapping("m1", "Shift+Ctrl", hotkey.MasterTarget())
	if err != nil {
		t.Fatal(err)
	}
	m2, err := hotkey.NewMapping("m2", "Ctrl+H", device)
	if err != nil {
		t.Fatal(err)
	}

	s := FromMappings(0.08, []hotkey.Mapping{m1, m2})

	if s.Step != 0.08 {
		t.Fatalf("step = %v, want 0.08", s.Step)
	}
	if len(s.Mappings) != 2 {
		t.Fatalf("entries = %d, want 2", len(s.Mappings))
	}
	// Combos are persisted in canonical display order.
	if s.Mappings[0].Combo != "Ctrl+Shift" {
		t.Fatalf("combo = %q, want canonical Ctrl+Shift", s.Mappings[0].Combo)
	}
	if s.Mappings[1].Target != (TargetEntry{Kind: "device", DeviceID: "ep-1", DeviceName: "Headset"}) {
		t.Fatalf("target entry = %+v", s.Mappings[1].Target)
	}
	// Rebuilding must yield equivalent mappings.
	rebuilt := BuildMappings(s)
	if len(rebuilt) != 2 || rebuilt[0].Combo() != "Ctrl+Shift" || rebuilt[1].Target().DeviceID() != "ep-1" {
		t.Fatalf("rebuild mismatch: %+v", rebuilt)
	}
}

func TestDefaultPathPrefersLocalAppData(t *testing.T) {
	t.Setenv("LOCALAPPDATA", filepath.Join("C:", "Users", "u", "AppData", "Local"))
	t.Setenv("APPDATA", filepath.Join("C:", "Users", "u", "AppData", "Roaming"))
	got := DefaultPath()
	want := filepath.Join("C:", "Users", "u", "AppData", "Local", "volwheel", "settings.yaml")
	if got != want {
		t.Fatalf("DefaultPath() = %q, want %q", got, want)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if _, err := Save(path, DefaultSettings()); err != nil {
		t.Fatal(err)
	}

	changed := make(chan Settings, 1)
	w, err := NewWatcher(path, func(s Settings) {
		select {
		case changed <- s:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	if _, err := Save(path, Settings{Step: 0.10}); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-changed:
		if s.Step != 0.10 {
			t.Fatalf("reloaded step = %v, want 0.10", s.Step)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}
