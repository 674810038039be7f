package main

import (
	"testing"

	"volwheel/internal/hotkey"
	"volwheel/internal/keys"
	"volwheel/internal/router"
)

type adjustCall struct {
	target hotkey.Target
	delta  int
}

type recordingAdjuster struct {
	calls []adjustCall
}

func (a *recordingAdjuster) Adjust(target hotkey.Target, delta int) []router.AppliedLevel {
	a.calls = append(a.calls, adjustCall{target: target, delta: delta})
	return nil
}

func pressedReader(names ...string) keys.Reader {
	set := make(keys.Set)
	for _, name := range names {
		k, err := keys.ParseName(name)
		if err != nil {
			panic(err)
		}
		set[k] = struct{}{}
	}
	return keys.ReaderFunc(func() keys.Set { return set })
}

func mustNewMapping(t *testing.T, combo string, target hotkey.Target) hotkey.Mapping {
	t.Helper()
	m, err := hotkey.NewMapping("", combo, target)
	if err != nil {
		t.Fatalf("NewMapping(%q) error = %v", combo, err)
	}
	return m
}

func newEngine(t *testing.T, reader keys.Reader, mappings ...hotkey.Mapping) (*WheelEngine, *recordingAdjuster) {
	t.Helper()
	adjuster := &recordingAdjuster{}
	store := hotkey.NewStore(hotkey.DefaultStep, mappings)
	return NewWheelEngine(reader, store, adjuster), adjuster
}

func TestOnWheelExactMatchAdjustsAndConsumes(t *testing.T) {
	engine, adjuster := newEngine(t,
		pressedReader("Ctrl", "Shift"),
		mustNewMapping(t, "Ctrl+Shift", hotkey.MasterTarget()),
	)

	if !engine.OnWheel(120) {
		t.Fatal("matched event must be consumed")
	}
	if len(adjuster.calls) != 1 {
		t.Fatalf("adjust calls = %d, want 1", len(adjuster.calls))
	}
	if adjuster.calls[0].delta != 120 {
		t.Fatalf("delta = %d, want 120", adjuster.calls[0].delta)
	}
	if adjuster.calls[0].target.Kind() != hotkey.TargetMaster {
		t.Fatalf("target = %v, want master", adjuster.calls[0].target.Kind())
	}
}

func TestOnWheelSupersetDoesNotMatch(t *testing.T) {
	// An extra held key must prevent the match: Ctrl+Shift+A != Ctrl+Shift.
	engine, adjuster := newEngine(t,
		pressedReader("Ctrl", "Shift", "A"),
		mustNewMapping(t, "Ctrl+Shift", hotkey.MasterTarget()),
	)

	if engine.OnWheel(120) {
		t.Fatal("superset pressed set must not match")
	}
	if len(adjuster.calls) != 0 {
		t.Fatalf("adjust calls = %d, want 0", len(adjuster.calls))
	}
}

func TestOnWheelSubsetDoesNotMatch(t *testing.T) {
	engine, adjuster := newEngine(t,
		pressedReader("Ctrl"),
		mustNewMapping(t, "Ctrl+Shift", hotkey.MasterTarget()),
	)

	if engine.OnWheel(120) {
		t.Fatal("subset pressed set must not match")
	}
	if len(adjuster.calls) != 0 {
		t.Fatalf("adjust calls = %d, want 0", len(adjuster.calls))
	}
}

func TestOnWheelNoKeysHeldShortCircuits(t *testing.T) {
	engine, adjuster := newEngine(t,
		pressedReader(),
		mustNewMapping(t, "Ctrl+Shift", hotkey.MasterTarget()),
	)

	if engine.OnWheel(120) {
		t.Fatal("empty pressed set must pass the event through")
	}
	if len(adjuster.calls) != 0 {
		t.Fatalf("adjust calls = %d, want 0", len(adjuster.calls))
	}
}

func TestOnWheelZeroDeltaIsNoOp(t *testing.T) {
	engine, adjuster := newEngine(t,
		pressedReader("Ctrl", "Shift"),
		mustNewMapping(t, "Ctrl+Shift", hotkey.MasterTarget()),
	)

	if engine.OnWheel(0) {
		t.Fatal("zero delta must not consume the event")
	}
	if len(adjuster.calls) != 0 {
		t.Fatalf("adjust calls = %d, want 0", len(adjuster.calls))
	}
}

func TestOnWheelDuplicateCombosAllFire(t *testing.T) {
	app, err := hotkey.ApplicationTarget("music")
	if err != nil {
		t.Fatal(err)
	}
	engine, adjuster := newEngine(t,
		pressedReader("Ctrl", "Shift"),
		mustNewMapping(t, "Ctrl+Shift", hotkey.MasterTarget()),
		mustNewMapping(t, "Shift+Ctrl", app),
	)

	if !engine.OnWheel(-120) {
		t.Fatal("matched event must be consumed")
	}
	if len(adjuster.calls) != 2 {
		t.Fatalf("adjust calls = %d, want both duplicate mappings to fire", len(adjuster.calls))
	}
}

func TestOnWheelLeftRightModifiersNormalize(t *testing.T) {
	// The reader reports the physical left-control key; the combo names the
	// generic Ctrl. Normalization makes them equal.
	set := keys.NewSet(keys.LeftControl, keys.LeftShift)
	engine, adjuster := newEngine(t,
		keys.ReaderFunc(func() keys.Set { return set }),
		mustNewMapping(t, "Ctrl+Shift", hotkey.MasterTarget()),
	)

	if !engine.OnWheel(120) {
		t.Fatal("left-variant modifiers must match the generic combo")
	}
	if len(adjuster.calls) != 1 {
		t.Fatalf("adjust calls = %d, want 1", len(adjuster.calls))
	}
}
