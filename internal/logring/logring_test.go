package logring

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestRingEvictsOldestWhenFull(t *testing.T) {
	r := NewRing(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		r.Append(Entry{Message: msg})
	}
	got := r.Recent(0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	want := []string{"b", "c", "d"}
	for i, e := range got {
		if e.Message != want[i] {
			t.Fatalf("entry[%d] = %q, want %q", i, e.Message, want[i])
		}
	}
}

func TestRingRecentLimitKeepsNewest(t *testing.T) {
	r := NewRing(10)
	for _, msg := range []string{"a", "b", "c", "d"} {
		r.Append(Entry{Message: msg})
	}
	got := r.Recent(2)
	if len(got) != 2 || got[0].Message != "c" || got[1].Message != "d" {
		t.Fatalf("Recent(2) = %+v, want [c d]", got)
	}
}

func TestRingZeroCapacityUsesDefault(t *testing.T) {
	r := NewRing(0)
	r.Append(Entry{Message: "x"})
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestTeeHandlerCapturesAtOrAboveThreshold(t *testing.T) {
	ring := NewRing(10)
	base := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewTeeHandler(base, slog.LevelWarn, ring))

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	got := ring.Recent(0)
	if len(got) != 2 {
		t.Fatalf("captured %d entries, want 2", len(got))
	}
	if got[0].Message != "warn message" || got[0].Level != slog.LevelWarn.String() {
		t.Fatalf("first capture = %+v", got[0])
	}
	if got[1].Message != "error message" {
		t.Fatalf("second capture = %+v", got[1])
	}
}

func TestTeeHandlerWithGroupAccumulatesSource(t *testing.T) {
	ring := NewRing(10)
	base := slog.NewTextHandler(io.Discard, nil)
	logger := slog.New(NewTeeHandler(base, slog.LevelWarn, ring))

	logger.WithGroup("hook").WithGroup("wheel").Warn("nested")

	got := ring.Recent(0)
	if len(got) != 1 {
		t.Fatalf("captured %d entries, want 1", len(got))
	}
	if got[0].Source != "hook.wheel" {
		t.Fatalf("source = %q, want hook.wheel", got[0].Source)
	}
}

func TestTeeHandlerNilRingDelegates(t *testing.T) {
	base := slog.NewTextHandler(io.Discard, nil)
	h := NewTeeHandler(base, slog.LevelWarn, nil)
	rec := slog.Record{Level: slog.LevelError, Message: "boom"}
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle error = %v", err)
	}
}
