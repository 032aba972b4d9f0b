package pulse

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCollapsesBurst(t *testing.T) {
	var starts, stops atomic.Int32
	d := newTypingDebouncer(50*time.Millisecond, 100*time.Millisecond,
		func() { starts.Add(1) },
		func() { stops.Add(1) },
	)

	// A burst of keystrokes inside one interval
	for i := 0; i < 10; i++ {
		d.Keystroke()
		time.Sleep(2 * time.Millisecond)
	}
	if got := starts.Load(); got != 1 {
		t.Fatalf("burst should emit one start, got %d", got)
	}
	if stops.Load() != 0 {
		t.Fatal("no stop while still typing")
	}

	// Silence: the idle timer emits the stop
	time.Sleep(200 * time.Millisecond)
	if got := stops.Load(); got != 1 {
		t.Fatalf("idle should emit one stop, got %d", got)
	}
}

func TestDebouncerReemitsAcrossIntervals(t *testing.T) {
	var starts atomic.Int32
	d := newTypingDebouncer(30*time.Millisecond, 200*time.Millisecond,
		func() { starts.Add(1) },
		func() {},
	)

	d.Keystroke()
	time.Sleep(50 * time.Millisecond) // past the interval, still typing
	d.Keystroke()
	if got := starts.Load(); got != 2 {
		t.Fatalf("a keystroke after the interval should refresh the start, got %d", got)
	}
	d.Flush()
}

func TestDebouncerStaleIdleTimerIgnored(t *testing.T) {
	var stops atomic.Int32
	d := newTypingDebouncer(time.Millisecond, time.Hour,
		func() {},
		func() { stops.Add(1) },
	)

	// First keystroke arms an idle timer; a second keystroke supersedes it.
	d.Keystroke()
	stale := d.gen
	time.Sleep(2 * time.Millisecond)
	d.Keystroke()

	// The superseded timer fires late, after Stop already missed it. It
	// must not cancel the burst the second keystroke extended.
	d.idleExpired(stale)
	if stops.Load() != 0 {
		t.Fatal("stale timer must not emit a stop mid-burst")
	}
	d.mu.Lock()
	stillTyping := d.typing
	d.mu.Unlock()
	if !stillTyping {
		t.Fatal("stale timer must not clear typing state")
	}

	// The burst still ends exactly once
	d.Flush()
	if got := stops.Load(); got != 1 {
		t.Fatalf("flush should emit the single stop, got %d", got)
	}
}

func TestDebouncerFlushEmitsImmediateStop(t *testing.T) {
	var stops atomic.Int32
	d := newTypingDebouncer(50*time.Millisecond, time.Hour,
		func() {},
		func() { stops.Add(1) },
	)

	d.Keystroke()
	d.Flush()
	if got := stops.Load(); got != 1 {
		t.Fatalf("flush while typing should emit one stop, got %d", got)
	}

	// Flush when not typing is silent
	d.Flush()
	if got := stops.Load(); got != 1 {
		t.Fatalf("flush when idle must not emit, got %d", got)
	}

	// The idle timer was cancelled; no late stop arrives
	time.Sleep(100 * time.Millisecond)
	if got := stops.Load(); got != 1 {
		t.Fatalf("cancelled timer must not fire, got %d", got)
	}
}
