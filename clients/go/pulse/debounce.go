package pulse

import (
	"sync"
	"time"
)

const (
	// startInterval collapses a keystroke burst into a single typing-start.
	startInterval = 300 * time.Millisecond
	// idleStop emits typing-stop after the keyboard goes quiet.
	idleStop = 1 * time.Second
)

// typingDebouncer turns raw keystrokes into typing-start and typing-stop
// intents. A burst of keystrokes emits one start per interval; silence
// emits a stop; sending a message flushes the stop immediately.
type typingDebouncer struct {
	mu        sync.Mutex
	interval  time.Duration
	idle      time.Duration
	onStart   func()
	onStop    func()
	typing    bool
	lastStart time.Time
	stopTimer *time.Timer
	gen       uint64 // invalidates idle timers superseded by later activity
}

func newTypingDebouncer(interval, idle time.Duration, onStart, onStop func()) *typingDebouncer {
	if interval <= 0 {
		interval = startInterval
	}
	if idle <= 0 {
		idle = idleStop
	}
	return &typingDebouncer{interval: interval, idle: idle, onStart: onStart, onStop: onStop}
}

// Keystroke registers typing activity. The first keystroke of a burst
// emits a start; later keystrokes inside the interval only push the idle
// stop further out.
func (d *typingDebouncer) Keystroke() {
	d.mu.Lock()

	emit := false
	now := time.Now()
	if !d.typing || now.Sub(d.lastStart) >= d.interval {
		d.typing = true
		d.lastStart = now
		emit = true
	}

	if d.stopTimer != nil {
		d.stopTimer.Stop()
	}
	// Stop can lose the race against a timer that already fired. The
	// generation check in idleExpired keeps that stale firing from
	// cancelling the burst this keystroke just extended.
	d.gen++
	gen := d.gen
	d.stopTimer = time.AfterFunc(d.idle, func() { d.idleExpired(gen) })
	d.mu.Unlock()

	if emit {
		d.onStart()
	}
}

// Flush emits an immediate stop if a start was outstanding. Called when
// the message is sent or the chat is left.
func (d *typingDebouncer) Flush() {
	d.mu.Lock()
	d.gen++
	wasTyping := d.typing
	d.typing = false
	if d.stopTimer != nil {
		d.stopTimer.Stop()
		d.stopTimer = nil
	}
	d.mu.Unlock()

	if wasTyping {
		d.onStop()
	}
}

func (d *typingDebouncer) idleExpired(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		// A keystroke or flush superseded this timer while it was firing.
		d.mu.Unlock()
		return
	}
	wasTyping := d.typing
	d.typing = false
	d.stopTimer = nil
	d.mu.Unlock()

	if wasTyping {
		d.onStop()
	}
}
