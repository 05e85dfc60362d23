package inference

import (
	"sync"
	"time"
)

// DefaultFlushInterval is how long the debouncer waits before flushing.
const DefaultFlushInterval = 2 * time.Second

// Debouncer coalesces bursts of triggers into a single deferred flush. This
// is a rate-limiting debounce: triggers while a flush is pending are no-ops
// and do not reset the window, so a steady message stream still flushes once
// per interval. The pending flag clears only when the flush has run.
type Debouncer struct {
	mu       sync.Mutex
	pending  bool
	timer    *time.Timer
	interval time.Duration
	flush    func()
}

// NewDebouncer creates a debouncer invoking flush after each window.
func NewDebouncer(interval time.Duration, flush func()) *Debouncer {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Debouncer{interval: interval, flush: flush}
}

// Trigger schedules a flush if one is not already pending.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending {
		return
	}
	d.pending = true
	d.timer = time.AfterFunc(d.interval, d.run)
}

func (d *Debouncer) run() {
	d.flush()
	d.mu.Lock()
	d.pending = false
	d.mu.Unlock()
}

// Stop cancels a pending flush, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = false
}
