// Package ops exposes the operational surface of the feed service: a
// JSON API over the live pipeline state and a streaming view of recent logs.
package ops

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEntry is one captured log record in wire-friendly form.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"msg"`
	Attrs   string    `json:"attrs,omitempty"`
}

// LogBuffer keeps the last N log records and fans new ones out to any number
// of stream listeners. Listeners that fall behind lose entries rather than
// blocking the logger.
type LogBuffer struct {
	mu        sync.Mutex
	ring      []LogEntry
	next      int
	filled    bool
	listeners map[string]chan LogEntry
}

// NewLogBuffer allocates a buffer holding up to capacity entries.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &LogBuffer{
		ring:      make([]LogEntry, capacity),
		listeners: make(map[string]chan LogEntry),
	}
}

// Add records an entry and notifies listeners without blocking.
func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	b.ring[b.next] = entry
	b.next++
	if b.next == len(b.ring) {
		b.next = 0
		b.filled = true
	}
	for _, ch := range b.listeners {
		select {
		case ch <- entry:
		default:
		}
	}
	b.mu.Unlock()
}

// Recent returns up to n of the newest entries, oldest first.
func (b *LogBuffer) Recent(n int) []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := b.next
	if b.filled {
		size = len(b.ring)
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}

	out := make([]LogEntry, n)
	start := b.next - n
	if start < 0 {
		start += len(b.ring)
	}
	for i := range out {
		out[i] = b.ring[(start+i)%len(b.ring)]
	}
	return out
}

// AddListener registers a stream listener and returns its channel.
func (b *LogBuffer) AddListener(id string) chan LogEntry {
	ch := make(chan LogEntry, 64)
	b.mu.Lock()
	b.listeners[id] = ch
	b.mu.Unlock()
	return ch
}

// RemoveListener drops a listener and closes its channel.
func (b *LogBuffer) RemoveListener(id string) {
	b.mu.Lock()
	ch := b.listeners[id]
	delete(b.listeners, id)
	b.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// TeeHandler copies every record into a LogBuffer before handing it to the
// wrapped handler, so the ops log stream sees exactly what the process logs.
type TeeHandler struct {
	next slog.Handler
	buf  *LogBuffer
}

var _ slog.Handler = (*TeeHandler)(nil)

// NewTeeHandler wraps next with capture into buf.
func NewTeeHandler(next slog.Handler, buf *LogBuffer) *TeeHandler {
	return &TeeHandler{next: next, buf: buf}
}

func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var attrs strings.Builder
	r.Attrs(func(a slog.Attr) bool {
		if attrs.Len() > 0 {
			attrs.WriteByte(' ')
		}
		fmt.Fprintf(&attrs, "%s=%v", a.Key, a.Value.Any())
		return true
	})
	h.buf.Add(LogEntry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
		Attrs:   attrs.String(),
	})
	return h.next.Handle(ctx, r)
}

func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TeeHandler{next: h.next.WithAttrs(attrs), buf: h.buf}
}

func (h *TeeHandler) WithGroup(name string) slog.Handler {
	return &TeeHandler{next: h.next.WithGroup(name), buf: h.buf}
}
