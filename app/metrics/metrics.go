// Package metrics provides a small in-process counter registry for the ops
// surface. Counters are cheap, monotonic and reset on restart.
package metrics

import "sync"

// Config configures a metrics Manager.
type Config struct {
	ServiceName string
}

// Manager holds named counters. All methods are safe for concurrent use and
// safe on a nil receiver, so callers never need to guard instrumentation.
type Manager struct {
	serviceName string

	mu       sync.RWMutex
	counters map[string]int64
}

// New creates a metrics manager.
func New(cfg Config) *Manager {
	return &Manager{
		serviceName: cfg.ServiceName,
		counters:    make(map[string]int64),
	}
}

// ServiceName returns the configured service name.
func (m *Manager) ServiceName() string {
	if m == nil {
		return ""
	}
	return m.serviceName
}

// Increment adds one to the named counter.
func (m *Manager) Increment(key string) {
	m.Add(key, 1)
}

// Add adds delta to the named counter.
func (m *Manager) Add(key string, delta int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.counters[key] += delta
	m.mu.Unlock()
}

// Get returns the current value of one counter.
func (m *Manager) Get(key string) int64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[key]
}

// GetAllCounters returns a copy of every counter.
func (m *Manager) GetAllCounters() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}
