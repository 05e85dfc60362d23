package subs

import (
	"sort"
	"sync"
)

// record tracks one live subscription and the views that need it. A record
// exists in the table if and only if at least one view references it.
type record struct {
	payload Payload
	views   map[string]struct{}
}

// Table is the process-wide reference-counted subscription table. All
// mutation goes through Apply and Clear under one lock; reconciliation for
// different views serializes here.
type Table struct {
	mu      sync.RWMutex
	records map[Key]*record
}

// NewTable creates an empty subscription table.
func NewTable() *Table {
	return &Table{records: make(map[Key]*record)}
}

// Apply merges a view's desired subscription set into the table and returns
// the deltas: payloads to subscribe (keys no view held before) and payloads
// to unsubscribe (keys this view held that no view needs anymore).
func (t *Table) Apply(viewID string, desired map[Key]Payload) (subscribe, unsubscribe []Payload) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, payload := range desired {
		if rec, ok := t.records[key]; ok {
			rec.views[viewID] = struct{}{}
			continue
		}
		t.records[key] = &record{
			payload: payload,
			views:   map[string]struct{}{viewID: {}},
		}
		subscribe = append(subscribe, payload)
	}

	for key, rec := range t.records {
		if _, held := rec.views[viewID]; !held {
			continue
		}
		if _, wanted := desired[key]; wanted {
			continue
		}
		delete(rec.views, viewID)
		if len(rec.views) == 0 {
			unsubscribe = append(unsubscribe, rec.payload)
			delete(t.records, key)
		}
	}
	return subscribe, unsubscribe
}

// Clear drops every record; used when a fresh session starts.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[Key]*record)
}

// Len returns the number of live subscriptions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// RefCount returns how many views reference the key, 0 if absent.
func (t *Table) RefCount(key Key) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[key]
	if !ok {
		return 0
	}
	return len(rec.views)
}

// Info is a read-only snapshot entry for the ops surface.
type Info struct {
	FIGI     string   `json:"figi"`
	Quantity int      `json:"quantity"`
	Label    string   `json:"rfq_label"`
	Side     string   `json:"side"`
	ATS      string   `json:"ats_indicator"`
	Views    []string `json:"views"`
}

// Snapshot returns all live subscriptions with their referencing views.
func (t *Table) Snapshot() []Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Info, 0, len(t.records))
	for key, rec := range t.records {
		viewIDs := make([]string, 0, len(rec.views))
		for id := range rec.views {
			viewIDs = append(viewIDs, id)
		}
		sort.Strings(viewIDs)
		out = append(out, Info{
			FIGI:     key.FIGI,
			Quantity: key.Quantity,
			Label:    string(key.Label),
			Side:     string(key.Side),
			ATS:      key.ATS,
			Views:    viewIDs,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FIGI != out[j].FIGI {
			return out[i].FIGI < out[j].FIGI
		}
		return out[i].Quantity < out[j].Quantity
	})
	return out
}
