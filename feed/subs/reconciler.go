package subs

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/deepmm/inference-feed/views"
)

// RowSource supplies each view's configuration and current rows.
type RowSource interface {
	ViewIDs() []string
	View(viewID string) (views.Config, []views.Row, bool)
}

// Sender transmits subscription batches to the feed server. Delivery is
// best-effort; the reconciler never retries.
type Sender interface {
	SendSubscribe(batch []Payload)
	SendUnsubscribe(batch []Payload)
}

// Config holds dependencies for creating a Reconciler.
type Config struct {
	Table    *Table
	Rows     RowSource
	Resolver Resolver
	Sender   Sender
	Logger   *slog.Logger
}

// Reconciler computes each view's desired subscription set and emits the
// minimal subscribe/unsubscribe operations against the shared table.
type Reconciler struct {
	mu       sync.Mutex // serializes reconciliation passes across views
	table    *Table
	rows     RowSource
	resolver Resolver
	sender   Sender
	logger   *slog.Logger
}

// New creates a Reconciler.
func New(cfg Config) *Reconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		table:    cfg.Table,
		rows:     cfg.Rows,
		resolver: cfg.Resolver,
		sender:   cfg.Sender,
		logger:   logger,
	}
}

// Reconcile brings the table in line with one view's current rows and sends
// the resulting deltas, unsubscribes first. An invalid view configuration
// aborts the whole pass for that view; an invalid row only skips that row.
func (r *Reconciler) Reconcile(viewID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, rows, ok := r.rows.View(viewID)
	if !ok {
		r.logger.Error("No configuration found for view", "view", viewID)
		return
	}
	if err := cfg.Validate(); err != nil {
		r.logger.Error("Invalid view configuration", "view", viewID, "error", err)
		return
	}
	kind, _, _ := cfg.IdentifierKind()

	desired := make(map[Key]Payload)
	for _, row := range rows {
		key, err := BuildKey(kind, row, r.resolver)
		if err != nil {
			if errors.Is(err, ErrResolution) {
				r.logger.Warn("Row skipped", "view", viewID, "row", row.Num, "error", err)
			} else {
				r.logger.Debug("Row skipped", "view", viewID, "row", row.Num, "error", err)
			}
			continue
		}
		// duplicate keys within a view collapse; payloads are identical by construction
		desired[key] = key.Payload()
	}

	subscribe, unsubscribe := r.table.Apply(viewID, desired)
	unsubscribe = dropFlapped(unsubscribe, subscribe)

	if len(unsubscribe) > 0 {
		r.sender.SendUnsubscribe(unsubscribe)
		r.logger.Info("Unsubscribed stale subscriptions", "view", viewID, "count", len(unsubscribe))
	}
	if len(subscribe) > 0 {
		r.sender.SendSubscribe(subscribe)
		r.logger.Info("Subscribed new subscriptions", "view", viewID, "count", len(subscribe))
	}
}

// ReconcileAll clears the table and rebuilds it from every known view.
// Called once after a fresh session starts.
func (r *Reconciler) ReconcileAll() {
	r.logger.Info("Initializing subscriptions for all configured views")
	r.table.Clear()
	for _, viewID := range r.rows.ViewIDs() {
		r.Reconcile(viewID)
	}
}

// dropFlapped removes from the unsubscribe batch any key that is also being
// subscribed in the same pass: a key moving between views must be a net no-op
// on the wire.
func dropFlapped(unsubscribe, subscribe []Payload) []Payload {
	if len(unsubscribe) == 0 || len(subscribe) == 0 {
		return unsubscribe
	}
	subscribed := make(map[Key]struct{}, len(subscribe))
	for _, p := range subscribe {
		subscribed[payloadKey(p)] = struct{}{}
	}
	kept := unsubscribe[:0]
	for _, p := range unsubscribe {
		if _, flap := subscribed[payloadKey(p)]; !flap {
			kept = append(kept, p)
		}
	}
	return kept
}

func payloadKey(p Payload) Key {
	return Key{
		FIGI:     p.FIGI,
		Quantity: p.Quantity,
		Label:    Label(p.RFQLabel),
		Side:     Side(p.Side),
		ATS:      p.ATSIndicator,
	}
}
