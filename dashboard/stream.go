// Package dashboard streams rendered row patches to browsers over SSE. It is
// the default Renderer: each connected client follows one view and receives
// every flush for it as a JSON event.
package dashboard

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deepmm/inference-feed/feed/inference"
)

const keepaliveInterval = 15 * time.Second

// Hub fans rendered patches out to per-view listeners. Slow listeners drop
// whole flushes rather than stalling the pipeline.
type Hub struct {
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[string]map[string]chan []inference.RowPatch
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:    logger,
		listeners: make(map[string]map[string]chan []inference.RowPatch),
	}
}

// RenderPatch delivers a flush to every listener of the view. Never blocks.
func (h *Hub) RenderPatch(viewID string, patches []inference.RowPatch) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.listeners[viewID] {
		select {
		case ch <- patches:
		default:
			h.logger.Warn("Dropping patch for slow dashboard listener", "view", viewID, "listener", id)
		}
	}
}

// Listeners returns the number of connected clients for a view.
func (h *Hub) Listeners(viewID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[viewID])
}

func (h *Hub) add(viewID string) (string, chan []inference.RowPatch) {
	id := uuid.NewString()
	ch := make(chan []inference.RowPatch, 16)
	h.mu.Lock()
	if h.listeners[viewID] == nil {
		h.listeners[viewID] = make(map[string]chan []inference.RowPatch)
	}
	h.listeners[viewID][id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) remove(viewID, id string) {
	h.mu.Lock()
	if m := h.listeners[viewID]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(h.listeners, viewID)
		}
	}
	h.mu.Unlock()
}

// ServeStream handles GET /dashboard/stream?view=<id> as an SSE stream of
// patch batches.
func (h *Hub) ServeStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	viewID := r.URL.Query().Get("view")
	if viewID == "" {
		http.Error(w, "view parameter is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, ch := h.add(viewID)
	defer h.remove(viewID, id)
	h.logger.Info("Dashboard listener connected", "view", viewID, "listener", id)
	defer h.logger.Info("Dashboard listener disconnected", "view", viewID, "listener", id)

	fmt.Fprintf(w, ": connected view=%s\n\n", viewID)
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case patches := <-ch:
			data, err := json.Marshal(patches)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: patch\ndata: %s\n\n", data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
