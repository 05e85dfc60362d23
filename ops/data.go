package ops

import (
	"time"

	"github.com/deepmm/inference-feed/feed"
	"github.com/deepmm/inference-feed/feed/subs"
	"github.com/deepmm/inference-feed/views"
)

type OverviewData struct {
	Version  string           `json:"version"`
	Uptime   string           `json:"uptime"`
	Feed     feed.Status      `json:"feed"`
	Counters map[string]int64 `json:"counters"`
}

type SubscriptionData struct {
	Count         int         `json:"count"`
	Subscriptions []subs.Info `json:"subscriptions"`
}

type ViewInfo struct {
	ID     string       `json:"id"`
	Config views.Config `json:"config"`
	Rows   int          `json:"rows"`
}

func (h *Handler) buildOverview() OverviewData {
	counters := map[string]int64{}
	if h.metrics != nil {
		counters = h.metrics.GetAllCounters()
	}
	return OverviewData{
		Version:  h.version,
		Uptime:   time.Since(h.startTime).Truncate(time.Second).String(),
		Feed:     h.manager.Status(),
		Counters: counters,
	}
}

func (h *Handler) buildSubscriptions() SubscriptionData {
	snapshot := h.manager.Table().Snapshot()
	return SubscriptionData{Count: len(snapshot), Subscriptions: snapshot}
}

func (h *Handler) buildViews() []ViewInfo {
	store := h.manager.Views()
	ids := store.ViewIDs()
	out := make([]ViewInfo, 0, len(ids))
	for _, id := range ids {
		cfg, rows, ok := store.View(id)
		if !ok {
			continue
		}
		out = append(out, ViewInfo{ID: id, Config: cfg, Rows: len(rows)})
	}
	return out
}
