package ops

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepmm/inference-feed/app/metrics"
	"github.com/deepmm/inference-feed/feed"
	"github.com/deepmm/inference-feed/views"
)

func newTestHandler(t *testing.T) (*Handler, *feed.Manager) {
	t.Helper()
	manager, err := feed.NewManager(feed.ManagerConfig{
		FeedURL: "ws://127.0.0.1:1",
		Logger:  slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	t.Cleanup(manager.Shutdown)

	m := metrics.New(metrics.Config{ServiceName: "test"})
	m.Increment("feed_flushes")

	h := New(manager, m, NewLogBuffer(10), slog.New(slog.DiscardHandler), "v1.0.0", time.Now())
	return h, manager
}

func routes(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, func(next http.Handler) http.Handler { return next })
	return mux
}

func TestOverviewEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := routes(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/ops/api/overview", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var data OverviewData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, "v1.0.0", data.Version)
	assert.False(t, data.Feed.Connected)
	assert.Equal(t, int64(1), data.Counters["feed_flushes"])
}

func TestSubscriptionsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := routes(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/ops/api/subscriptions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var data SubscriptionData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Zero(t, data.Count)
}

func TestViewsEndpoint(t *testing.T) {
	h, manager := newTestHandler(t)
	manager.Views().SetConfig("sheet1", views.Config{
		FIGI: "figi", Side: "side", Quantity: "quantity", RFQLabel: "rfq_label", ATS: "ats",
	})
	manager.Views().SetRows("sheet1", []views.Row{{Num: 2, Identifier: "BBG000000001"}})
	mux := routes(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/ops/api/views", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var data []ViewInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	require.Len(t, data, 1)
	assert.Equal(t, "sheet1", data[0].ID)
	assert.Equal(t, 1, data[0].Rows)
}

func TestEndpointsRejectNonGet(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := routes(h)

	for _, path := range []string{
		"/admin/ops/api/overview",
		"/admin/ops/api/subscriptions",
		"/admin/ops/api/views",
		"/admin/ops/api/logs",
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
}
