package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deepmm/inference-feed/app/metrics"
	"github.com/deepmm/inference-feed/feed/inference"
	"github.com/deepmm/inference-feed/feed/subs"
	"github.com/deepmm/inference-feed/figi"
	"github.com/deepmm/inference-feed/views"
)

// Renderer receives row patches for a view after each debounced flush.
// Implementations must not block; slow sinks drop.
type Renderer interface {
	RenderPatch(viewID string, patches []inference.RowPatch)
}

// ManagerConfig configures a Manager. Logger is required.
type ManagerConfig struct {
	FeedURL string
	AuthURL string
	DataURL string

	// ViewsDBPath enables write-through persistence of view configurations
	// when non-empty.
	ViewsDBPath string

	Logger   *slog.Logger
	Metrics  *metrics.Manager
	Renderer Renderer

	// Resolver overrides the bond-data resolver; tests use a static one.
	Resolver subs.Resolver

	// Debounce overrides the flush interval; zero means the default 2s.
	Debounce time.Duration

	// RetryDelay overrides the client's reconnect delay; zero means the
	// default 60s.
	RetryDelay time.Duration
}

// Manager owns the whole feed pipeline: the view store, the subscription
// table and reconciler, the inference cache with its debounced flush, and
// the client session underneath them.
type Manager struct {
	logger  *slog.Logger
	metrics *metrics.Manager

	viewStore  *views.Store
	viewsDB    *views.DB
	table      *subs.Table
	reconciler *subs.Reconciler
	cache      *inference.Cache
	debouncer  *inference.Debouncer
	renderer   Renderer
	resolver   subs.Resolver
	client     *Client
	authURL    string

	startedAt time.Time
}

// NewManager wires the pipeline together. The returned manager is idle until
// Connect is called.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	m := &Manager{
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		viewStore: views.NewStore(),
		table:     subs.NewTable(),
		cache:     inference.NewCache(cfg.Logger),
		renderer:  cfg.Renderer,
		authURL:   cfg.AuthURL,
		startedAt: time.Now(),
	}
	m.viewStore.SetLogger(cfg.Logger)

	if cfg.ViewsDBPath != "" {
		db, err := views.OpenDB(cfg.ViewsDBPath)
		if err != nil {
			return nil, fmt.Errorf("open views db: %w", err)
		}
		m.viewsDB = db
		m.viewStore.SetDB(db)
		if err := m.viewStore.LoadFromDB(); err != nil {
			return nil, fmt.Errorf("load view configs: %w", err)
		}
	}

	m.resolver = cfg.Resolver
	if m.resolver == nil {
		dataURL := cfg.DataURL
		if dataURL == "" {
			dataURL = figi.DefaultDataURL
		}
		m.resolver = figi.New(dataURL, cfg.Logger)
	}

	m.reconciler = subs.New(subs.Config{
		Table:    m.table,
		Rows:     m.viewStore,
		Resolver: m.resolver,
		Sender:   m,
		Logger:   cfg.Logger,
	})

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = inference.DefaultFlushInterval
	}
	m.debouncer = inference.NewDebouncer(debounce, m.flushAll)

	m.client = NewClient(ClientConfig{
		URL:            cfg.FeedURL,
		Logger:         cfg.Logger,
		Metrics:        cfg.Metrics,
		RetryDelay:     cfg.RetryDelay,
		OnStatusChange: m.onStateChange,
	})
	m.client.Subscribe(m)

	// row changes reconcile the affected view immediately
	m.viewStore.OnChange(m.reconciler.Reconcile)

	return m, nil
}

// ConfigureAuth installs feed credentials against the configured auth
// endpoint. No network traffic happens until the first send needs a token.
func (m *Manager) ConfigureAuth(identity, secret string) {
	m.client.ConfigureAuth(m.authURL, identity, secret)
}

// Connect starts the feed session. Each established session triggers a full
// resubscribe through the status callback.
func (m *Manager) Connect() {
	m.client.Connect()
}

// onStateChange pushes the full subscription set to every fresh session. The
// server starts each session with no subscription state, so the table must be
// replayed on reconnect as well as on first connect.
func (m *Manager) onStateChange(s State) {
	if s != Connected {
		return
	}
	m.ReconcileAll()
	m.count("feed_sessions_initialized")
}

// ReconcileAll resets the session-scoped state and resubscribes every view.
// Runs on every Connected transition.
func (m *Manager) ReconcileAll() {
	m.cache.Clear()
	m.reconciler.ReconcileAll()
}

// Views returns the view store.
func (m *Manager) Views() *views.Store { return m.viewStore }

// Table returns the global subscription table.
func (m *Manager) Table() *subs.Table { return m.table }

// Cache returns the latest-inference cache.
func (m *Manager) Cache() *inference.Cache { return m.cache }

// Client returns the underlying feed client.
func (m *Manager) Client() *Client { return m.client }

// Status snapshots the pipeline for status indicators.
func (m *Manager) Status() Status {
	state := m.client.State()
	s := Status{
		State:         state.String(),
		Connected:     state == Connected,
		StartedAt:     m.startedAt,
		Uptime:        time.Since(m.startedAt).Round(time.Second).String(),
		Views:         m.viewStore.Count(),
		Subscriptions: m.table.Len(),
		CachedEntries: m.cache.Len(),
	}
	return s
}

// Shutdown stops the feed session and releases resources.
func (m *Manager) Shutdown() {
	m.client.Close()
	m.debouncer.Stop()
	if m.viewsDB != nil {
		if err := m.viewsDB.Close(); err != nil {
			m.logger.Error("Failed to close views db", "error", err)
		}
	}
}

// SendSubscribe transmits a batch of new subscriptions.
func (m *Manager) SendSubscribe(batch []subs.Payload) {
	for i := range batch {
		batch[i].Subscribe = true
	}
	m.count("feed_subscribes_sent")
	m.client.Send(Envelope{Inference: batch})
}

// SendUnsubscribe transmits a batch of retired subscriptions.
func (m *Manager) SendUnsubscribe(batch []subs.Payload) {
	for i := range batch {
		batch[i].Unsubscribe = true
	}
	m.count("feed_unsubscribes_sent")
	m.client.Send(Envelope{Inference: batch})
}

// HandleFeedMessage ingests one inbound frame. Frames that carry inference
// values arm the debounced flush; control frames only update the cache.
func (m *Manager) HandleFeedMessage(msg json.RawMessage) {
	stored, isPush := m.cache.Ingest(msg)
	if stored > 0 {
		m.count("feed_inferences_stored")
	}
	if isPush {
		m.debouncer.Trigger()
	}
}

// flushAll renders every view against the current cache contents. Runs on
// the debouncer's timer goroutine; a flush may observe values newer than the
// push that scheduled it, which is fine since only the latest value per key
// matters.
func (m *Manager) flushAll() {
	if m.renderer == nil {
		return
	}
	for _, viewID := range m.viewStore.ViewIDs() {
		cfg, rows, ok := m.viewStore.View(viewID)
		if !ok {
			continue
		}
		if cfg.Validate() != nil {
			continue
		}
		kind, _, _ := cfg.IdentifierKind()

		keyed := make([]inference.KeyedRow, 0, len(rows))
		for _, row := range rows {
			key, err := subs.BuildKey(kind, row, m.resolver)
			if err != nil {
				continue
			}
			keyed = append(keyed, inference.KeyedRow{Row: row.Num, Key: key})
		}
		if len(keyed) == 0 {
			continue
		}

		patches := inference.BuildViewPatch(m.cache, keyed, m.logger)
		if len(patches) == 0 {
			continue
		}
		m.renderer.RenderPatch(viewID, patches)
		m.count("feed_patches_rendered")
	}
	m.count("feed_flushes")
}

func (m *Manager) count(key string) {
	if m.metrics != nil {
		m.metrics.Increment(key)
	}
}
