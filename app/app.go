// Package app assembles the feed service: configuration from the
// environment, the feed manager, the dashboard hub and the HTTP surface.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deepmm/inference-feed/app/metrics"
	"github.com/deepmm/inference-feed/dashboard"
	"github.com/deepmm/inference-feed/feed"
	"github.com/deepmm/inference-feed/figi"
	"github.com/deepmm/inference-feed/ops"
	"github.com/deepmm/inference-feed/views"
	"github.com/deepmm/inference-feed/web"
)

// Config holds the application configuration.
type Config struct {
	FeedURL     string
	AuthURL     string
	BondDataURL string

	FeedIdentity string
	FeedSecret   string

	ViewsConfig string
	RowsDir     string
	ViewsDBPath string

	AppHost string
	AppPort string
}

const (
	DefaultFeedURL = "wss://staging1.deepmm.com"
	DefaultPort    = "8080"
	DefaultHost    = "localhost"
)

// App is the running service.
type App struct {
	Config    *Config
	Version   string
	startTime time.Time
	logger    *slog.Logger
	metrics   *metrics.Manager
	logBuffer *ops.LogBuffer

	manager *feed.Manager
	hub     *dashboard.Hub
	watcher *views.Watcher
}

// NewApp creates a new application instance reading its configuration from
// the environment.
func NewApp(logger *slog.Logger) *App {
	return &App{
		Config: &Config{
			FeedURL:      os.Getenv("FEED_URL"),
			AuthURL:      os.Getenv("AUTH_URL"),
			BondDataURL:  os.Getenv("BOND_DATA_URL"),
			FeedIdentity: os.Getenv("FEED_IDENTITY"),
			FeedSecret:   os.Getenv("FEED_SECRET"),
			ViewsConfig:  os.Getenv("VIEWS_CONFIG"),
			RowsDir:      os.Getenv("ROWS_DIR"),
			ViewsDBPath:  os.Getenv("VIEWS_DB_PATH"),
			AppHost:      os.Getenv("APP_HOST"),
			AppPort:      os.Getenv("APP_PORT"),
		},
		Version:   "v0.0.0", // injected at build time
		startTime: time.Now(),
		logger:    logger,
		metrics:   metrics.New(metrics.Config{ServiceName: "inference-feed"}),
	}
}

// SetVersion sets the service version string.
func (app *App) SetVersion(version string) {
	app.Version = version
}

// SetLogBuffer sets the log buffer backing the ops log stream.
func (app *App) SetLogBuffer(buf *ops.LogBuffer) {
	app.logBuffer = buf
}

// LoadConfig applies defaults and validates required settings.
func (app *App) LoadConfig() error {
	if app.Config.FeedURL == "" {
		app.Config.FeedURL = DefaultFeedURL
	}
	if app.Config.BondDataURL == "" {
		app.Config.BondDataURL = figi.DefaultDataURL
	}
	if app.Config.AppHost == "" {
		app.Config.AppHost = DefaultHost
	}
	if app.Config.AppPort == "" {
		app.Config.AppPort = DefaultPort
	}

	if app.Config.AuthURL == "" {
		return fmt.Errorf("AUTH_URL is required")
	}
	if app.Config.FeedIdentity == "" || app.Config.FeedSecret == "" {
		return fmt.Errorf("FEED_IDENTITY and FEED_SECRET are required")
	}
	if app.Config.RowsDir == "" {
		return fmt.Errorf("ROWS_DIR is required")
	}
	return nil
}

// Run wires the pipeline, starts the feed session and serves HTTP until a
// termination signal arrives.
func (app *App) Run() error {
	app.hub = dashboard.NewHub(app.logger)

	manager, err := feed.NewManager(feed.ManagerConfig{
		FeedURL:     app.Config.FeedURL,
		AuthURL:     app.Config.AuthURL,
		DataURL:     app.Config.BondDataURL,
		ViewsDBPath: app.Config.ViewsDBPath,
		Logger:      app.logger,
		Metrics:     app.metrics,
		Renderer:    app.hub,
	})
	if err != nil {
		return fmt.Errorf("create feed manager: %w", err)
	}
	app.manager = manager

	// YAML view mappings seed the store; DB-persisted configs were loaded by
	// the manager and win only when the file omits a view.
	if app.Config.ViewsConfig != "" {
		fc, err := views.LoadConfigFile(app.Config.ViewsConfig)
		if err != nil {
			return err
		}
		for viewID, cfg := range fc.Views {
			manager.Views().SetConfig(viewID, cfg)
		}
		app.logger.Info("Loaded view mappings", "path", app.Config.ViewsConfig, "views", len(fc.Views))
	}

	watcher, err := views.NewWatcher(app.Config.RowsDir, manager.Views(), app.logger)
	if err != nil {
		return err
	}
	app.watcher = watcher
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("start rows watcher: %w", err)
	}

	manager.ConfigureAuth(app.Config.FeedIdentity, app.Config.FeedSecret)
	// the manager resubscribes all views once the session is established
	manager.Connect()

	srv := &http.Server{
		Addr:              app.Config.AppHost + ":" + app.Config.AppPort,
		Handler:           app.buildMux(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		app.shutdown(srv)
		return err
	case <-ctx.Done():
	}

	app.logger.Info("Shutting down...")
	app.shutdown(srv)
	app.logger.Info("Shutdown complete")
	return nil
}

func (app *App) shutdown(srv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("HTTP shutdown error", "error", err)
	}
	if app.watcher != nil {
		app.watcher.Close()
	}
	app.manager.Shutdown()
}

// buildMux assembles the HTTP routes.
func (app *App) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Service string      `json:"service"`
			Version string      `json:"version"`
			Feed    feed.Status `json:"feed"`
		}{"inference-feed", app.Version, app.manager.Status()})
	})

	if dm, err := NewDocsManager(app.Version); err != nil {
		app.logger.Warn("Docs unavailable", "error", err)
	} else {
		mux.HandleFunc("/docs", dm.ServeDocs)
		mux.HandleFunc("/docs/", dm.ServeDocs)
	}

	mux.HandleFunc("/dashboard/stream", app.hub.ServeStream)

	limiter := web.NewRateLimiter(time.Second, 10)
	opsHandler := ops.New(app.manager, app.metrics, app.logBuffer, app.logger, app.Version, app.startTime)
	opsHandler.RegisterRoutes(mux, limiter.Middleware)

	return mux
}
