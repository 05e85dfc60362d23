// Package feed maintains the single logical session to the remote inference
// push server and the machinery around it: reconciliation of the global
// subscription table, the latest-inference cache and the debounced flush to
// the renderer.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deepmm/inference-feed/app/metrics"
	"github.com/deepmm/inference-feed/feed/subs"
)

// Default client timings.
const (
	DefaultRetryDelay      = 60 * time.Second
	DefaultSendTimeout     = 10 * time.Second
	DefaultRefreshInterval = 2 * time.Minute
	DefaultRefreshAfter    = 55 * time.Minute

	closeWait = 5 * time.Second
)

// Consumer receives each inbound frame from the feed connection. Consumers
// are identified by interface value: registering the same consumer twice is
// ignored.
type Consumer interface {
	HandleFeedMessage(msg json.RawMessage)
}

// Envelope is the outbound frame shape. An empty Inference slice yields the
// bare token-refresh message.
type Envelope struct {
	Inference []subs.Payload `json:"inference,omitempty"`
	Token     string         `json:"token,omitempty"`
}

// ClientConfig configures a feed Client.
type ClientConfig struct {
	URL     string
	Logger  *slog.Logger
	Metrics *metrics.Manager

	// OnStatusChange is invoked synchronously from the connection goroutine.
	// A Connected transition is reported only once the session accepts
	// sends, so the callback may call Send to set up the session.
	OnStatusChange func(State)

	// Timings default to the package constants; tests shrink them.
	RetryDelay      time.Duration
	SendTimeout     time.Duration
	RefreshInterval time.Duration
	RefreshAfter    time.Duration
}

// Client maintains exactly one logical session to the feed endpoint. It
// reconnects forever on failure; callers observe connectivity only through
// State and the status callback. All socket writes are serialized on the
// connection's writer goroutine; Send marshals the caller onto it with a
// bounded wait.
type Client struct {
	url     string
	logger  *slog.Logger
	metrics *metrics.Manager
	dialer  *websocket.Dialer

	retryDelay      time.Duration
	sendTimeout     time.Duration
	refreshInterval time.Duration
	refreshAfter    time.Duration

	state    atomic.Int32
	onStatus func(State)

	tokenMu sync.RWMutex
	tokens  TokenSource

	consumerMu sync.Mutex
	consumers  []Consumer

	sendCh chan sendRequest

	lastTokenMu   sync.Mutex
	lastTokenSent time.Time

	startMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type sendRequest struct {
	data []byte
	done chan error
}

// NewClient creates a feed client; Connect starts it.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		url:             cfg.URL,
		logger:          logger,
		metrics:         cfg.Metrics,
		dialer:          &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		retryDelay:      orDefault(cfg.RetryDelay, DefaultRetryDelay),
		sendTimeout:     orDefault(cfg.SendTimeout, DefaultSendTimeout),
		refreshInterval: orDefault(cfg.RefreshInterval, DefaultRefreshInterval),
		refreshAfter:    orDefault(cfg.RefreshAfter, DefaultRefreshAfter),
		onStatus:        cfg.OnStatusChange,
		sendCh:          make(chan sendRequest),
	}
	return c
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// ConfigureAuth installs a token source built from the given credentials.
// Must be called before any send can succeed; performs no I/O itself.
func (c *Client) ConfigureAuth(authURL, identity, secret string) {
	c.SetTokenSource(NewTokenSource(authURL, identity, secret))
}

// SetTokenSource installs an arbitrary token source.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokenMu.Lock()
	c.tokens = ts
	c.tokenMu.Unlock()
	c.logger.Debug("Authentication token source configured")
}

// Connect starts the connect-and-retry loop. Idempotent; success or failure
// is observable only through State.
func (c *Client) Connect() {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return
	}
	c.started = true

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Close cancels the session and joins the connection loop with a bounded
// wait. In-flight sends fail.
func (c *Client) Close() {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if !c.started {
		return
	}
	c.started = false
	c.cancel()
	select {
	case <-c.done:
	case <-time.After(closeWait):
		c.logger.Warn("Timed out waiting for connection loop to exit")
	}
}

// run dials forever: every failed attempt or dropped connection moves the
// state back to Disconnected and schedules the next attempt after the fixed
// retry delay. The loop never gives up.
func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(Disconnected)

	for {
		c.setState(Connecting)
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.setState(Disconnected)
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to connect to feed", "url", c.url, "error", err)
			if !sleep(ctx, c.retryDelay) {
				return
			}
			continue
		}

		c.logger.Info("Feed connection established", "url", c.url)
		c.serve(ctx, conn)
		c.setState(Disconnected)

		if ctx.Err() != nil {
			return
		}
		if !sleep(ctx, c.retryDelay) {
			return
		}
	}
}

// serve runs one established connection: a writer goroutine owning all
// socket writes, the token-refresh task, and the read loop. Connected is
// reported only after the writer is running, so the status callback can
// already send. Returns when the connection dies or ctx is cancelled.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go c.writePump(connCtx, conn, writerDone)
	go c.refreshLoop(connCtx)

	c.setState(Connected)
	c.readPump(conn)
	cancel()
	<-writerDone
}

// writePump owns the socket's write side. It also closes the connection on
// shutdown, which unblocks the read loop.
func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case req := <-c.sendCh:
			err := conn.WriteMessage(websocket.TextMessage, req.data)
			req.done <- err
			if err != nil {
				conn.Close()
				return
			}
		}
	}
}

// readPump delivers each inbound frame to the registered consumers until the
// connection errors. Malformed frames are logged and skipped; they do not
// close the connection.
func (c *Client) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Error("Feed connection closed", "error", err)
			conn.Close()
			return
		}
		if !json.Valid(data) {
			c.logger.Error("Skipping malformed feed frame")
			c.count("feed_frames_malformed")
			continue
		}
		c.count("feed_frames_received")
		c.dispatch(data)
	}
}

// dispatch fans a frame out to every consumer in registration order. A
// failing consumer is isolated; the rest still receive the frame.
func (c *Client) dispatch(data []byte) {
	c.consumerMu.Lock()
	consumers := make([]Consumer, len(c.consumers))
	copy(consumers, c.consumers)
	c.consumerMu.Unlock()

	for _, consumer := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Consumer panicked handling feed message", "panic", r)
				}
			}()
			consumer.HandleFeedMessage(data)
		}()
	}
}

// Send attaches a fresh token to the envelope, serializes it and transmits
// it over the connection's writer, blocking the caller up to the send
// timeout. The timeout covers token acquisition too, so a slow auth endpoint
// cannot hold callers past the send window. Failures are logged and dropped:
// at-most-once, best-effort.
func (c *Client) Send(env Envelope) {
	if c.State() != Connected {
		c.logger.Error("Dropping send: feed not connected")
		c.count("feed_sends_dropped")
		return
	}

	c.tokenMu.RLock()
	tokens := c.tokens
	c.tokenMu.RUnlock()
	if tokens == nil {
		c.logger.Error("Dropping send: no token source configured")
		c.count("feed_sends_dropped")
		return
	}

	timeout := time.NewTimer(c.sendTimeout)
	defer timeout.Stop()

	token, err := tokens()
	if err != nil || token == "" {
		c.logger.Error("Dropping send: no valid token", "error", err)
		c.count("feed_sends_dropped")
		return
	}
	env.Token = token

	select {
	case <-timeout.C:
		c.logger.Error("Dropping send: window expired during token acquisition")
		c.count("feed_sends_dropped")
		return
	default:
	}

	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("Dropping send: marshal failed", "error", err)
		c.count("feed_sends_dropped")
		return
	}

	req := sendRequest{data: data, done: make(chan error, 1)}

	select {
	case c.sendCh <- req:
	case <-timeout.C:
		c.logger.Error("Send timed out waiting for writer")
		c.count("feed_sends_dropped")
		return
	}
	select {
	case err := <-req.done:
		if err != nil {
			c.logger.Error("Send failed", "error", err)
			c.count("feed_sends_dropped")
			return
		}
		c.markTokenSent()
		c.count("feed_sends_ok")
	case <-timeout.C:
		c.logger.Error("Send timed out waiting for transmission")
		c.count("feed_sends_dropped")
	}
}

// refreshLoop proactively re-sends a bare token message so the server-side
// session never sees a stale token. Failures are logged and do not touch the
// connection state.
func (c *Client) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(c.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.lastTokenMu.Lock()
			due := time.Since(c.lastTokenSent) >= c.refreshAfter
			c.lastTokenMu.Unlock()
			if due {
				c.logger.Info("Sending proactive token refresh")
				c.Send(Envelope{})
			}
		}
	}
}

func (c *Client) markTokenSent() {
	c.lastTokenMu.Lock()
	c.lastTokenSent = time.Now()
	c.lastTokenMu.Unlock()
}

// Subscribe registers a consumer for inbound frames. Duplicate registration
// is logged and ignored.
func (c *Client) Subscribe(consumer Consumer) {
	c.consumerMu.Lock()
	defer c.consumerMu.Unlock()
	for _, existing := range c.consumers {
		if existing == consumer {
			c.logger.Warn("Consumer already registered")
			return
		}
	}
	c.consumers = append(c.consumers, consumer)
	c.logger.Info("Consumer registered")
}

// Unsubscribe removes a previously registered consumer.
func (c *Client) Unsubscribe(consumer Consumer) {
	c.consumerMu.Lock()
	defer c.consumerMu.Unlock()
	for i, existing := range c.consumers {
		if existing == consumer {
			c.consumers = append(c.consumers[:i], c.consumers[i+1:]...)
			c.logger.Info("Consumer removed")
			return
		}
	}
	c.logger.Warn("Consumer not found")
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.logger.Debug("Connection state changed", "state", s.String())
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

func (c *Client) count(key string) {
	if c.metrics != nil {
		c.metrics.Increment(key)
	}
}

// sleep waits d or until ctx is done; reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
