package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qodeinvest/qode-engine/internal/infrastructure/config"
)

// Handshake and reconnect constants.
const (
	// defaultDialTimeout bounds the websocket dial.
	defaultDialTimeout = 10 * time.Second

	// defaultHandshakeTimeout bounds the auth and subscribe exchange.
	defaultHandshakeTimeout = 10 * time.Second

	// defaultReconnectDelay is the initial backoff when config omits it.
	defaultReconnectDelay = 1 * time.Second

	// defaultMaxReconnectDelay caps the backoff when config omits it.
	defaultMaxReconnectDelay = 60 * time.Second
)

// Client maintains a websocket session to the upstream tick feed and fans
// each tick out to the registered sinks (live table, API hub, MQTT, InfluxDB).
//
// The session protocol is three frames up, then a stream down:
//  1. client sends {"type":"auth","login_id":...,"password":...}
//  2. server replies {"type":"auth_ok"} or {"type":"error","reason":...}
//  3. client sends {"type":"subscribe","symbols":[...]}
//  4. server streams {"type":"tick","tick":{...}} frames
//
// Connection drops trigger reconnection with exponential backoff. A rejected
// login is terminal: Run returns ErrAuthFailed instead of hammering the
// provider's lockout counter.
type Client struct {
	cfg    config.FeedConfig
	logger *slog.Logger
	sinks  []Sink

	mu        sync.RWMutex
	connected bool
	tickCount int64
	lastTick  time.Time
	lastErr   error
}

// New creates a feed client. Sinks receive every tick in registration order.
func New(cfg config.FeedConfig, logger *slog.Logger, sinks ...Sink) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger,
		sinks:  sinks,
	}
}

// AddSink registers an additional sink. Safe to call while Run is active;
// the sink starts receiving ticks from the next dispatch.
func (c *Client) AddSink(sink Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, sink)
}

// Status returns a snapshot of the client's connection state.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{
		Connected:  c.connected,
		Symbols:    append([]string{}, c.cfg.Symbols...),
		TickCount:  c.tickCount,
		LastTickAt: c.lastTick,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Run connects to the feed and streams ticks until the context is cancelled.
//
// It blocks, reconnecting with exponential backoff on connection loss.
// Returns nil on context cancellation, ErrAuthFailed if the upstream
// rejects the credentials.
func (c *Client) Run(ctx context.Context) error {
	delay := secondsOr(c.cfg.ReconnectDelay, defaultReconnectDelay)
	maxDelay := secondsOr(c.cfg.MaxReconnectDelay, defaultMaxReconnectDelay)

	for {
		err := c.runSession(ctx)

		c.mu.Lock()
		c.connected = false
		c.lastErr = err
		c.mu.Unlock()

		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrAuthFailed):
			return err
		}

		c.logger.Warn("feed session ended, reconnecting",
			"error", err,
			"retry_in", delay,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// runSession performs one connect-auth-subscribe-stream cycle.
func (c *Client) runSession(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: defaultDialTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dialing feed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // handshake response body is drained by the dialer
	}
	defer conn.Close() //nolint:errcheck // session teardown

	// Close the socket when the context is cancelled so ReadJSON unblocks.
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close() //nolint:errcheck // unblocking the read loop
		case <-sessionDone:
		}
	}()

	if err := c.handshake(conn); err != nil {
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("feed connected",
		"url", c.cfg.URL,
		"symbols", len(c.cfg.Symbols),
	)

	return c.readLoop(ctx, conn)
}

// handshake authenticates and subscribes within the handshake deadline.
func (c *Client) handshake(conn *websocket.Conn) error {
	deadline := time.Now().Add(defaultHandshakeTimeout)
	//nolint:errcheck // best-effort deadline; failures surface on the writes below
	conn.SetWriteDeadline(deadline)
	//nolint:errcheck // best-effort deadline; failures surface on the read below
	conn.SetReadDeadline(deadline)

	if err := conn.WriteJSON(authRequest{
		Type:     msgAuth,
		LoginID:  c.cfg.LoginID,
		Password: c.cfg.Password,
	}); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}

	var reply serverMessage
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("reading auth reply: %w", err)
	}
	if reply.Type != msgAuthOK {
		return fmt.Errorf("%w: %s", ErrAuthFailed, reply.Reason)
	}

	if err := conn.WriteJSON(subscribeRequest{
		Type:    msgSubscribe,
		Symbols: c.cfg.Symbols,
	}); err != nil {
		return fmt.Errorf("sending subscribe: %w", err)
	}

	// Streaming has no deadline; liveness comes from reconnect on error.
	var zero time.Time
	//nolint:errcheck // clearing a deadline on an open connection
	conn.SetReadDeadline(zero)
	//nolint:errcheck // clearing a deadline on an open connection
	conn.SetWriteDeadline(zero)

	return nil
}

// readLoop consumes tick frames until the connection drops.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading feed: %w", err)
		}

		switch msg.Type {
		case msgTick:
			if msg.Tick == nil {
				c.logger.Warn("tick frame without payload")
				continue
			}
			c.dispatch(ctx, *msg.Tick)
		case msgError:
			c.logger.Warn("feed reported error", "reason", msg.Reason)
		default:
			c.logger.Debug("ignoring feed frame", "type", msg.Type)
		}
	}
}

// dispatch fans a tick out to every sink. Sink errors are logged and do not
// stop delivery to the remaining sinks.
func (c *Client) dispatch(ctx context.Context, tick Tick) {
	c.mu.Lock()
	c.tickCount++
	c.lastTick = tick.Timestamp
	sinks := make([]Sink, len(c.sinks))
	copy(sinks, c.sinks)
	c.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.OnTick(ctx, tick); err != nil {
			c.logger.Warn("tick sink failed",
				"symbol", tick.Symbol,
				"error", err,
			)
		}
	}
}

// secondsOr converts a config value in seconds, falling back when unset.
func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
