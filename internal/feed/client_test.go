package feed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qodeinvest/qode-engine/internal/infrastructure/config"
)

// feedServer starts a websocket endpoint whose per-connection behaviour is
// supplied by handler, and returns its ws:// URL.
func feedServer(t *testing.T, handler func(t *testing.T, conn *websocket.Conn)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		handler(t, conn)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// expectHandshake consumes the auth and subscribe frames, approving the
// login when password matches "secret".
func expectHandshake(t *testing.T, conn *websocket.Conn) bool {
	t.Helper()

	var auth authRequest
	if err := conn.ReadJSON(&auth); err != nil {
		t.Errorf("reading auth frame: %v", err)
		return false
	}
	if auth.Type != msgAuth {
		t.Errorf("first frame type = %q, want %q", auth.Type, msgAuth)
		return false
	}
	if auth.Password != "secret" {
		//nolint:errcheck // test server teardown
		conn.WriteJSON(serverMessage{Type: msgError, Reason: "bad credentials"})
		return false
	}
	if err := conn.WriteJSON(serverMessage{Type: msgAuthOK}); err != nil {
		t.Errorf("writing auth_ok: %v", err)
		return false
	}

	var sub subscribeRequest
	if err := conn.ReadJSON(&sub); err != nil {
		t.Errorf("reading subscribe frame: %v", err)
		return false
	}
	if sub.Type != msgSubscribe || len(sub.Symbols) == 0 {
		t.Errorf("subscribe frame = %+v", sub)
		return false
	}
	return true
}

func testFeedConfig(url string) config.FeedConfig {
	return config.FeedConfig{
		Enabled:           true,
		URL:               url,
		LoginID:           "qode",
		Password:          "secret",
		Symbols:           []string{"NSE_Index_NIFTY"},
		ReconnectDelay:    1,
		MaxReconnectDelay: 2,
	}
}

func TestClient_StreamsTicks(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)

	url := feedServer(t, func(t *testing.T, conn *websocket.Conn) {
		if !expectHandshake(t, conn) {
			return
		}
		for i := range 3 {
			tick := Tick{
				Symbol:    "NSE_Index_NIFTY",
				Timestamp: base.Add(time.Duration(i) * time.Second),
				LTP:       22450 + float64(i),
			}
			if err := conn.WriteJSON(serverMessage{Type: msgTick, Tick: &tick}); err != nil {
				return
			}
		}
		// Keep the session open until the client hangs up.
		conn.ReadMessage() //nolint:errcheck // blocking until close
	})

	received := make(chan Tick, 3)
	client := New(testFeedConfig(url), slog.Default(), SinkFunc(func(_ context.Context, tick Tick) error {
		received <- tick
		return nil
	}))

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	var ticks []Tick
	for len(ticks) < 3 {
		select {
		case tick := <-received:
			ticks = append(ticks, tick)
		case <-ctx.Done():
			t.Fatalf("timed out after %d ticks", len(ticks))
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run() error = %v, want nil on cancellation", err)
	}

	if ticks[0].LTP != 22450 || ticks[2].LTP != 22452 {
		t.Errorf("ticks out of order: %v", ticks)
	}
	if !ticks[0].Timestamp.Equal(base) {
		t.Errorf("first tick timestamp = %v, want %v", ticks[0].Timestamp, base)
	}

	status := client.Status()
	if status.TickCount != 3 {
		t.Errorf("Status().TickCount = %d, want 3", status.TickCount)
	}
	if !status.LastTickAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("Status().LastTickAt = %v", status.LastTickAt)
	}
}

func TestClient_AuthFailureIsTerminal(t *testing.T) {
	url := feedServer(t, func(t *testing.T, conn *websocket.Conn) {
		expectHandshake(t, conn)
	})

	cfg := testFeedConfig(url)
	cfg.Password = "wrong"
	client := New(cfg, slog.Default())

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	if err := client.Run(ctx); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Run() error = %v, want ErrAuthFailed", err)
	}
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)

	url := feedServer(t, func(t *testing.T, conn *websocket.Conn) {
		if !expectHandshake(t, conn) {
			return
		}
		tick := Tick{Symbol: "NSE_Index_NIFTY", Timestamp: base, LTP: 22450}
		//nolint:errcheck // connection is torn down immediately after
		conn.WriteJSON(serverMessage{Type: msgTick, Tick: &tick})
		// Returning closes the connection, forcing a reconnect.
	})

	received := make(chan Tick, 4)
	client := New(testFeedConfig(url), slog.Default(), SinkFunc(func(_ context.Context, tick Tick) error {
		received <- tick
		return nil
	}))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	// Two ticks means two distinct sessions against the one-tick server.
	for i := range 2 {
		select {
		case <-received:
		case <-ctx.Done():
			t.Fatalf("timed out waiting for tick %d", i+1)
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run() error = %v, want nil on cancellation", err)
	}
}

func TestClient_StatusBeforeRun(t *testing.T) {
	client := New(testFeedConfig("ws://127.0.0.1:1"), slog.Default())

	status := client.Status()
	if status.Connected {
		t.Error("Status().Connected = true before Run()")
	}
	if status.TickCount != 0 {
		t.Errorf("Status().TickCount = %d, want 0", status.TickCount)
	}
	if len(status.Symbols) != 1 {
		t.Errorf("Status().Symbols = %v", status.Symbols)
	}
}
