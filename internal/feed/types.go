package feed

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for feed operations.
var (
	// ErrAuthFailed is returned when the upstream feed rejects the login.
	// Auth failures are terminal; retrying with the same credentials
	// would only trip the provider's lockout.
	ErrAuthFailed = errors.New("feed: authentication failed")

	// ErrInvalidTable is returned for an unsafe live table name.
	ErrInvalidTable = errors.New("feed: invalid live table name")
)

// Tick is a single live market update from the upstream feed.
//
// Volume and OpenInterest are nil for symbols that do not carry them
// (index symbols have neither).
type Tick struct {
	Symbol       string    `json:"symbol"`
	Timestamp    time.Time `json:"timestamp"`
	LTP          float64   `json:"ltp"`
	Volume       *int64    `json:"volume,omitempty"`
	OpenInterest *int64    `json:"oi,omitempty"`
}

// Sink consumes ticks dispatched by the feed client.
//
// Implementations must be safe for calls from the client's read loop and
// should return quickly; a slow sink stalls tick delivery for all sinks.
type Sink interface {
	OnTick(ctx context.Context, tick Tick) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, tick Tick) error

// OnTick calls f(ctx, tick).
func (f SinkFunc) OnTick(ctx context.Context, tick Tick) error {
	return f(ctx, tick)
}

// Status is a snapshot of the feed client's connection state.
type Status struct {
	Connected  bool      `json:"connected"`
	Symbols    []string  `json:"symbols"`
	TickCount  int64     `json:"tick_count"`
	LastTickAt time.Time `json:"last_tick_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Wire messages exchanged with the upstream feed.

// authRequest is the first frame sent after the socket opens.
type authRequest struct {
	Type     string `json:"type"`
	LoginID  string `json:"login_id"`
	Password string `json:"password"`
}

// subscribeRequest registers the symbols the session should stream.
type subscribeRequest struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// serverMessage is the envelope for every frame the feed sends.
type serverMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
	Tick   *Tick  `json:"tick,omitempty"`
}

// Server message types.
const (
	msgAuth      = "auth"
	msgAuthOK    = "auth_ok"
	msgSubscribe = "subscribe"
	msgTick      = "tick"
	msgError     = "error"
)
