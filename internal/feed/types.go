// internal/feed/types.go
package feed

import (
	"errors"
	"time"
)

// ErrAlreadyStarted is returned when Start is called on a running channel.
var ErrAlreadyStarted = errors.New("feed: channel already started")

// State describes the connection lifecycle of a Channel.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateLive         State = "live"
	StateReconnecting State = "reconnecting"
	// StateDegraded means the retry ceiling was hit and the channel gave up.
	StateDegraded State = "degraded"
	StateStopped  State = "stopped"
)

// Notification is one logsNotification payload, passed opaquely to the decoder.
type Notification struct {
	Signature  string
	Slot       uint64
	Logs       []string
	Err        any
	ReceivedAt time.Time
}

// Failed reports whether the transaction behind the notification failed.
func (n Notification) Failed() bool {
	return n.Err != nil
}

// Config configures a Channel.
type Config struct {
	URL string
	// Mentions is the program or account address set passed to logsSubscribe.
	Mentions   []string
	Commitment string

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxReconnectAttempts bounds consecutive failed connect attempts. Zero means unlimited.
	MaxReconnectAttempts int

	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	SubscribeTimeout time.Duration
}

// DefaultConfig returns sane timeouts for a public RPC websocket.
func DefaultConfig() Config {
	return Config{
		Commitment:           "confirmed",
		InitialBackoff:       time.Second,
		MaxBackoff:           30 * time.Second,
		MaxReconnectAttempts: 10,
		PingInterval:         20 * time.Second,
		ReadTimeout:          60 * time.Second,
		WriteTimeout:         10 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		SubscribeTimeout:     15 * time.Second,
	}
}

// JSON-RPC wire types.

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type wsResponse struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      uint64   `json:"id"`
	Result  *int64   `json:"result"`
	Error   *wsError `json:"error"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Context *struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string   `json:"signature"`
			Logs      []string `json:"logs"`
			Err       any      `json:"err"`
		} `json:"value"`
	} `json:"result"`
}
