// internal/feed/channel.go
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler receives notifications one at a time, in arrival order.
type Handler func(ctx context.Context, n Notification)

// StateFunc is called on every state transition.
type StateFunc func(State)

// Channel is a single logsSubscribe subscription that survives connection
// drops. After a drop it redials with exponential backoff and re-issues the
// same subscription. Once MaxReconnectAttempts consecutive attempts fail the
// channel stops in StateDegraded.
type Channel struct {
	cfg     Config
	handler Handler
	onState StateFunc
	logger  *zap.Logger
	dialer  websocket.Dialer

	requestID atomic.Uint64
	attempts  atomic.Int64

	mu       sync.Mutex
	state    State
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewChannel creates a channel. Nothing is dialed until Start.
func NewChannel(cfg Config, handler Handler, onState StateFunc, logger *zap.Logger) *Channel {
	def := DefaultConfig()
	if cfg.Commitment == "" {
		cfg.Commitment = def.Commitment
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = def.SubscribeTimeout
	}

	return &Channel{
		cfg:     cfg,
		handler: handler,
		onState: onState,
		logger:  logger.Named("feed"),
		dialer:  websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		state:   StateIdle,
		done:    make(chan struct{}),
	}
}

// Start begins connecting in the background. Connection failures are retried
// and never returned from here.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.run(runCtx)
	return nil
}

// Stop closes the connection and waits for the reader to exit. Safe to call
// more than once and before Start.
func (c *Channel) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		running := c.started
		cancel := c.cancel
		c.started = true
		c.mu.Unlock()

		if running && cancel != nil {
			cancel()
			<-c.done
		}
		c.setState(StateStopped)
	})
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the total number of connect attempts made so far.
func (c *Channel) Attempts() int64 {
	return c.attempts.Load()
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.logger.Info("Feed state changed", zap.String("state", string(s)))
	if c.onState != nil {
		c.onState(s)
	}
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	c.setState(StateConnecting)
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateStopped)
				return
			}
			c.logger.Error("Feed gave up reconnecting",
				zap.Int("max_attempts", c.cfg.MaxReconnectAttempts),
				zap.Error(err))
			c.setState(StateDegraded)
			return
		}

		c.setState(StateLive)
		err = c.readLoop(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			c.setState(StateStopped)
			return
		}
		c.logger.Warn("Feed connection lost", zap.Error(err))
		c.setState(StateReconnecting)
	}
}

// connect dials and subscribes, retrying with backoff up to the configured ceiling.
func (c *Channel) connect(ctx context.Context) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("Feed connect failed, retrying",
				zap.Duration("retry_in", next),
				zap.Error(err))
		}),
	}
	if c.cfg.MaxReconnectAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(c.cfg.MaxReconnectAttempts)))
	}

	return backoff.Retry(ctx, func() (*websocket.Conn, error) {
		c.attempts.Add(1)
		return c.dialAndSubscribe(ctx)
	}, opts...)
}

func (c *Channel) dialAndSubscribe(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	subID, err := c.subscribe(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.logger.Info("Subscribed to logs",
		zap.Strings("mentions", c.cfg.Mentions),
		zap.String("commitment", c.cfg.Commitment),
		zap.Int64("subscription_id", subID))
	return conn, nil
}

// subscribe issues logsSubscribe and waits for its confirmation. No
// notification can arrive before the confirmation on a fresh connection.
func (c *Channel) subscribe(conn *websocket.Conn) (int64, error) {
	reqID := c.requestID.Add(1)

	filter := map[string]any{"mentions": c.cfg.Mentions}
	if len(c.cfg.Mentions) == 0 {
		filter = map[string]any{"all": nil}
	}
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []any{
			filter,
			map[string]string{"commitment": c.cfg.Commitment},
		},
	}

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.SubscribeTimeout))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("read subscribe response: %w", err)
		}

		var resp wsResponse
		if err := json.Unmarshal(msg, &resp); err != nil || resp.ID != reqID {
			continue
		}
		if resp.Error != nil {
			return 0, fmt.Errorf("subscribe rejected: code=%d msg=%s", resp.Error.Code, resp.Error.Message)
		}
		if resp.Result == nil {
			return 0, errors.New("subscribe response without result")
		}
		return *resp.Result, nil
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	go func() {
		<-loopCtx.Done()
		// Unblocks ReadMessage on shutdown.
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()
	go c.pingLoop(loopCtx, conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		n, ok := parseNotification(msg)
		if !ok {
			continue
		}
		if c.handler != nil {
			c.handler(ctx, n)
		}
	}
}

func (c *Channel) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("Ping failed", zap.Error(err))
			}
		}
	}
}

func parseNotification(msg []byte) (Notification, bool) {
	var notif wsNotification
	if err := json.Unmarshal(msg, &notif); err != nil {
		return Notification{}, false
	}
	if notif.Method != "logsNotification" || notif.Params == nil {
		return Notification{}, false
	}

	value := notif.Params.Result.Value
	n := Notification{
		Signature:  value.Signature,
		Logs:       value.Logs,
		Err:        value.Err,
		ReceivedAt: time.Now().UTC(),
	}
	if notif.Params.Result.Context != nil {
		n.Slot = notif.Params.Result.Context.Slot
	}
	return n, true
}
