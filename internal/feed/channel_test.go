// internal/feed/channel_test.go
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// mockRPC is a minimal logsSubscribe server. Each accepted connection runs
// the script for its index; the connection is closed when the script returns.
type mockRPC struct {
	t        *testing.T
	upgrader websocket.Upgrader
	conns    atomic.Int32
	reject   bool

	mu       sync.Mutex
	requests []json.RawMessage

	script func(idx int, conn *websocket.Conn)
}

func (m *mockRPC) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	idx := int(m.conns.Add(1)) - 1

	var req struct {
		ID     uint64          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := conn.ReadJSON(&req); err != nil {
		return
	}
	m.mu.Lock()
	m.requests = append(m.requests, req.Params)
	m.mu.Unlock()

	if m.reject {
		_ = conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": -32602, "message": "invalid params"},
		})
		return
	}
	_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": 100 + idx})

	if m.script != nil {
		m.script(idx, conn)
	}
}

func (m *mockRPC) subscribeParams() []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]json.RawMessage(nil), m.requests...)
}

func notification(sig string, slot uint64) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]any{
			"subscription": 100,
			"result": map[string]any{
				"context": map[string]any{"slot": slot},
				"value": map[string]any{
					"signature": sig,
					"logs":      []string{"Program log: hi"},
					"err":       nil,
				},
			},
		},
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Mentions = []string{"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"}
	cfg.InitialBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 20 * time.Millisecond
	cfg.MaxReconnectAttempts = 3
	return cfg
}

type recorder struct {
	mu     sync.Mutex
	sigs   []string
	states []State
}

func (r *recorder) handle(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sigs = append(r.sigs, n.Signature)
}

func (r *recorder) state(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) signatures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sigs...)
}

func (r *recorder) sawState(s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.states {
		if st == s {
			return true
		}
	}
	return false
}

func TestChannelDeliversInOrder(t *testing.T) {
	block := make(chan struct{})
	mock := &mockRPC{t: t, script: func(_ int, conn *websocket.Conn) {
		for i := 0; i < 5; i++ {
			_ = conn.WriteJSON(notification(fmt.Sprintf("sig-%d", i), uint64(i)))
		}
		// Noise that must be skipped.
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","method":"slotNotification"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		<-block
	}}
	srv := httptest.NewServer(mock)
	defer srv.Close()
	defer close(block)

	rec := &recorder{}
	ch := NewChannel(testConfig(wsURL(srv)), rec.handle, rec.state, zaptest.NewLogger(t))
	require.NoError(t, ch.Start(context.Background()))
	defer ch.Stop()

	require.Eventually(t, func() bool { return len(rec.signatures()) == 5 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"sig-0", "sig-1", "sig-2", "sig-3", "sig-4"}, rec.signatures())
	assert.Equal(t, StateLive, ch.State())
}

func TestChannelResubscribesAfterDrop(t *testing.T) {
	block := make(chan struct{})
	mock := &mockRPC{t: t}
	mock.script = func(idx int, conn *websocket.Conn) {
		if idx == 0 {
			_ = conn.WriteJSON(notification("before-drop", 1))
			return
		}
		_ = conn.WriteJSON(notification("after-drop", 2))
		<-block
	}
	srv := httptest.NewServer(mock)
	defer srv.Close()
	defer close(block)

	rec := &recorder{}
	ch := NewChannel(testConfig(wsURL(srv)), rec.handle, rec.state, zaptest.NewLogger(t))
	require.NoError(t, ch.Start(context.Background()))
	defer ch.Stop()

	require.Eventually(t, func() bool { return len(rec.signatures()) == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"before-drop", "after-drop"}, rec.signatures())
	assert.True(t, rec.sawState(StateReconnecting))

	params := mock.subscribeParams()
	require.Len(t, params, 2)
	assert.JSONEq(t, string(params[0]), string(params[1]))
	assert.Contains(t, string(params[0]), "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
}

func TestChannelDegradesAfterMaxAttempts(t *testing.T) {
	mock := &mockRPC{t: t, reject: true}
	srv := httptest.NewServer(mock)
	defer srv.Close()

	rec := &recorder{}
	ch := NewChannel(testConfig(wsURL(srv)), rec.handle, rec.state, zaptest.NewLogger(t))
	require.NoError(t, ch.Start(context.Background()))

	require.Eventually(t, func() bool { return ch.State() == StateDegraded }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(3), ch.Attempts())
	assert.True(t, rec.sawState(StateDegraded))
	assert.Empty(t, rec.signatures())

	ch.Stop()
	ch.Stop()
}

func TestChannelStartTwiceAndStopBeforeStart(t *testing.T) {
	rec := &recorder{}

	idle := NewChannel(testConfig("ws://127.0.0.1:1"), rec.handle, nil, zaptest.NewLogger(t))
	idle.Stop()
	assert.Equal(t, StateStopped, idle.State())
	assert.ErrorIs(t, idle.Start(context.Background()), ErrAlreadyStarted)

	block := make(chan struct{})
	mock := &mockRPC{t: t, script: func(int, *websocket.Conn) { <-block }}
	srv := httptest.NewServer(mock)
	defer srv.Close()
	defer close(block)

	ch := NewChannel(testConfig(wsURL(srv)), rec.handle, nil, zaptest.NewLogger(t))
	require.NoError(t, ch.Start(context.Background()))
	assert.ErrorIs(t, ch.Start(context.Background()), ErrAlreadyStarted)

	require.Eventually(t, func() bool { return ch.State() == StateLive }, 2*time.Second, 10*time.Millisecond)
	ch.Stop()
	assert.Equal(t, StateStopped, ch.State())
}

func TestParseNotificationFailedTx(t *testing.T) {
	raw := `{"jsonrpc":"2.0","method":"logsNotification","params":{"subscription":1,"result":{"context":{"slot":7},"value":{"signature":"abc","logs":[],"err":{"InstructionError":[0,"Custom"]}}}}}`
	n, ok := parseNotification([]byte(raw))
	require.True(t, ok)
	assert.Equal(t, uint64(7), n.Slot)
	assert.True(t, n.Failed())
}
