// internal/tui/tui_test.go
package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/alerts"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/events"
	"github.com/rovshanmuradov/pumpwatch/internal/export"
	"github.com/rovshanmuradov/pumpwatch/internal/feed"
	"github.com/rovshanmuradov/pumpwatch/internal/logger"
	"github.com/rovshanmuradov/pumpwatch/internal/monitor"
	"github.com/rovshanmuradov/pumpwatch/internal/orders"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeBackend struct {
	state feed.State
	refs  map[string]int
}

func (f *fakeBackend) FeedState() feed.State { return f.state }

func (f *fakeBackend) Watched() []string {
	out := make([]string, 0, len(f.refs))
	for m := range f.refs {
		out = append(out, m)
	}
	return out
}

func (f *fakeBackend) WatchStatus(mint string) (monitor.Status, bool) {
	refs, ok := f.refs[mint]
	return monitor.Status{Mint: mint, Refs: refs}, ok
}

type fakeEvents struct {
	tokens *events.Registry[domain.NewToken]
	trades *events.Registry[domain.Trade]
	alerts *events.Registry[alerts.Alert]
	orders *events.Registry[orders.Order]
}

func newFakeEvents() *fakeEvents {
	l := zap.NewNop()
	return &fakeEvents{
		tokens: events.NewRegistry[domain.NewToken]("tokens", l),
		trades: events.NewRegistry[domain.Trade]("trades", l),
		alerts: events.NewRegistry[alerts.Alert]("alerts", l),
		orders: events.NewRegistry[orders.Order]("orders", l),
	}
}

func (f *fakeEvents) OnNewToken(h events.Handler[domain.NewToken]) events.Unsubscribe {
	return f.tokens.Subscribe(h)
}
func (f *fakeEvents) OnTrade(h events.Handler[domain.Trade]) events.Unsubscribe {
	return f.trades.Subscribe(h)
}
func (f *fakeEvents) OnAlert(h events.Handler[alerts.Alert]) events.Unsubscribe {
	return f.alerts.Subscribe(h)
}
func (f *fakeEvents) OnOrderUpdate(h events.Handler[orders.Order]) events.Unsubscribe {
	return f.orders.Subscribe(h)
}

func trade(sig string, side domain.Side, sol float64) domain.Trade {
	return domain.Trade{
		EventMeta:    domain.EventMeta{Mint: "MintAAAAAAAAAAAAAAAA", Signature: sig, Timestamp: t0},
		Side:         side,
		Trader:       "TraderBBBBBBBBBBBBBB",
		PriceInQuote: 0.00000003,
		QuoteAmount:  sol,
	}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelCountsEvents(t *testing.T) {
	backend := &fakeBackend{state: feed.StateLive, refs: map[string]int{"MintAAAAAAAAAAAAAAAA": 2}}
	m := New(Config{Backend: backend})

	m = update(t, m, TokenMsg{Token: domain.NewToken{EventMeta: domain.EventMeta{Mint: "m1", Timestamp: t0}, Symbol: "PUMP", Name: "Pump"}})
	m = update(t, m, TradeMsg{Trade: trade("s1", domain.SideBuy, 1.5)})
	m = update(t, m, TradeMsg{Trade: trade("s2", domain.SideSell, 0.5)})
	m = update(t, m, tickMsg(t0))

	assert.Equal(t, uint64(1), m.tokenCount)
	assert.Equal(t, uint64(2), m.tradeCount)
	assert.InDelta(t, 1.5, m.buyVolume, 1e-9)
	assert.Equal(t, "s2", m.trades[0].Signature)
	assert.Len(t, m.tokenTable.Rows(), 1)
	assert.Len(t, m.tradeTable.Rows(), 2)

	view := m.View()
	assert.Contains(t, view, "live")
	assert.Contains(t, view, "watched 1")
	assert.Contains(t, view, "PUMP")
}

func TestModelTabsAndPause(t *testing.T) {
	m := New(Config{})

	m = update(t, m, keyPress("tab"))
	assert.Equal(t, tabTrades, m.active)

	m = update(t, m, keyPress("p"))
	assert.True(t, m.paused)
	m = update(t, m, TradeMsg{Trade: trade("s1", domain.SideBuy, 1)})
	assert.Equal(t, uint64(1), m.tradeCount)
	assert.Empty(t, m.tradeTable.Rows())
	assert.Contains(t, m.View(), "PAUSED")

	m = update(t, m, keyPress("p"))
	assert.Len(t, m.tradeTable.Rows(), 1)

	m = update(t, m, keyPress("c"))
	assert.Empty(t, m.trades)
}

func TestModelPricesAndActivity(t *testing.T) {
	backend := &fakeBackend{state: feed.StateLive, refs: map[string]int{"mintA": 1}}
	m := New(Config{Backend: backend})

	for i, p := range []float64{1, 1.2, 1.5} {
		m = update(t, m, PriceMsg{Mint: "mintA", Price: p, At: t0.Add(time.Duration(i) * time.Second)})
	}
	rows := m.priceTable.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "+50.00", rows[0][3])
	assert.Equal(t, "refs=1 ok", rows[0][4])

	value := 2.5
	at := t0
	m = update(t, m, AlertMsg{Alert: alerts.Alert{Mint: "mintA", Type: alerts.TypePriceAbove, TargetValue: 2, TriggerValue: &value, TriggeredAt: &at}})
	m = update(t, m, OrderMsg{Order: orders.Order{Mint: "mintA", Kind: orders.KindStopLoss, Status: orders.StatusFailed, Error: "slippage", UpdatedAt: t0}})
	require.Len(t, m.activity, 2)
	assert.Contains(t, m.activity[0], "price_above")
	assert.Contains(t, m.activity[1], "slippage")

	for m.active != tabActivity {
		m = update(t, m, keyPress("tab"))
	}
	assert.Contains(t, m.View(), "slippage")
}

func TestModelLogsTab(t *testing.T) {
	buf := logger.NewBuffer(10)
	logger.NewBuffered(logger.Config{}, buf).Info("Feed state changed")

	m := New(Config{Logs: buf})
	for m.active != tabLogs {
		m = update(t, m, keyPress("tab"))
	}
	assert.Contains(t, m.View(), "Feed state changed")
}

func TestModelExport(t *testing.T) {
	dir := t.TempDir()
	m := New(Config{Exporter: export.NewTradeExporter(zap.NewNop()), ExportDir: dir})
	m = update(t, m, TradeMsg{Trade: trade("s1", domain.SideBuy, 1)})

	_, cmd := m.Update(keyPress("e"))
	require.NotNil(t, cmd)
	msg, ok := cmd().(exportedMsg)
	require.True(t, ok)
	require.NoError(t, msg.err)
	assert.True(t, strings.HasPrefix(msg.path, dir))

	m = update(t, m, msg)
	assert.Contains(t, m.View(), "exported")
}

func TestModelDailyReport(t *testing.T) {
	dir := t.TempDir()
	m := New(Config{Exporter: export.NewTradeExporter(zap.NewNop()), ExportDir: dir})

	_, cmd := m.Update(keyPress("r"))
	require.NotNil(t, cmd)
	msg, ok := cmd().(exportedMsg)
	require.True(t, ok)
	assert.Empty(t, msg.path)
	m = update(t, m, msg)
	assert.Contains(t, m.View(), "nothing to export")

	m = update(t, m, TradeMsg{Trade: trade("s1", domain.SideBuy, 1)})
	m = update(t, m, TradeMsg{Trade: trade("s2", domain.SideSell, 2)})

	_, cmd = m.Update(keyPress("r"))
	require.NotNil(t, cmd)
	msg, ok = cmd().(exportedMsg)
	require.True(t, ok)
	require.NoError(t, msg.err)
	assert.True(t, strings.HasSuffix(msg.path, "daily_report_20240501.json"), msg.path)
	assert.True(t, strings.HasPrefix(msg.path, dir))
}

func TestModelQuit(t *testing.T) {
	_, cmd := New(Config{}).Update(keyPress("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestBridgeForwardsEvents(t *testing.T) {
	ev := newFakeEvents()
	b := NewBridge(10, time.Hour, zap.NewNop())
	b.Attach(ev)

	ctx := context.Background()
	ev.tokens.Publish(ctx, domain.NewToken{EventMeta: domain.EventMeta{Mint: "m1"}})
	ev.trades.Publish(ctx, trade("s1", domain.SideBuy, 1))
	ev.trades.Publish(ctx, trade("s2", domain.SideBuy, 1))

	listen := b.Listen()
	assert.IsType(t, TokenMsg{}, listen())
	assert.IsType(t, TradeMsg{}, listen())
	assert.IsType(t, PriceMsg{}, listen())
	assert.IsType(t, TradeMsg{}, listen())
	assert.Equal(t, 1, b.throttle.Pending())

	b.Close()
	ev.alerts.Publish(ctx, alerts.Alert{})
	sent, dropped := b.Stats()
	assert.Equal(t, uint64(4), sent)
	assert.Zero(t, dropped)
}

func TestBridgeDropsWhenFull(t *testing.T) {
	b := NewBridge(1, time.Hour, zap.NewNop())
	assert.True(t, b.Send(TokenMsg{}))
	assert.False(t, b.Send(TokenMsg{}))
	_, dropped := b.Stats()
	assert.Equal(t, uint64(1), dropped)
}

func TestPriceThrottler(t *testing.T) {
	now := t0
	var got []PriceMsg
	accept := true
	pt := NewPriceThrottler(100*time.Millisecond, func(msg tea.Msg) bool {
		if !accept {
			return false
		}
		got = append(got, msg.(PriceMsg))
		return true
	}, func() time.Time { return now })

	pt.Offer(PriceMsg{Mint: "a", Price: 1})
	pt.Offer(PriceMsg{Mint: "a", Price: 2})
	pt.Offer(PriceMsg{Mint: "a", Price: 3})
	pt.Offer(PriceMsg{Mint: "b", Price: 10})
	require.Len(t, got, 2)
	assert.Equal(t, 1, pt.Pending())

	pt.Flush()
	assert.Len(t, got, 2)

	now = now.Add(100 * time.Millisecond)
	accept = false
	pt.Flush()
	assert.Equal(t, 1, pt.Pending())

	accept = true
	pt.Flush()
	require.Len(t, got, 3)
	assert.Equal(t, 3.0, got[2].Price)
	assert.Zero(t, pt.Pending())

	sent, throttled := pt.Stats()
	assert.Equal(t, uint64(3), sent)
	assert.Equal(t, uint64(2), throttled)
}

func TestSparkline(t *testing.T) {
	s := NewSparkline(4)
	assert.Equal(t, "▁▁▁▁", s.View())

	for _, v := range []float64{1, 2, 3, 4, 5} {
		s.Add(v)
	}
	assert.Equal(t, "▁▃▅█", s.View())
	assert.InDelta(t, 150.0, s.ChangePercent(), 1e-9)
	assert.Equal(t, "↗", s.Trend())

	flat := NewSparkline(3)
	flat.Add(1)
	assert.Equal(t, "▅  ", flat.View())
}
