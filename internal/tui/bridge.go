// internal/tui/bridge.go
package tui

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/alerts"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/events"
	"github.com/rovshanmuradov/pumpwatch/internal/orders"
)

// Tea message types carrying pipeline events

type TokenMsg struct{ Token domain.NewToken }

type TradeMsg struct{ Trade domain.Trade }

type AlertMsg struct{ Alert alerts.Alert }

type OrderMsg struct{ Order orders.Order }

// PriceMsg is the throttled last traded price of a mint.
type PriceMsg struct {
	Mint  string
	Price float64
	At    time.Time
}

// Events is the consumer API the viewer subscribes to.
type Events interface {
	OnNewToken(h events.Handler[domain.NewToken]) events.Unsubscribe
	OnTrade(h events.Handler[domain.Trade]) events.Unsubscribe
	OnAlert(h events.Handler[alerts.Alert]) events.Unsubscribe
	OnOrderUpdate(h events.Handler[orders.Order]) events.Unsubscribe
}

// Bridge forwards pipeline events to the bubbletea program without ever
// blocking the publisher. Messages that do not fit the buffer are dropped and
// counted.
type Bridge struct {
	msgs     chan tea.Msg
	throttle *PriceThrottler
	logger   *zap.Logger

	sent    atomic.Uint64
	dropped atomic.Uint64

	mu     sync.Mutex
	unsubs []events.Unsubscribe
}

// NewBridge creates a bridge with a message buffer of the given size. Price
// updates per mint are limited to one per interval.
func NewBridge(buffer int, interval time.Duration, logger *zap.Logger) *Bridge {
	b := &Bridge{
		msgs:   make(chan tea.Msg, buffer),
		logger: logger.Named("tui-bridge"),
	}
	b.throttle = NewPriceThrottler(interval, b.Send, time.Now)
	return b
}

// Attach subscribes to every event stream of ev.
func (b *Bridge) Attach(ev Events) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.unsubs = append(b.unsubs,
		ev.OnNewToken(events.HandlerFunc[domain.NewToken](func(_ context.Context, t domain.NewToken) error {
			b.Send(TokenMsg{Token: t})
			return nil
		})),
		ev.OnTrade(events.HandlerFunc[domain.Trade](func(_ context.Context, t domain.Trade) error {
			b.Send(TradeMsg{Trade: t})
			b.throttle.Offer(PriceMsg{Mint: t.Mint, Price: t.PriceInQuote, At: t.Timestamp})
			return nil
		})),
		ev.OnAlert(events.HandlerFunc[alerts.Alert](func(_ context.Context, a alerts.Alert) error {
			b.Send(AlertMsg{Alert: a})
			return nil
		})),
		ev.OnOrderUpdate(events.HandlerFunc[orders.Order](func(_ context.Context, o orders.Order) error {
			b.Send(OrderMsg{Order: o})
			return nil
		})),
	)
}

// Send queues msg without blocking. It reports whether msg was queued.
func (b *Bridge) Send(msg tea.Msg) bool {
	select {
	case b.msgs <- msg:
		b.sent.Add(1)
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Listen returns a command waiting for the next message. Re-issue it after
// every delivered message.
func (b *Bridge) Listen() tea.Cmd {
	return func() tea.Msg {
		return <-b.msgs
	}
}

// Run flushes throttled price updates until ctx is done and periodically logs
// drop statistics.
func (b *Bridge) Run(ctx context.Context) {
	flush := time.NewTicker(b.throttle.interval)
	defer flush.Stop()
	stats := time.NewTicker(30 * time.Second)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flush.C:
			b.throttle.Flush()
		case <-stats.C:
			sent, dropped := b.Stats()
			if dropped > 0 {
				b.logger.Warn("UI update statistics",
					zap.Uint64("sent", sent),
					zap.Uint64("dropped", dropped),
					zap.Float64("drop_rate", float64(dropped)/float64(sent+dropped)*100))
			}
		}
	}
}

// Stats returns how many messages were queued and dropped.
func (b *Bridge) Stats() (sent, dropped uint64) {
	return b.sent.Load(), b.dropped.Load()
}

// Close removes every subscription.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.unsubs {
		u()
	}
	b.unsubs = nil
}
