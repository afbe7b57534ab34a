// internal/service/api.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/pumpwatch/internal/alerts"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/events"
	"github.com/rovshanmuradov/pumpwatch/internal/feed"
	"github.com/rovshanmuradov/pumpwatch/internal/monitor"
	"github.com/rovshanmuradov/pumpwatch/internal/orders"
	"github.com/rovshanmuradov/pumpwatch/internal/storage"
)

// OnNewToken subscribes to first-seen tokens.
func (c *Core) OnNewToken(h events.Handler[domain.NewToken]) events.Unsubscribe {
	return c.pipeline.Tokens().Subscribe(h)
}

// OnTrade subscribes to deduplicated trades.
func (c *Core) OnTrade(h events.Handler[domain.Trade]) events.Unsubscribe {
	return c.pipeline.Trades().Subscribe(h)
}

// OnAlert subscribes to triggered alerts.
func (c *Core) OnAlert(h events.Handler[alerts.Alert]) events.Unsubscribe {
	return c.alerts.OnTriggered(h)
}

// OnOrderUpdate subscribes to order status transitions.
func (c *Core) OnOrderUpdate(h events.Handler[orders.Order]) events.Unsubscribe {
	return c.orders.OnUpdate(h)
}

func (c *Core) CreateAlert(req alerts.CreateRequest) (alerts.Alert, error) {
	return c.alerts.Create(req)
}

// CancelAlert reports whether an active alert was cancelled.
func (c *Core) CancelAlert(id string) bool {
	return c.alerts.Cancel(id)
}

func (c *Core) GetAlert(id string) (alerts.Alert, error) {
	return c.alerts.Get(id)
}

func (c *Core) ListAlerts(f alerts.Filter) []alerts.Alert {
	return c.alerts.List(f)
}

func (c *Core) CreateStopLoss(req orders.CreateRequest) (orders.Order, error) {
	return c.orders.CreateStopLoss(req)
}

func (c *Core) CreateTakeProfit(req orders.CreateRequest) (orders.Order, error) {
	return c.orders.CreateTakeProfit(req)
}

// CreateTrailingStop registers a trailing stop. Without an explicit
// ReferencePrice the peak starts at the latest known price of the mint,
// fetched from the price source when the mint is not watched yet.
func (c *Core) CreateTrailingStop(ctx context.Context, req orders.TrailingRequest) (orders.Order, error) {
	if !req.ReferencePrice.IsPositive() && req.Mint != "" {
		price, err := c.referencePrice(ctx, req.Mint)
		if err != nil {
			return orders.Order{}, err
		}
		req.ReferencePrice = price
	}
	return c.orders.CreateTrailingStop(req)
}

func (c *Core) referencePrice(ctx context.Context, mint string) (decimal.Decimal, error) {
	if s, ok := c.poller.Latest(mint); ok && s.Price > 0 {
		return decimal.NewFromFloat(s.Price), nil
	}

	timeout := c.deps.Poller.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	q, err := c.deps.Source.FetchPrice(fetchCtx, mint)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w %s: %w", ErrNoReferencePrice, mint, err)
	}
	if q.Price <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w %s", ErrNoReferencePrice, mint)
	}
	return decimal.NewFromFloat(q.Price), nil
}

func (c *Core) CancelOrder(ctx context.Context, id string) (orders.Order, error) {
	return c.orders.Cancel(ctx, id)
}

func (c *Core) GetOrder(id string) (orders.Order, error) {
	return c.orders.Get(id)
}

func (c *Core) ListOrders(f orders.Filter) []orders.Order {
	return c.orders.List(f)
}

// RecentTokens returns up to limit tokens created within window, newest
// first. A zero window means no age bound.
func (c *Core) RecentTokens(ctx context.Context, limit int, window time.Duration) ([]domain.NewToken, error) {
	return c.deps.Store.RecentTokens(ctx, c.query(limit, window))
}

// RecentTrades returns up to limit trades within window, newest first. An
// empty mint matches every mint.
func (c *Core) RecentTrades(ctx context.Context, mint string, limit int, window time.Duration) ([]domain.Trade, error) {
	return c.deps.Store.RecentTrades(ctx, mint, c.query(limit, window))
}

func (c *Core) query(limit int, window time.Duration) storage.Query {
	q := storage.Query{Limit: limit}
	if window > 0 {
		q.Since = c.clock().Add(-window)
	}
	return q
}

func (c *Core) FeedState() feed.State {
	return c.channel.State()
}

// WatchStatus reports the poll state of a watched mint.
func (c *Core) WatchStatus(mint string) (monitor.Status, bool) {
	return c.poller.Status(mint)
}

// Watched lists the mints currently under price observation.
func (c *Core) Watched() []string {
	return c.poller.Watched()
}
