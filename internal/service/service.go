// internal/service/service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/alerts"
	"github.com/rovshanmuradov/pumpwatch/internal/dedup"
	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/feed"
	"github.com/rovshanmuradov/pumpwatch/internal/ingest"
	"github.com/rovshanmuradov/pumpwatch/internal/metrics"
	"github.com/rovshanmuradov/pumpwatch/internal/monitor"
	"github.com/rovshanmuradov/pumpwatch/internal/orders"
	"github.com/rovshanmuradov/pumpwatch/internal/pricing"
	"github.com/rovshanmuradov/pumpwatch/internal/storage"
)

// SampleSourceTrade marks samples derived from observed trades.
const SampleSourceTrade = "trade"

var ErrNoReferencePrice = errors.New("no reference price for mint")

// EventSink receives every deduplicated event, for example a message broker.
type EventSink interface {
	HandleTrade(ctx context.Context, t domain.Trade) error
	HandleToken(ctx context.Context, t domain.NewToken) error
}

// Deps holds everything the core is assembled from.
type Deps struct {
	Feed    feed.Config
	Decoder ingest.Decoder
	Dedup   *dedup.Cache
	Store   storage.EventStore
	Source  pricing.Source
	// Volume is fed with trades when set.
	Volume   *pricing.VolumeTracker
	Executor orders.Executor
	Sinks    []EventSink

	Poller monitor.Config
	Orders orders.Config

	// EvaluateOnTrades turns trades on watched mints into price samples.
	EvaluateOnTrades bool
	// Retention bounds stored events by age. Zero keeps everything.
	Retention     time.Duration
	PruneInterval time.Duration

	Clock   func() time.Time
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Core ties the event pipeline, the price poller and the alert and order
// engines together and exposes the consumer API.
type Core struct {
	deps     Deps
	clock    func() time.Time
	pipeline *ingest.Pipeline
	poller   *monitor.Poller
	alerts   *alerts.Engine
	orders   *orders.Engine
	channel  *feed.Channel
	logger   *zap.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New assembles a core. Nothing runs until Start.
func New(d Deps) (*Core, error) {
	switch {
	case d.Decoder == nil:
		return nil, errors.New("service: decoder is required")
	case d.Dedup == nil:
		return nil, errors.New("service: dedup cache is required")
	case d.Store == nil:
		return nil, errors.New("service: event store is required")
	case d.Source == nil:
		return nil, errors.New("service: price source is required")
	case d.Executor == nil:
		return nil, errors.New("service: executor is required")
	case d.Logger == nil:
		return nil, errors.New("service: logger is required")
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.PruneInterval <= 0 {
		d.PruneInterval = 10 * time.Minute
	}
	if d.Poller.Clock == nil {
		d.Poller.Clock = d.Clock
	}
	if d.Orders.Clock == nil {
		d.Orders.Clock = d.Clock
	}

	c := &Core{
		deps:   d,
		clock:  d.Clock,
		logger: d.Logger.Named("service"),
	}

	source := d.Source
	if d.Volume != nil {
		source = pricing.WithVolume(source, d.Volume)
	}

	c.pipeline = ingest.New(d.Decoder, d.Dedup, d.Store, d.Metrics, d.Logger)
	c.poller = monitor.NewPoller(d.Poller, source, c.handleSample, d.Metrics, d.Logger)
	c.alerts = alerts.NewEngine(c.poller, d.Clock, d.Metrics, d.Logger)
	c.orders = orders.NewEngine(d.Orders, c.poller, d.Executor, d.Metrics, d.Logger)
	c.channel = feed.NewChannel(d.Feed, c.pipeline.Handle, c.feedStateChanged, d.Logger)

	if d.Volume != nil {
		c.pipeline.Trades().SubscribeFunc(d.Volume.HandleTrade)
	}
	for _, s := range d.Sinks {
		c.pipeline.Trades().SubscribeFunc(s.HandleTrade)
		c.pipeline.Tokens().SubscribeFunc(s.HandleToken)
	}
	if d.EvaluateOnTrades {
		c.pipeline.Trades().SubscribeFunc(c.offerTrade)
	}
	return c, nil
}

// Start begins polling watched mints, opens the chain subscription and starts
// retention pruning.
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.New("service: already started")
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.poller.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start poller: %w", err)
	}
	if err := c.channel.Start(runCtx); err != nil {
		cancel()
		c.poller.Stop()
		return fmt.Errorf("start feed: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runMaintenance(runCtx)
	}()

	c.logger.Info("Service started",
		zap.Strings("mentions", c.deps.Feed.Mentions),
		zap.Bool("evaluate_on_trades", c.deps.EvaluateOnTrades),
		zap.Duration("retention", c.deps.Retention))
	return nil
}

// Stop closes the subscription, stops every background task and waits for
// order executions already in flight to record their result. It returns
// ctx.Err() if ctx expires first.
func (c *Core) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.channel.Stop()
		if cancel != nil {
			cancel()
		}
		c.poller.Stop()
		c.wg.Wait()
		c.orders.Wait()
	}()

	select {
	case <-done:
		c.logger.Info("Service stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleNotification pushes one notification through the pipeline. The
// subscription channel calls it for every live notification.
func (c *Core) HandleNotification(ctx context.Context, n feed.Notification) {
	c.pipeline.Handle(ctx, n)
}

func (c *Core) handleSample(ctx context.Context, s domain.PriceSample) {
	c.alerts.Evaluate(ctx, s)
	c.orders.Evaluate(ctx, s)
}

func (c *Core) offerTrade(ctx context.Context, t domain.Trade) error {
	if t.PriceInQuote <= 0 {
		return nil
	}
	marketCap := t.PriceInQuote * pumpfun.TotalSupplyTokens
	s := domain.PriceSample{
		Mint:       t.Mint,
		Price:      t.PriceInQuote,
		MarketCap:  &marketCap,
		ObservedAt: c.clock(),
		Source:     SampleSourceTrade,
	}
	if c.deps.Volume != nil {
		v := c.deps.Volume.Volume(t.Mint)
		s.Volume = &v
	}
	c.poller.Offer(ctx, s)
	return nil
}

func (c *Core) feedStateChanged(s feed.State) {
	c.deps.Metrics.SetFeedState(string(s))
	if s == feed.StateDegraded {
		c.logger.Error("Chain subscription degraded, no new events will arrive")
		return
	}
	c.logger.Info("Chain subscription state changed", zap.String("state", string(s)))
}

func (c *Core) runMaintenance(ctx context.Context) {
	ticker := time.NewTicker(c.deps.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.prune(ctx)
		}
	}
}

func (c *Core) prune(ctx context.Context) {
	if c.deps.Volume != nil {
		c.deps.Volume.Prune()
	}
	if c.deps.Retention <= 0 {
		return
	}
	before := c.clock().Add(-c.deps.Retention)
	removed, err := c.deps.Store.Prune(ctx, before)
	if err != nil {
		c.deps.Metrics.StoreError("prune")
		c.logger.Warn("Failed to prune stored events", zap.Error(err))
		return
	}
	if removed > 0 {
		c.logger.Debug("Pruned stored events",
			zap.Int64("removed", removed),
			zap.Time("before", before))
	}
}
