// internal/ingest/pipeline.go
package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/dedup"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/events"
	"github.com/rovshanmuradov/pumpwatch/internal/feed"
	"github.com/rovshanmuradov/pumpwatch/internal/metrics"
	"github.com/rovshanmuradov/pumpwatch/internal/storage"
)

// Decoder turns a log notification into at most one event.
type Decoder interface {
	Decode(n feed.Notification) (domain.Event, bool)
}

// Pipeline takes raw notifications through decode, dedup, store and fan-out.
// Handle is called from the feed goroutine, one notification at a time.
type Pipeline struct {
	decoder      Decoder
	seen         *dedup.Cache
	store        storage.EventStore
	storeTimeout time.Duration

	tokens *events.Registry[domain.NewToken]
	trades *events.Registry[domain.Trade]

	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a pipeline. store may be nil.
func New(decoder Decoder, seen *dedup.Cache, store storage.EventStore, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	logger = logger.Named("ingest")
	return &Pipeline{
		decoder:      decoder,
		seen:         seen,
		store:        store,
		storeTimeout: 5 * time.Second,
		tokens:       events.NewRegistry[domain.NewToken]("tokens", logger),
		trades:       events.NewRegistry[domain.Trade]("trades", logger),
		metrics:      m,
		logger:       logger,
	}
}

// Tokens is the fan-out of first-seen tokens.
func (p *Pipeline) Tokens() *events.Registry[domain.NewToken] { return p.tokens }

// Trades is the fan-out of deduplicated trades.
func (p *Pipeline) Trades() *events.Registry[domain.Trade] { return p.trades }

// Handle processes one notification. It never returns an error: every
// failure is logged and counted.
func (p *Pipeline) Handle(ctx context.Context, n feed.Notification) {
	p.metrics.Notification()

	ev, ok := p.decoder.Decode(n)
	if !ok {
		p.metrics.Skipped()
		return
	}
	kind := ev.Kind().String()
	p.metrics.Decoded(kind)

	switch e := ev.(type) {
	case domain.Trade:
		if p.seen.Seen(dedup.TradeKey(e.Signature)) {
			p.duplicate(kind, e.EventMeta)
			return
		}
		p.save(ctx, kind, func(ctx context.Context) error { return p.store.SaveTrade(ctx, e) })
		p.metrics.HandlerFailed("trades", p.trades.Publish(ctx, e))

	case domain.NewToken:
		if p.seen.Seen(dedup.TokenKey(e.Mint)) {
			p.duplicate(kind, e.EventMeta)
			return
		}
		p.save(ctx, kind, func(ctx context.Context) error { return p.store.SaveToken(ctx, e) })
		p.logger.Info("New token",
			zap.String("mint", e.Mint),
			zap.String("symbol", e.Symbol),
			zap.String("name", e.Name))
		p.metrics.HandlerFailed("tokens", p.tokens.Publish(ctx, e))
	}
}

func (p *Pipeline) duplicate(kind string, meta domain.EventMeta) {
	p.metrics.Duplicate(kind)
	p.logger.Debug("Duplicate event suppressed",
		zap.String("kind", kind),
		zap.String("signature", meta.Signature),
		zap.String("mint", meta.Mint))
}

func (p *Pipeline) save(ctx context.Context, kind string, fn func(context.Context) error) {
	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		p.metrics.StoreError(kind)
		p.logger.Error("Failed to store event", zap.String("kind", kind), zap.Error(err))
	}
}
