// internal/ingest/pipeline_test.go
package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/dedup"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/feed"
	"github.com/rovshanmuradov/pumpwatch/internal/metrics"
	"github.com/rovshanmuradov/pumpwatch/internal/storage"
	"github.com/rovshanmuradov/pumpwatch/internal/storage/memory"
)

// fakeDecoder maps signatures to events.
type fakeDecoder map[string]domain.Event

func (f fakeDecoder) Decode(n feed.Notification) (domain.Event, bool) {
	ev, ok := f[n.Signature]
	return ev, ok
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func tradeEvent(sig, mint string) domain.Trade {
	return domain.Trade{EventMeta: domain.EventMeta{Mint: mint, Signature: sig, Timestamp: t0}, Side: domain.SideBuy, PriceInQuote: 1}
}

func tokenEvent(sig, mint string) domain.NewToken {
	return domain.NewToken{EventMeta: domain.EventMeta{Mint: mint, Signature: sig, Timestamp: t0}, Symbol: "PUMP"}
}

func TestDuplicateTradeDeliveredOnce(t *testing.T) {
	dec := fakeDecoder{"S1": tradeEvent("S1", "mintA")}
	store := memory.New(10, 10)
	m := metrics.New(prometheus.NewRegistry())
	p := New(dec, dedup.New(100, time.Hour), store, m, zap.NewNop())

	var got []domain.Trade
	p.Trades().SubscribeFunc(func(_ context.Context, tr domain.Trade) error {
		got = append(got, tr)
		return nil
	})

	p.Handle(context.Background(), feed.Notification{Signature: "S1"})
	p.Handle(context.Background(), feed.Notification{Signature: "S1"})

	require.Len(t, got, 1)
	assert.Equal(t, "S1", got[0].Signature)

	stored, err := store.RecentTrades(context.Background(), "mintA", storage.Query{})
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Notifications))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Duplicates.WithLabelValues("trade")))
}

func TestTokenFirstSeenOnly(t *testing.T) {
	dec := fakeDecoder{
		"S1": tokenEvent("S1", "mintA"),
		"S2": tokenEvent("S2", "mintA"),
		"S3": tokenEvent("S3", "mintB"),
	}
	p := New(dec, dedup.New(100, time.Hour), nil, nil, zap.NewNop())

	var mints []string
	p.Tokens().SubscribeFunc(func(_ context.Context, tok domain.NewToken) error {
		mints = append(mints, tok.Mint)
		return nil
	})

	for _, sig := range []string{"S1", "S2", "S3"} {
		p.Handle(context.Background(), feed.Notification{Signature: sig})
	}
	assert.Equal(t, []string{"mintA", "mintB"}, mints)
}

func TestUndecodableSkipped(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	p := New(fakeDecoder{}, dedup.New(10, time.Hour), nil, m, zap.NewNop())

	called := false
	p.Trades().SubscribeFunc(func(context.Context, domain.Trade) error {
		called = true
		return nil
	})

	p.Handle(context.Background(), feed.Notification{Signature: "garbage"})
	assert.False(t, called)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeSkipped))
}

type failingStore struct {
	storage.EventStore
}

func (failingStore) SaveTrade(context.Context, domain.Trade) error {
	return errors.New("disk full")
}

func TestStoreErrorStillPublishes(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	p := New(fakeDecoder{"S1": tradeEvent("S1", "mintA")}, dedup.New(10, time.Hour), failingStore{}, m, zap.NewNop())

	delivered := 0
	p.Trades().SubscribeFunc(func(context.Context, domain.Trade) error {
		delivered++
		return nil
	})

	p.Handle(context.Background(), feed.Notification{Signature: "S1"})
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("trade")))
}

func TestHandlerFailureCounted(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	p := New(fakeDecoder{"S1": tradeEvent("S1", "mintA")}, dedup.New(10, time.Hour), nil, m, zap.NewNop())

	second := false
	p.Trades().SubscribeFunc(func(context.Context, domain.Trade) error { panic("boom") })
	p.Trades().SubscribeFunc(func(context.Context, domain.Trade) error {
		second = true
		return nil
	})

	p.Handle(context.Background(), feed.Notification{Signature: "S1"})
	assert.True(t, second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandlerFailures.WithLabelValues("trades")))
}
