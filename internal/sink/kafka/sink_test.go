// internal/sink/kafka/sink_test.go
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestSinkWritesKeyedMessages(t *testing.T) {
	trades, tokens := &fakeWriter{}, &fakeWriter{}
	s := NewWithWriters(trades, tokens, nil, zap.NewNop())

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	trade := domain.Trade{
		EventMeta:    domain.EventMeta{Mint: "mintA", Signature: "S1", Timestamp: at},
		Side:         domain.SideBuy,
		PriceInQuote: 3e-8,
	}
	require.NoError(t, s.HandleTrade(context.Background(), trade))
	require.NoError(t, s.HandleToken(context.Background(), domain.NewToken{
		EventMeta: domain.EventMeta{Mint: "mintB", Signature: "S2", Timestamp: at},
		Symbol:    "PUMP",
	}))

	require.Len(t, trades.msgs, 1)
	msg := trades.msgs[0]
	assert.Equal(t, "mintA", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, "S1", string(msg.Headers[0].Value))

	var decoded domain.Trade
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, trade, decoded)

	require.Len(t, tokens.msgs, 1)
	assert.Equal(t, "mintB", string(tokens.msgs[0].Key))

	require.NoError(t, s.Close())
	assert.True(t, trades.closed)
	assert.True(t, tokens.closed)
}

func TestSinkWriteError(t *testing.T) {
	s := NewWithWriters(&fakeWriter{err: errors.New("broker down")}, &fakeWriter{}, nil, zap.NewNop())
	err := s.HandleTrade(context.Background(), domain.Trade{EventMeta: domain.EventMeta{Mint: "m"}})
	assert.ErrorContains(t, err, "broker down")
}

func TestNewConfiguresWriters(t *testing.T) {
	s := New(Config{Brokers: []string{"localhost:9092"}, TradeTopic: "trades", TokenTopic: "tokens", Async: true}, nil, zap.NewNop())

	w, ok := s.trades.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "trades", w.Topic)
	assert.True(t, w.Async)
	assert.NotNil(t, w.Completion)
	assert.Equal(t, "tokens", s.tokens.(*kafka.Writer).Topic)
}
