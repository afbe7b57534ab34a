// internal/sink/kafka/sink.go
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/metrics"
)

// Config configures the sink.
type Config struct {
	Brokers    []string
	TradeTopic string
	TokenTopic string
	// Async writes return immediately; failures are logged from the
	// completion callback.
	Async        bool
	BatchTimeout time.Duration
}

// MessageWriter is the subset of *kafka.Writer used by the sink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink exports decoded events to Kafka, keyed by mint so every event of a
// token lands on one partition.
type Sink struct {
	trades  MessageWriter
	tokens  MessageWriter
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a sink with one writer per topic.
func New(cfg Config, m *metrics.Metrics, logger *zap.Logger) *Sink {
	logger = logger.Named("kafka")
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}

	newWriter := func(topic string) *kafka.Writer {
		w := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        cfg.Async,
			BatchTimeout: cfg.BatchTimeout,
		}
		if cfg.Async {
			w.Completion = func(msgs []kafka.Message, err error) {
				if err == nil {
					return
				}
				m.SinkError()
				logger.Warn("Failed to deliver events",
					zap.String("topic", topic),
					zap.Int("messages", len(msgs)),
					zap.Error(err))
			}
		}
		return w
	}

	return NewWithWriters(newWriter(cfg.TradeTopic), newWriter(cfg.TokenTopic), m, logger)
}

// NewWithWriters creates a sink over the given writers.
func NewWithWriters(trades, tokens MessageWriter, m *metrics.Metrics, logger *zap.Logger) *Sink {
	return &Sink{trades: trades, tokens: tokens, metrics: m, logger: logger}
}

// HandleTrade publishes a trade. It matches the fan-out handler signature.
func (s *Sink) HandleTrade(ctx context.Context, t domain.Trade) error {
	return s.write(ctx, s.trades, t.EventMeta, t)
}

// HandleToken publishes a new token.
func (s *Sink) HandleToken(ctx context.Context, t domain.NewToken) error {
	return s.write(ctx, s.tokens, t.EventMeta, t)
}

func (s *Sink) write(ctx context.Context, w MessageWriter, meta domain.EventMeta, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(meta.Mint),
		Value: data,
		Time:  meta.Timestamp,
		Headers: []kafka.Header{
			{Key: "signature", Value: []byte(meta.Signature)},
		},
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		s.metrics.SinkError()
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

// Close flushes and closes both writers.
func (s *Sink) Close() error {
	err1 := s.trades.Close()
	err2 := s.tokens.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
