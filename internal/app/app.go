// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/blockchain/solbc"
	"github.com/rovshanmuradov/pumpwatch/internal/config"
	"github.com/rovshanmuradov/pumpwatch/internal/dedup"
	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/pumpwatch/internal/execution"
	"github.com/rovshanmuradov/pumpwatch/internal/feed"
	"github.com/rovshanmuradov/pumpwatch/internal/metrics"
	"github.com/rovshanmuradov/pumpwatch/internal/monitor"
	"github.com/rovshanmuradov/pumpwatch/internal/orders"
	"github.com/rovshanmuradov/pumpwatch/internal/pricing"
	"github.com/rovshanmuradov/pumpwatch/internal/service"
	kafkasink "github.com/rovshanmuradov/pumpwatch/internal/sink/kafka"
	"github.com/rovshanmuradov/pumpwatch/internal/storage"
	"github.com/rovshanmuradov/pumpwatch/internal/storage/memory"
	"github.com/rovshanmuradov/pumpwatch/internal/storage/postgres"
)

// App is a fully wired service core together with the resources it owns.
type App struct {
	Core    *service.Core
	Metrics *metrics.Metrics

	store  storage.EventStore
	sink   *kafkasink.Sink
	logger *zap.Logger
}

// Build assembles every component described by cfg. Collectors are registered
// on reg.
func Build(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (*App, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program_id: %w", err)
	}

	m := metrics.New(reg)
	a := &App{Metrics: m, logger: logger.Named("app")}

	source, err := buildSource(cfg, programID, logger)
	if err != nil {
		return nil, err
	}

	a.store, err = buildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var sinks []service.EventSink
	if cfg.Kafka.Enabled {
		a.sink = kafkasink.New(kafkasink.Config{
			Brokers:    cfg.Kafka.Brokers,
			TradeTopic: cfg.Kafka.TradeTopic,
			TokenTopic: cfg.Kafka.TokenTopic,
			Async:      cfg.Kafka.Async,
		}, m, logger)
		sinks = append(sinks, a.sink)
	}

	a.Core, err = service.New(service.Deps{
		Feed:             feedConfig(cfg, programID),
		Decoder:          pumpfun.NewDecoder(programID),
		Dedup:            dedup.New(cfg.Dedup.Size, cfg.Dedup.TTL),
		Store:            a.store,
		Source:           source,
		Volume:           pricing.NewVolumeTracker(cfg.Pricing.VolumeWindow, nil),
		Executor:         buildExecutor(cfg, logger),
		Sinks:            sinks,
		Poller:           monitor.Config{Interval: cfg.Poller.Interval, FetchTimeout: cfg.Poller.FetchTimeout},
		Orders:           orders.Config{ExecutionTimeout: cfg.Orders.ExecutionTimeout},
		EvaluateOnTrades: cfg.Orders.EvaluateOnTrades,
		Retention:        cfg.Storage.Retention,
		PruneInterval:    cfg.Storage.PruneInterval,
		Metrics:          m,
		Logger:           logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.logger.Info("Components assembled",
		zap.String("program_id", programID.String()),
		zap.String("price_source", source.Name()),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("executor", cfg.Orders.Executor),
		zap.Bool("kafka", cfg.Kafka.Enabled))
	return a, nil
}

// Close releases the store and the sink. Call after the core is stopped.
func (a *App) Close() error {
	var errs []error
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka sink: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func feedConfig(cfg *config.Config, programID solana.PublicKey) feed.Config {
	fc := feed.DefaultConfig()
	fc.URL = cfg.WebSocketURL
	fc.Mentions = []string{programID.String()}
	fc.Commitment = cfg.Commitment
	fc.InitialBackoff = cfg.Feed.InitialBackoff
	fc.MaxBackoff = cfg.Feed.MaxBackoff
	fc.MaxReconnectAttempts = cfg.Feed.MaxReconnectAttempts
	if cfg.Feed.PingInterval > 0 {
		fc.PingInterval = cfg.Feed.PingInterval
	}
	if cfg.Feed.ReadTimeout > 0 {
		fc.ReadTimeout = cfg.Feed.ReadTimeout
	}
	return fc
}

func buildSource(cfg *config.Config, programID solana.PublicKey, logger *zap.Logger) (pricing.Source, error) {
	bondingCurve := func() (pricing.Source, error) {
		client, err := solbc.NewClient(cfg.RPCList, solbc.Options{
			RetryAttempts:  cfg.Retries,
			RequestTimeout: cfg.Poller.FetchTimeout,
			Commitment:     rpc.CommitmentType(cfg.Commitment),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create rpc client: %w", err)
		}
		return pricing.NewBondingCurveSource(client, programID), nil
	}
	httpSource := func() pricing.Source {
		return pricing.NewHTTPSource(cfg.Pricing.APIURL, cfg.Poller.FetchTimeout, cfg.Retries)
	}

	switch cfg.Pricing.Source {
	case config.SourceHTTP:
		return httpSource(), nil
	case config.SourceBondingCurveHTTP:
		primary, err := bondingCurve()
		if err != nil {
			return nil, err
		}
		return pricing.Fallback(primary, httpSource()), nil
	default:
		return bondingCurve()
	}
}

func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.EventStore, error) {
	if cfg.Storage.Driver != config.DriverPostgres {
		return memory.New(cfg.Storage.TokenCapacity, cfg.Storage.TradeCapacity), nil
	}

	store, err := postgres.NewStore(ctx, cfg.Storage.PostgresURL, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return store, nil
}

func buildExecutor(cfg *config.Config, logger *zap.Logger) orders.Executor {
	if cfg.Orders.Executor == config.ExecutorHTTP {
		return execution.NewHTTPExecutor(execution.HTTPConfig{
			URL:     cfg.Orders.ExecutorURL,
			APIKey:  cfg.Orders.ExecutorAPIKey,
			Timeout: cfg.Orders.ExecutionTimeout,
		}, logger)
	}
	return execution.NewDryRunExecutor(logger)
}
