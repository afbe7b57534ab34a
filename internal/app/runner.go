// internal/app/runner.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/pumpwatch/internal/alerts"
	"github.com/rovshanmuradov/pumpwatch/internal/config"
	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/events"
	"github.com/rovshanmuradov/pumpwatch/internal/logger"
	"github.com/rovshanmuradov/pumpwatch/internal/orders"
)

const shutdownTimeout = 15 * time.Second

// Run builds the application, serves metrics and blocks until SIGINT/SIGTERM
// or ctx cancellation.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := Build(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("Failed to release resources", zap.Error(err))
		}
	}()

	logEvents(a, log)

	if err := a.Core.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("Serving metrics", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Core.Stop(shutdownCtx)
	})

	return g.Wait()
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// logEvents writes every public event to the log, which is the daemon's only
// consumer.
func logEvents(a *App, log *zap.Logger) {
	log = log.Named("events")
	a.Core.OnNewToken(events.HandlerFunc[domain.NewToken](func(_ context.Context, t domain.NewToken) error {
		log.Info("New token",
			zap.String("mint", t.Mint),
			zap.String("symbol", t.Symbol),
			zap.String("name", t.Name),
			zap.String("creator", logger.ShortAddress(t.Creator)))
		return nil
	}))
	a.Core.OnTrade(events.HandlerFunc[domain.Trade](func(_ context.Context, t domain.Trade) error {
		log.Debug("Trade",
			zap.String("mint", t.Mint),
			zap.String("side", string(t.Side)),
			zap.Float64("sol", t.QuoteAmount),
			zap.Float64("price", t.PriceInQuote))
		return nil
	}))
	a.Core.OnAlert(events.HandlerFunc[alerts.Alert](func(_ context.Context, al alerts.Alert) error {
		log.Info("Alert triggered",
			zap.String("id", al.ID),
			zap.String("user", al.UserID),
			zap.String("mint", al.Mint),
			zap.String("type", string(al.Type)))
		return nil
	}))
	a.Core.OnOrderUpdate(events.HandlerFunc[orders.Order](func(_ context.Context, o orders.Order) error {
		log.Info("Order update",
			zap.String("id", o.ID),
			zap.String("kind", string(o.Kind)),
			zap.String("status", string(o.Status)))
		return nil
	}))
}
