// ====================================
// File: cmd/feedview/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/app"
	"github.com/rovshanmuradov/pumpwatch/internal/config"
	"github.com/rovshanmuradov/pumpwatch/internal/export"
	"github.com/rovshanmuradov/pumpwatch/internal/logger"
	"github.com/rovshanmuradov/pumpwatch/internal/tui"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	exportDir := flag.String("export-dir", "exports", "directory for trade exports")
	flag.Parse()

	if err := run(*configPath, *exportDir); err != nil {
		fmt.Fprintf(os.Stderr, "feedview: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, exportDir string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logs := logger.NewBuffer(1000)
	log := logger.NewBuffered(logger.Config{
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
		Debug:      cfg.DebugLogging,
	}, logs)
	defer func() { _ = logger.Sync(log) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, prometheus.NewRegistry(), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("Failed to release resources", zap.Error(err))
		}
	}()

	bridge := tui.NewBridge(1024, 150*time.Millisecond, log)
	bridge.Attach(a.Core)
	defer bridge.Close()
	go bridge.Run(ctx)

	if err := a.Core.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Core.Stop(stopCtx); err != nil {
			log.Warn("Service did not stop in time", zap.Error(err))
		}
	}()

	model := tui.New(tui.Config{
		Backend:   a.Core,
		Listen:    bridge.Listen(),
		Logs:      logs,
		Exporter:  export.NewTradeExporter(log),
		ExportDir: exportDir,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
