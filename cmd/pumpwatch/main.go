// ====================================
// File: cmd/pumpwatch/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/app"
	"github.com/rovshanmuradov/pumpwatch/internal/config"
	"github.com/rovshanmuradov/pumpwatch/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
		Debug:      cfg.DebugLogging,
		Pretty:     true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(log) }()

	log.Info("Starting pumpwatch")
	if err := app.Run(context.Background(), cfg, log); err != nil {
		log.Error("pumpwatch stopped with error", zap.Error(err))
		_ = logger.Sync(log)
		os.Exit(1)
	}
	log.Info("pumpwatch stopped")
}
