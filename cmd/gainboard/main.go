// Command gainboard serves portfolio valuations and gain leaderboards for
// simulated equity and crypto portfolios.
//
// Usage:
//
//	gainboard -config gainboard.yaml
//	gainboard -setup (interactive wizard, writes -config)
//
// Secrets are read from the environment or an optional .env file (-env):
//
//	ALPACA_API_KEY, ALPACA_API_SECRET
//	BINANCE_API_KEY, BINANCE_API_SECRET or BYBIT_API_KEY, BYBIT_API_SECRET
//	HYPERLIQUID_PRIVATE_KEY (optional, public endpoints only)
//	REDIS_PASSWORD, POSTGRES_DSN
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vadiminshakov/gainboard/config"
	"github.com/vadiminshakov/gainboard/internal"
	"github.com/vadiminshakov/gainboard/internal/setup"
)

func main() {
	flags, err := config.ParseFlags()
	if err != nil {
		log.Fatal(err)
	}

	if flags.Setup {
		if err := setup.RunTUI(flags.ConfigPath); err != nil {
			log.Fatal(err)
		}
	}

	cfg, err := config.Load(flags.ConfigPath, flags.EnvFile)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := internal.NewEngine(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize engine", zap.Error(err))
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("failed to close engine", zap.Error(err))
		}
	}()

	if err := engine.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}
