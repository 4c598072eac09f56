// Package main is the entry point for the market data intelligence backend.
// It loads configuration, wires every component via internal/app, and runs
// until an interrupt or termination signal triggers a graceful shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/marketwatch/internal/app"
	"github.com/aristath/marketwatch/internal/config"
	"github.com/aristath/marketwatch/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogLevel == "debug"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, log)

	log.Info().
		Str("startup_mode", string(cfg.StartupMode)).
		Int("port", cfg.Port).
		Msg("starting marketwatch")

	if err := a.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("shutdown complete")
}
