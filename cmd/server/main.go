package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wayfarer/internal/app"
	"wayfarer/internal/config"
	"wayfarer/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Debug)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize app", map[string]any{
			"error": err.Error(),
		})
	}

	go func() {
		if err := application.Run(); err != nil {
			logger.Fatal("http server failed", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	// providers, bypass flag and listen address in one line
	logger.Info("wayfarer started", cfg.StartupFields())

	<-ctx.Done() // wait for Ctrl+C

	logger.Info("shutdown signal received", nil)

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("graceful shutdown failed", map[string]any{
			"error": err.Error(),
		})
	}

	logger.Info("wayfarer stopped cleanly", nil)
}
