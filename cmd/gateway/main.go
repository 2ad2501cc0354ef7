package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stefando/presignGateway/internal/config"
	"github.com/stefando/presignGateway/internal/httpapi"
	"github.com/stefando/presignGateway/internal/metrics"
	"github.com/stefando/presignGateway/internal/tracing"
)

// main starts the gateway and shuts it down cleanly on SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.TracingEndpoint)
	if err != nil {
		logger.Warn("tracing init failed", slog.String("error", err.Error()))
		shutdownTracing = func(context.Context) error { return nil }
	}

	handler, err := httpapi.Build(ctx, cfg, metrics.New(), logger)
	if err != nil {
		logger.Error("init storage client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("presign gateway listening",
			slog.String("addr", server.Addr),
			slog.String("endpoint", cfg.Endpoint),
			slog.String("bucket", cfg.Bucket),
			slog.String("public_url", cfg.PublicURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
}
