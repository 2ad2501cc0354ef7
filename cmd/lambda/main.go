package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/stefando/presignGateway/internal/config"
	"github.com/stefando/presignGateway/internal/httpapi"
	"github.com/stefando/presignGateway/internal/tracing"
)

// main wires the gateway router once per cold start and serves API Gateway
// proxy events through it.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx := context.Background()
	if _, err := tracing.Init(ctx, cfg.TracingEndpoint); err != nil {
		logger.Warn("tracing init failed", slog.String("error", err.Error()))
	}

	// Metrics are scraped per process; a Lambda has nothing to scrape.
	router, err := httpapi.Build(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("init storage client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("services initialized", slog.String("bucket", cfg.Bucket))
	lambda.Start(newHandler(router, tracing.Flush, logger))
}
