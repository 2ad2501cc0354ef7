package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/stefando/presignGateway/internal/config"
	"github.com/stefando/presignGateway/internal/download"
	"github.com/stefando/presignGateway/internal/metrics"
	"github.com/stefando/presignGateway/internal/presign"
	"github.com/stefando/presignGateway/internal/storage"
	"github.com/stefando/presignGateway/internal/upload"
)

// Build wires the backend client, signer and services for cfg into a
// router. m may be nil.
func Build(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *slog.Logger) (http.Handler, error) {
	client, err := storage.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var rec metrics.Recorder = metrics.Nop{}
	if m != nil {
		rec = m
	}

	signer := presign.NewSigner(client, cfg.Bucket, presign.WithProxy(cfg.ProxyURL))
	uploads := upload.NewUploadService(client, signer, cfg,
		upload.WithMetrics(rec),
		upload.WithLogger(log.With(slog.String("component", "upload"))),
	)
	downloads := download.NewService(client, signer, cfg, rec, log.With(slog.String("component", "download")))
	proxy := download.NewProxy(storage.NewHTTPClient(cfg), cfg.PublicURL, log.With(slog.String("component", "proxy")))

	return NewRouter(Deps{
		Uploads:   uploads,
		Downloads: downloads,
		Proxy:     proxy,
		Config:    cfg,
		Metrics:   m,
		Logger:    log,
	}), nil
}
