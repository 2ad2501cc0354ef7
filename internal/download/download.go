// Package download resolves signed download redirects and proxies public
// objects back to callers.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/stefando/presignGateway/internal/config"
	"github.com/stefando/presignGateway/internal/metrics"
	"github.com/stefando/presignGateway/internal/naming"
	"github.com/stefando/presignGateway/internal/presign"
	"github.com/stefando/presignGateway/internal/storage"
)

// ErrNotFound means the object is absent or could not be reached.
var ErrNotFound = errors.New("file does not exist or is not accessible")

// ObjectHeader is the part of the backend the redirect needs.
type ObjectHeader interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// URLSigner issues signed GET URLs.
type URLSigner interface {
	GetObject(ctx context.Context, key, fileName string, ttl time.Duration) (presign.Grant, error)
}

// Service turns storage keys into signed download URLs carrying the
// object's original filename.
type Service struct {
	backend ObjectHeader
	signer  URLSigner
	cfg     *config.Config
	metrics metrics.Recorder
	log     *slog.Logger
}

// NewService creates a download Service. A nil recorder disables metrics.
func NewService(backend ObjectHeader, signer URLSigner, cfg *config.Config, rec metrics.Recorder, log *slog.Logger) *Service {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{backend: backend, signer: signer, cfg: cfg, metrics: rec, log: log}
}

// DownloadURL heads key, recovers its original filename and signs a GET
// that downloads under that name. Every failure reports ErrNotFound.
// The URL is never proxy-wrapped.
func (s *Service) DownloadURL(ctx context.Context, key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", ErrNotFound
	}

	md, err := s.head(ctx, key)
	if err != nil {
		level := slog.LevelError
		if storage.IsNotFound(err) {
			level = slog.LevelInfo
		}
		s.log.Log(ctx, level, "download head failed", slog.String("key", key), slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %s: %w", ErrNotFound, key, err)
	}

	name := naming.FileNameFromMetadata(key, md)
	g, err := s.signer.GetObject(ctx, key, name, s.cfg.DownloadURLTTL)
	if err != nil {
		s.log.ErrorContext(ctx, "download signing failed", slog.String("key", key), slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %s: %w", ErrNotFound, key, err)
	}
	s.metrics.GrantIssued("GetObject")

	s.log.InfoContext(ctx, "download redirect", slog.String("key", key), slog.String("file_name", name))
	return g.URL, nil
}

func (s *Service) head(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	out, err := s.backend.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	s.metrics.ObserveBackend("HeadObject", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return out.Metadata, nil
}
