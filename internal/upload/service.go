// Package upload drives the three-phase multipart protocol (initiate, sign
// parts, complete) against an S3-compatible backend. It keeps no session
// table: every request carries key and uploadId, and the backend's own
// multipart bookkeeping is the only session state.
package upload

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stefando/presignGateway/internal/config"
	"github.com/stefando/presignGateway/internal/metrics"
	"github.com/stefando/presignGateway/internal/naming"
	"github.com/stefando/presignGateway/internal/presign"
	"github.com/stefando/presignGateway/internal/storage"
)

// URLSigner issues signed upload URLs.
type URLSigner interface {
	UploadPart(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (presign.Grant, error)
	PutObject(ctx context.Context, p presign.PutObjectParams, ttl time.Duration) (presign.Grant, error)
	Wrap(raw string) string
}

// UploadService coordinates uploads for a single bucket.
type UploadService struct {
	backend storage.Backend
	signer  URLSigner
	names   *naming.Resolver
	cfg     *config.Config
	metrics metrics.Recorder
	log     *slog.Logger
	tracer  trace.Tracer
}

// Option customises an UploadService.
type Option func(*UploadService)

// WithMetrics reports backend calls and grants to r.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *UploadService) { s.metrics = r }
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *UploadService) { s.log = l }
}

// WithResolver replaces the key resolver, mainly to pin its clock.
func WithResolver(r *naming.Resolver) Option {
	return func(s *UploadService) { s.names = r }
}

// NewUploadService creates a new upload service
func NewUploadService(backend storage.Backend, signer URLSigner, cfg *config.Config, opts ...Option) *UploadService {
	s := &UploadService{
		backend: backend,
		signer:  signer,
		names:   naming.NewResolver(time.Now),
		cfg:     cfg,
		metrics: metrics.Nop{},
		log:     slog.Default(),
		tracer:  otel.Tracer("presign-gateway/upload"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FileURL is the public address of key.
func (s *UploadService) FileURL(key string) string {
	return s.cfg.PublicURL + key
}

func (s *UploadService) uploadConfig() UploadConfig {
	return UploadConfig{
		ChunkSize:         s.cfg.PartSize,
		MaxRetries:        s.cfg.MaxRetries,
		Timeout:           s.cfg.RequestTimeout.Milliseconds(),
		ConcurrentUploads: s.cfg.Concurrency,
	}
}

func (s *UploadService) requestConfig() RequestConfig {
	return RequestConfig{
		Timeout: s.cfg.RequestTimeout.Milliseconds(),
		Retries: s.cfg.MaxRetries,
	}
}

// validateFileRequest validates a request naming a new object
func validateFileRequest(op string, req *FileRequest) error {
	if req.FileName == "" || req.Category == "" {
		return missing(op, "fileName", "category")
	}
	return nil
}

// InitiateMultipartUpload resolves a key and opens a multipart upload for it.
// Nothing reaches the backend when fileName or category is missing.
func (s *UploadService) InitiateMultipartUpload(ctx context.Context, req *FileRequest) (*InitiateUploadResponse, error) {
	const op = "InitiateMultipartUpload"
	if err := validateFileRequest(op, req); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()

	named := s.names.Resolve(req.FileName, req.Category)
	span.SetAttributes(attribute.String("upload.key", named.Key))

	uploadID, err := s.createMultipartUpload(ctx, named, req.FileType)
	if err != nil {
		s.fail(span, op, err)
		return nil, &Error{Op: op, Kind: ErrUploadInitFailed, Key: named.Key, Err: err}
	}

	s.log.InfoContext(ctx, "multipart upload initiated",
		slog.String("key", named.Key), slog.String("upload_id", uploadID), slog.String("original", req.FileName))

	return &InitiateUploadResponse{
		UploadID:         uploadID,
		Key:              named.Key,
		FileURL:          s.FileURL(named.Key),
		OriginalNameInfo: named.OriginalNameInfo,
		Config:           s.uploadConfig(),
	}, nil
}

// SignPartUpload issues a relay-wrapped signed PUT URL for one part. Inputs
// are passed through unchecked.
func (s *UploadService) SignPartUpload(ctx context.Context, req *PartUploadURLRequest) (*PartUploadURLResponse, error) {
	const op = "SignPartUpload"
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("upload.key", req.Key),
		attribute.Int("upload.part", int(req.PartNumber)),
	))
	defer span.End()

	g, err := s.signer.UploadPart(ctx, req.Key, req.UploadID, req.PartNumber, s.cfg.UploadURLTTL)
	if err != nil {
		s.fail(span, op, err)
		return nil, &Error{Op: op, Kind: ErrSigningFailed, Key: req.Key, UploadID: req.UploadID, Err: err}
	}
	s.metrics.GrantIssued("UploadPart")

	uploadURL := s.signer.Wrap(g.URL)
	s.log.DebugContext(ctx, "part url signed",
		slog.String("key", req.Key), slog.Int("part", int(req.PartNumber)),
		slog.String("signed_url", g.URL), slog.String("upload_url", uploadURL))

	return &PartUploadURLResponse{
		UploadURL:  uploadURL,
		SignedURL:  uploadURL,
		PartNumber: req.PartNumber,
		ExpiresAt:  g.ExpiresAt,
		Config:     s.requestConfig(),
	}, nil
}

// convertPartETags converts part ETags to AWS SDK format, keeping caller order
func convertPartETags(partETags []PartTag) []types.CompletedPart {
	completedParts := make([]types.CompletedPart, len(partETags))
	for i, part := range partETags {
		completedParts[i] = types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(part.PartNumber),
		}
	}
	return completedParts
}

// CompleteMultipartUpload forwards the client's part list verbatim. The
// backend alone decides whether the list is complete and consistent.
func (s *UploadService) CompleteMultipartUpload(ctx context.Context, req *CompleteUploadRequest) (*FileResponse, error) {
	const op = "CompleteMultipartUpload"
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("upload.key", req.Key),
		attribute.Int("upload.parts", len(req.Parts)),
	))
	defer span.End()

	if err := s.completeMultipartUpload(ctx, req.Key, req.UploadID, convertPartETags(req.Parts)); err != nil {
		s.fail(span, op, err)
		return nil, &Error{Op: op, Kind: ErrCompletionFailed, Key: req.Key, UploadID: req.UploadID, Err: err}
	}

	s.log.InfoContext(ctx, "multipart upload completed",
		slog.String("key", req.Key), slog.Int("parts", len(req.Parts)))
	return &FileResponse{Success: true, FileURL: s.FileURL(req.Key)}, nil
}

// AbortMultipartUpload cancels an in-progress multipart upload
func (s *UploadService) AbortMultipartUpload(ctx context.Context, req *AbortUploadRequest) error {
	const op = "AbortMultipartUpload"
	if req.Key == "" || req.UploadID == "" {
		return missing(op, "key", "uploadId")
	}

	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("upload.key", req.Key)))
	defer span.End()

	if err := s.abortMultipartUpload(ctx, req.Key, req.UploadID); err != nil {
		s.fail(span, op, err)
		return &Error{Op: op, Kind: ErrAbortFailed, Key: req.Key, UploadID: req.UploadID, Err: err}
	}
	s.log.InfoContext(ctx, "multipart upload aborted", slog.String("key", req.Key), slog.String("upload_id", req.UploadID))
	return nil
}

// NotifyUploadComplete acknowledges a single-shot upload. The client is
// trusted: the object's existence is not checked.
func (s *UploadService) NotifyUploadComplete(ctx context.Context, req *NotifyRequest) (*FileResponse, error) {
	if req.Key == "" {
		return nil, missing("NotifyUploadComplete", "key")
	}
	s.log.InfoContext(ctx, "upload complete notification", slog.String("key", req.Key))
	return &FileResponse{Success: true, FileURL: s.FileURL(req.Key)}, nil
}

// GetUploadURL signs a single-shot public-read PUT for a new object.
func (s *UploadService) GetUploadURL(ctx context.Context, req *FileRequest) (*UploadURLResponse, error) {
	const op = "GetUploadURL"
	if err := validateFileRequest(op, req); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()

	named := s.names.Resolve(req.FileName, req.Category)
	g, err := s.signer.PutObject(ctx, presign.PutObjectParams{
		Key:         named.Key,
		ContentType: req.FileType,
		Metadata:    named.OriginalNameInfo.Metadata(),
	}, s.cfg.UploadURLTTL)
	if err != nil {
		s.fail(span, op, err)
		return nil, &Error{Op: op, Kind: ErrSigningFailed, Key: named.Key, Err: err}
	}
	s.metrics.GrantIssued("PutObject")

	s.log.InfoContext(ctx, "upload url signed", slog.String("key", named.Key), slog.String("original", req.FileName))
	return &UploadURLResponse{
		UploadURL:        s.signer.Wrap(g.URL),
		FileURL:          s.FileURL(named.Key),
		Key:              named.Key,
		Headers:          g.Headers(),
		OriginalNameInfo: named.OriginalNameInfo,
		ExpiresAt:        g.ExpiresAt,
		Config:           s.requestConfig(),
	}, nil
}

// callCtx bounds a single backend call, retries included.
func (s *UploadService) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

func (s *UploadService) createMultipartUpload(ctx context.Context, named naming.Result, contentType string) (string, error) {
	if contentType == "" {
		contentType = presign.DefaultContentType
	}
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	start := time.Now()
	out, err := s.backend.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:       aws.String(s.cfg.Bucket),
		Key:          aws.String(named.Key),
		ContentType:  aws.String(contentType),
		ACL:          types.ObjectCannedACLPublicRead,
		CacheControl: aws.String(presign.PublicCacheControl),
		Metadata:     named.OriginalNameInfo.Metadata(),
	})
	s.metrics.ObserveBackend("CreateMultipartUpload", err, time.Since(start))
	if err != nil {
		return "", err
	}
	return aws.ToString(out.UploadId), nil
}

func (s *UploadService) completeMultipartUpload(ctx context.Context, key, uploadID string, parts []types.CompletedPart) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := s.backend.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.cfg.Bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	s.metrics.ObserveBackend("CompleteMultipartUpload", err, time.Since(start))
	return err
}

func (s *UploadService) abortMultipartUpload(ctx context.Context, key, uploadID string) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := s.backend.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.cfg.Bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	s.metrics.ObserveBackend("AbortMultipartUpload", err, time.Since(start))
	return err
}

func (s *UploadService) fail(span trace.Span, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	s.log.Error(op+" failed", slog.String("error", err.Error()))
}
