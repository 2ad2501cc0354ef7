package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultServerCategory is used by the whole-file path when no category is given.
const DefaultServerCategory = "FileMessage"

// partRange is one slice of the payload, [Start, End).
type partRange struct {
	Number int32
	Start  int64
	End    int64
}

// splitParts cuts size bytes into partSize chunks numbered from 1; the last may be shorter.
func splitParts(size, partSize int64) []partRange {
	n := (size + partSize - 1) / partSize
	parts := make([]partRange, 0, n)
	for i := int64(0); i < n; i++ {
		start := i * partSize
		parts = append(parts, partRange{
			Number: int32(i + 1),
			Start:  start,
			End:    min(size, start+partSize),
		})
	}
	return parts
}

// DecodeFileData accepts plain base64 or a data: URL with a base64 body.
func DecodeFileData(fileData string) ([]byte, error) {
	payload := fileData
	if strings.HasPrefix(payload, "data:") {
		_, body, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, errors.New("data url has no payload")
		}
		payload = body
	}
	if strings.ContainsFunc(payload, unicode.IsSpace) {
		payload = strings.Map(dropSpace, payload)
	}

	data, err := base64Encoding(payload).DecodeString(payload)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty payload")
	}
	return data, nil
}

// base64Encoding picks the alphabet and padding mode from the payload itself.
func base64Encoding(payload string) *base64.Encoding {
	padded := strings.HasSuffix(payload, "=") || len(payload)%4 == 0
	switch {
	case strings.ContainsAny(payload, "-_") && padded:
		return base64.URLEncoding
	case strings.ContainsAny(payload, "-_"):
		return base64.RawURLEncoding
	case padded:
		return base64.StdEncoding
	default:
		return base64.RawStdEncoding
	}
}

func dropSpace(r rune) rune {
	if unicode.IsSpace(r) {
		return -1
	}
	return r
}

// UploadWholeFile runs the whole multipart protocol server side for clients
// that cannot: initiate, upload every part, complete. Parts go up in
// parallel, at most cfg.Concurrency at a time; the first failure cancels the
// rest and fails the call. The backend upload is left open on failure unless
// cfg.AbortOnFailure is set.
func (s *UploadService) UploadWholeFile(ctx context.Context, req *ServerUploadRequest) (*FileResponse, error) {
	const op = "UploadWholeFile"
	if req.FileData == "" || req.FileName == "" {
		return nil, missing(op, "fileData", "fileName")
	}

	data, err := DecodeFileData(req.FileData)
	if err != nil {
		return nil, &Error{Op: op, Kind: ErrDecode, Err: err}
	}

	category := req.Category
	if category == "" {
		category = DefaultServerCategory
	}

	jobID := uuid.NewString()
	log := s.log.With(slog.String("job", jobID))
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("upload.job", jobID),
		attribute.Int("upload.bytes", len(data)),
	))
	defer span.End()

	named := s.names.Resolve(req.FileName, category)
	log.InfoContext(ctx, "server-side upload started",
		slog.String("key", named.Key), slog.Int("bytes", len(data)))

	uploadID, err := s.createMultipartUpload(ctx, named, req.FileType)
	if err != nil {
		s.fail(span, op, err)
		return nil, &Error{Op: op, Kind: ErrServerSideUploadFailed, Key: named.Key, Err: err}
	}

	parts, err := s.uploadParts(ctx, log, named.Key, uploadID, data)
	if err != nil {
		s.fail(span, op, err)
		if s.cfg.AbortOnFailure {
			// ctx may already be cancelled; the abort gets its own budget.
			if aerr := s.abortMultipartUpload(context.WithoutCancel(ctx), named.Key, uploadID); aerr != nil {
				log.Warn("abort after failed upload", slog.String("error", aerr.Error()))
			}
		} else {
			log.Warn("multipart upload left open", slog.String("key", named.Key), slog.String("upload_id", uploadID))
		}
		return nil, &Error{Op: op, Kind: ErrServerSideUploadFailed, Key: named.Key, UploadID: uploadID, Err: err}
	}

	if err := s.completeMultipartUpload(ctx, named.Key, uploadID, parts); err != nil {
		s.fail(span, op, err)
		return nil, &Error{Op: op, Kind: ErrServerSideUploadFailed, Key: named.Key, UploadID: uploadID, Err: err}
	}

	log.InfoContext(ctx, "server-side upload completed", slog.String("key", named.Key), slog.Int("parts", len(parts)))
	return &FileResponse{Success: true, FileURL: s.FileURL(named.Key)}, nil
}

func (s *UploadService) uploadParts(ctx context.Context, log *slog.Logger, key, uploadID string, data []byte) ([]types.CompletedPart, error) {
	ranges := splitParts(int64(len(data)), s.cfg.PartSize)
	parts := make([]types.CompletedPart, len(ranges))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, r := range ranges {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			etag, err := s.uploadPart(gctx, key, uploadID, r.Number, data[r.Start:r.End])
			if err != nil {
				log.Error("part upload failed", slog.Int("part", int(r.Number)), slog.String("error", err.Error()))
				return fmt.Errorf("part %d: %w", r.Number, err)
			}
			parts[i] = types.CompletedPart{ETag: etag, PartNumber: aws.Int32(r.Number)}
			log.Debug("part uploaded", slog.Int("part", int(r.Number)), slog.Int("of", len(ranges)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

func (s *UploadService) uploadPart(ctx context.Context, key, uploadID string, number int32, chunk []byte) (*string, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	start := time.Now()
	out, err := s.backend.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(number),
		Body:          bytes.NewReader(chunk),
		ContentLength: aws.Int64(int64(len(chunk))),
	})
	s.metrics.ObserveBackend("UploadPart", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	s.metrics.PartUploaded(int64(len(chunk)))
	return out.ETag, nil
}
