// Package presign issues time-limited signed URLs for single object-storage
// operations and optionally routes them through a CORS relay.
package presign

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	// PublicCacheControl is applied to every uploaded object.
	PublicCacheControl = "public, max-age=31536000"
	// DefaultContentType is used when the caller declares none.
	DefaultContentType = "application/octet-stream"
)

// Grant is a signed URL authorising exactly one operation until ExpiresAt.
type Grant struct {
	URL          string      `json:"url"`
	Method       string      `json:"method"`
	SignedHeader http.Header `json:"-"`
	ExpiresAt    time.Time   `json:"expiresAt"`
}

// Headers returns the signed headers the client must send verbatim with the
// request, keyed in lower case. Host is omitted since every HTTP client sets it.
func (g Grant) Headers() map[string]string {
	if len(g.SignedHeader) == 0 {
		return nil
	}
	out := make(map[string]string, len(g.SignedHeader))
	for k, v := range g.SignedHeader {
		if strings.EqualFold(k, "Host") || len(v) == 0 {
			continue
		}
		out[strings.ToLower(k)] = strings.Join(v, ",")
	}
	return out
}

// PutObjectParams describes a single-shot upload to be signed.
type PutObjectParams struct {
	Key         string
	ContentType string
	Metadata    map[string]string
}

// Signer wraps the S3 presign client. It holds no mutable state and is safe
// for concurrent use.
type Signer struct {
	presign  *s3.PresignClient
	bucket   string
	proxyURL string
	now      func() time.Time
}

// Option customises a Signer.
type Option func(*Signer)

// WithClock overrides the signing clock.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// WithProxy routes issued upload URLs through base; see Wrap.
func WithProxy(base string) Option {
	return func(s *Signer) { s.proxyURL = base }
}

// NewSigner creates a Signer for bucket using client's credentials and endpoint.
func NewSigner(client *s3.Client, bucket string, opts ...Option) *Signer {
	s := &Signer{bucket: bucket, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.presign = s3.NewPresignClient(client)
	return s
}

// UploadPart signs a PUT for one part of a multipart upload. partNumber is
// not range checked; the backend enforces 1..10000.
func (s *Signer) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (Grant, error) {
	issued := s.now()
	req, err := s.presign.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, s.at(issued, ttl))
	if err != nil {
		return Grant{}, fmt.Errorf("presign upload part %d: %w", partNumber, err)
	}
	return grant(req, issued, ttl), nil
}

// PutObject signs a single-shot public-read upload.
func (s *Signer) PutObject(ctx context.Context, p PutObjectParams, ttl time.Duration) (Grant, error) {
	contentType := p.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	issued := s.now()
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(p.Key),
		ContentType:  aws.String(contentType),
		ACL:          types.ObjectCannedACLPublicRead,
		CacheControl: aws.String(PublicCacheControl),
		Metadata:     p.Metadata,
	}, s.at(issued, ttl))
	if err != nil {
		return Grant{}, fmt.Errorf("presign put object: %w", err)
	}
	return grant(req, issued, ttl), nil
}

// GetObject signs a download that the browser saves as fileName.
func (s *Signer) GetObject(ctx context.Context, key, fileName string, ttl time.Duration) (Grant, error) {
	issued := s.now()
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(ContentDisposition(fileName)),
	}, s.at(issued, ttl))
	if err != nil {
		return Grant{}, fmt.Errorf("presign get object: %w", err)
	}
	return grant(req, issued, ttl), nil
}

// Wrap routes raw through the configured relay. Without a relay raw is returned as is.
func (s *Signer) Wrap(raw string) string {
	return Wrap(s.proxyURL, raw)
}

// Wrap joins base and raw with exactly one "/" between them. raw is never
// re-encoded: any change to an already signed URL breaks its signature.
func Wrap(base, raw string) string {
	if base == "" {
		return raw
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + raw
}

// ContentDisposition builds an attachment disposition with a percent-encoded file name.
func ContentDisposition(fileName string) string {
	return `attachment; filename="` + strings.ReplaceAll(url.QueryEscape(fileName), "+", "%20") + `"`
}

// at pins the signing time to issued so the URL's X-Amz-Date and the grant's
// ExpiresAt agree.
func (s *Signer) at(issued time.Time, ttl time.Duration) func(*s3.PresignOptions) {
	return func(po *s3.PresignOptions) {
		po.Expires = ttl
		po.Presigner = clockedPresigner{signer: v4.NewSigner(), signingTime: issued.UTC()}
	}
}

func grant(req *v4.PresignedHTTPRequest, issued time.Time, ttl time.Duration) Grant {
	return Grant{
		URL:          req.URL,
		Method:       req.Method,
		SignedHeader: req.SignedHeader,
		ExpiresAt:    issued.Add(ttl).UTC(),
	}
}

// clockedPresigner signs at a fixed time instead of the SDK's clock.
type clockedPresigner struct {
	signer      *v4.Signer
	signingTime time.Time
}

func (p clockedPresigner) PresignHTTP(
	ctx context.Context, credentials aws.Credentials, r *http.Request,
	payloadHash string, service string, region string, _ time.Time,
	optFns ...func(*v4.SignerOptions),
) (string, http.Header, error) {
	return p.signer.PresignHTTP(ctx, credentials, r, payloadHash, service, region, p.signingTime, optFns...)
}
