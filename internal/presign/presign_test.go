package presign

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testClient() *s3.Client {
	return s3.New(s3.Options{
		Region:       "auto",
		Credentials:  credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
		BaseEndpoint: aws.String("https://acct.r2.cloudflarestorage.com"),
		UsePathStyle: true,

		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	})
}

// sequence returns a clock that yields each time in turn, then repeats the last.
func sequence(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func parse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestUploadPart(t *testing.T) {
	s := NewSigner(testClient(), "media", WithClock(sequence(t0)))

	g, err := s.UploadPart(context.Background(), "docs/report_1.pdf", "upload-1", 2, 24*time.Hour)
	require.NoError(t, err)

	u := parse(t, g.URL)
	q := u.Query()
	assert.Equal(t, http.MethodPut, g.Method)
	assert.Equal(t, "acct.r2.cloudflarestorage.com", u.Host)
	assert.Equal(t, "/media/docs/report_1.pdf", u.Path)
	assert.Equal(t, "2", q.Get("partNumber"))
	assert.Equal(t, "upload-1", q.Get("uploadId"))
	assert.Equal(t, "86400", q.Get("X-Amz-Expires"))
	assert.Equal(t, "20240301T120000Z", q.Get("X-Amz-Date"))
	assert.NotEmpty(t, q.Get("X-Amz-Signature"))
	assert.Equal(t, t0.Add(24*time.Hour), g.ExpiresAt)
}

func TestUploadPart_ReissueYieldsFreshSignature(t *testing.T) {
	s := NewSigner(testClient(), "media", WithClock(sequence(t0, t0.Add(time.Second))))
	ctx := context.Background()

	first, err := s.UploadPart(ctx, "docs/a.bin", "u", 1, time.Hour)
	require.NoError(t, err)
	second, err := s.UploadPart(ctx, "docs/a.bin", "u", 1, time.Hour)
	require.NoError(t, err)

	a, b := parse(t, first.URL), parse(t, second.URL)
	assert.NotEqual(t, first.URL, second.URL)
	assert.NotEqual(t, a.Query().Get("X-Amz-Signature"), b.Query().Get("X-Amz-Signature"))
	assert.Equal(t, a.Path, b.Path)
	assert.Equal(t, a.Query().Get("partNumber"), b.Query().Get("partNumber"))
	assert.Equal(t, a.Query().Get("uploadId"), b.Query().Get("uploadId"))
	assert.Equal(t, first.Method, second.Method)
}

func TestUploadPart_SameInstantIsDeterministic(t *testing.T) {
	s := NewSigner(testClient(), "media", WithClock(sequence(t0)))

	first, err := s.UploadPart(context.Background(), "k", "u", 3, time.Hour)
	require.NoError(t, err)
	second, err := s.UploadPart(context.Background(), "k", "u", 3, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, first.URL, second.URL)
}

func TestPutObject(t *testing.T) {
	s := NewSigner(testClient(), "media", WithClock(sequence(t0)))

	g, err := s.PutObject(context.Background(), PutObjectParams{
		Key:      "img/cat_1.png",
		Metadata: map[string]string{"original-filename": "e30="},
	}, 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, g.Method)
	assert.Equal(t, "/media/img/cat_1.png", parse(t, g.URL).Path)
	assert.Equal(t, "public-read", g.SignedHeader.Get("X-Amz-Acl"))
	assert.Equal(t, PublicCacheControl, g.SignedHeader.Get("Cache-Control"))

	h := g.Headers()
	assert.NotContains(t, h, "host")
	assert.Equal(t, "public-read", h["x-amz-acl"])
	assert.Equal(t, PublicCacheControl, h["cache-control"])
	assert.Equal(t, "e30=", h["x-amz-meta-original-filename"])
	assert.Contains(t, parse(t, g.URL).Query().Get("X-Amz-SignedHeaders"), "x-amz-meta-original-filename")
}

func TestGrantHeaders_Empty(t *testing.T) {
	assert.Nil(t, Grant{}.Headers())
	assert.Empty(t, Grant{SignedHeader: http.Header{"Host": {"acct.r2.cloudflarestorage.com"}}}.Headers())
}

func TestGetObject_SetsDisposition(t *testing.T) {
	s := NewSigner(testClient(), "media", WithClock(sequence(t0)))

	g, err := s.GetObject(context.Background(), "docs/report_1.pdf", "季度 报告.pdf", time.Hour)
	require.NoError(t, err)

	q := parse(t, g.URL).Query()
	assert.Equal(t, http.MethodGet, g.Method)
	assert.Equal(t, "3600", q.Get("X-Amz-Expires"))
	assert.Equal(t,
		`attachment; filename="%E5%AD%A3%E5%BA%A6%20%E6%8A%A5%E5%91%8A.pdf"`,
		q.Get("response-content-disposition"))
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name string
		base string
		raw  string
		want string
	}{
		{"no relay", "", "https://x/y?a=1", "https://x/y?a=1"},
		{"base without slash", "https://relay.example/cors", "https://x/y", "https://relay.example/cors/https://x/y"},
		{"base with slash", "https://relay.example/cors/", "https://x/y", "https://relay.example/cors/https://x/y"},
		{"encoded signature kept", "https://relay.example/cors", "https://x/y?Sig=a%2Bb", "https://relay.example/cors/https://x/y?Sig=a%2Bb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Wrap(tt.base, tt.raw))
		})
	}

	s := NewSigner(testClient(), "media", WithProxy("https://relay.example/cors"))
	assert.Contains(t, s.Wrap("https://x/y?Sig=a%2Bb"), "%2Bb")
}
