package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefando/presignGateway/internal/metrics"
	"github.com/stefando/presignGateway/internal/presign"
	"github.com/stefando/presignGateway/internal/storage"
	"github.com/stefando/presignGateway/internal/upload"
)

// multipartBackend keeps just enough multipart bookkeeping to reject
// completions that do not cover every uploaded part.
type multipartBackend struct {
	storage.Backend

	mu      sync.Mutex
	open    map[string]string
	signed  map[string][]int32
	objects map[string]bool
}

func newMultipartBackend() *multipartBackend {
	return &multipartBackend{open: map[string]string{}, signed: map[string][]int32{}, objects: map[string]bool{}}
}

func (b *multipartBackend) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("mpu-%d", len(b.open)+1)
	b.open[id] = aws.ToString(in.Key)
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (b *multipartBackend) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := aws.ToString(in.UploadId)
	if b.open[id] != aws.ToString(in.Key) {
		return nil, fmt.Errorf("NoSuchUpload: %s", id)
	}
	var numbers []int32
	for _, p := range in.MultipartUpload.Parts {
		numbers = append(numbers, aws.ToInt32(p.PartNumber))
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, n := range numbers {
		if n != int32(i+1) {
			return nil, fmt.Errorf("InvalidPart: %d", n)
		}
	}
	delete(b.open, id)
	b.objects[aws.ToString(in.Key)] = true
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func TestMultipartFlowOverHTTP(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoint = "https://acct.r2.cloudflarestorage.com"
	cfg.ProxyURL = "https://relay.example/cors"

	client := s3.New(s3.Options{
		Region:       "auto",
		Credentials:  credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,

		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	})
	backend := newMultipartBackend()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	uploads := upload.NewUploadService(backend, presign.NewSigner(client, cfg.Bucket, presign.WithProxy(cfg.ProxyURL)), cfg,
		upload.WithLogger(log))
	h := NewRouter(Deps{Uploads: uploads, Config: cfg, Metrics: metrics.New(), Logger: log})

	rec := do(h, http.MethodPost, "/init-multipart-upload", `{"fileName":"report.pdf","category":"docs"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var init upload.InitiateUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &init))
	assert.Regexp(t, regexp.MustCompile(`^docs/report_\d+\.pdf$`), init.Key)

	// part 2 arrives as a numeric string, as some clients send it
	for n, wire := range map[int]string{1: `1`, 2: `"2"`} {
		rec := do(h, http.MethodPost, "/get-part-upload-url",
			fmt.Sprintf(`{"key":%q,"uploadId":%q,"partNumber":%s}`, init.Key, init.UploadID, wire))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var part upload.PartUploadURLResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &part))
		assert.Contains(t, part.UploadURL, "https://relay.example/cors/https://acct.r2.cloudflarestorage.com/media/"+init.Key+"?")
		assert.Contains(t, part.UploadURL, fmt.Sprintf("partNumber=%d", n))
	}

	rec = do(h, http.MethodPost, "/complete-multipart-upload",
		fmt.Sprintf(`{"key":%q,"uploadId":%q,"parts":[{"partNumber":2,"eTag":"etagB"},{"partNumber":1,"eTag":"etagA"}]}`, init.Key, init.UploadID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var done upload.FileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	assert.True(t, done.Success)
	assert.Regexp(t, regexp.MustCompile(`docs/report_\d+\.pdf$`), done.FileURL)
	assert.True(t, backend.objects[init.Key])

	// The backend rejects a second completion of the same upload.
	rec = do(h, http.MethodPost, "/complete-multipart-upload",
		fmt.Sprintf(`{"key":%q,"uploadId":%q,"parts":[{"partNumber":1,"eTag":"etagA"}]}`, init.Key, init.UploadID))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to complete upload", errorBody(t, rec))
}

func TestInitiateMissingCategoryOverHTTP(t *testing.T) {
	backend := newMultipartBackend()
	cfg := testConfig()
	cfg.Endpoint = "https://acct.r2.cloudflarestorage.com"
	client := s3.New(s3.Options{
		Region:       "auto",
		Credentials:  credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
		BaseEndpoint: aws.String(cfg.Endpoint),
	})
	uploads := upload.NewUploadService(backend, presign.NewSigner(client, cfg.Bucket), cfg)
	h := NewRouter(Deps{Uploads: uploads, Config: cfg, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	rec := do(h, http.MethodPost, "/init-multipart-upload", `{"fileName":"report.pdf"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing required parameters", errorBody(t, rec))
	assert.Empty(t, backend.open)
}
