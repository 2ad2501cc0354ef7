// Package httpapi exposes the gateway over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stefando/presignGateway/internal/config"
	"github.com/stefando/presignGateway/internal/download"
	"github.com/stefando/presignGateway/internal/metrics"
	"github.com/stefando/presignGateway/internal/tracing"
	"github.com/stefando/presignGateway/internal/upload"
)

// Uploader is the upload coordinator as seen by the handlers.
type Uploader interface {
	InitiateMultipartUpload(ctx context.Context, req *upload.FileRequest) (*upload.InitiateUploadResponse, error)
	SignPartUpload(ctx context.Context, req *upload.PartUploadURLRequest) (*upload.PartUploadURLResponse, error)
	CompleteMultipartUpload(ctx context.Context, req *upload.CompleteUploadRequest) (*upload.FileResponse, error)
	AbortMultipartUpload(ctx context.Context, req *upload.AbortUploadRequest) error
	NotifyUploadComplete(ctx context.Context, req *upload.NotifyRequest) (*upload.FileResponse, error)
	GetUploadURL(ctx context.Context, req *upload.FileRequest) (*upload.UploadURLResponse, error)
	UploadWholeFile(ctx context.Context, req *upload.ServerUploadRequest) (*upload.FileResponse, error)
}

// Downloader resolves a key to a signed download URL.
type Downloader interface {
	DownloadURL(ctx context.Context, key string) (string, error)
}

// ObjectFetcher streams public objects.
type ObjectFetcher interface {
	Fetch(ctx context.Context, key string) (*download.Object, error)
}

// Deps are the collaborators of the router. Metrics is optional.
type Deps struct {
	Uploads   Uploader
	Downloads Downloader
	Proxy     ObjectFetcher
	Config    *config.Config
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Server holds the handlers.
type Server struct {
	uploads   Uploader
	downloads Downloader
	proxy     ObjectFetcher
	cfg       *config.Config
	log       *slog.Logger
	now       func() time.Time
}

var (
	corsMethods        = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	corsAllowedHeaders = []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin", "Range", "Content-Range", "Cache-Control"}
	corsExposedHeaders = []string{"ETag", "x-amz-*", "Content-Range", "Accept-Ranges"}
)

const corsMaxAge = 86400

// NewRouter builds the chi router serving every gateway route.
func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		uploads:   d.Uploads,
		downloads: d.Downloads,
		proxy:     d.Proxy,
		cfg:       d.Config,
		log:       log,
		now:       time.Now,
	}

	r := chi.NewRouter()

	// Middleware for all routes
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(log.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(tracing.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.AllowedOrigins,
		AllowedMethods:   corsMethods,
		AllowedHeaders:   corsAllowedHeaders,
		ExposedHeaders:   corsExposedHeaders,
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	}))
	r.Use(limitBody(d.Config.MaxBodySize))

	r.Post("/init-multipart-upload", s.handleInitiateUpload)
	r.Post("/get-part-upload-url", s.handleGetPartURL)
	r.Post("/complete-multipart-upload", s.handleCompleteUpload)
	r.Post("/abort-multipart-upload", s.handleAbortUpload)
	r.Post("/server-upload-large-file", s.handleServerUpload)
	r.Post("/get-upload-url", s.handleGetUploadURL)
	r.Post("/upload-complete", s.handleUploadComplete)
	r.Post("/api/r2/upload-complete", s.handleUploadComplete)

	r.Get("/health", s.handleHealth)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}
	r.Get("/download/*", s.handleDownload)
	r.Get("/*", s.handleProxy)

	return r
}

// limitBody caps request bodies at n bytes; n <= 0 disables the cap.
func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if n <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
