package httpapi

import (
	"net/http"
	"time"

	"github.com/docker/go-units"
)

type healthResponse struct {
	Status    string       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Config    healthConfig `json:"config"`
}

type healthConfig struct {
	CORS         healthCORS      `json:"cors"`
	UploadConfig healthUpload    `json:"uploadConfig"`
	Endpoints    healthEndpoints `json:"endpoints"`
}

type healthCORS struct {
	Origin         []string `json:"origin"`
	Methods        []string `json:"methods"`
	AllowedHeaders []string `json:"allowedHeaders"`
	ExposedHeaders []string `json:"exposedHeaders"`
	Credentials    bool     `json:"credentials"`
	MaxAge         int      `json:"maxAge"`
}

type healthUpload struct {
	MaxFileSize       string `json:"maxFileSize"`
	ChunkSize         string `json:"chunkSize"`
	Timeout           string `json:"timeout"`
	MaxRetries        int    `json:"maxRetries"`
	ConcurrentUploads int    `json:"concurrentUploads"`
}

type healthMultipart struct {
	Init       string `json:"init"`
	GetPartURL string `json:"getPartUrl"`
	Complete   string `json:"complete"`
	Abort      string `json:"abort"`
}

type healthEndpoints struct {
	GetUploadURL    string          `json:"getUploadUrl"`
	UploadComplete  []string        `json:"uploadComplete"`
	MultipartUpload healthMultipart `json:"multipartUpload"`
	ServerUpload    string          `json:"serverUpload"`
	Download        string          `json:"download"`
}

// handleHealth reports liveness and a snapshot of the effective settings.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	maxFileSize := s.cfg.MaxFileSize
	if s.cfg.MaxBodySize > 0 {
		maxFileSize = units.BytesSize(float64(s.cfg.MaxBodySize))
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: s.now().UTC(),
		Config: healthConfig{
			CORS: healthCORS{
				Origin:         s.cfg.AllowedOrigins,
				Methods:        corsMethods,
				AllowedHeaders: corsAllowedHeaders,
				ExposedHeaders: corsExposedHeaders,
				Credentials:    true,
				MaxAge:         corsMaxAge,
			},
			UploadConfig: healthUpload{
				MaxFileSize:       maxFileSize,
				ChunkSize:         units.BytesSize(float64(s.cfg.PartSize)),
				Timeout:           s.cfg.RequestTimeout.String(),
				MaxRetries:        s.cfg.MaxRetries,
				ConcurrentUploads: s.cfg.Concurrency,
			},
			Endpoints: healthEndpoints{
				GetUploadURL:   "/get-upload-url",
				UploadComplete: []string{"/upload-complete", "/api/r2/upload-complete"},
				MultipartUpload: healthMultipart{
					Init:       "/init-multipart-upload",
					GetPartURL: "/get-part-upload-url",
					Complete:   "/complete-multipart-upload",
					Abort:      "/abort-multipart-upload",
				},
				ServerUpload: "/server-upload-large-file",
				Download:     "/download/:key",
			},
		},
	})
}
