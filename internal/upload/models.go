package upload

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/stefando/presignGateway/internal/naming"
)

// FileRequest names a new object; used by multipart initiation and by the
// single-shot upload URL.
type FileRequest struct {
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	Category string `json:"category"`
}

// UploadConfig carries advisory client tuning hints. Nothing enforces them.
type UploadConfig struct {
	ChunkSize         int64 `json:"chunkSize"`
	MaxRetries        int   `json:"maxRetries"`
	Timeout           int64 `json:"timeout"` // milliseconds
	ConcurrentUploads int   `json:"concurrentUploads"`
}

// RequestConfig carries per-request hints returned alongside signed URLs.
type RequestConfig struct {
	Timeout int64 `json:"timeout"` // milliseconds
	Retries int   `json:"retries"`
}

// InitiateUploadResponse describes a freshly opened multipart upload.
type InitiateUploadResponse struct {
	UploadID         string                  `json:"uploadId"`
	Key              string                  `json:"key"`
	FileURL          string                  `json:"fileUrl"`
	OriginalNameInfo naming.OriginalNameInfo `json:"originalNameInfo"`
	Config           UploadConfig            `json:"config"`
}

// PartUploadURLRequest asks for a signed URL for one part.
type PartUploadURLRequest struct {
	Key        string `json:"key"`
	UploadID   string `json:"uploadId"`
	PartNumber int32  `json:"partNumber"`
}

// UnmarshalJSON accepts partNumber as a JSON number or a numeric string.
func (r *PartUploadURLRequest) UnmarshalJSON(b []byte) error {
	var raw struct {
		Key        string      `json:"key"`
		UploadID   string      `json:"uploadId"`
		PartNumber json.Number `json:"partNumber"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var n int64
	if raw.PartNumber != "" {
		var err error
		if n, err = strconv.ParseInt(raw.PartNumber.String(), 10, 32); err != nil {
			return fmt.Errorf("partNumber: %w", err)
		}
	}
	*r = PartUploadURLRequest{Key: raw.Key, UploadID: raw.UploadID, PartNumber: int32(n)}
	return nil
}

// PartUploadURLResponse contains the relay-wrapped signed PUT URL for a part.
type PartUploadURLResponse struct {
	UploadURL  string        `json:"uploadUrl"`
	SignedURL  string        `json:"signedUrl"` // same as UploadURL, kept for older clients
	PartNumber int32         `json:"partNumber"`
	ExpiresAt  time.Time     `json:"expiresAt"`
	Config     RequestConfig `json:"config"`
}

// PartTag represents a completed part with its ETag
type PartTag struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"eTag"`
}

// CompleteUploadRequest represents the request to complete a multipart upload
type CompleteUploadRequest struct {
	Key      string    `json:"key"`
	UploadID string    `json:"uploadId"`
	Parts    []PartTag `json:"parts"`
}

// AbortUploadRequest represents the request to abort a multipart upload
type AbortUploadRequest struct {
	Key      string `json:"key"`
	UploadID string `json:"uploadId"`
}

// NotifyRequest reports a finished single-shot upload.
type NotifyRequest struct {
	Key string `json:"key"`
}

// ServerUploadRequest carries a whole file, base64 or data-URL encoded.
type ServerUploadRequest struct {
	FileData string `json:"fileData"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	Category string `json:"category"`
}

// FileResponse reports the public location of a finished object.
type FileResponse struct {
	Success bool   `json:"success"`
	FileURL string `json:"fileUrl"`
}

// UploadURLResponse contains a signed single-shot PUT URL. The PUT must carry
// every entry of Headers unchanged or the signature does not match.
type UploadURLResponse struct {
	UploadURL        string                  `json:"uploadUrl"`
	FileURL          string                  `json:"fileUrl"`
	Key              string                  `json:"key"`
	Headers          map[string]string       `json:"headers"`
	OriginalNameInfo naming.OriginalNameInfo `json:"originalNameInfo"`
	ExpiresAt        time.Time               `json:"expiresAt"`
	Config           RequestConfig           `json:"config"`
}
