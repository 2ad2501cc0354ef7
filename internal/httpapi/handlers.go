package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stefando/presignGateway/internal/download"
	"github.com/stefando/presignGateway/internal/upload"
)

// handleInitiateUpload handles multipart upload initiation
func (s *Server) handleInitiateUpload(w http.ResponseWriter, r *http.Request) {
	var req upload.FileRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.uploads.InitiateMultipartUpload(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetPartURL signs the upload URL for one part
func (s *Server) handleGetPartURL(w http.ResponseWriter, r *http.Request) {
	var req upload.PartUploadURLRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.uploads.SignPartUpload(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCompleteUpload handles multipart upload completion
func (s *Server) handleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	var req upload.CompleteUploadRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.uploads.CompleteMultipartUpload(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAbortUpload handles multipart upload abort
func (s *Server) handleAbortUpload(w http.ResponseWriter, r *http.Request) {
	var req upload.AbortUploadRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.uploads.AbortMultipartUpload(r.Context(), &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleServerUpload(w http.ResponseWriter, r *http.Request) {
	var req upload.ServerUploadRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.uploads.UploadWholeFile(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetUploadURL(w http.ResponseWriter, r *http.Request) {
	var req upload.FileRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.uploads.GetUploadURL(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUploadComplete(w http.ResponseWriter, r *http.Request) {
	var req upload.NotifyRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.uploads.NotifyUploadComplete(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDownload redirects to a signed GET that saves under the original name.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		// chi matched on the escaped path
		unescaped, err := url.PathUnescape(key)
		if err != nil {
			s.writeError(w, r, errors.Join(download.ErrNotFound, err))
			return
		}
		key = unescaped
	}
	target, err := s.downloads.DownloadURL(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleProxy streams a public object back to the caller. Responses are
// plain text, not JSON, on failure.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.EscapedPath(), "/")
	if key == "" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", download.ProxyCacheControl)
	w.Header().Set("Access-Control-Allow-Origin", "*")

	obj, err := s.proxy.Fetch(r.Context(), key)
	if err != nil {
		var serr *download.StatusError
		if errors.As(err, &serr) {
			s.log.InfoContext(r.Context(), "proxy upstream refused", slog.String("key", key), slog.Int("status", serr.StatusCode))
			http.Error(w, "access failed: "+serr.StatusText(), serr.StatusCode)
			return
		}
		s.log.ErrorContext(r.Context(), "proxy fetch failed", slog.String("key", key), slog.String("error", err.Error()))
		http.Error(w, "server error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		s.log.WarnContext(r.Context(), "proxy stream interrupted", slog.String("key", key), slog.String("error", err.Error()))
	}
}
