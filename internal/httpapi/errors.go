package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stefando/presignGateway/internal/download"
	"github.com/stefando/presignGateway/internal/upload"
)

const (
	msgMissingParameter = "missing required parameters"
	msgInvalidBody      = "invalid request body"
	msgBodyTooLarge     = "request body too large"
	msgInternal         = "internal server error"
)

// errorResponse is the body of every JSON error.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusAndMessage maps err onto the status code and the short message the
// client sees. Causes stay in the logs, except for the whole-file fallback
// whose message carries the cause text.
func statusAndMessage(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, msgBodyTooLarge
	case errors.Is(err, upload.ErrMissingParameter):
		return http.StatusBadRequest, msgMissingParameter
	case errors.Is(err, upload.ErrDecode):
		return http.StatusBadRequest, upload.ErrDecode.Error()
	case errors.Is(err, download.ErrNotFound):
		return http.StatusNotFound, download.ErrNotFound.Error()
	}

	var uerr *upload.Error
	if errors.As(err, &uerr) {
		if uerr.Kind == upload.ErrServerSideUploadFailed && uerr.Err != nil {
			return http.StatusInternalServerError, uerr.Kind.Error() + ": " + uerr.Err.Error()
		}
		return http.StatusInternalServerError, uerr.Kind.Error()
	}
	return http.StatusInternalServerError, msgInternal
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusAndMessage(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.log.Log(r.Context(), level, "request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("error", err.Error()),
	)
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads the request body into dst. Failures are reported to the
// client and false is returned.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, err)
			return false
		}
		s.log.WarnContext(r.Context(), "invalid request body", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidBody})
		return false
	}
	return true
}
