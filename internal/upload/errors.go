package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingParameter means a required request field was empty.
	ErrMissingParameter = errors.New("missing required parameter")
	// ErrDecode means the whole-file payload could not be decoded.
	ErrDecode = errors.New("malformed file data")

	// ErrBackendOperationFailed matches every error caused by an object-storage call.
	ErrBackendOperationFailed = errors.New("storage operation failed")

	ErrUploadInitFailed       = errors.New("failed to initialize upload")
	ErrSigningFailed          = errors.New("failed to get upload url")
	ErrCompletionFailed       = errors.New("failed to complete upload")
	ErrAbortFailed            = errors.New("failed to abort upload")
	ErrServerSideUploadFailed = errors.New("failed to upload large file")
)

var backendKinds = []error{
	ErrUploadInitFailed,
	ErrSigningFailed,
	ErrCompletionFailed,
	ErrAbortFailed,
	ErrServerSideUploadFailed,
}

// Error records which upload operation failed and why. Kind is one of the
// package sentinels; Err is the underlying cause.
type Error struct {
	Op       string
	Kind     error
	Key      string
	UploadID string
	Err      error
}

func (e *Error) Error() string {
	msg := "upload." + e.Op
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.UploadID != "" {
		msg += " (upload " + e.UploadID + ")"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", msg, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Is lets every backend-caused kind match ErrBackendOperationFailed.
func (e *Error) Is(target error) bool {
	if target != ErrBackendOperationFailed {
		return false
	}
	for _, k := range backendKinds {
		if e.Kind == k {
			return true
		}
	}
	return false
}

func missing(op string, fields ...string) error {
	return &Error{Op: op, Kind: ErrMissingParameter, Err: fmt.Errorf("required: %v", fields)}
}
