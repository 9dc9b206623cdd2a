// Package fault defines the stable, machine-readable error codes shared by
// all components and the RPC boundary. Internal errors are wrapped with a
// code; the web layer maps codes to HTTP statuses and strips everything else
// before it reaches a client.
package fault

import (
	"errors"
	"fmt"
)

// Code identifies an error class. Codes are part of the API contract and
// must not change between releases.
type Code string

const (
	CodeValidation            Code = "VALIDATION_ERROR"
	CodeInvalidFileType       Code = "INVALID_FILE_TYPE"
	CodeFileTooLarge          Code = "FILE_TOO_LARGE"
	CodeMaliciousFile         Code = "MALICIOUS_FILE_DETECTED"
	CodeNoFaceDetected        Code = "NO_FACE_DETECTED"
	CodeFaceDetectionFailed   Code = "FACE_DETECTION_FAILED"
	CodeInvalidThreshold      Code = "INVALID_THRESHOLD"
	CodeSessionNotFound       Code = "SESSION_NOT_FOUND"
	CodeSessionExpired        Code = "SESSION_EXPIRED"
	CodeSessionCorrupted      Code = "SESSION_CORRUPTED"
	CodeProcessingFailed      Code = "PROCESSING_FAILED"
	CodeWebsiteUnreachable    Code = "WEBSITE_UNREACHABLE"
	CodeThumbnailExtraction   Code = "THUMBNAIL_EXTRACTION_FAILED"
	CodeSimilarityCalculation Code = "SIMILARITY_CALCULATION_FAILED"
	CodeRateLimitExceeded     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal              Code = "INTERNAL_SERVER_ERROR"
)

// Error is an error carrying a stable code and a client-safe message.
type Error struct {
	Code    Code
	Message string
	err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.err
}

// New creates a coded error with a client-safe message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted client-safe message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and client-safe message to an internal cause.
// The cause is kept for logging but never serialized to clients.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, err: err}
}

// CodeOf extracts the code from an error chain. Unknown errors map to
// INTERNAL_SERVER_ERROR.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeInternal
}

// MessageOf extracts the client-safe message from an error chain. Unknown
// errors yield a generic message so internals never leak.
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "internal server error"
}

// Is reports whether the error chain carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
