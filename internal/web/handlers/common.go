package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/face-finder/internal/fault"
	"github.com/kozaktomas/face-finder/internal/similarity"
)

// errInvalidRequestBody is the shared message for malformed JSON bodies.
const errInvalidRequestBody = "invalid request body"

// apiError is the wire form of a failure. Messages are client-safe; internal
// detail stays in the server log.
type apiError struct {
	Code    fault.Code `json:"code"`
	Message string     `json:"message"`
}

type errorEnvelope struct {
	Success bool     `json:"success"`
	Error   apiError `json:"error"`
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondFault maps an error to the envelope and an HTTP status. Unknown
// errors collapse to INTERNAL_SERVER_ERROR with a generic message.
func respondFault(w http.ResponseWriter, err error) {
	code := fault.CodeOf(err)
	respondJSON(w, statusForCode(code), errorEnvelope{
		Error: apiError{Code: code, Message: fault.MessageOf(err)},
	})
}

// statusForCode maps a stable error code to an HTTP status.
func statusForCode(code fault.Code) int {
	switch code {
	case fault.CodeValidation, fault.CodeInvalidFileType, fault.CodeInvalidThreshold, fault.CodeMaliciousFile:
		return http.StatusBadRequest
	case fault.CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case fault.CodeNoFaceDetected:
		return http.StatusUnprocessableEntity
	case fault.CodeSessionNotFound:
		return http.StatusNotFound
	case fault.CodeSessionExpired:
		return http.StatusGone
	case fault.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case fault.CodeWebsiteUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON parses a request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fault.New(fault.CodeValidation, errInvalidRequestBody)
	}
	return nil
}

// isoTime formats a timestamp as an ISO-8601 UTC string.
func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// roundMatches copies matches with externally visible scores rounded to two
// decimals. The stored copies keep full precision for re-thresholding.
func roundMatches(matches []similarity.Match) []similarity.Match {
	out := make([]similarity.Match, len(matches))
	for i, m := range matches {
		m.Score = similarity.RoundScore(m.Score)
		out[i] = m
	}
	return out
}
