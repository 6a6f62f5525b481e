package http

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Error codes returned to clients of the auth endpoints.
const (
	CodeRetry      = "retry"      // restart or repeat the current step
	CodeLockedOut  = "locked_out" // wait retry_after_ms before trying again
	CodeBadRequest = "bad_request"
	CodeNotFound   = "not_found"
	CodeInternal   = "internal_error"
	CodeRateLimit  = "rate_limit_exceeded"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorBody represents a standard API error
type ErrorBody struct {
	Code         string `json:"code"`                     // Machine-readable error code
	Message      string `json:"message"`                  // Human-readable message
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"` // Set only for lockouts
}

// WriteJSON writes a successful envelope around data
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	writeEnvelope(w, statusCode, Envelope{Success: true, Data: data})
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	writeEnvelope(w, statusCode, Envelope{Error: &ErrorBody{Code: code, Message: message}})
}

// WriteLockedOut writes a 429 carrying the remaining lockout both as Retry-After and retry_after_ms.
func WriteLockedOut(w http.ResponseWriter, remaining time.Duration) {
	if remaining < 0 {
		remaining = 0
	}
	seconds := int64(math.Ceil(remaining.Seconds()))
	w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))

	writeEnvelope(w, http.StatusTooManyRequests, Envelope{Error: &ErrorBody{
		Code:         CodeLockedOut,
		Message:      "too many failed attempts, try again later",
		RetryAfterMs: remaining.Milliseconds(),
	}})
}

func writeEnvelope(w http.ResponseWriter, statusCode int, env Envelope) {
	env.Timestamp = time.Now().UTC()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	// Encoding errors are not exposed to the client
	_ = json.NewEncoder(w).Encode(env)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeBadRequest, message)
}

// WriteRetry rejects an auth step without saying which check failed.
func WriteRetry(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeRetry, message)
}

// WriteRetryWithState rejects an auth step but hands back what the caller needs
// to try again, such as a freshly issued challenge.
func WriteRetryWithState(w http.ResponseWriter, message string, state any) {
	writeEnvelope(w, http.StatusUnauthorized, Envelope{
		Data:  state,
		Error: &ErrorBody{Code: CodeRetry, Message: message},
	})
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeRateLimit, message)
}

func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeRetry, message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternal, message)
}
