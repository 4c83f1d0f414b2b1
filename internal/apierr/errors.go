package apierr

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kbrauss/FMM2D/internal/logger"
)

// ErrorCode represents a structured error code
type ErrorCode string

// Error code constants organized by category
const (
	// SOLVE_ - Solver input and execution errors
	ErrSolveInvalidInput ErrorCode = "SOLVE_INVALID_INPUT"
	ErrSolveTooLarge     ErrorCode = "SOLVE_TOO_LARGE"
	ErrSolveTimeout      ErrorCode = "SOLVE_TIMEOUT"
	ErrSolveFailed       ErrorCode = "SOLVE_FAILED"

	// SYSTEM_ - System and server errors
	ErrSystemInternal    ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemUnavailable ErrorCode = "SYSTEM_UNAVAILABLE"

	// VALIDATION_ - Request validation errors
	ErrValidationInvalidJSON  ErrorCode = "VALIDATION_INVALID_JSON"
	ErrValidationMissingField ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrValidationInvalidValue ErrorCode = "VALIDATION_INVALID_VALUE"

	// RESOURCE_ - Resource errors
	ErrResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"

	// RATE_LIMIT_ - Rate limiting errors
	ErrRateLimitGlobal ErrorCode = "RATE_LIMIT_GLOBAL"
	ErrRateLimitIP     ErrorCode = "RATE_LIMIT_IP"
)

// Error represents a structured API error
type Error struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	status    int            // HTTP status code (not serialized)
}

// ErrorResponse is the top-level error response wrapper
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// New creates a new API error
func New(code ErrorCode, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		status:  status,
	}
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to the error
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Status returns the HTTP status code
func (e *Error) Status() int {
	return e.status
}

// WriteError writes a structured error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	if encErr := json.NewEncoder(w).Encode(ErrorResponse{Error: err}); encErr != nil {
		logger.Warn("failed to encode error response", "code", err.Code, "error", encErr)
	}
}

func orDefault(message, def string) string {
	if message == "" {
		return def
	}
	return message
}

// SolveInvalidInput reports a precondition violation found by the solver,
// such as a point outside the unit square.
func SolveInvalidInput(message string) *Error {
	return New(ErrSolveInvalidInput, orDefault(message, "Invalid solve input"), http.StatusBadRequest)
}

// SolveTooLarge reports a request exceeding the configured point limits.
func SolveTooLarge(limit int) *Error {
	return New(ErrSolveTooLarge, "Too many points for a single solve", http.StatusRequestEntityTooLarge).
		WithDetails(map[string]any{"max_points": limit})
}

// SolveTimeout reports a solve that did not finish within the deadline.
func SolveTimeout() *Error {
	return New(ErrSolveTimeout, "Solve did not finish before the deadline. Try a smaller problem or a lower order.", http.StatusRequestTimeout)
}

// SolveFailed reports a solver failure that is not the caller's fault.
func SolveFailed(message string) *Error {
	return New(ErrSolveFailed, orDefault(message, "Solve failed"), http.StatusInternalServerError)
}

// SystemInternal creates an internal server error
func SystemInternal(message string) *Error {
	return New(ErrSystemInternal, orDefault(message, "Internal server error"), http.StatusInternalServerError)
}

// SystemUnavailable creates a service unavailable error
func SystemUnavailable(message string) *Error {
	return New(ErrSystemUnavailable, orDefault(message, "Service unavailable"), http.StatusServiceUnavailable)
}

// ValidationInvalidJSON creates an invalid JSON error
func ValidationInvalidJSON() *Error {
	return New(ErrValidationInvalidJSON, "Invalid JSON request body", http.StatusBadRequest)
}

// ValidationMissingField creates a missing field error
func ValidationMissingField(field string) *Error {
	return New(ErrValidationMissingField, "Missing required field: "+field, http.StatusBadRequest).
		WithDetails(map[string]any{"field": field})
}

// ValidationInvalidValue creates an invalid value error
func ValidationInvalidValue(field string, message string) *Error {
	return New(ErrValidationInvalidValue, orDefault(message, "Invalid value for field: "+field), http.StatusBadRequest).
		WithDetails(map[string]any{"field": field})
}

// ResourceNotFound creates a resource not found error
func ResourceNotFound(resourceType string) *Error {
	return New(ErrResourceNotFound, resourceType+" not found", http.StatusNotFound).
		WithDetails(map[string]any{"resource_type": resourceType})
}

// RateLimitGlobal creates a global rate limit error
func RateLimitGlobal() *Error {
	return New(ErrRateLimitGlobal, "Rate limit exceeded - too many requests globally", http.StatusTooManyRequests)
}

// RateLimitIP creates an IP rate limit error
func RateLimitIP() *Error {
	return New(ErrRateLimitIP, "Rate limit exceeded - too many requests from your IP", http.StatusTooManyRequests)
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// WriteErrorWithContext writes a structured error response with request ID from context
func WriteErrorWithContext(w http.ResponseWriter, r *http.Request, err *Error) {
	if reqID := GetRequestID(r.Context()); reqID != "" {
		err = err.WithRequestID(reqID)
	}
	WriteError(w, err)
}
