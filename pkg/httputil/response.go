// Package httputil holds shared HTTP response helpers.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/sitegrader/sitegrader/internal/domain"
)

// Response is the standard API envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is the API error body.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// JSON writes a JSON response.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

// WriteError writes an error response, mapping AuditError codes to statuses.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &Error{Code: domain.ErrCodeInvariant, Message: err.Error()}

	if ae, ok := domain.AsAuditError(err); ok {
		body.Code = ae.Code
		body.Message = ae.Message
		body.Details = ae.Metadata
		status = statusFor(ae.Code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: false, Error: body})
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(Response{Success: false, Error: &Error{Code: "NOT_FOUND", Message: message}})
}

// BadRequest writes a 400.
func BadRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(Response{Success: false, Error: &Error{Code: domain.ErrCodeInput, Message: message}})
}

func statusFor(code string) int {
	switch code {
	case domain.ErrCodeInput:
		return http.StatusBadRequest
	case domain.ErrCodeDiscoveryEmpty, domain.ErrCodeAllCapturesFailed, domain.ErrCodeAllAnalyzersFailed:
		return http.StatusUnprocessableEntity
	case domain.ErrCodeTimeout, domain.ErrCodeSynthesisTimeout:
		return http.StatusGatewayTimeout
	case domain.ErrCodeExternalAPI, domain.ErrCodeBenchmark:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
