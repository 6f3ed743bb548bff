package ingress

import (
	"encoding/json"
	"encoding/xml"
	"net/http"

	"alfred-ai/internal/domain"
)

// errorEnvelope is the uniform JSON error shape of spec.md §7:
// {code, message, retryable, requestId}.
type errorEnvelope struct {
	Code      domain.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	Retryable bool             `json:"retryable"`
	RequestID string           `json:"requestId"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeXML(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write([]byte(xml.Header))
	xml.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to the uniform error envelope and an HTTP
// status derived from its ErrorCode (spec.md §7).
func writeError(w http.ResponseWriter, err error, requestID string) {
	code := domain.ErrorCodeOf(err)
	writeJSON(w, statusForCode(code), errorEnvelope{
		Code:      code,
		Message:   err.Error(),
		Retryable: domain.RetryableCode(code),
		RequestID: requestID,
	})
}

func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeDuplicateLead:
		return http.StatusOK
	case domain.CodeNoContact, domain.CodeContactability:
		return http.StatusUnprocessableEntity
	case domain.CodeNotFound, domain.CodeSessionNotFound:
		return http.StatusNotFound
	case domain.CodeBreakerOpen, domain.CodeRateLimit:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
