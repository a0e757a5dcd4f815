package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/apperrors"
)

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteText writes a plain-text response.
func WriteText(w http.ResponseWriter, statusCode int, body string) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	_, err := w.Write([]byte(body))
	return err
}

// ErrorResponse writes a JSON error for failures outside the pipeline, such
// as an unsupported method.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// StatusForKind maps an error kind to the HTTP status returned for it.
func StatusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindInvalidRequest:
		return http.StatusBadRequest
	case apperrors.KindPermission:
		return http.StatusForbidden
	case apperrors.KindSyntax, apperrors.KindExecution:
		return http.StatusUnprocessableEntity
	case apperrors.KindGeneration, apperrors.KindSynthesis:
		return http.StatusBadGateway
	case apperrors.KindConnection:
		return http.StatusServiceUnavailable
	case apperrors.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
