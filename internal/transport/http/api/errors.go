package api

import (
	"errors"
	"net/http"

	"paystub/internal/platform/apperr"
)

// StatusFor maps an error kind to its HTTP status and envelope code.
func StatusFor(err error) (int, string) {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest, string(apperr.KindInvalidInput)
	case apperr.KindRenderTransient:
		return http.StatusServiceUnavailable, string(apperr.KindRenderTransient)
	case apperr.KindIntegrity:
		return http.StatusInternalServerError, string(apperr.KindIntegrity)
	case apperr.KindConfiguration:
		return http.StatusInternalServerError, string(apperr.KindConfiguration)
	}
	return http.StatusInternalServerError, "internal_error"
}

// FailError writes err as an envelope. Invalid input echoes the message;
// every other kind hides internals behind a fixed message.
func FailError(w http.ResponseWriter, err error, requestID string) {
	status, code := StatusFor(err)
	message := "internal error"
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput:
		message = err.Error()
	case apperr.KindRenderTransient:
		w.Header().Set("Retry-After", "1")
		message = "document rendering temporarily unavailable"
	case apperr.KindIntegrity:
		message = "integrity check failed"
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		status, code, message = http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large"
	}
	Fail(w, status, code, message, requestID)
}
