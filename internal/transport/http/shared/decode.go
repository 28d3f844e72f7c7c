package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	"paystub/internal/transport/http/api"
)

// DecodeJSON reads one JSON document into dst, rejecting unknown fields. On
// failure it writes the error response and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, requestID string) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err == nil {
		return true
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", requestID)
		return false
	}
	api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload: "+err.Error(), requestID)
	return false
}
