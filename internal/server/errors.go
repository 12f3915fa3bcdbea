package server

import (
	"encoding/json"
	"net/http"

	"github.com/user/rsalab/internal/engine"
	"github.com/user/rsalab/internal/keyerr"
)

type errorBody struct {
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
}

// statusFor maps engine failures to HTTP status codes.
func statusFor(err error) int {
	return statusForKind(engine.ErrorKind(err))
}

func statusForKind(kind string) int {
	switch kind {
	case keyerr.KindMalformedKeyEncoding.String(),
		keyerr.KindUnsupportedKeyFormat.String(),
		keyerr.KindKeyTooSmall.String(),
		engine.KindUnknownCommand:
		return http.StatusBadRequest
	case keyerr.KindInvalidKeyMaterial.String():
		return http.StatusUnprocessableEntity
	case keyerr.KindKeyGenerationTimedOut.String():
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error(), ErrorKind: engine.ErrorKind(err)})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, ErrorKind: "BadRequest"})
}
