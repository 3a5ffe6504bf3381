package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/relves/landreg/pkg/registry"
)

// errorResponse is the single failure shape every handler renders.
type errorResponse struct {
	Message string `json:"message"`
}

// statusFor maps every error kind to its HTTP status. The kind enum is
// closed, so the switch is exhaustive; anything that reaches the default arm
// carries no kind and is reported as not implemented rather than guessed at.
func statusFor(kind registry.Kind) int {
	switch kind {
	case registry.KindValidation, registry.KindDecode:
		return http.StatusBadRequest
	case registry.KindAuth:
		return http.StatusUnauthorized
	case registry.KindNotFound:
		return http.StatusNotFound
	case registry.KindBackend, registry.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusNotImplemented
	}
}

// writeError renders err as {"message": ...} with the status its kind maps
// to. Backend and internal failures are logged with the cause; client errors
// are the caller's problem and only surface in the response.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := registry.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "kind", kind, "error", err)
	}
	writeJSON(w, status, errorResponse{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
