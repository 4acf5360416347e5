package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"productmaster/validate"
)

type errorResponse struct {
	Error      string   `json:"error"`
	Violations []string `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the service error taxonomy onto HTTP statuses: a
// validation failure carries every violation in one 400, an unknown resource
// is a 404, anything else is a 500 with the detail kept to the logs.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if f, ok := validate.AsFailure(err); ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Violations: f.Violations})
		return
	}
	if validate.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	logger.Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
