package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Harshitk-cp/marginal/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeCodedError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeServiceError maps service sentinels to status codes. Anything
// unrecognised is a 500 with the fallback message.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrNetworkNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNetworkConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNetworkTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrInvalidNetwork):
		writeCodedError(w, http.StatusUnprocessableEntity, "invalid_network", err.Error())
	case errors.Is(err, service.ErrContradictoryEvidence):
		writeCodedError(w, http.StatusUnprocessableEntity, "contradictory_evidence", err.Error())
	case errors.Is(err, service.ErrInvalidQuery):
		writeCodedError(w, http.StatusUnprocessableEntity, "invalid_query", err.Error())
	case errors.Is(err, service.ErrQueryTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func networkID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid network id")
		return uuid.Nil, false
	}
	return id, true
}
