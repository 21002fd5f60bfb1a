package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/marginal/internal/domain"
	"github.com/Harshitk-cp/marginal/internal/service"
)

type QueryHandler struct {
	svc *service.InferenceService
}

func NewQueryHandler(svc *service.InferenceService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

type marginalsRequest struct {
	Evidence  map[string]string `json:"evidence"`
	Heuristic string            `json:"heuristic"`
}

type marginalsResponse struct {
	Evidence  map[string]string  `json:"evidence,omitempty"`
	Marginals []service.Marginal `json:"marginals"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}

	var req service.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Variables) == 0 {
		writeError(w, http.StatusBadRequest, "variables is required")
		return
	}

	resp, err := h.svc.Query(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err, "failed to run query")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *QueryHandler) Marginals(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}

	var req marginalsRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	marginals, err := h.svc.Marginals(r.Context(), id, req.Evidence, req.Heuristic)
	if err != nil {
		writeServiceError(w, err, "failed to compute marginals")
		return
	}
	writeJSON(w, http.StatusOK, marginalsResponse{Evidence: req.Evidence, Marginals: marginals})
}

func (h *QueryHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	queries, err := h.svc.History(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, err, "failed to list queries")
		return
	}
	if queries == nil {
		queries = []domain.QueryRecord{}
	}
	writeJSON(w, http.StatusOK, queries)
}
