package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/marginal/internal/domain"
	"github.com/Harshitk-cp/marginal/internal/network"
	"github.com/Harshitk-cp/marginal/internal/service"
)

type NetworkHandler struct {
	svc      *service.NetworkService
	maxBytes int64
}

func NewNetworkHandler(svc *service.NetworkService, maxBytes int64) *NetworkHandler {
	return &NetworkHandler{svc: svc, maxBytes: maxBytes}
}

// createNetworkRequest carries either a source document in one of the loader
// formats or an already structured definition.
type createNetworkRequest struct {
	Name       string              `json:"name"`
	Format     string              `json:"format"`
	Source     string              `json:"source"`
	Definition *network.Definition `json:"definition"`
}

type variableStructure struct {
	Name     string            `json:"name"`
	States   []string          `json:"states"`
	Parents  []string          `json:"parents"`
	Children []string          `json:"children"`
	Props    map[string]string `json:"properties,omitempty"`
}

type structureResponse struct {
	Name             string              `json:"name"`
	Properties       map[string]string   `json:"properties,omitempty"`
	Variables        []variableStructure `json:"variables"`
	Edges            []network.Edge      `json:"edges"`
	TopologicalOrder []string            `json:"topological_order"`
}

func (h *NetworkHandler) Create(w http.ResponseWriter, r *http.Request) {
	// JSON escaping can double a source, so leave headroom over the limit.
	body := http.MaxBytesReader(w, r.Body, 2*h.maxBytes+4096)

	var req createNetworkRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.Definition != nil && req.Source != "":
		writeError(w, http.StatusBadRequest, "provide either source or definition, not both")
		return
	case req.Definition == nil && req.Source == "":
		writeError(w, http.StatusBadRequest, "source or definition is required")
		return
	case req.Definition == nil && req.Format == "":
		writeError(w, http.StatusBadRequest, "format is required with source")
		return
	}

	var (
		rec *domain.NetworkRecord
		err error
	)
	if req.Definition != nil {
		rec, err = h.svc.RegisterDefinition(r.Context(), req.Name, *req.Definition)
	} else {
		rec, err = h.svc.Register(r.Context(), req.Name, req.Format, []byte(req.Source))
	}
	if err != nil {
		writeServiceError(w, err, "failed to register network")
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (h *NetworkHandler) List(w http.ResponseWriter, r *http.Request) {
	networks, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to list networks")
		return
	}
	if networks == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, networks)
}

func (h *NetworkHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}

	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to get network")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *NetworkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, "failed to delete network")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NetworkHandler) Structure(w http.ResponseWriter, r *http.Request) {
	id, ok := networkID(w, r)
	if !ok {
		return
	}

	net, err := h.svc.Compiled(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to load network")
		return
	}

	def := net.Definition()
	resp := structureResponse{
		Name:       net.Name(),
		Properties: net.Properties(),
		Edges:      net.Edges(),
	}
	for _, spec := range def.Variables {
		children, _ := net.Children(spec.Name)
		resp.Variables = append(resp.Variables, variableStructure{
			Name:     spec.Name,
			States:   spec.States,
			Parents:  nonNil(spec.Parents),
			Children: nonNil(children),
			Props:    spec.Properties,
		})
	}
	for v := range net.TopologicalOrder() {
		resp.TopologicalOrder = append(resp.TopologicalOrder, v.Name)
	}
	writeJSON(w, http.StatusOK, resp)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
