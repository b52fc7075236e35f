package server

import (
	"net/http"

	"github.com/apparatuslabs/apparatus/internal/model"
)

// HandleCreateExperiment handles POST /api/experiments?name=<string>.
// Duplicate names are permitted; every call creates a fresh experiment.
func (h *Handlers) HandleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: name")
		return
	}

	exp, err := h.store.CreateExperiment(r.Context(), name)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.CreateExperimentResponse{ID: exp.ID, Name: exp.Name})
}

// HandleListExperiments handles GET /api/experiments.
func (h *Handlers) HandleListExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := h.store.ListExperiments(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, experiments)
}

// HandleListExperimentRuns handles GET /api/experiments/{experiment_id}/runs:
// the experiment's root runs, newest first. Nested runs are reached through
// their parents.
func (h *Handlers) HandleListExperimentRuns(w http.ResponseWriter, r *http.Request) {
	expID, ok := pathUUID(w, r, "experiment_id")
	if !ok {
		return
	}

	if _, err := h.store.GetExperiment(r.Context(), expID); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	runs, err := h.store.ListRootRuns(r.Context(), expID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
