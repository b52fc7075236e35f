package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/apparatuslabs/apparatus/internal/model"
	"github.com/apparatuslabs/apparatus/internal/storage"
)

// HandleCreateRun handles POST /api/runs.
//
// Query parameters: name, experiment_uuid (optional), parent_run_uuid
// (optional). A parented run inherits the parent's experiment.
func (h *Handlers) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := storage.CreateRunRequest{Name: q.Get("name")}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: name")
		return
	}

	if raw := q.Get("experiment_uuid"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid experiment")
			return
		}
		req.ExperimentID = &id
	}
	if raw := q.Get("parent_run_uuid"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid parent run")
			return
		}
		req.ParentRunID = &id
	}

	run, err := h.store.CreateRun(r.Context(), req)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.CreateRunResponse{ID: run.ID, Name: run.Name})
}

// HandleGetRun handles GET /api/runs/{run_id}: the run plus its owning
// experiment and breadcrumb chain.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "run_id")
	if !ok {
		return
	}

	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	exp, err := h.store.GetExperiment(r.Context(), run.ExperimentID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	ancestors, err := h.store.Ancestors(r.Context(), runID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if ancestors == nil {
		ancestors = []model.Run{}
	}

	writeJSON(w, http.StatusOK, model.RunDetail{Run: run, Experiment: exp, Ancestors: ancestors})
}

// HandleListChildren handles GET /api/runs/{run_id}/children.
func (h *Handlers) HandleListChildren(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "run_id")
	if !ok {
		return
	}

	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	children, err := h.store.ListChildren(r.Context(), runID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, children)
}

// HandleAncestors handles GET /api/runs/{run_id}/ancestors.
func (h *Handlers) HandleAncestors(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "run_id")
	if !ok {
		return
	}

	ancestors, err := h.store.Ancestors(r.Context(), runID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if ancestors == nil {
		ancestors = []model.Run{}
	}
	writeJSON(w, http.StatusOK, ancestors)
}
