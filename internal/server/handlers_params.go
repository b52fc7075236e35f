package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/apparatuslabs/apparatus/internal/model"
)

// HandleLogParam handles POST /api/params.
//
// Query parameters: run_uuid, key, value, type. The value travels as a
// string and is parsed against the declared type; re-logging a key
// overwrites the previous value, type change included.
func (h *Handlers) HandleLogParam(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	runID, err := uuid.Parse(q.Get("run_uuid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid run_uuid")
		return
	}
	key := q.Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: key")
		return
	}

	value, err := model.ParseParamValue(q.Get("type"), q.Get("value"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.SetParam(r.Context(), runID, key, value); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.StatusResponse{Status: "ok"})
}

// HandleListParams handles GET /api/runs/{run_id}/params. Values come back
// in their native JSON type.
func (h *Handlers) HandleListParams(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "run_id")
	if !ok {
		return
	}

	params, err := h.store.ListParams(r.Context(), runID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	entries := make([]model.ParamEntry, 0, len(params))
	for _, p := range params {
		entries = append(entries, model.ParamEntry{
			Key:   p.Key,
			Type:  p.Value.Type,
			Value: p.Value.Native(),
		})
	}
	writeJSON(w, http.StatusOK, entries)
}
