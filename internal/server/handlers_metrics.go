package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/apparatuslabs/apparatus/internal/model"
)

// HandleLogMetrics handles POST /api/metrics.
//
// The JSON body carries a batch of points for one (run, key) series plus a
// client-side timestamp. Structural validation happens before any lookup so
// a caller gets the full missing-field list in one round trip.
func (h *Handlers) HandleLogMetrics(w http.ResponseWriter, r *http.Request) {
	var req model.LogMetricsRequest
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if missing := req.MissingFields(); len(missing) > 0 {
		writeMissingFields(w, missing)
		return
	}

	runID, err := uuid.Parse(req.RunUUID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid run_uuid")
		return
	}

	loggedAt := time.UnixMilli(*req.LoggedAtEpochMillis).UTC()
	if err := h.store.AppendMetrics(r.Context(), runID, req.Key, *req.Values, loggedAt); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.StatusResponse{Status: "ok"})
}

// HandleGetMetrics handles GET /api/runs/{run_id}/metrics.
//
// With ?key= it returns that series in arrival order; without it, the
// run's series keys.
func (h *Handlers) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "run_id")
	if !ok {
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		keys, err := h.store.ListSeriesKeys(r.Context(), runID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, model.SeriesKeysResponse{Keys: keys})
		return
	}

	points, err := h.store.GetSeries(r.Context(), runID, key)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Series{Key: key, Points: points})
}
