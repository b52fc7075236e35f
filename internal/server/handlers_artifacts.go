package server

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/apparatuslabs/apparatus/internal/model"
)

// HandleLogArtifact handles POST /api/artifacts.
//
// multipart/form-data with parts run_uuid, path, and file. The payload
// streams to the blob sink first; the metadata row is written only once the
// bytes are durable, so a listed artifact is always downloadable.
func (h *Handlers) HandleLogArtifact(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxArtifactBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse multipart form")
		return
	}

	rawRunUUID := r.FormValue("run_uuid")
	artifactPath := r.FormValue("path")
	if rawRunUUID == "" || artifactPath == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: run_uuid, path")
		return
	}
	runID, err := uuid.Parse(rawRunUUID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid run_uuid")
		return
	}
	if err := model.ValidateArtifactPath(artifactPath); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid artifact path: %v", err))
		return
	}

	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	uri, err := h.blobs.Put(r.Context(), runID, artifactPath, file)
	if err != nil {
		h.logger.Error("artifact store failed",
			"error", err,
			"run_id", runID,
			"path", artifactPath,
		)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to store artifact: %v", err))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(path.Ext(artifactPath)); byExt != "" {
			contentType = byExt
		}
	}

	err = h.store.PutArtifact(r.Context(), model.Artifact{
		RunID:       runID,
		Path:        artifactPath,
		URI:         uri,
		ContentType: contentType,
		UploadedAt:  time.Now().UTC(),
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ArtifactUploadResponse{Status: "ok", Path: artifactPath, URI: uri})
}

// HandleListArtifacts handles GET /api/runs/{run_id}/artifacts.
func (h *Handlers) HandleListArtifacts(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(w, r, "run_id")
	if !ok {
		return
	}

	artifacts, err := h.store.ListArtifacts(r.Context(), runID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artifacts)
}

// HandleDownloadArtifact handles GET /api/artifacts/blob?run_uuid=&path=.
// The metadata row resolves to a blob URI; the payload streams back with
// the recorded content type.
func (h *Handlers) HandleDownloadArtifact(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runID, err := uuid.Parse(q.Get("run_uuid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid run_uuid")
		return
	}
	artifactPath := q.Get("path")
	if artifactPath == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: path")
		return
	}

	artifact, err := h.store.GetArtifact(r.Context(), runID, artifactPath)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	rc, err := h.blobs.Get(r.Context(), artifact.URI)
	if err != nil {
		h.logger.Error("artifact payload missing",
			"error", err,
			"run_id", runID,
			"path", artifactPath,
			"uri", artifact.URI,
		)
		writeError(w, http.StatusNotFound, "Artifact payload not found")
		return
	}
	defer rc.Close()

	if artifact.ContentType != "" {
		w.Header().Set("Content-Type", artifact.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}
