package model

import (
	"time"

	"github.com/google/uuid"
)

// CreateRunResponse is the body for POST /api/runs.
type CreateRunResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// CreateExperimentResponse is the body for POST /api/experiments.
type CreateExperimentResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// StatusResponse is the body for logging endpoints that only acknowledge.
type StatusResponse struct {
	Status string `json:"status"`
}

// ArtifactUploadResponse is the body for POST /api/artifacts.
type ArtifactUploadResponse struct {
	Status string `json:"status"`
	Path   string `json:"path"`
	URI    string `json:"uri"`
}

// ErrorResponse is the wire shape of every failure. MissingFields is
// populated only for metric ingestion so callers can self-diagnose a
// malformed batch without server-side logs.
type ErrorResponse struct {
	Error         string   `json:"error"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// LogMetricsRequest is the JSON body for POST /api/metrics. Values and
// LoggedAtEpochMillis are pointers so that an absent field is
// distinguishable from an empty batch or a zero timestamp.
type LogMetricsRequest struct {
	RunUUID             string         `json:"run_uuid"`
	Key                 string         `json:"key"`
	Values              *[]MetricPoint `json:"values,omitempty"`
	LoggedAtEpochMillis *int64         `json:"logged_at_epoch_millis,omitempty"`
}

// MissingFields lists the required fields absent from the request, in wire
// order. Empty means the request is structurally complete.
func (r LogMetricsRequest) MissingFields() []string {
	var missing []string
	if r.RunUUID == "" {
		missing = append(missing, "run_uuid")
	}
	if r.Key == "" {
		missing = append(missing, "key")
	}
	if r.Values == nil {
		missing = append(missing, "values")
	}
	if r.LoggedAtEpochMillis == nil {
		missing = append(missing, "logged_at_epoch_millis")
	}
	return missing
}

// ParamEntry is one row of GET /api/runs/{id}/params.
type ParamEntry struct {
	Key   string    `json:"key"`
	Type  ParamType `json:"type"`
	Value any       `json:"value"`
}

// SeriesKeysResponse is the body for GET /api/runs/{id}/metrics without a
// key filter.
type SeriesKeysResponse struct {
	Keys []string `json:"keys"`
}

// RunDetail is the body for GET /api/runs/{id}: the run plus the context a
// client needs to render it (owning experiment, breadcrumb chain).
type RunDetail struct {
	Run        Run        `json:"run"`
	Experiment Experiment `json:"experiment"`
	Ancestors  []Run      `json:"ancestors"` // root first; empty for root runs
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

// AuthTokenRequest is the body for POST /auth/token.
type AuthTokenRequest struct {
	APIKey string `json:"api_key"`
}

// AuthTokenResponse is the body for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
