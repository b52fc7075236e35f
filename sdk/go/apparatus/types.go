package apparatus

import (
	"time"

	"github.com/google/uuid"
)

// Experiment is a named grouping of root-level runs.
type Experiment struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Run is a single recorded execution, optionally nested under a parent run.
type Run struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	ExperimentID uuid.UUID  `json:"experiment_id"`
	ParentRunID  *uuid.UUID `json:"parent_run_id,omitempty"`
	Depth        int        `json:"depth"`
	CreatedAt    time.Time  `json:"created_at"`
}

// RunRef identifies a freshly created run.
type RunRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ExperimentRef identifies a freshly created experiment.
type ExperimentRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// RunDetail is a run with its owning experiment and breadcrumb chain.
type RunDetail struct {
	Run        Run        `json:"run"`
	Experiment Experiment `json:"experiment"`
	Ancestors  []Run      `json:"ancestors"`
}

// MetricPoint is a single x/y observation. The x axis is caller-defined
// (step, epoch, elapsed seconds) and need not be monotonic.
type MetricPoint struct {
	XValue float64 `json:"x_value"`
	YValue float64 `json:"y_value"`
}

// SeriesPoint is a stored metric point with its batch timestamp.
type SeriesPoint struct {
	XValue   float64   `json:"x_value"`
	YValue   float64   `json:"y_value"`
	LoggedAt time.Time `json:"logged_at"`
}

// Series is one run's metric series in arrival order.
type Series struct {
	Key    string        `json:"key"`
	Points []SeriesPoint `json:"points"`
}

// Param is one logged key/value pair. Value is the JSON-decoded form:
// string, bool, or float64 depending on Type.
type Param struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Artifact is the metadata record of an uploaded artifact.
type Artifact struct {
	RunID       uuid.UUID `json:"run_id"`
	Path        string    `json:"path"`
	URI         string    `json:"uri"`
	ContentType string    `json:"content_type,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ArtifactUpload is the server's acknowledgement of an artifact upload.
type ArtifactUpload struct {
	Status string `json:"status"`
	Path   string `json:"path"`
	URI    string `json:"uri"`
}

// Health is the output of Client.Health.
type Health struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

// CreateRunOptions are optional settings for Client.CreateRun.
// ExperimentID files the run under an experiment; ParentRunID nests it
// under an existing run (the parent's experiment then applies).
type CreateRunOptions struct {
	ExperimentID *uuid.UUID
	ParentRunID  *uuid.UUID
}
