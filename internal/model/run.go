// Package model defines the core domain types for Apparatus.
//
// Types correspond directly to database rows and wire payloads. Strong
// typing (UUIDs, time.Time, a tagged union for param values) is preferred
// over maps and interface{}.
package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultExperimentID is the well-known id of the pre-seeded "Default"
// experiment. Runs created without an explicit experiment (and without a
// parent to inherit one from) are filed here. A data invariant, not a
// runtime singleton: migration 001 seeds the row.
var DefaultExperimentID = uuid.Nil

// MaxRunDepth is the deepest nesting level a run may have:
// 0 = root, 1 = child, 2 = grandchild.
const MaxRunDepth = 2

// Experiment is a named grouping of root-level runs.
// Duplicate names are permitted; the id is the identity.
type Experiment struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Run is a single recorded execution, optionally nested under a parent run.
// Immutable once created; all logged data (params, metrics, artifacts)
// hangs off the run id. Depth is stored denormalized so nesting validation
// is a single parent-row read at creation time.
type Run struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	ExperimentID uuid.UUID  `json:"experiment_id"`
	ParentRunID  *uuid.UUID `json:"parent_run_id,omitempty"`
	Depth        int        `json:"depth"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsRoot reports whether the run sits at the top level of its experiment.
func (r Run) IsRoot() bool {
	return r.ParentRunID == nil
}
