package storage

import "errors"

// ErrNotFound is returned when a referenced run, experiment, series, or
// artifact does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrDepthExceeded is returned when creating a run would nest deeper than
// model.MaxRunDepth. The message is part of the wire contract: clients
// match on "maximum nesting level".
var ErrDepthExceeded = errors.New("maximum nesting level (2) exceeded")
