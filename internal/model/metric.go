package model

import "time"

// MetricPoint is a single x/y observation as it appears on the wire.
// The x axis is caller-defined (step, epoch, elapsed seconds) and need not
// be monotonic; a series is ordered by arrival, not by x.
type MetricPoint struct {
	XValue float64 `json:"x_value"`
	YValue float64 `json:"y_value"`
}

// SeriesPoint is a stored metric point, carrying the batch timestamp the
// point was logged with. All points appended in one call share LoggedAt.
type SeriesPoint struct {
	XValue   float64   `json:"x_value"`
	YValue   float64   `json:"y_value"`
	LoggedAt time.Time `json:"logged_at"`
}

// Series is the append-only ordered sequence of points logged under one
// run and one metric key.
type Series struct {
	Key    string        `json:"key"`
	Points []SeriesPoint `json:"points"`
}
