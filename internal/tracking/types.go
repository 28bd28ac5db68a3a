// Package tracking implements the frame-indexed aggregation layer over the
// per-frame person detections produced by the analysis engine. Everything in
// this package is pure computation: functions take finite, already-fetched
// result sets and derive presence intervals and windowed summary statistics.
// No I/O and no shared state; callers may run aggregations for different jobs
// concurrently without coordination.
package tracking

// BoundingBox locates a detected person within a frame. All values are
// fractional (0..1), relative to the frame dimensions.
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Person is a single detection of a tracked subject in one frame. Index is
// the identity the engine assigns to the subject; it is stable across frames.
type Person struct {
	Index       int64       `json:"index"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

// Result holds all detections for one analyzed frame. Frames are unique
// within a job's result set but not necessarily contiguous: a missing frame
// means no detections, not an error.
type Result struct {
	Frame   int64    `json:"frame"`
	Persons []Person `json:"persons"`
}

// Interval is the inclusive frame range between a person's first and last
// observed appearance.
type Interval struct {
	FirstFrame int64
	LastFrame  int64
}

// PresenceMap maps a person index to its presence interval. It is derived
// fresh per aggregation call via BuildPresenceMap and never persisted.
type PresenceMap map[int64]Interval

// Summary aggregates a frame window: how many distinct persons were counted
// and their average tracking time in seconds.
type Summary struct {
	TotalDetectionCount int     `json:"total_detection_count"`
	AverageTrackingTime float64 `json:"average_tracking_time"`
}

// TimedDetection is one raw engine detection on the millisecond timeline,
// before conversion to frame indices.
type TimedDetection struct {
	TimestampMillis int64
	Person          Person
}
