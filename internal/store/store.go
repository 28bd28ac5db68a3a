// Package store provides persistent job metadata storage for the person
// tracking pipeline. Job records survive Lambda container recycling,
// concurrent invocations, and deployments; the only cross-invocation
// coordination primitive is the conditional status update, which gives the
// completion path compare-and-swap semantics on a single job record.
//
// Two implementations exist: DynamoStore (production, one table keyed by
// job_id with a gsi-userid index ordered by request timestamp) and
// MemoryStore (tests and local tooling).
package store

import (
	"context"
	"errors"
	"time"
)

// Job statuses. Transitions are monotonic: PENDING → INPROGRESS →
// {SUCCEEDED, FAILED}. SUCCEEDED and FAILED are terminal and never revert.
const (
	StatusPending    JobStatus = "PENDING"
	StatusInProgress JobStatus = "INPROGRESS"
	StatusSucceeded  JobStatus = "SUCCEEDED"
	StatusFailed     JobStatus = "FAILED"
)

// JobStatus is the lifecycle state of a tracking job.
type JobStatus string

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Valid reports whether s is one of the four canonical statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when a job_id has no record.
	ErrNotFound = errors.New("job not found")

	// ErrConflict is returned when a conditional status update observes a
	// different current status than expected. Duplicate or racing completion
	// signals surface here instead of overwriting a terminal state.
	ErrConflict = errors.New("job status conflict")
)

// ReadError wraps a transient storage failure on the read path. Callers may
// retry; the underlying error is preserved via Unwrap.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

// WriteError wraps a transient storage failure on the write path.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }

// VideoMetadata describes the analyzed video. Present on a job once the
// engine has reported it; always present on SUCCEEDED jobs.
type VideoMetadata struct {
	// DurationMillis is the total video duration in milliseconds.
	DurationMillis int64 `json:"duration" dynamodbav:"duration"`
	// FrameRate is the number of frames per second.
	FrameRate   float64 `json:"frame_rate" dynamodbav:"frame_rate"`
	FrameHeight int64   `json:"frame_height" dynamodbav:"frame_height"`
	FrameWidth  int64   `json:"frame_width" dynamodbav:"frame_width"`
}

// TrackingSummary is the whole-video summary persisted on SUCCEEDED jobs.
// AverageTrackingTime is in seconds.
type TrackingSummary struct {
	TotalDetectionCount int     `json:"total_detection_count" dynamodbav:"total_detection_count"`
	AverageTrackingTime float64 `json:"average_tracking_time" dynamodbav:"average_tracking_time"`
}

// Job is one submitted video-analysis request and its lifecycle state.
// TrackingSummary and VideoMetadata are non-nil iff Status is SUCCEEDED
// (metadata may appear earlier once the engine reports it); both are written
// in the same conditional update that flips the status, so no intermediate
// state is ever observable.
type Job struct {
	JobID    string `json:"job_id" dynamodbav:"job_id"`
	UserID   string `json:"user_id" dynamodbav:"user_id"`
	Filename string `json:"filename" dynamodbav:"filename"`
	// S3FolderName is the per-job folder holding the uploaded video and,
	// after success, the frame-result blob.
	S3FolderName string `json:"s3_folder_name" dynamodbav:"s3_folder_name"`
	// RequestTimestamp is Unix seconds at submission. Immutable.
	RequestTimestamp int64     `json:"request_timestamp" dynamodbav:"request_timestamp"`
	Status           JobStatus `json:"job_status" dynamodbav:"job_status"`
	// EngineJobID is the analysis engine's own identifier for this job,
	// recorded once the engine trigger succeeds.
	EngineJobID     string           `json:"-" dynamodbav:"engine_job_id,omitempty"`
	TrackingSummary *TrackingSummary `json:"tracking_summary,omitempty" dynamodbav:"tracking_summary,omitempty"`
	VideoMetadata   *VideoMetadata   `json:"video_metadata,omitempty" dynamodbav:"video_metadata,omitempty"`
}

// NewJob builds a PENDING job record stamped with the current time.
func NewJob(jobID, userID, s3FolderName, filename string) *Job {
	return &Job{
		JobID:            jobID,
		UserID:           userID,
		Filename:         filename,
		S3FolderName:     s3FolderName,
		RequestTimestamp: time.Now().Unix(),
		Status:           StatusPending,
	}
}

// Cursor identifies the last item returned by a paginated owner scan. It is
// a stateless token: resuming with it yields the same gap-free,
// duplicate-free sequence as a single unpaginated scan over a static
// dataset.
type Cursor struct {
	JobID            string `json:"job_id" dynamodbav:"job_id"`
	UserID           string `json:"user_id" dynamodbav:"user_id"`
	RequestTimestamp int64  `json:"request_timestamp" dynamodbav:"request_timestamp"`
}

// StatusFields carries the attributes written together with a status
// transition. Zero members are left untouched.
type StatusFields struct {
	EngineJobID     string
	VideoMetadata   *VideoMetadata
	TrackingSummary *TrackingSummary
}

// JobStore is the persistence interface for job records. Each method is safe
// for concurrent use and honors context cancellation.
type JobStore interface {
	// Put creates or replaces a job record.
	Put(ctx context.Context, job *Job) error

	// Get retrieves a job by id. Returns ErrNotFound when absent.
	Get(ctx context.Context, jobID string) (*Job, error)

	// ConditionalUpdateStatus transitions a job from expected to next in a
	// single atomic write, applying any extra fields in the same write.
	// Returns ErrConflict when the stored status is not expected, and
	// ErrNotFound when the job does not exist.
	ConditionalUpdateStatus(ctx context.Context, jobID string, expected, next JobStatus, fields *StatusFields) error

	// ScanByUser returns one page of the owner's jobs ordered by ascending
	// request timestamp, resuming after cursor when non-nil. The returned
	// cursor is nil once the scan is exhausted.
	ScanByUser(ctx context.Context, userID string, cursor *Cursor, pageSize int32) ([]*Job, *Cursor, error)

	// Delete removes a job record. Deleting an absent job is not an error.
	Delete(ctx context.Context, jobID string) error
}
