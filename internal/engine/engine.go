// Package engine is the boundary to the external video-analysis engine. The
// engine is a black box: it accepts a trigger call for a stored video,
// analyzes it asynchronously, and publishes a completion signal on its
// notification channel. This package only covers the synchronous half:
// triggering an analysis and fetching the finished detection timeline;
// completion signals arrive through cmd/completion-lambda.
package engine

import (
	"context"

	"github.com/jmorrow/persontrack/internal/store"
	"github.com/jmorrow/persontrack/internal/tracking"
)

// Engine triggers person-tracking analyses and fetches their results.
type Engine interface {
	// StartTracking asks the engine to analyze the video at s3Key. jobTag is
	// an opaque caller token the engine echoes back in its completion
	// signal; it carries our job_id across the asynchronous boundary.
	// Returns the engine's own job identifier.
	StartTracking(ctx context.Context, s3Key, jobTag string) (string, error)

	// FetchResults retrieves the full millisecond-timestamped detection
	// timeline and the video metadata for a finished engine job.
	FetchResults(ctx context.Context, engineJobID string) ([]tracking.TimedDetection, *store.VideoMetadata, error)
}
