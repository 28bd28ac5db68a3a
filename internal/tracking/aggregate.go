package tracking

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidRange is returned when an aggregation is requested over an
// invalid window (start > end) or with a non-positive frame duration or
// frame rate. Malformed windows are rejected before any computation.
var ErrInvalidRange = errors.New("invalid aggregation range")

// BuildPresenceMap folds the full result set into a mapping from person
// index to (first_frame, last_frame). The fold is a single pass seeded on
// first sight of each index, so the outcome is independent of the order of
// the input results.
func BuildPresenceMap(results []Result) PresenceMap {
	pm := make(PresenceMap)
	for _, result := range results {
		for _, person := range result.Persons {
			iv, seen := pm[person.Index]
			if !seen {
				pm[person.Index] = Interval{FirstFrame: result.Frame, LastFrame: result.Frame}
				continue
			}
			if result.Frame < iv.FirstFrame {
				iv.FirstFrame = result.Frame
			}
			if result.Frame > iv.LastFrame {
				iv.LastFrame = result.Frame
			}
			pm[person.Index] = iv
		}
	}
	return pm
}

// DetectionsAt returns the persons detected in the given frame, or an empty
// slice when the frame has no entry. Gaps between frames are valid.
func DetectionsAt(results []Result, frame int64) []Person {
	for _, result := range results {
		if result.Frame == frame {
			return result.Persons
		}
	}
	return []Person{}
}

// Summarize derives the windowed summary over [startFrame, endFrame]
// (inclusive) from a presence map. frameDuration is seconds per frame
// (1 / frame rate).
//
// A person is counted iff its first appearance is at or before endFrame,
// so a person whose whole presence lies before startFrame is still counted.
// Each counted person contributes min(endFrame, last) - max(startFrame,
// first) frames, which can be negative for intervals entirely outside the
// window; negative contributions are summed as-is.
func Summarize(pm PresenceMap, startFrame, endFrame int64, frameDuration float64) (Summary, error) {
	if startFrame > endFrame {
		return Summary{}, fmt.Errorf("%w: start_frame %d > end_frame %d", ErrInvalidRange, startFrame, endFrame)
	}
	if frameDuration <= 0 {
		return Summary{}, fmt.Errorf("%w: frame duration %g must be positive", ErrInvalidRange, frameDuration)
	}

	var count int
	var overlapFrames int64
	for _, iv := range pm {
		if iv.FirstFrame > endFrame {
			continue
		}
		count++
		overlapFrames += min(endFrame, iv.LastFrame) - max(startFrame, iv.FirstFrame)
	}

	if count == 0 {
		return Summary{}, nil
	}
	return Summary{
		TotalDetectionCount: count,
		AverageTrackingTime: float64(overlapFrames) / float64(count) * frameDuration,
	}, nil
}

// OverallSummary summarizes the whole result set: every tracked person is
// counted and contributes its full presence interval. This is the summary
// persisted on the job record at completion time.
func OverallSummary(pm PresenceMap, frameDuration float64) Summary {
	if len(pm) == 0 {
		return Summary{}
	}
	var totalFrames int64
	for _, iv := range pm {
		totalFrames += iv.LastFrame - iv.FirstFrame
	}
	return Summary{
		TotalDetectionCount: len(pm),
		AverageTrackingTime: float64(totalFrames) / float64(len(pm)) * frameDuration,
	}
}

// GroupByFrame converts the engine's millisecond-timestamped detections into
// frame-indexed results. Each timestamp is mapped to the nearest frame for
// the given frame rate, detections sharing a frame are grouped in input
// order, and the output is sorted by ascending frame so that writing the
// same detections always produces the same blob.
func GroupByFrame(timeline []TimedDetection, frameRate float64) ([]Result, error) {
	if frameRate <= 0 {
		return nil, fmt.Errorf("%w: frame rate %g must be positive", ErrInvalidRange, frameRate)
	}
	frameDurationMillis := 1000.0 / frameRate

	byFrame := make(map[int64][]Person)
	for _, det := range timeline {
		frame := int64(math.Round(float64(det.TimestampMillis) / frameDurationMillis))
		byFrame[frame] = append(byFrame[frame], det.Person)
	}

	results := make([]Result, 0, len(byFrame))
	for frame, persons := range byFrame {
		results = append(results, Result{Frame: frame, Persons: persons})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Frame < results[j].Frame })
	return results, nil
}
