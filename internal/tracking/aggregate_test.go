package tracking

import (
	"errors"
	"math"
	"testing"
)

func person(index int64) Person {
	return Person{Index: index, BoundingBox: BoundingBox{Left: 0.1, Top: 0.1, Width: 0.2, Height: 0.4}}
}

// The worked example: two persons, frames 0 and 5, window [0,5] at one
// second per frame.
func sampleResults() []Result {
	return []Result{
		{Frame: 0, Persons: []Person{person(1)}},
		{Frame: 5, Persons: []Person{person(1)}},
		{Frame: 5, Persons: []Person{person(2)}},
	}
}

func TestBuildPresenceMap(t *testing.T) {
	pm := BuildPresenceMap(sampleResults())

	if len(pm) != 2 {
		t.Fatalf("expected 2 tracked persons, got %d", len(pm))
	}
	if iv := pm[1]; iv.FirstFrame != 0 || iv.LastFrame != 5 {
		t.Errorf("person 1: expected interval (0,5), got (%d,%d)", iv.FirstFrame, iv.LastFrame)
	}
	if iv := pm[2]; iv.FirstFrame != 5 || iv.LastFrame != 5 {
		t.Errorf("person 2: expected interval (5,5), got (%d,%d)", iv.FirstFrame, iv.LastFrame)
	}
}

func TestBuildPresenceMap_OrderIndependent(t *testing.T) {
	results := []Result{
		{Frame: 12, Persons: []Person{person(7)}},
		{Frame: 3, Persons: []Person{person(7), person(9)}},
		{Frame: 30, Persons: []Person{person(9)}},
		{Frame: 0, Persons: []Person{person(7)}},
	}

	want := BuildPresenceMap(results)

	// Reversed and rotated permutations must derive the same intervals.
	permutations := [][]Result{
		{results[3], results[2], results[1], results[0]},
		{results[2], results[0], results[3], results[1]},
	}
	for _, perm := range permutations {
		got := BuildPresenceMap(perm)
		if len(got) != len(want) {
			t.Fatalf("expected %d persons, got %d", len(want), len(got))
		}
		for index, iv := range want {
			if got[index] != iv {
				t.Errorf("person %d: expected %+v, got %+v", index, iv, got[index])
			}
		}
	}
}

func TestBuildPresenceMap_Empty(t *testing.T) {
	if pm := BuildPresenceMap(nil); len(pm) != 0 {
		t.Errorf("expected empty presence map, got %d entries", len(pm))
	}
}

func TestDetectionsAt(t *testing.T) {
	results := sampleResults()

	if got := DetectionsAt(results, 0); len(got) != 1 || got[0].Index != 1 {
		t.Errorf("frame 0: expected person 1, got %+v", got)
	}
	// Gaps between analyzed frames mean "no detections", not an error.
	if got := DetectionsAt(results, 3); len(got) != 0 {
		t.Errorf("frame 3: expected no detections, got %+v", got)
	}
}

func TestSummarize_WorkedScenario(t *testing.T) {
	pm := BuildPresenceMap(sampleResults())

	summary, err := Summarize(pm, 0, 5, 1.0)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.TotalDetectionCount != 2 {
		t.Errorf("expected 2 counted persons, got %d", summary.TotalDetectionCount)
	}
	// Overlaps are 5-0=5 and 5-5=0, so the average is 2.5 seconds.
	if summary.AverageTrackingTime != 2.5 {
		t.Errorf("expected average tracking time 2.5, got %g", summary.AverageTrackingTime)
	}
}

func TestSummarize_Empty(t *testing.T) {
	summary, err := Summarize(PresenceMap{}, 0, 100, 1.0/30)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.TotalDetectionCount != 0 || summary.AverageTrackingTime != 0 {
		t.Errorf("expected zero summary, got %+v", summary)
	}
}

func TestSummarize_PersonBeforeWindowStillCounted(t *testing.T) {
	// A person whose whole presence lies before the window stays counted and
	// contributes a negative, unclamped overlap.
	pm := PresenceMap{4: {FirstFrame: 0, LastFrame: 10}}

	summary, err := Summarize(pm, 20, 30, 1.0)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.TotalDetectionCount != 1 {
		t.Fatalf("expected person counted, got %d", summary.TotalDetectionCount)
	}
	// min(30,10) - max(20,0) = -10
	if summary.AverageTrackingTime != -10 {
		t.Errorf("expected unclamped overlap -10, got %g", summary.AverageTrackingTime)
	}
}

func TestSummarize_PersonAfterWindowExcluded(t *testing.T) {
	pm := PresenceMap{1: {FirstFrame: 50, LastFrame: 80}}

	summary, err := Summarize(pm, 0, 10, 1.0)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.TotalDetectionCount != 0 {
		t.Errorf("person first seen after the window must be excluded, got %+v", summary)
	}
}

func TestSummarize_InvalidRange(t *testing.T) {
	pm := BuildPresenceMap(sampleResults())

	if _, err := Summarize(pm, 10, 5, 1.0); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("start > end: expected ErrInvalidRange, got %v", err)
	}
	if _, err := Summarize(pm, 0, 5, 0); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("zero frame duration: expected ErrInvalidRange, got %v", err)
	}
	if _, err := Summarize(pm, 0, 5, -0.5); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("negative frame duration: expected ErrInvalidRange, got %v", err)
	}
}

func TestOverallSummary(t *testing.T) {
	pm := PresenceMap{
		1: {FirstFrame: 0, LastFrame: 30},
		2: {FirstFrame: 10, LastFrame: 20},
	}

	summary := OverallSummary(pm, 1.0/30)
	if summary.TotalDetectionCount != 2 {
		t.Errorf("expected 2 persons, got %d", summary.TotalDetectionCount)
	}
	// (30 + 10) / 2 frames at 1/30 s per frame.
	want := 20.0 / 30.0
	if math.Abs(summary.AverageTrackingTime-want) > 1e-9 {
		t.Errorf("expected average %g, got %g", want, summary.AverageTrackingTime)
	}

	if empty := OverallSummary(PresenceMap{}, 1.0/30); empty.TotalDetectionCount != 0 || empty.AverageTrackingTime != 0 {
		t.Errorf("expected zero summary for empty map, got %+v", empty)
	}
}

func TestGroupByFrame(t *testing.T) {
	// 30 fps: one frame every 33.3 ms.
	timeline := []TimedDetection{
		{TimestampMillis: 0, Person: person(1)},
		{TimestampMillis: 34, Person: person(2)}, // rounds to frame 1
		{TimestampMillis: 33, Person: person(1)}, // rounds to frame 1
		{TimestampMillis: 167, Person: person(1)},
	}

	results, err := GroupByFrame(timeline, 30)
	if err != nil {
		t.Fatalf("GroupByFrame: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(results))
	}
	// Sorted by ascending frame.
	if results[0].Frame != 0 || results[1].Frame != 1 || results[2].Frame != 5 {
		t.Errorf("unexpected frame order: %d, %d, %d", results[0].Frame, results[1].Frame, results[2].Frame)
	}
	if len(results[1].Persons) != 2 {
		t.Errorf("expected 2 detections grouped into frame 1, got %d", len(results[1].Persons))
	}
}

func TestGroupByFrame_InvalidFrameRate(t *testing.T) {
	if _, err := GroupByFrame(nil, 0); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange for zero frame rate, got %v", err)
	}
}
