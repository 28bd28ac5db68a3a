package completion

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/jmorrow/persontrack/internal/lifecycle"
	"github.com/jmorrow/persontrack/internal/store"
	"github.com/jmorrow/persontrack/internal/tracking"
)

// fakeEngine serves a fixed 30 fps timeline: person 1 at frames 0 and 5,
// person 2 at frame 5.
type fakeEngine struct {
	fetches int
}

func (f *fakeEngine) StartTracking(ctx context.Context, s3Key, jobTag string) (string, error) {
	return "engine-1", nil
}

func (f *fakeEngine) FetchResults(ctx context.Context, engineJobID string) ([]tracking.TimedDetection, *store.VideoMetadata, error) {
	f.fetches++
	person := func(index int64) tracking.Person {
		return tracking.Person{Index: index, BoundingBox: tracking.BoundingBox{Left: 0.1, Top: 0.1, Width: 0.2, Height: 0.4}}
	}
	timeline := []tracking.TimedDetection{
		{TimestampMillis: 0, Person: person(1)},
		{TimestampMillis: 167, Person: person(1)},
		{TimestampMillis: 167, Person: person(2)},
	}
	meta := &store.VideoMetadata{DurationMillis: 200, FrameRate: 30, FrameHeight: 1080, FrameWidth: 1920}
	return timeline, meta, nil
}

// fakeSink records blob writes per folder.
type fakeSink struct {
	puts    int
	folders map[string][]tracking.Result
}

func newFakeSink() *fakeSink {
	return &fakeSink{folders: make(map[string][]tracking.Result)}
}

func (f *fakeSink) Put(ctx context.Context, folder string, results []tracking.Result) error {
	f.puts++
	f.folders[folder] = results
	return nil
}

// flakyStore fails a number of conditional updates before delegating.
type flakyStore struct {
	store.JobStore
	updateFailures int
}

func (f *flakyStore) ConditionalUpdateStatus(ctx context.Context, jobID string, expected, next store.JobStatus, fields *store.StatusFields) error {
	if f.updateFailures > 0 {
		f.updateFailures--
		return &store.WriteError{Op: "UpdateItem job " + jobID, Err: errors.New("throttled")}
	}
	return f.JobStore.ConditionalUpdateStatus(ctx, jobID, expected, next, fields)
}

func newFixture(t *testing.T, jobStore store.JobStore) (*Processor, *fakeEngine, *fakeSink, string) {
	t.Helper()
	eng := &fakeEngine{}
	sink := newFakeSink()
	manager := lifecycle.NewManager(jobStore, eng)

	jobID, err := manager.Submit(context.Background(), "user-a", "clip.mp4", "folder-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return NewProcessor(jobStore, manager, eng, sink, nil), eng, sink, jobID
}

func TestProcess_Succeeded(t *testing.T) {
	ctx := context.Background()
	jobStore := store.NewMemoryStore()
	p, eng, sink, jobID := newFixture(t, jobStore)

	if err := p.Process(ctx, Signal{JobID: jobID, EngineJobID: "engine-1", Outcome: store.StatusSucceeded}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	job, err := jobStore.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != store.StatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", job.Status)
	}
	if job.VideoMetadata == nil || job.VideoMetadata.FrameRate != 30 {
		t.Errorf("expected video metadata on job, got %+v", job.VideoMetadata)
	}
	if job.TrackingSummary == nil {
		t.Fatal("expected tracking summary on job")
	}
	if job.TrackingSummary.TotalDetectionCount != 2 {
		t.Errorf("expected 2 tracked persons, got %d", job.TrackingSummary.TotalDetectionCount)
	}
	// Person 1 spans frames 0..5, person 2 only frame 5 → (5+0)/2 frames at 1/30 s.
	want := 2.5 / 30
	if math.Abs(job.TrackingSummary.AverageTrackingTime-want) > 1e-9 {
		t.Errorf("expected average tracking time %g, got %g", want, job.TrackingSummary.AverageTrackingTime)
	}

	if sink.puts != 1 {
		t.Errorf("expected one blob write, got %d", sink.puts)
	}
	if results := sink.folders["folder-1"]; len(results) != 2 {
		t.Errorf("expected 2 frames in blob, got %d", len(results))
	}
	if eng.fetches != 1 {
		t.Errorf("expected one engine fetch, got %d", eng.fetches)
	}
}

func TestProcess_RedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	jobStore := store.NewMemoryStore()
	p, eng, sink, jobID := newFixture(t, jobStore)

	sig := Signal{JobID: jobID, EngineJobID: "engine-1", Outcome: store.StatusSucceeded}
	for i := 0; i < 3; i++ {
		if err := p.Process(ctx, sig); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	// Redeliveries must not re-fetch or rewrite anything.
	if eng.fetches != 1 {
		t.Errorf("expected one engine fetch across redeliveries, got %d", eng.fetches)
	}
	if sink.puts != 1 {
		t.Errorf("expected one blob write across redeliveries, got %d", sink.puts)
	}
	job, _ := jobStore.Get(ctx, jobID)
	if job.Status != store.StatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", job.Status)
	}
}

func TestProcess_Failed(t *testing.T) {
	ctx := context.Background()
	jobStore := store.NewMemoryStore()
	p, _, sink, jobID := newFixture(t, jobStore)

	if err := p.Process(ctx, Signal{JobID: jobID, Outcome: store.StatusFailed}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	job, _ := jobStore.Get(ctx, jobID)
	if job.Status != store.StatusFailed {
		t.Errorf("expected FAILED, got %s", job.Status)
	}
	if job.TrackingSummary != nil || job.VideoMetadata != nil {
		t.Error("FAILED job must not carry summary or metadata")
	}
	if sink.puts != 0 {
		t.Errorf("FAILED outcome must not write a blob, got %d writes", sink.puts)
	}
}

func TestProcess_ConflictingOutcomeDropped(t *testing.T) {
	ctx := context.Background()
	jobStore := store.NewMemoryStore()
	p, _, sink, jobID := newFixture(t, jobStore)

	if err := p.Process(ctx, Signal{JobID: jobID, EngineJobID: "engine-1", Outcome: store.StatusSucceeded}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	// The conflicting outcome is an upstream bug: logged, dropped, never retried.
	if err := p.Process(ctx, Signal{JobID: jobID, Outcome: store.StatusFailed}); err != nil {
		t.Fatalf("conflicting signal must be consumed, got %v", err)
	}

	job, _ := jobStore.Get(ctx, jobID)
	if job.Status != store.StatusSucceeded {
		t.Errorf("stored outcome must be preserved, got %s", job.Status)
	}
	if sink.puts != 1 {
		t.Errorf("expected one blob write, got %d", sink.puts)
	}
}

func TestProcess_UnknownJobDropped(t *testing.T) {
	jobStore := store.NewMemoryStore()
	p := NewProcessor(jobStore, lifecycle.NewManager(jobStore, &fakeEngine{}), &fakeEngine{}, newFakeSink(), nil)

	err := p.Process(context.Background(), Signal{JobID: "missing", Outcome: store.StatusSucceeded})
	if err != nil {
		t.Errorf("unknown job must be dropped, got %v", err)
	}
}

func TestProcess_NonTerminalOutcomeDropped(t *testing.T) {
	jobStore := store.NewMemoryStore()
	p, _, sink, jobID := newFixture(t, jobStore)

	if err := p.Process(context.Background(), Signal{JobID: jobID, Outcome: store.StatusInProgress}); err != nil {
		t.Errorf("non-terminal outcome must be dropped, got %v", err)
	}
	if sink.puts != 0 {
		t.Errorf("expected no blob writes, got %d", sink.puts)
	}
}

func TestProcess_BlobPersistedBeforeStatus(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{JobStore: store.NewMemoryStore(), updateFailures: 0}

	eng := &fakeEngine{}
	sink := newFakeSink()
	manager := lifecycle.NewManager(flaky, eng)
	jobID, err := manager.Submit(ctx, "user-a", "clip.mp4", "folder-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p := NewProcessor(flaky, manager, eng, sink, nil)

	// First delivery: blob write succeeds but the status flip fails. The
	// signal must be reported as unconsumed so the channel redelivers.
	flaky.updateFailures = 1
	sig := Signal{JobID: jobID, EngineJobID: "engine-1", Outcome: store.StatusSucceeded}
	if err := p.Process(ctx, sig); err == nil {
		t.Fatal("expected transient error when the status flip fails")
	}

	job, _ := flaky.Get(ctx, jobID)
	if job.Status != store.StatusInProgress {
		t.Fatalf("status must not flip before redelivery, got %s", job.Status)
	}
	if sink.puts != 1 {
		t.Fatalf("blob must be written before the status flip, got %d writes", sink.puts)
	}

	// Redelivery rewrites the blob and completes the transition.
	if err := p.Process(ctx, sig); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	job, _ = flaky.Get(ctx, jobID)
	if job.Status != store.StatusSucceeded {
		t.Errorf("expected SUCCEEDED after redelivery, got %s", job.Status)
	}
	if sink.puts != 2 {
		t.Errorf("redelivery overwrites the blob, expected 2 writes, got %d", sink.puts)
	}
}
