// Package completion consumes the analysis engine's asynchronous completion
// signals and drives jobs to their terminal state. The notification channel
// delivers at least once and without ordering guarantees, so the processor
// is written as a decision over (stored status, incoming outcome); the
// decision is pure, and every side effect it triggers is safe to repeat.
//
// On success the frame-result blob is persisted before the status flips, so
// "status SUCCEEDED implies result blob exists" survives a crash between the
// two steps: the redelivered signal rewrites the blob (a full overwrite) and
// retries the finalize.
package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jmorrow/persontrack/internal/engine"
	"github.com/jmorrow/persontrack/internal/events"
	"github.com/jmorrow/persontrack/internal/lifecycle"
	"github.com/jmorrow/persontrack/internal/metrics"
	"github.com/jmorrow/persontrack/internal/store"
	"github.com/jmorrow/persontrack/internal/tracking"
)

// metricsNamespace is the CloudWatch namespace for completion metrics.
const metricsNamespace = "PersonTracking"

// Signal is one inbound completion notification. JobID is our job id,
// carried through the engine as the job tag; EngineJobID is the engine's own
// identifier, used to fetch results.
type Signal struct {
	JobID       string
	EngineJobID string
	Outcome     store.JobStatus
}

// ResultSink persists the frame-result blob for a job folder. Put must
// overwrite, never append.
type ResultSink interface {
	Put(ctx context.Context, folder string, results []tracking.Result) error
}

// action is the pure decision over a signal.
type action int

const (
	actFinalize action = iota
	actDuplicate
	actInconsistent
)

// decide maps (stored status, signaled outcome) to the action to take. It
// has no side effects and fully determines redelivery behavior: duplicates
// of an applied outcome are no-ops, conflicting terminal outcomes are
// rejected, and everything else proceeds to finalize.
func decide(current, outcome store.JobStatus) action {
	if !current.Terminal() {
		return actFinalize
	}
	if current == outcome {
		return actDuplicate
	}
	return actInconsistent
}

// Processor applies completion signals. Safe for concurrent use across
// jobs; concurrent signals for the same job serialize on the store's
// conditional update.
type Processor struct {
	store   store.JobStore
	manager *lifecycle.Manager
	engine  engine.Engine
	results ResultSink
	emitter *events.Emitter // nil disables event emission
}

// NewProcessor wires a Processor to its collaborators.
func NewProcessor(jobStore store.JobStore, manager *lifecycle.Manager, eng engine.Engine, results ResultSink, emitter *events.Emitter) *Processor {
	return &Processor{
		store:   jobStore,
		manager: manager,
		engine:  eng,
		results: results,
		emitter: emitter,
	}
}

// Process handles one signal. A nil return means the signal is fully
// consumed (including duplicates and dropped contract violations); a non-nil
// return means a transient failure and asks the channel to redeliver.
func (p *Processor) Process(ctx context.Context, sig Signal) error {
	start := time.Now()
	rec := metrics.New(metricsNamespace).
		Dimension("Operation", "completion").
		Property("jobId", sig.JobID)
	defer rec.Flush()

	if !sig.Outcome.Terminal() {
		log.Error().Str("jobId", sig.JobID).Str("outcome", string(sig.Outcome)).Msg("Completion signal with non-terminal outcome dropped")
		rec.Count("InvalidSignals")
		return nil
	}

	job, err := p.store.Get(ctx, sig.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Submit persists the record before triggering the engine, so an
			// unknown job id cannot heal on redelivery.
			log.Error().Str("jobId", sig.JobID).Msg("Completion signal for unknown job dropped")
			rec.Count("UnknownJobSignals")
			return nil
		}
		return err
	}

	switch decide(job.Status, sig.Outcome) {
	case actDuplicate:
		// Job already terminal with this outcome: no result re-fetch, no
		// blob rewrite, no completion metrics.
		log.Debug().Str("jobId", sig.JobID).Str("outcome", string(sig.Outcome)).Msg("Duplicate completion signal ignored")
		rec.Count("DuplicateSignals")
		return nil

	case actInconsistent:
		log.Error().
			Str("jobId", sig.JobID).
			Str("stored", string(job.Status)).
			Str("signaled", string(sig.Outcome)).
			Msg("Conflicting completion outcome dropped")
		rec.Count("InconsistentSignals")
		return nil
	}

	if sig.Outcome == store.StatusFailed {
		if err := p.finalize(ctx, sig.JobID, store.StatusFailed, nil, nil); err != nil {
			return err
		}
		rec.Count("FailedJobs")
		p.emit(ctx, job, store.StatusFailed, 0)
		return nil
	}

	// SUCCEEDED: persist the blob first, flip the status second.
	engineJobID := sig.EngineJobID
	if engineJobID == "" {
		engineJobID = job.EngineJobID
	}
	timeline, meta, err := p.engine.FetchResults(ctx, engineJobID)
	if err != nil {
		return fmt.Errorf("fetch results for job %s: %w", sig.JobID, err)
	}
	if meta == nil {
		return fmt.Errorf("fetch results for job %s: engine returned no video metadata", sig.JobID)
	}

	results, err := tracking.GroupByFrame(timeline, meta.FrameRate)
	if err != nil {
		return fmt.Errorf("group results for job %s: %w", sig.JobID, err)
	}
	frameDuration := 1 / meta.FrameRate
	overall := tracking.OverallSummary(tracking.BuildPresenceMap(results), frameDuration)
	summary := &store.TrackingSummary{
		TotalDetectionCount: overall.TotalDetectionCount,
		AverageTrackingTime: overall.AverageTrackingTime,
	}

	if err := p.results.Put(ctx, job.S3FolderName, results); err != nil {
		return fmt.Errorf("store results for job %s: %w", sig.JobID, err)
	}
	if err := p.finalize(ctx, sig.JobID, store.StatusSucceeded, meta, summary); err != nil {
		return err
	}

	rec.Count("SucceededJobs")
	rec.Metric("FramesStored", float64(len(results)), metrics.UnitCount)
	rec.Duration("CompletionLatencyMs", time.Since(start))
	p.emit(ctx, job, store.StatusSucceeded, summary.TotalDetectionCount)
	return nil
}

// finalize applies the terminal transition, retrying once on a lost
// conditional-update race (the retry observes the winner's state and
// resolves to a no-op or an inconsistency). Inconsistent completions are
// already logged by the manager and are dropped here.
func (p *Processor) finalize(ctx context.Context, jobID string, outcome store.JobStatus, meta *store.VideoMetadata, summary *store.TrackingSummary) error {
	err := p.manager.Finalize(ctx, jobID, outcome, meta, summary)
	if errors.Is(err, store.ErrConflict) {
		err = p.manager.Finalize(ctx, jobID, outcome, meta, summary)
	}
	if errors.Is(err, lifecycle.ErrInconsistentCompletion) {
		return nil
	}
	return err
}

func (p *Processor) emit(ctx context.Context, job *store.Job, outcome store.JobStatus, detections int) {
	err := p.emitter.EmitJobStateChanged(ctx, events.JobStateChanged{
		JobID:               job.JobID,
		UserID:              job.UserID,
		Status:              outcome,
		TotalDetectionCount: detections,
	})
	if err != nil {
		log.Warn().Err(err).Str("jobId", job.JobID).Msg("Job state event not emitted")
	}
}
