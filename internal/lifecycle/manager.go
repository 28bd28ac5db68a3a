// Package lifecycle implements the job lifecycle manager. It owns every
// status transition a job can make: creation at submission, the immediate
// hand-off to the analysis engine, and the terminal transition driven by
// completion signals. All coordination happens through the store's
// conditional status update, so concurrent and redelivered completions for
// the same job serialize on the record instead of racing.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jmorrow/persontrack/internal/engine"
	"github.com/jmorrow/persontrack/internal/store"
)

// ErrInconsistentCompletion is returned when a job already finalized with
// one terminal outcome receives a completion with the other. The stored
// state wins; the signal indicates an upstream contract violation and is
// logged, never retried.
var ErrInconsistentCompletion = errors.New("inconsistent completion outcome")

// Manager orchestrates job state. Construct one per process and share it;
// it holds no mutable state of its own.
type Manager struct {
	store  store.JobStore
	engine engine.Engine
}

// NewManager wires a Manager to its store and engine.
func NewManager(jobStore store.JobStore, eng engine.Engine) *Manager {
	return &Manager{store: jobStore, engine: eng}
}

// Submit creates a job record for an already-uploaded video and triggers the
// analysis engine. The record is durable before Submit returns; the engine
// trigger is best-effort: on trigger failure the job stays PENDING and the
// job id is still returned. The generated job id doubles as the engine's job
// tag, which the completion signal echoes back.
func (m *Manager) Submit(ctx context.Context, userID, filename, s3FolderName string) (string, error) {
	jobID := uuid.NewString()
	job := store.NewJob(jobID, userID, s3FolderName, filename)
	if err := m.store.Put(ctx, job); err != nil {
		return "", fmt.Errorf("submit job for %s: %w", userID, err)
	}

	s3Key := s3FolderName + "/" + filename
	engineJobID, err := m.engine.StartTracking(ctx, s3Key, jobID)
	if err != nil {
		log.Error().Err(err).Str("jobId", jobID).Str("s3Key", s3Key).Msg("Engine trigger failed, job left PENDING")
		return jobID, nil
	}

	err = m.store.ConditionalUpdateStatus(ctx, jobID, store.StatusPending, store.StatusInProgress,
		&store.StatusFields{EngineJobID: engineJobID})
	if err != nil {
		// The engine is already running; a very fast completion signal may
		// have finalized the job before this update landed.
		log.Warn().Err(err).Str("jobId", jobID).Msg("Could not mark job INPROGRESS")
	}

	log.Info().
		Str("jobId", jobID).
		Str("userId", userID).
		Str("engineJobId", engineJobID).
		Msg("Job submitted")
	return jobID, nil
}

// Finalize applies a terminal transition. It is idempotent: repeating an
// already-applied outcome is a no-op; a conflicting terminal outcome returns
// ErrInconsistentCompletion with the stored state preserved. A lost race
// against a concurrent finalize surfaces as store.ErrConflict, which the
// caller may retry.
func (m *Manager) Finalize(ctx context.Context, jobID string, outcome store.JobStatus, meta *store.VideoMetadata, summary *store.TrackingSummary) error {
	if !outcome.Terminal() {
		return fmt.Errorf("finalize job %s: %s is not a terminal status", jobID, outcome)
	}
	if outcome == store.StatusSucceeded && (meta == nil || summary == nil) {
		return fmt.Errorf("finalize job %s: SUCCEEDED requires video metadata and tracking summary", jobID)
	}

	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status.Terminal() {
		if job.Status == outcome {
			log.Debug().Str("jobId", jobID).Str("outcome", string(outcome)).Msg("Job already finalized, duplicate ignored")
			return nil
		}
		log.Error().
			Str("jobId", jobID).
			Str("stored", string(job.Status)).
			Str("signaled", string(outcome)).
			Msg("Conflicting terminal outcomes for job")
		return fmt.Errorf("finalize job %s: stored %s, signaled %s: %w", jobID, job.Status, outcome, ErrInconsistentCompletion)
	}

	// Status, summary, and metadata land in one conditional write so a
	// reader can never observe a SUCCEEDED job without its summary.
	err = m.store.ConditionalUpdateStatus(ctx, jobID, job.Status, outcome,
		&store.StatusFields{VideoMetadata: meta, TrackingSummary: summary})
	if err != nil {
		return err
	}

	log.Info().Str("jobId", jobID).Str("outcome", string(outcome)).Msg("Job finalized")
	return nil
}

// GetStatus is a point read of the job record.
func (m *Manager) GetStatus(ctx context.Context, jobID string) (*store.Job, error) {
	return m.store.Get(ctx, jobID)
}
