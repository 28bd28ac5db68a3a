package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory JobStore used by tests and local tooling. It
// reproduces the DynamoDB contract: compare-and-swap on status, owner scans
// ordered by (request_timestamp, job_id), and cursor resumption with no gaps
// or duplicates over a static dataset.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

var _ JobStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Put(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = *job
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("get job %s: %w", jobID, ErrNotFound)
	}
	dup := job
	return &dup, nil
}

func (s *MemoryStore) ConditionalUpdateStatus(ctx context.Context, jobID string, expected, next JobStatus, fields *StatusFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("update job %s: %w", jobID, ErrNotFound)
	}
	if job.Status != expected {
		return fmt.Errorf("update job %s from %s to %s: %w", jobID, expected, next, ErrConflict)
	}

	job.Status = next
	if fields != nil {
		if fields.EngineJobID != "" {
			job.EngineJobID = fields.EngineJobID
		}
		if fields.VideoMetadata != nil {
			meta := *fields.VideoMetadata
			job.VideoMetadata = &meta
		}
		if fields.TrackingSummary != nil {
			summary := *fields.TrackingSummary
			job.TrackingSummary = &summary
		}
	}
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) ScanByUser(ctx context.Context, userID string, cursor *Cursor, pageSize int32) ([]*Job, *Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owned []Job
	for _, job := range s.jobs {
		if job.UserID == userID {
			owned = append(owned, job)
		}
	}
	// Ties on request_timestamp break on job_id, mirroring a range key that
	// keeps the index order total.
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].RequestTimestamp != owned[j].RequestTimestamp {
			return owned[i].RequestTimestamp < owned[j].RequestTimestamp
		}
		return owned[i].JobID < owned[j].JobID
	})

	start := 0
	if cursor != nil {
		for i, job := range owned {
			if job.JobID == cursor.JobID {
				start = i + 1
				break
			}
		}
	}

	end := len(owned)
	if pageSize > 0 && start+int(pageSize) < end {
		end = start + int(pageSize)
	}

	page := make([]*Job, 0, end-start)
	for i := start; i < end; i++ {
		job := owned[i]
		page = append(page, &job)
	}

	var next *Cursor
	if end < len(owned) && len(page) > 0 {
		last := page[len(page)-1]
		next = &Cursor{JobID: last.JobID, UserID: last.UserID, RequestTimestamp: last.RequestTimestamp}
	}
	return page, next, nil
}

func (s *MemoryStore) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}
