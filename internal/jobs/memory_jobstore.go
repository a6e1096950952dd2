package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// MemoryJobStore keeps job records in process for local runs with the
// memory queue.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]Record
}

var _ Recorder = (*MemoryJobStore)(nil)
var _ Updater = (*MemoryJobStore)(nil)

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]Record)}
}

func (s *MemoryJobStore) PutPending(_ context.Context, job *Record) error {
	if job == nil {
		return errors.New("jobs: job cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; exists {
		return fmt.Errorf("jobs: job %s already exists", job.JobID)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	job.Status = StatusPending
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.JobID] = *job
	return nil
}

func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (s *MemoryJobStore) MarkCompleted(_ context.Context, jobID string, attempts int, result string) error {
	return s.update(jobID, StatusCompleted, attempts, result, "")
}

func (s *MemoryJobStore) MarkRetrying(_ context.Context, jobID string, attempts int, errMsg string) error {
	return s.update(jobID, StatusRetrying, attempts, "", errMsg)
}

func (s *MemoryJobStore) MarkFailed(_ context.Context, jobID string, attempts int, errMsg string) error {
	return s.update(jobID, StatusFailed, attempts, "", errMsg)
}

func (s *MemoryJobStore) MarkDeadLettered(_ context.Context, jobID string, attempts int, errMsg string) error {
	return s.update(jobID, StatusDeadLettered, attempts, "", errMsg)
}

func (s *MemoryJobStore) update(jobID string, status Status, attempts int, result, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("jobs: failed to update job %s: %w", jobID, ErrJobNotFound)
	}
	job.Status = status
	job.Attempts = attempts
	job.Result = result
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	s.jobs[jobID] = job
	return nil
}
