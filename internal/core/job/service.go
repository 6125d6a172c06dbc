package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderbridge/internal/core/order"
)

// ErrNotFound is returned for unknown or expired job IDs.
var ErrNotFound = errors.New("job not found")

// Store is the JSON cache jobs live in. The redis service implements it.
type Store interface {
	CacheGet(ctx context.Context, key string, dest interface{}) error
	CacheSet(ctx context.Context, key string, val interface{}, ttlSeconds int) error
}

// notifier is implemented by stores that can announce updates.
type notifier interface {
	Publish(ctx context.Context, channel, message string) error
}

type JobService struct {
	store Store
	now   func() time.Time
}

func NewJobService(store Store) *JobService {
	return &JobService{store: store, now: time.Now}
}

func (s *JobService) GetJobStatus(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := s.store.CacheGet(ctx, key(jobID), &job); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return &job, nil
}

func (s *JobService) save(ctx context.Context, jobID string, mutate func(*Job)) error {
	var job Job
	_ = s.store.CacheGet(ctx, key(jobID), &job)
	now := s.now().UTC()
	if job.JobID == "" {
		job = Job{JobID: jobID, Type: TypeOrder, CreatedAt: now}
	}
	mutate(&job)
	job.UpdatedAt = now
	if err := s.store.CacheSet(ctx, key(jobID), job, ttl(job.Status)); err != nil {
		return err
	}
	if n, ok := s.store.(notifier); ok {
		_ = n.Publish(ctx, key(jobID), string(job.Status))
	}
	return nil
}

func (s *JobService) InitPending(ctx context.Context, jobID, backend string) error {
	return s.save(ctx, jobID, func(j *Job) {
		j.Status = StatusPending
		j.Backend = backend
	})
}

func (s *JobService) SetProcessing(ctx context.Context, jobID string) error {
	return s.save(ctx, jobID, func(j *Job) { j.Status = StatusProcessing })
}

// Complete stores the run result; the status follows its Success flag.
func (s *JobService) Complete(ctx context.Context, jobID string, res order.AutomationResult) error {
	return s.save(ctx, jobID, func(j *Job) {
		j.Status = StatusFailed
		if res.Success {
			j.Status = StatusCompleted
		}
		j.Result = &res
	})
}

func key(id string) string { return "job:" + id }

func ttl(s Status) int {
	if s.Done() {
		return 3600
	}
	return 600
}
