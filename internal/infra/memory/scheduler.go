package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/domain"
)

const (
	retryDelay  = 30 * time.Second
	maxAttempts = 10
)

// JobHandler executes a due job.
type JobHandler func(ctx context.Context, job domain.Job) error

// Scheduler keeps delayed jobs in process. Jobs are lost on restart, so it only
// backs tests and single-process demos; production uses the Redis scheduler.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]domain.Job
	log  logrus.FieldLogger
}

func NewScheduler(log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{jobs: make(map[string]domain.Job), log: log}
}

// Schedule queues job unless a job with the same id is already waiting.
func (s *Scheduler) Schedule(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		s.jobs[job.ID] = job
	}
	return nil
}

// Pending returns the queued jobs ordered by due time.
func (s *Scheduler) Pending() []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	return out
}

// RunDue claims and runs every job due at now, returning how many ran. Jobs that
// the handler schedules while running wait for the next call. A failed job is
// queued again with its next attempt.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time, handle JobHandler) (int, error) {
	due := s.claim(now)
	var errs []error
	for _, job := range due {
		if err := handle(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.ID, err))
			s.requeue(job, now)
		}
	}
	return len(due), errors.Join(errs...)
}

func (s *Scheduler) requeue(job domain.Job, now time.Time) {
	job.Attempt++
	if job.Attempt >= maxAttempts {
		s.log.WithFields(logrus.Fields{"job_id": job.ID, "attempt": job.Attempt}).Error("job gave up after repeated failures")
		return
	}
	job.RunAt = now.Add(retryDelay)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		s.jobs[job.ID] = job
	}
}

func (s *Scheduler) claim(now time.Time) []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []domain.Job
	for id, job := range s.jobs {
		if !job.RunAt.After(now) {
			due = append(due, job)
			delete(s.jobs, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	return due
}

// Run polls for due jobs until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, handle JobHandler) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.RunDue(ctx, time.Now(), handle); err != nil {
				s.log.WithError(err).Warn("scheduled job failed")
			}
		}
	}
}
