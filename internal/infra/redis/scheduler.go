package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/domain"
)

const (
	claimBatch = 100

	// defaultLease is how long a claimed job stays hidden before another poller
	// may run it again.
	defaultLease = 2 * time.Minute
	// defaultRetryDelay pushes a failed job back by this much.
	defaultRetryDelay = 30 * time.Second
	// defaultMaxAttempts failures move a job to the dead set.
	defaultMaxAttempts = 10
)

// claimScript leases a due job by moving its score to the lease deadline and
// returns its payload. It returns nil when the job is not due or already leased,
// and drops an entry whose payload is missing.
var claimScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score or tonumber(score) > tonumber(ARGV[2]) then
  return false
end
local payload = redis.call('HGET', KEYS[2], ARGV[1])
if not payload then
  redis.call('ZREM', KEYS[1], ARGV[1])
  return false
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
return payload
`)

// JobHandler executes a due job.
type JobHandler func(ctx context.Context, job domain.Job) error

// Scheduler keeps delayed jobs in Redis so they survive restarts:
//
//	ZADD {prefix}:due     {runAt ms} {jobID}
//	HSET {prefix}:payload {jobID}    {job json}
//	HSET {prefix}:dead    {jobID}    {job json}
//
// Claiming a job leases it: its score moves to the lease deadline, so several
// instances can poll the same keys without running it twice, and a job whose
// runner died becomes due again. The job is removed only after its handler
// succeeds; a failure reschedules it with the next attempt number.
type Scheduler struct {
	client      *redis.Client
	prefix      string
	log         logrus.FieldLogger
	lease       time.Duration
	retryDelay  time.Duration
	maxAttempts int
}

func NewScheduler(client *redis.Client, prefix string, log logrus.FieldLogger) *Scheduler {
	if prefix == "" {
		prefix = "duel:jobs"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		client:      client,
		prefix:      prefix,
		log:         log,
		lease:       defaultLease,
		retryDelay:  defaultRetryDelay,
		maxAttempts: defaultMaxAttempts,
	}
}

// Schedule queues job unless a job with the same id is already waiting or running.
func (s *Scheduler) Schedule(ctx context.Context, job domain.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, s.payloadKey(), job.ID, payload)
		pipe.ZAddNX(ctx, s.dueKey(), redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", job.ID, err)
	}
	return nil
}

// Pending reports how many jobs are waiting or running.
func (s *Scheduler) Pending(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, s.dueKey()).Result()
}

// Dead returns the jobs that exhausted their attempts.
func (s *Scheduler) Dead(ctx context.Context) ([]domain.Job, error) {
	raw, err := s.client.HVals(ctx, s.deadKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead jobs: %w", err)
	}
	jobs := make([]domain.Job, 0, len(raw))
	for _, v := range raw {
		var job domain.Job
		if err := json.Unmarshal([]byte(v), &job); err != nil {
			return nil, fmt.Errorf("decode dead job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// RunDue claims and runs the jobs due at now, returning how many ran.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time, handle JobHandler) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.dueKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: claimBatch,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list due jobs: %w", err)
	}

	ran := 0
	var errs []error
	for _, id := range ids {
		job, ok, err := s.claim(ctx, id, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		ran++
		if herr := handle(ctx, job); herr != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.ID, herr))
			if err := s.fail(ctx, job, now); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := s.ack(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return ran, errors.Join(errs...)
}

func (s *Scheduler) claim(ctx context.Context, id string, now time.Time) (domain.Job, bool, error) {
	raw, err := claimScript.Run(ctx, s.client, []string{s.dueKey(), s.payloadKey()},
		id, now.UnixMilli(), now.Add(s.lease).UnixMilli()).Text()
	if errors.Is(err, redis.Nil) {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("claim job %s: %w", id, err)
	}
	var job domain.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return domain.Job{}, false, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, true, nil
}

func (s *Scheduler) ack(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.dueKey(), id)
		pipe.HDel(ctx, s.payloadKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

// fail puts a job back with its next attempt, or parks it in the dead set once
// the attempts are used up. Either way it no longer waits for its lease.
func (s *Scheduler) fail(ctx context.Context, job domain.Job, now time.Time) error {
	job.Attempt++
	job.RunAt = now.Add(s.retryDelay)
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	dead := job.Attempt >= s.maxAttempts
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if dead {
			pipe.ZRem(ctx, s.dueKey(), job.ID)
			pipe.HDel(ctx, s.payloadKey(), job.ID)
			pipe.HSet(ctx, s.deadKey(), job.ID, payload)
			return nil
		}
		pipe.HSet(ctx, s.payloadKey(), job.ID, payload)
		pipe.ZAddXX(ctx, s.dueKey(), redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("reschedule job %s: %w", job.ID, err)
	}
	if dead {
		s.log.WithFields(logrus.Fields{"job_id": job.ID, "attempt": job.Attempt}).Error("job gave up after repeated failures")
	}
	return nil
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

func (s *Scheduler) dueKey() string {
	return s.prefix + ":due"
}

func (s *Scheduler) payloadKey() string {
	return s.prefix + ":payload"
}

func (s *Scheduler) deadKey() string {
	return s.prefix + ":dead"
}
