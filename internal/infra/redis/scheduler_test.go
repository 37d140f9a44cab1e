package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam-duel-service/internal/domain"
)

func TestSchedulerRunsDueJobsOnce(t *testing.T) {
	_, client := newClient(t)
	sched := NewScheduler(client, "test:jobs", nil)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	early := domain.Job{ID: domain.SyntheticAnswerJobID("d1", 1), Kind: domain.JobSyntheticAnswer, DuelID: "d1", QuestionOrder: 1, RunAt: base.Add(3 * time.Second)}
	late := domain.Job{ID: domain.DispatchRetryJobID("d2", 2, 1), Kind: domain.JobDispatchRetry, DuelID: "d2", QuestionOrder: 2, RunAt: base.Add(time.Minute), Attempt: 1}
	for _, job := range []domain.Job{early, late} {
		if err := sched.Schedule(ctx, job); err != nil {
			t.Fatalf("schedule %s: %v", job.ID, err)
		}
	}

	var ran []domain.Job
	handle := func(_ context.Context, job domain.Job) error {
		ran = append(ran, job)
		return nil
	}

	n, err := sched.RunDue(ctx, base, handle)
	if err != nil || n != 0 {
		t.Fatalf("expected nothing due yet, ran=%d err=%v", n, err)
	}

	n, err = sched.RunDue(ctx, base.Add(5*time.Second), handle)
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if n != 1 || ran[0].ID != early.ID || ran[0].QuestionOrder != 1 {
		t.Fatalf("expected synthetic answer job, got %+v", ran)
	}

	n, _ = sched.RunDue(ctx, base.Add(5*time.Second), handle)
	if n != 0 {
		t.Fatalf("expected claimed job not to run again, ran=%d", n)
	}

	pending, err := sched.Pending(ctx)
	if err != nil || pending != 1 {
		t.Fatalf("expected one pending job, got %d err=%v", pending, err)
	}

	_, _ = sched.RunDue(ctx, base.Add(2*time.Minute), handle)
	if len(ran) != 2 || ran[1].Kind != domain.JobDispatchRetry || ran[1].Attempt != 1 {
		t.Fatalf("expected dispatch retry job, got %+v", ran)
	}
}

func TestSchedulerCollapsesDuplicateIDs(t *testing.T) {
	mr, client := newClient(t)
	sched := NewScheduler(client, "test:jobs", nil)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	job := domain.Job{ID: domain.SyntheticAnswerJobID("d1", 1), Kind: domain.JobSyntheticAnswer, DuelID: "d1", QuestionOrder: 1, RunAt: base}
	_ = sched.Schedule(ctx, job)
	later := job
	later.RunAt = base.Add(time.Hour)
	_ = sched.Schedule(ctx, later)

	members, err := mr.ZMembers("test:jobs:due")
	if err != nil {
		t.Fatalf("zmembers: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected one queued job, got %v", members)
	}

	n, _ := sched.RunDue(ctx, base, func(context.Context, domain.Job) error { return nil })
	if n != 1 {
		t.Fatalf("expected first schedule to win, ran=%d", n)
	}
}

func TestSchedulerRequeuesFailedJobs(t *testing.T) {
	_, client := newClient(t)
	sched := NewScheduler(client, "", nil)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	synthetic := domain.Job{ID: domain.SyntheticAnswerJobID("d1", 1), Kind: domain.JobSyntheticAnswer, DuelID: "d1", QuestionOrder: 1, RunAt: base}
	_ = sched.Schedule(ctx, synthetic)
	_ = sched.Schedule(ctx, domain.Job{ID: "b", RunAt: base})

	boom := errors.New("boom")
	n, err := sched.RunDue(ctx, base, func(_ context.Context, job domain.Job) error {
		if job.ID == synthetic.ID {
			return boom
		}
		return nil
	})
	if n != 2 {
		t.Fatalf("expected both jobs to run, ran=%d", n)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}

	pending, err := sched.Pending(ctx)
	if err != nil || pending != 1 {
		t.Fatalf("expected failed job to stay queued, got %d err=%v", pending, err)
	}

	var ran []domain.Job
	handle := func(_ context.Context, job domain.Job) error {
		ran = append(ran, job)
		return nil
	}
	if n, _ := sched.RunDue(ctx, base.Add(time.Second), handle); n != 0 {
		t.Fatalf("expected retry to wait for its delay, ran=%d", n)
	}
	n, err = sched.RunDue(ctx, base.Add(time.Hour), handle)
	if err != nil || n != 1 {
		t.Fatalf("expected retry to run, ran=%d err=%v", n, err)
	}
	if ran[0].ID != synthetic.ID || ran[0].Attempt != 1 || ran[0].DuelID != "d1" {
		t.Fatalf("unexpected retried job %+v", ran[0])
	}
	if pending, _ := sched.Pending(ctx); pending != 0 {
		t.Fatalf("expected queue drained, got %d", pending)
	}
}

func TestSchedulerRerunsJobAfterLease(t *testing.T) {
	_, client := newClient(t)
	sched := NewScheduler(client, "", nil)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	job := domain.Job{ID: domain.SyntheticAnswerJobID("d1", 2), Kind: domain.JobSyntheticAnswer, DuelID: "d1", QuestionOrder: 2, RunAt: base}
	_ = sched.Schedule(ctx, job)

	// A runner that claims and then dies never acknowledges the job.
	if _, ok, err := sched.claim(ctx, job.ID, base); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	noop := func(context.Context, domain.Job) error { return nil }
	if n, _ := sched.RunDue(ctx, base.Add(time.Second), noop); n != 0 {
		t.Fatalf("expected leased job to stay hidden, ran=%d", n)
	}
	n, err := sched.RunDue(ctx, base.Add(defaultLease), noop)
	if err != nil || n != 1 {
		t.Fatalf("expected job to run after its lease, ran=%d err=%v", n, err)
	}
}

func TestSchedulerParksExhaustedJobs(t *testing.T) {
	_, client := newClient(t)
	sched := NewScheduler(client, "", nil)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	_ = sched.Schedule(ctx, domain.Job{ID: "j", RunAt: base, Attempt: defaultMaxAttempts - 1})

	_, _ = sched.RunDue(ctx, base, func(context.Context, domain.Job) error { return errors.New("boom") })

	if pending, _ := sched.Pending(ctx); pending != 0 {
		t.Fatalf("expected exhausted job out of the queue, got %d", pending)
	}
	dead, err := sched.Dead(ctx)
	if err != nil {
		t.Fatalf("dead: %v", err)
	}
	if len(dead) != 1 || dead[0].ID != "j" || dead[0].Attempt != defaultMaxAttempts {
		t.Fatalf("unexpected dead jobs %+v", dead)
	}
}
