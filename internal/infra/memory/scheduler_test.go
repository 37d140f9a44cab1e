package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam-duel-service/internal/domain"
)

func TestSchedulerRequeuesFailedJob(t *testing.T) {
	sched := NewScheduler(nil)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	job := domain.Job{ID: domain.SyntheticAnswerJobID("d1", 1), Kind: domain.JobSyntheticAnswer, DuelID: "d1", QuestionOrder: 1, RunAt: base}
	_ = sched.Schedule(ctx, job)

	fail := true
	var ran []domain.Job
	handle := func(_ context.Context, j domain.Job) error {
		ran = append(ran, j)
		if fail {
			return errors.New("store unavailable")
		}
		return nil
	}

	if _, err := sched.RunDue(ctx, base, handle); err == nil {
		t.Fatalf("expected handler error")
	}
	pending := sched.Pending()
	if len(pending) != 1 || pending[0].Attempt != 1 || !pending[0].RunAt.Equal(base.Add(retryDelay)) {
		t.Fatalf("expected job queued again, got %+v", pending)
	}

	if n, _ := sched.RunDue(ctx, base.Add(time.Second), handle); n != 0 {
		t.Fatalf("expected retry to wait, ran=%d", n)
	}

	fail = false
	n, err := sched.RunDue(ctx, base.Add(retryDelay), handle)
	if err != nil || n != 1 {
		t.Fatalf("expected retry to run, ran=%d err=%v", n, err)
	}
	if len(ran) != 2 || ran[1].Attempt != 1 {
		t.Fatalf("unexpected runs %+v", ran)
	}
	if len(sched.Pending()) != 0 {
		t.Fatalf("expected queue drained")
	}
}

func TestSchedulerGivesUpAfterMaxAttempts(t *testing.T) {
	sched := NewScheduler(nil)
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	_ = sched.Schedule(ctx, domain.Job{ID: "j", RunAt: now, Attempt: maxAttempts - 1})

	_, _ = sched.RunDue(ctx, now, func(context.Context, domain.Job) error { return errors.New("boom") })
	if len(sched.Pending()) != 0 {
		t.Fatalf("expected job dropped after last attempt")
	}
}
