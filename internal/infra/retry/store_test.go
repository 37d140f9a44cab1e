package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"exam-duel-service/internal/app"
	"exam-duel-service/internal/domain"
)

var errConnReset = errors.New("connection reset by peer")

type flakyStore struct {
	app.DuelStore
	failures int
	err      error
	calls    int
}

func (s *flakyStore) GetDuel(_ context.Context, id string) (domain.Duel, error) {
	s.calls++
	if s.calls <= s.failures {
		return domain.Duel{}, s.err
	}
	return domain.Duel{ID: id}, nil
}

func (s *flakyStore) InsertResponse(context.Context, domain.DuelResponse) (bool, error) {
	s.calls++
	if s.calls <= s.failures {
		return false, s.err
	}
	return true, nil
}

func fastPolicy() Policy {
	return Policy{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxElapsed: time.Second, MaxRetries: 3}
}

func TestRetriesTransientErrors(t *testing.T) {
	logger, hook := test.NewNullLogger()
	next := &flakyStore{failures: 2, err: errConnReset}
	store := NewStore(next, fastPolicy(), logger)

	duel, err := store.GetDuel(context.Background(), "d1")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if duel.ID != "d1" || next.calls != 3 {
		t.Fatalf("unexpected result %+v after %d calls", duel, next.calls)
	}
	if len(hook.AllEntries()) != 2 {
		t.Fatalf("expected a warning per retry, got %d", len(hook.AllEntries()))
	}
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	logger, _ := test.NewNullLogger()
	next := &flakyStore{failures: 10, err: errConnReset}
	store := NewStore(next, fastPolicy(), logger)

	_, err := store.InsertResponse(context.Background(), domain.DuelResponse{})
	if !errors.Is(err, errConnReset) {
		t.Fatalf("expected last transient error, got %v", err)
	}
	if next.calls != 4 {
		t.Fatalf("expected 1 call plus 3 retries, got %d", next.calls)
	}
}

func TestDomainErrorsAreNotRetried(t *testing.T) {
	logger, _ := test.NewNullLogger()
	next := &flakyStore{failures: 10, err: domain.ErrDuelNotFound}
	store := NewStore(next, fastPolicy(), logger)

	_, err := store.GetDuel(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDuelNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("expected a single call, got %d", next.calls)
	}
}

func TestStopsOnCancelledContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	next := &flakyStore{failures: 10, err: errConnReset}
	store := NewStore(next, Policy{InitialInterval: time.Hour, MaxInterval: time.Hour, MaxElapsed: time.Hour}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.GetDuel(ctx, "d1"); err == nil {
		t.Fatalf("expected an error on a cancelled context")
	}
	if next.calls > 1 {
		t.Fatalf("expected no retries after cancellation, got %d calls", next.calls)
	}
}
