// Package retry wraps the duel store with exponential backoff for transient
// failures.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/app"
	"exam-duel-service/internal/domain"
)

// Policy bounds the retries of one store call.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	MaxRetries      uint64
}

// DefaultPolicy keeps a store call under a few seconds.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		MaxElapsed:      5 * time.Second,
		MaxRetries:      5,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsed
	var bo backoff.BackOff = b
	if p.MaxRetries > 0 {
		bo = backoff.WithMaxRetries(bo, p.MaxRetries)
	}
	return backoff.WithContext(bo, ctx)
}

// domain outcomes are answers, not failures
var permanentErrors = []error{
	domain.ErrDuelNotFound,
	domain.ErrParticipantNotFound,
	domain.ErrQuestionNotFound,
	domain.ErrPollNotFound,
	domain.ErrDuplicateResponse,
	domain.ErrInsufficientQuestions,
	context.Canceled,
	context.DeadlineExceeded,
}

func isPermanent(err error) bool {
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Store retries every app.DuelStore call that fails with a non-domain error.
// Conditional writes are safe to repeat: a retried compare-and-set that already
// applied simply reports false.
type Store struct {
	next   app.DuelStore
	policy Policy
	log    logrus.FieldLogger
}

func NewStore(next app.DuelStore, policy Policy, log logrus.FieldLogger) *Store {
	return &Store{next: next, policy: policy, log: log}
}

func do[T any](ctx context.Context, s *Store, op string, fn func() (T, error)) (T, error) {
	var result T
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		v, err := fn()
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = v
		return nil
	}, s.policy.backOff(ctx), func(err error, wait time.Duration) {
		s.log.WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"wait":    wait.String(),
		}).Warn("store call failed, retrying")
	})
	return result, err
}

func exec(ctx context.Context, s *Store, op string, fn func() error) error {
	_, err := do(ctx, s, op, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

func (s *Store) UpsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	return do(ctx, s, "upsert_participant", func() (domain.Participant, error) { return s.next.UpsertParticipant(ctx, p) })
}

func (s *Store) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	return do(ctx, s, "get_participant", func() (domain.Participant, error) { return s.next.GetParticipant(ctx, id) })
}

func (s *Store) HasPendingDuel(ctx context.Context, a, b string) (bool, error) {
	return do(ctx, s, "has_pending_duel", func() (bool, error) { return s.next.HasPendingDuel(ctx, a, b) })
}

func (s *Store) CreateDuel(ctx context.Context, duel domain.Duel) error {
	return exec(ctx, s, "create_duel", func() error { return s.next.CreateDuel(ctx, duel) })
}

func (s *Store) GetDuel(ctx context.Context, id string) (domain.Duel, error) {
	return do(ctx, s, "get_duel", func() (domain.Duel, error) { return s.next.GetDuel(ctx, id) })
}

func (s *Store) TransitionDuel(ctx context.Context, id string, from, to domain.DuelStatus, at time.Time) (bool, error) {
	return do(ctx, s, "transition_duel", func() (bool, error) { return s.next.TransitionDuel(ctx, id, from, to, at) })
}

func (s *Store) ActivateDuel(ctx context.Context, id string, questions []domain.DuelQuestion, startedAt time.Time) (bool, error) {
	return do(ctx, s, "activate_duel", func() (bool, error) { return s.next.ActivateDuel(ctx, id, questions, startedAt) })
}

func (s *Store) GetDuelQuestion(ctx context.Context, duelID string, order int) (domain.DuelQuestion, error) {
	return do(ctx, s, "get_duel_question", func() (domain.DuelQuestion, error) { return s.next.GetDuelQuestion(ctx, duelID, order) })
}

func (s *Store) SavePollMapping(ctx context.Context, m domain.PollMapping) error {
	return exec(ctx, s, "save_poll_mapping", func() error { return s.next.SavePollMapping(ctx, m) })
}

func (s *Store) GetPollMapping(ctx context.Context, pollID string) (domain.PollMapping, error) {
	return do(ctx, s, "get_poll_mapping", func() (domain.PollMapping, error) { return s.next.GetPollMapping(ctx, pollID) })
}

func (s *Store) InsertResponse(ctx context.Context, r domain.DuelResponse) (bool, error) {
	return do(ctx, s, "insert_response", func() (bool, error) { return s.next.InsertResponse(ctx, r) })
}

func (s *Store) ListResponses(ctx context.Context, duelID string, order int) ([]domain.DuelResponse, error) {
	return do(ctx, s, "list_responses", func() ([]domain.DuelResponse, error) { return s.next.ListResponses(ctx, duelID, order) })
}

func (s *Store) AdvanceRound(ctx context.Context, duelID string, order int) (bool, error) {
	return do(ctx, s, "advance_round", func() (bool, error) { return s.next.AdvanceRound(ctx, duelID, order) })
}

func (s *Store) FinalizeDuel(ctx context.Context, st domain.Settlement) (bool, error) {
	return do(ctx, s, "finalize_duel", func() (bool, error) { return s.next.FinalizeDuel(ctx, st) })
}

func (s *Store) ExpirePending(ctx context.Context, now time.Time) ([]domain.Duel, error) {
	return do(ctx, s, "expire_pending", func() ([]domain.Duel, error) { return s.next.ExpirePending(ctx, now) })
}

func (s *Store) ListPendingExpiring(ctx context.Context, now, until time.Time) ([]domain.Duel, error) {
	return do(ctx, s, "list_pending_expiring", func() ([]domain.Duel, error) { return s.next.ListPendingExpiring(ctx, now, until) })
}

func (s *Store) MarkReminded(ctx context.Context, duelID string, at time.Time) (bool, error) {
	return do(ctx, s, "mark_reminded", func() (bool, error) { return s.next.MarkReminded(ctx, duelID, at) })
}

func (s *Store) ListDuelsFor(ctx context.Context, participantID string, status domain.DuelStatus, limit int) ([]domain.Duel, error) {
	return do(ctx, s, "list_duels_for", func() ([]domain.Duel, error) {
		return s.next.ListDuelsFor(ctx, participantID, status, limit)
	})
}
