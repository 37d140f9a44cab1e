package app

import (
	"context"
	"time"

	"exam-duel-service/internal/domain"
)

// DuelStore persists duels, their question lists, responses and poll mappings.
// Conditional writes report whether they applied; a false result means another
// caller already moved the duel on.
type DuelStore interface {
	UpsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error)
	GetParticipant(ctx context.Context, id string) (domain.Participant, error)

	HasPendingDuel(ctx context.Context, a, b string) (bool, error)
	CreateDuel(ctx context.Context, duel domain.Duel) error
	GetDuel(ctx context.Context, id string) (domain.Duel, error)
	// TransitionDuel moves a duel from one status to another only if it is still in from.
	TransitionDuel(ctx context.Context, id string, from, to domain.DuelStatus, at time.Time) (bool, error)
	// ActivateDuel moves accepted to active and stores the full question list atomically.
	ActivateDuel(ctx context.Context, id string, questions []domain.DuelQuestion, startedAt time.Time) (bool, error)
	GetDuelQuestion(ctx context.Context, duelID string, order int) (domain.DuelQuestion, error)

	SavePollMapping(ctx context.Context, m domain.PollMapping) error
	GetPollMapping(ctx context.Context, pollID string) (domain.PollMapping, error)

	// InsertResponse returns false when the (duel, round, participant) row already exists.
	InsertResponse(ctx context.Context, r domain.DuelResponse) (bool, error)
	// ListResponses returns responses for one round, or for every round when order is 0.
	ListResponses(ctx context.Context, duelID string, order int) ([]domain.DuelResponse, error)
	// AdvanceRound moves current_question from order to order+1 on an active duel.
	AdvanceRound(ctx context.Context, duelID string, order int) (bool, error)
	// FinalizeDuel completes an active duel on its last round and applies the balance transfer.
	FinalizeDuel(ctx context.Context, s domain.Settlement) (bool, error)

	ExpirePending(ctx context.Context, now time.Time) ([]domain.Duel, error)
	ListPendingExpiring(ctx context.Context, now, until time.Time) ([]domain.Duel, error)
	MarkReminded(ctx context.Context, duelID string, at time.Time) (bool, error)
	ListDuelsFor(ctx context.Context, participantID string, status domain.DuelStatus, limit int) ([]domain.Duel, error)
}

// QuestionSource supplies raw candidate records, most recent first.
type QuestionSource interface {
	Name() string
	FetchCandidates(ctx context.Context, limit, offset int) ([]domain.RawQuestion, error)
}

// Gateway delivers polls and messages over the messaging platform. The broadcast
// channel is fixed when the gateway is constructed.
type Gateway interface {
	SendPrivatePoll(ctx context.Context, recipientID string, poll domain.Poll) (string, error)
	SendBroadcastPoll(ctx context.Context, poll domain.Poll) (string, error)
	SendPrivateMessage(ctx context.Context, recipientID, text string) error
	SendBroadcastMessage(ctx context.Context, text string) error
}

// Scheduler stores delayed jobs durably. Scheduling an id that is already queued is a no-op.
type Scheduler interface {
	Schedule(ctx context.Context, job domain.Job) error
}

// EventPublisher fans duel state changes out to live subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.DuelEvent) error
}

// EventSubscriber streams events for one duel until cancel is called.
type EventSubscriber interface {
	Subscribe(ctx context.Context, duelID string) (<-chan domain.DuelEvent, func(), error)
}

// Observer receives counters about duel activity.
type Observer interface {
	DuelTransition(status domain.DuelStatus)
	QuestionSkipped(source string)
	QuestionDispatched(mode string)
	AnswerCorrelated(outcome string)
	DuelSettled(result domain.DuelResult)
}

// Random is the subset of *rand.Rand the services draw from.
type Random interface {
	Float64() float64
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

type noopObserver struct{}

func (noopObserver) DuelTransition(domain.DuelStatus) {}
func (noopObserver) QuestionSkipped(string)           {}
func (noopObserver) QuestionDispatched(string)        {}
func (noopObserver) AnswerCorrelated(string)          {}
func (noopObserver) DuelSettled(domain.DuelResult)    {}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.DuelEvent) error { return nil }
