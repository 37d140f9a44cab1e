package app_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"exam-duel-service/internal/app"
	"exam-duel-service/internal/domain"
	"exam-duel-service/internal/infra/memory"
)

// scriptedRandom replays Float64 draws and never reorders.
type scriptedRandom struct {
	mu     sync.Mutex
	floats []float64
	def    float64
}

func (r *scriptedRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.floats) == 0 {
		return r.def
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *scriptedRandom) Intn(int) int                { return 0 }
func (r *scriptedRandom) Shuffle(int, func(i, j int)) {}

type countingSource struct {
	app.QuestionSource
	mu    sync.Mutex
	calls int
}

func (s *countingSource) FetchCandidates(ctx context.Context, limit, offset int) ([]domain.RawQuestion, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.QuestionSource.FetchCandidates(ctx, limit, offset)
}

func (s *countingSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// faultyStore lets a test fail selected store calls.
type faultyStore struct {
	*memory.DuelStore
	mu             sync.Mutex
	activateErr    error
	finalizeFaults int
}

func (s *faultyStore) ActivateDuel(ctx context.Context, id string, questions []domain.DuelQuestion, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	err := s.activateErr
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	return s.DuelStore.ActivateDuel(ctx, id, questions, startedAt)
}

func (s *faultyStore) FinalizeDuel(ctx context.Context, st domain.Settlement) (bool, error) {
	s.mu.Lock()
	if s.finalizeFaults > 0 {
		s.finalizeFaults--
		s.mu.Unlock()
		return false, errors.New("connection reset")
	}
	s.mu.Unlock()
	return s.DuelStore.FinalizeDuel(ctx, st)
}

func (s *faultyStore) failActivation(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activateErr = err
}

func (s *faultyStore) failFinalize(times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizeFaults = times
}

type fixture struct {
	store     *memory.DuelStore
	faults    *faultyStore
	gateway   *memory.Gateway
	scheduler *memory.Scheduler
	hub       *memory.EventHub
	source    *countingSource
	rnd       *scriptedRandom
	logs      *test.Hook
	service   *app.DuelService

	mu  sync.Mutex
	now time.Time
}

func giftRecords(n int) []domain.RawQuestion {
	records := make([]domain.RawQuestion, n)
	for i := range records {
		records[i] = domain.RawQuestion{
			ID:      fmt.Sprintf("q%d", i+1),
			Source:  "question",
			Content: fmt.Sprintf("Statement %d {\n=right %d\n~wrong %d\n~other %d\n}", i+1, i+1, i+1, i+1),
		}
	}
	return records
}

func newFixture(t *testing.T, records []domain.RawQuestion) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := &fixture{
		store:     memory.NewDuelStore(),
		gateway:   memory.NewGateway(),
		scheduler: memory.NewScheduler(logger),
		hub:       memory.NewEventHub(),
		source:    &countingSource{QuestionSource: memory.NewStaticSource("question", records)},
		rnd:       &scriptedRandom{def: 0.99},
		logs:      hook,
		now:       time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
	f.faults = &faultyStore{DuelStore: f.store}
	selector := app.NewSelector(
		[]app.CandidateSource{{Source: f.source, Limit: 100}},
		app.WithSelectorLogger(logger),
		app.WithSelectorRandom(f.rnd),
	)
	f.service = app.NewDuelService(f.faults, selector, f.gateway, f.scheduler, app.DefaultDuelSettings(),
		app.WithLogger(logger),
		app.WithClock(f.clock),
		app.WithRandom(f.rnd),
		app.WithPublisher(f.hub),
	)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) runJobs(t *testing.T) int {
	t.Helper()
	n, err := f.scheduler.RunDue(context.Background(), f.clock(), f.service.HandleJob)
	require.NoError(t, err)
	return n
}

func stake(v int) *int { return &v }

// startDuel creates and accepts a human duel between alice and bob.
func (f *fixture) startDuel(t *testing.T, questions, wager int) domain.Duel {
	t.Helper()
	ctx := context.Background()
	f.store.SetBalance("alice", 100)
	f.store.SetBalance("bob", 100)

	duel, err := f.service.CreateDuel(ctx, app.ChallengeRequest{
		Challenger:     app.ParticipantRef{ID: "alice", Name: "Alice"},
		Challenged:     app.ParticipantRef{ID: "bob", Name: "Bob"},
		QuestionsCount: questions,
		Stake:          stake(wager),
	})
	require.NoError(t, err)

	duel, err = f.service.AcceptDuel(ctx, duel.ID, "bob")
	require.NoError(t, err)
	require.Equal(t, domain.DuelActive, duel.Status)
	return duel
}

// pollFor finds the latest poll for a round that recipient can answer.
func (f *fixture) pollFor(t *testing.T, recipient string, order int) memory.SentPoll {
	t.Helper()
	marker := fmt.Sprintf("Question %d/", order)
	polls := f.gateway.Polls()
	for i := len(polls) - 1; i >= 0; i-- {
		p := polls[i]
		if (p.Recipient == recipient || p.Recipient == domain.BroadcastRecipient) && strings.Contains(p.Poll.Question, marker) {
			return p
		}
	}
	t.Fatalf("no poll for %s round %d", recipient, order)
	return memory.SentPoll{}
}

func (f *fixture) answer(t *testing.T, user string, order int, correct bool) app.AnswerOutcome {
	t.Helper()
	poll := f.pollFor(t, user, order)
	choice := poll.Poll.CorrectIndex
	if !correct {
		choice = (choice + 1) % len(poll.Poll.Options)
	}
	outcome, err := f.service.Correlate(context.Background(), domain.AnswerEvent{
		PollID:              poll.PollID,
		RespondingUserID:    user,
		SelectedOptionIndex: choice,
	})
	require.NoError(t, err)
	return outcome
}

func (f *fixture) balance(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.GetParticipant(context.Background(), id)
	require.NoError(t, err)
	return p.Balance
}

func countPolls(polls []memory.SentPoll, recipient string, order int) int {
	marker := fmt.Sprintf("Question %d/", order)
	n := 0
	for _, p := range polls {
		if p.Recipient == recipient && strings.Contains(p.Poll.Question, marker) {
			n++
		}
	}
	return n
}
