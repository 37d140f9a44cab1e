package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/domain"
)

// settleRound re-reads the persisted responses of a round and, when every side has
// answered, closes it. A round with the simulated opponent gets its synthetic
// answer scheduled once the human has answered. Safe to call any number of times:
// only the caller whose compare-and-set wins advances or finalizes.
func (s *DuelService) settleRound(ctx context.Context, duelID string, order int) error {
	duel, err := s.store.GetDuel(ctx, duelID)
	if err != nil {
		return err
	}
	if duel.Status != domain.DuelActive || duel.CurrentQuestion != order {
		return nil
	}

	responses, err := s.store.ListResponses(ctx, duelID, order)
	if err != nil {
		return err
	}
	answered := make(map[string]bool, len(responses))
	for _, r := range responses {
		answered[r.ParticipantID] = true
	}

	if duel.HasSimulatedOpponent() && !answered[domain.SimulatedOpponentID] {
		humans := duel.HumanIDs()
		if len(humans) == 1 && answered[humans[0]] {
			return s.scheduleSyntheticAnswer(ctx, duel, order)
		}
		return nil
	}
	if !answered[duel.ChallengerID] || !answered[duel.ChallengedID] {
		return nil
	}
	return s.closeRound(ctx, duel, order, responses)
}

func (s *DuelService) closeRound(ctx context.Context, duel domain.Duel, order int, responses []domain.DuelResponse) error {
	if order >= duel.QuestionsCount {
		_, err := s.finalize(ctx, duel, responses)
		return err
	}

	ok, err := s.store.AdvanceRound(ctx, duel.ID, order)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	s.log.WithFields(logrus.Fields{"duel_id": duel.ID, "question_order": order}).Info("round closed")

	s.sendRoundSummaries(ctx, duel, order, responses)
	s.publish(ctx, duel, domain.EventRoundClosed, func(ev *domain.DuelEvent) {
		ev.QuestionOrder = order
		ev.Scores = roundScores(duel, responses)
	})

	next := order + 1
	duel.CurrentQuestion = next
	if err := s.dispatch(ctx, duel, next, false); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"duel_id": duel.ID, "question_order": next}).
			Warn("question not delivered, retry scheduled")
		s.scheduleDispatchRetry(ctx, duel.ID, next, 0)
	}
	return nil
}

func (s *DuelService) sendRoundSummaries(ctx context.Context, duel domain.Duel, order int, responses []domain.DuelResponse) {
	names := s.names(ctx, duel)
	for _, id := range duel.HumanIDs() {
		s.notify(ctx, duel.ID, id, roundSummaryText(duel, order, id, responses, names))
	}
}

func roundScores(duel domain.Duel, responses []domain.DuelResponse) map[string]int {
	scores := map[string]int{duel.ChallengerID: 0, duel.ChallengedID: 0}
	for _, r := range responses {
		scores[r.ParticipantID] += r.Points
	}
	return scores
}

func (s *DuelService) scheduleSyntheticAnswer(ctx context.Context, duel domain.Duel, order int) error {
	job := domain.Job{
		ID:            domain.SyntheticAnswerJobID(duel.ID, order),
		Kind:          domain.JobSyntheticAnswer,
		DuelID:        duel.ID,
		QuestionOrder: order,
		RunAt:         s.now().Add(s.settings.SimulatedDelay),
	}
	if err := s.scheduler.Schedule(ctx, job); err != nil {
		return fmt.Errorf("schedule synthetic answer: %w", err)
	}
	return nil
}

// HandleJob runs a due scheduled job. Jobs are idempotent against the store, so a
// job delivered twice has no further effect.
func (s *DuelService) HandleJob(ctx context.Context, job domain.Job) error {
	switch job.Kind {
	case domain.JobSyntheticAnswer:
		return s.answerAsSimulatedOpponent(ctx, job.DuelID, job.QuestionOrder)
	case domain.JobDispatchRetry:
		return s.retryDispatch(ctx, job)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (s *DuelService) answerAsSimulatedOpponent(ctx context.Context, duelID string, order int) error {
	duel, err := s.store.GetDuel(ctx, duelID)
	if err != nil {
		return err
	}
	if duel.Status != domain.DuelActive || duel.CurrentQuestion != order || !duel.HasSimulatedOpponent() {
		return nil
	}
	dq, err := s.store.GetDuelQuestion(ctx, duelID, order)
	if err != nil {
		return err
	}

	selected, correct := s.syntheticChoice(dq.Question)
	points := 0
	if correct {
		points = s.settings.RoundReward
	}
	inserted, err := s.store.InsertResponse(ctx, domain.DuelResponse{
		ID:             s.newID(),
		DuelID:         duelID,
		QuestionOrder:  order,
		ParticipantID:  domain.SimulatedOpponentID,
		SelectedOption: selected,
		IsCorrect:      correct,
		Points:         points,
		ResponseTimeMs: s.syntheticResponseTime(),
		CreatedAt:      s.now(),
	})
	if err != nil {
		return err
	}
	if inserted {
		s.log.WithFields(logrus.Fields{"duel_id": duelID, "question_order": order, "correct": correct}).
			Debug("simulated opponent answered")
	}
	return s.settleRound(ctx, duelID, order)
}

// syntheticChoice answers correctly with the configured probability; a wrong
// answer picks the option after the correct one.
func (s *DuelService) syntheticChoice(q domain.Question) (int, bool) {
	if s.rnd.Float64() < s.settings.SimulatedAccuracy || len(q.Options) < 2 {
		return q.CorrectIndex, true
	}
	return (q.CorrectIndex + 1) % len(q.Options), false
}

func (s *DuelService) syntheticResponseTime() int {
	minMs := int(s.settings.SimulatedMinAnswer / time.Millisecond)
	spread := int((s.settings.SimulatedMaxAnswer - s.settings.SimulatedMinAnswer) / time.Millisecond)
	if spread <= 0 {
		return minMs
	}
	return minMs + s.rnd.Intn(spread+1)
}

func (s *DuelService) retryDispatch(ctx context.Context, job domain.Job) error {
	duel, err := s.store.GetDuel(ctx, job.DuelID)
	if err != nil {
		return err
	}
	if duel.Status != domain.DuelActive || duel.CurrentQuestion != job.QuestionOrder {
		return nil
	}
	if err := s.dispatch(ctx, duel, job.QuestionOrder, false); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"duel_id":        duel.ID,
			"question_order": job.QuestionOrder,
			"attempt":        job.Attempt,
		}).Warn("dispatch retry failed")
		s.scheduleDispatchRetry(ctx, duel.ID, job.QuestionOrder, job.Attempt)
	}
	return nil
}
