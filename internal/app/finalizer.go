package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/domain"
)

// FinalizeDuel settles an active duel whose final round has closed. It reports
// whether this call completed the duel; a duel that is already completed is a no-op.
// A duel still short of its last round, or whose last round lacks an answer, fails
// with ErrRoundOpen.
func (s *DuelService) FinalizeDuel(ctx context.Context, duelID string) (bool, error) {
	duel, err := s.store.GetDuel(ctx, duelID)
	if err != nil {
		return false, err
	}
	switch duel.Status {
	case domain.DuelCompleted:
		return false, nil
	case domain.DuelActive:
	default:
		return false, domain.ErrDuelNotActive
	}
	if duel.CurrentQuestion != duel.QuestionsCount {
		return false, domain.ErrRoundOpen
	}
	responses, err := s.store.ListResponses(ctx, duelID, duel.CurrentQuestion)
	if err != nil {
		return false, err
	}
	answered := make(map[string]bool, len(responses))
	for _, r := range responses {
		answered[r.ParticipantID] = true
	}
	if !answered[duel.ChallengerID] || !answered[duel.ChallengedID] {
		return false, domain.ErrRoundOpen
	}
	return s.finalize(ctx, duel, responses)
}

// finalize runs the completing compare-and-set together with the stake transfer.
// lastRound holds the responses of the final round for its summary.
func (s *DuelService) finalize(ctx context.Context, duel domain.Duel, lastRound []domain.DuelResponse) (bool, error) {
	all, err := s.store.ListResponses(ctx, duel.ID, 0)
	if err != nil {
		return false, err
	}
	scores := roundScores(duel, all)
	settlement := settle(duel, scores, s.now())

	ok, err := s.store.FinalizeDuel(ctx, settlement)
	if err != nil || !ok {
		return false, err
	}

	duel.Status = domain.DuelCompleted
	duel.Result = settlement.Result
	duel.WinnerID = settlement.WinnerID
	s.observer.DuelTransition(domain.DuelCompleted)
	s.observer.DuelSettled(settlement.Result)
	s.log.WithFields(logrus.Fields{
		"duel_id": duel.ID,
		"result":  settlement.Result,
		"winner":  settlement.WinnerID,
		"stake":   settlement.Stake,
	}).Info("duel completed")

	s.sendRoundSummaries(ctx, duel, settlement.Round, lastRound)
	names := s.names(ctx, duel)
	for _, id := range duel.HumanIDs() {
		s.notify(ctx, duel.ID, id, finalText(duel, id, settlement, scores, names))
	}
	s.publish(ctx, duel, domain.EventCompleted, func(ev *domain.DuelEvent) {
		ev.Scores = scores
		ev.Result = settlement.Result
		ev.WinnerID = settlement.WinnerID
	})
	return true, nil
}

// settle compares totals; only a strictly greater total wins.
func settle(duel domain.Duel, scores map[string]int, at time.Time) domain.Settlement {
	s := domain.Settlement{
		DuelID:      duel.ID,
		Round:       duel.CurrentQuestion,
		Result:      domain.ResultTie,
		Stake:       duel.Stake,
		CompletedAt: at,
	}
	challenger, challenged := scores[duel.ChallengerID], scores[duel.ChallengedID]
	switch {
	case challenger > challenged:
		s.Result = domain.ResultChallengerWin
		s.WinnerID, s.LoserID = duel.ChallengerID, duel.ChallengedID
	case challenged > challenger:
		s.Result = domain.ResultChallengedWin
		s.WinnerID, s.LoserID = duel.ChallengedID, duel.ChallengerID
	}
	return s
}
