package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/domain"
)

// AnswerOutcome is the non-error result of correlating an answer event.
type AnswerOutcome int

const (
	Applied AnswerOutcome = iota + 1
	NotADuelPoll
	DuplicateIgnored
)

func (o AnswerOutcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case NotADuelPoll:
		return "not_a_duel_poll"
	case DuplicateIgnored:
		return "duplicate_ignored"
	default:
		return "unknown"
	}
}

// Correlate maps an inbound poll answer to its duel round and records it. Events for
// polls this subsystem did not send yield NotADuelPoll; repeated events yield
// DuplicateIgnored. Both re-run the idempotent round check, so a redelivered event
// can finish a round whose closing step failed earlier.
func (s *DuelService) Correlate(ctx context.Context, ev domain.AnswerEvent) (AnswerOutcome, error) {
	mapping, err := s.store.GetPollMapping(ctx, ev.PollID)
	if errors.Is(err, domain.ErrPollNotFound) {
		return s.outcome(NotADuelPoll), nil
	}
	if err != nil {
		return 0, err
	}
	if mapping.Source != domain.PollSourceDuel {
		return s.outcome(NotADuelPoll), nil
	}

	log := s.log.WithFields(logrus.Fields{
		"duel_id":        mapping.DuelID,
		"question_order": mapping.QuestionOrder,
		"participant_id": ev.RespondingUserID,
		"poll_id":        ev.PollID,
	})

	duel, err := s.store.GetDuel(ctx, mapping.DuelID)
	if err != nil {
		return 0, err
	}
	if domain.IsSimulatedOpponent(ev.RespondingUserID) || !duel.IsParticipant(ev.RespondingUserID) {
		return 0, domain.ErrNotParticipant
	}
	if mapping.Recipient != domain.BroadcastRecipient && mapping.Recipient != ev.RespondingUserID {
		return 0, fmt.Errorf("poll sent to %s: %w", mapping.Recipient, domain.ErrNotParticipant)
	}
	if ev.SelectedOptionIndex < 0 || ev.SelectedOptionIndex >= len(mapping.Options) {
		return 0, domain.ErrInvalidOption
	}

	if duel.Status != domain.DuelActive {
		answered, err := s.hasAnswered(ctx, duel.ID, mapping.QuestionOrder, ev.RespondingUserID)
		if err != nil {
			return 0, err
		}
		if answered {
			return s.outcome(DuplicateIgnored), nil
		}
		return 0, domain.ErrDuelNotActive
	}

	now := s.now()
	correct := ev.SelectedOptionIndex == mapping.CorrectIndex
	points := 0
	if correct {
		points = s.settings.RoundReward
	}
	elapsed := int(now.Sub(mapping.CreatedAt).Milliseconds())
	if ev.ResponseTimeMs != nil {
		elapsed = *ev.ResponseTimeMs
	}
	if elapsed < 0 {
		elapsed = 0
	}

	inserted, err := s.store.InsertResponse(ctx, domain.DuelResponse{
		ID:             s.newID(),
		DuelID:         duel.ID,
		QuestionOrder:  mapping.QuestionOrder,
		ParticipantID:  ev.RespondingUserID,
		SelectedOption: ev.SelectedOptionIndex,
		IsCorrect:      correct,
		Points:         points,
		ResponseTimeMs: elapsed,
		CreatedAt:      now,
	})
	if err != nil {
		return 0, err
	}

	outcome := Applied
	if !inserted {
		outcome = DuplicateIgnored
		log.Debug("duplicate answer ignored")
	} else {
		log.WithField("correct", correct).Info("duel answer recorded")
	}
	s.outcome(outcome)

	if err := s.settleRound(ctx, duel.ID, mapping.QuestionOrder); err != nil {
		log.WithError(err).Error("round completion failed")
		return outcome, fmt.Errorf("complete round %d: %w", mapping.QuestionOrder, err)
	}
	return outcome, nil
}

func (s *DuelService) outcome(o AnswerOutcome) AnswerOutcome {
	s.observer.AnswerCorrelated(o.String())
	return o
}

func (s *DuelService) hasAnswered(ctx context.Context, duelID string, order int, participantID string) (bool, error) {
	responses, err := s.store.ListResponses(ctx, duelID, order)
	if err != nil {
		return false, err
	}
	for _, r := range responses {
		if r.ParticipantID == participantID {
			return true, nil
		}
	}
	return false, nil
}
