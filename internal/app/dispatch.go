package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"exam-duel-service/internal/domain"
)

const (
	dispatchPrivate   = "private"
	dispatchBroadcast = "broadcast"
	dispatchFailed    = "failed"
)

type delivery struct {
	recipient string
	pollID    string
	err       error
}

// dispatch delivers the pre-assigned question of a round. Every human gets a
// private poll; if any private send fails, one shared poll goes to the broadcast
// channel instead. It fails with ErrDispatchFailed only when some participant has
// no poll to answer. announce posts the start-of-duel message first.
func (s *DuelService) dispatch(ctx context.Context, duel domain.Duel, order int, announce bool) error {
	dq, err := s.store.GetDuelQuestion(ctx, duel.ID, order)
	if err != nil {
		return err
	}
	names := s.names(ctx, duel)
	log := s.log.WithFields(logrus.Fields{"duel_id": duel.ID, "question_order": order})

	if announce {
		if err := s.gateway.SendBroadcastMessage(ctx, announcementText(duel, names)); err != nil {
			log.WithError(err).Warn("duel announcement not delivered")
		}
	}

	recipients := duel.HumanIDs()
	results := make([]delivery, len(recipients))
	poll := buildPoll(duel, dq, privateHeader(duel))

	var g errgroup.Group
	for i, recipient := range recipients {
		i, recipient := i, recipient
		g.Go(func() error {
			pollID, err := s.gateway.SendPrivatePoll(ctx, recipient, poll)
			results[i] = delivery{recipient: recipient, pollID: pollID, err: err}
			return err
		})
	}
	privateErr := g.Wait()

	for _, r := range results {
		if r.err != nil {
			log.WithError(r.err).WithField("participant_id", r.recipient).Warn("private poll not delivered")
			continue
		}
		if err := s.savePoll(ctx, duel, dq, r.pollID, r.recipient); err != nil {
			return err
		}
	}

	mode := dispatchPrivate
	if privateErr != nil {
		pollID, err := s.gateway.SendBroadcastPoll(ctx, buildPoll(duel, dq, broadcastHeader(duel, names)))
		if err != nil {
			s.observer.QuestionDispatched(dispatchFailed)
			log.WithError(err).Error("broadcast fallback failed")
			return fmt.Errorf("round %d: %w", order, domain.ErrDispatchFailed)
		}
		if err := s.savePoll(ctx, duel, dq, pollID, domain.BroadcastRecipient); err != nil {
			return err
		}
		mode = dispatchBroadcast
		log.Info("question delivered through broadcast fallback")
	}

	s.observer.QuestionDispatched(mode)
	duel.CurrentQuestion = order
	s.publish(ctx, duel, domain.EventQuestionDispatched, func(ev *domain.DuelEvent) {
		ev.Broadcast = mode == dispatchBroadcast
	})
	return nil
}

func (s *DuelService) savePoll(ctx context.Context, duel domain.Duel, dq domain.DuelQuestion, pollID, recipient string) error {
	return s.store.SavePollMapping(ctx, domain.PollMapping{
		PollID:        pollID,
		Source:        domain.PollSourceDuel,
		DuelID:        duel.ID,
		QuestionOrder: dq.Order,
		Recipient:     recipient,
		CorrectIndex:  dq.Question.CorrectIndex,
		Options:       dq.Question.Options,
		CreatedAt:     s.now(),
	})
}

func (s *DuelService) scheduleDispatchRetry(ctx context.Context, duelID string, order, attempt int) {
	if attempt >= s.settings.MaxDispatchRetries {
		s.log.WithFields(logrus.Fields{"duel_id": duelID, "question_order": order}).
			Error("giving up on question delivery")
		return
	}
	job := domain.Job{
		ID:            domain.DispatchRetryJobID(duelID, order, attempt+1),
		Kind:          domain.JobDispatchRetry,
		DuelID:        duelID,
		QuestionOrder: order,
		RunAt:         s.now().Add(s.settings.DispatchRetryDelay),
		Attempt:       attempt + 1,
	}
	if err := s.scheduler.Schedule(ctx, job); err != nil {
		s.log.WithError(err).WithField("duel_id", duelID).Error("schedule dispatch retry")
	}
}
