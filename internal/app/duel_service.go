package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/domain"
)

// ParticipantRef identifies a platform user taking part in a challenge.
type ParticipantRef struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

// ChallengeRequest describes a new duel. Zero values take the configured defaults;
// a nil Stake uses the default stake of the duel type.
type ChallengeRequest struct {
	Challenger     ParticipantRef  `json:"challenger" validate:"required"`
	Challenged     ParticipantRef  `json:"challenged" validate:"required"`
	Type           domain.DuelType `json:"type"`
	QuestionsCount int             `json:"questionsCount" validate:"gte=0"`
	TimeLimit      int             `json:"timeLimit" validate:"gte=0"`
	Stake          *int            `json:"stake" validate:"omitempty,gte=0"`
}

// DuelService owns the duel state machine. It keeps no per-duel state in memory:
// every decision re-reads the store.
type DuelService struct {
	store     DuelStore
	selector  *Selector
	gateway   Gateway
	scheduler Scheduler
	settings  DuelSettings

	log      logrus.FieldLogger
	now      func() time.Time
	newID    func() string
	rnd      Random
	observer Observer
	events   EventPublisher
}

func NewDuelService(store DuelStore, selector *Selector, gateway Gateway, scheduler Scheduler, settings DuelSettings, opts ...Option) *DuelService {
	s := &DuelService{
		store:     store,
		selector:  selector,
		gateway:   gateway,
		scheduler: scheduler,
		settings:  settings,
	}
	defaultServiceDeps(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDuel registers a pending challenge and invites the challenged participant.
// A challenge against the simulated opponent is accepted on its behalf right away.
func (s *DuelService) CreateDuel(ctx context.Context, req ChallengeRequest) (domain.Duel, error) {
	duel, err := s.newDuel(req)
	if err != nil {
		return domain.Duel{}, err
	}

	challenger, err := s.store.UpsertParticipant(ctx, domain.Participant{ID: req.Challenger.ID, DisplayName: req.Challenger.Name})
	if err != nil {
		return domain.Duel{}, err
	}
	challengedName := req.Challenged.Name
	if domain.IsSimulatedOpponent(req.Challenged.ID) {
		challengedName = s.settings.SimulatedName
	}
	challenged, err := s.store.UpsertParticipant(ctx, domain.Participant{ID: req.Challenged.ID, DisplayName: challengedName})
	if err != nil {
		return domain.Duel{}, err
	}

	if duel.Stake > 0 {
		for _, p := range []domain.Participant{challenger, challenged} {
			if !domain.IsSimulatedOpponent(p.ID) && p.Balance < duel.Stake {
				return domain.Duel{}, fmt.Errorf("%s holds %d: %w", p.ID, p.Balance, domain.ErrInsufficientBalance)
			}
		}
	}

	pending, err := s.store.HasPendingDuel(ctx, duel.ChallengerID, duel.ChallengedID)
	if err != nil {
		return domain.Duel{}, err
	}
	if pending {
		return domain.Duel{}, domain.ErrDuelAlreadyPending
	}

	if err := s.store.CreateDuel(ctx, duel); err != nil {
		return domain.Duel{}, err
	}
	s.observer.DuelTransition(domain.DuelPending)
	s.publish(ctx, duel, domain.EventCreated, nil)
	s.log.WithFields(logrus.Fields{
		"duel_id":    duel.ID,
		"challenger": duel.ChallengerID,
		"challenged": duel.ChallengedID,
		"stake":      duel.Stake,
	}).Info("duel created")

	if domain.IsSimulatedOpponent(duel.ChallengedID) {
		return s.AcceptDuel(ctx, duel.ID, duel.ChallengedID)
	}

	if err := s.gateway.SendPrivateMessage(ctx, duel.ChallengedID, invitationText(duel, challenger.DisplayName)); err != nil {
		s.log.WithError(err).WithField("duel_id", duel.ID).Warn("invitation not delivered")
	}
	return duel, nil
}

func (s *DuelService) newDuel(req ChallengeRequest) (domain.Duel, error) {
	if req.Challenger.ID == "" || req.Challenged.ID == "" {
		return domain.Duel{}, fmt.Errorf("participant ids are required: %w", domain.ErrInvalidDuel)
	}
	if req.Challenger.ID == req.Challenged.ID {
		return domain.Duel{}, domain.ErrSelfChallenge
	}
	if domain.IsSimulatedOpponent(req.Challenger.ID) {
		return domain.Duel{}, fmt.Errorf("simulated opponent cannot challenge: %w", domain.ErrInvalidDuel)
	}

	duelType := req.Type
	if duelType == "" {
		duelType = domain.DuelStandard
	}
	if !duelType.Valid() {
		return domain.Duel{}, fmt.Errorf("unknown duel type %q: %w", duelType, domain.ErrInvalidDuel)
	}

	count := req.QuestionsCount
	if count == 0 {
		count = s.settings.DefaultQuestions
	}
	if count < 1 || count > s.settings.MaxQuestions {
		return domain.Duel{}, fmt.Errorf("questions count %d outside 1..%d: %w", count, s.settings.MaxQuestions, domain.ErrInvalidDuel)
	}

	timeLimit := req.TimeLimit
	if timeLimit == 0 {
		timeLimit = s.settings.DefaultTimeLimit
	}
	if timeLimit < 0 {
		return domain.Duel{}, fmt.Errorf("time limit %d: %w", timeLimit, domain.ErrInvalidDuel)
	}

	stake := duelType.DefaultStake()
	if req.Stake != nil {
		stake = *req.Stake
	}
	if stake < 0 {
		return domain.Duel{}, fmt.Errorf("stake %d: %w", stake, domain.ErrInvalidDuel)
	}

	now := s.now()
	return domain.Duel{
		ID:             s.newID(),
		Type:           duelType,
		ChallengerID:   req.Challenger.ID,
		ChallengedID:   req.Challenged.ID,
		QuestionsCount: count,
		TimeLimit:      timeLimit,
		Stake:          stake,
		Status:         domain.DuelPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.settings.Expiry),
	}, nil
}

// GetDuel returns the current state of a duel.
func (s *DuelService) GetDuel(ctx context.Context, id string) (domain.Duel, error) {
	return s.store.GetDuel(ctx, id)
}

// AcceptDuel accepts a pending duel, selects its questions and dispatches the first
// one. Accepting after expiry marks the duel expired and fails with ErrDuelExpired.
func (s *DuelService) AcceptDuel(ctx context.Context, duelID, userID string) (domain.Duel, error) {
	duel, err := s.store.GetDuel(ctx, duelID)
	if err != nil {
		return domain.Duel{}, err
	}
	if userID != duel.ChallengedID {
		return domain.Duel{}, domain.ErrNotChallenged
	}
	if duel.Status != domain.DuelPending {
		return domain.Duel{}, domain.ErrDuelNotPending
	}

	now := s.now()
	if now.After(duel.ExpiresAt) {
		if _, err := s.transition(ctx, duel, domain.DuelExpired, domain.EventExpired); err != nil {
			return domain.Duel{}, err
		}
		return domain.Duel{}, domain.ErrDuelExpired
	}

	ok, err := s.transition(ctx, duel, domain.DuelAccepted, domain.EventAccepted)
	if err != nil {
		return domain.Duel{}, err
	}
	if !ok {
		return domain.Duel{}, domain.ErrDuelNotPending
	}
	duel.Status = domain.DuelAccepted

	if err := s.start(ctx, duel); err != nil {
		if !errors.Is(err, domain.ErrInsufficientQuestions) {
			s.reopen(ctx, duel, err)
		}
		return domain.Duel{}, err
	}
	return s.store.GetDuel(ctx, duelID)
}

// reopen returns a duel whose start failed to pending, where it can be accepted
// again, rejected, or expired by the sweep. The caller's context may already be
// cancelled, so the compare-and-set runs without it.
func (s *DuelService) reopen(ctx context.Context, duel domain.Duel, cause error) {
	log := s.log.WithError(cause).WithField("duel_id", duel.ID)
	ok, err := s.transition(context.WithoutCancel(ctx), duel, domain.DuelPending, domain.EventReopened)
	if err != nil {
		log.WithField("reopen_error", err.Error()).Error("duel left accepted after failed start")
		return
	}
	if ok {
		log.Warn("duel start failed, reopened for acceptance")
	}
}

// start selects and fixes the question list, then dispatches round one.
func (s *DuelService) start(ctx context.Context, duel domain.Duel) error {
	log := s.log.WithField("duel_id", duel.ID)

	questions, err := s.selector.Select(ctx, duel.QuestionsCount)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientQuestions) {
			log.WithError(err).Warn("duel could not start")
			if _, terr := s.transition(ctx, duel, domain.DuelCancelled, domain.EventCancelled); terr != nil {
				log.WithError(terr).Error("cancel unstartable duel")
			}
			for _, id := range duel.HumanIDs() {
				s.notify(ctx, duel.ID, id, couldNotStartText)
			}
		}
		return err
	}

	list := make([]domain.DuelQuestion, len(questions))
	for i, q := range questions {
		list[i] = domain.DuelQuestion{DuelID: duel.ID, Order: i + 1, Question: q}
	}
	ok, err := s.store.ActivateDuel(ctx, duel.ID, list, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrDuelNotPending
	}

	duel.Status = domain.DuelActive
	duel.QuestionsCount = len(list)
	duel.CurrentQuestion = 1
	s.observer.DuelTransition(domain.DuelActive)
	s.publish(ctx, duel, domain.EventStarted, nil)
	log.WithField("questions", len(list)).Info("duel started")

	if err := s.dispatch(ctx, duel, 1, true); err != nil {
		log.WithError(err).Warn("first question not delivered, retry scheduled")
		s.scheduleDispatchRetry(ctx, duel.ID, 1, 0)
	}
	return nil
}

// RejectDuel lets the challenged participant decline a pending duel.
func (s *DuelService) RejectDuel(ctx context.Context, duelID, userID string) (domain.Duel, error) {
	return s.cancel(ctx, duelID, userID, true)
}

// WithdrawDuel lets the challenger take back a pending challenge.
func (s *DuelService) WithdrawDuel(ctx context.Context, duelID, userID string) (domain.Duel, error) {
	return s.cancel(ctx, duelID, userID, false)
}

func (s *DuelService) cancel(ctx context.Context, duelID, userID string, byChallenged bool) (domain.Duel, error) {
	duel, err := s.store.GetDuel(ctx, duelID)
	if err != nil {
		return domain.Duel{}, err
	}
	if byChallenged && userID != duel.ChallengedID {
		return domain.Duel{}, domain.ErrNotChallenged
	}
	if !byChallenged && userID != duel.ChallengerID {
		return domain.Duel{}, domain.ErrNotChallenger
	}
	if duel.Status != domain.DuelPending {
		return domain.Duel{}, domain.ErrDuelNotPending
	}

	ok, err := s.transition(ctx, duel, domain.DuelCancelled, domain.EventCancelled)
	if err != nil {
		return domain.Duel{}, err
	}
	if !ok {
		return domain.Duel{}, domain.ErrDuelNotPending
	}

	names := s.names(ctx, duel)
	if byChallenged {
		s.notify(ctx, duel.ID, duel.ChallengerID, rejectedText(duel, names))
	} else if !domain.IsSimulatedOpponent(duel.ChallengedID) {
		s.notify(ctx, duel.ID, duel.ChallengedID, withdrawnText(duel, names))
	}
	return s.store.GetDuel(ctx, duelID)
}

// transition applies a status compare-and-set from the duel's current status.
func (s *DuelService) transition(ctx context.Context, duel domain.Duel, to domain.DuelStatus, event domain.EventType) (bool, error) {
	ok, err := s.store.TransitionDuel(ctx, duel.ID, duel.Status, to, s.now())
	if err != nil || !ok {
		return ok, err
	}
	duel.Status = to
	s.observer.DuelTransition(to)
	s.publish(ctx, duel, event, nil)
	s.log.WithFields(logrus.Fields{"duel_id": duel.ID, "status": to}).Info("duel transitioned")
	return true, nil
}

func (s *DuelService) publish(ctx context.Context, duel domain.Duel, typ domain.EventType, decorate func(*domain.DuelEvent)) {
	ev := domain.DuelEvent{
		Type:          typ,
		DuelID:        duel.ID,
		Status:        duel.Status,
		QuestionOrder: duel.CurrentQuestion,
		At:            s.now(),
	}
	if decorate != nil {
		decorate(&ev)
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithField("duel_id", duel.ID).Warn("publish duel event")
	}
}

// notify sends a private message; failures are logged and swallowed.
func (s *DuelService) notify(ctx context.Context, duelID, recipient, text string) {
	if domain.IsSimulatedOpponent(recipient) {
		return
	}
	if err := s.gateway.SendPrivateMessage(ctx, recipient, text); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"duel_id":        duelID,
			"participant_id": recipient,
		}).Warn("message not delivered")
	}
}

// names resolves display names, falling back to the id.
func (s *DuelService) names(ctx context.Context, duel domain.Duel) map[string]string {
	names := make(map[string]string, 2)
	for _, id := range []string{duel.ChallengerID, duel.ChallengedID} {
		names[id] = id
		if domain.IsSimulatedOpponent(id) {
			names[id] = s.settings.SimulatedName
		}
		if p, err := s.store.GetParticipant(ctx, id); err == nil && p.DisplayName != "" {
			names[id] = p.DisplayName
		}
	}
	return names
}
