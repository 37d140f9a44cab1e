package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"exam-duel-service/internal/domain"
)

const uniqueViolation = "23505"

// Store implements app.DuelStore on Postgres through bun. Conditional updates
// carry their expected previous state in the WHERE clause; a zero row count means
// another caller got there first.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) UpsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	model := &participantModel{ID: p.ID, DisplayName: p.DisplayName, UpdatedAt: s.now()}
	err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO UPDATE").
		Set("display_name = CASE WHEN EXCLUDED.display_name = '' THEN p.display_name ELSE EXCLUDED.display_name END").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("upsert participant: %w", err)
	}
	return model.toDomain(), nil
}

func (s *Store) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	var model participantModel
	err := s.db.NewSelect().Model(&model).Where("p.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return model.toDomain(), nil
}

func (s *Store) HasPendingDuel(ctx context.Context, a, b string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*duelModel)(nil)).
		Where("d.status = ?", domain.DuelPending).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("d.challenger_id = ? AND d.challenged_id = ?", a, b).
				WhereOr("d.challenger_id = ? AND d.challenged_id = ?", b, a)
		}).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check pending duel: %w", err)
	}
	return exists, nil
}

func (s *Store) CreateDuel(ctx context.Context, duel domain.Duel) error {
	if _, err := s.db.NewInsert().Model(newDuelModel(duel)).Exec(ctx); err != nil {
		return fmt.Errorf("create duel: %w", err)
	}
	return nil
}

func (s *Store) GetDuel(ctx context.Context, id string) (domain.Duel, error) {
	var model duelModel
	err := s.db.NewSelect().Model(&model).Where("d.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Duel{}, domain.ErrDuelNotFound
	}
	if err != nil {
		return domain.Duel{}, fmt.Errorf("get duel: %w", err)
	}
	return model.toDomain(), nil
}

func (s *Store) TransitionDuel(ctx context.Context, id string, from, to domain.DuelStatus, at time.Time) (bool, error) {
	q := s.db.NewUpdate().
		Model((*duelModel)(nil)).
		Set("status = ?", to).
		Where("d.id = ?", id).
		Where("d.status = ?", from)
	if to.Terminal() {
		q = q.Set("completed_at = ?", at)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("transition duel %s -> %s: %w", from, to, err)
	}
	return affected(res)
}

func (s *Store) ActivateDuel(ctx context.Context, id string, questions []domain.DuelQuestion, startedAt time.Time) (bool, error) {
	if len(questions) == 0 {
		return false, domain.ErrInsufficientQuestions
	}
	models := make([]duelQuestionModel, len(questions))
	for i, q := range questions {
		models[i] = duelQuestionModel{
			DuelID:         id,
			QuestionOrder:  q.Order,
			QuestionRef:    q.Question.Ref,
			QuestionSource: q.Question.Source,
			Statement:      q.Question.Statement,
			Options:        q.Question.Options,
			CorrectIndex:   q.Question.CorrectIndex,
			Explanation:    q.Question.Explanation,
		}
	}

	activated := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*duelModel)(nil)).
			Set("status = ?", domain.DuelActive).
			Set("questions_count = ?", len(questions)).
			Set("current_question = 1").
			Set("started_at = ?", startedAt).
			Where("d.id = ?", id).
			Where("d.status = ?", domain.DuelAccepted).
			Exec(ctx)
		if err != nil {
			return err
		}
		if activated, err = affected(res); err != nil || !activated {
			return err
		}
		_, err = tx.NewInsert().Model(&models).Exec(ctx)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("activate duel: %w", err)
	}
	return activated, nil
}

func (s *Store) GetDuelQuestion(ctx context.Context, duelID string, order int) (domain.DuelQuestion, error) {
	var model duelQuestionModel
	err := s.db.NewSelect().
		Model(&model).
		Where("dq.duel_id = ?", duelID).
		Where("dq.question_order = ?", order).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DuelQuestion{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.DuelQuestion{}, fmt.Errorf("get duel question: %w", err)
	}
	return model.toDomain(), nil
}

func (s *Store) SavePollMapping(ctx context.Context, m domain.PollMapping) error {
	model := &pollMappingModel{
		PollID:        m.PollID,
		Source:        m.Source,
		DuelID:        m.DuelID,
		QuestionOrder: m.QuestionOrder,
		Recipient:     m.Recipient,
		CorrectIndex:  m.CorrectIndex,
		Options:       m.Options,
		CreatedAt:     m.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(model).On("CONFLICT (poll_id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("save poll mapping: %w", err)
	}
	return nil
}

func (s *Store) GetPollMapping(ctx context.Context, pollID string) (domain.PollMapping, error) {
	var model pollMappingModel
	err := s.db.NewSelect().Model(&model).Where("pm.poll_id = ?", pollID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PollMapping{}, domain.ErrPollNotFound
	}
	if err != nil {
		return domain.PollMapping{}, fmt.Errorf("get poll mapping: %w", err)
	}
	return model.toDomain(), nil
}

// InsertResponse relies on the (duel_id, question_order, participant_id) unique
// constraint; a conflicting row is reported as not inserted.
func (s *Store) InsertResponse(ctx context.Context, r domain.DuelResponse) (bool, error) {
	model := &duelResponseModel{
		ID:             r.ID,
		DuelID:         r.DuelID,
		QuestionOrder:  r.QuestionOrder,
		ParticipantID:  r.ParticipantID,
		SelectedOption: r.SelectedOption,
		IsCorrect:      r.IsCorrect,
		Points:         r.Points,
		ResponseTimeMs: r.ResponseTimeMs,
		CreatedAt:      r.CreatedAt,
	}
	res, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (duel_id, question_order, participant_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert response: %w", err)
	}
	return affected(res)
}

func (s *Store) ListResponses(ctx context.Context, duelID string, order int) ([]domain.DuelResponse, error) {
	var models []duelResponseModel
	q := s.db.NewSelect().Model(&models).Where("r.duel_id = ?", duelID)
	if order > 0 {
		q = q.Where("r.question_order = ?", order)
	}
	if err := q.Order("r.question_order ASC", "r.created_at ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	out := make([]domain.DuelResponse, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out, nil
}

func (s *Store) AdvanceRound(ctx context.Context, duelID string, order int) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*duelModel)(nil)).
		Set("current_question = ?", order+1).
		Where("d.id = ?", duelID).
		Where("d.status = ?", domain.DuelActive).
		Where("d.current_question = ?", order).
		Where("d.questions_count > ?", order).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("advance round: %w", err)
	}
	return affected(res)
}

// FinalizeDuel completes the duel and moves the stake in one transaction. The
// simulated opponent has no balance to adjust.
func (s *Store) FinalizeDuel(ctx context.Context, st domain.Settlement) (bool, error) {
	completed := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*duelModel)(nil)).
			Set("status = ?", domain.DuelCompleted).
			Set("result = ?", st.Result).
			Set("winner_id = ?", st.WinnerID).
			Set("completed_at = ?", st.CompletedAt).
			Where("d.id = ?", st.DuelID).
			Where("d.status = ?", domain.DuelActive).
			Where("d.current_question = ?", st.Round).
			Where("d.questions_count = d.current_question").
			Exec(ctx)
		if err != nil {
			return err
		}
		if completed, err = affected(res); err != nil || !completed {
			return err
		}
		if !st.Transfers() {
			return nil
		}
		if err := s.adjustBalance(ctx, tx, st.WinnerID, st.Stake); err != nil {
			return err
		}
		return s.adjustBalance(ctx, tx, st.LoserID, -st.Stake)
	})
	if err != nil {
		return false, fmt.Errorf("finalize duel: %w", err)
	}
	return completed, nil
}

func (s *Store) adjustBalance(ctx context.Context, tx bun.Tx, participantID string, delta int) error {
	if domain.IsSimulatedOpponent(participantID) {
		return nil
	}
	_, err := tx.NewUpdate().
		Model((*participantModel)(nil)).
		Set("balance = balance + ?", delta).
		Set("updated_at = ?", s.now()).
		Where("p.id = ?", participantID).
		Exec(ctx)
	return err
}

// ExpirePending expires overdue pending duels one by one so each expiry is its
// own compare-and-set.
func (s *Store) ExpirePending(ctx context.Context, now time.Time) ([]domain.Duel, error) {
	var models []duelModel
	err := s.db.NewSelect().
		Model(&models).
		Where("d.status = ?", domain.DuelPending).
		Where("d.expires_at < ?", now).
		Order("d.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list overdue duels: %w", err)
	}

	var expired []domain.Duel
	for _, m := range models {
		ok, err := s.TransitionDuel(ctx, m.ID, domain.DuelPending, domain.DuelExpired, now)
		if err != nil {
			return expired, err
		}
		if ok {
			d := m.toDomain()
			d.Status = domain.DuelExpired
			d.CompletedAt = &now
			expired = append(expired, d)
		}
	}
	return expired, nil
}

func (s *Store) ListPendingExpiring(ctx context.Context, now, until time.Time) ([]domain.Duel, error) {
	var models []duelModel
	err := s.db.NewSelect().
		Model(&models).
		Where("d.status = ?", domain.DuelPending).
		Where("d.reminded_at IS NULL").
		Where("d.expires_at >= ?", now).
		Where("d.expires_at <= ?", until).
		Order("d.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expiring duels: %w", err)
	}
	return duelsToDomain(models), nil
}

func (s *Store) MarkReminded(ctx context.Context, duelID string, at time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*duelModel)(nil)).
		Set("reminded_at = ?", at).
		Where("d.id = ?", duelID).
		Where("d.reminded_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark reminded: %w", err)
	}
	return affected(res)
}

func (s *Store) ListDuelsFor(ctx context.Context, participantID string, status domain.DuelStatus, limit int) ([]domain.Duel, error) {
	var models []duelModel
	q := s.db.NewSelect().
		Model(&models).
		Where("d.status = ?", status).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("d.challenger_id = ?", participantID).WhereOr("d.challenged_id = ?", participantID)
		}).
		OrderExpr("d.completed_at DESC NULLS LAST")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list duels: %w", err)
	}
	return duelsToDomain(models), nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}
