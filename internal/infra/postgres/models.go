package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"exam-duel-service/internal/domain"
)

type participantModel struct {
	bun.BaseModel `bun:"table:participants,alias:p"`

	ID          string    `bun:"id,pk"`
	DisplayName string    `bun:"display_name"`
	Balance     int       `bun:"balance"`
	UpdatedAt   time.Time `bun:"updated_at"`
}

func (m participantModel) toDomain() domain.Participant {
	return domain.Participant{ID: m.ID, DisplayName: m.DisplayName, Balance: m.Balance, UpdatedAt: m.UpdatedAt}
}

type duelModel struct {
	bun.BaseModel `bun:"table:duels,alias:d"`

	ID              string     `bun:"id,pk"`
	Type            string     `bun:"type"`
	ChallengerID    string     `bun:"challenger_id"`
	ChallengedID    string     `bun:"challenged_id"`
	QuestionsCount  int        `bun:"questions_count"`
	TimeLimit       int        `bun:"time_limit"`
	Stake           int        `bun:"stake"`
	Status          string     `bun:"status"`
	CurrentQuestion int        `bun:"current_question"`
	CreatedAt       time.Time  `bun:"created_at"`
	ExpiresAt       time.Time  `bun:"expires_at"`
	StartedAt       *time.Time `bun:"started_at"`
	CompletedAt     *time.Time `bun:"completed_at"`
	RemindedAt      *time.Time `bun:"reminded_at"`
	WinnerID        string     `bun:"winner_id"`
	Result          string     `bun:"result"`
}

func newDuelModel(d domain.Duel) *duelModel {
	return &duelModel{
		ID:              d.ID,
		Type:            string(d.Type),
		ChallengerID:    d.ChallengerID,
		ChallengedID:    d.ChallengedID,
		QuestionsCount:  d.QuestionsCount,
		TimeLimit:       d.TimeLimit,
		Stake:           d.Stake,
		Status:          string(d.Status),
		CurrentQuestion: d.CurrentQuestion,
		CreatedAt:       d.CreatedAt,
		ExpiresAt:       d.ExpiresAt,
		StartedAt:       d.StartedAt,
		CompletedAt:     d.CompletedAt,
		RemindedAt:      d.RemindedAt,
		WinnerID:        d.WinnerID,
		Result:          string(d.Result),
	}
}

func (m duelModel) toDomain() domain.Duel {
	return domain.Duel{
		ID:              m.ID,
		Type:            domain.DuelType(m.Type),
		ChallengerID:    m.ChallengerID,
		ChallengedID:    m.ChallengedID,
		QuestionsCount:  m.QuestionsCount,
		TimeLimit:       m.TimeLimit,
		Stake:           m.Stake,
		Status:          domain.DuelStatus(m.Status),
		CurrentQuestion: m.CurrentQuestion,
		CreatedAt:       m.CreatedAt,
		ExpiresAt:       m.ExpiresAt,
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
		RemindedAt:      m.RemindedAt,
		WinnerID:        m.WinnerID,
		Result:          domain.DuelResult(m.Result),
	}
}

func duelsToDomain(models []duelModel) []domain.Duel {
	out := make([]domain.Duel, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out
}

type duelQuestionModel struct {
	bun.BaseModel `bun:"table:duel_questions,alias:dq"`

	DuelID         string   `bun:"duel_id,pk"`
	QuestionOrder  int      `bun:"question_order,pk"`
	QuestionRef    string   `bun:"question_ref"`
	QuestionSource string   `bun:"question_source"`
	Statement      string   `bun:"statement"`
	Options        []string `bun:"options,type:jsonb"`
	CorrectIndex   int      `bun:"correct_index"`
	Explanation    string   `bun:"explanation"`
}

func (m duelQuestionModel) toDomain() domain.DuelQuestion {
	return domain.DuelQuestion{
		DuelID: m.DuelID,
		Order:  m.QuestionOrder,
		Question: domain.Question{
			Ref:          m.QuestionRef,
			Source:       m.QuestionSource,
			Statement:    m.Statement,
			Options:      m.Options,
			CorrectIndex: m.CorrectIndex,
			Explanation:  m.Explanation,
		},
	}
}

type duelResponseModel struct {
	bun.BaseModel `bun:"table:duel_responses,alias:r"`

	ID             string    `bun:"id,pk"`
	DuelID         string    `bun:"duel_id"`
	QuestionOrder  int       `bun:"question_order"`
	ParticipantID  string    `bun:"participant_id"`
	SelectedOption int       `bun:"selected_option"`
	IsCorrect      bool      `bun:"is_correct"`
	Points         int       `bun:"points"`
	ResponseTimeMs int       `bun:"response_time_ms"`
	CreatedAt      time.Time `bun:"created_at"`
}

func (m duelResponseModel) toDomain() domain.DuelResponse {
	return domain.DuelResponse{
		ID:             m.ID,
		DuelID:         m.DuelID,
		QuestionOrder:  m.QuestionOrder,
		ParticipantID:  m.ParticipantID,
		SelectedOption: m.SelectedOption,
		IsCorrect:      m.IsCorrect,
		Points:         m.Points,
		ResponseTimeMs: m.ResponseTimeMs,
		CreatedAt:      m.CreatedAt,
	}
}

type pollMappingModel struct {
	bun.BaseModel `bun:"table:poll_mappings,alias:pm"`

	PollID        string    `bun:"poll_id,pk"`
	Source        string    `bun:"source"`
	DuelID        string    `bun:"duel_id"`
	QuestionOrder int       `bun:"question_order"`
	Recipient     string    `bun:"recipient"`
	CorrectIndex  int       `bun:"correct_index"`
	Options       []string  `bun:"options,type:jsonb"`
	CreatedAt     time.Time `bun:"created_at"`
}

func (m pollMappingModel) toDomain() domain.PollMapping {
	return domain.PollMapping{
		PollID:        m.PollID,
		Source:        m.Source,
		DuelID:        m.DuelID,
		QuestionOrder: m.QuestionOrder,
		Recipient:     m.Recipient,
		CorrectIndex:  m.CorrectIndex,
		Options:       m.Options,
		CreatedAt:     m.CreatedAt,
	}
}
