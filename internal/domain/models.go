package domain

import "time"

// SimulatedOpponentID is the reserved participant identity of the automated stand-in.
const SimulatedOpponentID = "999999999"

// BroadcastRecipient marks a poll mapping that was delivered to the shared channel.
const BroadcastRecipient = "broadcast"

// PollSourceDuel tags poll mappings created by duel dispatch.
const PollSourceDuel = "duel"

// DuelStatus is the lifecycle state of a duel.
type DuelStatus string

const (
	DuelPending   DuelStatus = "pending"
	DuelAccepted  DuelStatus = "accepted"
	DuelActive    DuelStatus = "active"
	DuelCompleted DuelStatus = "completed"
	DuelExpired   DuelStatus = "expired"
	DuelCancelled DuelStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s DuelStatus) Terminal() bool {
	return s == DuelCompleted || s == DuelExpired || s == DuelCancelled
}

// DuelResult is the settled outcome of a completed duel.
type DuelResult string

const (
	ResultNone          DuelResult = ""
	ResultChallengerWin DuelResult = "challenger_win"
	ResultChallengedWin DuelResult = "challenged_win"
	ResultTie           DuelResult = "tie"
)

// DuelType selects the default stake of a challenge.
type DuelType string

const (
	DuelStandard DuelType = "standard"
	DuelSpeed    DuelType = "speed"
	DuelAccuracy DuelType = "accuracy"
)

// DefaultStake returns the stake used when a challenge does not name one.
func (t DuelType) DefaultStake() int {
	switch t {
	case DuelSpeed:
		return 10
	case DuelAccuracy:
		return 15
	default:
		return 5
	}
}

// Valid reports whether t is a known duel type.
func (t DuelType) Valid() bool {
	switch t {
	case DuelStandard, DuelSpeed, DuelAccuracy:
		return true
	}
	return false
}

// Participant is a platform user that can take part in duels.
type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Balance     int       `json:"balance"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsSimulatedOpponent reports whether id is the reserved automated stand-in.
func IsSimulatedOpponent(id string) bool {
	return id == SimulatedOpponentID
}

// Duel is the aggregate root of a head-to-head quiz competition.
type Duel struct {
	ID              string     `json:"id"`
	Type            DuelType   `json:"type"`
	ChallengerID    string     `json:"challengerId"`
	ChallengedID    string     `json:"challengedId"`
	QuestionsCount  int        `json:"questionsCount"`
	TimeLimit       int        `json:"timeLimit"` // seconds
	Stake           int        `json:"stake"`
	Status          DuelStatus `json:"status"`
	CurrentQuestion int        `json:"currentQuestion"`
	CreatedAt       time.Time  `json:"createdAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	RemindedAt      *time.Time `json:"remindedAt,omitempty"`
	WinnerID        string     `json:"winnerId,omitempty"`
	Result          DuelResult `json:"result,omitempty"`
}

// HasSimulatedOpponent reports whether either side is the automated stand-in.
func (d Duel) HasSimulatedOpponent() bool {
	return IsSimulatedOpponent(d.ChallengerID) || IsSimulatedOpponent(d.ChallengedID)
}

// IsParticipant reports whether userID plays in the duel.
func (d Duel) IsParticipant(userID string) bool {
	return userID == d.ChallengerID || userID == d.ChallengedID
}

// Opponent returns the other side of userID.
func (d Duel) Opponent(userID string) string {
	if userID == d.ChallengerID {
		return d.ChallengedID
	}
	return d.ChallengerID
}

// HumanIDs lists the participants that are real users, challenger first.
func (d Duel) HumanIDs() []string {
	ids := make([]string, 0, 2)
	for _, id := range []string{d.ChallengerID, d.ChallengedID} {
		if !IsSimulatedOpponent(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Question is a validated multiple-choice question ready for dispatch.
type Question struct {
	Ref          string   `json:"ref"`
	Source       string   `json:"source"`
	Statement    string   `json:"statement"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation,omitempty"`
}

// RawQuestion is an unparsed candidate record from a question source.
type RawQuestion struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// DuelQuestion fixes one question at one position of a duel.
type DuelQuestion struct {
	DuelID   string   `json:"duelId"`
	Order    int      `json:"order"`
	Question Question `json:"question"`
}

// DuelResponse is one participant's answer to one round. Rows are append-only.
type DuelResponse struct {
	ID             string    `json:"id"`
	DuelID         string    `json:"duelId"`
	QuestionOrder  int       `json:"questionOrder"`
	ParticipantID  string    `json:"participantId"`
	SelectedOption int       `json:"selectedOption"`
	IsCorrect      bool      `json:"isCorrect"`
	Points         int       `json:"points"`
	ResponseTimeMs int       `json:"responseTimeMs"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PollMapping correlates a platform poll id with the round it carries.
type PollMapping struct {
	PollID        string    `json:"pollId"`
	Source        string    `json:"source"`
	DuelID        string    `json:"duelId"`
	QuestionOrder int       `json:"questionOrder"`
	Recipient     string    `json:"recipient"`
	CorrectIndex  int       `json:"correctIndex"`
	Options       []string  `json:"options"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Poll is the outbound quiz payload handed to the messaging gateway.
type Poll struct {
	Question     string
	Options      []string
	CorrectIndex int
	Explanation  string
}

// AnswerEvent is an inbound poll answer reported by the messaging platform.
type AnswerEvent struct {
	PollID              string
	RespondingUserID    string
	SelectedOptionIndex int
	ResponseTimeMs      *int
}

// Settlement is the single logical write that completes a duel.
type Settlement struct {
	DuelID      string
	Round       int
	Result      DuelResult
	WinnerID    string
	LoserID     string
	Stake       int
	CompletedAt time.Time
}

// Transfers reports whether the settlement moves points between balances.
func (s Settlement) Transfers() bool {
	return s.Result != ResultTie && s.WinnerID != "" && s.Stake > 0
}

// DuelStats summarises a participant's completed duels.
type DuelStats struct {
	ParticipantID string  `json:"participantId"`
	Total         int     `json:"total"`
	Won           int     `json:"won"`
	Lost          int     `json:"lost"`
	Tied          int     `json:"tied"`
	WinRate       float64 `json:"winRate"`
	CurrentStreak int     `json:"currentStreak"`
}
