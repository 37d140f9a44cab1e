package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuelNotFound is returned when a duel id does not exist.
	ErrDuelNotFound = errors.New("duel not found")
	// ErrParticipantNotFound is returned when a participant id is unknown.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrQuestionNotFound indicates the duel has no question at the requested position.
	ErrQuestionNotFound = errors.New("duel question not found")
	// ErrPollNotFound indicates no mapping exists for a poll correlation id.
	ErrPollNotFound = errors.New("poll mapping not found")
	// ErrDuplicateResponse signals the (duel, round, participant) answer already exists.
	ErrDuplicateResponse = errors.New("duplicate duel response")

	ErrSelfChallenge       = errors.New("participants cannot challenge themselves")
	ErrInvalidDuel         = errors.New("invalid duel parameters")
	ErrInsufficientBalance = errors.New("insufficient balance for stake")
	ErrDuelAlreadyPending  = errors.New("a pending duel already exists between these participants")
	ErrNotChallenged       = errors.New("only the challenged participant can do this")
	ErrNotChallenger       = errors.New("only the challenger can do this")
	ErrDuelNotPending      = errors.New("duel is no longer pending")
	ErrDuelNotActive       = errors.New("duel is not active")
	ErrDuelExpired         = errors.New("duel has expired")
	ErrNotParticipant      = errors.New("user does not take part in this duel")
	ErrInvalidOption       = errors.New("selected option out of range")
	ErrDispatchFailed      = errors.New("question could not be delivered")
	ErrRoundOpen           = errors.New("final round is still open")

	// ErrInsufficientQuestions is matched by InsufficientQuestionsError.
	ErrInsufficientQuestions = errors.New("duel could not start: no valid questions")
)

// InsufficientQuestionsError reports that selection found no usable question.
type InsufficientQuestionsError struct {
	Requested int
	Scanned   int
	Skipped   int
}

func (e *InsufficientQuestionsError) Error() string {
	return fmt.Sprintf("duel could not start: no valid questions (requested %d, scanned %d, skipped %d)",
		e.Requested, e.Scanned, e.Skipped)
}

// Is lets errors.Is match ErrInsufficientQuestions.
func (e *InsufficientQuestionsError) Is(target error) bool {
	return target == ErrInsufficientQuestions
}
