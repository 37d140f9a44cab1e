package domain

import (
	"strconv"
	"time"
)

// EventType names a duel state change published to observers.
type EventType string

const (
	EventCreated            EventType = "duel.created"
	EventAccepted           EventType = "duel.accepted"
	EventStarted            EventType = "duel.started"
	EventQuestionDispatched EventType = "duel.question_dispatched"
	EventRoundClosed        EventType = "duel.round_closed"
	EventCompleted          EventType = "duel.completed"
	EventExpired            EventType = "duel.expired"
	EventCancelled          EventType = "duel.cancelled"
	EventReopened           EventType = "duel.reopened"
)

// DuelEvent is a snapshot-friendly notification about a duel.
type DuelEvent struct {
	Type          EventType      `json:"type"`
	DuelID        string         `json:"duelId"`
	Status        DuelStatus     `json:"status"`
	QuestionOrder int            `json:"questionOrder,omitempty"`
	Broadcast     bool           `json:"broadcast,omitempty"`
	Scores        map[string]int `json:"scores,omitempty"`
	Result        DuelResult     `json:"result,omitempty"`
	WinnerID      string         `json:"winnerId,omitempty"`
	At            time.Time      `json:"at"`
}

// JobKind identifies the work a scheduled job performs.
type JobKind string

const (
	// JobSyntheticAnswer records the simulated opponent's answer for a round.
	JobSyntheticAnswer JobKind = "synthetic_answer"
	// JobDispatchRetry re-sends a round whose delivery failed completely.
	JobDispatchRetry JobKind = "dispatch_retry"
)

// Job is a durable delayed task.
type Job struct {
	ID            string    `json:"id"`
	Kind          JobKind   `json:"kind"`
	DuelID        string    `json:"duelId"`
	QuestionOrder int       `json:"questionOrder"`
	RunAt         time.Time `json:"runAt"`
	Attempt       int       `json:"attempt"`
}

// SyntheticAnswerJobID is stable per round so repeated scheduling collapses.
func SyntheticAnswerJobID(duelID string, order int) string {
	return jobID(JobSyntheticAnswer, duelID, order)
}

// DispatchRetryJobID is stable per round and attempt. A retry that fails again
// schedules the next attempt under a new id while its own job is still held.
func DispatchRetryJobID(duelID string, order, attempt int) string {
	return jobID(JobDispatchRetry, duelID, order) + ":" + strconv.Itoa(attempt)
}

func jobID(kind JobKind, duelID string, order int) string {
	return string(kind) + ":" + duelID + ":" + strconv.Itoa(order)
}
