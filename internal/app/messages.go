package app

import (
	"fmt"
	"strings"

	"exam-duel-service/internal/content"
	"exam-duel-service/internal/domain"
)

const (
	maxPollQuestionRunes = 280
	maxExplanationRunes  = 200
)

func buildPoll(duel domain.Duel, dq domain.DuelQuestion, header string) domain.Poll {
	text := fmt.Sprintf("%s\nQuestion %d/%d\n\n%s", header, dq.Order, duel.QuestionsCount, dq.Question.Statement)
	return domain.Poll{
		Question:     content.Truncate(text, maxPollQuestionRunes),
		Options:      dq.Question.Options,
		CorrectIndex: dq.Question.CorrectIndex,
		Explanation:  content.Truncate(dq.Question.Explanation, maxExplanationRunes),
	}
}

func privateHeader(duel domain.Duel) string {
	return fmt.Sprintf("Duel (stake %d)", duel.Stake)
}

func broadcastHeader(duel domain.Duel, names map[string]string) string {
	return fmt.Sprintf("Duel %s vs %s (stake %d)", names[duel.ChallengerID], names[duel.ChallengedID], duel.Stake)
}

func invitationText(duel domain.Duel, challenger string) string {
	return fmt.Sprintf("%s challenged you to a %s duel: %d questions, stake %d points. Accept before %s.",
		challenger, duel.Type, duel.QuestionsCount, duel.Stake, duel.ExpiresAt.UTC().Format("15:04 MST"))
}

func announcementText(duel domain.Duel, names map[string]string) string {
	return fmt.Sprintf("Duel started: %s vs %s. %d questions, stake %d points.",
		names[duel.ChallengerID], names[duel.ChallengedID], duel.QuestionsCount, duel.Stake)
}

func rejectedText(duel domain.Duel, names map[string]string) string {
	return fmt.Sprintf("%s declined your duel.", names[duel.ChallengedID])
}

func withdrawnText(duel domain.Duel, names map[string]string) string {
	return fmt.Sprintf("%s withdrew the duel challenge.", names[duel.ChallengerID])
}

func expiredText(duel domain.Duel, names map[string]string) string {
	return fmt.Sprintf("Your duel against %s expired without being accepted.", names[duel.ChallengedID])
}

func reminderText(duel domain.Duel, names map[string]string) string {
	return fmt.Sprintf("Reminder: %s is waiting for your answer to a duel (stake %d). It expires at %s.",
		names[duel.ChallengerID], duel.Stake, duel.ExpiresAt.UTC().Format("15:04 MST"))
}

const couldNotStartText = "The duel could not start: no questions are available right now."

func roundSummaryText(duel domain.Duel, order int, viewer string, responses []domain.DuelResponse, names map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Round %d/%d\n", order, duel.QuestionsCount)
	for _, id := range []string{viewer, duel.Opponent(viewer)} {
		label := names[id]
		if id == viewer {
			label = "You"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, roundMark(responses, id))
	}
	return strings.TrimRight(b.String(), "\n")
}

func roundMark(responses []domain.DuelResponse, participantID string) string {
	for _, r := range responses {
		if r.ParticipantID != participantID {
			continue
		}
		if r.IsCorrect {
			return fmt.Sprintf("correct (+%d)", r.Points)
		}
		return "wrong (0)"
	}
	return "no answer"
}

func finalText(duel domain.Duel, viewer string, s domain.Settlement, scores map[string]int, names map[string]string) string {
	opponent := duel.Opponent(viewer)
	score := fmt.Sprintf("%d - %d against %s", scores[viewer], scores[opponent], names[opponent])
	switch {
	case s.Result == domain.ResultTie:
		return "Duel finished in a tie, " + score + ". No points change hands."
	case s.WinnerID == viewer:
		return fmt.Sprintf("You won the duel, %s. +%d points.", score, s.Stake)
	default:
		return fmt.Sprintf("You lost the duel, %s. -%d points.", score, s.Stake)
	}
}
