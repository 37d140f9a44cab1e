package telegram

import (
	"context"
	"errors"
	"strconv"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-duel-service/internal/domain"
)

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if b.err != nil {
		return tgbotapi.Message{}, b.err
	}
	b.sent = append(b.sent, c)
	msg := tgbotapi.Message{MessageID: len(b.sent)}
	if _, ok := c.(tgbotapi.SendPollConfig); ok {
		msg.Poll = &tgbotapi.Poll{ID: "tg-poll-" + strconv.Itoa(len(b.sent))}
	}
	return msg, nil
}

func samplePoll() domain.Poll {
	return domain.Poll{
		Question:     "Duel\nQuestion 1/3\n\n2 + 2?",
		Options:      []string{"3", "4", "5"},
		CorrectIndex: 1,
		Explanation:  "Basic arithmetic",
	}
}

func TestSendPrivatePollBuildsQuiz(t *testing.T) {
	bot := &fakeBot{}
	gw := NewGateway(bot, -100200, nil)

	pollID, err := gw.SendPrivatePoll(context.Background(), "12345", samplePoll())
	require.NoError(t, err)
	assert.Equal(t, "tg-poll-1", pollID)

	require.Len(t, bot.sent, 1)
	cfg, ok := bot.sent[0].(tgbotapi.SendPollConfig)
	require.True(t, ok)
	assert.Equal(t, int64(12345), cfg.ChatID)
	assert.Equal(t, "quiz", cfg.Type)
	assert.False(t, cfg.IsAnonymous)
	assert.Equal(t, int64(1), cfg.CorrectOptionID)
	assert.Equal(t, []string{"3", "4", "5"}, cfg.Options)
	assert.Equal(t, "Basic arithmetic", cfg.Explanation)
}

func TestSendBroadcastUsesConfiguredChat(t *testing.T) {
	bot := &fakeBot{}
	gw := NewGateway(bot, -100200, nil)

	_, err := gw.SendBroadcastPoll(context.Background(), samplePoll())
	require.NoError(t, err)
	require.NoError(t, gw.SendBroadcastMessage(context.Background(), "Duel started"))

	cfg := bot.sent[0].(tgbotapi.SendPollConfig)
	assert.Equal(t, int64(-100200), cfg.ChatID)
	msg := bot.sent[1].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(-100200), msg.ChatID)
	assert.Equal(t, "Duel started", msg.Text)
}

func TestBroadcastWithoutChannel(t *testing.T) {
	gw := NewGateway(&fakeBot{}, 0, nil)

	_, err := gw.SendBroadcastPoll(context.Background(), samplePoll())
	assert.ErrorIs(t, err, ErrNoBroadcastChannel)
	assert.ErrorIs(t, gw.SendBroadcastMessage(context.Background(), "x"), ErrNoBroadcastChannel)
}

func TestSendErrorsAreWrapped(t *testing.T) {
	blocked := errors.New("Forbidden: bot was blocked by the user")
	gw := NewGateway(&fakeBot{err: blocked}, -1, nil)

	_, err := gw.SendPrivatePoll(context.Background(), "12345", samplePoll())
	assert.ErrorIs(t, err, blocked)

	_, err = gw.SendPrivatePoll(context.Background(), "not-a-number", samplePoll())
	assert.Error(t, err)
}

func TestAnswerFromUpdate(t *testing.T) {
	ev, ok := AnswerFromUpdate(tgbotapi.Update{
		UpdateID: 7,
		PollAnswer: &tgbotapi.PollAnswer{
			PollID:    "tg-poll-1",
			User:      tgbotapi.User{ID: 12345},
			OptionIDs: []int{2},
		},
	})
	require.True(t, ok)
	assert.Equal(t, domain.AnswerEvent{PollID: "tg-poll-1", RespondingUserID: "12345", SelectedOptionIndex: 2}, ev)

	_, ok = AnswerFromUpdate(tgbotapi.Update{PollAnswer: &tgbotapi.PollAnswer{PollID: "p", User: tgbotapi.User{ID: 1}}})
	assert.False(t, ok, "retracted vote")

	_, ok = AnswerFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi"}})
	assert.False(t, ok)
}
