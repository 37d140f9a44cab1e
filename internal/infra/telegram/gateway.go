package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/domain"
)

// ErrNoBroadcastChannel is returned when no shared chat is configured.
var ErrNoBroadcastChannel = errors.New("broadcast channel not configured")

// Sender is the part of *tgbotapi.BotAPI the gateway uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Gateway delivers duel polls and messages through the Telegram Bot API.
// Recipient ids are Telegram user ids; a private chat with a user shares its id.
type Gateway struct {
	bot       Sender
	broadcast int64
	log       logrus.FieldLogger
}

// New connects to the Bot API with token.
func New(token string, broadcastChatID int64, log logrus.FieldLogger) (*Gateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}
	return NewGateway(bot, broadcastChatID, log), nil
}

func NewGateway(bot Sender, broadcastChatID int64, log logrus.FieldLogger) *Gateway {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gateway{bot: bot, broadcast: broadcastChatID, log: log}
}

func (g *Gateway) SendPrivatePoll(ctx context.Context, recipientID string, poll domain.Poll) (string, error) {
	chatID, err := parseChatID(recipientID)
	if err != nil {
		return "", err
	}
	return g.sendPoll(ctx, chatID, poll)
}

func (g *Gateway) SendBroadcastPoll(ctx context.Context, poll domain.Poll) (string, error) {
	if g.broadcast == 0 {
		return "", ErrNoBroadcastChannel
	}
	return g.sendPoll(ctx, g.broadcast, poll)
}

func (g *Gateway) SendPrivateMessage(ctx context.Context, recipientID, text string) error {
	chatID, err := parseChatID(recipientID)
	if err != nil {
		return err
	}
	return g.sendMessage(ctx, chatID, text)
}

func (g *Gateway) SendBroadcastMessage(ctx context.Context, text string) error {
	if g.broadcast == 0 {
		return ErrNoBroadcastChannel
	}
	return g.sendMessage(ctx, g.broadcast, text)
}

func (g *Gateway) sendPoll(ctx context.Context, chatID int64, poll domain.Poll) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cfg := tgbotapi.NewPoll(chatID, poll.Question, poll.Options...)
	cfg.Type = "quiz"
	cfg.IsAnonymous = false
	cfg.CorrectOptionID = int64(poll.CorrectIndex)
	cfg.Explanation = poll.Explanation

	msg, err := g.bot.Send(cfg)
	if err != nil {
		return "", fmt.Errorf("send poll to %d: %w", chatID, err)
	}
	if msg.Poll == nil {
		return "", fmt.Errorf("send poll to %d: response carries no poll", chatID)
	}
	g.log.WithFields(logrus.Fields{"chat_id": chatID, "poll_id": msg.Poll.ID}).Debug("poll sent")
	return msg.Poll.ID, nil
}

func (g *Gateway) sendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := g.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

func parseChatID(recipientID string) (int64, error) {
	id, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("recipient %q is not a telegram id: %w", recipientID, err)
	}
	return id, nil
}

// AnswerFromUpdate extracts a poll answer from a webhook update. Retracted
// votes carry no option and are ignored.
func AnswerFromUpdate(u tgbotapi.Update) (domain.AnswerEvent, bool) {
	if u.PollAnswer == nil || len(u.PollAnswer.OptionIDs) == 0 {
		return domain.AnswerEvent{}, false
	}
	return domain.AnswerEvent{
		PollID:              u.PollAnswer.PollID,
		RespondingUserID:    strconv.FormatInt(u.PollAnswer.User.ID, 10),
		SelectedOptionIndex: u.PollAnswer.OptionIDs[0],
	}, true
}
