package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/app"
	"exam-duel-service/internal/domain"
	"exam-duel-service/internal/infra/telegram"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// AnswerCorrelator records inbound poll answers.
type AnswerCorrelator interface {
	Correlate(ctx context.Context, ev domain.AnswerEvent) (app.AnswerOutcome, error)
}

// UpdateDeduper remembers delivered update ids.
type UpdateDeduper interface {
	FirstSeen(ctx context.Context, updateID int) (bool, error)
	Forget(ctx context.Context, updateID int) error
}

// WebhookHandler receives Telegram updates. Answers that cannot be recorded
// because of an infrastructure failure get a 500 so Telegram delivers them again.
type WebhookHandler struct {
	correlator AnswerCorrelator
	dedupe     UpdateDeduper
	secret     string
	log        logrus.FieldLogger
}

// NewWebhookHandler builds the handler; dedupe may be nil and secret empty.
func NewWebhookHandler(correlator AnswerCorrelator, dedupe UpdateDeduper, secret string, log logrus.FieldLogger) *WebhookHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WebhookHandler{correlator: correlator, dedupe: dedupe, secret: secret, log: log}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(h.secret)) != 1 {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid update"})
		return
	}

	ev, ok := telegram.AnswerFromUpdate(update)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	log := h.log.WithFields(logrus.Fields{
		"update_id":      update.UpdateID,
		"poll_id":        ev.PollID,
		"participant_id": ev.RespondingUserID,
	})

	if h.dedupe != nil {
		first, err := h.dedupe.FirstSeen(r.Context(), update.UpdateID)
		if err != nil {
			log.WithError(err).Warn("update de-duplication unavailable")
		} else if !first {
			log.Debug("redelivered update ignored")
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	outcome, err := h.correlator.Correlate(r.Context(), ev)
	switch {
	case err == nil:
		log.WithField("outcome", outcome.String()).Debug("poll answer handled")
	case isRejectedAnswer(err):
		log.WithError(err).Info("poll answer rejected")
	default:
		log.WithError(err).Error("poll answer failed")
		if h.dedupe != nil {
			if ferr := h.dedupe.Forget(r.Context(), update.UpdateID); ferr != nil {
				log.WithError(ferr).Warn("release update id")
			}
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// isRejectedAnswer reports errors a redelivery would not fix.
func isRejectedAnswer(err error) bool {
	return errors.Is(err, domain.ErrNotParticipant) ||
		errors.Is(err, domain.ErrInvalidOption) ||
		errors.Is(err, domain.ErrDuelNotActive) ||
		errors.Is(err, domain.ErrDuelNotFound)
}
