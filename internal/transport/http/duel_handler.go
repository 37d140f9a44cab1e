package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/app"
	"exam-duel-service/internal/domain"
)

// DuelService is the part of app.DuelService the REST handlers drive.
type DuelService interface {
	CreateDuel(ctx context.Context, req app.ChallengeRequest) (domain.Duel, error)
	GetDuel(ctx context.Context, id string) (domain.Duel, error)
	AcceptDuel(ctx context.Context, duelID, userID string) (domain.Duel, error)
	RejectDuel(ctx context.Context, duelID, userID string) (domain.Duel, error)
	WithdrawDuel(ctx context.Context, duelID, userID string) (domain.Duel, error)
	Stats(ctx context.Context, participantID string) (domain.DuelStats, error)
}

type DuelHandler struct {
	service  DuelService
	validate *validator.Validate
	log      logrus.FieldLogger
}

func NewDuelHandler(service DuelService, log logrus.FieldLogger) *DuelHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DuelHandler{service: service, validate: validator.New(), log: log}
}

type actionRequest struct {
	UserID string `json:"userId" validate:"required"`
}

func (h *DuelHandler) CreateDuel(w http.ResponseWriter, r *http.Request) {
	var req app.ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, err)
		return
	}

	duel, err := h.service.CreateDuel(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, duel)
}

func (h *DuelHandler) GetDuel(w http.ResponseWriter, r *http.Request) {
	duel, err := h.service.GetDuel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, duel)
}

func (h *DuelHandler) AcceptDuel(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.service.AcceptDuel)
}

func (h *DuelHandler) RejectDuel(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.service.RejectDuel)
}

func (h *DuelHandler) WithdrawDuel(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.service.WithdrawDuel)
}

func (h *DuelHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *DuelHandler) act(w http.ResponseWriter, r *http.Request, do func(ctx context.Context, duelID, userID string) (domain.Duel, error)) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, err)
		return
	}

	duel, err := do(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, duel)
}

func (h *DuelHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("duel request failed")
	}
	writeError(w, err)
}
