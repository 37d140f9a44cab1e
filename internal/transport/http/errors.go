package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"exam-duel-service/internal/domain"
)

type errorPayload struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorPayload{Message: err.Error()})
}

func statusFor(err error) int {
	var invalid validator.ValidationErrors
	switch {
	case errors.Is(err, domain.ErrDuelNotFound), errors.Is(err, domain.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotChallenged), errors.Is(err, domain.ErrNotChallenger), errors.Is(err, domain.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDuelNotPending), errors.Is(err, domain.ErrDuelAlreadyPending),
		errors.Is(err, domain.ErrDuelExpired), errors.Is(err, domain.ErrDuelNotActive),
		errors.Is(err, domain.ErrRoundOpen):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance), errors.Is(err, domain.ErrInsufficientQuestions):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSelfChallenge), errors.Is(err, domain.ErrInvalidDuel),
		errors.Is(err, domain.ErrInvalidOption), errors.As(err, &invalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
