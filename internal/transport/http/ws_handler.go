package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/app"
	"exam-duel-service/internal/domain"
)

// DuelReader loads the current state of a duel.
type DuelReader interface {
	GetDuel(ctx context.Context, id string) (domain.Duel, error)
}

// WSHandler streams the live event feed of one duel.
type WSHandler struct {
	duels    DuelReader
	events   app.EventSubscriber
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewWSHandler(duels DuelReader, events app.EventSubscriber, log logrus.FieldLogger) *WSHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WSHandler{
		duels:  duels,
		events: events,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request, sends the duel snapshot and then every event
// published for the duel until the client goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	duelID := chi.URLParam(r, "id")
	duel, err := h.duels.GetDuel(r.Context(), duelID)
	if err != nil {
		writeError(w, err)
		return
	}

	// Subscribe before the snapshot so no event falls between the two.
	updates, cancel, err := h.events.Subscribe(r.Context(), duelID)
	if err != nil {
		h.log.WithError(err).WithField("duel_id", duelID).Error("subscribe duel feed")
		writeError(w, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.WithError(err).WithField("duel_id", duelID).Debug("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "event", Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "snapshot", Payload: duel}

	// The feed is read-only; reading only detects the client closing.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
