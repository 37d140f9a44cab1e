package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"exam-duel-service/internal/logger"
	"exam-duel-service/internal/metrics"
)

// RouterDeps collects the handlers mounted by NewRouter. Metrics and Gatherer
// are optional.
type RouterDeps struct {
	Duels    *DuelHandler
	Webhook  *WebhookHandler
	Feed     *WSHandler
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Log      logrus.FieldLogger
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if d.Log != nil {
		r.Use(logger.Middleware(d.Log))
	}
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/duels", func(r chi.Router) {
		r.Post("/", d.Duels.CreateDuel)
		r.Get("/{id}", d.Duels.GetDuel)
		r.Post("/{id}/accept", d.Duels.AcceptDuel)
		r.Post("/{id}/reject", d.Duels.RejectDuel)
		r.Post("/{id}/withdraw", d.Duels.WithdrawDuel)
	})
	r.Get("/participants/{id}/stats", d.Duels.Stats)
	r.Method(http.MethodPost, "/telegram/webhook", d.Webhook)
	r.Get("/ws/duels/{id}", d.Feed.ServeWS)

	return r
}
