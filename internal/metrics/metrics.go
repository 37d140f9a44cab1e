package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"exam-duel-service/internal/domain"
	"exam-duel-service/internal/logger"
)

const namespace = "exam_duel"

// Metrics holds the Prometheus collectors of the service. It also serves as the
// duel services' observer.
type Metrics struct {
	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	DBConnPoolStats  *prometheus.GaugeVec

	DuelTransitions   *prometheus.CounterVec
	QuestionsSkipped  *prometheus.CounterVec
	QuestionsSent     *prometheus.CounterVec
	AnswersCorrelated *prometheus.CounterVec
	DuelsSettled      *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),
		DBConnPoolStats: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"stat"},
		),
		DuelTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duel_transitions_total",
				Help:      "Duel status transitions by target status",
			},
			[]string{"status"},
		),
		QuestionsSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "questions_skipped_total",
				Help:      "Question candidates rejected by the parser",
			},
			[]string{"source"},
		),
		QuestionsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "questions_dispatched_total",
				Help:      "Round dispatches by delivery mode",
			},
			[]string{"mode"},
		),
		AnswersCorrelated: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answers_total",
				Help:      "Inbound poll answers by outcome",
			},
			[]string{"outcome"},
		),
		DuelsSettled: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duels_settled_total",
				Help:      "Completed duels by result",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) DuelTransition(status domain.DuelStatus) {
	m.DuelTransitions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) QuestionSkipped(source string) {
	m.QuestionsSkipped.WithLabelValues(source).Inc()
}

func (m *Metrics) QuestionDispatched(mode string) {
	m.QuestionsSent.WithLabelValues(mode).Inc()
}

func (m *Metrics) AnswerCorrelated(outcome string) {
	m.AnswersCorrelated.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DuelSettled(result domain.DuelResult) {
	m.DuelsSettled.WithLabelValues(string(result)).Inc()
}

// Middleware records request count, latency and in-flight requests.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := logger.RoutePattern(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.RequestCounter.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

// RecordDBPoolStats records database connection pool statistics.
func (m *Metrics) RecordDBPoolStats(stats sql.DBStats) {
	m.DBConnPoolStats.WithLabelValues("open").Set(float64(stats.OpenConnections))
	m.DBConnPoolStats.WithLabelValues("in_use").Set(float64(stats.InUse))
	m.DBConnPoolStats.WithLabelValues("idle").Set(float64(stats.Idle))
	m.DBConnPoolStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
	m.DBConnPoolStats.WithLabelValues("wait_duration_ms").Set(float64(stats.WaitDuration.Milliseconds()))
}
