package app

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DuelSettings holds the tunables of duel orchestration.
type DuelSettings struct {
	Expiry             time.Duration
	RoundReward        int
	DefaultQuestions   int
	MaxQuestions       int
	DefaultTimeLimit   int // seconds
	SimulatedName      string
	SimulatedAccuracy  float64
	SimulatedDelay     time.Duration
	SimulatedMinAnswer time.Duration
	SimulatedMaxAnswer time.Duration
	DispatchRetryDelay time.Duration
	MaxDispatchRetries int
	ReminderWindow     time.Duration
	StatsWindow        int
}

// DefaultDuelSettings mirrors the production defaults.
func DefaultDuelSettings() DuelSettings {
	return DuelSettings{
		Expiry:             30 * time.Minute,
		RoundReward:        10,
		DefaultQuestions:   5,
		MaxQuestions:       20,
		DefaultTimeLimit:   300,
		SimulatedName:      "ExamBot",
		SimulatedAccuracy:  0.4,
		SimulatedDelay:     3 * time.Second,
		SimulatedMinAnswer: 5 * time.Second,
		SimulatedMaxAnswer: 20 * time.Second,
		DispatchRetryDelay: 30 * time.Second,
		MaxDispatchRetries: 5,
		ReminderWindow:     10 * time.Minute,
		StatsWindow:        50,
	}
}

// Option customises a DuelService.
type Option func(*DuelService)

// WithLogger sets the structured logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *DuelService) { s.log = log }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *DuelService) { s.now = now }
}

// WithIDGenerator replaces uuid generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *DuelService) { s.newID = gen }
}

// WithRandom replaces the source of the simulated opponent's draws.
func WithRandom(r Random) Option {
	return func(s *DuelService) { s.rnd = r }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(s *DuelService) { s.observer = o }
}

// WithPublisher attaches the live event fan-out.
func WithPublisher(p EventPublisher) Option {
	return func(s *DuelService) { s.events = p }
}

func defaultServiceDeps(s *DuelService) {
	s.log = logrus.StandardLogger()
	s.now = time.Now
	s.newID = uuid.NewString
	s.rnd = NewLockedRandom(time.Now().UnixNano())
	s.observer = noopObserver{}
	s.events = noopPublisher{}
}

// LockedRandom is a *rand.Rand safe for concurrent event handlers.
type LockedRandom struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewLockedRandom(seed int64) *LockedRandom {
	return &LockedRandom{rnd: rand.New(rand.NewSource(seed))}
}

func (r *LockedRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Float64()
}

func (r *LockedRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Intn(n)
}

func (r *LockedRandom) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rnd.Shuffle(n, swap)
}
