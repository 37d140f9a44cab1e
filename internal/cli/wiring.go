package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"exam-duel-service/internal/app"
	"exam-duel-service/internal/config"
	"exam-duel-service/internal/domain"
	"exam-duel-service/internal/infra/memory"
	"exam-duel-service/internal/infra/postgres"
	redisinfra "exam-duel-service/internal/infra/redis"
	"exam-duel-service/internal/infra/retry"
	"exam-duel-service/internal/infra/telegram"
	"exam-duel-service/internal/metrics"
)

const serviceName = "exam-duel-service"

// components is the fully wired service graph. Optional backends are nil when
// not configured and in-process stand-ins take their place.
type components struct {
	cfg      config.Config
	log      logrus.FieldLogger
	service  *app.DuelService
	events   app.EventSubscriber
	dedupe   *redisinfra.Deduper
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	db       *bun.DB
	runJobs  func(ctx context.Context, interval time.Duration) error
	closers  []func()
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*components, error) {
	c := &components{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	c.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.metrics = metrics.New(c.registry)

	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	var store app.DuelStore
	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		c.db = openDB(cfg.Postgres.URL)
		c.closers = append(c.closers, func() { _ = c.db.Close() })
		if err := migrateDB(ctx, c.db, log); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		store = retry.NewStore(postgres.NewStore(c.db), retry.DefaultPolicy(), log)

		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect question pool: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
	} else {
		log.Warn("postgres not configured, duels are kept in memory")
		store = memory.NewDuelStore()
	}

	gateway, err := newGateway(cfg, log)
	if err != nil {
		return nil, err
	}

	rnd := app.NewLockedRandom(time.Now().UnixNano())
	selector := app.NewSelector(questionSources(cfg, pool, redisClient),
		app.WithSelectorLogger(log),
		app.WithSelectorRandom(rnd),
		app.WithSelectorObserver(c.metrics),
	)

	var scheduler app.Scheduler
	var publisher app.EventPublisher
	if redisClient != nil {
		jobs := redisinfra.NewScheduler(redisClient, cfg.Scheduler.Prefix, log)
		bus := redisinfra.NewEventBus(redisClient, log)
		scheduler, publisher, c.events = jobs, bus, bus
		c.dedupe = redisinfra.NewDeduper(redisClient, config.TTLDuration(cfg.Redis.DedupeTTL, 24*time.Hour))
		c.runJobs = func(ctx context.Context, interval time.Duration) error {
			return jobs.Run(ctx, interval, c.service.HandleJob)
		}
	} else {
		log.Warn("redis not configured, scheduled jobs do not survive restarts")
		jobs := memory.NewScheduler(log)
		hub := memory.NewEventHub()
		scheduler, publisher, c.events = jobs, hub, hub
		c.runJobs = func(ctx context.Context, interval time.Duration) error {
			return jobs.Run(ctx, interval, c.service.HandleJob)
		}
	}

	c.service = app.NewDuelService(store, selector, gateway, scheduler, duelSettings(cfg),
		app.WithLogger(log),
		app.WithRandom(rnd),
		app.WithObserver(c.metrics),
		app.WithPublisher(publisher),
	)
	ok = true
	return c, nil
}

func newGateway(cfg config.Config, log logrus.FieldLogger) (app.Gateway, error) {
	if cfg.Telegram.Token == "" {
		log.Warn("telegram token not configured, outbound polls are only recorded in memory")
		return memory.NewGateway(), nil
	}
	gw, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.BroadcastChatID, log)
	if err != nil {
		return nil, err
	}
	return gw, nil
}

// questionSources reads the question bank first and section questions second,
// each behind a short-lived cache.
func questionSources(cfg config.Config, pool *pgxpool.Pool, client *redis.Client) []app.CandidateSource {
	if pool == nil {
		return []app.CandidateSource{{Source: memory.NewStaticSource("question", demoQuestions()), Limit: cfg.Questions.PrimaryLimit}}
	}
	ttl := config.TTLDuration(cfg.Questions.CacheTTL, 10*time.Minute)
	cached := func(src app.QuestionSource) app.QuestionSource {
		if client != nil {
			return redisinfra.NewCachedSource(client, src, ttl)
		}
		return memory.NewCachedSource(src, ttl)
	}
	return []app.CandidateSource{
		{Source: cached(postgres.NewDocumentSource(pool)), Limit: cfg.Questions.PrimaryLimit},
		{Source: cached(postgres.NewSectionSource(pool)), Limit: cfg.Questions.SecondaryLimit},
	}
}

func duelSettings(cfg config.Config) app.DuelSettings {
	s := app.DefaultDuelSettings()
	d := cfg.Duel
	s.Expiry = config.TTLDuration(d.Expiry, s.Expiry)
	s.RoundReward = d.RoundReward
	s.DefaultQuestions = d.DefaultQuestions
	s.MaxQuestions = d.MaxQuestions
	s.DefaultTimeLimit = d.DefaultTimeLimit
	s.SimulatedName = d.SimulatedName
	s.SimulatedAccuracy = d.SimulatedAccuracy
	s.SimulatedDelay = config.TTLDuration(d.SimulatedDelay, s.SimulatedDelay)
	s.SimulatedMinAnswer = config.TTLDuration(d.SimulatedMinAnswer, s.SimulatedMinAnswer)
	s.SimulatedMaxAnswer = config.TTLDuration(d.SimulatedMaxAnswer, s.SimulatedMaxAnswer)
	s.DispatchRetryDelay = config.TTLDuration(d.DispatchRetryDelay, s.DispatchRetryDelay)
	s.MaxDispatchRetries = d.MaxDispatchRetries
	s.ReminderWindow = config.TTLDuration(d.ReminderWindow, s.ReminderWindow)
	s.StatsWindow = d.StatsWindow
	return s
}

// demoQuestions backs duels when no database is configured.
func demoQuestions() []domain.RawQuestion {
	contents := []string{
		"What is 2 + 2? {=4 ~3 ~5 ~22}",
		"Which planet is known as the red planet? {=Mars ~Venus ~Jupiter ~Mercury}",
		"::capital:: What is the capital of Portugal? {=Lisbon ~Porto ~Madrid ####Lisbon has been the capital since 1255.}",
		`{"question": "How many sides does a hexagon have?", "options": ["5", "6", "8"], "correct": 1}`,
		"Water boils at sea level at how many degrees Celsius? {~90 =100 ~120}",
		"Which gas do plants absorb from the air? {=Carbon dioxide ~Oxygen ~Nitrogen}",
	}
	records := make([]domain.RawQuestion, len(contents))
	for i, content := range contents {
		records[i] = domain.RawQuestion{ID: fmt.Sprintf("demo-%d", i+1), Source: "question", Content: content}
	}
	return records
}
