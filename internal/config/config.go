package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port" env:"PORT"`
		ShutdownTimeout string `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	} `yaml:"log"`
	Redis struct {
		Addr      string `yaml:"addr" env:"REDIS_ADDR"`
		Password  string `yaml:"password" env:"REDIS_PASSWORD"`
		DB        int    `yaml:"db" env:"REDIS_DB" validate:"gte=0"`
		DedupeTTL string `yaml:"dedupeTtl" env:"REDIS_DEDUPE_TTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"DATABASE_URL"`
	} `yaml:"postgres"`
	Telegram struct {
		Token           string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
		BroadcastChatID int64  `yaml:"broadcastChatId" env:"TELEGRAM_BROADCAST_CHAT_ID"`
		WebhookSecret   string `yaml:"webhookSecret" env:"TELEGRAM_WEBHOOK_SECRET"`
	} `yaml:"telegram"`
	Duel struct {
		Expiry             string  `yaml:"expiry" env:"DUEL_EXPIRY"`
		RoundReward        int     `yaml:"roundReward" env:"DUEL_ROUND_REWARD" validate:"gt=0"`
		DefaultQuestions   int     `yaml:"defaultQuestions" validate:"gt=0,ltefield=MaxQuestions"`
		MaxQuestions       int     `yaml:"maxQuestions" validate:"gt=0"`
		DefaultTimeLimit   int     `yaml:"defaultTimeLimit" validate:"gt=0"`
		SimulatedName      string  `yaml:"simulatedName" validate:"required"`
		SimulatedAccuracy  float64 `yaml:"simulatedAccuracy" env:"DUEL_SIMULATED_ACCURACY" validate:"gte=0,lte=1"`
		SimulatedDelay     string  `yaml:"simulatedDelay"`
		SimulatedMinAnswer string  `yaml:"simulatedMinAnswer"`
		SimulatedMaxAnswer string  `yaml:"simulatedMaxAnswer"`
		DispatchRetryDelay string  `yaml:"dispatchRetryDelay"`
		MaxDispatchRetries int     `yaml:"maxDispatchRetries" validate:"gte=0"`
		ReminderWindow     string  `yaml:"reminderWindow"`
		SweepInterval      string  `yaml:"sweepInterval" env:"DUEL_SWEEP_INTERVAL"`
		StatsWindow        int     `yaml:"statsWindow" validate:"gt=0"`
	} `yaml:"duel"`
	Questions struct {
		PrimaryLimit   int    `yaml:"primaryLimit" validate:"gte=0"`
		SecondaryLimit int    `yaml:"secondaryLimit" validate:"gte=0"`
		CacheTTL       string `yaml:"cacheTtl" env:"QUESTIONS_CACHE_TTL"`
	} `yaml:"questions"`
	Scheduler struct {
		PollInterval string `yaml:"pollInterval" env:"SCHEDULER_POLL_INTERVAL"`
		Prefix       string `yaml:"prefix"`
	} `yaml:"scheduler"`
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = "5s"
	cfg.Log.Level = "info"
	cfg.Redis.DedupeTTL = "24h"
	cfg.Duel.Expiry = "30m"
	cfg.Duel.RoundReward = 10
	cfg.Duel.DefaultQuestions = 5
	cfg.Duel.MaxQuestions = 20
	cfg.Duel.DefaultTimeLimit = 300
	cfg.Duel.SimulatedName = "ExamBot"
	cfg.Duel.SimulatedAccuracy = 0.4
	cfg.Duel.SimulatedDelay = "3s"
	cfg.Duel.SimulatedMinAnswer = "5s"
	cfg.Duel.SimulatedMaxAnswer = "20s"
	cfg.Duel.DispatchRetryDelay = "30s"
	cfg.Duel.MaxDispatchRetries = 5
	cfg.Duel.ReminderWindow = "10m"
	cfg.Duel.SweepInterval = "1m"
	cfg.Duel.StatsWindow = 50
	cfg.Questions.PrimaryLimit = 100
	cfg.Questions.SecondaryLimit = 50
	cfg.Questions.CacheTTL = "10m"
	cfg.Scheduler.PollInterval = "1s"
	cfg.Scheduler.Prefix = "duel:jobs"
	return cfg
}

// Load reads YAML config from path on top of the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
