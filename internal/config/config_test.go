package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
duel:
  roundReward: 25
  simulatedAccuracy: 0.75
telegram:
  broadcastChatId: -100123
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port from file, got %q", cfg.Server.Port)
	}
	if cfg.Duel.RoundReward != 25 || cfg.Duel.SimulatedAccuracy != 0.75 {
		t.Fatalf("unexpected duel section %+v", cfg.Duel)
	}
	if cfg.Duel.MaxQuestions != 20 || cfg.Duel.Expiry != "30m" {
		t.Fatalf("expected defaults for missing keys, got %+v", cfg.Duel)
	}
	if cfg.Telegram.BroadcastChatID != -100123 {
		t.Fatalf("unexpected broadcast chat %d", cfg.Telegram.BroadcastChatID)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, "redis:\n  addr: file:6379\n")
	t.Setenv("REDIS_ADDR", "env:6379")
	t.Setenv("DUEL_ROUND_REWARD", "15")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.Addr != "env:6379" {
		t.Fatalf("expected env override, got %q", cfg.Redis.Addr)
	}
	if cfg.Duel.RoundReward != 15 {
		t.Fatalf("expected reward 15, got %d", cfg.Duel.RoundReward)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Questions.PrimaryLimit != 100 || cfg.Questions.SecondaryLimit != 50 {
		t.Fatalf("unexpected question limits %+v", cfg.Questions)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"accuracy above one": "duel:\n  simulatedAccuracy: 1.5\n",
		"zero reward":        "duel:\n  roundReward: 0\n",
		"default above max":  "duel:\n  defaultQuestions: 30\n",
		"unknown log level":  "log:\n  level: loud\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
	if got := TTLDuration("garbage", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for invalid input, got %v", got)
	}
	if got := TTLDuration("30s", time.Minute); got != 30*time.Second {
		t.Fatalf("expected 30s, got %v", got)
	}
}
