package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDuelDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
redis:
  addr: "localhost:6379"
  ttl: "5m"
duel:
  ratingK: 24
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("explicit values lost: %+v", cfg)
	}
	if cfg.Duel.RatingK != 24 {
		t.Fatalf("ratingK = %v, want 24", cfg.Duel.RatingK)
	}
	if cfg.Duel.QuestionCount != 10 || cfg.Duel.TimeLimitSeconds != 120 || cfg.Duel.RatingFloor != 800 {
		t.Fatalf("defaults not applied: %+v", cfg.Duel)
	}

	total := 0
	for _, quota := range cfg.Duel.Composition {
		total += quota.Count
	}
	if total != cfg.Duel.QuestionCount {
		t.Fatalf("default composition sums to %d, want %d", total, cfg.Duel.QuestionCount)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must not fail: %v", err)
	}
	if cfg.Duel.QuestionCount != 10 {
		t.Fatalf("defaults missing: %+v", cfg.Duel)
	}
}

func TestTTLDuration(t *testing.T) {
	if d := TTLDuration("", time.Minute); d != time.Minute {
		t.Fatalf("empty must fall back, got %v", d)
	}
	if d := TTLDuration("90s", time.Minute); d != 90*time.Second {
		t.Fatalf("parse failed, got %v", d)
	}
	if d := TTLDuration("garbage", time.Minute); d != time.Minute {
		t.Fatalf("invalid must fall back, got %v", d)
	}
}
