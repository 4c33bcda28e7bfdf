package config

import (
	"os"
	"time"

	"duel-quiz-service/internal/domain"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Questions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"questions"`
	Duel struct {
		QuestionCount    int                  `yaml:"questionCount"`
		TimeLimitSeconds int                  `yaml:"timeLimitSeconds"`
		RatingK          float64              `yaml:"ratingK"`
		RatingFloor      int                  `yaml:"ratingFloor"`
		Composition      []domain.DomainQuota `yaml:"composition"`
	} `yaml:"duel"`
	Log struct {
		Dir        string `yaml:"dir"`
		MaxSizeMB  int    `yaml:"maxSizeMB"`
		MaxBackups int    `yaml:"maxBackups"`
		MaxAgeDays int    `yaml:"maxAgeDays"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
}

// Load reads YAML config from path and fills in duel defaults. A missing
// file yields the defaults, so the server can run without any config.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.Normalize()
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize applies the duel-mode defaults for unset values. The K factor
// and rating floor stay configurable; the defaults mirror the standard
// two-party setup.
func (c *Config) Normalize() {
	if c.Duel.QuestionCount == 0 {
		c.Duel.QuestionCount = 10
	}
	if c.Duel.TimeLimitSeconds == 0 {
		c.Duel.TimeLimitSeconds = 120
	}
	if c.Duel.RatingK == 0 {
		c.Duel.RatingK = 32
	}
	if c.Duel.RatingFloor == 0 {
		c.Duel.RatingFloor = 800
	}
	if len(c.Duel.Composition) == 0 {
		c.Duel.Composition = []domain.DomainQuota{
			{Domain: "vocabulary", Count: 3},
			{Domain: "grammar", Count: 3},
			{Domain: "listening", Count: 2},
			{Domain: "reading", Count: 2},
		}
	}
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
