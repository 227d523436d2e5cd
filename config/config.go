package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable the process reads from the environment.
type Config struct {
	Addr           string        `env:"ARCADE_ADDR" envDefault:":5000"`
	AllowedOrigins []string      `env:"ARCADE_ALLOWED_ORIGINS" envSeparator:","`
	PostgresURL    string        `env:"ARCADE_POSTGRES_URL"`
	FriendsBaseURL string        `env:"ARCADE_FRIENDS_BASE_URL"`
	SessionKey     string        `env:"ARCADE_SESSION_KEY" envDefault:"dev-only-insecure-key"`
	GraceWindow    time.Duration `env:"ARCADE_GRACE_WINDOW" envDefault:"30s"`
	GCInterval     time.Duration `env:"ARCADE_GC_INTERVAL" envDefault:"1m"`
	Debug          bool          `env:"ARCADE_DEBUG"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
