package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port                  int    `env:"PORT" envDefault:"8080"`
	DatabaseURL           string `env:"DATABASE_URL,required"`
	RedisURL              string `env:"REDIS_URL,required"`
	BridgeURL             string `env:"BRIDGE_URL,required"`
	ResponderURL          string `env:"RESPONDER_URL"`
	APIToken              string `env:"API_TOKEN"`
	DashboardPasswordHash string `env:"DASHBOARD_PASSWORD_HASH"`
	StartTimeoutSeconds   int    `env:"START_TIMEOUT_SECONDS" envDefault:"60"`
	IdleCloseHours        int    `env:"IDLE_CLOSE_HOURS" envDefault:"0"`
	RateLimitPerMin       int    `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
}

// StartTimeout bounds the dispatcher's lazy-reconnect wait and any caller
// waiting for the external handshake to complete.
func (c *Config) StartTimeout() time.Duration {
	return time.Duration(c.StartTimeoutSeconds) * time.Second
}

// IdleCloseAfter is the inactivity window after which conversations are
// closed. Zero disables the job.
func (c *Config) IdleCloseAfter() time.Duration {
	return time.Duration(c.IdleCloseHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.DashboardPasswordHash != "" {
		if !strings.HasPrefix(c.DashboardPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.DashboardPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.DashboardPasswordHash, "$2y$") {
			return fmt.Errorf("DASHBOARD_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if c.APIToken == "" && c.DashboardPasswordHash == "" {
		return fmt.Errorf("at least one of API_TOKEN or DASHBOARD_PASSWORD_HASH must be set")
	}

	if isProduction {
		if c.APIToken != "" {
			if err := validateSecret("API_TOKEN", c.APIToken); err != nil {
				return err
			}
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if strings.HasPrefix(c.BridgeURL, "http://") {
			log.Warn().Msg("BRIDGE_URL uses http:// in production: consider using https://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
