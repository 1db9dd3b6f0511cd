package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Auth mode selects how the HTTP layer resolves the caller identity.
const (
	AuthModeNative  = "native"
	AuthModeGateway = "api-gateway"
)

// Config holds all runtime configuration. It is parsed once at process
// start and passed by reference into each component; no package reads
// the environment on its own.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	AuthMode   string `env:"AUTH_MODE" envDefault:"native"`

	DatabaseURI string `env:"DB_URI,required,notEmpty"`

	// Independent signing secrets for the access and refresh contexts.
	SecretKey  string `env:"SECRET_KEY,required,notEmpty"`
	RefreshKey string `env:"REFRESH_KEY,required,notEmpty"`

	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	SenderEmail  string `env:"SENDER_EMAIL"`
	SMTPServer   string `env:"SMTP_SERVER"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"465"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	RateBurst     int `env:"RATE_BURST" envDefault:"20"`
	RatePerSecond int `env:"RATE_PER_SECOND" envDefault:"10"`
}

// Load parses environment variables into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if cfg.AuthMode != AuthModeNative && cfg.AuthMode != AuthModeGateway {
		return nil, fmt.Errorf("config: unsupported AUTH_MODE %q", cfg.AuthMode)
	}
	return cfg, nil
}
