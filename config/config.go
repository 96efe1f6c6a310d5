// Package config loads service configuration from the environment.
//
// A .env file in the working directory is loaded first when present, then the
// process environment is parsed into Config. Values already set in the
// environment win over the .env file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Remote targets select the externally visible URLs (OAuth redirects).
const (
	TargetLocal   = "local"
	TargetSandbox = "sandbox"
	TargetRelease = "release"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all environment-based configuration for the identity service.
type Config struct {
	Service     ServiceConfig     `envPrefix:"SERVICE_"`
	Logging     LoggingConfig     `envPrefix:"LOG_"`
	Tracing     TracingConfig     `envPrefix:"TRACING_"`
	Profiling   ProfilingConfig   `envPrefix:"PROFILING_"`
	Database    DatabaseConfig    `envPrefix:"DATABASE_"`
	Auth        AuthConfig        `envPrefix:"AUTH_"`
	GoogleOAuth GoogleOAuthConfig `envPrefix:"GOOGLE_OAUTH_"`
}

type ServiceConfig struct {
	Name    string `env:"NAME" envDefault:"identity-service"`
	Version string `env:"VERSION" envDefault:"dev"`
	Env     string `env:"ENV" envDefault:"development"`
	Port    string `env:"PORT" envDefault:"8080"`

	// RemoteTarget only affects externally visible redirect URLs.
	RemoteTarget string `env:"REMOTE_TARGET" envDefault:"local"`
	// PagesURL overrides the frontend base URL derived from RemoteTarget.
	PagesURL string `env:"PAGES_URL"`

	ShutdownTimeout     string `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ReadinessDrainDelay string `env:"READINESS_DRAIN_DELAY" envDefault:"0s"`
}

type LoggingConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
}

type TracingConfig struct {
	Enabled    bool    `env:"ENABLED" envDefault:"false"`
	Endpoint   string  `env:"ENDPOINT" envDefault:"localhost:4318"`
	SampleRate float64 `env:"SAMPLE_RATE" envDefault:"1.0"`
	Insecure   bool    `env:"INSECURE" envDefault:"true"`
}

type ProfilingConfig struct {
	Enabled  bool   `env:"ENABLED" envDefault:"false"`
	Endpoint string `env:"ENDPOINT" envDefault:"http://localhost:4040"`
}

type DatabaseConfig struct {
	Driver   string `env:"DRIVER" envDefault:"postgres"`
	URL      string `env:"URL"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"10"`
}

type AuthConfig struct {
	// TokenSecret is the hex encoded 32 byte key that signs session credentials.
	TokenSecret string `env:"TOKEN_SECRET"`
	// LoginTTL bounds fully authenticated sessions. Defaults to two weeks.
	LoginTTL time.Duration `env:"LOGIN_TTL" envDefault:"336h"`
	// InsecureTransport drops the Secure cookie attribute. Local development only.
	InsecureTransport bool `env:"INSECURE_TRANSPORT" envDefault:"false"`

	RateLimitPerSecond int `env:"RATE_LIMIT_PER_SECOND" envDefault:"5"`
	RateLimitBurst     int `env:"RATE_LIMIT_BURST" envDefault:"10"`
}

// GoogleOAuthConfig is optional. Leaving both credentials empty disables the
// Google login path.
type GoogleOAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	AuthURL      string `env:"AUTH_URL" envDefault:"https://accounts.google.com/o/oauth2/v2/auth"`
	TokenURL     string `env:"TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	JWKSURL      string `env:"JWKS_URL" envDefault:"https://www.googleapis.com/oauth2/v3/certs"`
}

// Enabled reports whether Google OAuth credentials are configured.
func (g GoogleOAuthConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Service.RemoteTarget = strings.ToLower(strings.TrimSpace(cfg.Service.RemoteTarget))
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if c.Service.Port == "" {
		errs = append(errs, errors.New("SERVICE_PORT is required"))
	}
	switch c.Service.RemoteTarget {
	case TargetLocal, TargetSandbox, TargetRelease:
	default:
		errs = append(errs, fmt.Errorf("SERVICE_REMOTE_TARGET %q is not one of local, sandbox, release", c.Service.RemoteTarget))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is invalid", c.Logging.Level))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("TRACING_SAMPLE_RATE must be within [0, 1], got %v", c.Tracing.SampleRate))
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q is not one of postgres, memory", c.Database.Driver))
	}

	if _, err := c.TokenSecretBytes(); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.LoginTTL <= 0 {
		errs = append(errs, errors.New("AUTH_LOGIN_TTL must be positive"))
	}
	if c.Auth.RateLimitPerSecond <= 0 || c.Auth.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT_PER_SECOND and AUTH_RATE_LIMIT_BURST must be positive"))
	}
	if c.Auth.InsecureTransport && c.Service.RemoteTarget != TargetLocal {
		errs = append(errs, errors.New("AUTH_INSECURE_TRANSPORT is only allowed with SERVICE_REMOTE_TARGET=local"))
	}

	if (c.GoogleOAuth.ClientID == "") != (c.GoogleOAuth.ClientSecret == "") {
		errs = append(errs, errors.New("GOOGLE_OAUTH_CLIENT_ID and GOOGLE_OAUTH_CLIENT_SECRET must be set together"))
	}

	return errors.Join(errs...)
}

// TokenSecretBytes decodes AUTH_TOKEN_SECRET.
func (c *Config) TokenSecretBytes() ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(c.Auth.TokenSecret))
	if err != nil {
		return nil, fmt.Errorf("AUTH_TOKEN_SECRET must be hex encoded: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("AUTH_TOKEN_SECRET must decode to 32 bytes, got %d", len(raw))
	}
	return raw, nil
}

// GetShutdownTimeoutDuration returns the graceful shutdown budget.
func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Service.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// GetReadinessDrainDelayDuration returns how long /ready reports 503 before
// the HTTP server stops accepting connections.
func (c *Config) GetReadinessDrainDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.Service.ReadinessDrainDelay)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
