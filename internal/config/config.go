package config

import (
	"errors"
	"time"
)

// ErrIncompleteSession is returned when only one half of the session cookie pair is supplied.
var ErrIncompleteSession = errors.New("session authentication, when provided, must be complete")

type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Target    TargetConfig    `mapstructure:"target"`
	Session   SessionConfig   `mapstructure:"session"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Recorder  RecorderConfig  `mapstructure:"recorder"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type LoggerConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// TargetConfig describes what gets enumerated.
type TargetConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	// Selector is accepted and recorded but never used to build requests.
	Selector string `mapstructure:"selector"`
}

type SessionConfig struct {
	CookieName string `mapstructure:"cookie_name"`
	ID         string `mapstructure:"id"`
}

// Enabled reports whether any part of the session pair was supplied.
func (s SessionConfig) Enabled() bool {
	return s.CookieName != "" || s.ID != ""
}

type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

type RecorderConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Enabled reports whether probes should be persisted.
func (r RecorderConfig) Enabled() bool {
	return r.DSN != ""
}

type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

func (c *Config) Validate() error {
	if c.Target.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if c.Target.Selector == "" {
		return errors.New("selector is required")
	}
	if c.Session.Enabled() && (c.Session.CookieName == "" || c.Session.ID == "") {
		return ErrIncompleteSession
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return errors.New("rate limit must not be negative")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "error",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
		HTTP: HTTPConfig{
			UserAgent: "IdorEnumerator/0.1",
		},
		RateLimit: RateLimitConfig{
			BurstSize: 1,
		},
		Recorder: RecorderConfig{
			MaxConnections:  5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 1 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "idorenum",
			Endpoint:    "localhost:4318",
			SampleRate:  1.0,
		},
	}
}
