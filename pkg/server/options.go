package server

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds gateway configuration.
type Config struct {
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Origin   string

	RateRPS     float64
	RateBurst   int
	RateIdleTTL time.Duration
}

// Option configures the gateway.
type Option func(*Config)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithRegistry sets the Prometheus registry backing /metrics. A fresh
// registry is created when none is given.
func WithRegistry(r *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = r
	}
}

// WithOrigin records the intended cross-origin allowance. It is logged at
// startup but not enforced.
func WithOrigin(origin string) Option {
	return func(c *Config) {
		c.Origin = origin
	}
}

// WithRateLimit enables per-client rate limiting. Zero or negative values
// disable it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Config) {
		c.RateRPS = rps
		c.RateBurst = burst
	}
}

func applyOptions(opts ...Option) *Config {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	return cfg
}
