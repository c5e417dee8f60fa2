package notify

import (
	"time"

	"agentrunner/internal/config"
)

// Delivery defaults that rarely need tuning.
const (
	defaultMaxRetries       = 3
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultMaxRequeues      = 10
)

// Config holds configuration for the webhook notifier.
type Config struct {
	URLs        []string      // Destinations every event is delivered to
	SigningKey  string        // HMAC key, empty disables signing
	BufferSize  int           // pending deliveries buffer (default: 1000)
	Workers     int           // concurrent delivery goroutines (default: 4)
	HTTPTimeout time.Duration // per-request timeout (default: 10s)

	MaxRetries      int           // retries after the first attempt (default: 3)
	RetryInitial    time.Duration // first retry delay (default: 100ms)
	BreakerCooldown time.Duration // open-circuit wait before requeue (default: 30s)
}

// LoadConfigFromEnv loads notifier tuning from environment variables.
// Destinations and signing key come from the service configuration.
func LoadConfigFromEnv(urls []string, signingKey string) Config {
	cfg := Config{
		URLs:        urls,
		SigningKey:  signingKey,
		BufferSize:  config.GetIntEnv("EVENTS_BUFFER_SIZE", 1000),
		Workers:     config.GetIntEnv("EVENTS_WORKERS", 4),
		HTTPTimeout: config.GetDurationEnv("EVENTS_HTTP_TIMEOUT", 10*time.Second),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 100 * time.Millisecond
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = defaultBreakerCooldown
	}
	return c
}
