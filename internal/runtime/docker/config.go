package docker

import (
	"time"

	"agentrunner/internal/config"
	"agentrunner/pkg/circuitbreaker"
)

// RuntimeConfig holds configuration for the Docker runtime adapter.
type RuntimeConfig struct {
	StopTimeout time.Duration // Grace period before the daemon kills a stopping container
	PullMissing bool          // Pull the image when it is not present locally
	Breaker     circuitbreaker.Config
}

// LoadConfigFromEnv loads runtime adapter configuration from environment variables.
func LoadConfigFromEnv() RuntimeConfig {
	return RuntimeConfig{
		StopTimeout: config.GetDurationEnv("STOP_TIMEOUT", 10*time.Second),
		PullMissing: config.GetBoolEnv("PULL_MISSING_IMAGES", true),
		Breaker: circuitbreaker.Config{
			Threshold: config.GetIntEnv("RUNTIME_BREAKER_THRESHOLD", 5),
			Cooldown:  config.GetDurationEnv("RUNTIME_BREAKER_COOLDOWN", 30*time.Second),
		},
	}
}
