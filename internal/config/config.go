// Package config provides configuration loading from environment variables
// and an optional YAML provisioning file.
package config

import (
	"time"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// ServiceConfig holds configuration for the agent service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)

	StoreDriver string // memory, postgres or sqlite
	DatabaseURL string // DSN for postgres, file path for sqlite

	RedisAddr string        // Empty uses in-process job locks
	LockTTL   time.Duration // Expiry of a Redis job lock

	EventsURLs       []string // Webhook destinations for lifecycle events (empty disables)
	EventsSigningKey string

	ProvisioningFile string
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		StoreDriver:       GetEnv("STORE_DRIVER", StoreMemory),
		DatabaseURL:       GetEnv("DATABASE_URL", ""),
		RedisAddr:         GetEnv("REDIS_ADDR", ""),
		LockTTL:           GetDurationEnv("LOCK_TTL", 2*time.Minute),
		EventsURLs:        GetListEnv("EVENTS_URLS"),
		EventsSigningKey:  GetSecretFile(GetEnv("EVENTS_SIGNING_KEY_FILE", "")),
		ProvisioningFile:  GetEnv("PROVISIONING_FILE", ""),
	}
}
