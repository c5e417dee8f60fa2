package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv returns the environment variable value or a default.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetIntEnv returns an integer environment variable or a default.
func GetIntEnv(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, strconv.Atoi)
}

// GetDurationEnv returns a duration environment variable (e.g. "30s") or a default.
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, time.ParseDuration)
}

// GetBoolEnv returns a boolean environment variable or a default. Accepts the
// forms strconv.ParseBool does: 1, t, true, 0, f, false and their upper cases.
func GetBoolEnv(key string, defaultValue bool) bool {
	return parseEnv(key, defaultValue, strconv.ParseBool)
}

// parseEnv falls back to defaultValue when key is unset or unparsable. An
// unparsable value is logged so a typo does not silently change behavior.
func parseEnv[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		slog.Warn("Ignoring invalid environment value", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return v
}

// GetListEnv returns a comma-separated environment variable as a slice, or nil.
// Empty items are dropped.
func GetListEnv(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// GetSecretFile reads a secret from a mounted file such as a Docker or
// Kubernetes secret. An empty path yields "". A path that cannot be read is
// logged and yields "".
func GetSecretFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Failed to read secret file", "path", path, "error", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}
