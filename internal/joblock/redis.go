package joblock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/google/uuid"

	"agentrunner/pkg/backoff"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another instance is never released by us.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// RedisConfig holds Redis lock settings. Zero values use defaults.
type RedisConfig struct {
	Prefix string        // Key prefix (default: "agentrunner:lock:")
	TTL    time.Duration // Lock expiry guarding against crashed holders (default: 2m)
	Wait   time.Duration // How long Lock polls before giving up (default: 30s)
}

// Redis is a lock shared by every instance connected to the same Redis.
type Redis struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	wait    time.Duration
	backoff *backoff.Config
	logger  *slog.Logger
}

// NewRedis creates a Redis-backed locker.
func NewRedis(client *redis.Client, cfg RedisConfig) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = "agentrunner:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	if cfg.Wait <= 0 {
		cfg.Wait = defaultWait
	}
	return &Redis{
		client:  client,
		prefix:  cfg.Prefix,
		ttl:     cfg.TTL,
		wait:    cfg.Wait,
		backoff: &backoff.Config{Initial: 25 * time.Millisecond, Max: 500 * time.Millisecond, Jitter: 0.2},
		logger:  slog.With("component", "joblock"),
	}
}

// Lock acquires key with SET NX and a random token, polling until it is free.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.prefix + key
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	for attempt := 1; ; attempt++ {
		ok, err := r.client.WithContext(ctx).SetNX(redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return func() { r.release(redisKey, token) }, nil
		}
		if err := backoff.Wait(ctx, backoff.Exponential(attempt, r.backoff)); err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, ErrLocked)
		}
	}
}

func (r *Redis) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.WithContext(ctx).Eval(releaseScript, []string{redisKey}, token).Err(); err != nil {
		r.logger.Warn("Failed to release lock, it will expire", "key", redisKey, "ttl", r.ttl, "error", err)
	}
}

// Ready pings Redis.
func (r *Redis) Ready(ctx context.Context) error {
	return r.client.WithContext(ctx).Ping().Err()
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
