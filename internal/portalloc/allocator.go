// Package portalloc hands out host ports for container port bindings.
//
// Allocation binds an ephemeral TCP port, reads it back and releases it
// immediately. Nothing is reserved between allocation and the container's
// own bind, so another process can take the port in between. When the OS
// cannot provide a port at all, a random port from a fixed high range is
// returned instead; that fallback keeps job creation live but may collide.
package portalloc

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"agentrunner/internal/apperrors"
	"agentrunner/pkg/backoff"
)

const (
	// FallbackBase and FallbackSpan define the degraded range [10000, 60000).
	FallbackBase = 10000
	FallbackSpan = 50000

	fallbackDraws = 16
)

// MetricsRecorder is an optional interface for recording allocator metrics.
type MetricsRecorder interface {
	RecordPortFallback(ctx context.Context)
	RecordPortRetry(ctx context.Context)
}

// Config holds allocator settings. Zero values use defaults.
type Config struct {
	Host     string          // Interface to probe on (default: 127.0.0.1)
	Attempts int             // OS allocation attempts before falling back (default: 3)
	Backoff  *backoff.Config // Wait between attempts (default: 10ms doubling to 100ms)
}

// Allocator obtains free host ports. It is safe for concurrent use.
type Allocator struct {
	host     string
	attempts int
	backoff  *backoff.Config
	metrics  MetricsRecorder
	logger   *slog.Logger

	listen func(network, address string) (net.Listener, error)
	intn   func(n int) int
}

// New creates an allocator. metrics may be nil.
func New(cfg Config, metrics MetricsRecorder) *Allocator {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff == nil {
		cfg.Backoff = &backoff.Config{Initial: 10 * time.Millisecond, Max: 100 * time.Millisecond}
	}
	return &Allocator{
		host:     cfg.Host,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
		metrics:  metrics,
		logger:   slog.With("component", "portalloc"),
		listen:   net.Listen,
		intn:     rand.IntN,
	}
}

// Allocate returns a port in 1-65535 that is believed free on the host.
// Ports in reserved are treated as taken and never returned by the OS path;
// the fallback path avoids them for a bounded number of draws.
func (a *Allocator) Allocate(ctx context.Context, reserved map[int]bool) int {
	var port int
	err := backoff.Retry(ctx, a.attempts, a.backoff, func(attempt int) error {
		if attempt > 1 && a.metrics != nil {
			a.metrics.RecordPortRetry(ctx)
		}
		p, err := a.probe()
		if err != nil {
			return err
		}
		if reserved[p] {
			return fmt.Errorf("port %d already assigned to a job", p)
		}
		port = p
		return nil
	})
	if err == nil {
		return port
	}
	if ctx.Err() != nil {
		// Cancellation is not an OS failure and is not counted as one.
		a.logger.DebugContext(ctx, "Port allocation cancelled, using random port", "error", err)
		return a.draw(reserved)
	}
	return a.fallback(ctx, reserved, apperrors.PortAllocation(err))
}

// draw picks a random port from the fallback range, avoiding reserved ports
// for a bounded number of draws.
func (a *Allocator) draw(reserved map[int]bool) int {
	port := FallbackBase + a.intn(FallbackSpan)
	for i := 1; i < fallbackDraws && reserved[port]; i++ {
		port = FallbackBase + a.intn(FallbackSpan)
	}
	return port
}

// probe binds port 0 and returns what the OS assigned.
func (a *Allocator) probe() (int, error) {
	l, err := a.listen("tcp", net.JoinHostPort(a.host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok || addr.Port == 0 {
		return 0, fmt.Errorf("unexpected listener address %v", l.Addr())
	}
	return addr.Port, nil
}

func (a *Allocator) fallback(ctx context.Context, reserved map[int]bool, cause error) int {
	port := a.draw(reserved)
	a.logger.WarnContext(ctx, "Ephemeral port allocation failed, using random fallback port",
		"port", port,
		"error", cause,
	)
	if a.metrics != nil {
		a.metrics.RecordPortFallback(ctx)
	}
	return port
}
