// Package notify delivers job lifecycle events to webhook destinations.
// Deliveries are queued in a bounded channel and sent by a worker pool with
// retry and a circuit breaker per destination host.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"agentrunner/pkg/backoff"
	"agentrunner/pkg/circuitbreaker"
	"agentrunner/pkg/cloudevent"
)

// ErrBufferFull is returned when a delivery cannot be queued.
var ErrBufferFull = errors.New("notifier buffer full, event dropped")

// MetricsRecorder is an optional interface for recording notifier metrics.
type MetricsRecorder interface {
	RecordNotifierDelivered(ctx context.Context, durationSeconds float64)
	RecordNotifierFailed(ctx context.Context)
	RecordNotifierDropped(ctx context.Context)
	RecordNotifierRequeued(ctx context.Context)
	RecordNotifierQueueSize(ctx context.Context, size int64)
}

// Stats holds notifier statistics.
type Stats struct {
	QueueDepth   int
	Queued       int64
	Delivered    int64
	Failed       int64
	Dropped      int64
	Requeued     int64
	RetriesTotal int64
	BreakersOpen int
}

type delivery struct {
	event       *cloudevent.CloudEvent
	destination string
	requeues    int
}

// Webhook publishes events to every configured URL.
type Webhook struct {
	queue    chan *delivery
	sender   *cloudevent.Sender
	breakers *circuitbreaker.Registry
	config   Config
	logger   *slog.Logger
	metrics  MetricsRecorder

	queued       atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
	requeued     atomic.Int64
	retriesTotal atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// New creates a webhook notifier and starts its workers. metrics may be nil.
func New(cfg Config, metrics MetricsRecorder) *Webhook {
	cfg = cfg.withDefaults()

	logger := slog.With("component", "notify")
	w := &Webhook{
		queue:  make(chan *delivery, cfg.BufferSize),
		sender: cloudevent.NewSender(cfg.HTTPTimeout),
		breakers: circuitbreaker.NewRegistry(circuitbreaker.Config{
			Threshold: defaultBreakerThreshold,
			Cooldown:  cfg.BreakerCooldown,
			OnStateChange: func(host string, from, to circuitbreaker.State) {
				logger.Info("Destination circuit changed state", "destination", host, "from", from.String(), "to", to.String())
			},
		}),
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	w.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go w.worker()
	}

	if metrics != nil {
		go w.reportQueueSize()
	}

	w.logger.Info("Notifier started", "destinations", len(cfg.URLs), "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return w
}

// Publish queues event for every destination. It never blocks; deliveries
// that do not fit in the buffer are dropped.
func (w *Webhook) Publish(event *cloudevent.CloudEvent) {
	for _, dest := range w.config.URLs {
		if err := w.enqueue(&delivery{event: event, destination: dest}); err != nil && !errors.Is(err, ErrBufferFull) {
			w.logger.Debug("Event not queued", "type", event.Type, "error", err)
		}
	}
}

func (w *Webhook) enqueue(d *delivery) error {
	if w.closed.Load() {
		return fmt.Errorf("notifier is closed")
	}

	select {
	case w.queue <- d:
		w.queued.Add(1)
		return nil
	default:
		w.drop(d, "buffer full")
		return ErrBufferFull
	}
}

// Stats returns current notifier statistics.
func (w *Webhook) Stats() Stats {
	return Stats{
		QueueDepth:   len(w.queue),
		Queued:       w.queued.Load(),
		Delivered:    w.delivered.Load(),
		Failed:       w.failed.Load(),
		Dropped:      w.dropped.Load(),
		Requeued:     w.requeued.Load(),
		RetriesTotal: w.retriesTotal.Load(),
		BreakersOpen: w.breakers.Stats().Open,
	}
}

// Close stops accepting events and waits for queued deliveries to drain.
// The context deadline bounds the wait.
func (w *Webhook) Close(ctx context.Context) error {
	if w.closed.Swap(true) {
		return nil
	}

	w.logger.Info("Notifier shutting down", "queued", len(w.queue))
	close(w.shutdown)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Notifier shutdown complete",
			"delivered", w.delivered.Load(),
			"failed", w.failed.Load(),
			"dropped", w.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		w.logger.Warn("Notifier shutdown timed out", "remaining", len(w.queue))
		return ctx.Err()
	}
}

func (w *Webhook) worker() {
	defer w.wg.Done()

	for {
		select {
		case <-w.shutdown:
			w.drainQueue()
			return
		case d := <-w.queue:
			w.deliver(d)
		}
	}
}

func (w *Webhook) drainQueue() {
	for {
		select {
		case d := <-w.queue:
			w.deliver(d)
		default:
			return
		}
	}
}

func (w *Webhook) deliver(d *delivery) {
	host := extractHost(d.destination)
	breaker := w.breakers.Get(host)

	if !breaker.Allow() {
		w.requeue(d, host)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := w.sendWithRetry(ctx, d); err != nil {
		breaker.RecordFailure()
		w.failed.Add(1)
		if w.metrics != nil {
			w.metrics.RecordNotifierFailed(ctx)
		}
		w.logger.Warn("Delivery failed", "destination", host, "type", d.event.Type, "error", err)
		return
	}

	breaker.RecordSuccess()
	w.delivered.Add(1)
	if w.metrics != nil {
		w.metrics.RecordNotifierDelivered(ctx, time.Since(start).Seconds())
	}
}

// requeue puts a delivery back after the breaker cooldown so the circuit
// has time to recover.
func (w *Webhook) requeue(d *delivery, host string) {
	if d.requeues >= defaultMaxRequeues {
		w.drop(d, "max requeues reached")
		return
	}

	d.requeues++
	w.requeued.Add(1)
	if w.metrics != nil {
		w.metrics.RecordNotifierRequeued(context.Background())
	}

	go func() {
		select {
		case <-w.shutdown:
			return
		case <-time.After(w.config.BreakerCooldown):
		}

		select {
		case w.queue <- d:
			w.logger.Debug("Event requeued", "destination", host, "type", d.event.Type, "requeues", d.requeues)
		case <-w.shutdown:
		default:
			w.drop(d, "buffer full on requeue")
		}
	}()
}

func (w *Webhook) drop(d *delivery, reason string) {
	w.dropped.Add(1)
	if w.metrics != nil {
		w.metrics.RecordNotifierDropped(context.Background())
	}
	w.logger.Warn("Event dropped",
		"reason", reason,
		"destination", extractHost(d.destination),
		"type", d.event.Type,
	)
}

func (w *Webhook) sendWithRetry(ctx context.Context, d *delivery) error {
	opts := cloudevent.SendOptions{SigningKey: w.config.SigningKey}
	cfg := &backoff.Config{Initial: w.config.RetryInitial}

	return backoff.Retry(ctx, w.config.MaxRetries+1, cfg, func(attempt int) error {
		if attempt > 1 {
			w.retriesTotal.Add(1)
		}
		err := w.sender.Send(ctx, d.destination, d.event, opts)
		if err != nil && cloudevent.IsClientError(err) {
			return backoff.Permanent(err)
		}
		return err
	})
}

func (w *Webhook) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.shutdown:
			return
		case <-ticker.C:
			w.metrics.RecordNotifierQueueSize(context.Background(), int64(len(w.queue)))
		}
	}
}

// extractHost extracts the host from a URL for circuit breaker keying.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}
