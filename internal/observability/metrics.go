package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: HTTP requests and container runtime calls
// - Traffic: Requests, job creations and transitions
// - Errors: Failed jobs, failed transitions, failed runtime calls
// - Saturation: Notifier queue depth
type Metrics struct {
	meter metric.Meter

	// HTTP metrics
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job lifecycle metrics
	JobsCreatedTotal    metric.Int64Counter
	JobTransitionsTotal metric.Int64Counter
	StopAllDuration     metric.Float64Histogram

	// Container runtime metrics
	RuntimeCallDuration metric.Float64Histogram

	// Port allocator metrics
	PortFallbacksTotal metric.Int64Counter
	PortRetriesTotal   metric.Int64Counter

	// Event notifier metrics
	NotifierDuration  metric.Float64Histogram
	NotifierDelivered metric.Int64Counter
	NotifierFailed    metric.Int64Counter
	NotifierDropped   metric.Int64Counter
	NotifierRequeued  metric.Int64Counter
	NotifierQueueSize metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("agentrunner")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Job lifecycle metrics
	m.JobsCreatedTotal, err = meter.Int64Counter(
		"jobs_created_total",
		metric.WithDescription("Total number of job creations by resulting status"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobTransitionsTotal, err = meter.Int64Counter(
		"job_transitions_total",
		metric.WithDescription("Total number of stop/start transitions by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StopAllDuration, err = meter.Float64Histogram(
		"jobs_stop_all_duration_seconds",
		metric.WithDescription("Duration of stop-all batches in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, nil, err
	}

	// Runtime metrics
	m.RuntimeCallDuration, err = meter.Float64Histogram(
		"runtime_call_duration_seconds",
		metric.WithDescription("Container runtime call latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, nil, err
	}

	// Port allocator metrics
	m.PortFallbacksTotal, err = meter.Int64Counter(
		"port_allocation_fallbacks_total",
		metric.WithDescription("Ports handed out from the random fallback range"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PortRetriesTotal, err = meter.Int64Counter(
		"port_allocation_retries_total",
		metric.WithDescription("Port allocation attempts that had to be retried"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Notifier metrics
	m.NotifierDuration, err = meter.Float64Histogram(
		"notifier_duration_seconds",
		metric.WithDescription("Lifecycle event delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifierDelivered, err = meter.Int64Counter(
		"notifier_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifierFailed, err = meter.Int64Counter(
		"notifier_failed_total",
		metric.WithDescription("Total events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifierDropped, err = meter.Int64Counter(
		"notifier_dropped_total",
		metric.WithDescription("Total events dropped (buffer full or max requeues)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifierRequeued, err = meter.Int64Counter(
		"notifier_requeued_total",
		metric.WithDescription("Total events requeued due to open circuit"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifierQueueSize, err = meter.Int64Gauge(
		"notifier_queue_size",
		metric.WithDescription("Current number of events in notifier queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobCreated records a job creation and the status it ended up in.
func (m *Metrics) RecordJobCreated(ctx context.Context, status string) {
	m.JobsCreatedTotal.Add(ctx, 1, metric.WithAttributes(outcomeAttr(status)))
}

// RecordTransition records a stop or start attempt on a job.
func (m *Metrics) RecordTransition(ctx context.Context, action string, success bool) {
	m.JobTransitionsTotal.Add(ctx, 1, metric.WithAttributes(actionAttr(action), successAttr(success)))
}

// RecordStopAll records a completed stop-all batch.
func (m *Metrics) RecordStopAll(ctx context.Context, durationSeconds float64) {
	m.StopAllDuration.Record(ctx, durationSeconds)
}

// RecordRuntimeCall records the latency of one container runtime call.
func (m *Metrics) RecordRuntimeCall(ctx context.Context, op string, success bool, durationSeconds float64) {
	m.RuntimeCallDuration.Record(ctx, durationSeconds, metric.WithAttributes(opAttr(op), successAttr(success)))
}

// RecordPortFallback records a port handed out from the fallback range.
func (m *Metrics) RecordPortFallback(ctx context.Context) {
	m.PortFallbacksTotal.Add(ctx, 1)
}

// RecordPortRetry records a port allocation attempt that was retried.
func (m *Metrics) RecordPortRetry(ctx context.Context) {
	m.PortRetriesTotal.Add(ctx, 1)
}

// RecordNotifierDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordNotifierDelivered(ctx context.Context, durationSeconds float64) {
	m.NotifierDelivered.Add(ctx, 1)
	m.NotifierDuration.Record(ctx, durationSeconds)
}

// RecordNotifierFailed records a failed event delivery.
func (m *Metrics) RecordNotifierFailed(ctx context.Context) {
	m.NotifierFailed.Add(ctx, 1)
}

// RecordNotifierDropped records a dropped event.
func (m *Metrics) RecordNotifierDropped(ctx context.Context) {
	m.NotifierDropped.Add(ctx, 1)
}

// RecordNotifierRequeued records a requeued event.
func (m *Metrics) RecordNotifierRequeued(ctx context.Context) {
	m.NotifierRequeued.Add(ctx, 1)
}

// RecordNotifierQueueSize records the current queue size.
func (m *Metrics) RecordNotifierQueueSize(ctx context.Context, size int64) {
	m.NotifierQueueSize.Record(ctx, size)
}
