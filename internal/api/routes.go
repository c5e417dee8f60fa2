package api

import (
	"net/http"

	"agentrunner/internal/health"
	"agentrunner/internal/job"
	"agentrunner/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	JobService    *job.Service
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.JobService, cfg.Metrics, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes)
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Job endpoints
	mux.HandleFunc("POST /v1/jobs", handler.CreateJob)
	mux.HandleFunc("GET /v1/jobs", handler.ListJobs)
	mux.HandleFunc("POST /v1/jobs/stop-all", handler.StopAllJobs)
	mux.HandleFunc("GET /v1/jobs/{jobId}", handler.GetJob)
	mux.HandleFunc("POST /v1/jobs/{jobId}/stop", handler.StopJob)
	mux.HandleFunc("POST /v1/jobs/{jobId}/start", handler.StartJob)

	// Runtime inventory
	mux.HandleFunc("GET /v1/containers", handler.ListContainers)
	mux.HandleFunc("GET /v1/containers/{containerId}/job", handler.JobForContainer)
	mux.HandleFunc("GET /v1/images", handler.ListImages)

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)
	h = RequestIDMiddleware()(h)

	return h
}
