// Package api provides the HTTP API handlers and routing for the agent service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"agentrunner/internal/apperrors"
	"agentrunner/internal/health"
	"agentrunner/internal/job"
	"agentrunner/internal/observability"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// CreateJobRequest is the body of POST /v1/jobs.
type CreateJobRequest struct {
	Name string `json:"name"`
}

// CreateJobResponse reports the outcome of a creation. The job is recorded
// either way; Success tells whether its container came up.
type CreateJobResponse struct {
	Success   bool     `json:"success"`
	Job       *job.Job `json:"job"`
	AccessURL string   `json:"accessUrl,omitempty"`
}

// ContainerView is one entry of GET /v1/containers.
type ContainerView struct {
	job.Container
	Display string `json:"display"`
}

// ImageView is one entry of GET /v1/images.
type ImageView struct {
	job.Image
	Display string `json:"display"`
}

// Handler contains HTTP handlers for the agent API
type Handler struct {
	svc     *job.Service
	metrics *observability.Metrics
	health  *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(svc *job.Service, metrics *observability.Metrics, healthChecker *health.Checker) *Handler {
	return &Handler{
		svc:     svc,
		metrics: metrics,
		health:  healthChecker,
	}
}

// CreateJob handles POST /v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	j, err := h.svc.CreateJob(r.Context(), req.Name)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := CreateJobResponse{Success: j.Status == job.StatusStarted, Job: j}
	if j.VNCPort != 0 {
		resp.AccessURL = h.svc.AccessURL(j.VNCPort)
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// ListJobs handles GET /v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	listings, err := h.svc.ListJobs(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, listings)
}

// GetJob handles GET /v1/jobs/{jobId}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	j, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, j)
}

// StopJob handles POST /v1/jobs/{jobId}/stop
func (h *Handler) StopJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	if err := h.svc.StopJob(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeCurrent(w, r, id)
}

// StartJob handles POST /v1/jobs/{jobId}/start
func (h *Handler) StartJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	if err := h.svc.StartJob(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeCurrent(w, r, id)
}

// StopAllJobs handles POST /v1/jobs/stop-all
func (h *Handler) StopAllJobs(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.StopAllJobs(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

// ListContainers handles GET /v1/containers
func (h *Handler) ListContainers(w http.ResponseWriter, r *http.Request) {
	containers, err := h.svc.ListContainers(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	views := make([]ContainerView, len(containers))
	for i, c := range containers {
		views[i] = ContainerView{Container: c, Display: h.svc.ContainerDisplay(c)}
	}
	h.writeJSON(w, http.StatusOK, views)
}

// JobForContainer handles GET /v1/containers/{containerId}/job
func (h *Handler) JobForContainer(w http.ResponseWriter, r *http.Request) {
	j, err := h.svc.JobForContainer(r.Context(), r.PathValue("containerId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, j)
}

// ListImages handles GET /v1/images
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.svc.ListImages(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	views := make([]ImageView, len(images))
	for i, img := range images {
		views[i] = ImageView{Image: img, Display: job.FormatImage(img)}
	}
	h.writeJSON(w, http.StatusOK, views)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 if a required dependency (Docker, the job store) is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsReady() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// jobID parses the {jobId} path value, writing a 400 when it is not a positive integer.
func (h *Handler) jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.PathValue("jobId"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.handleError(w, r, apperrors.Validation("jobId", "job id must be a positive integer"))
		return 0, false
	}
	return id, true
}

// writeCurrent responds with the job as persisted after a transition.
func (h *Handler) writeCurrent(w http.ResponseWriter, r *http.Request, id int64) {
	j, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, j)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes a validation error that did not come from the service.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeErrorResponse(w, r, status, "validation", message)
}

// handleError maps a service error to its status and code and logs it.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	logger := slog.With("path", r.URL.Path, "requestId", RequestID(r.Context()))
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", "error", err, "status", status)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", "error", err, "status", status)
	}
	writeErrorResponse(w, r, status, apperrors.Code(err), err.Error())
}
