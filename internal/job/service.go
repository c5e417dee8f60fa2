// Package job manages the lifecycle of container-backed jobs: creation with a
// freshly allocated host port, stop and restart transitions that keep the
// persisted status in line with the runtime, and read-side listings.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"agentrunner/internal/apperrors"
	"agentrunner/internal/observability"
	"agentrunner/pkg/cloudevent"
)

// MaxNameLength bounds job names to the width of the persisted column.
const MaxNameLength = 100

// Container labels applied to every job container.
const (
	LabelManagedBy = "managed-by"
	LabelJobName   = "job.name"
	ManagedByValue = "agentrunner"
)

// Config holds the provisioning parameters applied to every job.
type Config struct {
	Image              string        // Agent image reference
	ExposedPort        int           // Container-internal VNC port
	AccessHost         string        // Host in access URLs
	AccessPath         string        // Path suffix of access URLs, e.g. /vnc_lite.html
	NamePrefix         string        // Container name prefix
	Env                []string      // KEY=VALUE pairs injected into every container
	RuntimeTimeout     time.Duration // Bound on each runtime call (0 disables)
	StopAllConcurrency int           // Parallel stops in a stop-all batch (default: 4)
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithLocker sets the lock used to serialize transitions on the same job.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithNotifier sets the destination for lifecycle events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service is the job lifecycle manager. The store is the single source of
// truth for which container a job owns; every transition re-reads it.
type Service struct {
	store    Store
	runtime  Runtime
	ports    PortAllocator
	cfg      Config
	locker   Locker
	notifier Notifier
	metrics  *observability.Metrics
	logger   *slog.Logger

	now      func() time.Time
	lastName atomic.Int64 // last millisecond used in a container name
}

// NewService creates a lifecycle manager. Without WithLocker, transitions on
// the same job are not serialized.
func NewService(store Store, runtime Runtime, ports PortAllocator, cfg Config, opts ...Option) *Service {
	if cfg.StopAllConcurrency <= 0 {
		cfg.StopAllConcurrency = 4
	}
	if cfg.AccessHost == "" {
		cfg.AccessHost = "localhost"
	}
	s := &Service{
		store:   store,
		runtime: runtime,
		ports:   ports,
		cfg:     cfg,
		locker:  nopLocker{},
		logger:  slog.With("component", "lifecycle"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob provisions a container for a new job and records the outcome.
//
// Exactly one job row is written whether or not the container came up: a
// STARTED job with its container and port, or a FAILED job with neither.
// The returned error is non-nil only when the name is invalid (nothing is
// written) or the row itself could not be persisted. Creation is never retried.
func (s *Service) CreateJob(ctx context.Context, name string) (*Job, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	// Once issued, creation runs to completion regardless of the caller.
	ctx = context.WithoutCancel(ctx)

	port := s.ports.Allocate(ctx, s.reservedPorts(ctx))
	logger := s.logger.With("name", name, "port", port)

	j := &Job{Name: name, Status: StatusFailed}
	info, provErr := s.provision(ctx, name, port)
	if provErr == nil {
		j.Status = StatusStarted
		j.ContainerID = info.ID
		j.VNCPort = info.HostPort
	}

	saved, err := s.store.Save(ctx, j)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to persist job", "status", j.Status, "error", err)
		if info != nil {
			s.discard(ctx, info.ID)
		}
		return nil, err
	}
	logger = logger.With("jobId", saved.ID)

	if s.metrics != nil {
		s.metrics.RecordJobCreated(ctx, string(saved.Status))
	}

	if provErr != nil {
		logger.WarnContext(ctx, "Job creation failed", "error", provErr)
		s.publish(BuildJobEvent(EventTypeFailed, ActionCreate, saved, provErr))
		return saved, nil
	}

	logger.InfoContext(ctx, "Job started",
		"containerId", info.ID,
		"containerName", info.Name,
		"accessUrl", info.AccessURL,
	)
	s.publish(BuildJobEvent(EventTypeStarted, ActionCreate, saved, nil))
	return saved, nil
}

// provision creates and starts the container, then reads back its state.
// A container that started but could not be inspected is removed again so
// the FAILED row does not leave it behind unreferenced.
func (s *Service) provision(ctx context.Context, name string, port int) (*ContainerInfo, error) {
	spec := ContainerSpec{
		Name:        s.containerName(),
		Image:       s.cfg.Image,
		Args:        []string{name},
		ExposedPort: s.cfg.ExposedPort,
		HostPort:    port,
		Env:         s.cfg.Env,
		Labels: map[string]string{
			LabelManagedBy: ManagedByValue,
			LabelJobName:   name,
		},
	}

	var containerID string
	err := s.runtimeCall(ctx, "runtime.createAndStart", func(ctx context.Context) error {
		var err error
		containerID, err = s.runtime.CreateAndStart(ctx, spec)
		return err
	})
	if err != nil {
		return nil, err
	}

	var state *ContainerState
	err = s.runtimeCall(ctx, "runtime.inspect", func(ctx context.Context) error {
		var err error
		state, err = s.runtime.Inspect(ctx, containerID)
		return err
	})
	if err != nil {
		s.discard(ctx, containerID)
		return nil, err
	}

	return &ContainerInfo{
		ID:        containerID,
		Name:      strings.TrimPrefix(state.Name, "/"),
		Status:    state.Status,
		HostPort:  port,
		AccessURL: s.AccessURL(port),
	}, nil
}

// discard force-removes a container that no job row will reference.
func (s *Service) discard(ctx context.Context, containerID string) {
	err := s.runtimeCall(ctx, "runtime.remove", func(ctx context.Context) error {
		return s.runtime.Remove(ctx, containerID)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to remove unreferenced container", "containerId", containerID, "error", err)
	}
}

// StopJob stops the job's container and marks the job STOPPED.
//
// An unknown id or a job without a container fails with InvalidReference and
// nothing is written. A runtime failure leaves the row unchanged: the job is
// still presumed running. ctx only bounds the wait for the job lock.
func (s *Service) StopJob(ctx context.Context, id int64) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	j, err := s.linkedJob(ctx, id)
	if err != nil {
		return err
	}
	logger := s.logger.With("jobId", id, "containerId", j.ContainerID)

	err = s.runtimeCall(ctx, "runtime.stop", func(ctx context.Context) error {
		return s.runtime.Stop(ctx, j.ContainerID)
	})
	if err != nil {
		logger.WarnContext(ctx, "Failed to stop job", "error", err)
		s.recordTransition(ctx, ActionStop, false)
		s.publish(BuildJobEvent(EventTypeStopFailed, ActionStop, j, err))
		return err
	}

	j.Status = StatusStopped
	saved, err := s.store.Save(ctx, j)
	if err != nil {
		logger.ErrorContext(ctx, "Container stopped but job status not persisted", "error", err)
		return err
	}

	logger.InfoContext(ctx, "Job stopped")
	s.recordTransition(ctx, ActionStop, true)
	s.publish(BuildJobEvent(EventTypeStopped, ActionStop, saved, nil))
	return nil
}

// StartJob restarts the job's container and marks the job STARTED.
//
// Validation matches StopJob. Unlike a failed stop, a failed restart marks
// the job FAILED, since the container is definitively not running. The
// runtime error is still returned after that row is saved.
func (s *Service) StartJob(ctx context.Context, id int64) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	j, err := s.linkedJob(ctx, id)
	if err != nil {
		return err
	}
	logger := s.logger.With("jobId", id, "containerId", j.ContainerID)

	runErr := s.runtimeCall(ctx, "runtime.start", func(ctx context.Context) error {
		return s.runtime.Start(ctx, j.ContainerID)
	})
	if runErr != nil {
		j.Status = StatusFailed
	} else {
		j.Status = StatusStarted
	}

	saved, err := s.store.Save(ctx, j)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to persist job status", "status", j.Status, "error", err)
		return err
	}

	s.recordTransition(ctx, ActionStart, runErr == nil)
	if runErr != nil {
		logger.WarnContext(ctx, "Failed to restart job", "error", runErr)
		s.publish(BuildJobEvent(EventTypeFailed, ActionStart, saved, runErr))
		return runErr
	}

	logger.InfoContext(ctx, "Job restarted")
	s.publish(BuildJobEvent(EventTypeStarted, ActionStart, saved, nil))
	return nil
}

// StopAllJobs stops every STARTED job. Each stop is independent: a failure is
// recorded in the report and the batch carries on. Only a failure to query
// the started jobs is returned as an error.
func (s *Service) StopAllJobs(ctx context.Context) (*BatchReport, error) {
	start := time.Now()

	jobs, err := s.store.FindAllByStatus(ctx, StatusStarted)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{Outcomes: make([]StopOutcome, len(jobs))}
	sem := make(chan struct{}, s.cfg.StopAllConcurrency)
	var wg sync.WaitGroup

	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome := StopOutcome{JobID: jobs[i].ID, Name: jobs[i].Name, Stopped: true}
			if err := s.StopJob(ctx, jobs[i].ID); err != nil {
				outcome.Stopped = false
				outcome.Error = err.Error()
			}
			report.Outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	for _, o := range report.Outcomes {
		if o.Stopped {
			report.Stopped++
		} else {
			report.Failed++
		}
	}

	s.logger.InfoContext(ctx, "Stop-all finished",
		"stopped", report.Stopped,
		"failed", report.Failed,
		"duration", time.Since(start),
	)
	if s.metrics != nil {
		s.metrics.RecordStopAll(ctx, time.Since(start).Seconds())
	}
	s.publish(BuildStopAllEvent(report))
	return report, nil
}

// GetJob returns the persisted job.
func (s *Service) GetJob(ctx context.Context, id int64) (*Job, error) {
	return s.store.FindByID(ctx, id)
}

// JobForContainer returns the job linked to a container.
func (s *Service) JobForContainer(ctx context.Context, containerID string) (*Job, error) {
	if strings.TrimSpace(containerID) == "" {
		return nil, apperrors.Validation("containerId", "container id is required")
	}
	return s.store.FindByContainerID(ctx, containerID)
}

// ListJobs returns every job with its live access URL. A job whose port
// cannot be resolved is listed without one; it never fails the listing.
func (s *Service) ListJobs(ctx context.Context) ([]Listing, error) {
	jobs, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	listings := make([]Listing, 0, len(jobs))
	for _, j := range jobs {
		l := Listing{Job: j}
		if j.HasContainer() {
			if port, err := s.resolvePort(ctx, j.ContainerID); err == nil {
				l.AccessURL = s.AccessURL(port)
			} else {
				s.logger.DebugContext(ctx, "Access URL unavailable", "jobId", j.ID, "error", err)
			}
		}
		l.Display = FormatJob(l)
		listings = append(listings, l)
	}
	return listings, nil
}

// ListContainers returns the runtime's containers.
func (s *Service) ListContainers(ctx context.Context) ([]Container, error) {
	var containers []Container
	err := s.runtimeCall(ctx, "runtime.listContainers", func(ctx context.Context) error {
		var err error
		containers, err = s.runtime.ListContainers(ctx)
		return err
	})
	return containers, err
}

// ListImages returns the runtime's images.
func (s *Service) ListImages(ctx context.Context) ([]Image, error) {
	var images []Image
	err := s.runtimeCall(ctx, "runtime.listImages", func(ctx context.Context) error {
		var err error
		images, err = s.runtime.ListImages(ctx)
		return err
	})
	return images, err
}

// GetAllJobs returns the job listing as display lines.
func (s *Service) GetAllJobs(ctx context.Context) ([]string, error) {
	listings, err := s.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(listings))
	for i, l := range listings {
		lines[i] = l.Display
	}
	return lines, nil
}

// GetAllContainers returns the container listing as display lines.
func (s *Service) GetAllContainers(ctx context.Context) ([]string, error) {
	containers, err := s.ListContainers(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(containers))
	for i, c := range containers {
		lines[i] = s.ContainerDisplay(c)
	}
	return lines, nil
}

// ContainerDisplay renders c using the configured exposed port and access URL.
func (s *Service) ContainerDisplay(c Container) string {
	return FormatContainer(c, s.cfg.ExposedPort, s.AccessURL)
}

// GetAllImages returns the image listing as display lines.
func (s *Service) GetAllImages(ctx context.Context) ([]string, error) {
	images, err := s.ListImages(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(images))
	for i, img := range images {
		lines[i] = FormatImage(img)
	}
	return lines, nil
}

// AccessURL builds the externally reachable VNC link for a host port.
func (s *Service) AccessURL(port int) string {
	return "http://" + net.JoinHostPort(s.cfg.AccessHost, strconv.Itoa(port)) + s.cfg.AccessPath
}

func (s *Service) resolvePort(ctx context.Context, containerID string) (int, error) {
	var port int
	err := s.runtimeCall(ctx, "runtime.resolvePublishedPort", func(ctx context.Context) error {
		var err error
		port, err = s.runtime.ResolvePublishedPort(ctx, containerID, s.cfg.ExposedPort)
		return err
	})
	return port, err
}

// linkedJob loads a job and checks that it references a container.
func (s *Service) linkedJob(ctx context.Context, id int64) (*Job, error) {
	ref := strconv.FormatInt(id, 10)
	j, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidReference("job", ref, "unknown job id", err)
		}
		return nil, err
	}
	if !j.HasContainer() {
		return nil, apperrors.InvalidReference("job", ref, "job has no container", nil)
	}
	return j, nil
}

func (s *Service) lock(ctx context.Context, id int64) (func(), error) {
	unlock, err := s.locker.Lock(ctx, "job:"+strconv.FormatInt(id, 10))
	if err != nil {
		s.logger.WarnContext(ctx, "Job lock not acquired", "jobId", id, "error", err)
		return nil, apperrors.Conflict("job", strconv.FormatInt(id, 10), "another transition is in progress")
	}
	return unlock, nil
}

// reservedPorts collects host ports already recorded for jobs. It is
// best-effort: a store failure yields an empty set.
func (s *Service) reservedPorts(ctx context.Context) map[int]bool {
	jobs, err := s.store.FindAll(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Could not load reserved ports", "error", err)
		return nil
	}
	reserved := make(map[int]bool, len(jobs))
	for _, j := range jobs {
		if j.VNCPort != 0 {
			reserved[j.VNCPort] = true
		}
	}
	return reserved
}

// runtimeCall runs fn under the configured runtime timeout. A deadline the
// runtime did not classify is reported as RuntimeUnavailable.
func (s *Service) runtimeCall(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.cfg.RuntimeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RuntimeTimeout)
		defer cancel()
	}
	err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperrors.ErrRuntimeUnavailable) {
		return apperrors.RuntimeUnavailable(op, err)
	}
	return err
}

// containerName returns prefix plus a unix-millisecond stamp that is unique
// within this process.
func (s *Service) containerName() string {
	for {
		last := s.lastName.Load()
		ms := s.now().UnixMilli()
		if ms <= last {
			ms = last + 1
		}
		if s.lastName.CompareAndSwap(last, ms) {
			return s.cfg.NamePrefix + strconv.FormatInt(ms, 10)
		}
	}
}

func (s *Service) recordTransition(ctx context.Context, action string, success bool) {
	if s.metrics != nil {
		s.metrics.RecordTransition(ctx, action, success)
	}
}

func (s *Service) publish(event *cloudevent.CloudEvent) {
	if s.notifier != nil {
		s.notifier.Publish(event)
	}
}

func validateName(name string) error {
	if name == "" {
		return apperrors.Validation("name", "job name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return apperrors.Validation("name", fmt.Sprintf("job name exceeds maximum length of %d", MaxNameLength))
	}
	return nil
}
