// Package docker implements job.Runtime over the Docker Engine API.
// Agent containers run directly on the host daemon.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"agentrunner/internal/apperrors"
	"agentrunner/internal/job"
	"agentrunner/internal/observability"
	"agentrunner/pkg/circuitbreaker"
)

// apiClient is the subset of the Docker client the adapter uses.
type apiClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImageInspect(ctx context.Context, imageID string, inspectOpts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// Runtime implements job.Runtime using Docker.
type Runtime struct {
	client      apiClient
	stopTimeout time.Duration
	pullMissing bool
	breaker     *circuitbreaker.Breaker
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// Config holds configuration for the Docker runtime.
type Config struct {
	RuntimeConfig
	Metrics *observability.Metrics // Metrics recorder (optional)
}

// NewRuntime connects to the daemon configured by the DOCKER_* environment.
func NewRuntime(cfg Config) (*Runtime, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newRuntime(dockerClient, cfg), nil
}

func newRuntime(api apiClient, cfg Config) *Runtime {
	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	logger := slog.With("component", "docker")
	breakerCfg := cfg.Breaker
	breakerCfg.Name = "docker"
	breakerCfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		logger.Warn("Runtime circuit breaker changed state", "breaker", name, "from", from.String(), "to", to.String())
	}
	return &Runtime{
		client:      api,
		stopTimeout: stopTimeout,
		pullMissing: cfg.PullMissing,
		breaker:     circuitbreaker.New(breakerCfg),
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// CreateAndStart creates the agent container and starts it. The exposed port
// is published on spec.HostPort. If start fails the container is removed.
func (r *Runtime) CreateAndStart(ctx context.Context, spec job.ContainerSpec) (string, error) {
	exposed, err := nat.NewPort("tcp", strconv.Itoa(spec.ExposedPort))
	if err != nil {
		return "", apperrors.CreationRejected("docker.containerCreate", err)
	}

	if r.pullMissing {
		if err := r.call(ctx, "docker.imagePull", "", true, func(ctx context.Context) error {
			return r.pullImageIfNeeded(ctx, spec.Image)
		}); err != nil {
			return "", err
		}
	}

	labels := map[string]string{job.LabelManagedBy: job.ManagedByValue}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	containerConfig := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Args,
		Env:          spec.Env,
		Labels:       labels,
		ExposedPorts: nat.PortSet{exposed: struct{}{}},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			exposed: []nat.PortBinding{{HostPort: strconv.Itoa(spec.HostPort)}},
		},
	}

	var containerID string
	err = r.call(ctx, "docker.containerCreate", "", true, func(ctx context.Context) error {
		resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
		if err != nil {
			return err
		}
		containerID = resp.ID
		for _, w := range resp.Warnings {
			r.logger.Warn("Container create warning", "containerId", containerID, "warning", w)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	err = r.call(ctx, "docker.containerStart", "", true, func(ctx context.Context) error {
		return r.client.ContainerStart(ctx, containerID, container.StartOptions{})
	})
	if err != nil {
		r.remove(context.WithoutCancel(ctx), containerID)
		return "", err
	}

	r.logger.Info("Container started", "containerId", containerID, "name", spec.Name, "port", spec.HostPort)
	return containerID, nil
}

// Inspect returns the container's name (without the leading slash) and status.
func (r *Runtime) Inspect(ctx context.Context, containerID string) (*job.ContainerState, error) {
	var resp container.InspectResponse
	err := r.call(ctx, "docker.containerInspect", containerID, false, func(ctx context.Context) error {
		var err error
		resp, err = r.client.ContainerInspect(ctx, containerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	state := &job.ContainerState{Name: strings.TrimPrefix(resp.Name, "/")}
	if resp.ContainerJSONBase != nil && resp.State != nil {
		state.Status = string(resp.State.Status)
	}
	return state, nil
}

// ListContainers returns the running containers.
func (r *Runtime) ListContainers(ctx context.Context) ([]job.Container, error) {
	var summaries []container.Summary
	err := r.call(ctx, "docker.containerList", "", false, func(ctx context.Context) error {
		var err error
		summaries, err = r.client.ContainerList(ctx, container.ListOptions{})
		return err
	})
	if err != nil {
		return nil, err
	}

	containers := make([]job.Container, 0, len(summaries))
	for _, s := range summaries {
		c := job.Container{
			ID:     s.ID,
			Status: s.Status,
			Ports:  make([]job.PortMapping, 0, len(s.Ports)),
		}
		for _, n := range s.Names {
			c.Names = append(c.Names, strings.TrimPrefix(n, "/"))
		}
		for _, p := range s.Ports {
			c.Ports = append(c.Ports, job.PortMapping{
				PrivatePort: int(p.PrivatePort),
				PublicPort:  int(p.PublicPort),
				Type:        p.Type,
			})
		}
		containers = append(containers, c)
	}
	return containers, nil
}

// ListImages returns the local images.
func (r *Runtime) ListImages(ctx context.Context) ([]job.Image, error) {
	var summaries []image.Summary
	err := r.call(ctx, "docker.imageList", "", false, func(ctx context.Context) error {
		var err error
		summaries, err = r.client.ImageList(ctx, image.ListOptions{})
		return err
	})
	if err != nil {
		return nil, err
	}

	images := make([]job.Image, 0, len(summaries))
	for _, s := range summaries {
		images = append(images, job.Image{
			ID:        s.ID,
			RepoTags:  s.RepoTags,
			SizeBytes: s.Size,
		})
	}
	return images, nil
}

// Stop stops a running container, waiting up to the stop timeout before it is killed.
func (r *Runtime) Stop(ctx context.Context, containerID string) error {
	timeout := int(r.stopTimeout.Seconds())
	return r.call(ctx, "docker.containerStop", containerID, false, func(ctx context.Context) error {
		return r.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	})
}

// Start starts a stopped container.
func (r *Runtime) Start(ctx context.Context, containerID string) error {
	return r.call(ctx, "docker.containerStart", containerID, false, func(ctx context.Context) error {
		return r.client.ContainerStart(ctx, containerID, container.StartOptions{})
	})
}

// Remove force-removes a container whether or not it is running.
func (r *Runtime) Remove(ctx context.Context, containerID string) error {
	return r.call(ctx, "docker.containerRemove", containerID, false, func(ctx context.Context) error {
		return r.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	})
}

// ResolvePublishedPort finds the host port bound to exposedPort on a running
// container. A container that is not running has no published ports.
func (r *Runtime) ResolvePublishedPort(ctx context.Context, containerID string, exposedPort int) (int, error) {
	var summaries []container.Summary
	err := r.call(ctx, "docker.containerList", containerID, false, func(ctx context.Context) error {
		var err error
		summaries, err = r.client.ContainerList(ctx, container.ListOptions{
			Filters: filters.NewArgs(filters.Arg("id", containerID)),
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	for _, s := range summaries {
		if s.ID != containerID && !strings.HasPrefix(s.ID, containerID) {
			continue
		}
		for _, p := range s.Ports {
			if int(p.PrivatePort) == exposedPort && p.PublicPort != 0 {
				return int(p.PublicPort), nil
			}
		}
		return 0, apperrors.NotFound("port mapping", fmt.Sprintf("%d on container %s", exposedPort, containerID))
	}
	return 0, apperrors.ContainerNotFound("docker.resolvePublishedPort", containerID, fmt.Errorf("container is not running"))
}

// Ready checks if the Docker daemon is reachable and responsive.
func (r *Runtime) Ready(ctx context.Context) error {
	_, err := r.client.Ping(ctx)
	return err
}

// Close releases the Docker client.
func (r *Runtime) Close() error {
	return r.client.Close()
}

// call runs fn through the breaker, classifies its error and records latency.
func (r *Runtime) call(ctx context.Context, op, containerID string, creating bool, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := r.breaker.Do(func() error {
		return classify(op, containerID, creating, fn(ctx))
	}, tripsBreaker)
	if err != nil {
		err = classify(op, containerID, creating, err)
	}
	if r.metrics != nil {
		r.metrics.RecordRuntimeCall(ctx, op, err == nil, time.Since(start).Seconds())
	}
	return err
}

func (r *Runtime) pullImageIfNeeded(ctx context.Context, ref string) error {
	if _, err := r.client.ImageInspect(ctx, ref); err == nil {
		return nil
	}

	r.logger.Info("Pulling image", "image", ref)
	reader, err := r.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (r *Runtime) remove(ctx context.Context, containerID string) {
	if err := r.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		r.logger.Warn("Failed to remove container after start failure", "containerId", containerID, "error", err)
	}
}

// Verify Runtime implements job.Runtime
var _ job.Runtime = (*Runtime)(nil)
