package job

import (
	"context"

	"agentrunner/pkg/cloudevent"
)

// ContainerSpec describes the container created for a job.
type ContainerSpec struct {
	Name        string            // Container name
	Image       string            // Image reference
	Args        []string          // Command arguments; the job name
	ExposedPort int               // Container-internal service port
	HostPort    int               // Host port bound to ExposedPort
	Env         []string          // KEY=VALUE pairs
	Labels      map[string]string // Extra labels
}

// Runtime is the narrow view of the container runtime the lifecycle manager needs.
//
// Errors are classified with apperrors: ErrRuntimeUnavailable when the runtime
// cannot be reached (timeouts included), ErrNotFound for a missing container,
// ErrCreationRejected when the runtime refuses to create or start a container.
type Runtime interface {
	// CreateAndStart creates a container from spec and starts it.
	CreateAndStart(ctx context.Context, spec ContainerSpec) (string, error)

	// Inspect returns the container's resolved name and status.
	Inspect(ctx context.Context, containerID string) (*ContainerState, error)

	ListContainers(ctx context.Context) ([]Container, error)
	ListImages(ctx context.Context) ([]Image, error)

	// Stop stops a running container.
	Stop(ctx context.Context, containerID string) error

	// Start restarts a stopped container.
	Start(ctx context.Context, containerID string) error

	// Remove force-removes a container, running or not.
	Remove(ctx context.Context, containerID string) error

	// ResolvePublishedPort returns the host port bound to exposedPort on a
	// running container. A stopped container or a missing mapping is NotFound.
	ResolvePublishedPort(ctx context.Context, containerID string, exposedPort int) (int, error)
}

// PortAllocator hands out host ports. Ports in reserved should be avoided.
type PortAllocator interface {
	Allocate(ctx context.Context, reserved map[int]bool) int
}

// Locker serializes lifecycle transitions on the same job.
// The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Notifier receives lifecycle events for out-of-band delivery. Publish must not block.
type Notifier interface {
	Publish(event *cloudevent.CloudEvent)
}

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }
