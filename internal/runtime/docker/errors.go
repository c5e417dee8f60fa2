package docker

import (
	"context"
	"errors"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/client"

	"agentrunner/internal/apperrors"
	"agentrunner/pkg/circuitbreaker"
)

// classify maps a Docker client error onto the application taxonomy.
// containerID is empty for calls that do not address an existing container.
func classify(op, containerID string, creating bool, err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, circuitbreaker.ErrOpen),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		client.IsErrConnectionFailed(err),
		cerrdefs.IsUnavailable(err),
		cerrdefs.IsDeadlineExceeded(err):
		return apperrors.RuntimeUnavailable(op, err)

	case cerrdefs.IsNotFound(err) && containerID != "":
		return apperrors.ContainerNotFound(op, containerID, err)
	}

	if creating {
		// The daemon answered: missing image, invalid parameters, a name
		// conflict or a host port already in use.
		return apperrors.CreationRejected(op, err)
	}
	return apperrors.RuntimeUnavailable(op, err)
}

// tripsBreaker reports whether err indicates the daemon itself is unhealthy.
// Callers abandoning a request do not count.
func tripsBreaker(err error) bool {
	return errors.Is(err, apperrors.ErrRuntimeUnavailable) && !errors.Is(err, context.Canceled)
}
