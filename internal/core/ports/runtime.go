package ports

import (
	"context"
	"io"

	"github.com/devploy/playground-paas/internal/core/domain"
)

// ContainerState is the runtime's view of a single container, used for start
// confirmation and health reconciliation.
type ContainerState struct {
	Alive    bool
	HostPort int
}

// ContainerRuntime is the only boundary to the container engine. This
// interface allows us to switch between Docker, Podman, or Kubernetes
// without changing the business logic, and lets tests run against a fake.
type ContainerRuntime interface {
	// Run starts a container from imageRef bound to hostPort, blocks until
	// the engine confirms the process is live, and returns the container id.
	// Confirmation uses bounded inspect retries; exhausting them is an error,
	// never an indefinitely-starting container.
	Run(ctx context.Context, imageRef string, limits domain.ResourceLimits, hostPort int) (string, error)

	// Inspect reports whether the container is alive and which host port it
	// exposes.
	Inspect(ctx context.Context, containerID string) (ContainerState, error)

	// Stop requests a graceful stop and removes the container, forcing
	// removal if it does not exit within the grace period.
	Stop(ctx context.Context, containerID string) error

	// Logs returns a stream of the container's output.
	Logs(ctx context.Context, containerID string) (io.ReadCloser, error)
}

// PortAllocator hands out host ports from a bounded pool. One port is held
// per admitted deploy and returned on stop.
type PortAllocator interface {
	// Allocate returns a free port or domain.ErrPortExhausted.
	Allocate() (int, error)

	// Release returns a port to the pool. Releasing a free port is a no-op.
	Release(port int)

	// Reserve claims a specific port, used when re-adopting a deployment
	// found alive during startup reconciliation.
	Reserve(port int) error
}
