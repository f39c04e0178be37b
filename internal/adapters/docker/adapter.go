package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/devploy/playground-paas/internal/core/domain"
	"github.com/devploy/playground-paas/internal/core/ports"
)

const (
	// appPort is the port applications are expected to listen on inside the
	// container; it is mapped to the allocated host port.
	appPort = "8000/tcp"

	// stopGracePeriod is how long a container gets to exit before removal is
	// forced.
	stopGracePeriod = 10 * time.Second

	// Start confirmation polls inspect with exponential backoff until the
	// engine reports the process running.
	startConfirmAttempts = 8
	startConfirmBackoff  = 250 * time.Millisecond
)

// Adapter implements ports.ContainerRuntime using the Docker SDK.
type Adapter struct {
	cli *client.Client
}

// NewAdapter creates a new Docker adapter instance.
func NewAdapter() (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli}, nil
}

// Ping verifies the docker daemon is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.cli.Ping(ctx); err != nil {
		return &domain.RuntimeError{Op: "ping", Diagnostic: err.Error(), Err: err}
	}
	return nil
}

// Run creates and starts a container from imageRef with static resource caps
// and the app port published on hostPort. It blocks until inspect confirms
// the process is live; exhausting the confirmation retries tears the
// container down and returns an error.
func (a *Adapter) Run(ctx context.Context, imageRef string, limits domain.ResourceLimits, hostPort int) (string, error) {
	port := nat.Port(appPort)

	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image: imageRef,
		Env:   []string{"NODE_ENV=production"},
		ExposedPorts: nat.PortSet{
			port: struct{}{},
		},
	}, &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(hostPort)}},
		},
		RestartPolicy: container.RestartPolicy{Name: "no"},
		Resources: container.Resources{
			Memory:    limits.MemoryBytes,
			CPUPeriod: limits.CPUPeriod,
			CPUQuota:  limits.CPUQuota,
		},
	}, nil, nil, "")
	if err != nil {
		return "", &domain.RuntimeError{Op: "create", Diagnostic: err.Error(), Err: err}
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		a.removeQuietly(ctx, resp.ID)
		return "", &domain.RuntimeError{Op: "start", Diagnostic: err.Error(), Err: err}
	}

	if err := a.confirmRunning(ctx, resp.ID); err != nil {
		a.removeQuietly(ctx, resp.ID)
		return "", err
	}

	return resp.ID, nil
}

// confirmRunning polls inspect with bounded retries and exponential backoff.
func (a *Adapter) confirmRunning(ctx context.Context, containerID string) error {
	backoff := startConfirmBackoff
	var lastErr error

	for i := 0; i < startConfirmAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return &domain.RuntimeError{Op: "start", Diagnostic: ctx.Err().Error(), Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		state, err := a.Inspect(ctx, containerID)
		if err != nil {
			lastErr = err
			continue
		}
		if state.Alive {
			return nil
		}
		lastErr = fmt.Errorf("container %s not running yet", containerID[:12])
	}

	return &domain.RuntimeError{
		Op:         "start",
		Diagnostic: fmt.Sprintf("container did not become live after %d inspect attempts: %v", startConfirmAttempts, lastErr),
		Err:        lastErr,
	}
}

// Inspect reports whether the container is alive and which host port its app
// port is published on. A container the engine no longer knows about reports
// not alive, not an error.
func (a *Adapter) Inspect(ctx context.Context, containerID string) (ports.ContainerState, error) {
	insp, err := a.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return ports.ContainerState{Alive: false}, nil
		}
		return ports.ContainerState{}, &domain.RuntimeError{Op: "inspect", Diagnostic: err.Error(), Err: err}
	}

	state := ports.ContainerState{
		Alive: insp.State != nil && insp.State.Running,
	}
	if insp.NetworkSettings != nil {
		if bindings := insp.NetworkSettings.Ports[nat.Port(appPort)]; len(bindings) > 0 {
			if p, err := strconv.Atoi(bindings[0].HostPort); err == nil {
				state.HostPort = p
			}
		}
	}
	return state, nil
}

// Stop requests a graceful stop within the grace period, then removes the
// container. Removal is forced if the graceful stop failed.
func (a *Adapter) Stop(ctx context.Context, containerID string) error {
	seconds := int(stopGracePeriod.Seconds())
	stopErr := a.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds})
	if stopErr != nil && client.IsErrNotFound(stopErr) {
		return nil
	}

	if err := a.cli.ContainerRemove(ctx, containerID, types.ContainerRemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		if stopErr != nil {
			return &domain.RuntimeError{Op: "stop", Diagnostic: stopErr.Error(), Err: stopErr}
		}
		return &domain.RuntimeError{Op: "remove", Diagnostic: err.Error(), Err: err}
	}
	return nil
}

// Logs returns a stream of container logs.
func (a *Adapter) Logs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	options := types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     false,
		Timestamps: true,
	}
	rc, err := a.cli.ContainerLogs(ctx, containerID, options)
	if err != nil {
		return nil, &domain.RuntimeError{Op: "logs", Diagnostic: err.Error(), Err: err}
	}
	return rc, nil
}

func (a *Adapter) removeQuietly(ctx context.Context, containerID string) {
	_ = a.cli.ContainerRemove(ctx, containerID, types.ContainerRemoveOptions{Force: true})
}
