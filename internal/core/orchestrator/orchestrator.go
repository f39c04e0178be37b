package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devploy/playground-paas/internal/core/domain"
	"github.com/devploy/playground-paas/internal/core/ports"
)

var appNameRe = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}$`)

// Options configures an Orchestrator.
type Options struct {
	PublicHost string
	Limits     domain.ResourceLimits
	// Now is the clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Orchestrator is the single entry point for deployment lifecycle operations.
// It composes the registry, runtime, builder and history store, and is safe
// for concurrent use.
type Orchestrator struct {
	registry *Registry
	runtime  ports.ContainerRuntime
	builder  ports.ImageBuilder
	history  ports.HistoryStore
	alloc    ports.PortAllocator
	logger   *slog.Logger

	publicHost string
	limits     domain.ResourceLimits
	now        func() time.Time
}

func New(runtime ports.ContainerRuntime, builder ports.ImageBuilder, history ports.HistoryStore, alloc ports.PortAllocator, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PublicHost == "" {
		opts.PublicHost = "localhost"
	}
	if opts.Limits == (domain.ResourceLimits{}) {
		opts.Limits = domain.DefaultResourceLimits()
	}
	return &Orchestrator{
		registry:   NewRegistry(),
		runtime:    runtime,
		builder:    builder,
		history:    history,
		alloc:      alloc,
		logger:     logger,
		publicHost: opts.PublicHost,
		limits:     opts.Limits,
		now:        opts.Now,
	}
}

// Deploy builds and starts appName from repoURL and blocks until the
// container is confirmed live. It returns domain.ErrConflict if an active
// deployment already exists for the name, domain.ErrPortExhausted if no host
// port is free, and a *domain.RuntimeError for build or start failures. Every
// attempt, failed ones included, produces exactly one history entry.
func (o *Orchestrator) Deploy(ctx context.Context, appName, repoURL string) (domain.DeploymentRecord, error) {
	appName = normalizeAppName(appName)
	if !appNameRe.MatchString(appName) {
		return domain.DeploymentRecord{}, fmt.Errorf("%w: app name %q", domain.ErrValidation, appName)
	}
	if strings.TrimSpace(repoURL) == "" {
		return domain.DeploymentRecord{}, fmt.Errorf("%w: repository is required", domain.ErrValidation)
	}

	unlock := o.registry.LockName(appName)
	defer unlock()

	if rec, ok := o.registry.Get(appName); ok && rec.Status.Active() {
		return domain.DeploymentRecord{}, fmt.Errorf("%w: %s", domain.ErrConflict, appName)
	}

	port, err := o.alloc.Allocate()
	if err != nil {
		return domain.DeploymentRecord{}, err
	}

	rec := domain.DeploymentRecord{
		AppName:        appName,
		Repository:     repoURL,
		HostPort:       port,
		Status:         domain.StatusStarting,
		StartedAt:      o.now(),
		LastAccessedAt: o.now(),
		HistoryID:      uuid.NewString(),
	}
	o.registry.Put(rec)

	imageRef, err := o.builder.BuildImage(ctx, repoURL, "playground-"+appName)
	if err != nil {
		return domain.DeploymentRecord{}, o.failDeploy(ctx, rec, err)
	}

	containerID, err := o.runtime.Run(ctx, imageRef, o.limits, port)
	if err != nil {
		return domain.DeploymentRecord{}, o.failDeploy(ctx, rec, err)
	}

	rec.ContainerID = containerID
	rec.Status = domain.StatusRunning
	rec.LastAccessedAt = o.now()
	rec.URL = fmt.Sprintf("http://%s:%d", o.publicHost, port)
	o.registry.Put(rec)

	// A deployment with no open history entry would be invisible to the next
	// startup reconciliation, so a failed write tears the container down
	// rather than leaking it.
	if err := o.history.Create(ctx, openEntry(rec)); err != nil {
		o.logger.Error("failed to record deployment history, tearing down", "app", appName, "error", err)
		if stopErr := o.runtime.Stop(ctx, containerID); stopErr != nil {
			o.logger.Error("failed to stop container after history write failure", "app", appName, "container", shortID(containerID), "error", stopErr)
		}
		o.registry.Remove(appName)
		o.alloc.Release(port)
		return domain.DeploymentRecord{}, fmt.Errorf("record deployment history: %w", err)
	}

	o.logger.Info("deployed", "app", appName, "container", shortID(containerID), "port", port)
	return rec, nil
}

// failDeploy finalizes a failed attempt: the record leaves the registry, the
// port returns to the pool, and an already-closed failed history entry is
// written.
func (o *Orchestrator) failDeploy(ctx context.Context, rec domain.DeploymentRecord, cause error) error {
	o.registry.Remove(rec.AppName)
	o.alloc.Release(rec.HostPort)

	stopped := o.now()
	entry := openEntry(rec)
	entry.StoppedAt = &stopped
	entry.Status = domain.StatusFailed
	if err := o.history.Create(ctx, entry); err != nil {
		o.logger.Error("failed to record failed deployment", "app", rec.AppName, "error", err)
	}

	o.logger.Error("deploy failed", "app", rec.AppName, "error", cause)
	var rerr *domain.RuntimeError
	if errors.As(cause, &rerr) {
		return cause
	}
	return &domain.RuntimeError{Op: "deploy", Err: cause}
}

// Stop terminates the deployment for appName. It is idempotent: stopping an
// app with no active deployment succeeds with no side effects. A runtime
// failure still finalizes the record (as Failed) so nothing is left stuck in
// Stopping, and the error is returned to the caller.
func (o *Orchestrator) Stop(ctx context.Context, appName string) error {
	return o.stopWithRetry(ctx, normalizeAppName(appName), "", 1, 0)
}

// stopWithRetry is the single stop path shared by explicit stops and the
// inactivity monitor. It attempts the runtime stop up to attempts times with
// exponential backoff. Exhausting the attempts force-finalizes the record as
// Failed rather than leaving it in Stopping forever.
//
// A non-empty containerID makes the stop conditional: the operation is
// discarded if the current record holds a different container, which happens
// when the app was stopped and redeployed after the caller took its snapshot.
func (o *Orchestrator) stopWithRetry(ctx context.Context, appName, containerID string, attempts int, backoff time.Duration) error {
	unlock := o.registry.LockName(appName)
	defer unlock()

	rec, ok := o.registry.Get(appName)
	if !ok {
		return nil
	}
	if containerID != "" && rec.ContainerID != containerID {
		o.logger.Info("discarding stale stop, deployment was replaced", "app", appName, "container", shortID(containerID))
		return nil
	}

	o.registry.SetStatus(appName, domain.StatusStopping)

	var stopErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				stopErr = ctx.Err()
			case <-time.After(backoff << (i - 1)):
			}
			if stopErr != nil {
				break
			}
		}
		stopErr = o.runtime.Stop(ctx, rec.ContainerID)
		if stopErr == nil {
			break
		}
		o.logger.Warn("stop attempt failed", "app", appName, "attempt", i+1, "error", stopErr)
	}

	status := domain.StatusStopped
	if stopErr != nil {
		status = domain.StatusFailed
	}
	o.finalize(ctx, rec, status)

	if stopErr != nil {
		o.logger.Error("stop failed, record force-marked failed", "app", appName, "container", shortID(rec.ContainerID), "error", stopErr)
		return &domain.RuntimeError{Op: "stop", Err: stopErr}
	}
	o.logger.Info("stopped", "app", appName, "container", shortID(rec.ContainerID))
	return nil
}

// finalize removes the record, releases its port, and closes its history
// entry with the given terminal status.
func (o *Orchestrator) finalize(ctx context.Context, rec domain.DeploymentRecord, status domain.Status) {
	o.registry.Remove(rec.AppName)
	o.alloc.Release(rec.HostPort)
	if err := o.history.Finalize(ctx, rec.HistoryID, o.now(), status); err != nil {
		o.logger.Error("failed to finalize history entry", "app", rec.AppName, "error", err)
	}
}

// Touch marks the deployment as accessed now. No-op if the app is not active.
func (o *Orchestrator) Touch(appName string) {
	o.registry.Touch(normalizeAppName(appName), o.now())
}

// Status returns the current record for appName or domain.ErrNotFound.
func (o *Orchestrator) Status(appName string) (domain.DeploymentRecord, error) {
	rec, ok := o.registry.Get(normalizeAppName(appName))
	if !ok {
		return domain.DeploymentRecord{}, fmt.Errorf("%w: %s", domain.ErrNotFound, appName)
	}
	return rec, nil
}

// ListActive returns all current records sorted by app name.
func (o *Orchestrator) ListActive() []domain.DeploymentRecord {
	return o.registry.Snapshot()
}

// History returns up to limit entries, newest first.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	return o.history.List(ctx, limit)
}

// Logs streams the container logs for an active deployment.
func (o *Orchestrator) Logs(ctx context.Context, appName string) (io.ReadCloser, error) {
	rec, ok := o.registry.Get(normalizeAppName(appName))
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, appName)
	}
	return o.runtime.Logs(ctx, rec.ContainerID)
}

func openEntry(rec domain.DeploymentRecord) domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:          rec.HistoryID,
		AppName:     rec.AppName,
		Repository:  rec.Repository,
		ContainerID: rec.ContainerID,
		HostPort:    rec.HostPort,
		StartedAt:   rec.StartedAt,
		Status:      domain.StatusRunning,
	}
}

// normalizeAppName maps the user-facing spelling of an app name onto the
// canonical registry key. Deploy and the read/stop paths must agree on it.
func normalizeAppName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
