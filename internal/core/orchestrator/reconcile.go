package orchestrator

import (
	"context"
	"fmt"

	"github.com/devploy/playground-paas/internal/core/domain"
)

// Reconcile resynchronizes state against the real container runtime at
// startup. The registry is in-memory and starts empty after a restart, so the
// open entries of the history store tell us which deployments were live when
// the service last ran. Each referenced container is inspected: a live one is
// re-adopted into the registry as Running with its port re-reserved, a dead
// one is finalized as Stopped. Nothing is ever assumed Running without the
// runtime confirming it.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	open, err := o.history.Open(ctx)
	if err != nil {
		return fmt.Errorf("load open history entries: %w", err)
	}

	for _, entry := range open {
		state, inspectErr := o.runtime.Inspect(ctx, entry.ContainerID)
		if inspectErr == nil && state.Alive {
			if err := o.alloc.Reserve(entry.HostPort); err != nil {
				o.logger.Warn("cannot re-reserve port for surviving deployment, stopping it", "app", entry.AppName, "port", entry.HostPort, "error", err)
				if stopErr := o.runtime.Stop(ctx, entry.ContainerID); stopErr != nil {
					o.logger.Error("failed to stop unadoptable container", "app", entry.AppName, "error", stopErr)
				}
				o.finalizeEntry(ctx, entry, domain.StatusFailed)
				continue
			}

			now := o.now()
			o.registry.Put(domain.DeploymentRecord{
				AppName:        entry.AppName,
				Repository:     entry.Repository,
				ContainerID:    entry.ContainerID,
				HostPort:       entry.HostPort,
				Status:         domain.StatusRunning,
				StartedAt:      entry.StartedAt,
				LastAccessedAt: now,
				URL:            fmt.Sprintf("http://%s:%d", o.publicHost, entry.HostPort),
				HistoryID:      entry.ID,
			})
			o.logger.Info("re-adopted surviving deployment", "app", entry.AppName, "container", shortID(entry.ContainerID), "port", entry.HostPort)
			continue
		}

		o.logger.Info("finalizing deployment with no live container", "app", entry.AppName, "container", shortID(entry.ContainerID))
		o.finalizeEntry(ctx, entry, domain.StatusStopped)
	}

	return nil
}

func (o *Orchestrator) finalizeEntry(ctx context.Context, entry domain.HistoryEntry, status domain.Status) {
	if err := o.history.Finalize(ctx, entry.ID, o.now(), status); err != nil {
		o.logger.Error("failed to finalize history entry during reconciliation", "app", entry.AppName, "error", err)
	}
}
