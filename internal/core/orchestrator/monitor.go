package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/devploy/playground-paas/internal/core/domain"
)

const (
	defaultSweepInterval = time.Minute
	defaultIdleThreshold = 15 * time.Minute

	// forcedStopAttempts bounds the retries for a monitor-driven stop before
	// the record is force-marked failed.
	forcedStopAttempts = 3
	forcedStopBackoff  = 2 * time.Second
)

// Monitor periodically sweeps the registry and stops deployments that have
// been idle past the threshold. It also reconciles running records against
// live runtime state, finalizing any whose container has died underneath.
type Monitor struct {
	orch      *Orchestrator
	logger    *slog.Logger
	interval  time.Duration
	threshold time.Duration

	stopAttempts int
	stopBackoff  time.Duration
}

func NewMonitor(orch *Orchestrator, logger *slog.Logger, interval, threshold time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if threshold <= 0 {
		threshold = defaultIdleThreshold
	}
	return &Monitor{
		orch:         orch,
		logger:       logger,
		interval:     interval,
		threshold:    threshold,
		stopAttempts: forcedStopAttempts,
		stopBackoff:  forcedStopBackoff,
	}
}

// Run loops until ctx is cancelled, sweeping once per interval. A failed stop
// never terminates the loop. Cancelling the monitor does not stop running
// containers; the next startup reconciles against real runtime state.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("inactivity monitor stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one monitor tick over a registry snapshot. No registry lock is
// held while it acts; the stop path re-checks state under the per-app lock.
func (m *Monitor) Sweep(ctx context.Context) {
	now := m.orch.now()

	for _, rec := range m.orch.registry.Snapshot() {
		if rec.Status != domain.StatusRunning {
			continue
		}

		state, err := m.orch.runtime.Inspect(ctx, rec.ContainerID)
		if err == nil && !state.Alive {
			m.logger.Warn("container died outside orchestrator, finalizing", "app", rec.AppName, "container", shortID(rec.ContainerID))
			m.finalizeDead(ctx, rec.AppName, rec.ContainerID)
			continue
		}

		idle := now.Sub(rec.LastAccessedAt)
		if idle <= m.threshold {
			continue
		}

		m.logger.Info("stopping idle deployment", "app", rec.AppName, "idle", idle.Round(time.Second))
		if err := m.orch.stopWithRetry(ctx, rec.AppName, rec.ContainerID, m.stopAttempts, m.stopBackoff); err != nil {
			// stopWithRetry already force-finalized the record as failed.
			m.logger.Error("forced stop exhausted retries", "app", rec.AppName, "error", err)
		}
	}
}

// finalizeDead closes out a record whose container is gone, under the per-app
// lock, discarding the commit if the record was concurrently replaced or
// removed. The container id identifies the record the sweep judged dead; a
// redeploy in the window since the snapshot leaves a Running record for the
// same name backed by a different container.
func (m *Monitor) finalizeDead(ctx context.Context, appName, containerID string) {
	unlock := m.orch.registry.LockName(appName)
	defer unlock()

	rec, ok := m.orch.registry.Get(appName)
	if !ok || rec.Status != domain.StatusRunning || rec.ContainerID != containerID {
		return
	}
	m.orch.finalize(ctx, rec, domain.StatusStopped)
}
