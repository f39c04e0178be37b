package orchestrator

import (
	"context"
	"testing"

	"github.com/devploy/playground-paas/internal/core/domain"
)

// seedOpenEntry plants an open history entry as a previous process run would
// have left it, with a container the fake runtime may or may not still know.
func seedOpenEntry(env *testEnv, appName, containerID string, port int, alive bool) {
	if alive {
		env.runtime.mu.Lock()
		env.runtime.alive[containerID] = true
		env.runtime.mu.Unlock()
	}
	_ = env.history.Create(context.Background(), domain.HistoryEntry{
		ID:          "hist-" + appName,
		AppName:     appName,
		Repository:  "github.com/u/" + appName,
		ContainerID: containerID,
		HostPort:    port,
		StartedAt:   env.clock.Now(),
		Status:      domain.StatusRunning,
	})
}

func TestReconcile_ReadoptsLiveContainer(t *testing.T) {
	env := newTestEnv()
	seedOpenEntry(env, "survivor", "ctr-old", 8101, true)

	if err := env.orch.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	rec, err := env.orch.Status("survivor")
	if err != nil {
		t.Fatalf("surviving deployment not re-adopted: %v", err)
	}
	if rec.Status != domain.StatusRunning || rec.ContainerID != "ctr-old" || rec.HostPort != 8101 {
		t.Errorf("re-adopted record = %+v", rec)
	}

	// Its port is held again: a deploy landing on 8101 must not happen.
	p, err := env.alloc.Allocate()
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if p == 8101 {
		t.Error("reconciled deployment's port was handed out again")
	}
}

func TestReconcile_FinalizesDeadContainer(t *testing.T) {
	env := newTestEnv()
	seedOpenEntry(env, "casualty", "ctr-gone", 8100, false)

	if err := env.orch.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if _, err := env.orch.Status("casualty"); err == nil {
		t.Error("dead deployment re-adopted as running")
	}

	entries := env.history.byApp("casualty")
	if len(entries) != 1 || entries[0].StoppedAt == nil || entries[0].Status != domain.StatusStopped {
		t.Errorf("history = %+v, want one finalized stopped entry", entries)
	}
}

func TestReconcile_StopCycleContinuesAfterRestart(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	seedOpenEntry(env, "survivor", "ctr-old", 8101, true)

	if err := env.orch.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	// A normal stop after re-adoption finalizes the original entry.
	if err := env.orch.Stop(ctx, "survivor"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	entries := env.history.byApp("survivor")
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	if entries[0].StoppedAt == nil || entries[0].Status != domain.StatusStopped {
		t.Errorf("entry = %+v, want finalized stopped", entries[0])
	}
	if env.alloc.held() != 0 {
		t.Errorf("ports still held after stop: %d", env.alloc.held())
	}
}

func TestReconcile_UnreservablePortStopsContainer(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// Another holder already owns the port the survivor was using.
	if err := env.alloc.Reserve(8101); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	seedOpenEntry(env, "squatter", "ctr-old", 8101, true)

	if err := env.orch.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if _, err := env.orch.Status("squatter"); err == nil {
		t.Error("unadoptable deployment appeared in the registry")
	}
	if env.runtime.stopCount() != 1 {
		t.Errorf("stop count = %d, want 1", env.runtime.stopCount())
	}
	entries := env.history.byApp("squatter")
	if len(entries) != 1 || entries[0].Status != domain.StatusFailed {
		t.Errorf("history = %+v, want one failed entry", entries)
	}
}
