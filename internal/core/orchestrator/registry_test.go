package orchestrator

import (
	"sync"
	"testing"
	"time"

	"github.com/devploy/playground-paas/internal/core/domain"
)

func TestRegistry_TouchIsMonotonic(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	r.Put(domain.DeploymentRecord{
		AppName:        "app",
		Status:         domain.StatusRunning,
		LastAccessedAt: base,
	})

	r.Touch("app", base.Add(time.Minute))
	rec, _ := r.Get("app")
	if !rec.LastAccessedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("LastAccessedAt = %v, want advanced", rec.LastAccessedAt)
	}

	// A stale timestamp never moves the clock backwards.
	r.Touch("app", base.Add(-time.Minute))
	rec, _ = r.Get("app")
	if !rec.LastAccessedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("LastAccessedAt went backwards: %v", rec.LastAccessedAt)
	}
}

func TestRegistry_TouchIgnoresNonRunning(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	r.Put(domain.DeploymentRecord{
		AppName:        "app",
		Status:         domain.StatusStarting,
		LastAccessedAt: base,
	})

	r.Touch("app", base.Add(time.Hour))
	rec, _ := r.Get("app")
	if !rec.LastAccessedAt.Equal(base) {
		t.Errorf("touch advanced a non-running record: %v", rec.LastAccessedAt)
	}

	// Touching an unknown app is a no-op.
	r.Touch("ghost", base)
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Put(domain.DeploymentRecord{AppName: "app", Status: domain.StatusRunning})

	snap := r.Snapshot()
	snap[0].Status = domain.StatusFailed

	rec, _ := r.Get("app")
	if rec.Status != domain.StatusRunning {
		t.Error("mutating the snapshot changed the registry")
	}
}

func TestRegistry_LockNameSerializesSameName(t *testing.T) {
	r := NewRegistry()

	unlock := r.LockName("app")
	acquired := make(chan struct{})
	go func() {
		u := r.LockName("app")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after release")
	}
}

func TestRegistry_LockNameIndependentNames(t *testing.T) {
	r := NewRegistry()

	unlock := r.LockName("a")
	defer unlock()

	acquired := make(chan struct{})
	go func() {
		u := r.LockName("b")
		u()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock on a different name blocked")
	}
}

func TestRegistry_LockTableDoesNotLeak(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := r.LockName("app")
			u()
		}()
	}
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.names) != 0 {
		t.Errorf("lock table still holds %d entries", len(r.names))
	}
}
