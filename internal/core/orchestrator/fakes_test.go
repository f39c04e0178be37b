package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/devploy/playground-paas/internal/core/domain"
	"github.com/devploy/playground-paas/internal/core/ports"
)

// fakeClock is a manually-advanced clock shared by the orchestrator under
// test and the assertions.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeRuntime is an in-memory ports.ContainerRuntime. Containers started
// through Run stay alive until Stop or KillContainer.
type fakeRuntime struct {
	mu       sync.Mutex
	seq      int
	alive    map[string]bool
	runErr   error
	stopErrs []error // consumed one per Stop call; nil entries succeed
	stops    int
	runs     int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{alive: make(map[string]bool)}
}

func (r *fakeRuntime) Run(ctx context.Context, imageRef string, limits domain.ResourceLimits, hostPort int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	if r.runErr != nil {
		return "", r.runErr
	}
	r.seq++
	id := fmt.Sprintf("ctr-%d", r.seq)
	r.alive[id] = true
	return id, nil
}

func (r *fakeRuntime) Inspect(ctx context.Context, containerID string) (ports.ContainerState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ports.ContainerState{Alive: r.alive[containerID]}, nil
}

func (r *fakeRuntime) Stop(ctx context.Context, containerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	if len(r.stopErrs) > 0 {
		err := r.stopErrs[0]
		r.stopErrs = r.stopErrs[1:]
		if err != nil {
			return err
		}
	}
	delete(r.alive, containerID)
	return nil
}

func (r *fakeRuntime) Logs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("log line\n")), nil
}

// KillContainer simulates a container dying outside the orchestrator.
func (r *fakeRuntime) KillContainer(containerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.alive, containerID)
}

func (r *fakeRuntime) stopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

// fakeBuilder returns a deterministic image ref, or a configured error.
type fakeBuilder struct {
	mu       sync.Mutex
	buildErr error
	delay    time.Duration
	builds   int
}

func (b *fakeBuilder) BuildImage(ctx context.Context, repoURL string, imageName string) (string, error) {
	b.mu.Lock()
	err := b.buildErr
	delay := b.delay
	b.builds++
	b.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	return imageName + ":latest", nil
}

// fakeHistory is an in-memory ports.HistoryStore preserving insertion order.
type fakeHistory struct {
	mu        sync.Mutex
	entries   []domain.HistoryEntry
	createErr error
}

func (h *fakeHistory) Create(ctx context.Context, entry domain.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.createErr != nil {
		return h.createErr
	}
	h.entries = append(h.entries, entry)
	return nil
}

func (h *fakeHistory) Finalize(ctx context.Context, id string, stoppedAt time.Time, status domain.Status) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.entries {
		if e.ID == id && e.StoppedAt == nil {
			st := stoppedAt
			h.entries[i].StoppedAt = &st
			h.entries[i].Status = status
		}
	}
	return nil
}

func (h *fakeHistory) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	// Newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *fakeHistory) Open(ctx context.Context) ([]domain.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.HistoryEntry
	for _, e := range h.entries {
		if e.StoppedAt == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (h *fakeHistory) all() []domain.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *fakeHistory) byApp(appName string) []domain.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.HistoryEntry
	for _, e := range h.entries {
		if e.AppName == appName {
			out = append(out, e)
		}
	}
	return out
}

// fakeAllocator is a tiny bounded pool for tests.
type fakeAllocator struct {
	mu    sync.Mutex
	min   int
	max   int
	inUse map[int]bool
}

func newFakeAllocator(min, max int) *fakeAllocator {
	return &fakeAllocator{min: min, max: max, inUse: make(map[int]bool)}
}

func (a *fakeAllocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for p := a.min; p <= a.max; p++ {
		if !a.inUse[p] {
			a.inUse[p] = true
			return p, nil
		}
	}
	return 0, domain.ErrPortExhausted
}

func (a *fakeAllocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, port)
}

func (a *fakeAllocator) Reserve(port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inUse[port] {
		return fmt.Errorf("port %d already held", port)
	}
	a.inUse[port] = true
	return nil
}

func (a *fakeAllocator) held() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inUse)
}

// testEnv bundles an orchestrator wired to fakes.
type testEnv struct {
	orch    *Orchestrator
	runtime *fakeRuntime
	builder *fakeBuilder
	history *fakeHistory
	alloc   *fakeAllocator
	clock   *fakeClock
}

func newTestEnv() *testEnv {
	clock := newFakeClock()
	runtime := newFakeRuntime()
	bld := &fakeBuilder{}
	hist := &fakeHistory{}
	alloc := newFakeAllocator(8100, 8102)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	orch := New(runtime, bld, hist, alloc, logger, Options{
		PublicHost: "localhost",
		Now:        clock.Now,
	})
	return &testEnv{orch: orch, runtime: runtime, builder: bld, history: hist, alloc: alloc, clock: clock}
}
