package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/devploy/playground-paas/internal/core/domain"
)

// Registry is the in-memory source of truth for active deployments.
//
// It carries two kinds of locking: a map mutex that guards the record table
// itself (held only for map reads and writes, never across runtime calls),
// and a refcounted per-app-name mutex that serializes whole operations on the
// same app. A deploy and a stop for the same name never interleave; operations
// on different names proceed independently.
type Registry struct {
	mu      sync.Mutex
	records map[string]domain.DeploymentRecord
	names   map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]domain.DeploymentRecord),
		names:   make(map[string]*nameLock),
	}
}

// LockName acquires the per-app mutex for appName and returns its unlock
// function. Lock entries are refcounted so the table does not grow without
// bound as app names come and go.
func (r *Registry) LockName(appName string) (unlock func()) {
	r.mu.Lock()
	nl, ok := r.names[appName]
	if !ok {
		nl = &nameLock{}
		r.names[appName] = nl
	}
	nl.refs++
	r.mu.Unlock()

	nl.mu.Lock()
	return func() {
		nl.mu.Unlock()
		r.mu.Lock()
		nl.refs--
		if nl.refs == 0 {
			delete(r.names, appName)
		}
		r.mu.Unlock()
	}
}

// Get returns the record for appName, if any.
func (r *Registry) Get(appName string) (domain.DeploymentRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[appName]
	return rec, ok
}

// Put inserts or replaces the record for its app name.
func (r *Registry) Put(rec domain.DeploymentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.AppName] = rec
}

// Remove deletes the record for appName.
func (r *Registry) Remove(appName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, appName)
}

// Snapshot returns a copy of all records, sorted by app name. Callers act on
// the copy without holding any registry lock.
func (r *Registry) Snapshot() []domain.DeploymentRecord {
	r.mu.Lock()
	out := make([]domain.DeploymentRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AppName < out[j].AppName })
	return out
}

// Touch advances LastAccessedAt for a running record. The timestamp is
// monotonic non-decreasing; a stale now is ignored. Touching an unknown or
// non-running app is a no-op.
func (r *Registry) Touch(appName string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[appName]
	if !ok || rec.Status != domain.StatusRunning {
		return
	}
	if now.After(rec.LastAccessedAt) {
		rec.LastAccessedAt = now
		r.records[appName] = rec
	}
}

// SetStatus updates the status of an existing record.
func (r *Registry) SetStatus(appName string, status domain.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[appName]; ok {
		rec.Status = status
		r.records[appName] = rec
	}
}
