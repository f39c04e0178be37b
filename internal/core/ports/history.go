package ports

import (
	"context"
	"time"

	"github.com/devploy/playground-paas/internal/core/domain"
)

// HistoryStore is the append-only durable log of deployment lifecycle events.
// Entries outlive the in-memory registry.
type HistoryStore interface {
	// Create appends a new entry. For a successful deploy StoppedAt is nil;
	// a failed attempt is written already finalized.
	Create(ctx context.Context, entry domain.HistoryEntry) error

	// Finalize closes an open entry. A finalized entry is never rewritten;
	// finalizing an already-closed entry is a no-op.
	Finalize(ctx context.Context, id string, stoppedAt time.Time, status domain.Status) error

	// List returns up to limit entries in reverse-chronological order.
	List(ctx context.Context, limit int) ([]domain.HistoryEntry, error)

	// Open returns all entries whose StoppedAt is still unset, used for
	// startup reconciliation.
	Open(ctx context.Context) ([]domain.HistoryEntry, error)
}
