package ports

import (
	"context"

	"github.com/devploy/playground-paas/internal/core/domain"
)

// Catalog lists the deployable applications of a source-control account.
// Any failure surfaces as domain.ErrCatalogUnavailable; the orchestrator
// never fails a deploy or stop because of it.
type Catalog interface {
	ListApps(ctx context.Context, owner string) ([]domain.AppDescriptor, error)
}
