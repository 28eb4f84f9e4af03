package ports

import (
	"context"

	"github.com/bnema/valuation-session-cli/internal/domain"
)

type SnapshotStore interface {
	Load(ctx context.Context, id domain.EntityID) (domain.Snapshot, error)
	Save(ctx context.Context, snapshot domain.Snapshot) error
	Delete(ctx context.Context, id domain.EntityID) error
	List(ctx context.Context) ([]domain.EntityID, error)
}
