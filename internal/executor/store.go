package executor

//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

import (
	"context"

	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/signalbeam/signalbeam/internal/events"
)

// Store is the persistence boundary the Executor drives every rollout
// mutation through. SaveRollout is the one write path: it implements
// OCC contract (conditional on expectedVersion) and the
// transactional-outbox pattern (rollout + phase + assignment rows and
// outbox rows land in one transaction).
type Store interface {
	LoadRollout(ctx context.Context, tenant domain.TenantID, id domain.RolloutID) (*domain.Rollout, error)
	// ListNonTerminalRolloutIDs returns every rollout a periodic sweep must
	// tick, across all statuses except the three terminal ones.
	ListNonTerminalRolloutIDs(ctx context.Context, tenant domain.TenantID) ([]domain.RolloutID, error)
	// FindActiveRolloutForDevice returns the rollout currently holding a
	// non-terminal assignment for device, or nil (enforces I5 at read time).
	FindActiveRolloutForDevice(ctx context.Context, tenant domain.TenantID, device domain.DeviceID) (*domain.RolloutID, error)
	// SaveRollout persists rollout conditional on rollout.Version ==
	// expectedVersion, bumping the stored version to expectedVersion+1, and
	// inserts outbox in the same transaction. Returns a *domain.Error of
	// kind Conflict if expectedVersion is stale.
	SaveRollout(ctx context.Context, rollout *domain.Rollout, expectedVersion int, outbox []events.OutboxEvent) error
}

// BundleSource resolves a bundle version's distribution metadata for the
// Desired-State Index write (manifest URL, checksum, size).
type BundleSource interface {
	GetBundleVersion(ctx context.Context, tenant domain.TenantID, bundle domain.BundleID, version string) (*domain.BundleVersion, error)
}
