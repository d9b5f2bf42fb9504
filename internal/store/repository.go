package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teresa-solution/store-connection-service/internal/model"
)

// ErrDuplicateActive is returned by a Repository when an insert or
// reactivation would leave two active rows for the same key.
var ErrDuplicateActive = errors.New("active record already exists")

// ErrRecordNotFound is returned by integration updates that matched no row
var ErrRecordNotFound = fmt.Errorf("%w: integration record does not exist", model.ErrConfigNotFound)

// Repository is the persistence surface of the master database
type Repository interface {
	ActiveDescriptor(ctx context.Context, storeID string) (*model.StoreDatabase, error)
	// ActivateDescriptor deactivates the current active row of the store and
	// inserts d as the new active row, atomically.
	ActivateDescriptor(ctx context.Context, d *model.StoreDatabase) error
	DeactivateDescriptor(ctx context.Context, storeID string, at time.Time) (bool, error)
	UpdateDescriptorStatus(ctx context.Context, storeID string, status model.ConnectionStatus, testedAt time.Time) error

	ActiveIntegration(ctx context.Context, storeID, integrationType string) (*model.IntegrationConfig, error)
	LatestInactiveIntegration(ctx context.Context, storeID, integrationType string) (*model.IntegrationConfig, error)
	ListActiveIntegrations(ctx context.Context) ([]*model.IntegrationConfig, error)
	InsertIntegration(ctx context.Context, cfg *model.IntegrationConfig) error
	// UpdateIntegration persists config_data, is_active and updated_at
	UpdateIntegration(ctx context.Context, cfg *model.IntegrationConfig) error
	UpdateSyncStatus(ctx context.Context, id uuid.UUID, status model.SyncStatus, syncErr string, lastSyncAt *time.Time, at time.Time) error
	UpdateConnectionStatus(ctx context.Context, id uuid.UUID, storeID string, status model.ConnectionStatus, connErr string, testedAt time.Time) error

	Close() error
}
