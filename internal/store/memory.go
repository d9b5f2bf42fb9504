package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teresa-solution/store-connection-service/internal/model"
)

// MemoryRepository is an in-process Repository used by tests and local
// development. It enforces the same single-active-row constraints as the
// partial unique indexes of the master schema.
type MemoryRepository struct {
	mu           sync.RWMutex
	descriptors  []*model.StoreDatabase
	integrations []*model.IntegrationConfig
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Close() error { return nil }

func copyDescriptor(d *model.StoreDatabase) *model.StoreDatabase {
	out := *d
	return &out
}

func (r *MemoryRepository) ActiveDescriptor(_ context.Context, storeID string) (*model.StoreDatabase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.descriptors) - 1; i >= 0; i-- {
		d := r.descriptors[i]
		if d.StoreID == storeID && d.IsActive {
			return copyDescriptor(d), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ActivateDescriptor(_ context.Context, d *model.StoreDatabase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.descriptors {
		if existing.StoreID == d.StoreID && existing.IsActive {
			existing.IsActive = false
			existing.UpdatedAt = d.UpdatedAt
		}
	}
	r.descriptors = append(r.descriptors, copyDescriptor(d))
	return nil
}

func (r *MemoryRepository) DeactivateDescriptor(_ context.Context, storeID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for _, d := range r.descriptors {
		if d.StoreID == storeID && d.IsActive {
			d.IsActive = false
			d.UpdatedAt = at
			found = true
		}
	}
	return found, nil
}

func (r *MemoryRepository) UpdateDescriptorStatus(_ context.Context, storeID string, status model.ConnectionStatus, testedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.descriptors {
		if d.StoreID == storeID && d.IsActive {
			t := testedAt
			d.ConnectionStatus = status
			d.LastConnectionTest = &t
			d.UpdatedAt = testedAt
		}
	}
	return nil
}

// Descriptors returns every descriptor row of a store, oldest first
func (r *MemoryRepository) Descriptors(storeID string) []*model.StoreDatabase {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.StoreDatabase
	for _, d := range r.descriptors {
		if d.StoreID == storeID {
			out = append(out, copyDescriptor(d))
		}
	}
	return out
}

func (r *MemoryRepository) findIntegration(storeID, integrationType string, active bool) *model.IntegrationConfig {
	var latest *model.IntegrationConfig
	for _, c := range r.integrations {
		if c.StoreID != storeID || c.IntegrationType != integrationType || c.IsActive != active {
			continue
		}
		if latest == nil || !c.UpdatedAt.Before(latest.UpdatedAt) {
			latest = c
		}
	}
	return latest
}

func (r *MemoryRepository) ActiveIntegration(_ context.Context, storeID, integrationType string) (*model.IntegrationConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findIntegration(storeID, integrationType, true).Clone(), nil
}

func (r *MemoryRepository) LatestInactiveIntegration(_ context.Context, storeID, integrationType string) (*model.IntegrationConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findIntegration(storeID, integrationType, false).Clone(), nil
}

func (r *MemoryRepository) ListActiveIntegrations(context.Context) ([]*model.IntegrationConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.IntegrationConfig
	for _, c := range r.integrations {
		if c.IsActive {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// Integrations returns every integration row of a store and type
func (r *MemoryRepository) Integrations(storeID, integrationType string) []*model.IntegrationConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.IntegrationConfig
	for _, c := range r.integrations {
		if c.StoreID == storeID && c.IntegrationType == integrationType {
			out = append(out, c.Clone())
		}
	}
	return out
}

func (r *MemoryRepository) InsertIntegration(_ context.Context, c *model.IntegrationConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.IsActive && r.findIntegration(c.StoreID, c.IntegrationType, true) != nil {
		return ErrDuplicateActive
	}
	r.integrations = append(r.integrations, c.Clone())
	return nil
}

func (r *MemoryRepository) byID(id uuid.UUID) *model.IntegrationConfig {
	for _, c := range r.integrations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (r *MemoryRepository) UpdateIntegration(_ context.Context, c *model.IntegrationConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.byID(c.ID)
	if row == nil {
		return ErrRecordNotFound
	}
	if c.IsActive && !row.IsActive && r.findIntegration(c.StoreID, c.IntegrationType, true) != nil {
		return ErrDuplicateActive
	}
	row.ConfigData = c.Clone().ConfigData
	row.IsActive = c.IsActive
	row.UpdatedAt = c.UpdatedAt
	return nil
}

func (r *MemoryRepository) UpdateSyncStatus(_ context.Context, id uuid.UUID, status model.SyncStatus, syncErr string, lastSyncAt *time.Time, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.byID(id)
	if row == nil {
		return ErrRecordNotFound
	}
	row.SyncStatus = status
	row.SyncError = syncErr
	if lastSyncAt != nil {
		t := *lastSyncAt
		row.LastSyncAt = &t
	}
	row.UpdatedAt = at
	return nil
}

func (r *MemoryRepository) UpdateConnectionStatus(_ context.Context, id uuid.UUID, storeID string, status model.ConnectionStatus, connErr string, testedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.byID(id)
	if row == nil || row.StoreID != storeID {
		return ErrRecordNotFound
	}
	t := testedAt
	row.ConnectionStatus = status
	row.ConnectionError = connErr
	row.ConnectionTestedAt = &t
	row.UpdatedAt = testedAt
	return nil
}
