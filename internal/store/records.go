package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/store-connection-service/internal/crypto"
	"github.com/teresa-solution/store-connection-service/internal/model"
)

// RecordStore reads and writes descriptors and integration records, applying
// the credential cipher on the way in and out.
type RecordStore struct {
	repo   Repository
	cipher *crypto.Cipher
	cache  *DescriptorCache
	now    func() time.Time
}

type RecordStoreOption func(*RecordStore)

// WithDescriptorCache enables the Redis read-through cache for descriptors
func WithDescriptorCache(cache *DescriptorCache) RecordStoreOption {
	return func(s *RecordStore) { s.cache = cache }
}

// WithClock overrides the time source used for record timestamps
func WithClock(now func() time.Time) RecordStoreOption {
	return func(s *RecordStore) { s.now = now }
}

func NewRecordStore(repo Repository, cipher *crypto.Cipher, opts ...RecordStoreOption) *RecordStore {
	s := &RecordStore{repo: repo, cipher: cipher, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RecordStore) Close() error {
	var cacheErr error
	if s.cache != nil {
		cacheErr = s.cache.Close()
	}
	return errors.Join(s.repo.Close(), cacheErr)
}

func checkStoreID(storeID string) error {
	if !model.ValidStoreID(storeID) {
		return fmt.Errorf("%w: %q", model.ErrInvalidStoreID, storeID)
	}
	return nil
}

// SaveIntegrationConfig encrypts the sensitive fields of data and stores it as
// the active configuration of (storeID, integrationType). An active record is
// updated in place, otherwise the most recent inactive one is reactivated,
// otherwise a new record is inserted.
func (s *RecordStore) SaveIntegrationConfig(ctx context.Context, storeID, integrationType string, data map[string]any) (*model.IntegrationConfig, crypto.FieldReport, error) {
	if err := checkStoreID(storeID); err != nil {
		return nil, crypto.FieldReport{}, err
	}

	encrypted, report := s.cipher.EncryptFields(integrationType, data)
	record, err := s.createOrUpdate(ctx, storeID, integrationType, encrypted)
	if err != nil {
		return nil, report, fmt.Errorf("failed to save %s configuration for store %s: %w", integrationType, storeID, err)
	}
	return record, report, nil
}

func (s *RecordStore) createOrUpdate(ctx context.Context, storeID, integrationType string, data map[string]any) (*model.IntegrationConfig, error) {
	now := s.now()

	active, err := s.repo.ActiveIntegration(ctx, storeID, integrationType)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return s.updateRecord(ctx, active, data, now)
	}

	inactive, err := s.repo.LatestInactiveIntegration(ctx, storeID, integrationType)
	if err != nil {
		return nil, err
	}
	if inactive != nil {
		inactive.IsActive = true
		record, err := s.updateRecord(ctx, inactive, data, now)
		if errors.Is(err, ErrDuplicateActive) {
			return s.retryAsUpdate(ctx, storeID, integrationType, data, now)
		}
		return record, err
	}

	record := &model.IntegrationConfig{
		ID:               uuid.New(),
		StoreID:          storeID,
		IntegrationType:  integrationType,
		ConfigData:       data,
		IsActive:         true,
		SyncStatus:       model.SyncIdle,
		ConnectionStatus: model.ConnectionUntested,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = s.repo.InsertIntegration(ctx, record)
	if errors.Is(err, ErrDuplicateActive) {
		return s.retryAsUpdate(ctx, storeID, integrationType, data, now)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// retryAsUpdate handles a concurrent writer that activated a record between
// our lookup and our write. Retried once.
func (s *RecordStore) retryAsUpdate(ctx context.Context, storeID, integrationType string, data map[string]any, now time.Time) (*model.IntegrationConfig, error) {
	log.Warn().Str("store_id", storeID).Str("integration_type", integrationType).
		Msg("Concurrent write detected, updating the active integration record")

	active, err := s.repo.ActiveIntegration(ctx, storeID, integrationType)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrDuplicateActive
	}
	return s.updateRecord(ctx, active, data, now)
}

func (s *RecordStore) updateRecord(ctx context.Context, record *model.IntegrationConfig, data map[string]any, now time.Time) (*model.IntegrationConfig, error) {
	record.ConfigData = data
	record.UpdatedAt = now
	if err := s.repo.UpdateIntegration(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// LoadIntegrationConfig returns the active configuration with its sensitive
// fields decrypted, or nil when the store has none for integrationType.
func (s *RecordStore) LoadIntegrationConfig(ctx context.Context, storeID, integrationType string) (*model.IntegrationConfig, crypto.FieldReport, error) {
	if err := checkStoreID(storeID); err != nil {
		return nil, crypto.FieldReport{}, err
	}

	record, err := s.repo.ActiveIntegration(ctx, storeID, integrationType)
	if err != nil {
		return nil, crypto.FieldReport{}, fmt.Errorf("failed to load %s configuration for store %s: %w", integrationType, storeID, err)
	}
	if record == nil {
		return nil, crypto.FieldReport{}, nil
	}

	decrypted, report := s.cipher.DecryptFields(integrationType, record.ConfigData)
	record.ConfigData = decrypted
	return record, report, nil
}

// UpdateSyncStatus records the sync outcome on the record and persists it.
// Success stamps LastSyncAt; syncing clears the previous error.
func (s *RecordStore) UpdateSyncStatus(ctx context.Context, record *model.IntegrationConfig, status model.SyncStatus, errMsg string) error {
	now := s.now()
	var lastSync *time.Time
	switch status {
	case model.SyncSuccess:
		lastSync = &now
	case model.SyncSyncing:
		errMsg = ""
	}

	if err := s.repo.UpdateSyncStatus(ctx, record.ID, status, errMsg, lastSync, now); err != nil {
		return fmt.Errorf("failed to update sync status of %s: %w", record.ID, err)
	}

	record.SyncStatus = status
	record.SyncError = errMsg
	if lastSync != nil {
		record.LastSyncAt = lastSync
	}
	record.UpdatedAt = now
	return nil
}

func (s *RecordStore) UpdateConnectionStatus(ctx context.Context, recordID uuid.UUID, storeID string, status model.ConnectionStatus, errMsg string) error {
	if err := s.repo.UpdateConnectionStatus(ctx, recordID, storeID, status, errMsg, s.now()); err != nil {
		return fmt.Errorf("failed to update connection status of %s: %w", recordID, err)
	}
	return nil
}

// FetchDescriptor returns the active descriptor of the store, or nil.
func (s *RecordStore) FetchDescriptor(ctx context.Context, storeID string) (*model.StoreDatabase, error) {
	if s.cache != nil {
		if d, ok := s.cache.Get(ctx, storeID); ok {
			return d, nil
		}
	}

	d, err := s.repo.ActiveDescriptor(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if d != nil && s.cache != nil {
		s.cache.Set(ctx, d)
	}
	return d, nil
}

// SaveDescriptor encrypts the credential payload and makes it the store's
// only active descriptor.
func (s *RecordStore) SaveDescriptor(ctx context.Context, storeID string, dbType model.DatabaseType, credentials string) (*model.StoreDatabase, error) {
	if err := checkStoreID(storeID); err != nil {
		return nil, err
	}
	if !dbType.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedBackendType, dbType)
	}

	encrypted, err := s.cipher.Encrypt(credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt connection payload: %w", err)
	}

	now := s.now()
	d := &model.StoreDatabase{
		ID:                        uuid.New(),
		StoreID:                   storeID,
		DatabaseType:              dbType,
		ConnectionStringEncrypted: encrypted,
		IsActive:                  true,
		ConnectionStatus:          model.ConnectionUntested,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	err = s.repo.ActivateDescriptor(ctx, d)
	s.invalidate(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to save database configuration for store %s: %w", storeID, err)
	}
	return d, nil
}

// DeactivateDescriptor reports whether an active descriptor was deactivated
func (s *RecordStore) DeactivateDescriptor(ctx context.Context, storeID string) (bool, error) {
	if err := checkStoreID(storeID); err != nil {
		return false, err
	}
	ok, err := s.repo.DeactivateDescriptor(ctx, storeID, s.now())
	s.invalidate(ctx, storeID)
	return ok, err
}

// RecordDescriptorTest stamps the outcome of a connectivity test
func (s *RecordStore) RecordDescriptorTest(ctx context.Context, storeID string, status model.ConnectionStatus) error {
	err := s.repo.UpdateDescriptorStatus(ctx, storeID, status, s.now())
	s.invalidate(ctx, storeID)
	return err
}

func (s *RecordStore) invalidate(ctx context.Context, storeID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, storeID)
	}
}

// RepairReport summarises a legacy re-encryption run
type RepairReport struct {
	Scanned  int
	Repaired int
	// Failed lists record IDs that still carry undecryptable fields
	Failed []uuid.UUID
}

// RepairLegacyEncryption rewrites active integration records whose sensitive
// fields were encrypted twice so they carry a single layer.
func (s *RecordStore) RepairLegacyEncryption(ctx context.Context) (RepairReport, error) {
	var report RepairReport

	records, err := s.repo.ListActiveIntegrations(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list integration records: %w", err)
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		decrypted, fields := s.cipher.DecryptFields(record.IntegrationType, record.ConfigData)
		if !fields.OK() {
			report.Failed = append(report.Failed, record.ID)
		}
		if len(fields.Legacy) == 0 {
			continue
		}

		reencrypted, _ := s.cipher.EncryptFields(record.IntegrationType, decrypted)
		if _, err := s.updateRecord(ctx, record, reencrypted, s.now()); err != nil {
			return report, fmt.Errorf("failed to rewrite integration record %s: %w", record.ID, err)
		}
		report.Repaired++
		log.Info().Str("store_id", record.StoreID).Str("integration_type", record.IntegrationType).
			Strs("fields", fields.Legacy).Msg("Repaired double-encrypted integration fields")
	}
	return report, nil
}
