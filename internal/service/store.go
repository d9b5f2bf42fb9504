package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/store-connection-service/internal/backend"
	"github.com/teresa-solution/store-connection-service/internal/connection"
	"github.com/teresa-solution/store-connection-service/internal/crypto"
	"github.com/teresa-solution/store-connection-service/internal/model"
	"github.com/teresa-solution/store-connection-service/internal/store"
)

// Verifier queues asynchronous connectivity checks
type Verifier interface {
	QueueForVerification(storeID string) bool
}

// StoreService is the entry point used by route handlers and jobs for store
// database descriptors and integration configuration.
type StoreService struct {
	records  *store.RecordStore
	manager  *connection.Manager
	verifier Verifier
}

func NewStoreService(records *store.RecordStore, manager *connection.Manager, verifier Verifier) *StoreService {
	return &StoreService{
		records:  records,
		manager:  manager,
		verifier: verifier,
	}
}

// DatabaseRequest describes a store's backing database
type DatabaseRequest struct {
	StoreID      string              `json:"store_id"`
	DatabaseType model.DatabaseType  `json:"database_type"`
	Credentials  backend.Credentials `json:"credentials"`
}

// ConfigureDatabase replaces the store's descriptor, drops any cached
// connection built from the previous one and queues a connectivity check.
func (s *StoreService) ConfigureDatabase(ctx context.Context, req DatabaseRequest) (*model.StoreDatabase, error) {
	if err := validateDatabaseRequest(req); err != nil {
		return nil, err
	}

	payload, err := req.Credentials.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}

	d, err := s.records.SaveDescriptor(ctx, req.StoreID, req.DatabaseType, payload)
	if err != nil {
		log.Error().Err(err).Str("store_id", req.StoreID).Msg("Failed to save database configuration")
		return nil, err
	}
	s.manager.ClearCache(req.StoreID)

	if s.verifier != nil && !s.verifier.QueueForVerification(req.StoreID) {
		log.Warn().Str("store_id", req.StoreID).Msg("Verification queue full, skipping connectivity check")
	}

	log.Info().Str("store_id", req.StoreID).Str("database_type", string(req.DatabaseType)).Msg("Database configuration saved")
	return d, nil
}

// DisconnectDatabase deactivates the store's descriptor and closes its cached connection
func (s *StoreService) DisconnectDatabase(ctx context.Context, storeID string) error {
	ok, err := s.records.DeactivateDescriptor(ctx, storeID)
	if err != nil {
		return err
	}
	s.manager.ClearCache(storeID)
	if !ok {
		return fmt.Errorf("%w: store %s", model.ErrConfigNotFound, storeID)
	}
	log.Info().Str("store_id", storeID).Msg("Database configuration deactivated")
	return nil
}

func (s *StoreService) TestDatabase(ctx context.Context, storeID string) connection.TestResult {
	return s.manager.TestStoreConnection(ctx, storeID)
}

func validateDatabaseRequest(req DatabaseRequest) error {
	if !model.ValidStoreID(req.StoreID) {
		return fmt.Errorf("%w: %q", model.ErrInvalidStoreID, req.StoreID)
	}
	if !req.DatabaseType.Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnsupportedBackendType, req.DatabaseType)
	}
	return req.Credentials.Validate(req.DatabaseType)
}

// IntegrationConfig returns the decrypted configuration of an integration.
// Fields that could not be decrypted are logged and left as stored.
func (s *StoreService) IntegrationConfig(ctx context.Context, storeID, integrationType string) (*model.IntegrationConfig, error) {
	record, report, err := s.records.LoadIntegrationConfig(ctx, storeID, integrationType)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: no active %s integration for store %s", model.ErrConfigNotFound, integrationType, storeID)
	}
	logFieldReport(storeID, integrationType, report)
	return record, nil
}

// SaveIntegration stores the configuration with its sensitive fields encrypted
func (s *StoreService) SaveIntegration(ctx context.Context, storeID, integrationType string, data map[string]any) (*model.IntegrationConfig, error) {
	if integrationType == "" {
		return nil, errors.New("integration type is required")
	}
	record, report, err := s.records.SaveIntegrationConfig(ctx, storeID, integrationType, data)
	if err != nil {
		return nil, err
	}
	logFieldReport(storeID, integrationType, report)
	return record, nil
}

// BeginSync loads the integration and marks it as syncing
func (s *StoreService) BeginSync(ctx context.Context, storeID, integrationType string) (*model.IntegrationConfig, error) {
	record, err := s.IntegrationConfig(ctx, storeID, integrationType)
	if err != nil {
		return nil, err
	}
	if err := s.records.UpdateSyncStatus(ctx, record, model.SyncSyncing, ""); err != nil {
		return nil, err
	}
	return record, nil
}

// FinishSync records the outcome of a sync started with BeginSync
func (s *StoreService) FinishSync(ctx context.Context, record *model.IntegrationConfig, syncErr error) error {
	if syncErr != nil {
		return s.records.UpdateSyncStatus(ctx, record, model.SyncError, syncErr.Error())
	}
	return s.records.UpdateSyncStatus(ctx, record, model.SyncSuccess, "")
}

// RecordIntegrationTest stores the outcome of a credential check against the
// third-party service
func (s *StoreService) RecordIntegrationTest(ctx context.Context, record *model.IntegrationConfig, testErr error) error {
	if testErr != nil {
		return s.records.UpdateConnectionStatus(ctx, record.ID, record.StoreID, model.ConnectionFailed, testErr.Error())
	}
	return s.records.UpdateConnectionStatus(ctx, record.ID, record.StoreID, model.ConnectionSuccess, "")
}

func logFieldReport(storeID, integrationType string, report crypto.FieldReport) {
	for _, f := range report.Failed {
		log.Warn().Err(f.Err).
			Str("store_id", storeID).
			Str("integration_type", integrationType).
			Str("field", f.Field).
			Msg("Sensitive field left unprocessed")
	}
}
