package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/store-connection-service/internal/backend"
	"github.com/teresa-solution/store-connection-service/internal/connection"
	"github.com/teresa-solution/store-connection-service/internal/crypto"
	"github.com/teresa-solution/store-connection-service/internal/model"
	"github.com/teresa-solution/store-connection-service/internal/store"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type stubHandle struct {
	dbType   model.DatabaseType
	probeErr error
	mu       sync.Mutex
	closed   bool
}

func (h *stubHandle) Type() model.DatabaseType    { return h.dbType }
func (h *stubHandle) Probe(context.Context) error { return h.probeErr }
func (h *stubHandle) Close(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *stubHandle) Query(context.Context, string, ...any) ([]map[string]any, error) {
	return nil, nil
}

func (h *stubHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// mockVerifier records queued stores
type mockVerifier struct {
	mu     sync.Mutex
	queued []string
	full   bool
}

func (m *mockVerifier) QueueForVerification(storeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return false
	}
	m.queued = append(m.queued, storeID)
	return true
}

type testEnv struct {
	svc      *StoreService
	manager  *connection.Manager
	records  *store.RecordStore
	verifier *mockVerifier
	probeErr error
}

func setupTestService(t *testing.T) *testEnv {
	t.Helper()
	cipher, err := crypto.NewCipher(testKey)
	require.NoError(t, err)

	env := &testEnv{verifier: &mockVerifier{}}
	env.records = store.NewRecordStore(store.NewMemoryRepository(), cipher)
	open := func(_ context.Context, dbType model.DatabaseType, _ backend.Credentials, _ backend.PoolOptions) (backend.Handle, error) {
		return &stubHandle{dbType: dbType, probeErr: env.probeErr}, nil
	}
	env.manager = connection.NewManager(env.records, cipher, connection.WithOpener(open))
	env.svc = NewStoreService(env.records, env.manager, env.verifier)
	return env
}

func postgresRequest(storeID string) DatabaseRequest {
	return DatabaseRequest{
		StoreID:      storeID,
		DatabaseType: model.DatabaseTypePostgres,
		Credentials:  backend.Credentials{Host: "db.internal", Database: "shop", Password: "pw"},
	}
}

func TestStoreService_ConfigureDatabase(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	d, err := env.svc.ConfigureDatabase(ctx, postgresRequest("S1"))
	require.NoError(t, err)
	assert.True(t, d.IsActive)
	assert.Equal(t, model.ConnectionUntested, d.ConnectionStatus)
	assert.NotContains(t, d.ConnectionStringEncrypted, "db.internal")
	assert.Equal(t, []string{"S1"}, env.verifier.queued)

	h, err := env.manager.GetStoreConnection(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, model.DatabaseTypePostgres, h.Type())
}

func TestStoreService_ConfigureDatabaseEvictsCachedConnection(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	_, err := env.svc.ConfigureDatabase(ctx, postgresRequest("S1"))
	require.NoError(t, err)
	old, err := env.manager.GetStoreConnection(ctx, "S1")
	require.NoError(t, err)

	_, err = env.svc.ConfigureDatabase(ctx, DatabaseRequest{
		StoreID:      "S1",
		DatabaseType: model.DatabaseTypeDocument,
		Credentials:  backend.Credentials{URL: "mongodb://doc.internal", ServiceKey: "key"},
	})
	require.NoError(t, err)
	assert.True(t, old.(*stubHandle).isClosed())

	h, err := env.manager.GetStoreConnection(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, model.DatabaseTypeDocument, h.Type())
}

func TestStoreService_ConfigureDatabaseValidation(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	_, err := env.svc.ConfigureDatabase(ctx, postgresRequest("undefined"))
	assert.ErrorIs(t, err, model.ErrInvalidStoreID)

	req := postgresRequest("S1")
	req.DatabaseType = "oracle"
	_, err = env.svc.ConfigureDatabase(ctx, req)
	assert.ErrorIs(t, err, model.ErrUnsupportedBackendType)

	_, err = env.svc.ConfigureDatabase(ctx, DatabaseRequest{
		StoreID:      "S1",
		DatabaseType: model.DatabaseTypeDocument,
		Credentials:  backend.Credentials{URL: "mongodb://doc.internal"},
	})
	assert.ErrorIs(t, err, model.ErrMissingCredential)
	assert.Empty(t, env.verifier.queued)
}

func TestStoreService_ConfigureDatabaseQueueFull(t *testing.T) {
	env := setupTestService(t)
	env.verifier.full = true

	_, err := env.svc.ConfigureDatabase(context.Background(), postgresRequest("S1"))
	assert.NoError(t, err)
}

func TestStoreService_DisconnectDatabase(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	_, err := env.svc.ConfigureDatabase(ctx, postgresRequest("S1"))
	require.NoError(t, err)
	h, err := env.manager.GetStoreConnection(ctx, "S1")
	require.NoError(t, err)

	require.NoError(t, env.svc.DisconnectDatabase(ctx, "S1"))
	assert.True(t, h.(*stubHandle).isClosed())

	_, err = env.manager.GetStoreConnection(ctx, "S1")
	assert.ErrorIs(t, err, model.ErrConfigNotFound)

	assert.ErrorIs(t, env.svc.DisconnectDatabase(ctx, "S1"), model.ErrConfigNotFound)
}

func TestStoreService_TestDatabase(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	_, err := env.svc.ConfigureDatabase(ctx, postgresRequest("S1"))
	require.NoError(t, err)

	result := env.svc.TestDatabase(ctx, "S1")
	assert.True(t, result.Success)

	env.probeErr = errors.New("no route to host")
	result = env.svc.TestDatabase(ctx, "S1")
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "no route to host")
}

func TestStoreService_IntegrationLifecycle(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	_, err := env.svc.IntegrationConfig(ctx, "S1", "shopify")
	assert.ErrorIs(t, err, model.ErrConfigNotFound)

	saved, err := env.svc.SaveIntegration(ctx, "S1", "shopify", map[string]any{
		"shopDomain":  "acme.myshopify.com",
		"accessToken": "shpat_123",
	})
	require.NoError(t, err)
	assert.True(t, crypto.IsEncrypted(saved.ConfigData["accessToken"].(string)))

	record, err := env.svc.BeginSync(ctx, "S1", "shopify")
	require.NoError(t, err)
	assert.Equal(t, "shpat_123", record.ConfigData["accessToken"])
	assert.Equal(t, model.SyncSyncing, record.SyncStatus)

	require.NoError(t, env.svc.FinishSync(ctx, record, errors.New("429 Too Many Requests")))
	assert.Equal(t, model.SyncError, record.SyncStatus)
	assert.Equal(t, "429 Too Many Requests", record.SyncError)

	require.NoError(t, env.svc.FinishSync(ctx, record, nil))
	assert.Equal(t, model.SyncSuccess, record.SyncStatus)
	assert.NotNil(t, record.LastSyncAt)

	require.NoError(t, env.svc.RecordIntegrationTest(ctx, record, nil))
	loaded, err := env.svc.IntegrationConfig(ctx, "S1", "shopify")
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionSuccess, loaded.ConnectionStatus)
	assert.Equal(t, model.SyncSuccess, loaded.SyncStatus)
}

func TestStoreService_SaveIntegrationRequiresType(t *testing.T) {
	env := setupTestService(t)
	_, err := env.svc.SaveIntegration(context.Background(), "S1", "", map[string]any{})
	assert.Error(t, err)
}
