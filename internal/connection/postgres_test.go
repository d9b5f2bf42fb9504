package connection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/store-connection-service/internal/backend"
	"github.com/teresa-solution/store-connection-service/internal/model"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestManager_PostgresStoreEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("shop"),
		tcpostgres.WithUsername("app"),
		tcpostgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	f := setup(t, WithOpener(backend.Open))
	payload, err := backend.Credentials{URL: connStr}.Encode()
	require.NoError(t, err)
	_, err = f.records.SaveDescriptor(ctx, "S1", model.DatabaseTypePostgres, payload)
	require.NoError(t, err)
	t.Cleanup(func() { f.manager.CloseAll(context.Background()) })

	h, err := f.manager.GetStoreConnection(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, model.DatabaseTypePostgres, h.Type())
	_, ok := h.(*backend.PostgresHandle)
	assert.True(t, ok)

	rows, err := f.manager.Query(ctx, "S1", "SELECT 1 AS one")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0]["one"])

	again, err := f.manager.GetStoreConnection(ctx, "S1")
	require.NoError(t, err)
	assert.Same(t, h, again)

	result := f.manager.TestStoreConnection(ctx, "S1")
	assert.True(t, result.Success, result.Message)
	assert.Equal(t, model.DatabaseTypePostgres, result.DatabaseType)

	d, err := f.records.FetchDescriptor(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionSuccess, d.ConnectionStatus)
}
