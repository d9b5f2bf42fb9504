package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/store-connection-service/internal/backend"
	"github.com/teresa-solution/store-connection-service/internal/model"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type masterFunc func(ctx context.Context) (backend.Handle, error)

func (f masterFunc) GetMasterConnection(ctx context.Context) (backend.Handle, error) { return f(ctx) }

func servingStatus(t *testing.T, srv *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestHealthReporter_Check(t *testing.T) {
	srv := health.NewServer()
	master := &stubHandle{dbType: model.DatabaseTypePostgres}
	reporter := NewHealthReporter(srv, masterFunc(func(context.Context) (backend.Handle, error) { return master, nil }))

	require.NoError(t, reporter.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, srv, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, srv, ServiceName))

	master.probeErr = errors.New("connection reset")
	assert.Error(t, reporter.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, srv, ServiceName))
}

func TestHealthReporter_MasterUnavailable(t *testing.T) {
	srv := health.NewServer()
	reporter := NewHealthReporter(srv, masterFunc(func(context.Context) (backend.Handle, error) {
		return nil, model.ErrConnection
	}))

	assert.ErrorIs(t, reporter.Check(context.Background()), model.ErrConnection)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, srv, ""))
}
