package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/store-connection-service/internal/backend"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported to gRPC health checks
const ServiceName = "storeconnection.v1.StoreConnectionService"

// MasterSource provides the master database handle
type MasterSource interface {
	GetMasterConnection(ctx context.Context) (backend.Handle, error)
}

// HealthReporter keeps the gRPC health status in line with master database reachability
type HealthReporter struct {
	server *health.Server
	master MasterSource
}

func NewHealthReporter(server *health.Server, master MasterSource) *HealthReporter {
	return &HealthReporter{server: server, master: master}
}

// Check probes the master database and updates the serving status
func (h *HealthReporter) Check(ctx context.Context) error {
	err := h.probe(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
	return err
}

func (h *HealthReporter) probe(ctx context.Context) error {
	conn, err := h.master.GetMasterConnection(ctx)
	if err != nil {
		return err
	}
	return conn.Probe(ctx)
}

// Run checks on every tick until ctx is done
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		if err := h.Check(checkCtx); err != nil {
			log.Warn().Err(err).Msg("Master database health check failed")
		}
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
