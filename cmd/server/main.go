package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/store-connection-service/internal/backend"
	"github.com/teresa-solution/store-connection-service/internal/config"
	"github.com/teresa-solution/store-connection-service/internal/connection"
	"github.com/teresa-solution/store-connection-service/internal/crypto"
	"github.com/teresa-solution/store-connection-service/internal/monitoring"
	"github.com/teresa-solution/store-connection-service/internal/service"
	"github.com/teresa-solution/store-connection-service/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const masterProbeConns = 2

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	var (
		port           = flag.Int("port", cfg.GRPCPort, "Port gRPC server")
		httpAddr       = flag.String("http-addr", cfg.HTTPAddr, "Address of the admin HTTP server")
		healthInterval = flag.Duration("health-interval", 15*time.Second, "Interval between master database health checks")
	)
	flag.Parse()

	cipher, err := crypto.NewCipher(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize credential cipher")
	}

	repo, err := store.NewPostgresRepository(cfg.MasterDatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open master database")
	}

	var recordOpts []store.RecordStoreOption
	if cfg.CacheEnabled() {
		rdb := store.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		recordOpts = append(recordOpts, store.WithDescriptorCache(store.NewDescriptorCache(rdb, cfg.DescriptorCacheTTL)))
		log.Info().Str("addr", cfg.RedisAddr).Msg("Descriptor cache enabled")
	}
	records := store.NewRecordStore(repo, cipher, recordOpts...)
	defer records.Close()

	manager := connection.NewManager(records, cipher,
		connection.WithPoolOptions(cfg.TenantPool),
		connection.WithResolveTimeout(cfg.ResolveTimeout),
		// Records go through repo; this pool only serves health probes.
		connection.WithMasterOpener(func(ctx context.Context) (backend.Handle, error) {
			return backend.OpenPostgres(ctx, backend.Credentials{URL: cfg.MasterDatabaseURL},
				backend.PoolOptions{MaxConns: masterProbeConns})
		}),
	)

	verifier := service.NewVerificationWorker(manager, cfg.VerifyQueueSize, cfg.ResolveTimeout)
	storeService := service.NewStoreService(records, manager, verifier)

	monitoring.InitMetrics()

	healthServer := health.NewServer()
	reporter := service.NewHealthReporter(healthServer, manager)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go reporter.Run(ctx, *healthInterval)

	log.Info().Msgf("Starting Store Connection Service on port %d", *port)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to listen")
	}

	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)

	go func() {
		log.Info().Msgf("gRPC server listening at %v", lis.Addr())
		if err := server.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("Failed to start gRPC server")
		}
	}()

	httpServer := &http.Server{
		Addr:              *httpAddr,
		Handler:           service.NewAdminRouter(storeService, manager, reporter),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Msgf("Admin HTTP server listening on %s", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stop()
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	server.GracefulStop()
	verifier.Stop()
	manager.CloseAll(shutdownCtx)
	log.Info().Msg("Server exiting")
}
