package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/store-connection-service/internal/config"
	"github.com/teresa-solution/store-connection-service/internal/crypto"
	"github.com/teresa-solution/store-connection-service/internal/store"
)

func main() {
	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		command = flag.String("command", "up", "Migration command (up, down, force, repair-secrets)")
		version = flag.Int("version", 1, "Version used by the force command")
		source  = flag.String("source", "file://scripts/migrations", "Migration source URL")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if *command == "repair-secrets" {
		repairSecrets(cfg)
		return
	}

	// Connect to the database
	pgxConfig, err := pgx.ParseConfig(cfg.MasterDatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse DSN")
	}
	db := stdlib.OpenDB(*pgxConfig)
	defer db.Close()

	// Set up the migration driver
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance(*source, "postgres", driver)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}

	switch *command {
	case "up":
		log.Info().Msg("Applying migrations...")
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Msg("Migrations applied successfully")
	case "down":
		log.Info().Msg("Reverting migrations...")
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("Failed to revert migrations")
		}
		log.Info().Msg("Migrations reverted successfully")
	case "force":
		log.Info().Int("version", *version).Msg("Forcing migration version...")
		if err := m.Force(*version); err != nil {
			log.Fatal().Err(err).Msg("Failed to force migration version")
		}
		log.Info().Msg("Migration version forced successfully")
	default:
		log.Fatal().Msgf("Unknown command: %s", *command)
	}
}

// repairSecrets rewrites double-encrypted integration secrets with a single layer
func repairSecrets(cfg *config.Config) {
	cipher, err := crypto.NewCipher(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize credential cipher")
	}

	repo, err := store.NewPostgresRepository(cfg.MasterDatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open master database")
	}
	records := store.NewRecordStore(repo, cipher)
	defer records.Close()

	log.Info().Msg("Repairing double-encrypted integration secrets...")
	report, err := records.RepairLegacyEncryption(context.Background())
	if err != nil {
		log.Fatal().Err(err).Int("repaired", report.Repaired).Msg("Repair stopped")
	}
	for _, id := range report.Failed {
		log.Warn().Str("record_id", id.String()).Msg("Record still has fields that cannot be decrypted")
	}
	log.Info().Int("scanned", report.Scanned).Int("repaired", report.Repaired).Msg("Repair finished")
}
