package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/teresa-solution/store-connection-service/internal/model"
)

const uniqueViolation = "23505"

// PostgresRepository persists descriptors and integration records in the
// master database
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresRepository{db: db}, nil
}

// Ping verifies the master database is reachable
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const descriptorColumns = `id, store_id, database_type, connection_string_encrypted, is_active,
       connection_status, last_connection_test, created_at, updated_at`

func (r *PostgresRepository) ActiveDescriptor(ctx context.Context, storeID string) (*model.StoreDatabase, error) {
	query := `SELECT ` + descriptorColumns + `
              FROM store_databases WHERE store_id = $1 AND is_active = true
              ORDER BY created_at DESC LIMIT 1`
	d := &model.StoreDatabase{}
	var lastTest sql.NullTime
	err := r.db.QueryRowContext(ctx, query, storeID).Scan(&d.ID, &d.StoreID, &d.DatabaseType, &d.ConnectionStringEncrypted, &d.IsActive,
		&d.ConnectionStatus, &lastTest, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastTest.Valid {
		d.LastConnectionTest = &lastTest.Time
	}
	return d, nil
}

func (r *PostgresRepository) ActivateDescriptor(ctx context.Context, d *model.StoreDatabase) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `UPDATE store_databases SET is_active = false, updated_at = $2
              WHERE store_id = $1 AND is_active = true`, d.StoreID, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to deactivate previous descriptor: %w", err)
	}

	query := `INSERT INTO store_databases (id, store_id, database_type, connection_string_encrypted, is_active,
              connection_status, last_connection_test, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = tx.ExecContext(ctx, query, d.ID, d.StoreID, d.DatabaseType, d.ConnectionStringEncrypted, d.IsActive,
		d.ConnectionStatus, d.LastConnectionTest, d.CreatedAt, d.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateActive
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresRepository) DeactivateDescriptor(ctx context.Context, storeID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE store_databases SET is_active = false, updated_at = $2
              WHERE store_id = $1 AND is_active = true`, storeID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresRepository) UpdateDescriptorStatus(ctx context.Context, storeID string, status model.ConnectionStatus, testedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE store_databases
              SET connection_status = $2, last_connection_test = $3, updated_at = $3
              WHERE store_id = $1 AND is_active = true`, storeID, status, testedAt)
	return err
}

const integrationColumns = `id, store_id, integration_type, config_data, is_active, sync_status, sync_error,
       last_sync_at, connection_status, connection_error, connection_tested_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntegration(row rowScanner) (*model.IntegrationConfig, error) {
	c := &model.IntegrationConfig{}
	var (
		data                 []byte
		syncErr, connErr     sql.NullString
		lastSync, connTested sql.NullTime
	)
	err := row.Scan(&c.ID, &c.StoreID, &c.IntegrationType, &data, &c.IsActive, &c.SyncStatus, &syncErr,
		&lastSync, &c.ConnectionStatus, &connErr, &connTested, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ConfigData = map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &c.ConfigData); err != nil {
			return nil, fmt.Errorf("failed to decode config_data of %s: %w", c.ID, err)
		}
	}
	c.SyncError = syncErr.String
	c.ConnectionError = connErr.String
	if lastSync.Valid {
		c.LastSyncAt = &lastSync.Time
	}
	if connTested.Valid {
		c.ConnectionTestedAt = &connTested.Time
	}
	return c, nil
}

func (r *PostgresRepository) ActiveIntegration(ctx context.Context, storeID, integrationType string) (*model.IntegrationConfig, error) {
	query := `SELECT ` + integrationColumns + `
              FROM integration_configs
              WHERE store_id = $1 AND integration_type = $2 AND is_active = true
              ORDER BY updated_at DESC LIMIT 1`
	c, err := scanIntegration(r.db.QueryRowContext(ctx, query, storeID, integrationType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *PostgresRepository) LatestInactiveIntegration(ctx context.Context, storeID, integrationType string) (*model.IntegrationConfig, error) {
	query := `SELECT ` + integrationColumns + `
              FROM integration_configs
              WHERE store_id = $1 AND integration_type = $2 AND is_active = false
              ORDER BY updated_at DESC LIMIT 1`
	c, err := scanIntegration(r.db.QueryRowContext(ctx, query, storeID, integrationType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *PostgresRepository) ListActiveIntegrations(ctx context.Context) ([]*model.IntegrationConfig, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+integrationColumns+`
              FROM integration_configs WHERE is_active = true ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.IntegrationConfig
	for rows.Next() {
		c, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) InsertIntegration(ctx context.Context, c *model.IntegrationConfig) error {
	data, err := json.Marshal(c.ConfigData)
	if err != nil {
		return err
	}
	query := `INSERT INTO integration_configs (id, store_id, integration_type, config_data, is_active, sync_status,
              connection_status, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.db.ExecContext(ctx, query, c.ID, c.StoreID, c.IntegrationType, data, c.IsActive, c.SyncStatus,
		c.ConnectionStatus, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateActive
	}
	return err
}

func (r *PostgresRepository) UpdateIntegration(ctx context.Context, c *model.IntegrationConfig) error {
	data, err := json.Marshal(c.ConfigData)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE integration_configs SET config_data = $2, is_active = $3, updated_at = $4
              WHERE id = $1`, c.ID, data, c.IsActive, c.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateActive
	}
	return requireRow(res, err)
}

func (r *PostgresRepository) UpdateSyncStatus(ctx context.Context, id uuid.UUID, status model.SyncStatus, syncErr string, lastSyncAt *time.Time, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE integration_configs
              SET sync_status = $2, sync_error = NULLIF($3, ''), last_sync_at = COALESCE($4, last_sync_at), updated_at = $5
              WHERE id = $1`, id, status, syncErr, lastSyncAt, at)
	return requireRow(res, err)
}

func (r *PostgresRepository) UpdateConnectionStatus(ctx context.Context, id uuid.UUID, storeID string, status model.ConnectionStatus, connErr string, testedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE integration_configs
              SET connection_status = $3, connection_error = NULLIF($4, ''), connection_tested_at = $5, updated_at = $5
              WHERE id = $1 AND store_id = $2`, id, storeID, status, connErr, testedAt)
	return requireRow(res, err)
}

func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
