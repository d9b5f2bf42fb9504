package backend

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/teresa-solution/store-connection-service/internal/model"
)

// PostgresHandle wraps a lazily connecting pgx pool
type PostgresHandle struct {
	pool *pgxpool.Pool
}

// OpenPostgres builds the pool without dialing; Probe performs the first round trip.
func OpenPostgres(ctx context.Context, creds Credentials, opts PoolOptions) (*PostgresHandle, error) {
	if err := creds.Validate(model.DatabaseTypePostgres); err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(postgresDSN(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres connection string: %w", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	config.MinConns = opts.MinConns
	if opts.MaxConnLifetime > 0 {
		config.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &PostgresHandle{pool: pool}, nil
}

func postgresDSN(creds Credentials) string {
	if creds.URL != "" {
		return creds.URL
	}

	sslMode := creds.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(creds.userOr("postgres"), creds.Password),
		Host:     net.JoinHostPort(creds.Host, strconv.Itoa(creds.portOr(5432))),
		Path:     "/" + creds.Database,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

func (h *PostgresHandle) Type() model.DatabaseType { return model.DatabaseTypePostgres }

// Pool exposes the underlying pool for callers that need pgx directly
func (h *PostgresHandle) Pool() *pgxpool.Pool { return h.pool }

func (h *PostgresHandle) Probe(ctx context.Context) error {
	var one int
	if err := h.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return err
	}
	return nil
}

func (h *PostgresHandle) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	rows, err := h.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPgxRows(rows)
}

func (h *PostgresHandle) Close(context.Context) error {
	h.pool.Close()
	return nil
}

func collectPgxRows(rows pgx.Rows) ([]map[string]any, error) {
	fields := rows.FieldDescriptions()
	result := []map[string]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
