package backend

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/teresa-solution/store-connection-service/internal/model"
)

// MySQLHandle wraps a database/sql pool on the MySQL driver
type MySQLHandle struct {
	db *sql.DB
}

// OpenMySQL configures the pool; sql.Open does not dial.
func OpenMySQL(creds Credentials, opts PoolOptions) (*MySQLHandle, error) {
	dsn, err := mysqlDSN(creds)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql pool: %w", err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(int(opts.MaxConns))
	}
	db.SetMaxIdleConns(int(max(opts.MinConns, 2)))
	db.SetConnMaxLifetime(opts.MaxConnLifetime)
	db.SetConnMaxIdleTime(opts.MaxConnIdleTime)
	return &MySQLHandle{db: db}, nil
}

func mysqlDSN(creds Credentials) (string, error) {
	if err := creds.Validate(model.DatabaseTypeMySQL); err != nil {
		return "", err
	}
	if creds.URL != "" {
		cfg, err := mysql.ParseDSN(creds.URL)
		if err != nil {
			return "", fmt.Errorf("failed to parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	}

	cfg := mysql.NewConfig()
	cfg.User = creds.userOr("root")
	cfg.Passwd = creds.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(creds.Host, strconv.Itoa(creds.portOr(3306)))
	cfg.DBName = creds.Database
	cfg.ParseTime = true
	if creds.SSLMode != "" && creds.SSLMode != "disable" {
		cfg.TLSConfig = "preferred"
	}
	return cfg.FormatDSN(), nil
}

func (h *MySQLHandle) Type() model.DatabaseType { return model.DatabaseTypeMySQL }

// DB exposes the underlying pool
func (h *MySQLHandle) DB() *sql.DB { return h.db }

func (h *MySQLHandle) Probe(ctx context.Context) error {
	var one int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (h *MySQLHandle) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (h *MySQLHandle) Close(context.Context) error {
	return h.db.Close()
}
