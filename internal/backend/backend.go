package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/teresa-solution/store-connection-service/internal/model"
)

// Handle is a live connection to a store's backing database
type Handle interface {
	Type() model.DatabaseType
	// Probe runs a minimal existence query to verify the handle works
	Probe(ctx context.Context) error
	// Query runs raw SQL. Document stores return model.ErrUnsupportedOperation.
	Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
	Close(ctx context.Context) error
}

// PoolOptions bounds the per-store pools built by the relational adapters
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPoolOptions keeps construction lazy: no connection is opened until
// the probe runs.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:        10,
		MinConns:        0,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}
}

// Open constructs a handle for the given database type. This is the only
// place that dispatches on DatabaseType.
func Open(ctx context.Context, dbType model.DatabaseType, creds Credentials, opts PoolOptions) (Handle, error) {
	switch dbType {
	case model.DatabaseTypePostgres:
		return OpenPostgres(ctx, creds, opts)
	case model.DatabaseTypeMySQL:
		return OpenMySQL(creds, opts)
	case model.DatabaseTypeDocument:
		return OpenDocument(ctx, creds)
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedBackendType, dbType)
	}
}
