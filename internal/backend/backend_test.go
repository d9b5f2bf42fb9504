package backend

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/store-connection-service/internal/model"
)

func TestParseCredentials(t *testing.T) {
	t.Run("json object", func(t *testing.T) {
		creds, err := ParseCredentials(`{"host":"db.internal","port":6543,"database":"shop","user":"app","password":"pw"}`)
		require.NoError(t, err)
		assert.Equal(t, "db.internal", creds.Host)
		assert.Equal(t, 6543, creds.Port)
		assert.Equal(t, "shop", creds.Database)
		assert.Equal(t, "app", creds.User)
		assert.Equal(t, "pw", creds.Password)
	})

	t.Run("bare url", func(t *testing.T) {
		creds, err := ParseCredentials("  postgres://u:p@h/db  ")
		require.NoError(t, err)
		assert.Equal(t, "postgres://u:p@h/db", creds.URL)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseCredentials("   ")
		assert.ErrorIs(t, err, model.ErrMissingCredential)
	})

	t.Run("broken json", func(t *testing.T) {
		_, err := ParseCredentials(`{"host":`)
		assert.Error(t, err)
	})
}

func TestCredentials_EncodeRoundTrip(t *testing.T) {
	in := Credentials{URL: "https://proj.example.com", ServiceKey: "svc-key"}
	payload, err := in.Encode()
	require.NoError(t, err)

	out, err := ParseCredentials(payload)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		dbType  model.DatabaseType
		creds   Credentials
		wantErr error
	}{
		{"postgres url", model.DatabaseTypePostgres, Credentials{URL: "postgres://h/db"}, nil},
		{"postgres host and db", model.DatabaseTypePostgres, Credentials{Host: "h", Database: "db"}, nil},
		{"postgres missing host", model.DatabaseTypePostgres, Credentials{Database: "db"}, model.ErrMissingCredential},
		{"mysql missing database", model.DatabaseTypeMySQL, Credentials{Host: "h"}, model.ErrMissingCredential},
		{"document ok", model.DatabaseTypeDocument, Credentials{URL: "mongodb://h", ServiceKey: "k"}, nil},
		{"document missing key", model.DatabaseTypeDocument, Credentials{URL: "mongodb://h"}, model.ErrMissingCredential},
		{"document missing url", model.DatabaseTypeDocument, Credentials{ServiceKey: "k"}, model.ErrMissingCredential},
		{"unknown type", model.DatabaseType("oracle"), Credentials{URL: "x"}, model.ErrUnsupportedBackendType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate(tt.dbType)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOpen_UnsupportedType(t *testing.T) {
	h, err := Open(context.Background(), model.DatabaseType("cassandra"), Credentials{URL: "x"}, DefaultPoolOptions())
	assert.Nil(t, h)
	assert.ErrorIs(t, err, model.ErrUnsupportedBackendType)
}

func TestPostgresDSN_Defaults(t *testing.T) {
	dsn := postgresDSN(Credentials{Host: "db.internal", Database: "shop", Password: "p@ss"})
	u, err := url.Parse(dsn)
	require.NoError(t, err)

	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db.internal:5432", u.Host)
	assert.Equal(t, "/shop", u.Path)
	assert.Equal(t, "postgres", u.User.Username())
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)
	assert.Equal(t, "prefer", u.Query().Get("sslmode"))
}

func TestPostgresDSN_URLWins(t *testing.T) {
	assert.Equal(t, "postgres://a:b@c/d", postgresDSN(Credentials{URL: "postgres://a:b@c/d", Host: "ignored"}))
}

func TestMySQLDSN(t *testing.T) {
	dsn, err := mysqlDSN(Credentials{Host: "mysql.internal", Database: "shop", Password: "pw"})
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "root", cfg.User)
	assert.Equal(t, "pw", cfg.Passwd)
	assert.Equal(t, "mysql.internal:3306", cfg.Addr)
	assert.Equal(t, "shop", cfg.DBName)
	assert.True(t, cfg.ParseTime)

	_, err = mysqlDSN(Credentials{Host: "mysql.internal"})
	assert.ErrorIs(t, err, model.ErrMissingCredential)
}

func TestOpenPostgres_IsLazy(t *testing.T) {
	ctx := context.Background()
	h, err := OpenPostgres(ctx, Credentials{Host: "127.0.0.1", Port: 1, Database: "none", SSLMode: "disable"}, DefaultPoolOptions())
	require.NoError(t, err)
	defer h.Close(ctx)

	assert.Equal(t, model.DatabaseTypePostgres, h.Type())

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	assert.Error(t, h.Probe(probeCtx))
}

func TestOpenPostgres_PoolOptions(t *testing.T) {
	ctx := context.Background()
	h, err := OpenPostgres(ctx, Credentials{URL: "postgres://admin@127.0.0.1:1/store_registry?sslmode=disable"}, PoolOptions{MaxConns: 2})
	require.NoError(t, err)
	defer h.Close(ctx)

	cfg := h.Pool().Config()
	assert.Equal(t, int32(2), cfg.MaxConns)
	assert.Equal(t, int32(0), cfg.MinConns)
	assert.Equal(t, "store_registry", cfg.ConnConfig.Database)
}

func TestOpenMySQL_IsLazy(t *testing.T) {
	ctx := context.Background()
	h, err := OpenMySQL(Credentials{Host: "127.0.0.1", Port: 1, Database: "none"}, DefaultPoolOptions())
	require.NoError(t, err)
	defer h.Close(ctx)

	assert.Equal(t, model.DatabaseTypeMySQL, h.Type())

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	assert.Error(t, h.Probe(probeCtx))
}

func TestDocumentHandle_QueryUnsupported(t *testing.T) {
	ctx := context.Background()
	h, err := Open(ctx, model.DatabaseTypeDocument, Credentials{URL: "mongodb://127.0.0.1:1", ServiceKey: "k"}, DefaultPoolOptions())
	require.NoError(t, err)
	defer h.Close(ctx)

	assert.Equal(t, model.DatabaseTypeDocument, h.Type())
	_, err = h.Query(ctx, "SELECT 1")
	assert.True(t, errors.Is(err, model.ErrUnsupportedOperation))

	doc, ok := h.(*DocumentHandle)
	require.True(t, ok)
	assert.Equal(t, "store", doc.Database().Name())
}

func TestOpenDocument_MissingServiceKey(t *testing.T) {
	_, err := OpenDocument(context.Background(), Credentials{URL: "mongodb://127.0.0.1:1"})
	assert.ErrorIs(t, err, model.ErrMissingCredential)
}
