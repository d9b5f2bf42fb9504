package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/store-connection-service/internal/backend"
)

// Config holds the process configuration read from the environment
type Config struct {
	MasterDatabaseURL string
	EncryptionKey     string

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	DescriptorCacheTTL time.Duration

	ResolveTimeout time.Duration
	TenantPool     backend.PoolOptions

	GRPCPort        int
	HTTPAddr        string
	LogLevel        zerolog.Level
	VerifyQueueSize int
}

// Load reads .env when present, then the environment. ENCRYPTION_KEY and
// MASTER_DATABASE_URL have no defaults.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a lookup function
func FromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}
	pool := backend.DefaultPoolOptions()

	cfg := &Config{
		MasterDatabaseURL:  r.required("MASTER_DATABASE_URL"),
		EncryptionKey:      r.required("ENCRYPTION_KEY"),
		RedisAddr:          r.str("REDIS_ADDR", ""),
		RedisPassword:      r.str("REDIS_PASSWORD", ""),
		RedisDB:            r.integer("REDIS_DB", 0),
		DescriptorCacheTTL: r.duration("DESCRIPTOR_CACHE_TTL", 5*time.Minute),
		ResolveTimeout:     r.duration("RESOLVE_TIMEOUT", 30*time.Second),
		TenantPool: backend.PoolOptions{
			MaxConns:        int32(r.integer("TENANT_POOL_MAX_CONNS", int(pool.MaxConns))),
			MinConns:        int32(r.integer("TENANT_POOL_MIN_CONNS", int(pool.MinConns))),
			MaxConnLifetime: r.duration("TENANT_POOL_MAX_CONN_LIFETIME", pool.MaxConnLifetime),
			MaxConnIdleTime: r.duration("TENANT_POOL_MAX_CONN_IDLE_TIME", pool.MaxConnIdleTime),
		},
		GRPCPort:        r.integer("GRPC_PORT", 50053),
		HTTPAddr:        r.str("HTTP_ADDR", ":8081"),
		VerifyQueueSize: r.integer("VERIFY_QUEUE_SIZE", 10),
	}

	level, err := zerolog.ParseLevel(r.str("LOG_LEVEL", "info"))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	cfg.LogLevel = level

	if cfg.TenantPool.MinConns > cfg.TenantPool.MaxConns {
		r.errs = append(r.errs, fmt.Errorf("TENANT_POOL_MIN_CONNS (%d) exceeds TENANT_POOL_MAX_CONNS (%d)",
			cfg.TenantPool.MinConns, cfg.TenantPool.MaxConns))
	}

	if cfg.CacheEnabled() && cfg.DescriptorCacheTTL <= 0 {
		r.errs = append(r.errs, fmt.Errorf("DESCRIPTOR_CACHE_TTL must be positive when REDIS_ADDR is set, got %s", cfg.DescriptorCacheTTL))
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CacheEnabled reports whether the Redis descriptor cache is configured
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v := r.getenv(key); v != "" {
		return v
	}
	return def
}

func (r *reader) required(key string) string {
	v := r.getenv(key)
	if v == "" {
		r.errs = append(r.errs, fmt.Errorf("%s environment variable is required", key))
	}
	return v
}

func (r *reader) integer(key string, def int) int {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
