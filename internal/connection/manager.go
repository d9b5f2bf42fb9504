package connection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/store-connection-service/internal/backend"
	"github.com/teresa-solution/store-connection-service/internal/crypto"
	"github.com/teresa-solution/store-connection-service/internal/model"
	"github.com/teresa-solution/store-connection-service/internal/monitoring"
	"golang.org/x/sync/singleflight"
)

// DescriptorSource is the master-database access the manager needs
type DescriptorSource interface {
	FetchDescriptor(ctx context.Context, storeID string) (*model.StoreDatabase, error)
	RecordDescriptorTest(ctx context.Context, storeID string, status model.ConnectionStatus) error
}

// Opener constructs a backend handle without probing it
type Opener func(ctx context.Context, dbType model.DatabaseType, creds backend.Credentials, opts backend.PoolOptions) (backend.Handle, error)

// MasterOpener constructs the platform-wide master handle
type MasterOpener func(ctx context.Context) (backend.Handle, error)

const (
	defaultResolveTimeout = 30 * time.Second
	maxStaleRebuilds      = 3
)

type cachedConnection struct {
	handle    backend.Handle
	dbType    model.DatabaseType
	createdAt time.Time
}

// Manager resolves store identifiers to live, probed backend handles and
// caches them for the life of the process.
type Manager struct {
	records        DescriptorSource
	cipher         *crypto.Cipher
	open           Opener
	openMaster     MasterOpener
	poolOpts       backend.PoolOptions
	resolveTimeout time.Duration
	now            func() time.Time

	mu       sync.RWMutex
	cache    map[string]*cachedConnection
	epoch    uint64
	evicts   map[string]uint64
	inflight singleflight.Group

	masterMu sync.Mutex
	master   backend.Handle
}

type Option func(*Manager)

func WithOpener(open Opener) Option {
	return func(m *Manager) { m.open = open }
}

func WithMasterOpener(open MasterOpener) Option {
	return func(m *Manager) { m.openMaster = open }
}

func WithPoolOptions(opts backend.PoolOptions) Option {
	return func(m *Manager) { m.poolOpts = opts }
}

// WithResolveTimeout bounds a single connection build. Zero disables the bound.
func WithResolveTimeout(d time.Duration) Option {
	return func(m *Manager) { m.resolveTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(records DescriptorSource, cipher *crypto.Cipher, opts ...Option) *Manager {
	m := &Manager{
		records:        records,
		cipher:         cipher,
		open:           backend.Open,
		poolOpts:       backend.DefaultPoolOptions(),
		resolveTimeout: defaultResolveTimeout,
		now:            time.Now,
		cache:          make(map[string]*cachedConnection),
		evicts:         make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func validateStoreID(storeID string) error {
	if !model.ValidStoreID(storeID) {
		return fmt.Errorf("%w: %q", model.ErrInvalidStoreID, storeID)
	}
	return nil
}

// GetStoreConnection returns the cached handle of the store, building and
// probing it on first use. Concurrent first-time callers share one build.
func (m *Manager) GetStoreConnection(ctx context.Context, storeID string) (backend.Handle, error) {
	if err := validateStoreID(storeID); err != nil {
		return nil, err
	}

	if h, ok := m.cached(storeID); ok {
		monitoring.ConnectionCacheLookups.WithLabelValues("hit").Inc()
		return h, nil
	}
	monitoring.ConnectionCacheLookups.WithLabelValues("miss").Inc()

	// Waiters share this build and may each give up on their own context.
	buildCtx := context.WithoutCancel(ctx)
	key := fmt.Sprintf("%s#%d", storeID, m.generation(storeID))
	ch := m.inflight.DoChan(key, func() (any, error) {
		ctx, cancel := m.withResolveTimeout(buildCtx)
		defer cancel()

		for attempt := 1; ; attempt++ {
			if h, ok := m.cached(storeID); ok {
				return h, nil
			}

			gen := m.generation(storeID)
			h, dbType, err := m.resolve(ctx, storeID)
			if err != nil {
				return nil, err
			}

			stored, stale := m.store(storeID, gen, h, dbType)
			if !stale {
				if stored == h {
					log.Info().Str("store_id", storeID).Str("database_type", string(dbType)).Msg("Store connection established")
				}
				return stored, nil
			}

			// The store was evicted while this build ran; its descriptor may be gone.
			if closeErr := h.Close(ctx); closeErr != nil {
				log.Warn().Err(closeErr).Str("store_id", storeID).Msg("Failed to close stale store connection")
			}
			log.Info().Str("store_id", storeID).Int("attempt", attempt).Msg("Discarded store connection built before eviction")
			if attempt >= maxStaleRebuilds {
				return nil, fmt.Errorf("%w: store %s was evicted during every resolution attempt", model.ErrConnection, storeID)
			}
		}
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(backend.Handle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OpenStoreConnection runs a full resolution without touching the cache.
// The caller owns the returned handle and must close it.
func (m *Manager) OpenStoreConnection(ctx context.Context, storeID string) (backend.Handle, error) {
	if err := validateStoreID(storeID); err != nil {
		return nil, err
	}
	ctx, cancel := m.withResolveTimeout(ctx)
	defer cancel()

	h, _, err := m.resolve(ctx, storeID)
	return h, err
}

func (m *Manager) cached(storeID string) (backend.Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if entry, ok := m.cache[storeID]; ok {
		return entry.handle, true
	}
	return nil, false
}

// generation changes whenever the store is evicted
func (m *Manager) generation(storeID string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch + m.evicts[storeID]
}

// store caches h unless the store was evicted after gen was taken. A handle
// cached by a concurrent build wins and h is closed.
func (m *Manager) store(storeID string, gen uint64, h backend.Handle, dbType model.DatabaseType) (backend.Handle, bool) {
	m.mu.Lock()
	if m.epoch+m.evicts[storeID] != gen {
		m.mu.Unlock()
		return nil, true
	}
	if existing, ok := m.cache[storeID]; ok {
		m.mu.Unlock()
		if err := h.Close(context.Background()); err != nil {
			log.Warn().Err(err).Str("store_id", storeID).Msg("Failed to close duplicate store connection")
		}
		return existing.handle, false
	}
	m.cache[storeID] = &cachedConnection{handle: h, dbType: dbType, createdAt: m.now()}
	monitoring.CachedConnections.Set(float64(len(m.cache)))
	m.mu.Unlock()
	return h, false
}

func (m *Manager) withResolveTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.resolveTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.resolveTimeout)
}

// resolve fetches, decrypts, opens and probes. The database type is returned
// whenever the descriptor was found, even on failure.
func (m *Manager) resolve(ctx context.Context, storeID string) (backend.Handle, model.DatabaseType, error) {
	start := m.now()
	h, dbType, err := m.build(ctx, storeID)

	result := "success"
	if err != nil {
		result = "failure"
	}
	label := string(dbType)
	if label == "" {
		label = "unknown"
	}
	monitoring.ConnectionResolutions.WithLabelValues(label, result).Inc()
	monitoring.ConnectionBuildDuration.Observe(m.now().Sub(start).Seconds())
	return h, dbType, err
}

func (m *Manager) build(ctx context.Context, storeID string) (backend.Handle, model.DatabaseType, error) {
	d, err := m.records.FetchDescriptor(ctx, storeID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: fetching database configuration for store %s: %w", model.ErrConnection, storeID, err)
	}
	if d == nil || !d.IsActive {
		return nil, "", fmt.Errorf("%w: no active database configuration for store %s", model.ErrConfigNotFound, storeID)
	}
	if !d.DatabaseType.Valid() {
		return nil, d.DatabaseType, fmt.Errorf("%w: %q for store %s", model.ErrUnsupportedBackendType, d.DatabaseType, storeID)
	}

	payload, err := m.cipher.Decrypt(d.ConnectionStringEncrypted)
	if err != nil {
		return nil, d.DatabaseType, fmt.Errorf("%w: decrypting credentials for store %s: %w", model.ErrConnection, storeID, err)
	}
	creds, err := backend.ParseCredentials(payload)
	if err != nil {
		return nil, d.DatabaseType, fmt.Errorf("%w: reading credentials for store %s: %w", model.ErrConnection, storeID, err)
	}

	h, err := m.open(ctx, d.DatabaseType, creds, m.poolOpts)
	if err != nil {
		if errors.Is(err, model.ErrUnsupportedBackendType) {
			return nil, d.DatabaseType, err
		}
		return nil, d.DatabaseType, fmt.Errorf("%w: opening %s database for store %s: %w", model.ErrConnection, d.DatabaseType, storeID, err)
	}

	if err := h.Probe(ctx); err != nil {
		if closeErr := h.Close(context.WithoutCancel(ctx)); closeErr != nil {
			log.Warn().Err(closeErr).Str("store_id", storeID).Msg("Failed to close handle after probe failure")
		}
		monitoring.Alert("Store database probe failed", map[string]string{
			"store_id":      storeID,
			"database_type": string(d.DatabaseType),
		})
		return nil, d.DatabaseType, fmt.Errorf("%w: probing %s database for store %s: %w", model.ErrConnection, d.DatabaseType, storeID, err)
	}
	return h, d.DatabaseType, nil
}

// GetMasterConnection returns the platform-wide master handle, opening it on
// first use. A failed open is not remembered.
func (m *Manager) GetMasterConnection(ctx context.Context) (backend.Handle, error) {
	m.masterMu.Lock()
	defer m.masterMu.Unlock()

	if m.master != nil {
		return m.master, nil
	}
	if m.openMaster == nil {
		return nil, fmt.Errorf("%w: master database is not configured", model.ErrConnection)
	}

	h, err := m.openMaster(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: opening master database: %w", model.ErrConnection, err)
	}
	m.master = h
	return h, nil
}

// Query runs raw SQL against a relational store database
func (m *Manager) Query(ctx context.Context, storeID, sql string, args ...any) ([]map[string]any, error) {
	h, err := m.GetStoreConnection(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !h.Type().Relational() {
		return nil, fmt.Errorf("%w: raw query against %s store %s", model.ErrUnsupportedOperation, h.Type(), storeID)
	}
	return h.Query(ctx, sql, args...)
}

// TestResult is the outcome of a diagnostic connection test
type TestResult struct {
	Success      bool               `json:"success"`
	Message      string             `json:"message"`
	DatabaseType model.DatabaseType `json:"database_type,omitempty"`
	Latency      time.Duration      `json:"latency"`
}

// TestStoreConnection performs an uncached resolution and reports the outcome
// instead of failing. The descriptor's connection status is updated when the
// store has one.
func (m *Manager) TestStoreConnection(ctx context.Context, storeID string) TestResult {
	if err := validateStoreID(storeID); err != nil {
		return TestResult{Message: err.Error()}
	}

	start := m.now()
	buildCtx, cancel := m.withResolveTimeout(ctx)
	h, dbType, err := m.resolve(buildCtx, storeID)
	cancel()

	result := TestResult{DatabaseType: dbType, Latency: m.now().Sub(start)}
	status := model.ConnectionSuccess
	if err != nil {
		result.Message = err.Error()
		status = model.ConnectionFailed
	} else {
		result.Success = true
		result.Message = fmt.Sprintf("Successfully connected to %s database", dbType)
		if closeErr := h.Close(ctx); closeErr != nil {
			log.Warn().Err(closeErr).Str("store_id", storeID).Msg("Failed to close test connection")
		}
	}

	if dbType != "" {
		if recErr := m.records.RecordDescriptorTest(ctx, storeID, status); recErr != nil {
			log.Warn().Err(recErr).Str("store_id", storeID).Msg("Failed to record connection test result")
		}
	}
	return result
}

// ClearCache evicts the named stores, or every store when none is given.
// Builds already running for an evicted store do not cache their result.
// Evicted handles are closed best-effort.
func (m *Manager) ClearCache(storeIDs ...string) {
	m.mu.Lock()
	var evicted map[string]*cachedConnection
	if len(storeIDs) == 0 {
		m.epoch++
		evicted = m.cache
		m.cache = make(map[string]*cachedConnection)
	} else {
		evicted = make(map[string]*cachedConnection, len(storeIDs))
		for _, id := range storeIDs {
			m.evicts[id]++
			if entry, ok := m.cache[id]; ok {
				evicted[id] = entry
				delete(m.cache, id)
			}
		}
	}
	monitoring.CachedConnections.Set(float64(len(m.cache)))
	m.mu.Unlock()

	for id, entry := range evicted {
		if err := entry.handle.Close(context.Background()); err != nil {
			log.Warn().Err(err).Str("store_id", id).Msg("Failed to close evicted store connection")
		}
	}
}

// CloseAll closes every cached handle and then the master handle. Individual
// failures are logged and do not stop the sweep.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	m.epoch++
	entries := m.cache
	m.cache = make(map[string]*cachedConnection)
	monitoring.CachedConnections.Set(0)
	m.mu.Unlock()

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := entries[id].handle.Close(ctx); err != nil {
			log.Error().Err(err).Str("store_id", id).Msg("Failed to close store connection")
			monitoring.Alert("Store connection close failed", map[string]string{"store_id": id})
			continue
		}
		log.Info().Str("store_id", id).Msg("Closed store connection")
	}

	m.masterMu.Lock()
	master := m.master
	m.master = nil
	m.masterMu.Unlock()
	if master != nil {
		if err := master.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to close master connection")
		}
	}
}

// CachedStore describes one cache entry
type CachedStore struct {
	StoreID      string             `json:"store_id"`
	DatabaseType model.DatabaseType `json:"database_type"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Stats lists the cached stores, sorted by store id
func (m *Manager) Stats() []CachedStore {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]CachedStore, 0, len(m.cache))
	for id, entry := range m.cache {
		out = append(out, CachedStore{StoreID: id, DatabaseType: entry.dbType, CreatedAt: entry.createdAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreID < out[j].StoreID })
	return out
}
