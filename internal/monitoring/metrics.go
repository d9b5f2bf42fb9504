package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	ConnectionResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_connection_resolutions_total",
			Help: "Total number of store connection builds by database type and result",
		},
		[]string{"database_type", "result"},
	)
	ConnectionCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_connection_cache_lookups_total",
			Help: "Store connection cache lookups by result",
		},
		[]string{"result"},
	)
	ConnectionBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "store_connection_build_duration_seconds",
			Help:    "Duration of descriptor fetch, decrypt, connect and probe",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)
	CachedConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_connections_cached",
			Help: "Number of live store connections held in the cache",
		},
	)
	CipherFieldFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_field_failures_total",
			Help: "Sensitive fields left untouched because encryption or decryption failed",
		},
		[]string{"operation"},
	)
	LegacyDoubleEncryption = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credential_legacy_double_encryption_total",
			Help: "Values that needed a second decryption pass",
		},
	)
)

func InitMetrics() {
	collectors := map[string]prometheus.Collector{
		"ConnectionResolutions":   ConnectionResolutions,
		"ConnectionCacheLookups":  ConnectionCacheLookups,
		"ConnectionBuildDuration": ConnectionBuildDuration,
		"CachedConnections":       CachedConnections,
		"CipherFieldFailures":     CipherFieldFailures,
		"LegacyDoubleEncryption":  LegacyDoubleEncryption,
	}
	for name, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			log.Error().Err(err).Msgf("Failed to register %s metric", name)
		}
	}
}
