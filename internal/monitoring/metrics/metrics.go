package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChecksTotal tracks executed health checks per chain and status
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibpmon_checks_total",
			Help: "Total number of health checks executed",
		},
		[]string{"chain", "status"},
	)

	// CheckDuration tracks the primary probe response time
	CheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ibpmon_check_duration_seconds",
			Help:    "Primary probe response time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain"},
	)

	// CheckRetriesTotal tracks retry attempts beyond the first
	CheckRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibpmon_check_retries_total",
			Help: "Total number of health check retry attempts",
		},
		[]string{"chain"},
	)

	// GossipMessagesTotal tracks inbound gossip messages per topic
	GossipMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibpmon_gossip_messages_total",
			Help: "Total number of gossip messages received",
		},
		[]string{"topic"},
	)

	// GossipDecodeErrorsTotal tracks malformed gossip payloads
	GossipDecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibpmon_gossip_decode_errors_total",
			Help: "Total number of gossip payloads that failed to decode",
		},
		[]string{"topic"},
	)

	// AlertsEmittedTotal tracks enqueued alert jobs per rule code
	AlertsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibpmon_alerts_emitted_total",
			Help: "Total number of alert jobs enqueued",
		},
		[]string{"code"},
	)

	// HealthChecksPruned tracks rows removed by the retention pruner
	HealthChecksPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ibpmon_health_checks_pruned_total",
			Help: "Total number of health check rows pruned",
		},
	)

	// DBConnectionPoolUsage tracks postgres pool utilization
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ibpmon_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)

	// ConnectedPeers tracks the current overlay size
	ConnectedPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ibpmon_connected_peers",
			Help: "Number of connected gossip peers",
		},
	)
)
