package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReconcilePasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commandsync_reconcile_passes_total",
		Help: "Total number of reconciliation passes",
	}, []string{"scope", "status"})

	ReconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "commandsync_reconcile_duration_seconds",
		Help:    "Duration of reconciliation passes",
		Buckets: prometheus.DefBuckets,
	}, []string{"scope"})

	CommandOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commandsync_command_operations_total",
		Help: "Total number of command operations issued during reconciliation",
	}, []string{"scope", "phase", "status"})

	QueuedCommands = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "commandsync_queued_commands",
		Help: "Number of commands waiting in the reconciliation queue",
	}, []string{"scope"})

	CachedCommands = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "commandsync_cached_commands",
		Help: "Number of commands in the known-remote cache",
	}, []string{"scope"})

	DiscordRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "discord_request_duration_seconds",
		Help:    "Duration of Discord REST requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	DiscordRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discord_requests_total",
		Help: "Total number of Discord REST requests",
	}, []string{"method", "endpoint", "status"})
)
