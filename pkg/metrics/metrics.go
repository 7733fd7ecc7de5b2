package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aerosuite_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aerosuite_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Cache metrics
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aerosuite_cache_hits_total",
			Help: "Total number of cache hits by tier",
		},
		[]string{"tier"},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aerosuite_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	CacheInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aerosuite_cache_invalidations_total",
			Help: "Total number of cache entries invalidated by mode",
		},
		[]string{"mode"},
	)

	CacheDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aerosuite_cache_degraded",
			Help: "Whether the shared cache tier is unavailable (1 = degraded)",
		},
	)

	// Session metrics
	SessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aerosuite_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	SessionsRevoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aerosuite_sessions_revoked_total",
			Help: "Total number of sessions revoked by reason",
		},
		[]string{"reason"},
	)

	// Worker pool metrics
	PoolQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aerosuite_pool_queue_depth",
			Help: "Current number of jobs waiting in the worker pool queue",
		},
	)

	PoolJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aerosuite_pool_jobs_total",
			Help: "Total number of worker pool jobs by outcome",
		},
		[]string{"outcome"},
	)

	PoolWorkerRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aerosuite_pool_worker_restarts_total",
			Help: "Total number of pool worker restarts after a crash",
		},
	)

	// Cluster metrics
	ClusterWorkers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aerosuite_cluster_workers",
			Help: "Number of cluster worker processes by state",
		},
		[]string{"state"},
	)

	ClusterWorkerRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aerosuite_cluster_worker_restarts_total",
			Help: "Total number of worker process restarts",
		},
	)

	// Repository metrics
	SlowQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aerosuite_repository_slow_queries_total",
			Help: "Total number of repository queries exceeding the slow threshold",
		},
		[]string{"collection"},
	)

	// Domain metrics (updated by the collector)
	InspectionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aerosuite_inspections_total",
			Help: "Total number of inspections by status",
		},
		[]string{"status"},
	)

	ComponentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aerosuite_components_total",
			Help: "Total number of components by status",
		},
		[]string{"status"},
	)

	CustomersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aerosuite_customers_total",
			Help: "Total number of customers",
		},
	)

	// ML serving metrics
	InferenceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aerosuite_inference_requests_total",
			Help: "Total number of inference requests by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	InferenceQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aerosuite_inference_queue_depth",
			Help: "Current depth of the per-model inference queue",
		},
		[]string{"model"},
	)

	InferenceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aerosuite_inference_latency_seconds",
			Help:    "Inference latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	DriftScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aerosuite_drift_score",
			Help: "Latest drift score by model and feature",
		},
		[]string{"model", "feature"},
	)

	// Autoscaling metrics
	AutoscaleIntents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aerosuite_autoscale_intents_total",
			Help: "Total number of scaling intents emitted by direction",
		},
		[]string{"direction"},
	)
)

func init() {
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CacheInvalidations)
	prometheus.MustRegister(CacheDegraded)
	prometheus.MustRegister(SessionsCreated)
	prometheus.MustRegister(SessionsRevoked)
	prometheus.MustRegister(PoolQueueDepth)
	prometheus.MustRegister(PoolJobsTotal)
	prometheus.MustRegister(PoolWorkerRestarts)
	prometheus.MustRegister(ClusterWorkers)
	prometheus.MustRegister(ClusterWorkerRestarts)
	prometheus.MustRegister(SlowQueries)
	prometheus.MustRegister(InspectionsTotal)
	prometheus.MustRegister(ComponentsTotal)
	prometheus.MustRegister(CustomersTotal)
	prometheus.MustRegister(InferenceRequestsTotal)
	prometheus.MustRegister(InferenceQueueDepth)
	prometheus.MustRegister(InferenceLatency)
	prometheus.MustRegister(DriftScore)
	prometheus.MustRegister(AutoscaleIntents)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
