// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup kinds used as the "kind" label.
const (
	KindPAN      = "pan"
	KindPostcode = "postcode"
)

var (
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "customer_lookups_total",
			Help: "Total number of gateway lookups by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	LookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "customer_lookup_duration_seconds",
			Help:    "Duration of gateway lookups in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	LookupsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "customer_lookups_in_flight",
			Help: "Number of gateway lookups awaiting a result",
		},
		[]string{"kind"},
	)

	StaleResultsDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "customer_stale_lookup_results_total",
			Help: "Lookup results dropped because a newer request superseded them",
		},
		[]string{"kind", "scope"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "customer_lookup_cache_total",
			Help: "Lookup cache reads by kind and result (hit, miss, error)",
		},
		[]string{"kind", "result"},
	)

	CustomersCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "customers_committed_total",
			Help: "Customers committed to the store by operation",
		},
		[]string{"operation"},
	)

	CustomersDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "customers_deleted_total",
			Help: "Customers removed from the store",
		},
	)

	SubmissionsBlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "customer_form_submissions_blocked_total",
			Help: "Form submissions refused by validation",
		},
		[]string{"mode"},
	)

	FormsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "customer_forms_open",
			Help: "Form sessions currently held by the registry",
		},
	)

	FormsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "customer_forms_evicted_total",
			Help: "Closed or idle form sessions evicted to make room",
		},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)
)
