// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Contribution metrics
	ContributionsCreated   prometheus.Counter
	ContributionsWithdrawn prometheus.Counter
	DepositsVerified       prometheus.Counter
	DepositsUnverified     prometheus.Counter
	ContributionErrors     *prometheus.CounterVec

	// Launch metrics
	CampaignsLaunched  prometheus.Counter
	LaunchesReverted   prometheus.Counter
	PurchasesExecuted  *prometheus.CounterVec
	CampaignsFailed    prometheus.Counter
	RefundsIssued      prometheus.Counter
	LamportsRefunded   prometheus.Counter

	// Fee metrics
	FeeEventsObserved   prometheus.Counter
	FeeLamportsObserved prometheus.Counter
	FeeClaimsTotal      *prometheus.CounterVec

	// Rate limiting
	RateLimitRejections *prometheus.CounterVec

	// Latency metrics
	OperationDuration *prometheus.HistogramVec
	RPCCallLatency    *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulSweep   prometheus.Gauge
	LastSuccessfulFeeScan prometheus.Gauge
	UptimeSeconds         prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "prooflaunch"
	}

	return &Metrics{
		// Contribution metrics
		ContributionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contributions",
			Name:      "created_total",
			Help:      "Total number of contributions created",
		}),
		ContributionsWithdrawn: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contributions",
			Name:      "withdrawn_total",
			Help:      "Total number of contributions withdrawn early",
		}),
		DepositsVerified: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contributions",
			Name:      "deposits_verified_total",
			Help:      "Total number of deposits verified against the ledger",
		}),
		DepositsUnverified: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contributions",
			Name:      "deposits_unverified_total",
			Help:      "Total number of deposits rejected as unverified",
		}),
		ContributionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contributions",
			Name:      "errors_total",
			Help:      "Total number of contribution operation errors by kind",
		}, []string{"operation", "kind"}),

		// Launch metrics
		CampaignsLaunched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "campaigns_launched_total",
			Help:      "Total number of campaigns that reached live",
		}),
		LaunchesReverted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "reverted_total",
			Help:      "Total number of launch attempts reverted to funded",
		}),
		PurchasesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "purchases_total",
			Help:      "Total number of launch purchases by outcome",
		}, []string{"outcome"}),
		CampaignsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "campaigns_failed_total",
			Help:      "Total number of campaigns failed at deadline",
		}),
		RefundsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "refunds_total",
			Help:      "Total number of deadline refunds issued",
		}),
		LamportsRefunded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "refunded_lamports_total",
			Help:      "Total lamports returned by deadline refunds",
		}),

		// Fee metrics
		FeeEventsObserved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "events_observed_total",
			Help:      "Total number of fee inflow events observed",
		}),
		FeeLamportsObserved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "lamports_observed_total",
			Help:      "Total fee inflow observed in lamports",
		}),
		FeeClaimsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "claims_total",
			Help:      "Total number of fee claims by status",
		}, []string{"status"}),

		// Rate limiting
		RateLimitRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Total number of rate-limited requests by operation",
		}, []string{"operation"}),

		// Latency metrics
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"operation"}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rpc_call_latency_seconds",
			Help:      "Ledger RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Health metrics
		LastSuccessfulSweep: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sweep_timestamp",
			Help:      "Unix timestamp of last successful campaign sweep",
		}),
		LastSuccessfulFeeScan: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_fee_scan_timestamp",
			Help:      "Unix timestamp of last successful fee scan",
		}),
		UptimeSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordContributionCreated increments the contributions created counter.
func RecordContributionCreated() {
	DefaultMetrics.ContributionsCreated.Inc()
	DefaultMetrics.DepositsVerified.Inc()
}

// RecordDepositUnverified increments the unverified deposits counter.
func RecordDepositUnverified() {
	DefaultMetrics.DepositsUnverified.Inc()
}

// RecordWithdrawal increments the withdrawals counter.
func RecordWithdrawal() {
	DefaultMetrics.ContributionsWithdrawn.Inc()
}

// RecordLaunch records a launch outcome.
func RecordLaunch(succeeded, failed int) {
	DefaultMetrics.CampaignsLaunched.Inc()
	DefaultMetrics.PurchasesExecuted.WithLabelValues("success").Add(float64(succeeded))
	DefaultMetrics.PurchasesExecuted.WithLabelValues("failure").Add(float64(failed))
}

// RecordLaunchReverted increments the reverted launches counter.
func RecordLaunchReverted() {
	DefaultMetrics.LaunchesReverted.Inc()
}

// RecordRateLimited increments the rate-limit rejection counter.
func RecordRateLimited(operation string) {
	DefaultMetrics.RateLimitRejections.WithLabelValues(operation).Inc()
}
