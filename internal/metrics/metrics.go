package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP request metrics for the in-job status API
var (
	// HTTPRequestDuration tracks the duration of HTTP requests
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests by method, path, and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestsTotal counts the total number of HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)
)

// Process lifecycle metrics
var (
	// ProcessesLaunched counts processes started, by mode
	ProcessesLaunched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_processes_launched_total",
			Help: "Total number of processes launched by serving mode",
		},
		[]string{"mode"},
	)

	// ProcessesFailed counts processes that exited unexpectedly, by mode
	ProcessesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_processes_failed_total",
			Help: "Total number of processes that exited unexpectedly by serving mode",
		},
		[]string{"mode"},
	)

	// ProcessesTerminated counts processes stopped during teardown, by mode
	ProcessesTerminated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_processes_terminated_total",
			Help: "Total number of processes terminated during teardown by serving mode",
		},
		[]string{"mode"},
	)

	// ProcessesActive tracks live processes by mode and state
	ProcessesActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bench_processes_active",
			Help: "Number of registered processes by serving mode and state",
		},
		[]string{"mode", "state"},
	)

	// MonitorChecks counts health sweeps of the process registry
	MonitorChecks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bench_monitor_checks_total",
			Help: "Total number of registry health sweeps",
		},
	)

	// ReadinessWaitDuration tracks how long endpoints take to become ready
	ReadinessWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bench_readiness_wait_duration_seconds",
			Help:    "Time from launch to readiness by serving mode",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min, model loading can be slow
		},
		[]string{"mode"},
	)

	// TeardownDuration tracks how long full job teardown takes
	TeardownDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bench_teardown_duration_seconds",
			Help:    "Duration of full job teardown",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// LaunchFailures counts launch attempts that never produced a running process
	LaunchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_launch_failures_total",
			Help: "Total number of failed launch attempts by serving mode",
		},
		[]string{"mode"},
	)

	// StatusReportErrors counts failed pushes to the external status endpoint
	StatusReportErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bench_status_report_errors_total",
			Help: "Total number of failed status report pushes",
		},
	)
)

// Helper functions for common metric operations

// RecordLaunched increments the launched counter for a mode
func RecordLaunched(mode string) {
	ProcessesLaunched.WithLabelValues(mode).Inc()
}

// RecordFailed increments the failure counter for a mode
func RecordFailed(mode string) {
	ProcessesFailed.WithLabelValues(mode).Inc()
}

// RecordTerminated increments the terminated counter for a mode
func RecordTerminated(mode string) {
	ProcessesTerminated.WithLabelValues(mode).Inc()
}

// UpdateProcessState moves a process between state gauges
func UpdateProcessState(mode, oldState, newState string) {
	if oldState != "" {
		ProcessesActive.WithLabelValues(mode, oldState).Dec()
	}
	if newState != "" {
		ProcessesActive.WithLabelValues(mode, newState).Inc()
	}
}

// RecordMonitorCheck increments the health sweep counter
func RecordMonitorCheck() {
	MonitorChecks.Inc()
}

// RecordReadinessWait records how long an endpoint took to become ready
func RecordReadinessWait(mode string, duration time.Duration) {
	ReadinessWaitDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordTeardown records the duration of a full teardown
func RecordTeardown(duration time.Duration) {
	TeardownDuration.Observe(duration.Seconds())
}

// RecordLaunchFailure increments the launch failure counter for a mode
func RecordLaunchFailure(mode string) {
	LaunchFailures.WithLabelValues(mode).Inc()
}

// RecordStatusReportError increments the status report error counter
func RecordStatusReportError() {
	StatusReportErrors.Inc()
}

// RecordHTTPRequest records the duration and increments the counter for an HTTP request
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}
