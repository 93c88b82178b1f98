package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RunsTotal tracks finished bootstrap runs by outcome.
var RunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "glpi_bootstrap_runs_total",
		Help: "Total bootstrap runs by final status",
	},
	[]string{"project", "status"},
)

// StepsTotal tracks executed steps by outcome.
var StepsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "glpi_bootstrap_steps_total",
		Help: "Total bootstrap steps by status",
	},
	[]string{"project", "step", "status"},
)

// StepFailuresTotal tracks failed steps, fatal or ignored.
var StepFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "glpi_bootstrap_step_failures_total",
		Help: "Total failed bootstrap steps by failure policy",
	},
	[]string{"project", "step", "policy"},
)

// ReadinessAttemptsTotal tracks readiness probes made while waiting for a target.
var ReadinessAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "glpi_bootstrap_readiness_attempts_total",
		Help: "Total readiness probes",
	},
	[]string{"project", "target"},
)

// ReleaseDownloadBytesTotal tracks downloaded release archive bytes.
var ReleaseDownloadBytesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "glpi_bootstrap_release_download_bytes_total",
		Help: "Total bytes of release archives downloaded",
	},
	[]string{"project"},
)

// LastRunSuccess is 1 when the latest run succeeded and 0 otherwise.
var LastRunSuccess = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "glpi_bootstrap_last_run_success",
		Help: "Whether the latest bootstrap run succeeded (1) or failed (0)",
	},
	[]string{"project"},
)

// LastRunTimestamp is the Unix time the latest run finished.
var LastRunTimestamp = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "glpi_bootstrap_last_run_timestamp_seconds",
		Help: "Unix time the latest bootstrap run finished",
	},
	[]string{"project"},
)

// RunDuration tracks the duration of whole runs.
var RunDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "glpi_bootstrap_run_duration_seconds",
		Help:    "Duration of bootstrap runs",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
	},
	[]string{"project"},
)

// StepDuration tracks the duration of single steps.
var StepDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "glpi_bootstrap_step_duration_seconds",
		Help:    "Duration of bootstrap steps",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	},
	[]string{"project", "step"},
)
