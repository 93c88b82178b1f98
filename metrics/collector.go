package metrics

import (
	"github.com/getpup/glpi-bootstrap"
)

// Readiness targets.
const (
	TargetDatabase = "database"
	TargetWeb      = "web"
)

// Collector wraps metrics and provides helper methods with the project label pre-filled.
type Collector struct {
	project string
}

// NewCollector creates a new Collector for the given compose project.
func NewCollector(project string) *Collector {
	return &Collector{project: project}
}

// ObserveStep records a finished step: its status, its duration and, when
// it failed, a failure under its policy. Skipped steps have no duration.
func (c *Collector) ObserveStep(result bootstrap.StepResult) {
	step := string(result.Step)
	StepsTotal.WithLabelValues(c.project, step, string(result.Status)).Inc()

	switch result.Status {
	case bootstrap.StepStatusSkipped:
		return
	case bootstrap.StepStatusFailed, bootstrap.StepStatusIgnored:
		StepFailuresTotal.WithLabelValues(c.project, step, string(result.Policy)).Inc()
	}
	StepDuration.WithLabelValues(c.project, step).Observe(result.Duration.Seconds())
}

// ObserveRun records a finished run.
func (c *Collector) ObserveRun(run bootstrap.Run) {
	RunsTotal.WithLabelValues(c.project, string(run.Status)).Inc()

	success := 0.0
	if run.Status == bootstrap.RunStatusSucceeded {
		success = 1
	}
	LastRunSuccess.WithLabelValues(c.project).Set(success)

	if !run.FinishedAt.IsZero() {
		LastRunTimestamp.WithLabelValues(c.project).Set(float64(run.FinishedAt.Unix()))
		RunDuration.WithLabelValues(c.project).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	}
}

// AddReadinessAttempts adds n readiness probes made against a target.
func (c *Collector) AddReadinessAttempts(target string, n int) {
	if n <= 0 {
		return
	}
	ReadinessAttemptsTotal.WithLabelValues(c.project, target).Add(float64(n))
}

// AddDownloadBytes adds downloaded archive bytes.
func (c *Collector) AddDownloadBytes(n int64) {
	if n <= 0 {
		return
	}
	ReleaseDownloadBytesTotal.WithLabelValues(c.project).Add(float64(n))
}
