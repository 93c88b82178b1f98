package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/getpup/glpi-bootstrap"
)

func TestNewCollector_CreatesCollectorWithProject(t *testing.T) {
	collector := NewCollector("test-project")

	assert.NotNil(t, collector)
	assert.Equal(t, "test-project", collector.project)
}

func TestCollector_ObserveStepSucceeded(t *testing.T) {
	collector := NewCollector("test-coll-1")

	collector.ObserveStep(bootstrap.StepResult{
		Step:     bootstrap.StepUpdate,
		Policy:   bootstrap.PolicyFatal,
		Status:   bootstrap.StepStatusSucceeded,
		Duration: 3 * time.Second,
	})

	assert.Equal(t, float64(1), testutil.ToFloat64(StepsTotal.WithLabelValues("test-coll-1", "update", "succeeded")))
	assert.Equal(t, float64(0), testutil.ToFloat64(StepFailuresTotal.WithLabelValues("test-coll-1", "update", "fatal")))
}

func TestCollector_ObserveStepIgnoredCountsAsFailure(t *testing.T) {
	collector := NewCollector("test-coll-2")

	collector.ObserveStep(bootstrap.StepResult{
		Step:   bootstrap.StepCheckRequirements,
		Policy: bootstrap.PolicyBestEffort,
		Status: bootstrap.StepStatusIgnored,
	})

	assert.Equal(t, float64(1), testutil.ToFloat64(StepFailuresTotal.WithLabelValues("test-coll-2", "check_requirements", "best_effort")))
	assert.Equal(t, float64(1), testutil.ToFloat64(StepsTotal.WithLabelValues("test-coll-2", "check_requirements", "ignored")))
}

func TestCollector_ObserveRun(t *testing.T) {
	collector := NewCollector("test-coll-3")
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	collector.ObserveRun(bootstrap.Run{
		Status:     bootstrap.RunStatusSucceeded,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
	})

	assert.Equal(t, float64(1), testutil.ToFloat64(RunsTotal.WithLabelValues("test-coll-3", "succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(LastRunSuccess.WithLabelValues("test-coll-3")))
	assert.Equal(t, float64(started.Add(90*time.Second).Unix()), testutil.ToFloat64(LastRunTimestamp.WithLabelValues("test-coll-3")))

	collector.ObserveRun(bootstrap.Run{Status: bootstrap.RunStatusFailed, StartedAt: started, FinishedAt: started.Add(time.Second)})

	assert.Equal(t, float64(0), testutil.ToFloat64(LastRunSuccess.WithLabelValues("test-coll-3")))
	assert.Equal(t, float64(1), testutil.ToFloat64(RunsTotal.WithLabelValues("test-coll-3", "failed")))
}

func TestCollector_AddReadinessAttempts(t *testing.T) {
	collector := NewCollector("test-coll-4")

	collector.AddReadinessAttempts(TargetDatabase, 2)
	collector.AddReadinessAttempts(TargetWeb, 1)
	collector.AddReadinessAttempts(TargetWeb, 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(ReadinessAttemptsTotal.WithLabelValues("test-coll-4", "database")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ReadinessAttemptsTotal.WithLabelValues("test-coll-4", "web")))
}

func TestCollector_AddDownloadBytes(t *testing.T) {
	collector := NewCollector("test-coll-5")

	collector.AddDownloadBytes(62914560)
	collector.AddDownloadBytes(0)
	collector.AddDownloadBytes(-5)

	assert.Equal(t, float64(62914560), testutil.ToFloat64(ReleaseDownloadBytesTotal.WithLabelValues("test-coll-5")))
}
