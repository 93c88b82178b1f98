package bootstrap

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatus_Constants(t *testing.T) {
	t.Run("RunStatusRunning equals running", func(t *testing.T) {
		assert.Equal(t, RunStatus("running"), RunStatusRunning)
	})

	t.Run("RunStatusSucceeded equals succeeded", func(t *testing.T) {
		assert.Equal(t, RunStatus("succeeded"), RunStatusSucceeded)
	})

	t.Run("RunStatusFailed equals failed", func(t *testing.T) {
		assert.Equal(t, RunStatus("failed"), RunStatusFailed)
	})
}

func TestPolicy_Constants(t *testing.T) {
	assert.Equal(t, Policy("fatal"), PolicyFatal)
	assert.Equal(t, Policy("best_effort"), PolicyBestEffort)
}

func TestRun_ZeroValues(t *testing.T) {
	var run Run

	assert.Equal(t, "", run.ID)
	assert.Equal(t, RunStatus(""), run.Status)
	assert.True(t, run.StartedAt.IsZero())
	assert.True(t, run.FinishedAt.IsZero())
	assert.Empty(t, run.Steps)
}

func TestRun_StepLookup(t *testing.T) {
	run := Run{
		Steps: []StepResult{
			{Step: StepReset, Status: StepStatusSucceeded},
			{Step: StepCheckRequirements, Status: StepStatusIgnored, Error: "php too old"},
		},
	}

	t.Run("finds recorded step", func(t *testing.T) {
		res, ok := run.Step(StepCheckRequirements)
		require.True(t, ok)
		assert.Equal(t, StepStatusIgnored, res.Status)
		assert.Equal(t, "php too old", res.Error)
	})

	t.Run("missing step", func(t *testing.T) {
		_, ok := run.Step(StepUpdate)
		assert.False(t, ok)
	})
}

func TestInstallMode_Valid(t *testing.T) {
	assert.True(t, InstallModeConfigure.Valid())
	assert.True(t, InstallModeInstall.Valid())
	assert.False(t, InstallMode("upgrade").Valid())
	assert.False(t, InstallMode("").Valid())
}

func TestNotReadyError_MatchesSentinel(t *testing.T) {
	last := errors.New("connection refused")
	err := fmt.Errorf("wait: %w", &NotReadyError{Attempts: 4, Elapsed: 1500 * time.Millisecond, Last: last})

	assert.ErrorIs(t, err, ErrDeploymentNotReady)
	assert.ErrorIs(t, err, last)

	var notReady *NotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, 4, notReady.Attempts)
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Contains(t, err.Error(), "connection refused")
}
