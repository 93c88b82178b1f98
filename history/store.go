// Package history persists bootstrap runs and the outcome of each step.
package history

import (
	"context"

	"github.com/getpup/glpi-bootstrap"
)

// DefaultListLimit is the number of runs ListRuns returns when no limit is given.
const DefaultListLimit = 20

// Store provides persistence for bootstrap runs.
// Implementations must be safe for concurrent access.
type Store interface {
	// CreateRun registers a new run for project in the running state and
	// returns it with its generated ID and start time.
	CreateRun(ctx context.Context, project string) (bootstrap.Run, error)

	// RecordStep appends a step result to a run.
	// Returns bootstrap.ErrRunNotFound if the run does not exist.
	RecordStep(ctx context.Context, runID string, result bootstrap.StepResult) error

	// FinishRun stores the final status, release version, finish time and
	// error of a run. Steps are not touched.
	// Returns bootstrap.ErrRunNotFound if the run does not exist.
	FinishRun(ctx context.Context, run bootstrap.Run) error

	// GetRun returns a run with its steps in execution order.
	// Returns bootstrap.ErrRunNotFound if the run does not exist.
	GetRun(ctx context.Context, runID string) (bootstrap.Run, error)

	// ListRuns returns the most recent runs first, without their steps.
	// A limit of zero or less means DefaultListLimit.
	ListRuns(ctx context.Context, limit int) ([]bootstrap.Run, error)
}
