package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/getpup/glpi-bootstrap"
	"github.com/getpup/glpi-bootstrap/history"
)

// Store is an in-memory implementation of history.Store.
// It is used in tests and when persistent history is disabled.
type Store struct {
	mu   sync.RWMutex
	runs map[string]bootstrap.Run // runID -> run, steps included
}

// Compile-time check that Store implements history.Store.
var _ history.Store = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		runs: make(map[string]bootstrap.Run),
	}
}

// CreateRun registers a new running run.
func (s *Store) CreateRun(ctx context.Context, project string) (bootstrap.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := bootstrap.Run{
		ID:        uuid.New().String(),
		Project:   project,
		Status:    bootstrap.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.runs[run.ID] = run

	return copyRun(run), nil
}

// RecordStep appends a step result to a run.
// Returns bootstrap.ErrRunNotFound if the run does not exist.
func (s *Store) RecordStep(ctx context.Context, runID string, result bootstrap.StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return bootstrap.ErrRunNotFound
	}

	run.Steps = append(run.Steps, result)
	s.runs[runID] = run

	return nil
}

// FinishRun stores the final state of a run, keeping its recorded steps.
// Returns bootstrap.ErrRunNotFound if the run does not exist.
func (s *Store) FinishRun(ctx context.Context, run bootstrap.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.runs[run.ID]
	if !ok {
		return bootstrap.ErrRunNotFound
	}

	stored.Status = run.Status
	stored.ReleaseVersion = run.ReleaseVersion
	stored.FinishedAt = run.FinishedAt
	stored.Error = run.Error
	s.runs[run.ID] = stored

	return nil
}

// GetRun returns a run with its steps.
// Returns bootstrap.ErrRunNotFound if the run does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (bootstrap.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return bootstrap.Run{}, bootstrap.ErrRunNotFound
	}

	return copyRun(run), nil
}

// ListRuns returns the most recent runs first, without steps.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]bootstrap.Run, error) {
	if limit <= 0 {
		limit = history.DefaultListLimit
	}

	s.mu.RLock()
	runs := make([]bootstrap.Run, 0, len(s.runs))
	for _, run := range s.runs {
		run.Steps = nil
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func copyRun(run bootstrap.Run) bootstrap.Run {
	if run.Steps != nil {
		run.Steps = append([]bootstrap.StepResult(nil), run.Steps...)
	}
	return run
}
