package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/getpup/glpi-bootstrap"
)

// MockStore is a configurable mock implementation of Store for use in tests.
// It tracks method calls and lets tests inject return values and errors.
type MockStore struct {
	mu sync.RWMutex

	// CreateRunFunc is called by CreateRun if set.
	CreateRunFunc func(ctx context.Context, project string) (bootstrap.Run, error)

	// RecordStepFunc is called by RecordStep if set.
	RecordStepFunc func(ctx context.Context, runID string, result bootstrap.StepResult) error

	// FinishRunFunc is called by FinishRun if set.
	FinishRunFunc func(ctx context.Context, run bootstrap.Run) error

	// GetRunFunc is called by GetRun if set.
	GetRunFunc func(ctx context.Context, runID string) (bootstrap.Run, error)

	// ListRunsFunc is called by ListRuns if set.
	ListRunsFunc func(ctx context.Context, limit int) ([]bootstrap.Run, error)

	// Call tracking
	CreateRunCalls  []string
	RecordStepCalls []RecordStepCall
	FinishRunCalls  []bootstrap.Run
	GetRunCalls     []string
	ListRunsCalls   []int
}

// RecordStepCall records the parameters of a single RecordStep call.
type RecordStepCall struct {
	RunID  string
	Result bootstrap.StepResult
}

// Compile-time check that MockStore implements Store.
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new mock store.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// CreateRun implements Store. Without CreateRunFunc it returns a running
// run with a fresh ID.
func (m *MockStore) CreateRun(ctx context.Context, project string) (bootstrap.Run, error) {
	m.mu.Lock()
	m.CreateRunCalls = append(m.CreateRunCalls, project)
	m.mu.Unlock()

	if m.CreateRunFunc != nil {
		return m.CreateRunFunc(ctx, project)
	}

	return bootstrap.Run{
		ID:        uuid.New().String(),
		Project:   project,
		Status:    bootstrap.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}, nil
}

// RecordStep implements Store.
func (m *MockStore) RecordStep(ctx context.Context, runID string, result bootstrap.StepResult) error {
	m.mu.Lock()
	m.RecordStepCalls = append(m.RecordStepCalls, RecordStepCall{RunID: runID, Result: result})
	m.mu.Unlock()

	if m.RecordStepFunc != nil {
		return m.RecordStepFunc(ctx, runID, result)
	}

	return nil
}

// FinishRun implements Store.
func (m *MockStore) FinishRun(ctx context.Context, run bootstrap.Run) error {
	m.mu.Lock()
	m.FinishRunCalls = append(m.FinishRunCalls, run)
	m.mu.Unlock()

	if m.FinishRunFunc != nil {
		return m.FinishRunFunc(ctx, run)
	}

	return nil
}

// GetRun implements Store.
func (m *MockStore) GetRun(ctx context.Context, runID string) (bootstrap.Run, error) {
	m.mu.Lock()
	m.GetRunCalls = append(m.GetRunCalls, runID)
	m.mu.Unlock()

	if m.GetRunFunc != nil {
		return m.GetRunFunc(ctx, runID)
	}

	return bootstrap.Run{}, bootstrap.ErrRunNotFound
}

// ListRuns implements Store.
func (m *MockStore) ListRuns(ctx context.Context, limit int) ([]bootstrap.Run, error) {
	m.mu.Lock()
	m.ListRunsCalls = append(m.ListRunsCalls, limit)
	m.mu.Unlock()

	if m.ListRunsFunc != nil {
		return m.ListRunsFunc(ctx, limit)
	}

	return []bootstrap.Run{}, nil
}

// RecordedSteps returns the step results passed to RecordStep, in order.
func (m *MockStore) RecordedSteps() []bootstrap.StepResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	steps := make([]bootstrap.StepResult, 0, len(m.RecordStepCalls))
	for _, c := range m.RecordStepCalls {
		steps = append(steps, c.Result)
	}
	return steps
}

// Reset clears all call tracking data.
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateRunCalls = nil
	m.RecordStepCalls = nil
	m.FinishRunCalls = nil
	m.GetRunCalls = nil
	m.ListRunsCalls = nil
}
