package compose

import (
	"context"
	"io"
	"sync"
)

// MockRunner is a mock implementation of Runner for testing.
type MockRunner struct {
	mu sync.Mutex

	UpFunc   func(ctx context.Context, opts UpOptions) error
	DownFunc func(ctx context.Context, opts DownOptions) error
	ExecFunc func(ctx context.Context, opts ExecOptions) error

	UpCalls   []UpOptions
	DownCalls []DownOptions
	ExecCalls []ExecCall
}

// ExecCall records the parameters of a single Exec call.
// Stdin is drained and kept as bytes so tests can assert on it.
type ExecCall struct {
	Options ExecOptions
	Stdin   []byte
}

// Compile-time check that MockRunner implements Runner.
var _ Runner = (*MockRunner)(nil)

// NewMockRunner creates a new MockRunner with an empty call history.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		UpCalls:   make([]UpOptions, 0),
		DownCalls: make([]DownOptions, 0),
		ExecCalls: make([]ExecCall, 0),
	}
}

// Up records the call and delegates to UpFunc when set.
func (m *MockRunner) Up(ctx context.Context, opts UpOptions) error {
	m.mu.Lock()
	m.UpCalls = append(m.UpCalls, opts)
	m.mu.Unlock()

	if m.UpFunc != nil {
		return m.UpFunc(ctx, opts)
	}
	return nil
}

// Down records the call and delegates to DownFunc when set.
func (m *MockRunner) Down(ctx context.Context, opts DownOptions) error {
	m.mu.Lock()
	m.DownCalls = append(m.DownCalls, opts)
	m.mu.Unlock()

	if m.DownFunc != nil {
		return m.DownFunc(ctx, opts)
	}
	return nil
}

// Exec records the call and delegates to ExecFunc when set.
// Stdin, when present, is read fully before ExecFunc sees the options.
func (m *MockRunner) Exec(ctx context.Context, opts ExecOptions) error {
	call := ExecCall{Options: opts}
	if opts.Stdin != nil {
		data, err := io.ReadAll(opts.Stdin)
		if err != nil {
			return err
		}
		call.Stdin = data
	}

	m.mu.Lock()
	m.ExecCalls = append(m.ExecCalls, call)
	m.mu.Unlock()

	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, opts)
	}
	return nil
}

// ExecCommands returns the command slices of all Exec calls in order.
func (m *MockRunner) ExecCommands() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmds := make([][]string, len(m.ExecCalls))
	for i, c := range m.ExecCalls {
		cmds[i] = c.Options.Command
	}
	return cmds
}

// Reset clears the call history.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpCalls = make([]UpOptions, 0)
	m.DownCalls = make([]DownOptions, 0)
	m.ExecCalls = make([]ExecCall, 0)
}
