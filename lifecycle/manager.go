// Package lifecycle tracks a single bootstrap run: it registers the run in
// the history store, times and records every step, and finalises the run.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/getpup/pupsourcing/es"
	"github.com/juju/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/getpup/glpi-bootstrap"
	"github.com/getpup/glpi-bootstrap/history"
	"github.com/getpup/glpi-bootstrap/metrics"
)

// TracerName is the instrumentation name used for run and step spans.
const TracerName = "github.com/getpup/glpi-bootstrap"

// Config holds configuration for the lifecycle Manager.
type Config struct {
	// Store persists the run and its steps (required).
	Store history.Store

	// Project is the compose project the run deploys (default: "glpi").
	Project string

	// Metrics receives step and run observations (optional).
	Metrics *metrics.Collector

	// Tracer creates one span per step (default: the global tracer provider).
	Tracer trace.Tracer

	// Clock is the time source (default: wall clock).
	Clock clock.Clock

	// Logger is for observability (optional). Loggers that also implement
	// Warner receive best-effort failures at warning level; others receive
	// them through Error.
	Logger es.Logger
}

// Warner is implemented by loggers that have a warning level.
type Warner interface {
	Warn(ctx context.Context, msg string, keyvals ...interface{})
}

// Manager records the progress of one run.
// It is not safe for concurrent use; steps run strictly in sequence.
type Manager struct {
	config Config
	run    bootstrap.Run
}

// New creates a new lifecycle Manager with the given configuration.
func New(cfg Config) *Manager {
	if cfg.Project == "" {
		cfg.Project = "glpi"
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(TracerName)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}

	return &Manager{
		config: cfg,
	}
}

// Start registers a new run in the store and keeps it as the current run.
func (m *Manager) Start(ctx context.Context, releaseVersion string) (bootstrap.Run, error) {
	run, err := m.config.Store.CreateRun(ctx, m.config.Project)
	if err != nil {
		return bootstrap.Run{}, fmt.Errorf("failed to create run: %w", err)
	}
	run.ReleaseVersion = releaseVersion
	m.run = run

	if m.config.Logger != nil {
		m.config.Logger.Info(ctx, "bootstrap run started", "runID", run.ID, "project", run.Project, "release", releaseVersion)
	}
	return run, nil
}

// SetReleaseVersion replaces the requested version with the resolved tag.
func (m *Manager) SetReleaseVersion(version string) {
	m.run.ReleaseVersion = version
}

// Execute runs fn as step under policy, records the result and returns the
// error only when the step failed under PolicyFatal. A best-effort failure is
// logged and recorded as ignored.
func (m *Manager) Execute(ctx context.Context, step bootstrap.Step, policy bootstrap.Policy, fn func(ctx context.Context) error) error {
	ctx, span := m.config.Tracer.Start(ctx, "step "+string(step), trace.WithAttributes(
		attribute.String("glpi.step", string(step)),
		attribute.String("glpi.policy", string(policy)),
		attribute.String("glpi.run_id", m.run.ID),
	))
	defer span.End()

	if m.config.Logger != nil {
		m.config.Logger.Debug(ctx, "step started", "runID", m.run.ID, "step", step)
	}

	started := m.config.Clock.Now()
	err := fn(ctx)
	result := bootstrap.StepResult{
		Step:      step,
		Policy:    policy,
		Status:    bootstrap.StepStatusSucceeded,
		StartedAt: started,
		Duration:  m.config.Clock.Now().Sub(started),
	}

	if err != nil {
		result.Error = err.Error()
		result.Status = bootstrap.StepStatusFailed
		if policy == bootstrap.PolicyBestEffort && !errors.Is(err, context.Canceled) {
			result.Status = bootstrap.StepStatusIgnored
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("glpi.status", string(result.Status)))

	m.record(ctx, result)

	if result.Status == bootstrap.StepStatusFailed {
		return fmt.Errorf("step %s failed: %w", step, err)
	}
	return nil
}

// Skip records step as skipped without running anything.
func (m *Manager) Skip(ctx context.Context, step bootstrap.Step, policy bootstrap.Policy) {
	m.record(ctx, bootstrap.StepResult{
		Step:      step,
		Policy:    policy,
		Status:    bootstrap.StepStatusSkipped,
		StartedAt: m.config.Clock.Now(),
	})
}

func (m *Manager) warn(ctx context.Context, msg string, keyvals ...interface{}) {
	if w, ok := m.config.Logger.(Warner); ok {
		w.Warn(ctx, msg, keyvals...)
		return
	}
	m.config.Logger.Error(ctx, "warning: "+msg, keyvals...)
}

func (m *Manager) record(ctx context.Context, result bootstrap.StepResult) {
	m.run.Steps = append(m.run.Steps, result)

	if m.config.Metrics != nil {
		m.config.Metrics.ObserveStep(result)
	}

	if m.config.Logger != nil {
		kv := []interface{}{"runID", m.run.ID, "step", result.Step, "status", result.Status, "duration", result.Duration}
		switch result.Status {
		case bootstrap.StepStatusFailed:
			m.config.Logger.Error(ctx, "step failed", append(kv, "error", result.Error)...)
		case bootstrap.StepStatusIgnored:
			m.warn(ctx, "best-effort step failed, continuing", append(kv, "error", result.Error)...)
		default:
			m.config.Logger.Info(ctx, "step finished", kv...)
		}
	}

	// History is a record of the run, never a reason to stop it.
	if err := m.config.Store.RecordStep(context.WithoutCancel(ctx), m.run.ID, result); err != nil && m.config.Logger != nil {
		m.config.Logger.Error(ctx, "failed to record step", "runID", m.run.ID, "step", result.Step, "error", err)
	}
}

// Finish marks the run succeeded when runErr is nil and failed otherwise,
// persists it and returns the final run. The returned error reports a
// failure to persist the run, not runErr.
func (m *Manager) Finish(ctx context.Context, runErr error) (bootstrap.Run, error) {
	m.run.FinishedAt = m.config.Clock.Now()
	m.run.Status = bootstrap.RunStatusSucceeded
	m.run.Error = ""
	if runErr != nil {
		m.run.Status = bootstrap.RunStatusFailed
		m.run.Error = runErr.Error()
	}

	if m.config.Metrics != nil {
		m.config.Metrics.ObserveRun(m.run)
	}

	if m.config.Logger != nil {
		elapsed := m.run.FinishedAt.Sub(m.run.StartedAt)
		if runErr != nil {
			m.config.Logger.Error(ctx, "bootstrap run failed", "runID", m.run.ID, "elapsed", elapsed, "error", runErr)
		} else {
			m.config.Logger.Info(ctx, "bootstrap run succeeded", "runID", m.run.ID, "release", m.run.ReleaseVersion, "elapsed", elapsed)
		}
	}

	// A cancelled run is still finalised.
	if err := m.config.Store.FinishRun(context.WithoutCancel(ctx), m.run); err != nil {
		return m.Run(), fmt.Errorf("failed to finish run: %w", err)
	}
	return m.Run(), nil
}

// Run returns a copy of the current run.
func (m *Manager) Run() bootstrap.Run {
	run := m.run
	run.Steps = append([]bootstrap.StepResult(nil), m.run.Steps...)
	return run
}

// RunID returns the current run ID.
func (m *Manager) RunID() string {
	return m.run.ID
}
