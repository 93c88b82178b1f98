// Package recreate implements the destructive bootstrap strategy: every run
// tears the previous deployment down, wipes its state and builds a fresh one
// from a release archive.
package recreate

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/getpup/pupsourcing/es"
	"github.com/juju/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/getpup/glpi-bootstrap"
	"github.com/getpup/glpi-bootstrap/compose"
	"github.com/getpup/glpi-bootstrap/history"
	"github.com/getpup/glpi-bootstrap/history/memory"
	"github.com/getpup/glpi-bootstrap/lifecycle"
	"github.com/getpup/glpi-bootstrap/metrics"
	"github.com/getpup/glpi-bootstrap/release"
	"github.com/getpup/glpi-bootstrap/workspace"
)

// Resolver turns a requested version into a downloadable release.
type Resolver interface {
	Resolve(ctx context.Context, version string) (bootstrap.Release, error)
}

// Fetcher downloads a release and unpacks it into dir.
type Fetcher interface {
	Fetch(ctx context.Context, rel bootstrap.Release, dir string) (release.Result, error)
}

// Waiter blocks until the database accepts connections and returns the
// number of probes made.
type Waiter interface {
	Wait(ctx context.Context) (int, error)
}

// Provisioner creates the database and loads the seed dump.
type Provisioner interface {
	CreateDatabase(ctx context.Context) error
	LoadSeed(ctx context.Context, path string) error
}

// Application drives GLPI's console inside the web container.
type Application interface {
	ChownWebapp(ctx context.Context) error
	CheckRequirements(ctx context.Context) error
	EnableMaintenance(ctx context.Context) error
	Setup(ctx context.Context, mode bootstrap.InstallMode) error
	Update(ctx context.Context) error
	DisableMaintenance(ctx context.Context) error
}

// Verifier checks the running deployment from the outside.
type Verifier interface {
	WaitHTTP(ctx context.Context) (int, error)
	CheckAPI(ctx context.Context) error
}

// Config holds configuration for the Recreate orchestrator.
type Config struct {
	// Project is the compose project name (default: "glpi").
	Project string

	// Layout is the on-disk deployment layout (required: Layout.Root).
	Layout workspace.Layout

	// ReleaseVersion is a release tag or "latest" (default: "latest").
	ReleaseVersion string

	// Resolver resolves ReleaseVersion (required).
	Resolver Resolver

	// Fetcher downloads and unpacks the release (required).
	Fetcher Fetcher

	// Compose drives the container group (required).
	Compose compose.Runner

	// ComposeFile, when set, is rendered to Layout.ComposeFile before the
	// containers start. When nil an existing file is used as is.
	ComposeFile *compose.File

	// Rebuild forces an image rebuild and container recreation on start.
	Rebuild bool

	// Waiter waits for database readiness (required).
	Waiter Waiter

	// Provisioner creates and seeds the database (required).
	Provisioner Provisioner

	// Application runs GLPI's console commands (required).
	Application Application

	// InstallMode selects db:configure or db:install (default: configure).
	InstallMode bootstrap.InstallMode

	// ChownWebapp hands the unpacked tree to the service user before the
	// console commands run.
	ChownWebapp bool

	// MaintenanceDisablePolicy is the failure policy of the final
	// maintenance:disable command (default: fatal).
	MaintenanceDisablePolicy bootstrap.Policy

	// Verifier checks the deployment after the update (optional).
	Verifier Verifier

	// Store persists the run history (default: in-memory store).
	Store history.Store

	// Tracer creates the run and step spans (default: global tracer provider).
	Tracer trace.Tracer

	// Clock is the time source (default: wall clock).
	Clock clock.Clock

	// Logger is for observability (optional).
	Logger es.Logger

	// MetricsEnabled enables Prometheus metrics collection (default: true).
	// Set to false explicitly to disable metrics.
	MetricsEnabled *bool
}

// Orchestrator runs the bootstrap sequence.
type Orchestrator struct {
	config    Config
	collector *metrics.Collector
}

// Compile-time check that Orchestrator implements bootstrap.Bootstrapper.
var _ bootstrap.Bootstrapper = (*Orchestrator)(nil)

// New creates a new Orchestrator with the given configuration.
// Applies default values for zero-valued optional fields.
func New(cfg Config) *Orchestrator {
	if cfg.Project == "" {
		cfg.Project = "glpi"
	}
	cfg.Layout = cfg.Layout.WithDefaults()
	if cfg.ReleaseVersion == "" {
		cfg.ReleaseVersion = release.Latest
	}
	if cfg.InstallMode == "" {
		cfg.InstallMode = bootstrap.InstallModeConfigure
	}
	if cfg.MaintenanceDisablePolicy == "" {
		cfg.MaintenanceDisablePolicy = bootstrap.PolicyFatal
	}
	if cfg.Store == nil {
		cfg.Store = memory.New()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(lifecycle.TracerName)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}

	var collector *metrics.Collector
	metricsEnabled := true
	if cfg.MetricsEnabled != nil {
		metricsEnabled = *cfg.MetricsEnabled
	}
	if metricsEnabled {
		collector = metrics.NewCollector(cfg.Project)
	}

	return &Orchestrator{
		config:    cfg,
		collector: collector,
	}
}

func (o *Orchestrator) validate() error {
	switch {
	case o.config.Resolver == nil:
		return errors.New("resolver is required")
	case o.config.Fetcher == nil:
		return errors.New("fetcher is required")
	case o.config.Compose == nil:
		return errors.New("compose runner is required")
	case o.config.Waiter == nil:
		return errors.New("waiter is required")
	case o.config.Provisioner == nil:
		return errors.New("provisioner is required")
	case o.config.Application == nil:
		return errors.New("application is required")
	case !o.config.InstallMode.Valid():
		return fmt.Errorf("invalid install mode %q", o.config.InstallMode)
	}
	switch o.config.MaintenanceDisablePolicy {
	case bootstrap.PolicyFatal, bootstrap.PolicyBestEffort:
	default:
		return fmt.Errorf("invalid maintenance disable policy %q", o.config.MaintenanceDisablePolicy)
	}
	return nil
}

// Run executes the bootstrap sequence once. The steps run strictly in order;
// the first fatal failure ends the run without rollback.
// The returned Run is populated even when an error is returned, unless the
// run could not be registered at all.
func (o *Orchestrator) Run(ctx context.Context) (bootstrap.Run, error) {
	if err := o.validate(); err != nil {
		return bootstrap.Run{}, err
	}

	manager := lifecycle.New(lifecycle.Config{
		Store:   o.config.Store,
		Project: o.config.Project,
		Metrics: o.collector,
		Tracer:  o.config.Tracer,
		Clock:   o.config.Clock,
		Logger:  o.config.Logger,
	})

	ctx, span := o.config.Tracer.Start(ctx, "bootstrap run", trace.WithAttributes(
		attribute.String("glpi.project", o.config.Project),
		attribute.String("glpi.release", o.config.ReleaseVersion),
	))
	defer span.End()

	if _, err := manager.Start(ctx, o.config.ReleaseVersion); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return bootstrap.Run{}, err
	}
	span.SetAttributes(attribute.String("glpi.run_id", manager.RunID()))

	runErr := o.steps(ctx, manager)

	run, err := manager.Finish(ctx, runErr)
	if err != nil && o.config.Logger != nil {
		o.config.Logger.Error(ctx, "failed to persist run", "runID", run.ID, "error", err)
	}

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		return run, runErr
	}
	return run, nil
}

func (o *Orchestrator) steps(ctx context.Context, m *lifecycle.Manager) error {
	fatal, bestEffort := bootstrap.PolicyFatal, bootstrap.PolicyBestEffort

	if o.hasComposeFile() {
		if err := m.Execute(ctx, bootstrap.StepTeardown, bestEffort, o.Teardown); err != nil {
			return err
		}
	} else {
		m.Skip(ctx, bootstrap.StepTeardown, bestEffort)
	}

	if err := m.Execute(ctx, bootstrap.StepReset, fatal, o.Reset); err != nil {
		return err
	}

	err := m.Execute(ctx, bootstrap.StepFetchRelease, fatal, func(ctx context.Context) error {
		rel, _, err := o.Fetch(ctx)
		if rel.Version != "" {
			m.SetReleaseVersion(rel.Version)
		}
		return err
	})
	if err != nil {
		return err
	}

	if o.config.ComposeFile != nil {
		if err := m.Execute(ctx, bootstrap.StepRenderCompose, fatal, func(context.Context) error {
			return o.RenderCompose()
		}); err != nil {
			return err
		}
	} else {
		m.Skip(ctx, bootstrap.StepRenderCompose, fatal)
	}

	if err := m.Execute(ctx, bootstrap.StepStartContainers, fatal, o.StartContainers); err != nil {
		return err
	}

	err = m.Execute(ctx, bootstrap.StepWaitReady, fatal, func(ctx context.Context) error {
		_, err := o.WaitReady(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if err := m.Execute(ctx, bootstrap.StepCreateDatabase, fatal, o.config.Provisioner.CreateDatabase); err != nil {
		return err
	}

	if o.config.Layout.HasSeed() {
		err := m.Execute(ctx, bootstrap.StepLoadSeed, fatal, func(ctx context.Context) error {
			return o.config.Provisioner.LoadSeed(ctx, o.config.Layout.SeedDump)
		})
		if err != nil {
			return err
		}
	} else {
		m.Skip(ctx, bootstrap.StepLoadSeed, fatal)
	}

	if o.config.ChownWebapp {
		if err := m.Execute(ctx, bootstrap.StepPrepareWebapp, fatal, o.config.Application.ChownWebapp); err != nil {
			return err
		}
	} else {
		m.Skip(ctx, bootstrap.StepPrepareWebapp, fatal)
	}

	return o.applicationSteps(ctx, m)
}

func (o *Orchestrator) applicationSteps(ctx context.Context, m *lifecycle.Manager) error {
	app := o.config.Application
	fatal, bestEffort := bootstrap.PolicyFatal, bootstrap.PolicyBestEffort

	if err := m.Execute(ctx, bootstrap.StepCheckRequirements, bestEffort, app.CheckRequirements); err != nil {
		return err
	}
	if err := m.Execute(ctx, bootstrap.StepEnableMaintenance, bestEffort, app.EnableMaintenance); err != nil {
		return err
	}

	setupStep := bootstrap.StepConfigure
	if o.config.InstallMode == bootstrap.InstallModeInstall {
		setupStep = bootstrap.StepInstall
	}
	err := m.Execute(ctx, setupStep, fatal, func(ctx context.Context) error {
		return app.Setup(ctx, o.config.InstallMode)
	})
	if err != nil {
		return err
	}

	if err := m.Execute(ctx, bootstrap.StepUpdate, fatal, app.Update); err != nil {
		return err
	}
	if err := m.Execute(ctx, bootstrap.StepDisableMaintenance, o.config.MaintenanceDisablePolicy, app.DisableMaintenance); err != nil {
		return err
	}

	if o.config.Verifier == nil {
		m.Skip(ctx, bootstrap.StepVerify, fatal)
		return nil
	}
	return m.Execute(ctx, bootstrap.StepVerify, fatal, o.Verify)
}

func (o *Orchestrator) hasComposeFile() bool {
	_, err := os.Stat(o.config.Layout.ComposeFile)
	return err == nil
}

// Teardown stops the previous deployment and removes its volumes and orphans.
func (o *Orchestrator) Teardown(ctx context.Context) error {
	return o.config.Compose.Down(ctx, compose.DownOptions{Volumes: true})
}

// Reset wipes the application and database directories and makes sure the
// forensic log exists.
func (o *Orchestrator) Reset(ctx context.Context) error {
	if err := o.config.Layout.Reset(); err != nil {
		return err
	}

	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "workspace reset",
			"webapp", o.config.Layout.Webapp, "database", o.config.Layout.Database)
	}
	return nil
}

// Fetch resolves the configured release and unpacks it into the webapp
// directory. The resolved release is returned even when the download fails.
func (o *Orchestrator) Fetch(ctx context.Context) (bootstrap.Release, release.Result, error) {
	rel, err := o.config.Resolver.Resolve(ctx, o.config.ReleaseVersion)
	if err != nil {
		return bootstrap.Release{}, release.Result{}, err
	}

	result, err := o.config.Fetcher.Fetch(ctx, rel, o.config.Layout.Webapp)
	if o.collector != nil {
		o.collector.AddDownloadBytes(result.Bytes)
	}
	return rel, result, err
}

// RenderCompose writes the configured compose file.
func (o *Orchestrator) RenderCompose() error {
	if o.config.ComposeFile == nil {
		return errors.New("no compose file configured")
	}
	return compose.WriteFile(o.config.Layout.ComposeFile, *o.config.ComposeFile)
}

// StartContainers brings the container group up in the background.
func (o *Orchestrator) StartContainers(ctx context.Context) error {
	return o.config.Compose.Up(ctx, compose.UpOptions{Build: o.config.Rebuild})
}

// WaitReady blocks until the database accepts connections.
func (o *Orchestrator) WaitReady(ctx context.Context) (int, error) {
	attempts, err := o.config.Waiter.Wait(ctx)
	if o.collector != nil {
		o.collector.AddReadinessAttempts(metrics.TargetDatabase, attempts)
	}
	return attempts, err
}

// Verify waits for the web root and then checks the REST API.
func (o *Orchestrator) Verify(ctx context.Context) error {
	if o.config.Verifier == nil {
		return errors.New("no verifier configured")
	}

	attempts, err := o.config.Verifier.WaitHTTP(ctx)
	if o.collector != nil {
		o.collector.AddReadinessAttempts(metrics.TargetWeb, attempts)
	}
	if err != nil {
		return err
	}
	return o.config.Verifier.CheckAPI(ctx)
}

// Layout returns the resolved workspace layout.
func (o *Orchestrator) Layout() workspace.Layout {
	return o.config.Layout
}

// Store returns the history store runs are recorded in.
func (o *Orchestrator) Store() history.Store {
	return o.config.Store
}
