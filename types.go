package bootstrap

import "time"

// Step names a single stage of the bootstrap sequence.
type Step string

const (
	StepTeardown           Step = "teardown"
	StepReset              Step = "reset"
	StepFetchRelease       Step = "fetch_release"
	StepRenderCompose      Step = "render_compose"
	StepStartContainers    Step = "start_containers"
	StepWaitReady          Step = "wait_ready"
	StepCreateDatabase     Step = "create_database"
	StepLoadSeed           Step = "load_seed"
	StepPrepareWebapp      Step = "prepare_webapp"
	StepCheckRequirements  Step = "check_requirements"
	StepEnableMaintenance  Step = "enable_maintenance"
	StepConfigure          Step = "configure"
	StepInstall            Step = "install"
	StepUpdate             Step = "update"
	StepDisableMaintenance Step = "disable_maintenance"
	StepVerify             Step = "verify"
)

// Policy decides what a failing step does to the rest of the run.
type Policy string

const (
	// PolicyFatal aborts the run on failure. There is no rollback.
	PolicyFatal Policy = "fatal"

	// PolicyBestEffort logs the failure and continues with the next step.
	PolicyBestEffort Policy = "best_effort"
)

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"

	// StepStatusIgnored marks a best-effort step that failed.
	StepStatusIgnored StepStatus = "ignored"

	// StepStatusSkipped marks a step disabled by configuration.
	StepStatusSkipped StepStatus = "skipped"
)

// StepResult records how a step went.
type StepResult struct {
	// Step is the step that ran.
	Step Step

	// Policy is the failure policy the step ran under.
	Policy Policy

	// Status is the outcome.
	Status StepStatus

	// StartedAt is when the step began.
	StartedAt time.Time

	// Duration is how long the step took.
	Duration time.Duration

	// Error is the failure message, empty on success.
	Error string
}

// RunStatus is the lifecycle state of a bootstrap run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is a single execution of the bootstrap sequence.
type Run struct {
	// ID is the unique identifier for this run (UUID).
	ID string

	// Project is the compose project name the run deployed.
	Project string

	// ReleaseVersion is the GLPI version requested, "latest" or a tag.
	// Once the release is resolved it holds the concrete tag.
	ReleaseVersion string

	// Status is the current state of the run.
	Status RunStatus

	// StartedAt is when the run began.
	StartedAt time.Time

	// FinishedAt is when the run ended. Zero while running.
	FinishedAt time.Time

	// Steps holds the results in execution order.
	Steps []StepResult

	// Error is the message of the fatal error that ended the run, if any.
	Error string
}

// Step returns the recorded result for the given step.
func (r Run) Step(step Step) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepResult{}, false
}

// Release identifies a downloadable GLPI release archive.
type Release struct {
	// Version is the release tag, e.g. "10.0.16".
	Version string

	// URL is the archive download location.
	URL string

	// Size is the archive size in bytes when the listing reported it, 0 otherwise.
	Size int64
}

// InstallMode selects which GLPI console command sets up the database connection.
type InstallMode string

const (
	// InstallModeConfigure points GLPI at a seeded database (db:configure).
	InstallModeConfigure InstallMode = "configure"

	// InstallModeInstall creates GLPI's schema in an empty database (db:install).
	InstallModeInstall InstallMode = "install"
)

// Valid reports whether m is a known install mode.
func (m InstallMode) Valid() bool {
	return m == InstallModeConfigure || m == InstallModeInstall
}
