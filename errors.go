package bootstrap

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeploymentNotReady indicates the database never accepted connections
	// within the readiness policy.
	ErrDeploymentNotReady = errors.New("deployment not ready")

	// ErrReleaseNotFound indicates the release listing had no usable archive.
	ErrReleaseNotFound = errors.New("release not found")

	// ErrArchiveInvalid indicates the release archive could not be unpacked safely.
	ErrArchiveInvalid = errors.New("invalid release archive")

	// ErrDatabaseExists indicates the target database was already present.
	// Provisioning assumes a fresh server and never reuses a database.
	ErrDatabaseExists = errors.New("database already exists")

	// ErrSeedDumpMissing indicates the configured seed dump file does not exist.
	ErrSeedDumpMissing = errors.New("seed dump missing")

	// ErrRunNotFound indicates the run does not exist in the history store.
	ErrRunNotFound = errors.New("run not found")
)

// NotReadyError is returned when the readiness wait gives up.
// It matches ErrDeploymentNotReady with errors.Is.
type NotReadyError struct {
	// Attempts is the number of probes made.
	Attempts int

	// Elapsed is the time spent waiting.
	Elapsed time.Duration

	// Last is the error returned by the final probe.
	Last error
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("deployment not ready after %d attempts (%s): %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.Last)
}

// Is reports whether target is ErrDeploymentNotReady.
func (e *NotReadyError) Is(target error) bool {
	return target == ErrDeploymentNotReady
}

// Unwrap returns the last probe error.
func (e *NotReadyError) Unwrap() error {
	return e.Last
}
