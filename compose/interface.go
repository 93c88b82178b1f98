package compose

import (
	"context"
	"io"
)

// Runner drives the container group of a deployment.
// This interface allows for mock implementations in tests.
type Runner interface {
	// Up starts the services in detached mode.
	Up(ctx context.Context, opts UpOptions) error

	// Down stops and removes the services.
	Down(ctx context.Context, opts DownOptions) error

	// Exec runs a command inside a running service container.
	Exec(ctx context.Context, opts ExecOptions) error
}

// UpOptions configures Runner.Up.
type UpOptions struct {
	// Build forces a clean image rebuild and recreates the containers.
	Build bool

	// Services limits the call to the named services. Empty means all.
	Services []string
}

// DownOptions configures Runner.Down.
type DownOptions struct {
	// Volumes also removes named and anonymous volumes.
	Volumes bool
}

// ExecOptions configures Runner.Exec.
type ExecOptions struct {
	// Service is the compose service to run in (required).
	Service string

	// User runs the command as this user. Empty means the image default.
	User string

	// Workdir is the working directory inside the container.
	Workdir string

	// Command is the program and its arguments (required).
	Command []string

	// Stdin is streamed to the command when set.
	Stdin io.Reader

	// Stdout overrides the runner's default output writer.
	Stdout io.Writer

	// Stderr overrides the runner's default error writer.
	Stderr io.Writer
}
