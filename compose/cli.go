package compose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/getpup/pupsourcing/es"
	"github.com/kballard/go-shellquote"
)

const redacted = "*****"

// Config configures the docker compose CLI runner.
type Config struct {
	// Command is the compose entry point (default: docker compose).
	Command []string

	// ProjectDir is the directory the command runs in (default: current directory).
	ProjectDir string

	// File is the compose file, relative to ProjectDir or absolute (optional).
	File string

	// ProjectName overrides the compose project name (optional).
	ProjectName string

	// Env is appended to the process environment, KEY=VALUE form.
	Env []string

	// Secrets are masked wherever a command line is logged or reported.
	Secrets []string

	// Stdout receives command output (default: os.Stdout).
	Stdout io.Writer

	// Stderr receives command errors (default: os.Stderr).
	Stderr io.Writer

	// Logger is an optional logger for command tracing.
	Logger es.Logger
}

// CLI runs docker compose as a subprocess.
type CLI struct {
	config Config
}

// Compile-time check that CLI implements Runner.
var _ Runner = (*CLI)(nil)

// CommandError reports a compose invocation that failed.
type CommandError struct {
	// Command is the shell-quoted command line with secrets masked.
	Command string

	// ExitCode is the process exit status, -1 when it never ran.
	ExitCode int

	// Err is the underlying error.
	Err error
}

func (e *CommandError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("failed to run %s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// New creates a CLI runner with the given configuration.
// It applies defaults for Command, Stdout and Stderr.
func New(cfg Config) *CLI {
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"docker", "compose"}
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	return &CLI{
		config: cfg,
	}
}

// Up starts the services in detached mode, rebuilding images when asked.
func (c *CLI) Up(ctx context.Context, opts UpOptions) error {
	args := []string{"up", "--detach"}
	if opts.Build {
		args = append(args, "--build", "--force-recreate")
	}
	args = append(args, opts.Services...)

	return c.run(ctx, args, nil, nil, nil)
}

// Down stops and removes the services and orphaned containers.
func (c *CLI) Down(ctx context.Context, opts DownOptions) error {
	args := []string{"down", "--remove-orphans"}
	if opts.Volumes {
		args = append(args, "--volumes")
	}

	return c.run(ctx, args, nil, nil, nil)
}

// Exec runs a command inside a service container without allocating a TTY.
func (c *CLI) Exec(ctx context.Context, opts ExecOptions) error {
	if opts.Service == "" {
		return errors.New("service is required")
	}
	if len(opts.Command) == 0 {
		return errors.New("command is required")
	}

	args := []string{"exec", "-T"}
	if opts.User != "" {
		args = append(args, "--user", opts.User)
	}
	if opts.Workdir != "" {
		args = append(args, "--workdir", opts.Workdir)
	}
	args = append(args, opts.Service)
	args = append(args, opts.Command...)

	return c.run(ctx, args, opts.Stdin, opts.Stdout, opts.Stderr)
}

func (c *CLI) run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	argv := make([]string, 0, len(c.config.Command)+len(args)+4)
	argv = append(argv, c.config.Command...)
	if c.config.File != "" {
		argv = append(argv, "--file", c.config.File)
	}
	if c.config.ProjectName != "" {
		argv = append(argv, "--project-name", c.config.ProjectName)
	}
	argv = append(argv, args...)

	line := shellquote.Join(c.redact(argv)...)
	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "+ "+line)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = c.config.ProjectDir
	if len(c.config.Env) > 0 {
		cmd.Env = append(os.Environ(), c.config.Env...)
	}
	cmd.Stdin = stdin
	cmd.Stdout = c.config.Stdout
	if stdout != nil {
		cmd.Stdout = stdout
	}
	cmd.Stderr = c.config.Stderr
	if stderr != nil {
		cmd.Stderr = stderr
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &CommandError{Command: line, ExitCode: exitErr.ExitCode(), Err: err}
		}
		return &CommandError{Command: line, ExitCode: -1, Err: err}
	}

	return nil
}

// redact masks secrets in each argument before quoting, since quoting can
// escape characters of the secret itself.
func (c *CLI) redact(argv []string) []string {
	masked := make([]string, len(argv))
	for i, arg := range argv {
		for _, secret := range c.config.Secrets {
			if secret == "" {
				continue
			}
			arg = strings.ReplaceAll(arg, secret, redacted)
		}
		masked[i] = arg
	}
	return masked
}
