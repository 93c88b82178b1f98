package compose

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	l.record(msg)
}

func (l *recordingLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.record(msg)
}

func (l *recordingLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.record(msg)
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// echoCLI returns a runner whose "compose" binary prints one argument per line.
func echoCLI(stdout *bytes.Buffer, cfg Config) *CLI {
	cfg.Command = []string{"/bin/sh", "-c", `printf '%s\n' "$@"`, "compose"}
	cfg.Stdout = stdout
	cfg.Stderr = stdout
	return New(cfg)
}

func lines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimSpace(buf.String()), "\n")
}

func TestNew_AppliesDefaults(t *testing.T) {
	cli := New(Config{})

	assert.Equal(t, []string{"docker", "compose"}, cli.config.Command)
	assert.NotNil(t, cli.config.Stdout)
	assert.NotNil(t, cli.config.Stderr)
}

func TestUp_DetachedWithoutRebuild(t *testing.T) {
	var out bytes.Buffer
	cli := echoCLI(&out, Config{})

	require.NoError(t, cli.Up(context.Background(), UpOptions{}))

	assert.Equal(t, []string{"up", "--detach"}, lines(&out))
}

func TestUp_RebuildAddsBuildFlags(t *testing.T) {
	var out bytes.Buffer
	cli := echoCLI(&out, Config{File: "docker-compose.yml", ProjectName: "glpi"})

	require.NoError(t, cli.Up(context.Background(), UpOptions{Build: true}))

	assert.Equal(t, []string{
		"--file", "docker-compose.yml",
		"--project-name", "glpi",
		"up", "--detach", "--build", "--force-recreate",
	}, lines(&out))
}

func TestDown_WithVolumes(t *testing.T) {
	var out bytes.Buffer
	cli := echoCLI(&out, Config{})

	require.NoError(t, cli.Down(context.Background(), DownOptions{Volumes: true}))

	assert.Equal(t, []string{"down", "--remove-orphans", "--volumes"}, lines(&out))
}

func TestExec_BuildsCommandLine(t *testing.T) {
	var out bytes.Buffer
	cli := echoCLI(&out, Config{})

	err := cli.Exec(context.Background(), ExecOptions{
		Service: "glpi",
		User:    "www-data",
		Workdir: "/var/www/html",
		Command: []string{"php", "bin/console", "db:update"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"exec", "-T", "--user", "www-data", "--workdir", "/var/www/html",
		"glpi", "php", "bin/console", "db:update",
	}, lines(&out))
}

func TestExec_RequiresServiceAndCommand(t *testing.T) {
	cli := New(Config{})

	assert.Error(t, cli.Exec(context.Background(), ExecOptions{Command: []string{"true"}}))
	assert.Error(t, cli.Exec(context.Background(), ExecOptions{Service: "db"}))
}

func TestExec_StreamsStdin(t *testing.T) {
	var out bytes.Buffer
	cli := New(Config{
		Command: []string{"/bin/sh", "-c", "cat", "compose"},
		Stdout:  &out,
	})

	err := cli.Exec(context.Background(), ExecOptions{
		Service: "db",
		Command: []string{"mariadb"},
		Stdin:   strings.NewReader("CREATE TABLE t (id INT);\n"),
	})
	require.NoError(t, err)

	assert.Equal(t, "CREATE TABLE t (id INT);\n", out.String())
}

func TestExec_PerCallWritersOverrideDefaults(t *testing.T) {
	var def, own bytes.Buffer
	cli := echoCLI(&def, Config{})

	err := cli.Exec(context.Background(), ExecOptions{
		Service: "db",
		Command: []string{"true"},
		Stdout:  &own,
	})
	require.NoError(t, err)

	assert.Empty(t, def.String())
	assert.Contains(t, own.String(), "exec")
}

func TestRun_ReportsExitCode(t *testing.T) {
	cli := New(Config{
		Command: []string{"/bin/sh", "-c", "exit 3", "compose"},
		Stdout:  &bytes.Buffer{},
		Stderr:  &bytes.Buffer{},
	})

	err := cli.Up(context.Background(), UpOptions{})

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Contains(t, err.Error(), "exited with code 3")
}

func TestRun_MissingBinary(t *testing.T) {
	cli := New(Config{Command: []string{"/nonexistent/docker", "compose"}})

	err := cli.Up(context.Background(), UpOptions{})

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, -1, cmdErr.ExitCode)
	assert.Contains(t, err.Error(), "failed to run")
}

func TestRun_EchoesCommandWithSecretsRedacted(t *testing.T) {
	var out bytes.Buffer
	logger := &recordingLogger{}
	cli := echoCLI(&out, Config{Logger: logger, Secrets: []string{"s3cret", ""}})

	err := cli.Exec(context.Background(), ExecOptions{
		Service: "db",
		Command: []string{"mariadb", "-uroot", "-ps3cret", "-e", "SELECT 1"},
	})
	require.NoError(t, err)

	require.Len(t, logger.messages, 1)
	assert.True(t, strings.HasPrefix(logger.messages[0], "+ /bin/sh"))
	assert.Contains(t, logger.messages[0], "-p"+redacted)
	assert.NotContains(t, logger.messages[0], "s3cret")
	assert.Contains(t, logger.messages[0], "'SELECT 1'")
}

func TestRun_RedactsSecretsThatNeedQuoting(t *testing.T) {
	secrets := []string{`it's a secret`, `back\slash`, `"quoted" $HOME`}

	for _, secret := range secrets {
		t.Run(secret, func(t *testing.T) {
			var out bytes.Buffer
			logger := &recordingLogger{}
			cli := echoCLI(&out, Config{Logger: logger, Secrets: []string{secret}})

			err := cli.Exec(context.Background(), ExecOptions{
				Service: "db",
				Command: []string{"mariadb", "-uroot", "-p" + secret, "-e", "SELECT 1"},
			})
			require.NoError(t, err)

			require.Len(t, logger.messages, 1)
			line := logger.messages[0]
			assert.Contains(t, line, "-p"+redacted)
			assert.NotContains(t, line, secret)
			assert.NotContains(t, line, shellquote.Join(secret))
			assert.NotContains(t, line, "secret")
			assert.NotContains(t, line, "slash")
			assert.NotContains(t, line, "HOME")
		})
	}
}

func TestRun_PassesExtraEnvironment(t *testing.T) {
	var out bytes.Buffer
	cli := New(Config{
		Command: []string{"/bin/sh", "-c", `printf '%s' "$` + RootPasswordEnv + `"`, "compose"},
		Env:     []string{fmt.Sprintf("%s=hunter2", RootPasswordEnv)},
		Stdout:  &out,
	})

	require.NoError(t, cli.Up(context.Background(), UpOptions{}))

	assert.Equal(t, "hunter2", out.String())
}

func TestCommandError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := &CommandError{Command: "docker compose up", ExitCode: 1, Err: inner}

	assert.ErrorIs(t, err, inner)
}
