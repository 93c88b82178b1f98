package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests in this package share process-global environment variables and
// must not run in parallel.

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, ProfileDev, cfg.Profile)
	assert.Equal(t, "glpi", cfg.Project)
	assert.Equal(t, "latest", cfg.Release.Version)
	assert.Equal(t, "glpi-project/glpi", cfg.Release.Repository)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "exec", cfg.Database.ProbeMode)
	assert.Equal(t, 1*time.Second, cfg.Database.InitialDelay)
	assert.Equal(t, 2*time.Minute, cfg.Database.Timeout)
	assert.Equal(t, "database_dump.sql", cfg.Layout.SeedDump)
	assert.Equal(t, "fatal", cfg.GLPI.MaintenanceDisablePolicy)
	assert.Equal(t, DevRootPassword, cfg.Database.Password)
	assert.Equal(t, filepath.Join(".", ".glpi-bootstrap", "history.db"), cfg.HistoryDSN())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GLPI_BOOTSTRAP_RELEASE_VERSION", "10.0.16")
	t.Setenv("GLPI_BOOTSTRAP_DATABASE_PASSWORD", "s3cret")
	t.Setenv("GLPI_BOOTSTRAP_DATABASE_TIMEOUT", "30s")
	t.Setenv("GLPI_BOOTSTRAP_GLPI_MAINTENANCE_DISABLE_POLICY", "best_effort")

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "10.0.16", cfg.Release.Version)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, 30*time.Second, cfg.Database.Timeout)
	assert.Equal(t, "best_effort", cfg.GLPI.MaintenanceDisablePolicy)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glpi-bootstrap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
profile: test
project: helpdesk
release:
  version: 10.0.15
compose:
  render: true
  web_port: 8080
glpi:
  install_mode: install
  language: fr_FR
`), 0o644))

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, ProfileTest, cfg.Profile)
	assert.Equal(t, "helpdesk", cfg.Project)
	assert.Equal(t, "10.0.15", cfg.Release.Version)
	assert.True(t, cfg.Compose.Render)
	assert.Equal(t, 8080, cfg.Compose.WebPort)
	assert.Equal(t, "install", cfg.GLPI.InstallMode)
	assert.Equal(t, "fr_FR", cfg.GLPI.Language)
	assert.Equal(t, DevRootPassword, cfg.Database.Password)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GLPI_BOOTSTRAP_DATABASE_PASSWORD=from-dotenv\nGLPI_BOOTSTRAP_PROFILE=prod\n"), 0o644))
	t.Setenv("GLPI_BOOTSTRAP_DATABASE_PASSWORD", "")
	os.Unsetenv("GLPI_BOOTSTRAP_DATABASE_PASSWORD")
	t.Cleanup(func() { os.Unsetenv("GLPI_BOOTSTRAP_PROFILE") })

	cfg, err := Load("", path)
	require.NoError(t, err)

	assert.Equal(t, ProfileProd, cfg.Profile)
	assert.Equal(t, "from-dotenv", cfg.Database.Password)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GLPI_BOOTSTRAP_PROJECT=from-dotenv\n"), 0o644))
	t.Setenv("GLPI_BOOTSTRAP_PROJECT", "from-env")

	cfg, err := Load("", path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Project)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml", "")
	assert.Error(t, err)
}

func TestLoad_ProdProfileHasNoDefaultPassword(t *testing.T) {
	t.Setenv("GLPI_BOOTSTRAP_PROFILE", "prod")

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Empty(t, cfg.Database.Password)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.password is required")
}

func TestValidate_RejectsDevPasswordOutsideDev(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	cfg.Profile = ProfileProd

	err = cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "development root password")
}

func TestValidate_Enumerations(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	cfg.Database.ProbeMode = "ping"
	cfg.GLPI.InstallMode = "upgrade"
	cfg.GLPI.MaintenanceDisablePolicy = "sometimes"
	cfg.Telemetry.LogFormat = "xml"
	cfg.Profile = "staging"

	err = cfg.Validate()

	require.Error(t, err)
	for _, field := range []string{"probe_mode", "install_mode", "maintenance_disable_policy", "log_format", "profile"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestComposeCommand_SplitsShellWords(t *testing.T) {
	cfg := &Config{Compose: ComposeConfig{Command: `docker --context "remote host" compose`}}

	cmd, err := cfg.ComposeCommand()

	require.NoError(t, err)
	assert.Equal(t, []string{"docker", "--context", "remote host", "compose"}, cmd)
}

func TestComposeCommand_Invalid(t *testing.T) {
	for _, command := range []string{"", `docker "compose`} {
		cfg := &Config{Compose: ComposeConfig{Command: command}}
		_, err := cfg.ComposeCommand()
		assert.Error(t, err, command)
	}
}

func TestSecrets_SkipsEmpty(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Password: "pw"},
		Verify:   VerifyConfig{UserToken: "tok"},
	}

	assert.Equal(t, []string{"pw", "tok"}, cfg.Secrets())
}
