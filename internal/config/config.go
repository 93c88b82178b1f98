package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GLPI_BOOTSTRAP_RELEASE_VERSION.
const EnvPrefix = "GLPI_BOOTSTRAP"

// DevRootPassword is the database root password used when none is configured
// and the profile is dev or test. Other profiles must set one.
const DevRootPassword = "glpi-dev-root"

// Profiles.
const (
	ProfileDev  = "dev"
	ProfileTest = "test"
	ProfileProd = "prod"
)

// Config is the root configuration for glpi-bootstrap.
type Config struct {
	Profile   string          `mapstructure:"profile"`
	Workdir   string          `mapstructure:"workdir"`
	Project   string          `mapstructure:"project"`
	Layout    LayoutConfig    `mapstructure:"layout"`
	Release   ReleaseConfig   `mapstructure:"release"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Compose   ComposeConfig   `mapstructure:"compose"`
	GLPI      GLPIConfig      `mapstructure:"glpi"`
	Verify    VerifyConfig    `mapstructure:"verify"`
	History   HistoryConfig   `mapstructure:"history"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type LayoutConfig struct {
	Webapp      string `mapstructure:"webapp"`
	Database    string `mapstructure:"database"`
	ForensicLog string `mapstructure:"forensic_log"`
	SeedDump    string `mapstructure:"seed_dump"`
	ComposeFile string `mapstructure:"compose_file"`
}

type ReleaseConfig struct {
	Version     string `mapstructure:"version"`
	Repository  string `mapstructure:"repository"`
	URLTemplate string `mapstructure:"url_template"`
	GitHubToken string `mapstructure:"github_token"`
}

type DatabaseConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Name          string        `mapstructure:"name"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Service       string        `mapstructure:"service"`
	Client        string        `mapstructure:"client"`
	ContainerHost string        `mapstructure:"container_host"`
	ProbeMode     string        `mapstructure:"probe_mode"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type ComposeConfig struct {
	// Command is a shell-quoted entry point, e.g. "docker compose".
	Command         string `mapstructure:"command"`
	Render          bool   `mapstructure:"render"`
	Rebuild         bool   `mapstructure:"rebuild"`
	WebService      string `mapstructure:"web_service"`
	DatabaseImage   string `mapstructure:"database_image"`
	WebImage        string `mapstructure:"web_image"`
	WebBuildContext string `mapstructure:"web_build_context"`
	WebPort         int    `mapstructure:"web_port"`
}

type GLPIConfig struct {
	InstallMode              string `mapstructure:"install_mode"`
	Language                 string `mapstructure:"language"`
	Reconfigure              bool   `mapstructure:"reconfigure"`
	ServiceUser              string `mapstructure:"service_user"`
	ChownWebapp              bool   `mapstructure:"chown_webapp"`
	MaintenanceDisablePolicy string `mapstructure:"maintenance_disable_policy"`
}

type VerifyConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	URL       string `mapstructure:"url"`
	APIURL    string `mapstructure:"api_url"`
	AppToken  string `mapstructure:"app_token"`
	UserToken string `mapstructure:"user_token"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the GLPI_BOOTSTRAP_ prefix
// (e.g. GLPI_BOOTSTRAP_DATABASE_PASSWORD). Variables from envFile are
// loaded first without overriding the process environment; a missing
// envFile is not an error.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading env file %s: %w", envFile, err)
		}
	}

	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.applyProfile()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", ProfileDev)
	v.SetDefault("workdir", ".")
	v.SetDefault("project", "glpi")

	v.SetDefault("layout.webapp", "webapp")
	v.SetDefault("layout.database", "database")
	v.SetDefault("layout.forensic_log", "forensic_log")
	v.SetDefault("layout.seed_dump", "database_dump.sql")
	v.SetDefault("layout.compose_file", "docker-compose.yml")

	v.SetDefault("release.version", "latest")
	v.SetDefault("release.repository", "glpi-project/glpi")
	v.SetDefault("release.url_template", "")
	v.SetDefault("release.github_token", "")

	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.name", "glpi")
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.service", "db")
	v.SetDefault("database.client", "mariadb")
	v.SetDefault("database.container_host", "db")
	v.SetDefault("database.probe_mode", "exec")
	v.SetDefault("database.initial_delay", 1*time.Second)
	v.SetDefault("database.max_delay", 10*time.Second)
	v.SetDefault("database.timeout", 2*time.Minute)

	v.SetDefault("compose.command", "docker compose")
	v.SetDefault("compose.render", false)
	v.SetDefault("compose.rebuild", false)
	v.SetDefault("compose.web_service", "glpi")
	v.SetDefault("compose.database_image", "mariadb:10.11")
	v.SetDefault("compose.web_image", "")
	v.SetDefault("compose.web_build_context", "web")
	v.SetDefault("compose.web_port", 8000)

	v.SetDefault("glpi.install_mode", "configure")
	v.SetDefault("glpi.language", "")
	v.SetDefault("glpi.reconfigure", false)
	v.SetDefault("glpi.service_user", "www-data")
	v.SetDefault("glpi.chown_webapp", false)
	v.SetDefault("glpi.maintenance_disable_policy", "fatal")

	v.SetDefault("verify.enabled", false)
	v.SetDefault("verify.url", "http://localhost:8000/")
	v.SetDefault("verify.api_url", "")
	v.SetDefault("verify.app_token", "")
	v.SetDefault("verify.user_token", "")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.driver", "sqlite3")
	v.SetDefault("history.dsn", "")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "glpi-bootstrap")
	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.log_format", "text")
	v.SetDefault("telemetry.metrics_addr", "")
}

func (c *Config) applyProfile() {
	if c.Database.Password == "" && c.allowsDevDefaults() {
		c.Database.Password = DevRootPassword
	}
}

// HistoryDSN returns the history DSN, defaulting SQLite to a file under the workdir.
func (c *Config) HistoryDSN() string {
	if c.History.DSN == "" && c.History.Driver == "sqlite3" {
		return filepath.Join(c.Workdir, ".glpi-bootstrap", "history.db")
	}
	return c.History.DSN
}

func (c *Config) allowsDevDefaults() bool {
	return c.Profile == ProfileDev || c.Profile == ProfileTest
}

// Validate checks enumerations and the credential rules of the profile.
func (c *Config) Validate() error {
	var errs []error

	switch c.Profile {
	case ProfileDev, ProfileTest, ProfileProd:
	default:
		errs = append(errs, fmt.Errorf("profile must be one of dev, test, prod, got %q", c.Profile))
	}
	if c.Database.Password == "" {
		errs = append(errs, fmt.Errorf("database.password is required for profile %q", c.Profile))
	}
	if !c.allowsDevDefaults() && c.Database.Password == DevRootPassword {
		errs = append(errs, fmt.Errorf("the development root password cannot be used with profile %q", c.Profile))
	}
	switch c.Database.ProbeMode {
	case "sql", "exec":
	default:
		errs = append(errs, fmt.Errorf("database.probe_mode must be sql or exec, got %q", c.Database.ProbeMode))
	}
	switch c.GLPI.InstallMode {
	case "configure", "install":
	default:
		errs = append(errs, fmt.Errorf("glpi.install_mode must be configure or install, got %q", c.GLPI.InstallMode))
	}
	switch c.GLPI.MaintenanceDisablePolicy {
	case "fatal", "best_effort":
	default:
		errs = append(errs, fmt.Errorf("glpi.maintenance_disable_policy must be fatal or best_effort, got %q", c.GLPI.MaintenanceDisablePolicy))
	}
	switch c.Telemetry.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("telemetry.log_format must be text or json, got %q", c.Telemetry.LogFormat))
	}
	if _, err := c.ComposeCommand(); err != nil {
		errs = append(errs, err)
	}
	if c.Verify.UserToken != "" && !c.Verify.Enabled {
		errs = append(errs, errors.New("verify.user_token is set but verify.enabled is false"))
	}

	return errors.Join(errs...)
}

// ComposeCommand splits the configured compose entry point.
func (c *Config) ComposeCommand() ([]string, error) {
	words, err := shellquote.Split(c.Compose.Command)
	if err != nil {
		return nil, fmt.Errorf("compose.command: %w", err)
	}
	if len(words) == 0 {
		return nil, errors.New("compose.command must not be empty")
	}
	return words, nil
}

// Secrets returns the configured credentials, for masking in output.
func (c *Config) Secrets() []string {
	var secrets []string
	for _, s := range []string{c.Database.Password, c.Release.GitHubToken, c.Verify.AppToken, c.Verify.UserToken} {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	return secrets
}
