// Package glpi drives the GLPI management console (php bin/console) inside
// the running web container.
//
// Command names and flags belong to GLPI and are treated as a fixed
// integration contract.
package glpi

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/getpup/pupsourcing/es"

	"github.com/getpup/glpi-bootstrap"
	"github.com/getpup/glpi-bootstrap/compose"
)

// Console commands invoked by the bootstrap sequence.
const (
	CmdCheckRequirements  = "glpi:system:check_requirements"
	CmdEnableMaintenance  = "glpi:maintenance:enable"
	CmdDisableMaintenance = "glpi:maintenance:disable"
	CmdConfigure          = "db:configure"
	CmdInstall            = "db:install"
	CmdUpdate             = "db:update"
)

// DatabaseConfig is the database GLPI connects to, as seen from inside the
// web container.
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// Config configures a Console.
type Config struct {
	// Runner executes commands in the container group (required).
	Runner compose.Runner

	// Service is the web service name (default: "glpi").
	Service string

	// User is the unprivileged account console commands run as (default: "www-data").
	User string

	// Group owns the application tree after ChownWebapp (default: User).
	Group string

	// Workdir is the application root inside the container (default: "/var/www/html").
	Workdir string

	// PHP is the PHP interpreter (default: "php").
	PHP string

	// Script is the console entry point relative to Workdir (default: "bin/console").
	Script string

	// Database is passed to db:configure and db:install.
	// Host defaults to "db", Port to 3306, Name to "glpi", User to "root".
	Database DatabaseConfig

	// Language is the default language for db:install (optional, e.g. "en_GB").
	Language string

	// Reconfigure lets db:configure overwrite an existing configuration file.
	Reconfigure bool

	// Stdout and Stderr receive command output (default: the runner's).
	Stdout io.Writer
	Stderr io.Writer

	// Logger is an optional logger for observability.
	Logger es.Logger
}

// Console runs GLPI management commands.
type Console struct {
	config Config
}

// New creates a Console, applying defaults for zero-valued fields.
func New(cfg Config) *Console {
	if cfg.Service == "" {
		cfg.Service = "glpi"
	}
	if cfg.User == "" {
		cfg.User = "www-data"
	}
	if cfg.Group == "" {
		cfg.Group = cfg.User
	}
	if cfg.Workdir == "" {
		cfg.Workdir = "/var/www/html"
	}
	if cfg.PHP == "" {
		cfg.PHP = "php"
	}
	if cfg.Script == "" {
		cfg.Script = "bin/console"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "db"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 3306
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "glpi"
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "root"
	}

	return &Console{config: cfg}
}

// CheckRequirements runs GLPI's system requirements check.
func (c *Console) CheckRequirements(ctx context.Context) error {
	return c.run(ctx, CmdCheckRequirements)
}

// EnableMaintenance puts GLPI into maintenance mode.
func (c *Console) EnableMaintenance(ctx context.Context) error {
	return c.run(ctx, CmdEnableMaintenance)
}

// DisableMaintenance takes GLPI out of maintenance mode.
func (c *Console) DisableMaintenance(ctx context.Context) error {
	return c.run(ctx, CmdDisableMaintenance)
}

// Configure writes GLPI's database configuration for an already seeded database.
func (c *Console) Configure(ctx context.Context) error {
	args := c.databaseArgs()
	if c.config.Reconfigure {
		args = append(args, "--reconfigure")
	}
	return c.run(ctx, CmdConfigure, append(args, "--no-interaction")...)
}

// Install creates GLPI's schema in an empty database.
func (c *Console) Install(ctx context.Context) error {
	args := c.databaseArgs()
	if c.config.Language != "" {
		args = append(args, "--default-language="+c.config.Language)
	}
	return c.run(ctx, CmdInstall, append(args, "--no-interaction")...)
}

// Setup runs Configure or Install depending on mode.
func (c *Console) Setup(ctx context.Context, mode bootstrap.InstallMode) error {
	switch mode {
	case bootstrap.InstallModeConfigure:
		return c.Configure(ctx)
	case bootstrap.InstallModeInstall:
		return c.Install(ctx)
	default:
		return fmt.Errorf("unknown install mode %q", mode)
	}
}

// Update migrates the GLPI schema to the unpacked release, accepting
// unstable versions.
func (c *Console) Update(ctx context.Context) error {
	return c.run(ctx, CmdUpdate, "--no-interaction", "--allow-unstable")
}

// ChownWebapp gives the service user ownership of the application tree. It
// runs as root.
func (c *Console) ChownWebapp(ctx context.Context) error {
	owner := c.config.User + ":" + c.config.Group
	err := c.config.Runner.Exec(ctx, compose.ExecOptions{
		Service: c.config.Service,
		User:    "root",
		Command: []string{"chown", "-R", owner, c.config.Workdir},
		Stdout:  c.config.Stdout,
		Stderr:  c.config.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to chown %s to %s: %w", c.config.Workdir, owner, err)
	}
	return nil
}

// Command returns the argv of a console command as it is executed in the container.
func (c *Console) Command(name string, args ...string) []string {
	argv := make([]string, 0, len(args)+3)
	argv = append(argv, c.config.PHP, c.config.Script, name)
	return append(argv, args...)
}

func (c *Console) databaseArgs() []string {
	db := c.config.Database
	args := []string{
		"--db-host=" + db.Host,
		"--db-port=" + strconv.Itoa(db.Port),
		"--db-name=" + db.Name,
		"--db-user=" + db.User,
	}
	if db.Password != "" {
		args = append(args, "--db-password="+db.Password)
	}
	return args
}

func (c *Console) run(ctx context.Context, name string, args ...string) error {
	if c.config.Logger != nil {
		c.config.Logger.Debug(ctx, "running console command", "command", name, "service", c.config.Service)
	}

	err := c.config.Runner.Exec(ctx, compose.ExecOptions{
		Service: c.config.Service,
		User:    c.config.User,
		Workdir: c.config.Workdir,
		Command: c.Command(name, args...),
		Stdout:  c.config.Stdout,
		Stderr:  c.config.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", name, err)
	}
	return nil
}
