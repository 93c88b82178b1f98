package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/getpup/glpi-bootstrap/internal/config"
	"github.com/getpup/glpi-bootstrap/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// cli holds the flags and the state built by the root PersistentPreRunE
// that all subcommands share.
type cli struct {
	cfgFile   string
	envFile   string
	workdir   string
	logLevel  string
	logFormat string

	stdout io.Writer
	stderr io.Writer

	cfg      *config.Config
	logger   *slog.Logger
	provider *telemetry.Provider
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	c.shutdown()
	if err != nil {
		return 1
	}
	return 0
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "glpi-bootstrap",
		Short: "Recreate a GLPI deployment from a pinned release",
		Long: `glpi-bootstrap (re)creates a containerised GLPI deployment.

"up" tears down the previous deployment, wipes the working directories,
unpacks the requested GLPI release, starts the container group, provisions
the database and runs GLPI's own console commands until the application is
migrated and out of maintenance mode. The run is printed as JSON.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "path to config file (YAML)")
	flags.StringVar(&c.envFile, "env-file", ".env",
		"dotenv file loaded before the environment is read; when unset, .env is looked up in --workdir if given")
	flags.StringVar(&c.workdir, "workdir", "", "deployment working directory (overrides config)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flags.StringVar(&c.logFormat, "log-format", "", "log format: text or json (overrides config)")

	root.AddCommand(
		c.upCmd(),
		c.resetCmd(),
		c.fetchCmd(),
		c.renderComposeCmd(),
		c.waitCmd(),
		c.statusCmd(),
		c.historyCmd(),
		c.versionCmd(),
	)
	return root
}

// setup loads the configuration, applies flag overrides, builds the logger
// and starts tracing when an OTLP endpoint is configured.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	envFile := c.envFile
	if !cmd.Flags().Changed("env-file") && c.workdir != "" {
		envFile = filepath.Join(c.workdir, ".env")
	}

	cfg, err := config.Load(c.cfgFile, envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if c.workdir != "" {
		cfg.Workdir = c.workdir
	}
	if c.logLevel != "" {
		cfg.Telemetry.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Telemetry.LogFormat = c.logFormat
	}
	c.cfg = cfg

	c.logger, err = telemetry.NewSlogLogger(c.stderr, cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(c.logger)

	if cfg.Telemetry.OTLPEndpoint == "" {
		c.logger.Debug("tracing disabled (no endpoint configured)")
		return nil
	}
	provider, err := telemetry.InitProvider(cmd.Context(), cfg.Telemetry.OTLPEndpoint,
		cfg.Telemetry.ServiceName, version, cfg.Telemetry.OTLPInsecure)
	if err != nil {
		// Tracing must never block a bootstrap.
		c.logger.Warn("tracing provider init failed, tracing disabled", "err", err)
		return nil
	}
	c.provider = provider
	return nil
}

func (c *cli) shutdown() {
	if c.provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.provider.Shutdown(ctx); err != nil {
		c.logger.Warn("tracing shutdown error", "err", err)
	}
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// Printing the version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(c.stdout, "glpi-bootstrap %s\n", version)
		},
	}
}
