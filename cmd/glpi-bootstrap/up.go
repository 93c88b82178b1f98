package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	rootpkg "github.com/getpup/glpi-bootstrap"
	"github.com/getpup/glpi-bootstrap/metrics"
)

func (c *cli) upCmd() *cobra.Command {
	var release string

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Run the full bootstrap sequence once",
		Long: `Up destroys the previous deployment and recreates it from the requested
GLPI release. Everything in the application and database directories is
lost. The run is printed to stdout as JSON; the exit status is non-zero
when the run failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if release != "" {
				c.cfg.Release.Version = release
			}
			return c.up(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&release, "release", "", `GLPI release tag or "latest" (overrides config)`)
	return cmd
}

func (c *cli) up(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, closeStore, err := c.orchestrator(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if addr := c.cfg.Telemetry.MetricsAddr; addr != "" {
		srv := metrics.NewServer(addr)
		srv.Start()
		c.logger.Info("metrics server listening", "addr", addr)
		defer func() {
			if err := srv.Err(); err != nil {
				c.logger.Warn("metrics server error", "err", err)
			}
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	c.logger.InfoContext(ctx, "starting bootstrap",
		"project", c.cfg.Project, "release", c.cfg.Release.Version, "workdir", c.cfg.Workdir)

	run, runErr := orch.Run(ctx)
	if err := printJSON(c.stdout, run); err != nil {
		return err
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			c.logger.Warn("bootstrap interrupted", "run", run.ID)
		}
		return runErr
	}
	if run.Status != rootpkg.RunStatusSucceeded {
		return &errRunFailed{run: run}
	}
	c.logger.InfoContext(ctx, "bootstrap completed", "run", run.ID, "release", run.ReleaseVersion)
	return nil
}
