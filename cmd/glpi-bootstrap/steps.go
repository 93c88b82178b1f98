package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// The commands below run single steps of the sequence outside a recorded
// run. They are meant for debugging a deployment by hand.

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func (c *cli) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Tear down the containers and wipe the working directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			orch, closeStore, err := c.orchestrator(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := orch.Teardown(ctx); err != nil {
				c.logger.WarnContext(ctx, "teardown failed", "err", err)
			}
			return orch.Reset(ctx)
		},
	}
}

func (c *cli) fetchCmd() *cobra.Command {
	var release string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download and unpack the release into the webapp directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if release != "" {
				c.cfg.Release.Version = release
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			orch, closeStore, err := c.orchestrator(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			rel, result, err := orch.Fetch(ctx)
			if err != nil {
				return err
			}
			return printJSON(c.stdout, map[string]any{
				"version":  rel.Version,
				"url":      rel.URL,
				"bytes":    result.Bytes,
				"size":     humanize.Bytes(uint64(result.Bytes)),
				"files":    result.Files,
				"duration": result.Duration.String(),
			})
		},
	}
	cmd.Flags().StringVar(&release, "release", "", `GLPI release tag or "latest" (overrides config)`)
	return cmd
}

func (c *cli) renderComposeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render-compose",
		Short: "Write the compose file from the configured descriptor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.cfg.Compose.Render = true
			orch, closeStore, err := c.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			if err := orch.RenderCompose(); err != nil {
				return err
			}
			c.logger.Info("compose file written", "path", orch.Layout().ComposeFile)
			return nil
		},
	}
}

func (c *cli) waitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wait",
		Short: "Wait until the database accepts connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			orch, closeStore, err := c.orchestrator(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			attempts, err := orch.WaitReady(ctx)
			if err != nil {
				return err
			}
			return printJSON(c.stdout, map[string]any{"ready": true, "attempts": attempts})
		},
	}
}
