package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/getpup/glpi-bootstrap/pkg/bootstrap"
	"github.com/getpup/glpi-bootstrap/verify"
)

var errUnhealthy = errors.New("deployment is unhealthy")

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe the running database and web front once",
		Long: `Status checks the database through the configured probe mode and, when
verification is enabled, the web front page. Nothing is started or changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			opts, err := c.options()
			if err != nil {
				return err
			}
			results, err := bootstrap.Status(ctx, opts...)
			if err != nil {
				return err
			}
			if err := printJSON(c.stdout, results); err != nil {
				return err
			}
			if !verify.Healthy(results) {
				return errUnhealthy
			}
			return nil
		},
	}
}
