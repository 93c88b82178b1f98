package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	rootpkg "github.com/getpup/glpi-bootstrap"
	"github.com/getpup/glpi-bootstrap/compose"
	"github.com/getpup/glpi-bootstrap/database"
	"github.com/getpup/glpi-bootstrap/history/sqlstore"
	"github.com/getpup/glpi-bootstrap/internal/telemetry"
	"github.com/getpup/glpi-bootstrap/pkg/bootstrap"
	"github.com/getpup/glpi-bootstrap/recreate"
	"github.com/getpup/glpi-bootstrap/workspace"
)

// options translates the configuration into facade options. Child process
// output goes to stderr so stdout carries only the JSON result.
func (c *cli) options() ([]bootstrap.Option, error) {
	cfg := c.cfg
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	command, err := cfg.ComposeCommand()
	if err != nil {
		return nil, err
	}

	opts := []bootstrap.Option{
		bootstrap.WithLayout(workspace.Layout{
			Root:        cfg.Workdir,
			Webapp:      cfg.Layout.Webapp,
			Database:    cfg.Layout.Database,
			ForensicLog: cfg.Layout.ForensicLog,
			SeedDump:    cfg.Layout.SeedDump,
			ComposeFile: cfg.Layout.ComposeFile,
		}),
		bootstrap.WithProject(cfg.Project),
		bootstrap.WithRelease(cfg.Release.Version),
		bootstrap.WithReleaseSource(cfg.Release.Repository, cfg.Release.URLTemplate),
		bootstrap.WithGitHubToken(cfg.Release.GitHubToken),
		bootstrap.WithDatabase(database.Settings{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Name:     cfg.Database.Name,
		}),
		bootstrap.WithDatabaseService(cfg.Database.Service, cfg.Database.Client, cfg.Database.ContainerHost),
		bootstrap.WithProbeMode(bootstrap.ProbeMode(cfg.Database.ProbeMode)),
		bootstrap.WithReadinessPolicy(cfg.Database.InitialDelay, cfg.Database.MaxDelay, cfg.Database.Timeout),
		bootstrap.WithComposeCommand(command...),
		bootstrap.WithRebuild(cfg.Compose.Rebuild),
		bootstrap.WithWebService(cfg.Compose.WebService, cfg.GLPI.ServiceUser),
		bootstrap.WithInstallMode(rootpkg.InstallMode(cfg.GLPI.InstallMode)),
		bootstrap.WithLanguage(cfg.GLPI.Language),
		bootstrap.WithReconfigure(cfg.GLPI.Reconfigure),
		bootstrap.WithChownWebapp(cfg.GLPI.ChownWebapp),
		bootstrap.WithMaintenanceDisablePolicy(rootpkg.Policy(cfg.GLPI.MaintenanceDisablePolicy)),
		bootstrap.WithLogger(telemetry.NewLogger(c.logger)),
		bootstrap.WithOutput(c.stderr, c.stderr),
	}

	if cfg.Compose.Render {
		opts = append(opts, bootstrap.WithComposeDescriptor(compose.Descriptor{
			DatabaseImage:   cfg.Compose.DatabaseImage,
			WebImage:        cfg.Compose.WebImage,
			WebBuildContext: cfg.Compose.WebBuildContext,
			WebPort:         cfg.Compose.WebPort,
		}))
	}
	if cfg.Verify.Enabled {
		opts = append(opts, bootstrap.WithVerify(cfg.Verify.URL))
		if cfg.Verify.UserToken != "" {
			opts = append(opts, bootstrap.WithAPI(cfg.Verify.APIURL, cfg.Verify.AppToken, cfg.Verify.UserToken))
		}
	}
	return opts, nil
}

// orchestrator builds the orchestrator with the configured history store.
// The returned close function releases the store.
func (c *cli) orchestrator(ctx context.Context, extra ...bootstrap.Option) (*recreate.Orchestrator, func(), error) {
	opts, err := c.options()
	if err != nil {
		return nil, nil, err
	}

	closeStore := func() {}
	if c.cfg.History.Enabled {
		store, err := c.openHistory(ctx)
		if err != nil {
			return nil, nil, err
		}
		closeStore = func() {
			if err := store.Close(); err != nil {
				c.logger.Warn("closing history store", "err", err)
			}
		}
		opts = append(opts, bootstrap.WithHistoryStore(store))
	}

	orch, err := bootstrap.NewOrchestrator(append(opts, extra...)...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return orch, closeStore, nil
}

var errHistoryDisabled = errors.New("run history is disabled (history.enabled=false)")

func (c *cli) openHistory(ctx context.Context) (*sqlstore.Store, error) {
	if !c.cfg.History.Enabled {
		return nil, errHistoryDisabled
	}
	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver: c.cfg.History.Driver,
		DSN:    c.cfg.HistoryDSN(),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	return store, nil
}

// errRunFailed is returned after a failed run has been printed, so the
// process exits non-zero.
type errRunFailed struct {
	run rootpkg.Run
}

func (e *errRunFailed) Error() string {
	return fmt.Sprintf("run %s failed: %s", e.run.ID, e.run.Error)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
