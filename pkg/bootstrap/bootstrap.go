// Package bootstrap is the public entry point for building a GLPI
// bootstrapper from functional options.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/getpup/pupsourcing/es"
	"go.opentelemetry.io/otel/trace"

	rootpkg "github.com/getpup/glpi-bootstrap"
	"github.com/getpup/glpi-bootstrap/compose"
	"github.com/getpup/glpi-bootstrap/database"
	"github.com/getpup/glpi-bootstrap/glpi"
	"github.com/getpup/glpi-bootstrap/glpi/api"
	"github.com/getpup/glpi-bootstrap/history"
	"github.com/getpup/glpi-bootstrap/history/sqlstore"
	"github.com/getpup/glpi-bootstrap/pkg/migrations"
	"github.com/getpup/glpi-bootstrap/recreate"
	"github.com/getpup/glpi-bootstrap/release"
	"github.com/getpup/glpi-bootstrap/verify"
	"github.com/getpup/glpi-bootstrap/workspace"
)

// Re-export core types from root package
type (
	// Run is a single execution of the bootstrap sequence.
	Run = rootpkg.Run

	// StepResult records how a step went.
	StepResult = rootpkg.StepResult

	// InstallMode selects db:configure or db:install.
	InstallMode = rootpkg.InstallMode

	// Policy decides what a failing step does to the rest of the run.
	Policy = rootpkg.Policy

	// StepStatus is the outcome of a single step.
	StepStatus = rootpkg.StepStatus

	// RunStatus is the lifecycle state of a run.
	RunStatus = rootpkg.RunStatus
)

// Re-export the values callers switch on.
const (
	InstallModeConfigure = rootpkg.InstallModeConfigure
	InstallModeInstall   = rootpkg.InstallModeInstall

	PolicyFatal      = rootpkg.PolicyFatal
	PolicyBestEffort = rootpkg.PolicyBestEffort

	StepStatusSucceeded = rootpkg.StepStatusSucceeded
	StepStatusFailed    = rootpkg.StepStatusFailed
	StepStatusIgnored   = rootpkg.StepStatusIgnored
	StepStatusSkipped   = rootpkg.StepStatusSkipped

	RunStatusSucceeded = rootpkg.RunStatusSucceeded
	RunStatusFailed    = rootpkg.RunStatusFailed
)

// ProbeMode selects how database readiness is checked.
type ProbeMode string

const (
	// ProbeSQL connects to the published database port from the host.
	ProbeSQL ProbeMode = "sql"

	// ProbeExec runs the database client inside the database container.
	ProbeExec ProbeMode = "exec"
)

// Option configures a bootstrapper.
type Option func(*config)

// config holds the internal configuration for creating a bootstrapper.
type config struct {
	layout         workspace.Layout
	project        string
	releaseVersion string
	repository     string
	urlTemplate    string
	githubToken    string
	httpClient     *http.Client

	database        database.Settings
	containerDBHost string
	dbService       string
	dbClient        string
	probeMode       ProbeMode
	initialDelay    time.Duration
	maxDelay        time.Duration
	readyTimeout    time.Duration

	composeCommand []string
	composeRunner  compose.Runner
	descriptor     *compose.Descriptor
	rebuild        bool

	webService               string
	serviceUser              string
	installMode              InstallMode
	language                 string
	reconfigure              bool
	chownWebapp              bool
	maintenanceDisablePolicy Policy

	verifyURL string
	apiURL    string
	appToken  string
	userToken string

	store          history.Store
	logger         es.Logger
	tracer         trace.Tracer
	metricsEnabled *bool
	stdout         io.Writer
	stderr         io.Writer
}

// New creates a bootstrapper with the given options.
//
// Required options:
//   - WithWorkdir or WithLayout: where the deployment lives
//   - WithDatabase: database settings, including the root password
//
// Optional configuration (with defaults):
//   - WithProject: compose project name (default: "glpi")
//   - WithRelease: release tag or "latest" (default: "latest")
//   - WithReleaseSource: GitHub repository and pinned URL template
//   - WithProbeMode: readiness probe mode (default: ProbeExec)
//   - WithReadinessPolicy: backoff and timeout of the readiness wait (default: 1s, 10s, 2m)
//   - WithComposeDescriptor: render docker-compose.yml before starting (default: use the existing file)
//   - WithRebuild: rebuild images on start (default: false)
//   - WithInstallMode: db:configure or db:install (default: configure)
//   - WithMaintenanceDisablePolicy: policy of the final maintenance:disable (default: fatal)
//   - WithVerify, WithAPI: post-deploy verification (default: disabled)
//   - WithHistoryStore: run history (default: in-memory)
//   - WithLogger, WithTracer, WithMetricsEnabled: observability
//
// Example:
//
//	b, err := bootstrap.New(
//	    bootstrap.WithWorkdir("/srv/glpi"),
//	    bootstrap.WithRelease("10.0.16"),
//	    bootstrap.WithDatabase(database.Settings{Password: os.Getenv("GLPI_DB_ROOT_PASSWORD")}),
//	)
//
// Returns an error if any required option is missing.
func New(opts ...Option) (rootpkg.Bootstrapper, error) {
	return NewOrchestrator(opts...)
}

// NewOrchestrator is New returning the concrete orchestrator, whose single
// steps (Reset, Fetch, RenderCompose, WaitReady, Verify) can be run on their own.
func NewOrchestrator(opts ...Option) (*recreate.Orchestrator, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	runner := cfg.runner()
	prober := cfg.prober(runner)

	var composeFile *compose.File
	if cfg.descriptor != nil {
		d := *cfg.descriptor
		d.Project = cfg.project
		d.Dir = cfg.layout.Root
		d.DatabaseService = cfg.dbService
		d.WebService = cfg.webService
		d.WebappDir = cfg.layout.Webapp
		d.DatabaseDir = cfg.layout.Database
		d.ForensicLog = cfg.layout.ForensicLog
		if cfg.probeMode == ProbeSQL && d.DatabasePort == 0 {
			d.DatabasePort = cfg.database.Port
		}
		f := d.File()
		composeFile = &f
	}

	var verifier recreate.Verifier
	if cfg.verifyURL != "" {
		checker, err := cfg.checker()
		if err != nil {
			return nil, err
		}
		verifier = checker
	}

	orch := recreate.New(recreate.Config{
		Project:        cfg.project,
		Layout:         cfg.layout,
		ReleaseVersion: cfg.releaseVersion,
		Resolver: release.NewResolver(release.ResolverConfig{
			Client:      cfg.httpClient,
			Repository:  cfg.repository,
			URLTemplate: cfg.urlTemplate,
			Token:       cfg.githubToken,
			Logger:      cfg.logger,
		}),
		Fetcher: release.NewFetcher(release.FetcherConfig{
			Client: cfg.httpClient,
			Logger: cfg.logger,
		}),
		Compose:     runner,
		ComposeFile: composeFile,
		Rebuild:     cfg.rebuild,
		Waiter: database.NewWaiter(database.WaitConfig{
			Prober:       prober,
			InitialDelay: cfg.initialDelay,
			MaxDelay:     cfg.maxDelay,
			Timeout:      cfg.readyTimeout,
			Logger:       cfg.logger,
		}),
		Provisioner: database.NewProvisioner(database.ProvisionerConfig{
			Settings:  cfg.database,
			Runner:    runner,
			Service:   cfg.dbService,
			Client:    cfg.dbClient,
			UseClient: cfg.probeMode == ProbeExec,
			Logger:    cfg.logger,
		}),
		Application: glpi.New(glpi.Config{
			Runner:  runner,
			Service: cfg.webService,
			User:    cfg.serviceUser,
			Database: glpi.DatabaseConfig{
				Host:     cfg.containerDBHost,
				Name:     cfg.database.Name,
				User:     cfg.database.User,
				Password: cfg.database.Password,
			},
			Language:    cfg.language,
			Reconfigure: cfg.reconfigure,
			Stdout:      cfg.stdout,
			Stderr:      cfg.stderr,
			Logger:      cfg.logger,
		}),
		InstallMode:              cfg.installMode,
		ChownWebapp:              cfg.chownWebapp,
		MaintenanceDisablePolicy: cfg.maintenanceDisablePolicy,
		Verifier:                 verifier,
		Store:                    cfg.store,
		Tracer:                   cfg.tracer,
		Logger:                   cfg.logger,
		MetricsEnabled:           cfg.metricsEnabled,
	})

	return orch, nil
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		project:                  "glpi",
		releaseVersion:           release.Latest,
		containerDBHost:          "db",
		dbService:                "db",
		dbClient:                 "mariadb",
		probeMode:                ProbeExec,
		webService:               "glpi",
		installMode:              rootpkg.InstallModeConfigure,
		maintenanceDisablePolicy: rootpkg.PolicyFatal,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.layout.Root == "" {
		return nil, errors.New("workdir is required: use WithWorkdir or WithLayout option")
	}
	if cfg.database.Password == "" {
		return nil, errors.New("database password is required: use WithDatabase option")
	}
	if !cfg.installMode.Valid() {
		return nil, fmt.Errorf("invalid install mode %q", cfg.installMode)
	}
	if cfg.probeMode != ProbeSQL && cfg.probeMode != ProbeExec {
		return nil, fmt.Errorf("invalid probe mode %q", cfg.probeMode)
	}
	cfg.layout = cfg.layout.WithDefaults()
	cfg.database = cfg.database.WithDefaults()
	if err := database.ValidateIdentifier(cfg.database.Name, "database name"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *config) runner() compose.Runner {
	if cfg.composeRunner != nil {
		return cfg.composeRunner
	}
	return compose.New(compose.Config{
		Command:     cfg.composeCommand,
		ProjectDir:  cfg.layout.Root,
		File:        cfg.layout.ComposeFile,
		ProjectName: cfg.project,
		Env:         []string{compose.RootPasswordEnv + "=" + cfg.database.Password},
		Secrets:     []string{cfg.database.Password, cfg.githubToken, cfg.userToken, cfg.appToken},
		Stdout:      cfg.stdout,
		Stderr:      cfg.stderr,
		Logger:      cfg.logger,
	})
}

func (cfg *config) prober(runner compose.Runner) database.Prober {
	if cfg.probeMode == ProbeSQL {
		return database.NewSQLProber(cfg.database)
	}
	return database.NewExecProber(database.ExecProberConfig{
		Runner:   runner,
		Service:  cfg.dbService,
		Client:   cfg.dbClient,
		Settings: cfg.database,
	})
}

func (cfg *config) checker() (*verify.Checker, error) {
	vcfg := verify.Config{
		URL:     cfg.verifyURL,
		Timeout: cfg.readyTimeout,
		Logger:  cfg.logger,
	}
	if cfg.userToken != "" {
		apiURL := cfg.apiURL
		if apiURL == "" {
			apiURL = cfg.verifyURL
		}
		client, err := api.New(api.Config{
			BaseURL:   apiURL,
			AppToken:  cfg.appToken,
			UserToken: cfg.userToken,
			Logger:    cfg.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create API client: %w", err)
		}
		vcfg.API = client
	}
	return verify.New(vcfg), nil
}

// Status probes the running deployment once: the database server through the
// configured probe mode and, when WithVerify is set, the web front page.
// Nothing is started or modified.
func Status(ctx context.Context, opts ...Option) ([]verify.ProbeResult, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	probes := []verify.Probe{{Name: "database", Check: cfg.prober(cfg.runner()).Probe}}
	if cfg.verifyURL != "" {
		checker, err := cfg.checker()
		if err != nil {
			return nil, err
		}
		probes = append(probes, verify.Probe{Name: "web", Check: checker.CheckHTTP})
	}
	return verify.Health(ctx, probes...)
}

// WithWorkdir sets the deployment root with the default directory names.
func WithWorkdir(root string) Option {
	return func(c *config) {
		c.layout.Root = root
	}
}

// WithLayout sets the full on-disk layout.
func WithLayout(layout workspace.Layout) Option {
	return func(c *config) {
		c.layout = layout
	}
}

// WithProject sets the compose project name.
func WithProject(project string) Option {
	return func(c *config) {
		c.project = project
	}
}

// WithRelease sets the GLPI release tag, or "latest".
func WithRelease(version string) Option {
	return func(c *config) {
		c.releaseVersion = version
	}
}

// WithReleaseSource sets the GitHub repository queried for "latest" and the
// URL template used for pinned versions. Empty values keep the defaults.
func WithReleaseSource(repository, urlTemplate string) Option {
	return func(c *config) {
		c.repository = repository
		c.urlTemplate = urlTemplate
	}
}

// WithGitHubToken authenticates release listing queries.
func WithGitHubToken(token string) Option {
	return func(c *config) {
		c.githubToken = token
	}
}

// WithHTTPClient sets the client used for release queries and downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.httpClient = client
	}
}

// WithDatabase sets the database server settings as seen from the host.
func WithDatabase(settings database.Settings) Option {
	return func(c *config) {
		c.database = settings
	}
}

// WithDatabaseService sets the database service name, its client binary and
// the host name GLPI uses to reach it inside the container network.
func WithDatabaseService(service, client, containerHost string) Option {
	return func(c *config) {
		if service != "" {
			c.dbService = service
		}
		if client != "" {
			c.dbClient = client
		}
		if containerHost != "" {
			c.containerDBHost = containerHost
		}
	}
}

// WithProbeMode sets how readiness is probed.
func WithProbeMode(mode ProbeMode) Option {
	return func(c *config) {
		c.probeMode = mode
	}
}

// WithReadinessPolicy sets the readiness backoff and its overall timeout.
// The timeout also bounds the web verification wait.
func WithReadinessPolicy(initialDelay, maxDelay, timeout time.Duration) Option {
	return func(c *config) {
		c.initialDelay = initialDelay
		c.maxDelay = maxDelay
		c.readyTimeout = timeout
	}
}

// WithComposeCommand sets the compose entry point, e.g. ["docker-compose"].
func WithComposeCommand(command ...string) Option {
	return func(c *config) {
		c.composeCommand = command
	}
}

// WithComposeRunner replaces the docker compose CLI.
func WithComposeRunner(runner compose.Runner) Option {
	return func(c *config) {
		c.composeRunner = runner
	}
}

// WithComposeDescriptor renders docker-compose.yml from d on every run.
// Names and paths are taken from the layout and the other options.
func WithComposeDescriptor(d compose.Descriptor) Option {
	return func(c *config) {
		c.descriptor = &d
	}
}

// WithRebuild forces an image rebuild and container recreation on start.
func WithRebuild(rebuild bool) Option {
	return func(c *config) {
		c.rebuild = rebuild
	}
}

// WithWebService sets the application service name and the account console
// commands run as.
func WithWebService(service, user string) Option {
	return func(c *config) {
		if service != "" {
			c.webService = service
		}
		c.serviceUser = user
	}
}

// WithInstallMode selects db:configure or db:install.
func WithInstallMode(mode InstallMode) Option {
	return func(c *config) {
		c.installMode = mode
	}
}

// WithLanguage sets the default language passed to db:install.
func WithLanguage(language string) Option {
	return func(c *config) {
		c.language = language
	}
}

// WithReconfigure lets db:configure overwrite an existing configuration.
func WithReconfigure(reconfigure bool) Option {
	return func(c *config) {
		c.reconfigure = reconfigure
	}
}

// WithChownWebapp hands the unpacked tree to the service user before install.
func WithChownWebapp(chown bool) Option {
	return func(c *config) {
		c.chownWebapp = chown
	}
}

// WithMaintenanceDisablePolicy sets the failure policy of maintenance:disable.
func WithMaintenanceDisablePolicy(policy Policy) Option {
	return func(c *config) {
		c.maintenanceDisablePolicy = policy
	}
}

// WithVerify enables the post-deploy check of the web root at url.
func WithVerify(url string) Option {
	return func(c *config) {
		c.verifyURL = url
	}
}

// WithAPI enables the REST session check during verification.
// An empty baseURL uses the verification URL.
func WithAPI(baseURL, appToken, userToken string) Option {
	return func(c *config) {
		c.apiURL = baseURL
		c.appToken = appToken
		c.userToken = userToken
	}
}

// WithHistoryStore sets the store runs are recorded in.
func WithHistoryStore(store history.Store) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithLogger sets the logger for observability.
func WithLogger(logger es.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithTracer sets the tracer for run and step spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) {
		c.tracer = tracer
	}
}

// WithMetricsEnabled enables or disables Prometheus metrics collection.
func WithMetricsEnabled(enabled bool) Option {
	return func(c *config) {
		c.metricsEnabled = &enabled
	}
}

// WithOutput sets where subprocess output goes.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *config) {
		c.stdout = stdout
		c.stderr = stderr
	}
}

// RunMigrations creates the run history tables on db.
// driver is one of sqlstore.DriverSQLite, DriverPostgres or DriverMySQL.
//
// This is only needed when the tables are managed outside the store, for
// example with SkipMigrate; sqlstore.Open migrates by default.
func RunMigrations(ctx context.Context, db *sql.DB, driver string) error {
	return RunMigrationsWithConfig(ctx, db, driver, migrations.DefaultConfig())
}

// RunMigrationsWithConfig creates the run history tables with custom names.
func RunMigrationsWithConfig(ctx context.Context, db *sql.DB, driver string, tables migrations.Config) error {
	dialect, err := sqlstore.DialectFor(driver)
	if err != nil {
		return err
	}
	if err := sqlstore.New(db, dialect, tables).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}
	return nil
}
